package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iksnae/justchat/internal"
)

var (
	verbose       bool
	configPath    string
	baseURLFlag   string
	transportFlag string
	sessionDBFlag string
	cacheDirFlag  string
	version       string = "dev"
	commit        string = "unknown"
	date          string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "justchat",
	Short: "Terminal client for justchat conversations",
	Long: `A terminal client for the justchat messaging service.

Log in once, then browse your conversations, read their history with day
markers, chat live, send attachments and export transcripts.

Quick Start:
  justchat login                     # Log in and remember the session
  justchat list                      # List your conversations
  justchat show <conversation-id>    # Read a conversation
  justchat chat <conversation-id>    # Live chat (type /quit to leave)

Configuration is read from ~/.justchat/config.yaml, a .env file and
JUSTCHAT_* environment variables; flags override all of them.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		// Initial route: the conversation list when a session exists,
		// otherwise a pointer to login
		if !a.session.IsAuthenticated() {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headerStyle.Render("👋 Welcome to justchat"))
			fmt.Fprintln(out)
			fmt.Fprintln(out, "You are not logged in. Run "+accentStyle.Render("justchat login")+" to get started.")
			return nil
		}
		return runList(cmd, a)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errQuiet) {
			internal.PrintError(fmt.Sprintf("Error: %v", err))
		}
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.justchat/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "Backend base URL")
	rootCmd.PersistentFlags().StringVar(&transportFlag, "transport", "", "Realtime transport: sse or websocket")
	rootCmd.PersistentFlags().StringVar(&sessionDBFlag, "session-db", "", "Path of the session database")
	rootCmd.PersistentFlags().StringVar(&cacheDirFlag, "cache-dir", "", "Directory of the offline cache")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
