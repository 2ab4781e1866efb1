package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/iksnae/justchat/internal/realtime"
)

var (
	healthcheckTimeout time.Duration
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that justchat can reach the chat backend",
	Long: `Check the health of justchat by verifying:
  • Configuration loading
  • Session store access
  • Backend reachability
  • Session validity
  • Realtime subscription

This command is useful for debugging connection issues. Use --verbose for
detailed diagnostic information.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()
		failed := false
		fail := func(msg string, err error) {
			failed = true
			fmt.Fprintln(out, errorStyle.Render("❌ "+msg+":"), err)
		}

		fmt.Fprintln(out, sectionStyle.Render("🔍 justchat Health Check"))
		fmt.Fprintln(out)

		// Step 1: Configuration
		fmt.Fprintln(out, infoStyle.Render("Step 1: Loading configuration..."))
		cfg, err := loadConfig()
		if err != nil {
			fail("Failed to load configuration", err)
			return errQuiet
		}
		fmt.Fprintln(out, successStyle.Render("✅ Configuration loaded"))
		if verbose {
			fmt.Fprintf(out, "   Source: %s\n", cfg.Source())
			fmt.Fprintf(out, "   Backend: %s\n", cfg.BaseURL)
			fmt.Fprintf(out, "   Realtime: %s (%s)\n", cfg.Realtime.Transport, cfg.Realtime.Topic)
		}
		fmt.Fprintln(out)

		// Step 2: Session store
		fmt.Fprintln(out, infoStyle.Render("Step 2: Opening session store..."))
		a, err := newApp(cmd)
		if err != nil {
			fail("Failed to open session store", err)
			return errQuiet
		}
		defer a.Close()
		fmt.Fprintln(out, successStyle.Render("✅ Session store available"))
		if verbose {
			fmt.Fprintf(out, "   Database: %s\n", a.store.Path())
		}
		self, loggedIn := a.session.Identity()
		if loggedIn {
			fmt.Fprintf(out, "   Logged in as %s\n", self.DisplayName())
		} else {
			fmt.Fprintln(out, warningStyle.Render("⚠️  Not logged in"))
		}
		fmt.Fprintln(out)

		// Step 3: Backend
		fmt.Fprintln(out, infoStyle.Render("Step 3: Checking backend..."))
		start := time.Now()
		if err := withTimeout(ctx, a.client.Health); err != nil {
			fail("Backend unreachable", err)
		} else {
			fmt.Fprintln(out, successStyle.Render("✅ Backend reachable"))
			if verbose {
				fmt.Fprintf(out, "   Latency: %s\n", time.Since(start).Round(time.Millisecond))
			}
		}
		fmt.Fprintln(out)

		if loggedIn && !failed {
			// Step 4: Session
			fmt.Fprintln(out, infoStyle.Render("Step 4: Verifying session..."))
			err := withTimeout(ctx, func(ctx context.Context) error {
				_, err := a.client.GetUser(ctx, self.ID)
				return err
			})
			if err != nil {
				fail("Session rejected", err)
			} else {
				fmt.Fprintln(out, successStyle.Render("✅ Session valid"))
			}
			fmt.Fprintln(out)

			// Step 5: Realtime
			fmt.Fprintln(out, infoStyle.Render("Step 5: Subscribing to realtime feed..."))
			if err := checkRealtime(ctx, a.feed(), a.cfg.Realtime.Topic); err != nil {
				fail("Realtime subscription failed", err)
			} else {
				fmt.Fprintln(out, successStyle.Render("✅ Realtime subscription confirmed"))
			}
			fmt.Fprintln(out)
		}

		// Summary
		fmt.Fprintln(out, sectionStyle.Render("📊 Summary"))
		fmt.Fprintln(out)
		return summarize(out, failed, loggedIn)
	},
}

func summarize(out io.Writer, failed, loggedIn bool) error {
	switch {
	case failed:
		fmt.Fprintln(out, errorStyle.Render("❌ Health check failed"))
		return errQuiet
	case !loggedIn:
		fmt.Fprintln(out, warningStyle.Render("⚠️  Backend available but not logged in"))
		fmt.Fprintln(out, "   Run 'justchat login' to check the session and realtime feed")
		return nil
	default:
		fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
		return nil
	}
}

func withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, healthcheckTimeout)
	defer cancel()
	return fn(ctx)
}

// checkRealtime opens a subscription and closes it again once confirmed
func checkRealtime(ctx context.Context, feed realtime.Feed, topic string) error {
	return withTimeout(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithCancel(ctx)
		events, err := feed.Subscribe(ctx, topic)
		if err != nil {
			cancel()
			return err
		}
		cancel()
		// The channel closes once the stream has shut down
		for range events {
		}
		return nil
	})
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().DurationVar(&healthcheckTimeout, "timeout", 10*time.Second, "Timeout for each network check")
}
