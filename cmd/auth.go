package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/iksnae/justchat/internal"
)

var (
	loginUsername string
	whoamiRefresh bool
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and remember the session",
	Long: `Log in with your username and password. The session token is stored in
the local session database and reused by every other command.

The password is read without echo when stdin is a terminal, otherwise from
the first line of stdin after the username.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		in := bufio.NewReader(cmd.InOrStdin())
		username := strings.TrimSpace(loginUsername)
		if username == "" {
			fmt.Fprint(cmd.ErrOrStderr(), "Username: ")
			if username, err = readLine(in); err != nil {
				return err
			}
		}
		password, err := readPassword(cmd, in)
		if err != nil {
			return err
		}

		var res struct {
			token string
			user  internal.User
		}
		err = internal.ShowProgress(cmd.Context(), "Logging in", func() error {
			r, err := a.client.AuthWithPassword(cmd.Context(), username, password)
			res.token, res.user = r.Token, r.User
			return err
		})
		switch {
		case errors.Is(err, internal.ErrMissingCredentials):
			return fmt.Errorf("username and password are required")
		case errors.Is(err, internal.ErrInvalidCredentials):
			return fmt.Errorf("login rejected: invalid username or password")
		case err != nil:
			return a.check(err)
		}

		if err := a.session.Set(res.token, res.user); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✅ Logged in as "+res.user.DisplayName()))
		return nil
	},
}

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session and cached data",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		wasLoggedIn := a.session.IsAuthenticated()
		clearErr := a.session.Clear()
		if err := a.cache.ClearCache(); err != nil {
			internal.LogWarn("Failed to clear cache: %v", err)
		}
		if clearErr != nil {
			return clearErr
		}

		if wasLoggedIn {
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✅ Logged out"))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
		}
		return nil
	},
}

// whoamiCmd represents the whoami command
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.currentUser()
		if err != nil {
			return err
		}

		if whoamiRefresh {
			res, err := a.client.AuthRefresh(cmd.Context())
			if err != nil {
				return a.check(err)
			}
			if err := a.session.Set(res.Token, res.User); err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}
			user = res.User
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", titleStyle.Render(user.DisplayName()), idStyle.Render("("+user.ID+")"))
		if user.Username != "" && user.Username != user.DisplayName() {
			fmt.Fprintf(out, "  username: %s\n", user.Username)
		}
		if url, ok := a.resolver.AvatarURL(user); ok {
			fmt.Fprintf(out, "  avatar:   %s\n", url)
		}
		fmt.Fprintf(out, "  backend:  %s\n", a.cfg.BaseURL)
		return nil
	},
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readPassword reads without echo from a terminal, or a plain line otherwise
func readPassword(cmd *cobra.Command, in *bufio.Reader) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	return readLine(in)
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username or email")
	whoamiCmd.Flags().BoolVar(&whoamiRefresh, "refresh", false, "Validate the session with the backend and renew the token")
}
