package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iksnae/justchat/internal"
)

// usersCmd represents the users command
var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List the users you can talk to",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		self, err := a.currentUser()
		if err != nil {
			return err
		}

		users, err := a.client.ListUsers(cmd.Context())
		if err != nil {
			return a.check(err)
		}
		dir := internal.NewUserDirectory(a.client)
		dir.Prime(users...)
		if err := a.cache.SaveUsers(dir.All()); err != nil {
			internal.LogWarn("Failed to cache users: %v", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("👥 %d user(s)", dir.Len())))
		fmt.Fprintln(out)

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		_, _ = fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Name")+"\t"+titleStyle.Render("Username")+"\t")
		_, _ = fmt.Fprintln(w, strings.Repeat("─", 60))
		for _, u := range dir.All() {
			name := u.DisplayName()
			if u.ID == self.ID {
				name += " (you)"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t\n", idStyle.Render(u.ID), name, u.Username)
			if url, ok := a.resolver.AvatarURL(u); ok && verbose {
				_, _ = fmt.Fprintf(w, "\t%s\t\t\n", dateStyle.Render(url))
			}
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
}
