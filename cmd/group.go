package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iksnae/justchat/internal"
)

var (
	groupName string
	groupFlag bool
)

// newCmd represents the new command
var newCmd = &cobra.Command{
	Use:   "new <user>...",
	Short: "Start a direct or group conversation",
	Long: `Create a conversation with the given users. Users can be named by id
or username. One user starts a direct conversation; several users,
or --group, start a group, which needs a --name.`,
	Example: `  justchat new bob
  justchat new bob carol --name "Weekend trip"`,
	Args: cobra.MinimumNArgs(1),
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

		var users []internal.User
		if err := internal.ShowProgress(cmd.Context(), "Loading users", func() error {
			var err error
			users, err = a.client.ListUsers(cmd.Context())
			return err
		}); err != nil {
			return a.check(err)
		}

		ids := make([]string, 0, len(args))
		for _, name := range args {
			u, ok := findUser(users, name)
			if !ok {
				return &internal.ValidationError{Field: "participants", Reason: fmt.Sprintf("unknown user %q", name)}
			}
			ids = append(ids, u.ID)
		}

		isGroup := groupFlag || groupName != "" || len(ids) > 1
		nc, err := internal.PrepareConversation(self.ID, groupName, ids, isGroup)
		if err != nil {
			return err
		}

		conv, err := a.client.CreateConversation(cmd.Context(), nc)
		if err != nil {
			return a.check(err)
		}

		dir := a.directory()
		dir.Prime(users...)
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
			successStyle.Render("✅ Created"),
			titleStyle.Render(internal.ConversationTitle(conv, self.ID, dir)),
			idStyle.Render(conv.ID))
		return nil
	},
}

// findUser matches a user by id or, ignoring case, by username
func findUser(users []internal.User, name string) (internal.User, bool) {
	for _, u := range users {
		if u.ID == name || strings.EqualFold(u.Username, name) {
			return u, true
		}
	}
	return internal.User{}, false
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringVar(&groupName, "name", "", "Group name")
	newCmd.Flags().BoolVar(&groupFlag, "group", false, "Create a group even with a single participant")
}
