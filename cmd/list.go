package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iksnae/justchat/internal"
)

var (
	listOffline bool
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your conversations",
	Long: `List the conversations you take part in, most recently active first.

When the backend cannot be reached the last fetched list is shown from the
offline cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return runList(cmd, a)
	},
}

func runList(cmd *cobra.Command, a *app) error {
	self, err := a.currentUser()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	dir := a.directory()

	var convs []internal.Conversation
	if !listOffline {
		err = internal.ShowProgress(cmd.Context(), "Loading conversations", func() error {
			var loadErr error
			convs, loadErr = a.client.ListConversations(cmd.Context(), self.ID)
			return loadErr
		})
	}

	switch {
	case listOffline || errors.Is(err, internal.ErrBackendUnavailable):
		cached, savedAt, cacheErr := a.cache.LoadConversations(self.ID)
		if cacheErr != nil {
			if listOffline {
				return fmt.Errorf("no cached conversations: %w", cacheErr)
			}
			return a.check(err)
		}
		convs = cached
		fmt.Fprintln(out, warningStyle.Render("⚠️  Offline: showing conversations cached "+relativeTime(savedAt)))
	case err != nil:
		return a.check(err)
	default:
		if err := a.cache.SaveConversations(self.ID, convs); err != nil {
			internal.LogWarn("Failed to cache conversations: %v", err)
		}
		var others []string
		for _, c := range convs {
			others = append(others, c.Participants...)
		}
		if err := dir.Resolve(cmd.Context(), internal.DedupIDs(others)); err != nil {
			return a.check(err)
		}
		if err := a.cache.SaveUsers(dir.All()); err != nil {
			internal.LogWarn("Failed to cache users: %v", err)
		}
	}

	internal.SortConversations(convs)
	displayConversations(out, convs, self.ID, dir)
	return nil
}

func displayConversations(out io.Writer, convs []internal.Conversation, selfID string, dir *internal.UserDirectory) {
	if len(convs) == 0 {
		fmt.Fprintln(out, headerStyle.Render("💬 No conversations yet"))
		fmt.Fprintln(out, idStyle.Render("💡 Tip: start one with `justchat new <user>`"))
		return
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("💬 %d conversation(s)", len(convs))))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Name")+"\t"+titleStyle.Render("Members")+"\t"+titleStyle.Render("Updated")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 80))

	for _, c := range convs {
		name := truncate(internal.ConversationTitle(c, selfID, dir), 40)
		if c.IsGroup {
			name = groupStyle.Render(name)
		}
		members := countStyle.Render(fmt.Sprintf("%d", len(c.Participants)))
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", idStyle.Render(c.ID), name, members, dateStyle.Render(relativeTime(c.Updated)))
	}
	_ = w.Flush()

	fmt.Fprintln(out)
	fmt.Fprintln(out, idStyle.Render("💡 Tip: read one with `justchat show ")+accentStyle.Render(convs[0].ID)+idStyle.Render("`"))
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listOffline, "offline", false, "Show the cached list without contacting the backend")
}
