package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iksnae/justchat/internal"
)

var (
	limit int
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show the messages of a conversation",
	Long: `Display the history of a conversation, oldest first, with a marker at
the start of every day and links to attachments.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conversationID := args[0]
		if err := internal.ValidateRecordID(conversationID); err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		self, err := a.currentUser()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		dir := a.directory()

		conv, msgs, offline, err := loadConversation(cmd, a, self.ID, conversationID)
		if err != nil {
			return err
		}

		timeline := internal.NewTimeline(conversationID)
		timeline.Seed(msgs)
		snapshot := timeline.Snapshot()
		if limit > 0 && len(snapshot) > limit {
			snapshot = snapshot[len(snapshot)-limit:]
		}

		if !offline {
			ids := append(append([]string{}, conv.Participants...), internal.DistinctSenders(snapshot)...)
			if err := dir.Resolve(cmd.Context(), internal.DedupIDs(ids)); err != nil {
				return a.check(err)
			}
		}

		fmt.Fprintln(out, headerStyle.Render("💬 "+internal.ConversationTitle(conv, self.ID, dir)))
		meta := fmt.Sprintf("%d message(s)", timeline.Len())
		if conv.IsGroup {
			meta += fmt.Sprintf(" · %d members", len(conv.Participants))
		}
		fmt.Fprintln(out, dateStyle.Render(meta))
		if offline {
			fmt.Fprintln(out, warningStyle.Render("⚠️  Offline: showing cached messages"))
		}
		if len(snapshot) == 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, idStyle.Render("No messages yet"))
			return nil
		}

		newMessagePrinter(out, a, self.ID, dir).Print(snapshot)
		return nil
	},
}

// loadConversation fetches a conversation and its history, falling back to
// the offline cache when the backend is unavailable
func loadConversation(cmd *cobra.Command, a *app, selfID, conversationID string) (internal.Conversation, []internal.Message, bool, error) {
	var (
		conv internal.Conversation
		msgs []internal.Message
	)
	err := internal.ShowProgress(cmd.Context(), "Loading messages", func() error {
		var err error
		if conv, err = a.client.GetConversation(cmd.Context(), conversationID); err != nil {
			return err
		}
		if !conv.HasParticipant(selfID) {
			return &internal.ValidationError{Field: "conversation", Reason: "not a participant"}
		}
		msgs, err = a.client.ListMessages(cmd.Context(), conversationID)
		return err
	})

	if errors.Is(err, internal.ErrBackendUnavailable) {
		cached, cacheErr := a.cache.LoadMessages(selfID, conversationID)
		if cacheErr != nil {
			return conv, nil, false, a.check(err)
		}
		conv = internal.Conversation{ID: conversationID}
		if convs, _, err := a.cache.LoadConversations(selfID); err == nil {
			for _, c := range convs {
				if c.ID == conversationID {
					conv = c
				}
			}
		}
		return conv, cached, true, nil
	}
	if err != nil {
		if errors.Is(err, internal.ErrValidationRejected) {
			return conv, nil, false, fmt.Errorf("conversation %s not found: %w", conversationID, err)
		}
		return conv, nil, false, a.check(err)
	}

	if err := a.cache.SaveMessages(selfID, conversationID, msgs); err != nil {
		internal.LogWarn("Failed to cache messages: %v", err)
	}
	return conv, msgs, false, nil
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the last N messages")
}
