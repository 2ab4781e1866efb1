package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iksnae/justchat/internal"
)

var (
	attachPath string
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> [text...]",
	Short: "Send a single message",
	Long: `Send one message to a conversation without opening it. A file can be
attached with --attach; the text is then optional.`,
	Example: `  justchat send k3x9v2m1p0q8r7s "see you at 5"
  justchat send k3x9v2m1p0q8r7s --attach ./photo.png "from today"`,
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

		req := internal.SendRequest{
			ConversationID: args[0],
			SenderID:       self.ID,
			Text:           strings.Join(args[1:], " "),
			Timestamp:      a.now(),
		}
		if attachPath != "" {
			if req.Attachment, err = readAttachment(attachPath); err != nil {
				return err
			}
		}

		var m internal.Message
		err = internal.ShowProgress(cmd.Context(), "Sending message", func() error {
			var err error
			m, err = a.client.SendMessage(cmd.Context(), req)
			return err
		})
		if errors.Is(err, internal.ErrValidationRejected) {
			return err
		}
		if err != nil {
			return a.check(err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", successStyle.Render("✅ Sent"), idStyle.Render(m.ID))
		for _, url := range a.resolver.AttachmentURLs(m) {
			fmt.Fprintf(out, "  📎 %s\n", url)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&attachPath, "attach", "a", "", "File to attach")
}
