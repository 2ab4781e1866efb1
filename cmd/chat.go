package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iksnae/justchat/internal"
	"github.com/iksnae/justchat/internal/realtime"
)

const chatHelp = `Type a message and press enter to send it.
  /attach <path> [caption]  send a file
  /help                     show this help
  /quit                     leave the conversation`

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat <conversation-id>",
	Short: "Open a conversation and follow it live",
	Long: `Open a conversation, print its history and keep printing new messages as
they arrive. Lines typed on stdin are sent as messages.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
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
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	out := &syncWriter{w: cmd.OutOrStdout()}
	dir := a.directory()

	conv, err := a.client.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, internal.ErrValidationRejected) {
			return fmt.Errorf("conversation %s not found: %w", conversationID, err)
		}
		return a.check(err)
	}
	if err := dir.Resolve(ctx, conv.Participants); err != nil {
		return a.check(err)
	}

	printer := newMessagePrinter(out, a, self.ID, dir)
	view := internal.NewConversationView(a.client, realtime.NewManager(a.feed(), a.cfg.Realtime.Topic), self.ID)
	defer view.Close()

	view.OnChange(func(snapshot []internal.Message) {
		if err := dir.Resolve(ctx, internal.DistinctSenders(snapshot)); err != nil {
			internal.LogDebug("Sender lookup interrupted: %v", err)
		}
		printer.Print(snapshot)
	})
	view.OnError(func(err error) {
		fmt.Fprintln(out, errorStyle.Render("❌ "+err.Error()))
	})

	fmt.Fprintln(out, headerStyle.Render("💬 "+internal.ConversationTitle(conv, self.ID, dir)))
	if err := view.Switch(ctx, conversationID); err != nil {
		return a.check(err)
	}
	if err := view.WaitLoaded(ctx); err != nil {
		return a.check(err)
	}
	fmt.Fprintln(out, infoStyle.Render(chatHelp))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleChatLine(cmd, a, view, out, line)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
		}
	}
}

// handleChatLine runs one line of input. Only an expired session ends the
// chat; other failures are reported and the loop continues.
func handleChatLine(cmd *cobra.Command, a *app, view *internal.ConversationView, out io.Writer, line string) (bool, error) {
	line = strings.TrimSpace(line)
	var (
		text       = line
		attachment *internal.Attachment
	)

	switch {
	case line == "":
		return false, nil
	case line == "/quit" || line == "/exit":
		return true, nil
	case line == "/help":
		fmt.Fprintln(out, infoStyle.Render(chatHelp))
		return false, nil
	case strings.HasPrefix(line, "/attach"):
		fields := strings.Fields(line)
		if len(fields) < 2 {
			fmt.Fprintln(out, warningStyle.Render("usage: /attach <path> [caption]"))
			return false, nil
		}
		att, err := readAttachment(fields[1])
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ "+err.Error()))
			return false, nil
		}
		attachment = att
		text = strings.Join(fields[2:], " ")
	}

	if _, err := view.Send(cmd.Context(), text, attachment); err != nil {
		if errors.Is(err, internal.ErrAuthExpired) {
			return true, a.check(err)
		}
		if internal.IsCancelled(err) {
			return true, nil
		}
		fmt.Fprintln(out, errorStyle.Render("❌ Failed to send: "+err.Error()))
	}
	return false, nil
}

// readAttachment loads a file to upload with a message
func readAttachment(path string) (*internal.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	return &internal.Attachment{Filename: filepath.Base(path), Data: data}, nil
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
