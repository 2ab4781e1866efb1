package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iksnae/justchat/internal"
	"github.com/iksnae/justchat/internal/export"
)

var (
	format    string
	outputDir string
	exportAll bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export [conversation-id]",
	Short: "Export conversations to file",
	Long: `Export conversation transcripts to various formats (jsonl, md, yaml, json).

Export a single conversation by ID, or every conversation with --all.
Use 'justchat list' to see available conversation IDs. Pass --out - to write
to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportAll == (len(args) == 1) {
			return errors.New("specify a conversation ID or --all")
		}

		exporter, err := export.NewExporter(format)
		if err != nil {
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
		if md, ok := exporter.(*export.MarkdownExporter); ok {
			md.Location = a.loc
		}

		ctx := cmd.Context()
		dir := a.directory()
		var (
			convs   []internal.Conversation
			history = make(map[string][]internal.Message)
		)

		steps := []internal.ProgressStep{
			{
				Message: "Loading conversations",
				Fn: func() error {
					if exportAll {
						var err error
						convs, err = a.client.ListConversations(ctx, self.ID)
						return err
					}
					conv, err := a.client.GetConversation(ctx, args[0])
					if err != nil {
						return err
					}
					convs = []internal.Conversation{conv}
					return nil
				},
			},
			{
				Message: "Loading messages",
				Fn: func() error {
					for _, conv := range convs {
						msgs, err := a.client.ListMessages(ctx, conv.ID)
						if err != nil {
							return err
						}
						timeline := internal.NewTimeline(conv.ID)
						timeline.Seed(msgs)
						history[conv.ID] = timeline.Snapshot()
					}
					return nil
				},
			},
			{
				Message: "Resolving participants",
				Fn: func() error {
					var ids []string
					for _, conv := range convs {
						ids = append(ids, conv.Participants...)
						ids = append(ids, internal.DistinctSenders(history[conv.ID])...)
					}
					return dir.Resolve(ctx, internal.DedupIDs(ids))
				},
			},
		}
		if err := internal.ShowProgressWithSteps(ctx, steps); err != nil {
			if !exportAll && errors.Is(err, internal.ErrValidationRejected) {
				return fmt.Errorf("conversation %s not found: %w", args[0], err)
			}
			return a.check(err)
		}

		if len(convs) == 0 {
			internal.PrintInfo("No conversations to export")
			return nil
		}

		if outputDir == "-" {
			for _, conv := range convs {
				t := export.NewTranscript(conv, self.ID, history[conv.ID], dir, a.resolver)
				if err := exporter.Export(t, cmd.OutOrStdout()); err != nil {
					return &internal.ExportError{Format: format, Path: "stdout", Err: err}
				}
			}
			return nil
		}

		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		exported := 0
		err = internal.ShowProgress(ctx, fmt.Sprintf("Exporting %d conversation(s) to %s", len(convs), outputDir), func() error {
			for _, conv := range convs {
				t := export.NewTranscript(conv, self.ID, history[conv.ID], dir, a.resolver)
				path := filepath.Join(outputDir, fmt.Sprintf("conversation_%s.%s", conv.ID, exporter.Extension()))
				if err := writeTranscript(exporter, t, path); err != nil {
					internal.LogError("Failed to export conversation %s: %v", conv.ID, err)
					if !exportAll {
						return err
					}
					continue
				}
				exported++
			}
			return nil
		})
		if err != nil {
			return err
		}

		if failed := len(convs) - exported; failed > 0 {
			internal.PrintWarning(fmt.Sprintf("%d conversation(s) could not be exported", failed))
		}
		internal.PrintSuccess(fmt.Sprintf("Export complete: %d conversation(s) exported to %s", exported, outputDir))
		return nil
	},
}

// writeTranscript exports t into a new file at path
func writeTranscript(exporter export.Exporter, t *export.Transcript, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}
	if err := exporter.Export(t, file); err != nil {
		_ = file.Close()
		return &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &internal.ExportError{Format: exporter.Extension(), Path: path, Err: err}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format ("+strings.Join(export.Formats(), ", ")+")")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory, or - for stdout")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "Export every conversation")
}
