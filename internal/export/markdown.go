package export

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/iksnae/justchat/internal"
)

// MarkdownExporter exports transcripts in Markdown format
type MarkdownExporter struct {
	// Location is used for day headings and times; UTC when nil
	Location *time.Location
}

// Export exports a transcript to Markdown format
func (e *MarkdownExporter) Export(t *Transcript, w io.Writer) error {
	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}

	_, _ = fmt.Fprintf(w, "# %s\n\n", t.Title)
	if len(t.Participants) > 0 {
		names := make([]string, 0, len(t.Participants))
		for _, p := range t.Participants {
			names = append(names, p.Name)
		}
		_, _ = fmt.Fprintf(w, "**Participants:** %s  \n", strings.Join(names, ", "))
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(t.Messages))
	_, _ = fmt.Fprintf(w, "---\n")

	// GroupByDay works on messages, so feed it timestamps only
	stamps := make([]internal.Message, len(t.Messages))
	for i, msg := range t.Messages {
		stamps[i] = internal.Message{ID: msg.ID, Timestamp: msg.Timestamp}
	}
	for i, item := range internal.GroupByDay(stamps, loc) {
		msg := t.Messages[i]
		if item.NewDay {
			_, _ = fmt.Fprintf(w, "\n## %s\n", item.Day.Format("Monday, January 2, 2006"))
		}

		_, _ = fmt.Fprintf(w, "\n**%s** (%s)\n\n", msg.Sender, msg.Timestamp.In(loc).Format("15:04"))
		if msg.Content != "" {
			_, _ = fmt.Fprintf(w, "%s\n", escapeMarkdown(msg.Content))
		}
		for _, link := range msg.Attachments {
			name := path.Base(link)
			if unescaped, err := url.PathUnescape(name); err == nil {
				name = unescaped
			}
			if internal.ClassifyAttachment(name) == internal.AttachmentImage {
				_, _ = fmt.Fprintf(w, "\n![%s](%s)\n", name, link)
			} else {
				_, _ = fmt.Fprintf(w, "\n[%s](%s)\n", name, link)
			}
		}
	}

	return nil
}

// escapeMarkdown escapes markdown special characters
func escapeMarkdown(text string) string {
	// Basic escaping - preserve code blocks
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			if strings.HasPrefix(line, "#") {
				line = "\\" + line
			}
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
