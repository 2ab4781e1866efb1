package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iksnae/justchat/internal"
)

// messagePrinter renders timeline snapshots. It remembers what it already
// printed so repeated snapshots only add the new messages.
type messagePrinter struct {
	mu       sync.Mutex
	w        io.Writer
	selfID   string
	dir      *internal.UserDirectory
	resolver *internal.AttachmentResolver
	loc      *time.Location
	now      func() time.Time
	printed  map[string]bool
}

func newMessagePrinter(w io.Writer, a *app, selfID string, dir *internal.UserDirectory) *messagePrinter {
	return &messagePrinter{
		w:        w,
		selfID:   selfID,
		dir:      dir,
		resolver: a.resolver,
		loc:      a.loc,
		now:      a.now,
		printed:  make(map[string]bool),
	}
}

// Print writes the messages of snapshot not printed before, with a day
// marker ahead of the first message of every calendar day. Terminal output
// is append-only: a message that sorts before one already on screen is
// printed at the bottom with an "(earlier)" hint and no day marker.
func (p *messagePrinter) Print(snapshot []internal.Message) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	items := internal.GroupByDay(snapshot, p.loc)
	tail := -1
	for i, item := range items {
		if p.printed[item.Message.ID] {
			tail = i
		}
	}

	n := 0
	for i, item := range items {
		if p.printed[item.Message.ID] {
			continue
		}
		earlier := i < tail
		if item.NewDay && !earlier {
			fmt.Fprintln(p.w, dayMarkerStyle.Render("── "+internal.DayLabel(item.Day, p.now().In(p.loc))+" ──"))
		}
		p.printMessage(item.Message, earlier)
		p.printed[item.Message.ID] = true
		n++
	}
	return n
}

func (p *messagePrinter) printMessage(m internal.Message, earlier bool) {
	name := m.SenderID
	if p.dir != nil {
		name = p.dir.DisplayName(m.SenderID)
	}
	style := otherMessageStyle
	if m.SenderID == p.selfID {
		style = selfMessageStyle
	}

	stamp := m.Timestamp.In(p.loc).Format("15:04")
	if earlier {
		stamp = m.Timestamp.In(p.loc).Format("Jan 2 15:04") + " (earlier)"
	}
	fmt.Fprintf(p.w, "%s %s\n", style.Render(name), timestampStyle.Render(stamp))
	if strings.TrimSpace(m.Content) != "" {
		fmt.Fprintln(p.w, messageContentStyle.Render(m.Content))
	}
	for _, name := range m.Attachments {
		if name == "" {
			continue
		}
		icon := "📎"
		if internal.ClassifyAttachment(name) == internal.AttachmentImage {
			icon = "🖼"
		}
		url := p.resolver.FileURL(m.CollectionID, m.ID, name)
		fmt.Fprintf(p.w, "  %s %s %s\n", icon, name, idStyle.Render(url))
	}
}

// relativeTime renders t like "3 hours ago", falling back to a date for
// zero values
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return humanize.Time(t)
}

// truncate shortens s to max runes
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// syncWriter serializes writes from the delivery goroutine and the input loop
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
