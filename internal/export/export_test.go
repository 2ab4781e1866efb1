package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iksnae/justchat/internal"
)

var start = time.Date(2024, 3, 10, 23, 58, 0, 0, time.UTC)

func testTranscript() *Transcript {
	conv := internal.CreateTestConversation("c1", "", "u1", "u2")
	msgs := internal.CreateTestMessages("c1", 3, start)
	msgs[2].Attachments = []string{"photo one.png", "notes.pdf"}
	msgs[1].Content = "**bold** and\n# heading"

	dir := internal.NewUserDirectory(nil)
	dir.Prime(internal.CreateTestUsers()...)
	resolver := internal.NewAttachmentResolver("https://chat.example.com", "_pb_users_auth_")
	return NewTranscript(conv, "u1", msgs, dir, resolver)
}

func TestNewTranscript(t *testing.T) {
	tr := testTranscript()

	if tr.Title != "Ayşe" {
		t.Errorf("Title = %q, want the other participant", tr.Title)
	}
	if len(tr.Participants) != 2 || tr.Participants[0].Name != "Kerem" {
		t.Errorf("Participants = %+v", tr.Participants)
	}
	if len(tr.Messages) != 3 {
		t.Fatalf("Messages = %d, want 3", len(tr.Messages))
	}
	if tr.Messages[1].Sender != "Ayşe" || tr.Messages[1].SenderID != "u2" {
		t.Errorf("sender not resolved: %+v", tr.Messages[1])
	}
	want := "https://chat.example.com/api/files/pbc_messages/m3/photo%20one.png"
	if got := tr.Messages[2].Attachments; len(got) != 2 || got[0] != want {
		t.Errorf("Attachments = %v", got)
	}
}

func TestNewTranscriptWithoutDirectory(t *testing.T) {
	conv := internal.CreateTestConversation("c1", "Team", "u1", "u2", "u3")
	msgs := []internal.Message{internal.CreateTestMessage("m1", "c1", "u3", "hi", start)}
	msgs[0].Attachments = []string{"a.txt"}

	tr := NewTranscript(conv, "u1", msgs, nil, nil)
	if tr.Title != "Team" {
		t.Errorf("Title = %q", tr.Title)
	}
	if tr.Messages[0].Sender != "u3" {
		t.Errorf("Sender = %q, want id fallback", tr.Messages[0].Sender)
	}
	if len(tr.Messages[0].Attachments) != 1 || tr.Messages[0].Attachments[0] != "a.txt" {
		t.Errorf("Attachments = %v", tr.Messages[0].Attachments)
	}
}

func TestJSONLExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONLExporter{}).Export(testTranscript(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	scanner := bufio.NewScanner(&buf)
	var lines []map[string]interface{}
	for scanner.Scan() {
		var obj map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &obj); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		lines = append(lines, obj)
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0]["sender"] != "Kerem" || lines[0]["conversation"] != "c1" {
		t.Errorf("first line = %v", lines[0])
	}
	if lines[0]["timestamp"] != "2024-03-10T23:58:00Z" {
		t.Errorf("timestamp = %v", lines[0]["timestamp"])
	}
	if _, ok := lines[0]["attachments"]; ok {
		t.Error("attachments should be omitted when empty")
	}
	if atts, ok := lines[2]["attachments"].([]interface{}); !ok || len(atts) != 2 {
		t.Errorf("attachments = %v", lines[2]["attachments"])
	}
}

func TestJSONLExporter_Empty(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTranscript(internal.CreateTestConversation("c1", "x", "u1"), "u1", nil, nil, nil)
	if err := (&JSONLExporter{}).Export(tr, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("empty transcript wrote %q", buf.String())
	}
}

func TestJSONExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONExporter{}).Export(testTranscript(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var got Transcript
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if got.ConversationID != "c1" || len(got.Messages) != 3 {
		t.Errorf("decoded transcript = %+v", got)
	}
	if !strings.Contains(buf.String(), "\n  \"title\"") {
		t.Error("JSON output should be indented")
	}
}

func TestYAMLExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := (&YAMLExporter{}).Export(testTranscript(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var got Transcript
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if got.Title != "Ayşe" || len(got.Messages) != 3 {
		t.Errorf("decoded transcript = %+v", got)
	}
	if !got.Messages[0].Timestamp.Equal(start) {
		t.Errorf("timestamp = %v", got.Messages[0].Timestamp)
	}
	if !strings.Contains(buf.String(), "conversation_id: c1") {
		t.Errorf("YAML output missing conversation id:\n%s", buf.String())
	}
}

func TestMarkdownExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := (&MarkdownExporter{}).Export(testTranscript(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"# Ayşe",
		"**Participants:** Kerem, Ayşe",
		"**Messages:** 3",
		"## Sunday, March 10, 2024",
		"## Monday, March 11, 2024",
		"**Kerem** (23:58)",
		"**Ayşe** (23:59)",
		`\*\*bold\*\* and`,
		`\# heading`,
		"![photo one.png](https://chat.example.com/api/files/pbc_messages/m3/photo%20one.png)",
		"[notes.pdf](https://chat.example.com/api/files/pbc_messages/m3/notes.pdf)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Markdown output missing %q\n%s", want, out)
		}
	}
	if strings.Count(out, "\n## ") != 2 {
		t.Errorf("expected two day headings:\n%s", out)
	}
}

func TestMarkdownExporter_Location(t *testing.T) {
	var buf bytes.Buffer
	e := &MarkdownExporter{Location: time.FixedZone("UTC+3", 3*3600)}
	if err := e.Export(testTranscript(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "## Monday, March 11, 2024") || strings.Contains(out, "## Sunday") {
		t.Errorf("all messages fall on March 11 in UTC+3:\n%s", out)
	}
	if !strings.Contains(out, "(02:58)") {
		t.Errorf("times should be rendered in the location:\n%s", out)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"**x**", `\*\*x\*\*`},
		{"__y__", `\_\_y\_\_`},
		{"# not a heading", `\# not a heading`},
		{"```\n**kept**\n```", "```\n**kept**\n```"},
	}
	for _, tt := range tests {
		if got := escapeMarkdown(tt.in); got != tt.want {
			t.Errorf("escapeMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
