package cmd

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/iksnae/justchat/testutil"
)

func seedConversation(env *testEnv) {
	env.fb.AddRecord("conversations", testutil.ConversationRecord("c1", "Team", true, "u1", "u2", "u3"))
	env.fb.AddRecord("messages", testutil.MessageRecord("m1", "c1", "u2", "first", day))
	env.fb.AddRecord("messages", testutil.MessageRecord("m2", "c1", "u1", "second", day.Add(time.Hour)))
	env.fb.AddRecord("messages", testutil.MessageRecord("m3", "c1", "u3", "next day", day.Add(26*time.Hour), "photo.png"))
	env.fb.AddRecord("messages", testutil.MessageRecord("x1", "c9", "u2", "elsewhere", day))
}

func TestShowCommand(t *testing.T) {
	env := newTestEnv(t)
	seedConversation(env)
	env.login(t)

	out, err := env.run(t, "", "show", "c1")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	assertContains(t, out, "Team", "3 message(s)", "Sun, Mar 10 2024", "Mon, Mar 11 2024",
		"Bob", "Alice", "Carol", "09:00", "photo.png", "/api/files/pbc_messages/m3/photo.png")

	first, second, third := strings.Index(out, "first"), strings.Index(out, "second"), strings.Index(out, "next day")
	if !(first < second && second < third) {
		t.Errorf("messages out of order:\n%s", out)
	}
	if strings.Contains(out, "elsewhere") {
		t.Error("messages of other conversations must not be shown")
	}
}

func TestShowCommandLimit(t *testing.T) {
	env := newTestEnv(t)
	seedConversation(env)
	env.login(t)

	out, err := env.run(t, "", "show", "c1", "--limit", "1")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	assertContains(t, out, "next day")
	if strings.Contains(out, "first") || strings.Contains(out, "second") {
		t.Errorf("--limit 1 should only show the newest message:\n%s", out)
	}
}

func TestShowCommandErrors(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	if _, err := env.run(t, "", "show", "missing"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("show missing error = %v", err)
	}
	env.fb.AddRecord("conversations", testutil.ConversationRecord("c8", "Private", true, "u2", "u3"))
	if _, err := env.run(t, "", "show", "c8"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("show of a conversation without the user error = %v", err)
	}
	if _, err := env.run(t, "", "show", `c1" || 1=1`); err == nil {
		t.Error("show with a malformed id should fail")
	}
	if _, err := env.run(t, "", "show"); err == nil {
		t.Error("show without an id should fail")
	}
}

func TestShowCommandOffline(t *testing.T) {
	env := newTestEnv(t)
	seedConversation(env)
	env.login(t)

	if _, err := env.run(t, "", "list"); err != nil {
		t.Fatalf("list error = %v", err)
	}
	if _, err := env.run(t, "", "show", "c1"); err != nil {
		t.Fatalf("show error = %v", err)
	}

	env.fb.FailWith(http.StatusBadGateway, "")
	out, err := env.run(t, "", "show", "c1")
	if err != nil {
		t.Fatalf("show with backend down error = %v", err)
	}
	assertContains(t, out, "Offline", "Team", "first", "next day")
}

func TestShowCommandEmpty(t *testing.T) {
	env := newTestEnv(t)
	env.fb.AddRecord("conversations", testutil.ConversationRecord("c1", "", false, "u1", "u2"))
	env.login(t)

	out, err := env.run(t, "", "show", "c1")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	assertContains(t, out, "Bob", "No messages yet")
	if strings.Contains(out, "💬 u2") {
		t.Errorf("direct title should use the participant name:\n%s", out)
	}
}

func TestShowCommandSparseHistory(t *testing.T) {
	env := newTestEnv(t)
	env.fb.AddRecord("conversations", testutil.ConversationRecord("c1", "", false, "u1", "u3"))
	env.fb.AddRecord("messages", testutil.MessageRecord("m1", "c1", "u1", "anyone there?", day))
	env.login(t)

	out, err := env.run(t, "", "show", "c1")
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	assertContains(t, out, "💬 Carol", "anyone there?")
}
