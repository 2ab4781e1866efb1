package records

import (
	"errors"
	"testing"

	"github.com/iksnae/justchat/internal"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc", `"abc"`},
		{`a"b`, `"a\"b"`},
		{`a\b`, `"a\\b"`},
		{`\"`, `"\\\""`},
		{"", `""`},
	}
	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestConversationFilter(t *testing.T) {
	got, err := ConversationFilter("abc123")
	if err != nil {
		t.Fatalf("ConversationFilter() error = %v", err)
	}
	if got != `conversation = "abc123"` {
		t.Errorf("ConversationFilter() = %s", got)
	}

	for _, bad := range []string{"", `x" || conversation != "`, "a b", "id/../x"} {
		if _, err := ConversationFilter(bad); !errors.Is(err, internal.ErrValidationRejected) {
			t.Errorf("ConversationFilter(%q) error = %v, want validation error", bad, err)
		}
	}
}

func TestParticipantFilter(t *testing.T) {
	got, err := ParticipantFilter("user_1")
	if err != nil {
		t.Fatalf("ParticipantFilter() error = %v", err)
	}
	if got != `participants ~ "user_1"` {
		t.Errorf("ParticipantFilter() = %s", got)
	}
	if _, err := ParticipantFilter(`u" ~ "`); !errors.Is(err, internal.ErrValidationRejected) {
		t.Errorf("ParticipantFilter() injection error = %v", err)
	}
}
