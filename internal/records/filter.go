package records

import (
	"strings"

	"github.com/iksnae/justchat/internal"
)

// Quote renders s as a filter string literal
func Quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// Eq builds `field = "value"`
func Eq(field, value string) string {
	return field + " = " + Quote(value)
}

// Contains builds `field ~ "value"`, which matches an element of a
// multi-value relation
func Contains(field, value string) string {
	return field + " ~ " + Quote(value)
}

// ConversationFilter selects the messages of one conversation
func ConversationFilter(conversationID string) (string, error) {
	if err := internal.ValidateRecordID(conversationID); err != nil {
		return "", err
	}
	return Eq("conversation", conversationID), nil
}

// ParticipantFilter selects the conversations a user takes part in
func ParticipantFilter(userID string) (string, error) {
	if err := internal.ValidateRecordID(userID); err != nil {
		return "", err
	}
	return Contains("participants", userID), nil
}
