package internal

import (
	"sort"
	"strings"
)

// NewConversation is a validated request to create a conversation
type NewConversation struct {
	Name         string
	Participants []string
	IsGroup      bool
}

// PrepareConversation validates a create request and returns it with the
// creator included in the participant set
func PrepareConversation(creatorID, name string, selected []string, isGroup bool) (NewConversation, error) {
	if creatorID == "" {
		return NewConversation{}, &ValidationError{Field: "creator", Reason: "not logged in"}
	}
	participants := DedupIDs(append([]string{creatorID}, selected...))
	others := len(participants) - 1

	name = strings.TrimSpace(name)
	switch {
	case others < 1:
		return NewConversation{}, &ValidationError{Field: "participants", Reason: "select at least one participant"}
	case isGroup && name == "":
		return NewConversation{}, &ValidationError{Field: "name", Reason: "group name required"}
	case !isGroup && others > 1:
		return NewConversation{}, &ValidationError{Field: "participants", Reason: "a direct conversation has exactly one other participant"}
	}

	return NewConversation{Name: name, Participants: participants, IsGroup: isGroup}, nil
}

// ConversationTitle returns the label shown for a conversation. Direct
// conversations are named after the other participant.
func ConversationTitle(c Conversation, selfID string, dir *UserDirectory) string {
	if c.IsGroup {
		if c.Name != "" {
			return c.Name
		}
		return "Group " + c.ID
	}
	for _, p := range c.Participants {
		if p != selfID {
			if dir != nil {
				return dir.DisplayName(p)
			}
			return p
		}
	}
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// SortConversations orders conversations by most recent update first
func SortConversations(convs []Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].Updated.After(convs[j].Updated)
	})
}
