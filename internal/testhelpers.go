package internal

import (
	"fmt"
	"time"
)

// CreateTestMessage creates a message for tests
func CreateTestMessage(id, conversationID, senderID, content string, ts time.Time) Message {
	return Message{
		ID:             id,
		CollectionID:   "pbc_messages",
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Timestamp:      ts,
	}
}

// CreateTestMessages creates n messages one minute apart, alternating
// between two senders
func CreateTestMessages(conversationID string, n int, start time.Time) []Message {
	msgs := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		sender := "u1"
		if i%2 == 1 {
			sender = "u2"
		}
		msgs = append(msgs, CreateTestMessage(
			fmt.Sprintf("m%d", i+1), conversationID, sender,
			fmt.Sprintf("message %d", i+1), start.Add(time.Duration(i)*time.Minute),
		))
	}
	return msgs
}

// CreateTestConversation creates a conversation for tests
func CreateTestConversation(id, name string, participants ...string) Conversation {
	return Conversation{
		ID:           id,
		Name:         name,
		IsGroup:      len(participants) > 2,
		Participants: participants,
	}
}

// CreateTestUsers creates the users referenced by the other helpers
func CreateTestUsers() []User {
	return []User{
		{ID: "u1", Username: "kerem", Name: "Kerem"},
		{ID: "u2", Username: "ayse", Name: "Ayşe", Avatar: "ayse.png"},
	}
}
