package internal

// DistinctSenders returns the sender ids of msgs in first-seen order
func DistinctSenders(msgs []Message) []string {
	seen := make(map[string]bool)
	var senders []string
	for _, m := range msgs {
		if m.SenderID == "" || seen[m.SenderID] {
			continue
		}
		seen[m.SenderID] = true
		senders = append(senders, m.SenderID)
	}
	return senders
}

// DedupConversations drops repeated conversation ids, keeping the first.
// Paged listings can repeat a record when the data shifts between pages.
func DedupConversations(convs []Conversation) []Conversation {
	seen := make(map[string]bool)
	unique := make([]Conversation, 0, len(convs))
	for _, c := range convs {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		unique = append(unique, c)
	}
	return unique
}

// DedupIDs removes empty and repeated ids, keeping the first occurrence
func DedupIDs(ids []string) []string {
	seen := make(map[string]bool)
	var unique []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return unique
}
