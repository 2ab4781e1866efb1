package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// JSONLExporter exports transcripts in JSONL format (one message per line)
type JSONLExporter struct{}

// Export exports a transcript to JSONL format
func (e *JSONLExporter) Export(t *Transcript, w io.Writer) error {
	enc := json.NewEncoder(w)

	for _, msg := range t.Messages {
		obj := map[string]interface{}{
			"id":           msg.ID,
			"conversation": t.ConversationID,
			"sender":       msg.Sender,
			"sender_id":    msg.SenderID,
			"content":      msg.Content,
			"timestamp":    msg.Timestamp.UTC().Format(time.RFC3339),
		}
		if len(msg.Attachments) > 0 {
			obj["attachments"] = msg.Attachments
		}

		if err := enc.Encode(obj); err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
