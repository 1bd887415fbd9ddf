package model

import "time"

// EsMessageDoc is the document shape indexed into the transcript search
// index, one document per persisted message.
type EsMessageDoc struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	UserID         uint      `json:"user_id"`
	AssistantRole  string    `json:"assistant_role"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
