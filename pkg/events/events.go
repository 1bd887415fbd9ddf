// Package events defines the payloads exchanged over the message queue.
package events

import "time"

// TranscriptTurn is one persisted message carried inside a transcript event.
type TranscriptTurn struct {
	MessageID string    `json:"messageId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// TranscriptEvent is published by the relay after a successful exchange so
// the background indexer can make the turns searchable. Publishing is
// best-effort; losing an event only delays search visibility.
type TranscriptEvent struct {
	ConversationID string           `json:"conversationId"`
	UserID         uint             `json:"userId"`
	AssistantRole  string           `json:"assistantRole"`
	Turns          []TranscriptTurn `json:"turns"`
}
