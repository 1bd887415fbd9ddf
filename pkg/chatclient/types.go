// Package chatclient is the client-side companion chat kit: a conversation
// store, a chat orchestrator and an auth session, all talking to the relay
// service over HTTP.
package chatclient

import (
	"context"
	"strings"
	"time"
)

// Senders as stored in a conversation transcript.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Connection is the tri-state connectivity indicator.
type Connection string

const (
	ConnectionConnected    Connection = "connected"
	ConnectionDisconnected Connection = "disconnected"
	ConnectionTesting      Connection = "testing"
)

// Assistant is the persona entry as listed by the server.
type Assistant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Conversation mirrors the server's conversation resource.
type Conversation struct {
	ID            string    `json:"id"`
	AssistantID   *string   `json:"assistantId"`
	Title         string    `json:"title"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// Message is one rendered chat bubble. Local messages carry ids with the
// "local-" prefix until the relay confirms them.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsLocal reports whether the message is an unconfirmed optimistic entry.
func (m Message) IsLocal() bool {
	return strings.HasPrefix(m.ID, localIDPrefix)
}

const localIDPrefix = "local-"

// RelayRequest is the relay call carried by the transport.
type RelayRequest struct {
	UserID         uint   `json:"userId"`
	Message        string `json:"message"`
	AssistantRole  string `json:"assistantRole,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// RelayResponse is the relay's success payload.
type RelayResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	AssistantRole  string `json:"assistantRole"`
	Mode           string `json:"mode"`
}

// Transport abstracts the server API the client kit depends on.
type Transport interface {
	Relay(ctx context.Context, req RelayRequest) (*RelayResponse, error)
	// MostRecent returns the newest conversation for the assistant with
	// its messages oldest-first, or (nil, nil, nil) when none exists.
	MostRecent(ctx context.Context, assistantID string) (*Conversation, []Message, error)
	// Messages returns one conversation's history oldest-first.
	Messages(ctx context.Context, conversationID string) (*Conversation, []Message, error)
}
