package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Message senders.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Conversation corresponds to the 'conversations' table. A conversation
// belongs to exactly one user and one assistant for its lifetime; switching
// assistants always starts a new conversation. Rows are never deleted.
type Conversation struct {
	ID     string `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID uint   `gorm:"index;not null" json:"userId"`
	// AssistantID is NULL when the relay created the row on the fallback
	// path without a resolvable persona.
	AssistantID *string `gorm:"type:varchar(36);index" json:"assistantId"`
	Title       string  `gorm:"type:varchar(255)" json:"title"`
	// ThreadID is the durable LLM thread handle, set only on the
	// assistant-resource path.
	ThreadID      *string   `gorm:"type:varchar(100)" json:"threadId"`
	LastMessageAt time.Time `gorm:"index;not null" json:"lastMessageAt"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName specifies the database table for this model.
func (Conversation) TableName() string {
	return "conversations"
}

// MessageMeta is diagnostic metadata attached to a message, stored as JSON.
type MessageMeta struct {
	Model     string `json:"model,omitempty"`
	LatencyMS int64  `json:"latencyMs,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Value implements driver.Valuer so gorm can store the meta as JSON.
func (m MessageMeta) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *MessageMeta) Scan(value interface{}) error {
	if value == nil {
		*m = MessageMeta{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported meta column type %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Message corresponds to the 'messages' table. One turn in a conversation,
// immutable once written, ordered ascending by creation time for display.
type Message struct {
	ID             string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	ConversationID string      `gorm:"type:varchar(36);index;not null" json:"conversationId"`
	Sender         string      `gorm:"type:varchar(10);not null" json:"sender"`
	Content        string      `gorm:"type:text;not null" json:"content"`
	Meta           MessageMeta `gorm:"type:json" json:"meta"`
	CreatedAt      time.Time   `gorm:"index;not null" json:"createdAt"`
}

// TableName specifies the database table for this model.
func (Message) TableName() string {
	return "messages"
}
