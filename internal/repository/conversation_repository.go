package repository

import (
	"time"

	"graceway-go/internal/model"

	"gorm.io/gorm"
)

// ConversationRepository defines persistence operations for conversations
// and their messages. Each statement is independent; multi-step flows in the
// service layer must tolerate partial completion.
type ConversationRepository interface {
	Create(conv *model.Conversation) error
	FindByID(id string) (*model.Conversation, error)
	// FindMostRecent returns the newest conversation (by last message) for
	// the user/assistant pair, or gorm.ErrRecordNotFound.
	FindMostRecent(userID uint, assistantID string) (*model.Conversation, error)
	FindByUser(userID uint, limit int) ([]model.Conversation, error)
	AttachThread(conversationID, threadID string) error
	// TouchLastMessage bumps last_message_at, but never backwards: the
	// update is conditional on the stored value not being newer.
	TouchLastMessage(conversationID string, at time.Time) error

	CreateMessage(msg *model.Message) error
	FindMessages(conversationID string) ([]model.Message, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// Create inserts a new conversation row.
func (r *conversationRepository) Create(conv *model.Conversation) error {
	return r.db.Create(conv).Error
}

// FindByID looks up a conversation by primary key.
func (r *conversationRepository) FindByID(id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.Where("id = ?", id).First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindMostRecent returns the user/assistant pair's latest conversation.
func (r *conversationRepository) FindMostRecent(userID uint, assistantID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.Where("user_id = ? AND assistant_id = ?", userID, assistantID).
		Order("last_message_at DESC").
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindByUser lists the user's conversations, newest activity first.
func (r *conversationRepository) FindByUser(userID uint, limit int) ([]model.Conversation, error) {
	var convs []model.Conversation
	query := r.db.Where("user_id = ?", userID).Order("last_message_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&convs).Error
	return convs, err
}

// AttachThread stores the durable LLM thread handle on the conversation.
func (r *conversationRepository) AttachThread(conversationID, threadID string) error {
	return r.db.Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Update("thread_id", threadID).Error
}

// TouchLastMessage conditionally advances last_message_at so concurrent
// turns never move it backwards.
func (r *conversationRepository) TouchLastMessage(conversationID string, at time.Time) error {
	return r.db.Model(&model.Conversation{}).
		Where("id = ? AND last_message_at <= ?", conversationID, at).
		Update("last_message_at", at).Error
}

// CreateMessage inserts one immutable message row.
func (r *conversationRepository) CreateMessage(msg *model.Message) error {
	return r.db.Create(msg).Error
}

// FindMessages returns a conversation's messages oldest-first.
func (r *conversationRepository) FindMessages(conversationID string) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&msgs).Error
	return msgs, err
}
