package service

import (
	"errors"

	"graceway-go/internal/model"
	"graceway-go/internal/repository"
)

// ErrConversationNotOwned is returned when a user requests a conversation
// belonging to someone else.
var ErrConversationNotOwned = errors.New("conversation does not belong to user")

// ConversationService defines read access to a user's conversations. This is
// what the client-side store rebuilds itself from.
type ConversationService interface {
	ListConversations(userID uint, limit int) ([]model.Conversation, error)
	// MostRecent returns the latest conversation for the user/assistant
	// pair together with its messages oldest-first, or (nil, nil, nil)
	// when none exists yet.
	MostRecent(userID uint, assistantID string) (*model.Conversation, []model.Message, error)
	// GetMessages returns one conversation's full history oldest-first
	// after verifying ownership.
	GetMessages(userID uint, conversationID string) (*model.Conversation, []model.Message, error)
}

type conversationService struct {
	convRepo repository.ConversationRepository
}

// NewConversationService creates a new ConversationService.
func NewConversationService(convRepo repository.ConversationRepository) ConversationService {
	return &conversationService{convRepo: convRepo}
}

// ListConversations lists the user's conversations, newest activity first.
func (s *conversationService) ListConversations(userID uint, limit int) ([]model.Conversation, error) {
	return s.convRepo.FindByUser(userID, limit)
}

// MostRecent loads the newest conversation for the pair plus its messages.
func (s *conversationService) MostRecent(userID uint, assistantID string) (*model.Conversation, []model.Message, error) {
	conv, err := s.convRepo.FindMostRecent(userID, assistantID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	msgs, err := s.convRepo.FindMessages(conv.ID)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

// GetMessages loads one conversation's history after an ownership check.
func (s *conversationService) GetMessages(userID uint, conversationID string) (*model.Conversation, []model.Message, error) {
	conv, err := s.convRepo.FindByID(conversationID)
	if err != nil {
		return nil, nil, err
	}
	if conv.UserID != userID {
		return nil, nil, ErrConversationNotOwned
	}
	msgs, err := s.convRepo.FindMessages(conv.ID)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}
