package chatclient

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Store holds exactly the conversation currently being viewed: the active
// conversation row, its messages sorted ascending by creation time, and the
// UI status flags.
type Store struct {
	mu sync.RWMutex

	transport Transport

	conversation *Conversation
	messages     []Message
	loading      bool
	typing       bool
	lastError    string
}

// NewStore creates an empty Store backed by the transport.
func NewStore(transport Transport) *Store {
	return &Store{transport: transport}
}

// LoadMostRecent replaces the store contents with the newest conversation
// for the assistant. When none exists the message list stays empty and the
// caller synthesizes a greeting.
func (s *Store) LoadMostRecent(ctx context.Context, assistantID string) error {
	s.setLoading(true)
	defer s.setLoading(false)

	conv, messages, err := s.transport.MostRecent(ctx, assistantID)
	if err != nil {
		s.setError(err.Error())
		return err
	}

	s.mu.Lock()
	s.conversation = conv
	s.messages = sortedAscending(messages)
	s.lastError = ""
	s.mu.Unlock()
	return nil
}

// LoadByID replaces the store contents with a specific conversation picked
// from history.
func (s *Store) LoadByID(ctx context.Context, conversationID string) error {
	s.setLoading(true)
	defer s.setLoading(false)

	conv, messages, err := s.transport.Messages(ctx, conversationID)
	if err != nil {
		s.setError(err.Error())
		return err
	}

	s.mu.Lock()
	s.conversation = conv
	s.messages = sortedAscending(messages)
	s.lastError = ""
	s.mu.Unlock()
	return nil
}

// Reset clears the conversation, messages and every status flag.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = nil
	s.messages = nil
	s.loading = false
	s.typing = false
	s.lastError = ""
}

// Append adds one message keeping the ascending order invariant.
func (s *Store) Append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.messages = sortedAscending(s.messages)
}

// AdoptConversation records the conversation id the relay created.
func (s *Store) AdoptConversation(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversation == nil {
		s.conversation = &Conversation{ID: conversationID}
		return
	}
	if s.conversation.ID == "" {
		s.conversation.ID = conversationID
	}
}

// Conversation returns the active conversation, or nil.
func (s *Store) Conversation() *Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversation
}

// ConversationID returns the active conversation id, or an empty string.
func (s *Store) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conversation == nil {
		return ""
	}
	return s.conversation.ID
}

// Messages returns a copy of the rendered messages, oldest first.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Loading reports whether a load is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Typing reports whether the assistant indicator should animate.
func (s *Store) Typing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.typing
}

// LastError returns the most recent load or send failure, or "".
func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func (s *Store) setTyping(v bool) {
	s.mu.Lock()
	s.typing = v
	s.mu.Unlock()
}

func (s *Store) setError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

// NewLocalID returns a client-generated message id, distinguishable from
// persisted ids so optimistic entries can be reconciled later.
func NewLocalID() string {
	return localIDPrefix + uuid.NewString()
}

func sortedAscending(messages []Message) []Message {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages
}
