package chatclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	relayResp *RelayResponse
	relayErr  error
	relayReqs []RelayRequest

	recentConv *Conversation
	recentMsgs []Message
	recentErr  error
}

func (t *fakeTransport) Relay(ctx context.Context, req RelayRequest) (*RelayResponse, error) {
	t.relayReqs = append(t.relayReqs, req)
	if t.relayErr != nil {
		return nil, t.relayErr
	}
	return t.relayResp, nil
}

func (t *fakeTransport) MostRecent(ctx context.Context, assistantID string) (*Conversation, []Message, error) {
	return t.recentConv, t.recentMsgs, t.recentErr
}

func (t *fakeTransport) Messages(ctx context.Context, conversationID string) (*Conversation, []Message, error) {
	return t.recentConv, t.recentMsgs, nil
}

func authedSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession()
	require.NoError(t, s.Transition(EventLoginStarted))
	require.NoError(t, s.Authenticate(1, "token"))
	return s
}

func newOrchestrator(t *testing.T, transport *fakeTransport) *Orchestrator {
	t.Helper()
	store := NewStore(transport)
	return NewOrchestrator(store, transport, authedSession(t))
}

func TestSelectAssistantSynthesizesGreeting(t *testing.T) {
	transport := &fakeTransport{}
	o := newOrchestrator(t, transport)

	err := o.SelectAssistant(context.Background(), Assistant{ID: "a-1", Role: "coach"})
	require.NoError(t, err)

	msgs := o.store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, SenderAssistant, msgs[0].Sender)
	assert.True(t, msgs[0].IsLocal(), "greeting must not look persisted")
	assert.Equal(t, greetingsByRole["coach"], msgs[0].Content)
}

func TestSelectAssistantLoadsExistingConversation(t *testing.T) {
	now := time.Now()
	transport := &fakeTransport{
		recentConv: &Conversation{ID: "c-1"},
		recentMsgs: []Message{
			{ID: "m-2", Sender: SenderAssistant, Content: "later", CreatedAt: now},
			{ID: "m-1", Sender: SenderUser, Content: "earlier", CreatedAt: now.Add(-time.Minute)},
		},
	}
	o := newOrchestrator(t, transport)

	require.NoError(t, o.SelectAssistant(context.Background(), Assistant{ID: "a-1", Role: "coach"}))

	msgs := o.store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "earlier", msgs[0].Content, "messages must sort ascending")
	assert.Equal(t, "c-1", o.store.ConversationID())
}

func TestSendMessageSuccess(t *testing.T) {
	transport := &fakeTransport{relayResp: &RelayResponse{
		Success:        true,
		Message:        "Peace be with you.",
		ConversationID: "c-9",
		Mode:           "fallback",
	}}
	o := newOrchestrator(t, transport)
	require.NoError(t, o.SelectAssistant(context.Background(), Assistant{ID: "a-1", Role: "coach"}))

	require.NoError(t, o.SendMessage(context.Background(), "  hello  "))

	require.Len(t, transport.relayReqs, 1)
	assert.Equal(t, "hello", transport.relayReqs[0].Message, "input must be trimmed")
	assert.Equal(t, uint(1), transport.relayReqs[0].UserID)

	assert.Equal(t, "c-9", o.store.ConversationID())
	assert.Equal(t, ConnectionConnected, o.Connection())

	msgs := o.store.Messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, "Peace be with you.", last.Content)
}

func TestSendMessageFailureKeepsOptimisticBubble(t *testing.T) {
	transport := &fakeTransport{
		recentConv: &Conversation{ID: "c-1"},
		recentMsgs: []Message{{ID: "m-1", Sender: SenderUser, Content: "earlier", CreatedAt: time.Now().Add(-time.Hour)}},
	}
	o := newOrchestrator(t, transport)
	require.NoError(t, o.SelectAssistant(context.Background(), Assistant{ID: "a-1", Role: "coach"}))

	transport.relayErr = errors.New("network unreachable")
	err := o.SendMessage(context.Background(), "are you there?")
	require.Error(t, err)

	msgs := o.store.Messages()
	require.Len(t, msgs, 3, "prior message, optimistic bubble and apology must all render")
	assert.Equal(t, "earlier", msgs[0].Content)
	assert.Equal(t, "are you there?", msgs[1].Content)
	assert.True(t, msgs[1].IsLocal())
	assert.Equal(t, apologyText, msgs[2].Content)
	assert.Equal(t, ConnectionDisconnected, o.Connection())
	assert.NotEmpty(t, o.store.LastError())
}

func TestSendMessagePreconditions(t *testing.T) {
	transport := &fakeTransport{relayResp: &RelayResponse{Success: true, Message: "ok"}}

	t.Run("empty text", func(t *testing.T) {
		o := newOrchestrator(t, transport)
		require.NoError(t, o.SelectAssistant(context.Background(), Assistant{ID: "a-1", Role: "coach"}))
		assert.ErrorIs(t, o.SendMessage(context.Background(), "   "), ErrEmptyMessage)
	})

	t.Run("no assistant", func(t *testing.T) {
		o := newOrchestrator(t, transport)
		assert.ErrorIs(t, o.SendMessage(context.Background(), "hi"), ErrNoAssistant)
	})

	t.Run("not authenticated", func(t *testing.T) {
		store := NewStore(transport)
		o := NewOrchestrator(store, transport, NewSession())
		require.NoError(t, o.SelectAssistant(context.Background(), Assistant{ID: "a-1", Role: "coach"}))
		assert.ErrorIs(t, o.SendMessage(context.Background(), "hi"), ErrNotAuthenticated)
	})
}

// gatedTransport blocks inside Relay until released so a test can observe
// the in-flight state.
type gatedTransport struct {
	inner   *fakeTransport
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (t *gatedTransport) Relay(ctx context.Context, req RelayRequest) (*RelayResponse, error) {
	t.once.Do(func() { close(t.started) })
	<-t.release
	return t.inner.Relay(ctx, req)
}

func (t *gatedTransport) MostRecent(ctx context.Context, assistantID string) (*Conversation, []Message, error) {
	return t.inner.MostRecent(ctx, assistantID)
}

func (t *gatedTransport) Messages(ctx context.Context, conversationID string) (*Conversation, []Message, error) {
	return t.inner.Messages(ctx, conversationID)
}

func TestSendMessageSingleFlight(t *testing.T) {
	gated := &gatedTransport{
		inner:   &fakeTransport{relayResp: &RelayResponse{Success: true, Message: "ok"}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	store := NewStore(gated)
	o := NewOrchestrator(store, gated, authedSession(t))
	require.NoError(t, o.SelectAssistant(context.Background(), Assistant{ID: "a-1", Role: "coach"}))

	errCh := make(chan error, 1)
	go func() { errCh <- o.SendMessage(context.Background(), "first") }()
	<-gated.started

	assert.ErrorIs(t, o.SendMessage(context.Background(), "second"), ErrSendInFlight)

	close(gated.release)
	require.NoError(t, <-errCh)

	// Only the first send reached the relay.
	require.Len(t, gated.inner.relayReqs, 1)
	assert.Equal(t, "first", gated.inner.relayReqs[0].Message)
}

func TestTestConnection(t *testing.T) {
	transport := &fakeTransport{relayResp: &RelayResponse{Success: true, Message: "Hi there"}}
	o := newOrchestrator(t, transport)

	assert.Equal(t, ConnectionConnected, o.TestConnection(context.Background()))
	require.Len(t, transport.relayReqs, 1)
	assert.Equal(t, "Hello", transport.relayReqs[0].Message)

	transport.relayErr = errors.New("down")
	assert.Equal(t, ConnectionDisconnected, o.TestConnection(context.Background()))
}

func TestStoreReset(t *testing.T) {
	transport := &fakeTransport{
		recentConv: &Conversation{ID: "c-1"},
		recentMsgs: []Message{{ID: "m-1", Sender: SenderUser, Content: "hi", CreatedAt: time.Now()}},
	}
	store := NewStore(transport)
	require.NoError(t, store.LoadMostRecent(context.Background(), "a-1"))
	require.NotNil(t, store.Conversation())

	store.Reset()
	assert.Nil(t, store.Conversation())
	assert.Empty(t, store.Messages())
	assert.False(t, store.Loading())
	assert.Empty(t, store.LastError())
}

func TestAuthStateMachine(t *testing.T) {
	s := NewSession()
	assert.Equal(t, AuthUnauthenticated, s.Status())

	// Success cannot come before a started login.
	assert.Error(t, s.Transition(EventLoginSucceeded))

	require.NoError(t, s.Transition(EventLoginStarted))
	assert.Equal(t, AuthAuthenticating, s.Status())

	require.NoError(t, s.Authenticate(42, "tok"))
	assert.Equal(t, AuthAuthenticated, s.Status())
	assert.Equal(t, uint(42), s.UserID())
	assert.Equal(t, "tok", s.AccessToken())

	require.NoError(t, s.Transition(EventLoggedOut))
	assert.Equal(t, AuthUnauthenticated, s.Status())
	assert.Zero(t, s.UserID())
	assert.Empty(t, s.AccessToken())

	// Failed login lands in the error state and can restart.
	require.NoError(t, s.Transition(EventLoginStarted))
	require.NoError(t, s.Fail("bad credentials"))
	assert.Equal(t, AuthError, s.Status())
	assert.Equal(t, "bad credentials", s.LastError())
	require.NoError(t, s.Transition(EventLoginStarted))
}
