package chatclient

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// Timeouts for network calls. Sends may legitimately take a while because
// the relay polls an assistant run; lighter queries fail faster.
const (
	sendTimeout  = 30 * time.Second
	queryTimeout = 8 * time.Second
)

var (
	// ErrNoAssistant is returned when no assistant has been selected yet.
	ErrNoAssistant = errors.New("no assistant selected")
	// ErrNotAuthenticated is returned when the session holds no user.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrSendInFlight is returned when a send is already running.
	ErrSendInFlight = errors.New("a send is already in flight")
)

// apologyText is rendered in-thread when a send fails.
const apologyText = "I'm sorry, I couldn't respond just now. Please try sending that again."

// greetingsByRole seeds an empty chat pane per companion role.
var greetingsByRole = map[string]string{
	"dad":           "Hey, good to see you. What's on your mind today?",
	"mom":           "Hi sweetheart, I'm here. How are you really doing?",
	"coach":         "Good to see you. What would you like to work on today?",
	"church_leader": "Welcome. What's been weighing on your heart lately?",
}

const defaultGreeting = "Hello! I'm here whenever you're ready to talk."

// Orchestrator translates user intent into store and relay calls, with
// optimistic updates and a connectivity self-test.
type Orchestrator struct {
	store     *Store
	transport Transport
	session   *Session

	mu         sync.Mutex
	assistant  *Assistant
	sending    bool
	connection Connection
}

// NewOrchestrator creates an Orchestrator around the store, transport and
// auth session.
func NewOrchestrator(store *Store, transport Transport, session *Session) *Orchestrator {
	return &Orchestrator{
		store:      store,
		transport:  transport,
		session:    session,
		connection: ConnectionConnected,
	}
}

// SelectAssistant switches the active companion: reset the store, load the
// most recent conversation for the pair, and synthesize a local greeting
// when there is none so the chat pane is never empty.
func (o *Orchestrator) SelectAssistant(ctx context.Context, assistant Assistant) error {
	o.mu.Lock()
	o.assistant = &assistant
	o.mu.Unlock()

	o.store.Reset()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := o.store.LoadMostRecent(ctx, assistant.ID); err != nil {
		return err
	}

	if len(o.store.Messages()) == 0 {
		greeting, ok := greetingsByRole[assistant.Role]
		if !ok {
			greeting = defaultGreeting
		}
		o.store.Append(Message{
			ID:        NewLocalID(),
			Sender:    SenderAssistant,
			Content:   greeting,
			CreatedAt: time.Now(),
		})
	}
	return nil
}

// SendMessage sends one user message through the relay with an optimistic
// local append. A failure leaves every previously rendered message intact,
// adds an in-thread apology and flips the connection indicator; nothing is
// retried automatically.
func (o *Orchestrator) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	o.mu.Lock()
	if o.assistant == nil {
		o.mu.Unlock()
		return ErrNoAssistant
	}
	if o.sending {
		o.mu.Unlock()
		return ErrSendInFlight
	}
	userID := o.session.UserID()
	if userID == 0 {
		o.mu.Unlock()
		return ErrNotAuthenticated
	}
	// Single-flight: at most one send is in progress at a time.
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	o.sending = true
	role := o.assistant.Role
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		o.sending = false
		o.mu.Unlock()
	}()

	o.store.Append(Message{
		ID:        NewLocalID(),
		Sender:    SenderUser,
		Content:   text,
		CreatedAt: time.Now(),
	})
	o.store.setTyping(true)
	defer o.store.setTyping(false)

	resp, err := o.transport.Relay(sendCtx, RelayRequest{
		UserID:         userID,
		Message:        text,
		AssistantRole:  role,
		ConversationID: o.store.ConversationID(),
	})
	if err != nil {
		o.store.setError(err.Error())
		o.store.Append(Message{
			ID:        NewLocalID(),
			Sender:    SenderAssistant,
			Content:   apologyText,
			CreatedAt: time.Now(),
		})
		o.setConnection(ConnectionDisconnected)
		return err
	}

	if resp.ConversationID != "" {
		o.store.AdoptConversation(resp.ConversationID)
	}
	o.store.Append(Message{
		ID:        NewLocalID(),
		Sender:    SenderAssistant,
		Content:   resp.Message,
		CreatedAt: time.Now(),
	})
	o.setConnection(ConnectionConnected)
	return nil
}

// TestConnection sends a minimal message through the same relay path real
// sends use, purely to flip the connection indicator.
func (o *Orchestrator) TestConnection(ctx context.Context) Connection {
	o.setConnection(ConnectionTesting)

	userID := o.session.UserID()
	if userID == 0 {
		o.setConnection(ConnectionDisconnected)
		return ConnectionDisconnected
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := o.transport.Relay(ctx, RelayRequest{UserID: userID, Message: "Hello"})
	if err != nil {
		o.setConnection(ConnectionDisconnected)
		return ConnectionDisconnected
	}
	o.setConnection(ConnectionConnected)
	return ConnectionConnected
}

// Connection returns the current connectivity indicator.
func (o *Orchestrator) Connection() Connection {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.connection
}

// Assistant returns the selected companion, or nil.
func (o *Orchestrator) Assistant() *Assistant {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.assistant
}

func (o *Orchestrator) setConnection(c Connection) {
	o.mu.Lock()
	o.connection = c
	o.mu.Unlock()
}
