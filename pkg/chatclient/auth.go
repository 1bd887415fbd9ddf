package chatclient

import (
	"fmt"
	"sync"
)

// AuthStatus is the session's lifecycle state.
type AuthStatus string

const (
	AuthUnauthenticated AuthStatus = "unauthenticated"
	AuthAuthenticating  AuthStatus = "authenticating"
	AuthAuthenticated   AuthStatus = "authenticated"
	AuthError           AuthStatus = "error"
)

// AuthEvent drives the session state machine.
type AuthEvent string

const (
	EventLoginStarted   AuthEvent = "login_started"
	EventLoginSucceeded AuthEvent = "login_succeeded"
	EventLoginFailed    AuthEvent = "login_failed"
	EventLoggedOut      AuthEvent = "logged_out"
)

// Session holds the auth state and token for the client kit. All state
// changes go through Transition so the allowed moves live in one place.
type Session struct {
	mu sync.RWMutex

	status      AuthStatus
	userID      uint
	accessToken string
	lastError   string
}

// NewSession creates an unauthenticated session.
func NewSession() *Session {
	return &Session{status: AuthUnauthenticated}
}

// transitions maps (state, event) to the next state.
var transitions = map[AuthStatus]map[AuthEvent]AuthStatus{
	AuthUnauthenticated: {
		EventLoginStarted: AuthAuthenticating,
	},
	AuthAuthenticating: {
		EventLoginSucceeded: AuthAuthenticated,
		EventLoginFailed:    AuthError,
	},
	AuthAuthenticated: {
		EventLoggedOut: AuthUnauthenticated,
	},
	AuthError: {
		EventLoginStarted: AuthAuthenticating,
		EventLoggedOut:    AuthUnauthenticated,
	},
}

// Transition applies one event. Illegal moves are rejected with an error
// and leave the session untouched.
func (s *Session) Transition(event AuthEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := transitions[s.status][event]
	if !ok {
		return fmt.Errorf("auth event %q not allowed in state %q", event, s.status)
	}
	s.status = next
	if next == AuthUnauthenticated || next == AuthError {
		s.userID = 0
		s.accessToken = ""
	}
	return nil
}

// Authenticate records a successful login. Must follow EventLoginStarted.
func (s *Session) Authenticate(userID uint, accessToken string) error {
	if err := s.Transition(EventLoginSucceeded); err != nil {
		return err
	}
	s.mu.Lock()
	s.userID = userID
	s.accessToken = accessToken
	s.lastError = ""
	s.mu.Unlock()
	return nil
}

// Fail records a failed login attempt with its reason.
func (s *Session) Fail(reason string) error {
	if err := s.Transition(EventLoginFailed); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastError = reason
	s.mu.Unlock()
	return nil
}

// Status returns the current auth state.
func (s *Session) Status() AuthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// UserID returns the authenticated user id, or 0.
func (s *Session) UserID() uint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// AccessToken returns the bearer token, or an empty string.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// LastError returns the most recent login failure reason.
func (s *Session) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}
