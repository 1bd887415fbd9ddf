// Package service contains the application's business logic layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"graceway-go/internal/config"
	"graceway-go/internal/model"
	"graceway-go/internal/repository"
	"graceway-go/pkg/events"
	"graceway-go/pkg/llm"
	"graceway-go/pkg/log"
	"graceway-go/pkg/retry"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Relay modes reported to the client.
const (
	ModeFallback  = "fallback"
	ModeAssistant = "assistant"
)

// ErrRunTimeout is returned when an assistant run does not reach a terminal
// completed state within the capped poll attempts.
var ErrRunTimeout = errors.New("assistant run did not complete in time")

// RelayRequest is one "user said X to companion role Y" invocation.
type RelayRequest struct {
	UserID         uint
	Message        string
	AssistantRole  string // optional; falls back to the stored preference
	ConversationID string // optional; omitted requests creation
}

// RelayResult is the relay's reply to the client.
type RelayResult struct {
	Message        string
	ConversationID string
	AssistantRole  string
	Mode           string
}

// RelayService is the single source-of-truth state transition for a chat
// turn: resolve persona, resolve or create the conversation, obtain a reply,
// persist the transcript, return the reply.
type RelayService interface {
	Relay(ctx context.Context, req RelayRequest) (*RelayResult, error)
}

// TranscriptPublisher publishes a transcript event after a persisted
// exchange. Publishing is best-effort.
type TranscriptPublisher func(event events.TranscriptEvent) error

type relayService struct {
	assistantRepo repository.AssistantRepository
	convRepo      repository.ConversationRepository
	userRepo      repository.UserRepository
	prefRepo      repository.PreferenceRepository
	llmClient     llm.Client
	assistants    llm.AssistantsClient
	publish       TranscriptPublisher

	defaultRole  string
	pollAttempts int
	pollInterval time.Duration
	historyTurns int
}

// NewRelayService creates a RelayService. publish may be nil when no event
// pipeline is wired (tests).
func NewRelayService(
	assistantRepo repository.AssistantRepository,
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	prefRepo repository.PreferenceRepository,
	llmClient llm.Client,
	assistants llm.AssistantsClient,
	publish TranscriptPublisher,
	cfg config.RelayConfig,
) RelayService {
	return newRelayService(assistantRepo, convRepo, userRepo, prefRepo, llmClient, assistants, publish, cfg)
}

func newRelayService(
	assistantRepo repository.AssistantRepository,
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	prefRepo repository.PreferenceRepository,
	llmClient llm.Client,
	assistants llm.AssistantsClient,
	publish TranscriptPublisher,
	cfg config.RelayConfig,
) *relayService {
	s := &relayService{
		assistantRepo: assistantRepo,
		convRepo:      convRepo,
		userRepo:      userRepo,
		prefRepo:      prefRepo,
		llmClient:     llmClient,
		assistants:    assistants,
		publish:       publish,
		defaultRole:   cfg.DefaultRole,
		pollAttempts:  cfg.RunPollAttempts,
		pollInterval:  time.Duration(cfg.RunPollIntervalSeconds) * time.Second,
		historyTurns:  cfg.HistoryTurns,
	}
	if s.defaultRole == "" {
		s.defaultRole = model.RoleCoach
	}
	if s.pollAttempts <= 0 {
		s.pollAttempts = 30
	}
	if s.pollInterval <= 0 {
		s.pollInterval = time.Second
	}
	if s.historyTurns <= 0 {
		s.historyTurns = 20
	}
	return s
}

// persona is the resolved companion for one invocation: either backed by a
// provisioned assistant resource or a role-only fallback.
type persona struct {
	role      string
	assistant *model.Assistant // nil when resolution failed
}

func (p persona) resourceBacked() bool {
	return p.assistant != nil && p.assistant.OpenAIAssistantID != nil && *p.assistant.OpenAIAssistantID != ""
}

// Relay executes one chat turn.
func (s *relayService) Relay(ctx context.Context, req RelayRequest) (*RelayResult, error) {
	role := s.resolveRole(req)
	p := s.resolvePersona(req.UserID, role)

	if p.resourceBacked() {
		return s.relayAssistant(ctx, req, p)
	}
	return s.relayFallback(ctx, req, p)
}

// resolveRole picks the companion role: request, stored preference, default.
func (s *relayService) resolveRole(req RelayRequest) string {
	if model.IsCompanionRole(req.AssistantRole) {
		return req.AssistantRole
	}
	if pref, err := s.prefRepo.GetOrCreate(req.UserID); err == nil && model.IsCompanionRole(pref.PreferredRole) {
		return pref.PreferredRole
	}
	return s.defaultRole
}

// resolvePersona looks up the active persona row for the role, scoped to the
// user's organization. A failed resolution is not fatal: the relay degrades
// to the fallback path with the bare role.
func (s *relayService) resolvePersona(userID uint, role string) persona {
	orgTag := ""
	if user, err := s.userRepo.FindByID(userID); err == nil {
		orgTag = user.OrgTag
	}

	assistant, err := s.assistantRepo.FindActiveByRole(role, orgTag)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("persona resolution failed for role '%s': %v", role, err)
		}
		return persona{role: role}
	}
	return persona{role: role, assistant: assistant}
}

// relayFallback answers through the direct chat-completion API. Prior turns
// of the conversation are threaded in so the companion keeps short-term
// memory even without a provisioned assistant resource.
func (s *relayService) relayFallback(ctx context.Context, req RelayRequest, p persona) (*RelayResult, error) {
	conv := s.lookupConversation(req)

	messages := []llm.Message{{Role: "system", Content: s.buildSystemPrompt(req.UserID, p)}}
	if conv != nil {
		messages = append(messages, s.loadHistory(conv.ID)...)
	}
	messages = append(messages, llm.Message{Role: "user", Content: req.Message})

	userAt := time.Now()
	userTurnID := ""
	if conv != nil {
		userTurnID = s.writeTurn(conv.ID, model.SenderUser, req.Message, userAt, model.MessageMeta{})
	}

	start := time.Now()
	reply, err := s.llmClient.Complete(ctx, messages, nil)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	latency := time.Since(start)

	if conv == nil {
		conv = s.createConversation(req, p, userAt)
	}
	if conv == nil {
		// Conversation creation failed; the reply is still returned.
		return &RelayResult{Message: reply, AssistantRole: p.role, Mode: ModeFallback}, nil
	}

	s.persistExchange(conv, p, req.Message, reply, userAt, userTurnID, model.MessageMeta{
		Model:     config.Conf.LLM.Model,
		LatencyMS: latency.Milliseconds(),
		Fallback:  true,
	})

	return &RelayResult{
		Message:        reply,
		ConversationID: conv.ID,
		AssistantRole:  p.role,
		Mode:           ModeFallback,
	}, nil
}

// relayAssistant answers through the provisioned assistant resource: reuse
// or create the durable thread, post the message, poll the run to
// completion, read back the reply.
func (s *relayService) relayAssistant(ctx context.Context, req RelayRequest, p persona) (*RelayResult, error) {
	conv := s.lookupConversation(req)
	userAt := time.Now()
	if conv == nil {
		conv = s.createConversation(req, p, userAt)
		if conv == nil {
			return nil, errors.New("failed to create conversation")
		}
	}

	threadID := ""
	if conv.ThreadID != nil {
		threadID = *conv.ThreadID
	}
	if threadID == "" {
		created, err := s.assistants.CreateThread(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create thread: %w", err)
		}
		threadID = created
		if err := s.convRepo.AttachThread(conv.ID, threadID); err != nil {
			// The thread still works for this turn; the next one will
			// create a fresh thread.
			log.Errorf("failed to attach thread to conversation %s: %v", conv.ID, err)
		}
	}

	userTurnID := s.writeTurn(conv.ID, model.SenderUser, req.Message, userAt, model.MessageMeta{})

	if err := s.assistants.CreateMessage(ctx, threadID, req.Message); err != nil {
		return nil, fmt.Errorf("failed to post message to thread: %w", err)
	}

	runID, err := s.assistants.CreateRun(ctx, threadID, *p.assistant.OpenAIAssistantID)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	start := time.Now()
	err = retry.Poll(ctx, s.pollAttempts, s.pollInterval, func(ctx context.Context) (bool, error) {
		status, err := s.assistants.GetRunStatus(ctx, threadID, runID)
		if err != nil {
			return false, err
		}
		switch status {
		case llm.RunStatusCompleted:
			return true, nil
		case llm.RunStatusFailed, llm.RunStatusCancelled, llm.RunStatusExpired:
			return false, fmt.Errorf("run ended with status: %s", status)
		default:
			return false, nil
		}
	})
	if err != nil {
		if errors.Is(err, retry.ErrAttemptsExhausted) {
			return nil, ErrRunTimeout
		}
		return nil, fmt.Errorf("run polling failed: %w", err)
	}
	latency := time.Since(start)

	reply, err := s.assistants.LatestAssistantMessage(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to read assistant reply: %w", err)
	}

	s.persistExchange(conv, p, req.Message, reply, userAt, userTurnID, model.MessageMeta{
		Model:     config.Conf.LLM.Model,
		LatencyMS: latency.Milliseconds(),
	})

	return &RelayResult{
		Message:        reply,
		ConversationID: conv.ID,
		AssistantRole:  p.role,
		Mode:           ModeAssistant,
	}, nil
}

// lookupConversation resolves a supplied conversation id when it exists and
// belongs to the requesting user; anything else means "create a new one".
func (s *relayService) lookupConversation(req RelayRequest) *model.Conversation {
	if req.ConversationID == "" {
		return nil
	}
	conv, err := s.convRepo.FindByID(req.ConversationID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("conversation lookup failed for %s: %v", req.ConversationID, err)
		}
		return nil
	}
	if conv.UserID != req.UserID {
		log.Warnf("conversation %s does not belong to user %d, creating a new one", req.ConversationID, req.UserID)
		return nil
	}
	return conv
}

// createConversation inserts a new conversation row. Returns nil on failure;
// callers treat that as a persistence error, never as a reason to drop the
// generated reply.
func (s *relayService) createConversation(req RelayRequest, p persona, at time.Time) *model.Conversation {
	conv := &model.Conversation{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		Title:         conversationTitle(req.Message),
		LastMessageAt: at,
	}
	if p.assistant != nil {
		id := p.assistant.ID
		conv.AssistantID = &id
	}
	if err := s.convRepo.Create(conv); err != nil {
		log.Errorf("failed to create conversation for user %d: %v", req.UserID, err)
		return nil
	}
	return conv
}

// writeTurn persists one message row, best-effort. Returns the message id,
// or an empty string when the write failed.
func (s *relayService) writeTurn(conversationID, sender, content string, at time.Time, meta model.MessageMeta) string {
	msg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		Meta:           meta,
		CreatedAt:      at,
	}
	if err := s.convRepo.CreateMessage(msg); err != nil {
		log.Errorf("failed to persist %s turn for conversation %s: %v", sender, conversationID, err)
		return ""
	}
	return msg.ID
}

// persistExchange stores the transcript of a completed turn and publishes
// the indexing event. Every step is best-effort: the caller has already
// secured the reply text and a storage failure must not take it away.
func (s *relayService) persistExchange(conv *model.Conversation, p persona, userText, reply string, userAt time.Time, userTurnID string, meta model.MessageMeta) {
	if userTurnID == "" {
		userTurnID = s.writeTurn(conv.ID, model.SenderUser, userText, userAt, model.MessageMeta{})
	}

	assistantAt := time.Now()
	if !assistantAt.After(userAt) {
		assistantAt = userAt.Add(time.Millisecond)
	}
	assistantTurnID := s.writeTurn(conv.ID, model.SenderAssistant, reply, assistantAt, meta)

	if err := s.convRepo.TouchLastMessage(conv.ID, assistantAt); err != nil {
		log.Errorf("failed to bump last message time for conversation %s: %v", conv.ID, err)
	}

	if s.publish == nil || (userTurnID == "" && assistantTurnID == "") {
		return
	}
	event := events.TranscriptEvent{
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		AssistantRole:  p.role,
	}
	if userTurnID != "" {
		event.Turns = append(event.Turns, events.TranscriptTurn{
			MessageID: userTurnID, Sender: model.SenderUser, Content: userText, CreatedAt: userAt,
		})
	}
	if assistantTurnID != "" {
		event.Turns = append(event.Turns, events.TranscriptTurn{
			MessageID: assistantTurnID, Sender: model.SenderAssistant, Content: reply, CreatedAt: assistantAt,
		})
	}
	if err := s.publish(event); err != nil {
		log.Errorf("failed to publish transcript event for conversation %s: %v", conv.ID, err)
	}
}

// loadHistory returns the most recent turns of the conversation as
// role-tagged chat messages, oldest first, capped at historyTurns.
func (s *relayService) loadHistory(conversationID string) []llm.Message {
	msgs, err := s.convRepo.FindMessages(conversationID)
	if err != nil {
		log.Errorf("failed to load history for conversation %s: %v", conversationID, err)
		return nil
	}
	if len(msgs) > s.historyTurns {
		msgs = msgs[len(msgs)-s.historyTurns:]
	}
	history := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Sender == model.SenderAssistant {
			role = "assistant"
		}
		history = append(history, llm.Message{Role: role, Content: m.Content})
	}
	return history
}

// rolePrompts is the fixed system-instruction table keyed by companion role.
var rolePrompts = map[string]string{
	model.RoleDad:         "You are a warm, steady father figure grounded in Christian faith. Listen first, encourage often, and offer practical wisdom without lecturing.",
	model.RoleMom:         "You are a caring, attentive mother figure grounded in Christian faith. Be nurturing and honest, and point gently back to scripture when it helps.",
	model.RoleSon:         "You are an earnest son figure: curious, respectful, and candid about the questions young men of faith wrestle with.",
	model.RoleDaughter:    "You are a thoughtful daughter figure: encouraging, open, and honest about the questions young women of faith wrestle with.",
	model.RoleCoach:       "You are an encouraging faith-centered life coach. Help the user set honest goals, celebrate progress, and stay rooted in grace rather than guilt.",
	model.RoleChurchLead:  "You are a seasoned church leader. Offer pastoral counsel with humility, cite scripture carefully, and know when to recommend talking to a local pastor.",
	model.RoleSingleMan:   "You are a single Christian man walking alongside the user as a peer. Speak plainly about faith, purpose, work, and relationships.",
	model.RoleSingleWoman: "You are a single Christian woman walking alongside the user as a peer. Speak plainly about faith, purpose, work, and relationships.",
}

// buildSystemPrompt composes the fallback system instruction from the role
// table plus the user's context toggles.
func (s *relayService) buildSystemPrompt(userID uint, p persona) string {
	prompt, ok := rolePrompts[p.role]
	if !ok {
		prompt = rolePrompts[model.RoleCoach]
	}

	var sb strings.Builder
	sb.WriteString(prompt)
	if p.assistant != nil && p.assistant.Description != "" {
		sb.WriteString("\n\n")
		sb.WriteString(p.assistant.Description)
	}

	if pref, err := s.prefRepo.GetOrCreate(userID); err == nil {
		var contexts []string
		if pref.IncludeDevotions {
			contexts = append(contexts, "their current devotional reading")
		}
		if pref.IncludeJournal {
			contexts = append(contexts, "their recent journal entries")
		}
		if pref.IncludeFitness {
			contexts = append(contexts, "their fitness progress")
		}
		if len(contexts) > 0 {
			sb.WriteString("\n\nWhen the user brings it up, you may reference ")
			sb.WriteString(strings.Join(contexts, ", "))
			sb.WriteString(".")
		}
	}
	return sb.String()
}

// conversationTitle derives a short title from the first message. The cut
// is made on a rune boundary so multibyte input never yields invalid UTF-8.
func conversationTitle(message string) string {
	const maxLen = 60
	runes := []rune(strings.TrimSpace(message))
	if len(runes) <= maxLen {
		return string(runes)
	}
	return strings.TrimSpace(string(runes[:maxLen])) + "…"
}
