package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"graceway-go/internal/config"
	"graceway-go/internal/model"
	"graceway-go/internal/repository"
	"graceway-go/pkg/llm"
	"graceway-go/pkg/log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// StreamService streams a fallback-mode companion reply over a WebSocket,
// chunk by chunk, and saves the finished exchange afterwards. The relay
// endpoint stays the durable surface; this is the live-typing experience.
type StreamService interface {
	StreamResponse(ctx context.Context, user *model.User, role, text, conversationID string, ws *websocket.Conn, shouldStop func() bool) error
}

type streamService struct {
	relay     *relayService
	convRepo  repository.ConversationRepository
	llmClient llm.Client
}

// NewStreamService creates a StreamService sharing the relay's persona and
// prompt machinery. It builds its own relay helper from the same
// dependencies; streaming never touches the assistants API or the event
// pipeline, so neither is wired.
func NewStreamService(
	assistantRepo repository.AssistantRepository,
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	prefRepo repository.PreferenceRepository,
	llmClient llm.Client,
	cfg config.RelayConfig,
) StreamService {
	return &streamService{
		relay:     newRelayService(assistantRepo, convRepo, userRepo, prefRepo, llmClient, nil, nil, cfg),
		convRepo:  convRepo,
		llmClient: llmClient,
	}
}

// StreamResponse resolves the persona, streams completion chunks to the
// socket and persists the transcript best-effort once the stream finishes.
func (s *streamService) StreamResponse(ctx context.Context, user *model.User, role, text, conversationID string, ws *websocket.Conn, shouldStop func() bool) error {
	req := RelayRequest{UserID: user.ID, Message: text, AssistantRole: role, ConversationID: conversationID}
	resolvedRole := s.relay.resolveRole(req)
	p := s.relay.resolvePersona(user.ID, resolvedRole)

	conv := s.relay.lookupConversation(req)

	messages := []llm.Message{{Role: "system", Content: s.relay.buildSystemPrompt(user.ID, p)}}
	if conv != nil {
		messages = append(messages, s.relay.loadHistory(conv.ID)...)
	}
	messages = append(messages, llm.Message{Role: "user", Content: text})

	// Intercept the socket writer to capture the full answer while
	// wrapping each chunk as {"chunk":"..."}.
	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, writer: answerBuilder, shouldStop: shouldStop}

	userAt := time.Now()
	if err := s.llmClient.StreamChatMessages(ctx, messages, nil, interceptor); err != nil {
		return err
	}

	sendCompletion(ws)
	fullAnswer := answerBuilder.String()
	if len(fullAnswer) == 0 {
		return nil
	}

	// Save with a fresh context: the answer was delivered even if the
	// request context has been cancelled.
	if conv == nil {
		conv = s.relay.createConversation(req, p, userAt)
	}
	if conv == nil {
		return nil
	}
	s.saveExchange(conv, text, fullAnswer, userAt)
	return nil
}

// saveExchange persists both turns best-effort, like the relay does.
func (s *streamService) saveExchange(conv *model.Conversation, question, answer string, userAt time.Time) {
	userMsg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Sender:         model.SenderUser,
		Content:        question,
		CreatedAt:      userAt,
	}
	if err := s.convRepo.CreateMessage(userMsg); err != nil {
		log.Errorf("failed to save streamed user turn: %v", err)
	}

	assistantAt := time.Now()
	if !assistantAt.After(userAt) {
		assistantAt = userAt.Add(time.Millisecond)
	}
	assistantMsg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Sender:         model.SenderAssistant,
		Content:        answer,
		Meta:           model.MessageMeta{Fallback: true},
		CreatedAt:      assistantAt,
	}
	if err := s.convRepo.CreateMessage(assistantMsg); err != nil {
		log.Errorf("failed to save streamed assistant turn: %v", err)
	}
	if err := s.convRepo.TouchLastMessage(conv.ID, assistantAt); err != nil {
		log.Errorf("failed to bump last message time for conversation %s: %v", conv.ID, err)
	}
}

// wsWriterInterceptor wraps a websocket.Conn to capture written chunks.
type wsWriterInterceptor struct {
	conn       *websocket.Conn
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage satisfies the llm.MessageWriter interface.
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// Stop flag set: skip delivery.
		return nil
	}
	w.writer.Write(data)
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion sends the end-of-stream notification.
func sendCompletion(ws *websocket.Conn) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"timestamp": time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}
