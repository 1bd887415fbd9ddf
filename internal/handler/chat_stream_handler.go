package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"graceway-go/internal/service"
	"graceway-go/pkg/log"
	"graceway-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamMessage is one inbound chat frame on the socket.
type streamMessage struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	AssistantRole  string `json:"assistantRole"`
	ConversationID string `json:"conversationId"`
}

// ChatStreamHandler handles the live companion chat over WebSocket.
type ChatStreamHandler struct {
	streamService service.StreamService
	userService   service.UserService
	jwtManager    *token.JWTManager
	// Per-connection stop flags keyed by connection pointer.
	stopFlags sync.Map
}

// NewChatStreamHandler creates a new ChatStreamHandler.
func NewChatStreamHandler(streamService service.StreamService, userService service.UserService, jwtManager *token.JWTManager) *ChatStreamHandler {
	return &ChatStreamHandler{
		streamService: streamService,
		userService:   userService,
		jwtManager:    jwtManager,
	}
}

// Handle authenticates via the path token, upgrades the connection and
// serves chat frames until the client disconnects.
func (h *ChatStreamHandler) Handle(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	user, err := h.userService.GetProfile(claims.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket upgrade failed", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket connection established for user '%s'", claims.Username)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("failed to read WebSocket message: %v", err)
			break
		}

		var msg streamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			// Bare text frames are treated as a plain chat message.
			msg = streamMessage{Message: string(raw)}
		}

		if msg.Type == "stop" {
			h.stopFlags.Store(sessionKey(conn), true)
			ack := map[string]interface{}{
				"type":      "stop",
				"message":   "response stopped",
				"timestamp": time.Now().UnixMilli(),
			}
			b, _ := json.Marshal(ack)
			_ = conn.WriteMessage(websocket.TextMessage, b)
			continue
		}
		if msg.Message == "" {
			continue
		}

		shouldStop := func() bool {
			v, ok := h.stopFlags.Load(sessionKey(conn))
			return ok && v.(bool)
		}
		h.stopFlags.Delete(sessionKey(conn))

		err = h.streamService.StreamResponse(c.Request.Context(), user, msg.AssistantRole, msg.Message, msg.ConversationID, conn, shouldStop)
		if err != nil {
			log.Errorf("streamed chat turn failed: %v", err)
			errResp := map[string]string{"error": "the companion is temporarily unavailable, please try again"}
			b, _ := json.Marshal(errResp)
			_ = conn.WriteMessage(websocket.TextMessage, b)
			break
		}
	}
}

func sessionKey(conn *websocket.Conn) string {
	return fmt.Sprintf("%p", conn)
}
