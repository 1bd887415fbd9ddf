package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"graceway-go/internal/config"
	"graceway-go/internal/model"
	"graceway-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRelayService struct {
	result *service.RelayResult
	err    error
	got    service.RelayRequest
}

func (s *fakeRelayService) Relay(ctx context.Context, req service.RelayRequest) (*service.RelayResult, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newRelayRouter(relay service.RelayService, user *model.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewRelayHandler(relay)
	r.POST("/api/v1/relay/chat", func(c *gin.Context) {
		if user != nil {
			c.Set("user", user)
		}
		h.Chat(c)
	})
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func withRelayConfig(t *testing.T) {
	t.Helper()
	prev := config.Conf
	config.Conf.LLM.APIKey = "sk-test"
	config.Conf.Database.MySQL.DSN = "user:pass@tcp(localhost:3306)/app"
	t.Cleanup(func() { config.Conf = prev })
}

func TestRelayChatMissingFields(t *testing.T) {
	withRelayConfig(t)
	r := newRelayRouter(&fakeRelayService{}, &model.User{ID: 1})

	cases := []map[string]interface{}{
		{},
		{"userId": 1},
		{"message": "hello"},
		{"userId": 0, "message": "hello"},
		{"userId": 1, "message": ""},
	}
	for _, body := range cases {
		w := postJSON(t, r, "/api/v1/relay/chat", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Missing required fields: userId, message", resp["error"])
	}
}

func TestRelayChatIdentityMismatch(t *testing.T) {
	withRelayConfig(t)
	r := newRelayRouter(&fakeRelayService{}, &model.User{ID: 7})

	w := postJSON(t, r, "/api/v1/relay/chat", map[string]interface{}{"userId": 1, "message": "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRelayChatSuccess(t *testing.T) {
	withRelayConfig(t)
	relay := &fakeRelayService{result: &service.RelayResult{
		Message:        "Peace be with you.",
		ConversationID: "c-1",
		AssistantRole:  model.RoleCoach,
		Mode:           service.ModeFallback,
	}}
	r := newRelayRouter(relay, &model.User{ID: 1})

	w := postJSON(t, r, "/api/v1/relay/chat", map[string]interface{}{
		"userId":        1,
		"message":       "hello",
		"assistantRole": model.RoleCoach,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "Peace be with you.", resp["message"])
	assert.Equal(t, "c-1", resp["conversationId"])
	assert.Equal(t, model.RoleCoach, resp["assistantRole"])
	assert.Equal(t, service.ModeFallback, resp["mode"])

	assert.Equal(t, uint(1), relay.got.UserID)
	assert.Equal(t, "hello", relay.got.Message)
}

func TestRelayChatMissingLLMKey(t *testing.T) {
	withRelayConfig(t)
	config.Conf.LLM.APIKey = ""
	r := newRelayRouter(&fakeRelayService{}, &model.User{ID: 1})

	w := postJSON(t, r, "/api/v1/relay/chat", map[string]interface{}{"userId": 1, "message": "hi"})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Server configuration error", resp["error"])
	assert.NotNil(t, resp["debug"])
}

func TestRelayChatUpstreamFailure(t *testing.T) {
	withRelayConfig(t)
	relay := &fakeRelayService{err: errors.New("upstream down")}
	r := newRelayRouter(relay, &model.User{ID: 1})

	w := postJSON(t, r, "/api/v1/relay/chat", map[string]interface{}{"userId": 1, "message": "hi"})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Internal server error", resp["error"])
	assert.NotEmpty(t, resp["details"])
}

func TestRelayChatRunTimeout(t *testing.T) {
	withRelayConfig(t)
	relay := &fakeRelayService{err: service.ErrRunTimeout}
	r := newRelayRouter(relay, &model.User{ID: 1})

	w := postJSON(t, r, "/api/v1/relay/chat", map[string]interface{}{"userId": 1, "message": "hi"})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Assistant run did not complete in time", resp["details"])
}
