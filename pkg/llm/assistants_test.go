package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"graceway-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAssistantsServer mimics the assistants API surface the client uses.
func fakeAssistantsServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/threads", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "assistants=v2", r.Header.Get("OpenAI-Beta"))
		json.NewEncoder(w).Encode(map[string]string{"id": "thread_123"})
	})
	mux.HandleFunc("/threads/thread_123/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "user", body["role"])
			json.NewEncoder(w).Encode(map[string]string{"id": "msg_1"})
			return
		}
		// Listing is newest-first; a user message precedes the target.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{
					"role": "user",
					"content": []map[string]interface{}{
						{"type": "text", "text": map[string]string{"value": "ignored"}},
					},
				},
				{
					"role": "assistant",
					"content": []map[string]interface{}{
						{"type": "text", "text": map[string]string{"value": "Here is my counsel."}},
					},
				},
			},
		})
	})
	mux.HandleFunc("/threads/thread_123/runs", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "asst_abc", body["assistant_id"])
		json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": "queued"})
	})
	mux.HandleFunc("/threads/thread_123/runs/run_1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": "completed"})
	})

	return httptest.NewServer(mux)
}

func newTestAssistantsClient(baseURL string) AssistantsClient {
	return NewAssistantsClient(config.LLMConfig{APIKey: "test-key", BaseURL: baseURL})
}

func TestAssistantsClientRoundTrip(t *testing.T) {
	server := fakeAssistantsServer(t)
	defer server.Close()
	client := newTestAssistantsClient(server.URL)
	ctx := context.Background()

	threadID, err := client.CreateThread(ctx)
	require.NoError(t, err)
	assert.Equal(t, "thread_123", threadID)

	require.NoError(t, client.CreateMessage(ctx, threadID, "I need some advice."))

	runID, err := client.CreateRun(ctx, threadID, "asst_abc")
	require.NoError(t, err)
	assert.Equal(t, "run_1", runID)

	status, err := client.GetRunStatus(ctx, threadID, runID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, status)

	reply, err := client.LatestAssistantMessage(ctx, threadID)
	require.NoError(t, err)
	assert.Equal(t, "Here is my counsel.", reply)
}

func TestAssistantsClientSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()
	client := newTestAssistantsClient(server.URL)

	_, err := client.CreateThread(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-200")
}

func TestLatestAssistantMessageNoneFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	}))
	defer server.Close()
	client := newTestAssistantsClient(server.URL)

	_, err := client.LatestAssistantMessage(context.Background(), "thread_123")
	require.Error(t, err)
}
