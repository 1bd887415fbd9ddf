package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"graceway-go/internal/config"
	"io"
	"net/http"
)

// Run status values reported by the assistants API.
const (
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
	RunStatusCancelled  = "cancelled"
	RunStatusExpired    = "expired"
	RunStatusInProgress = "in_progress"
)

// AssistantsClient defines the interface for the persistent-assistant API:
// durable threads, posted messages and polled runs.
type AssistantsClient interface {
	CreateThread(ctx context.Context) (string, error)
	CreateMessage(ctx context.Context, threadID, content string) error
	CreateRun(ctx context.Context, threadID, assistantID string) (string, error)
	GetRunStatus(ctx context.Context, threadID, runID string) (string, error)
	LatestAssistantMessage(ctx context.Context, threadID string) (string, error)
}

type assistantsClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewAssistantsClient creates an assistants API client from the LLM config.
func NewAssistantsClient(cfg config.LLMConfig) AssistantsClient {
	return &assistantsClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

func (c *assistantsClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")
}

// doJSON sends a request and decodes a JSON response into out (when non-nil).
func (c *assistantsClient) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call assistants api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("assistants api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

type threadResponse struct {
	ID string `json:"id"`
}

// CreateThread creates a durable thread and returns its handle.
func (c *assistantsClient) CreateThread(ctx context.Context) (string, error) {
	var thread threadResponse
	if err := c.doJSON(ctx, http.MethodPost, "/threads", map[string]string{}, &thread); err != nil {
		return "", err
	}
	return thread.ID, nil
}

type createMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CreateMessage posts a user message to a thread.
func (c *assistantsClient) CreateMessage(ctx context.Context, threadID, content string) error {
	body := createMessageRequest{Role: "user", Content: content}
	return c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body, nil)
}

type createRunRequest struct {
	AssistantID string `json:"assistant_id"`
}

type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateRun starts a run of the given assistant against the thread.
func (c *assistantsClient) CreateRun(ctx context.Context, threadID, assistantID string) (string, error) {
	var run runResponse
	if err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/runs", createRunRequest{AssistantID: assistantID}, &run); err != nil {
		return "", err
	}
	return run.ID, nil
}

// GetRunStatus fetches the current status of a run.
func (c *assistantsClient) GetRunStatus(ctx context.Context, threadID, runID string) (string, error) {
	var run runResponse
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &run); err != nil {
		return "", err
	}
	return run.Status, nil
}

type threadMessage struct {
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text *struct {
			Value string `json:"value"`
		} `json:"text,omitempty"`
	} `json:"content"`
}

type listMessagesResponse struct {
	Data []threadMessage `json:"data"`
}

// LatestAssistantMessage returns the text of the newest assistant message in
// the thread. The API lists messages newest-first.
func (c *assistantsClient) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	var list listMessagesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/messages", nil, &list); err != nil {
		return "", err
	}
	for _, msg := range list.Data {
		if msg.Role != "assistant" {
			continue
		}
		for _, content := range msg.Content {
			if content.Type == "text" && content.Text != nil {
				return content.Text.Value, nil
			}
		}
	}
	return "", fmt.Errorf("no assistant message found in thread")
}
