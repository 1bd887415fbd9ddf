package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// httpTransport is the production Transport over the relay's HTTP API.
type httpTransport struct {
	baseURL string
	client  *http.Client
	session *Session
}

// NewHTTPTransport creates a Transport against the given server base URL.
// The session supplies the bearer token for each call.
func NewHTTPTransport(baseURL string, session *Session) Transport {
	return &httpTransport{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		session: session,
	}
}

func (t *httpTransport) Relay(ctx context.Context, req RelayRequest) (*RelayResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/v1/relay/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	t.authorize(httpReq)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
			return nil, fmt.Errorf("relay returned %d: %s", resp.StatusCode, errBody.Error)
		}
		return nil, fmt.Errorf("relay returned %d", resp.StatusCode)
	}

	var out RelayResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *httpTransport) MostRecent(ctx context.Context, assistantID string) (*Conversation, []Message, error) {
	path := "/api/v1/conversations/recent?assistantId=" + url.QueryEscape(assistantID)
	var out struct {
		Conversation *Conversation `json:"conversation"`
		Messages     []Message     `json:"messages"`
	}
	if err := t.getJSON(ctx, path, &out); err != nil {
		return nil, nil, err
	}
	return out.Conversation, out.Messages, nil
}

func (t *httpTransport) Messages(ctx context.Context, conversationID string) (*Conversation, []Message, error) {
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	var out struct {
		Conversation *Conversation `json:"conversation"`
		Messages     []Message     `json:"messages"`
	}
	if err := t.getJSON(ctx, path, &out); err != nil {
		return nil, nil, err
	}
	return out.Conversation, out.Messages, nil
}

func (t *httpTransport) getJSON(ctx context.Context, path string, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return err
	}
	t.authorize(httpReq)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (t *httpTransport) authorize(req *http.Request) {
	if t.session == nil {
		return
	}
	if token := t.session.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-Client-Info", "graceway-chatclient/1.0")
}
