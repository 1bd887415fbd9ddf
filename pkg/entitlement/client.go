// Package entitlement provides the client for the subscription-entitlement
// service used to gate paid content.
package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"graceway-go/internal/config"
	"io"
	"net/http"
)

// Client checks whether an entitlement is unlocked for a user.
type Client interface {
	Check(ctx context.Context, userID uint, entitlementID string) (bool, error)
}

type httpClient struct {
	cfg    config.EntitlementConfig
	client *http.Client
}

// NewClient creates an entitlement client from config.
func NewClient(cfg config.EntitlementConfig) Client {
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type subscriberResponse struct {
	Subscriber struct {
		Entitlements map[string]struct {
			ExpiresDate *string `json:"expires_date"`
		} `json:"entitlements"`
	} `json:"subscriber"`
}

// Check asks the entitlement service whether the identifier is active for
// the subscriber. An entitlement listed with no expiry is treated as active;
// expiry evaluation is the provider's responsibility (expired entitlements
// are not returned).
func (c *httpClient) Check(ctx context.Context, userID uint, entitlementID string) (bool, error) {
	url := fmt.Sprintf("%s/subscribers/%d", c.cfg.BaseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create entitlement request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to call entitlement service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Unknown subscriber: nothing unlocked.
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("entitlement service returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var parsed subscriberResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, fmt.Errorf("failed to decode entitlement response: %w", err)
	}

	_, ok := parsed.Subscriber.Entitlements[entitlementID]
	return ok, nil
}
