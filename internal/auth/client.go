package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketplace-messaging/internal/models"
)

// Verifier validates bearer tokens against the account service.
type Verifier interface {
	Verify(ctx context.Context, token string) (models.Identity, error)
}

// UserDirectory resolves user ids to display identities.
type UserDirectory interface {
	BulkUsers(ctx context.Context, ids []int) ([]models.Identity, error)
}

// Client talks to the marketplace account service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client for the account service base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Verify checks the token and returns the authenticated identity.
func (c *Client) Verify(ctx context.Context, token string) (models.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/internal/auth/verify", nil)
	if err != nil {
		return models.Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return models.Identity{}, fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return models.Identity{}, errors.New("invalid token")
	}
	if resp.StatusCode != http.StatusOK {
		return models.Identity{}, fmt.Errorf("verify token: status %d", resp.StatusCode)
	}

	var identity models.Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return models.Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	if identity.ID == 0 {
		return models.Identity{}, errors.New("invalid token")
	}
	return identity, nil
}

// BulkUsers fetches display identities for the given user ids.
func (c *Client) BulkUsers(ctx context.Context, ids []int) ([]models.Identity, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.Itoa(id))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/internal/users?ids="+strings.Join(parts, ","), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bulk users: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bulk users: status %d", resp.StatusCode)
	}

	var body struct {
		Users []models.Identity `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return body.Users, nil
}
