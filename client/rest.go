package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketplace-messaging/internal/models"
)

// API is the messaging service REST client. It backs the directory refresh,
// message loads and the send fallback when the websocket is down.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPI constructs a client for the messaging service base URL.
func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// ListConversations fetches the viewer's conversation summaries.
func (a *API) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var body struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	if err := a.do(ctx, http.MethodGet, "/conversations", nil, &body); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return body.Conversations, nil
}

// ListMessages fetches a conversation's messages.
func (a *API) ListMessages(ctx context.Context, conversationID int) ([]models.Message, error) {
	var body struct {
		Messages []models.Message `json:"messages"`
	}
	path := "/conversations/" + strconv.Itoa(conversationID) + "/messages"
	if err := a.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return body.Messages, nil
}

// StartConversation returns the id of the conversation with the partner,
// creating it if needed. Starting the same pair twice returns the same id.
func (a *API) StartConversation(ctx context.Context, partnerID int) (int, error) {
	req := map[string]int{"partner_id": partnerID}
	var body struct {
		ConversationID int `json:"conversation_id"`
	}
	if err := a.do(ctx, http.MethodPost, "/conversations/start", req, &body); err != nil {
		return 0, fmt.Errorf("start conversation: %w", err)
	}
	return body.ConversationID, nil
}

// SendMessage posts a message over REST and returns the persisted record
// with its server-assigned id and timestamp.
func (a *API) SendMessage(ctx context.Context, conversationID int, content string) (models.Message, error) {
	req := map[string]string{"content": content}
	var msg models.Message
	path := "/conversations/" + strconv.Itoa(conversationID) + "/messages"
	if err := a.do(ctx, http.MethodPost, path, req, &msg); err != nil {
		return models.Message{}, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

// MarkRead persists the viewer's read state for a conversation.
func (a *API) MarkRead(ctx context.Context, conversationID int) error {
	path := "/conversations/" + strconv.Itoa(conversationID) + "/read"
	if err := a.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (a *API) do(ctx context.Context, method, path string, in, out any) error {
	var payload *bytes.Buffer = bytes.NewBuffer(nil)
	if in != nil {
		if err := json.NewEncoder(payload).Encode(in); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// restAPI is the slice of the REST surface the session and send path use.
// *API satisfies it; tests substitute mocks.
type restAPI interface {
	ListConversations(ctx context.Context) ([]models.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID int) ([]models.Message, error)
	StartConversation(ctx context.Context, partnerID int) (int, error)
	SendMessage(ctx context.Context, conversationID int, content string) (models.Message, error)
	MarkRead(ctx context.Context, conversationID int) error
}

var _ restAPI = (*API)(nil)
