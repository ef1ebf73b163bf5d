package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace-messaging/internal/mocks"
	"marketplace-messaging/internal/models"
	"marketplace-messaging/internal/repositories"
	"marketplace-messaging/internal/ws"
)

func setupConversationRouter(handler *ConversationHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/conversations", handler.ListConversations)
	r.POST("/conversations/start", handler.StartConversation)
	r.GET("/conversations/:conversation_id/messages", handler.GetMessages)
	r.POST("/conversations/:conversation_id/messages", handler.PostMessage)
	r.POST("/conversations/:conversation_id/read", handler.MarkRead)
	return r
}

func TestListConversationsSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	users := new(mocks.UserDirectoryMock)
	handler := NewConversationHandler(convRepo, nil, users, nil, nil)
	router := setupConversationRouter(handler)

	convRepo.On("ListForUser", mock.Anything, 1).Return([]models.ConversationSummary{{ConversationID: 3, PartnerID: 2}}, nil).Once()
	users.On("BulkUsers", mock.Anything, []int{2}).Return([]models.Identity{{ID: 2, Name: "bob", Role: "seller"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, "bob", resp.Conversations[0].PartnerName)

	convRepo.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestListConversationsRepoError(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(convRepo, nil, new(mocks.UserDirectoryMock), nil, nil)
	router := setupConversationRouter(handler)

	convRepo.On("ListForUser", mock.Anything, 1).Return(([]models.ConversationSummary)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	convRepo.AssertExpectations(t)
}

func TestStartConversationSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	users := new(mocks.UserDirectoryMock)
	handler := NewConversationHandler(convRepo, nil, users, nil, nil)
	router := setupConversationRouter(handler)

	users.On("BulkUsers", mock.Anything, []int{2}).Return([]models.Identity{{ID: 2, Name: "bob"}}, nil).Once()
	convRepo.On("CreateOrGet", mock.Anything, 1, 2).Return(models.Conversation{ID: 10, User1ID: 1, User2ID: 2}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/start", bytes.NewBufferString(`{"partner_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	users.AssertExpectations(t)
	convRepo.AssertExpectations(t)
}

func TestStartConversationWithSelf(t *testing.T) {
	handler := NewConversationHandler(new(mocks.ConversationRepositoryMock), nil, new(mocks.UserDirectoryMock), nil, nil)
	router := setupConversationRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/conversations/start", bytes.NewBufferString(`{"partner_id":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartConversationUnknownPartner(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	handler := NewConversationHandler(new(mocks.ConversationRepositoryMock), nil, users, nil, nil)
	router := setupConversationRouter(handler)

	users.On("BulkUsers", mock.Anything, []int{5}).Return(([]models.Identity)(nil), nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/start", bytes.NewBufferString(`{"partner_id":5}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	users.AssertExpectations(t)
}

func TestGetMessagesSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewConversationHandler(convRepo, messageRepo, new(mocks.UserDirectoryMock), nil, nil)
	router := setupConversationRouter(handler)

	convRepo.On("IsParticipant", mock.Anything, 5, 1).Return(true, nil).Once()
	messageRepo.On("ListForConversation", mock.Anything, 5).Return([]models.Message{{ID: 1, ConversationID: 5, SenderID: 1, Content: "hi"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	convRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestGetMessagesNotParticipant(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(convRepo, new(mocks.MessageRepositoryMock), new(mocks.UserDirectoryMock), nil, nil)
	router := setupConversationRouter(handler)

	convRepo.On("IsParticipant", mock.Anything, 5, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	convRepo.AssertExpectations(t)
}

func TestGetMessagesInvalidID(t *testing.T) {
	handler := NewConversationHandler(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.UserDirectoryMock), nil, nil)
	router := setupConversationRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/conversations/abc/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	hub := ws.NewHub()
	handler := NewConversationHandler(convRepo, messageRepo, new(mocks.UserDirectoryMock), hub, nil)
	router := setupConversationRouter(handler)

	convRepo.On("Get", mock.Anything, 5).Return(models.Conversation{ID: 5, User1ID: 1, User2ID: 2}, nil).Once()
	messageRepo.On("Create", mock.Anything, 5, 1, "hi").Return(models.Message{ID: 7, ConversationID: 5, SenderID: 1, Content: "hi"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	convRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestPostMessageBlankContent(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewConversationHandler(convRepo, messageRepo, new(mocks.UserDirectoryMock), ws.NewHub(), nil)
	router := setupConversationRouter(handler)

	convRepo.On("Get", mock.Anything, 5).Return(models.Conversation{ID: 5, User1ID: 1, User2ID: 2}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/messages", bytes.NewBufferString(`{"content":"   "}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	messageRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPostMessageConversationNotFound(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(convRepo, new(mocks.MessageRepositoryMock), new(mocks.UserDirectoryMock), ws.NewHub(), nil)
	router := setupConversationRouter(handler)

	convRepo.On("Get", mock.Anything, 5).Return(models.Conversation{}, repositories.ErrConversationNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	convRepo.AssertExpectations(t)
}

func TestMarkReadSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(convRepo, new(mocks.MessageRepositoryMock), new(mocks.UserDirectoryMock), nil, nil)
	router := setupConversationRouter(handler)

	convRepo.On("MarkRead", mock.Anything, 5, 1).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	convRepo.AssertExpectations(t)
}

func TestMarkReadNotFound(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(convRepo, new(mocks.MessageRepositoryMock), new(mocks.UserDirectoryMock), nil, nil)
	router := setupConversationRouter(handler)

	convRepo.On("MarkRead", mock.Anything, 9, 1).Return(repositories.ErrConversationNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/9/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	convRepo.AssertExpectations(t)
}
