package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"marketplace-messaging/internal/auth"
	"marketplace-messaging/internal/models"
	"marketplace-messaging/internal/repositories"
	"marketplace-messaging/internal/telemetry"
	"marketplace-messaging/internal/ws"
)

// ConversationHandler manages buyer/seller conversation endpoints.
type ConversationHandler struct {
	conversationRepo repositories.ConversationRepository
	messageRepo      repositories.MessageRepository
	users            auth.UserDirectory
	hub              *ws.Hub
	audit            *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(conversationRepo repositories.ConversationRepository, messageRepo repositories.MessageRepository, users auth.UserDirectory, hub *ws.Hub, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		users:            users,
		hub:              hub,
		audit:            audit,
	}
}

// ListConversations returns the conversations visible to the authenticated user.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := c.GetInt("userID")

	summaries, err := h.conversationRepo.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	partnerIDs := make([]int, 0, len(summaries))
	for _, s := range summaries {
		partnerIDs = append(partnerIDs, s.PartnerID)
	}

	partners, err := h.users.BulkUsers(c.Request.Context(), partnerIDs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load user info"})
		return
	}

	nameByID := map[int]string{}
	for _, p := range partners {
		nameByID[p.ID] = p.Name
	}
	for i := range summaries {
		summaries[i].PartnerName = nameByID[summaries[i].PartnerID]
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// StartConversation creates or returns an existing conversation between users.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	var req struct {
		PartnerID int `json:"partner_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if userID == req.PartnerID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start conversation with yourself"})
		return
	}

	partners, err := h.users.BulkUsers(c.Request.Context(), []int{req.PartnerID})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to validate partner"})
		return
	}
	if len(partners) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "partner not found"})
		return
	}

	conv, err := h.conversationRepo.CreateOrGet(c.Request.Context(), userID, req.PartnerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID})
}

// GetMessages returns a conversation's messages ordered by send time.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	userID := c.GetInt("userID")
	member, err := h.conversationRepo.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant"})
		return
	}

	msgs, err := h.messageRepo.ListForConversation(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage stores a message and broadcasts it to both participants. This
// is the REST fallback used by clients whose websocket is not connected.
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	userID := c.GetInt("userID")
	conv, err := h.conversationRepo.Get(c.Request.Context(), conversationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}
	if !isParticipant(conv, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content must not be empty"})
		return
	}

	msg, err := h.messageRepo.Create(c.Request.Context(), conversationID, userID, req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.hub.BroadcastToUsers([]int{conv.User1ID, conv.User2ID}, msg)
	h.audit.Emit(c.Request.Context(), "INFO", fmt.Sprintf("message posted conversation=%d", conversationID), requestIDFromContext(c), userIDFromContext(c))
	c.JSON(http.StatusCreated, msg)
}

// MarkRead zeroes the caller's unread counter for a conversation.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	userID := c.GetInt("userID")
	if err := h.conversationRepo.MarkRead(c.Request.Context(), conversationID, userID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not mark conversation read"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", fmt.Sprintf("conversation read conversation=%d", conversationID), requestIDFromContext(c), userIDFromContext(c))
	c.Status(http.StatusNoContent)
}

func isParticipant(conv models.Conversation, userID int) bool {
	return conv.User1ID == userID || conv.User2ID == userID
}
