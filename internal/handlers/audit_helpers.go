package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDContextKey = "request_id"

// requestIDFromContext returns the request id for audit events, minting one
// when neither the context nor the X-Request-Id header carries it.
func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// userIDFromContext formats the authenticated user id for the audit envelope.
// Unauthenticated requests yield nil so the field is omitted.
func userIDFromContext(c *gin.Context) *string {
	if userID := c.GetInt("userID"); userID != 0 {
		value := strconv.Itoa(userID)
		return &value
	}
	return nil
}
