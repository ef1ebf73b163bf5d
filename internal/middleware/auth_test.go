package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace-messaging/internal/mocks"
	"marketplace-messaging/internal/models"
)

func setupAuthRouter(verifier *mocks.VerifierMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(verifier))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt("userID"), "role": c.GetString("userRole")})
	})
	return r
}

func TestAuthMiddlewareSetsIdentity(t *testing.T) {
	verifier := new(mocks.VerifierMock)
	verifier.On("Verify", mock.Anything, "good").Return(models.Identity{ID: 7, Name: "alice", Role: "buyer"}, nil).Once()
	router := setupAuthRouter(verifier)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":7,"role":"buyer"}`, rec.Body.String())
	verifier.AssertExpectations(t)
}

func TestAuthMiddlewareMissingHeader(t *testing.T) {
	router := setupAuthRouter(new(mocks.VerifierMock))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareMalformedHeader(t *testing.T) {
	router := setupAuthRouter(new(mocks.VerifierMock))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareInvalidToken(t *testing.T) {
	verifier := new(mocks.VerifierMock)
	verifier.On("Verify", mock.Anything, "bad").Return(models.Identity{}, assert.AnError).Once()
	router := setupAuthRouter(verifier)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	verifier.AssertExpectations(t)
}
