package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bidmarket/models"
	"bidmarket/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		actor, _ := ActorFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": actor.ID, "role": actor.Role})
	})
	r.GET("/me", handlers...)
	return r
}

func get(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuthMiddleware(t *testing.T) {
	r := newRouter(JWTAuthMiddleware())

	token, err := utils.GenerateToken("p1", string(models.RoleProvider), time.Hour)
	require.NoError(t, err)
	w := get(r, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"p1","role":"provider"}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "not-a-token").Code)

	expired, err := utils.GenerateToken("p1", string(models.RoleProvider), -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, expired).Code)

	odd, err := utils.GenerateToken("x1", "superuser", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, odd).Code)
}

func TestRequireRole(t *testing.T) {
	r := newRouter(JWTAuthMiddleware(), RequireRole(models.RoleAdmin))

	adminToken, err := utils.GenerateToken("a1", string(models.RoleAdmin), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(r, adminToken).Code)

	customerToken, err := utils.GenerateToken("c1", string(models.RoleCustomer), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(r, customerToken).Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	r := newRouter(RateLimitMiddleware(2))

	assert.Equal(t, http.StatusOK, get(r, "").Code)
	assert.Equal(t, http.StatusOK, get(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "").Code)
}

func TestRateLimiterEviction(t *testing.T) {
	s := newRateLimiterStore(10)
	now := time.Now()
	s.getLimiter("10.0.0.1", now.Add(-time.Hour))
	s.getLimiter("10.0.0.2", now)

	s.evict(now, 10*time.Minute)
	assert.Len(t, s.limiters, 1)
	assert.Contains(t, s.limiters, "10.0.0.2")
}
