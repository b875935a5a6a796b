package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/pharmeast/pharmeast-backend/internal/auth"
	"github.com/pharmeast/pharmeast-backend/internal/models"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(m *AuthMiddleware, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{m.RequireAuth()}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		claims := ClaimsFrom(c)
		c.JSON(http.StatusOK, gin.H{"email": claims.Email})
	})
	r.GET("/admin/ping", handlers...)
	return r
}

func issueToken(t *testing.T, m *auth.JWTManager, role string) string {
	t.Helper()
	token, err := m.GenerateToken(1, "staff@pharmeast.com", role)
	require.NoError(t, err)
	return token
}

func TestRequireAuthAcceptsBearerToken(t *testing.T) {
	jwt := auth.NewJWTManager("test-secret", time.Hour)
	r := newRouter(NewAuthMiddleware(jwt))

	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, jwt, models.RoleStaff))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "staff@pharmeast.com")
}

func TestRequireAuthAcceptsQueryToken(t *testing.T) {
	jwt := auth.NewJWTManager("test-secret", time.Hour)
	r := newRouter(NewAuthMiddleware(jwt))

	req := httptest.NewRequest(http.MethodGet,
		"/admin/ping?token="+issueToken(t, jwt, models.RoleStaff), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuthRejections(t *testing.T) {
	jwt := auth.NewJWTManager("test-secret", time.Hour)
	r := newRouter(NewAuthMiddleware(jwt))

	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	jwt := auth.NewJWTManager("test-secret", time.Hour)
	m := NewAuthMiddleware(jwt)
	r := newRouter(m, m.RequireRole(models.RoleAdmin))

	cases := []struct {
		role string
		want int
	}{
		{models.RoleAdmin, http.StatusOK},
		{models.RoleSuperadmin, http.StatusOK},
		{models.RoleStaff, http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
		req.Header.Set("Authorization", "Bearer "+issueToken(t, jwt, tc.role))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, tc.want, w.Code, "role %s", tc.role)
	}
}

func TestWebhookSecret(t *testing.T) {
	r := gin.New()
	r.POST("/hook", WebhookSecret("s3cret"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set("X-Webhook-Secret", "s3cret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set("X-Webhook-Secret", "wrong")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookSecretDisabledWhenEmpty(t *testing.T) {
	r := gin.New()
	r.POST("/hook", WebhookSecret(""), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
