package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pharmeast/pharmeast-backend/internal/auth"
	"github.com/pharmeast/pharmeast-backend/internal/models"
)

const (
	// ContextClaims is the gin context key holding the validated *auth.Claims.
	ContextClaims = "claims"
	// ContextStaffID is the gin context key holding the staff account id.
	ContextStaffID = "staff_id"
)

// AuthMiddleware gates admin routes behind a valid session token.
type AuthMiddleware struct {
	jwtManager *auth.JWTManager
}

// NewAuthMiddleware builds the middleware around the shared JWT manager.
func NewAuthMiddleware(jwtManager *auth.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager}
}

// RequireAuth rejects requests without a valid bearer token.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			unauthorized(c, "missing authorization token")
			return
		}
		if m.jwtManager == nil {
			unauthorized(c, "authentication is not configured")
			return
		}
		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextStaffID, claims.StaffID)
		c.Next()
	}
}

// RequireRole additionally restricts a route to the given roles. Superadmin
// always passes.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if claims == nil {
			unauthorized(c, "missing authorization token")
			return
		}
		if claims.Role == models.RoleSuperadmin {
			c.Next()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "insufficient permissions",
			})
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the validated claims set by RequireAuth, or nil.
func ClaimsFrom(c *gin.Context) *auth.Claims {
	value, ok := c.Get(ContextClaims)
	if !ok {
		return nil
	}
	claims, _ := value.(*auth.Claims)
	return claims
}

func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	// SSE clients cannot set headers; they pass the token as a query param.
	if token := c.Query("token"); token != "" {
		return token
	}
	if cookie, err := c.Cookie("auth_token"); err == nil {
		return cookie
	}
	return ""
}

// WebhookSecret gates the inbound webhook behind a shared secret header.
// An empty configured secret disables the check.
func WebhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			unauthorized(c, "invalid webhook secret")
			return
		}
		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   msg,
	})
}
