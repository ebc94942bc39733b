package auth

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"schoolreg/internal/apierr"
	"schoolreg/internal/audit"
)

const identityKey = "auth.identity"

// TokenVerifier turns a bearer token into an identity.
type TokenVerifier interface {
	VerifyToken(token string) (Identity, error)
}

// RequireAuth enforces a valid bearer token and stores the identity on the context.
func RequireAuth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			apierr.Unauthorized(c, "Access token required")
			return
		}
		id, err := v.VerifyToken(strings.TrimSpace(authz[len("bearer "):]))
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				apierr.Unauthorized(c, "Token expired")
				return
			}
			apierr.Unauthorized(c, "Invalid token")
			return
		}
		c.Set(identityKey, id)
		audit.SetActor(c, audit.Actor{ID: id.ID, Username: id.Username})
		c.Next()
	}
}

// RequireRole must run after RequireAuth; it answers 403 unless the identity has one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			apierr.Unauthorized(c, "Access token required")
			return
		}
		if err := CheckRole(id, roles...); err != nil {
			apierr.Forbidden(c, "Insufficient permissions")
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity RequireAuth stored on c.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
