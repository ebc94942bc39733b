package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"schoolreg/internal/apierr"
	"schoolreg/internal/audit"
	"schoolreg/internal/auth"
	"schoolreg/internal/logging"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	// A malformed body is treated like missing fields.
	_ = c.ShouldBindJSON(&req)
	req.Username = strings.TrimSpace(req.Username)
	ip := c.ClientIP()
	ctx := c.Request.Context()

	attempted := req.Username
	if attempted == "" {
		attempted = "unknown"
	}
	audit.AddDetail(c, "username", attempted)

	if req.Username == "" || req.Password == "" {
		if _, err := h.auth.TrackFailedLogin(ctx, attempted, ip); err != nil {
			logging.Error().Err(err).Str("ip", ip).Msg("track failed login")
		}
		apierr.Validation(c, "Username and password required")
		return
	}

	sess, err := h.auth.Authenticate(ctx, req.Username, req.Password, ip, c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			apierr.Unauthorized(c, "Invalid credentials")
			return
		}
		apierr.Internal(c, err, "login")
		return
	}

	audit.SetActor(c, audit.Actor{ID: sess.User.ID, Username: sess.User.Username})
	c.JSON(http.StatusOK, gin.H{
		"token":     sess.Token,
		"expiresAt": sess.ExpiresAt,
		"user":      sess.User,
	})
}

// Me handles GET /api/auth/me.
func (h *Handler) Me(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		apierr.Unauthorized(c, "Access token required")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": id})
}
