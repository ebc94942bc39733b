package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"schoolreg/internal/apierr"
	"schoolreg/internal/audit"
	"schoolreg/internal/auth"
	"schoolreg/internal/users"
)

type createUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"strongpassword"`
	Role     string `json:"role" binding:"oneof=admin staff"`
}

type resetPasswordRequest struct {
	Password string `json:"password" binding:"strongpassword"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"strongpassword"`
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if fields := fieldErrors(err, userFieldMessages); fields != nil {
			apierr.ValidationFields(c, "Validation failed", fields)
			return false
		}
		apierr.Validation(c, "Invalid request body")
		return false
	}
	return true
}

// ListUsers handles GET /api/users.
func (h *Handler) ListUsers(c *gin.Context) {
	list, err := h.users.List(c.Request.Context())
	if err != nil {
		apierr.Internal(c, err, "list users")
		return
	}
	if list == nil {
		list = []users.User{}
	}
	c.JSON(http.StatusOK, list)
}

// CreateUser handles POST /api/users.
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	audit.AddDetail(c, "username", req.Username)

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		apierr.Internal(c, err, "hash password")
		return
	}
	u, err := h.users.Create(c.Request.Context(), req.Username, hash, req.Role)
	if err != nil {
		if errors.Is(err, users.ErrDuplicateUsername) {
			apierr.Conflict(c, "Username already exists")
			return
		}
		apierr.Internal(c, err, "create user")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": u})
}

// ResetPassword handles PUT /api/users/:id/password. Admins cannot reset their own
// password here; they use change-password, which checks the current one.
func (h *Handler) ResetPassword(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		apierr.Validation(c, "Invalid user id")
		return
	}
	me, _ := auth.IdentityFrom(c)
	if id == me.ID {
		apierr.Validation(c, "Use /change-password to change your own password")
		return
	}
	var req resetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	audit.AddDetail(c, "targetUserId", id)

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		apierr.Internal(c, err, "hash password")
		return
	}
	if err := h.users.UpdatePassword(c.Request.Context(), id, hash); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			apierr.NotFound(c, "User not found")
			return
		}
		apierr.Internal(c, err, "reset password")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}

// ChangeOwnPassword handles PUT /api/users/change-password.
func (h *Handler) ChangeOwnPassword(c *gin.Context) {
	me, ok := auth.IdentityFrom(c)
	if !ok {
		apierr.Unauthorized(c, "Access token required")
		return
	}
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	u, err := h.users.GetByID(ctx, me.ID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			apierr.Unauthorized(c, "Account no longer exists")
			return
		}
		apierr.Internal(c, err, "get user")
		return
	}
	if !auth.CheckPassword(u.PasswordHash, req.CurrentPassword) {
		apierr.Unauthorized(c, "Current password is incorrect")
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		apierr.Internal(c, err, "hash password")
		return
	}
	if err := h.users.UpdatePassword(ctx, me.ID, hash); err != nil {
		apierr.Internal(c, err, "change password")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}

// DeleteUser handles DELETE /api/users/:id. Deleting yourself is refused.
func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		apierr.Validation(c, "Invalid user id")
		return
	}
	me, _ := auth.IdentityFrom(c)
	if id == me.ID {
		apierr.Validation(c, "Cannot delete your own account")
		return
	}
	audit.AddDetail(c, "targetUserId", id)
	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			apierr.NotFound(c, "User not found")
			return
		}
		apierr.Internal(c, err, "delete user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}
