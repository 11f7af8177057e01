package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-server/internal/models"
	"chat-server/internal/repositories"
)

// UsersHandler serves user listing and presence queries.
type UsersHandler struct {
	users repositories.UserRepository
}

// NewUsersHandler builds a UsersHandler.
func NewUsersHandler(users repositories.UserRepository) *UsersHandler {
	return &UsersHandler{users: users}
}

// ListUsers returns every registered account ordered by name.
func (h *UsersHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "users": users, "total": len(users)})
}

// ListOnline returns accounts currently flagged online.
func (h *UsersHandler) ListOnline(c *gin.Context) {
	users, err := h.users.ListOnlineUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "users": users, "total": len(users)})
}

// GetUser returns a single account by id.
func (h *UsersHandler) GetUser(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "msg": "Usuario no encontrado"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "user": user})
}

// Stats returns total/online/offline account counts.
func (h *UsersHandler) Stats(c *gin.Context) {
	total, online, err := h.users.CountUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"stats": models.UserStats{
			Total:   total,
			Online:  online,
			Offline: total - online,
		},
	})
}
