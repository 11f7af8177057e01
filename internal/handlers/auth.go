package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-server/internal/auth"
	"chat-server/internal/repositories"
	"chat-server/internal/telemetry"
)

// AuthHandler serves account registration, login and token renewal.
type AuthHandler struct {
	users  repositories.UserRepository
	tokens *auth.TokenService
	audit  *telemetry.AuditEmitter
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(users repositories.UserRepository, tokens *auth.TokenService, audit *telemetry.AuditEmitter) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, audit: audit}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// Register creates a new account and issues a token.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), uuid.NewString(), req.Name, req.Email, hash)
	if err != nil {
		if errors.Is(err, repositories.ErrEmailTaken) {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": "Ya existe un usuario con ese email"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
		return
	}

	token, err := h.tokens.Generate(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "user registered", requestIDFromContext(c), &user.ID)
	c.JSON(http.StatusCreated, gin.H{
		"ok":    true,
		"msg":   "Usuario registrado exitosamente",
		"token": token,
		"user":  user,
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and issues a token. Unknown email and
// wrong password are indistinguishable to the caller.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": err.Error()})
		return
	}

	user, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": "Credenciales incorrectas"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
		return
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": "Credenciales incorrectas"})
		return
	}

	token, err := h.tokens.Generate(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "user login", requestIDFromContext(c), &user.ID)
	c.JSON(http.StatusOK, gin.H{
		"ok":    true,
		"msg":   "Login exitoso",
		"token": token,
		"user":  user,
	})
}

// Renew re-issues a token for the authenticated caller.
func (h *AuthHandler) Renew(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), authedUserID(c))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "msg": "Token no válido"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
		return
	}

	token, err := h.tokens.Generate(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":    true,
		"msg":   "Token renovado exitosamente",
		"token": token,
		"user":  user,
	})
}
