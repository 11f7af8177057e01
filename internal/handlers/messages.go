package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-server/internal/delivery"
	"chat-server/internal/models"
	"chat-server/internal/repositories"
)

// MessagesHandler serves message history and delivery-state mutations.
type MessagesHandler struct {
	messages   repositories.MessageRepository
	users      repositories.UserRepository
	reconciler *delivery.Reconciler
}

// NewMessagesHandler builds a MessagesHandler.
func NewMessagesHandler(messages repositories.MessageRepository, users repositories.UserRepository, reconciler *delivery.Reconciler) *MessagesHandler {
	return &MessagesHandler{messages: messages, users: users, reconciler: reconciler}
}

// GetConversation returns the history between two users, oldest first.
// The caller must be one of the participants.
func (h *MessagesHandler) GetConversation(c *gin.Context) {
	usuario1 := c.Query("usuario1")
	usuario2 := c.Query("usuario2")
	limite := intQuery(c, "limite", 50)
	offset := intQuery(c, "offset", 0)

	callerID := authedUserID(c)
	if callerID != usuario1 && callerID != usuario2 {
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "msg": "No tienes permisos para ver estos mensajes"})
		return
	}

	msgs, err := h.messages.ListBetween(c.Request.Context(), usuario1, usuario2, limite, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
		return
	}

	// Stored newest first for pagination; clients render oldest first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "mensajes": msgs, "total": len(msgs)})
}

// GetLast returns the most recent message between two users.
func (h *MessagesHandler) GetLast(c *gin.Context) {
	usuario1 := c.Query("usuario1")
	usuario2 := c.Query("usuario2")

	callerID := authedUserID(c)
	if callerID != usuario1 && callerID != usuario2 {
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "msg": "No tienes permisos para ver este mensaje"})
		return
	}

	msg, err := h.messages.LastBetween(c.Request.Context(), usuario1, usuario2)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusOK, gin.H{"ok": true, "mensaje": nil})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "mensaje": msg})
}

// GetUnread returns the caller's not-yet-read messages.
func (h *MessagesHandler) GetUnread(c *gin.Context) {
	msgs, err := h.messages.ListUnread(c.Request.Context(), authedUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "mensajes": msgs, "total": len(msgs)})
}

// Search finds conversation messages matching a content query.
func (h *MessagesHandler) Search(c *gin.Context) {
	usuario1 := c.Query("usuario1")
	usuario2 := c.Query("usuario2")
	query := c.Query("query")
	limite := intQuery(c, "limite", 20)

	callerID := authedUserID(c)
	if callerID != usuario1 && callerID != usuario2 {
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "msg": "No tienes permisos para buscar en estos mensajes"})
		return
	}

	msgs, err := h.messages.SearchBetween(c.Request.Context(), usuario1, usuario2, query, limite)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "mensajes": msgs, "total": len(msgs)})
}

type sendRequest struct {
	Receptor  string             `json:"receptor" binding:"required"`
	Contenido string             `json:"contenido" binding:"required"`
	Tipo      models.MessageType `json:"tipo"`
	ReplyTo   *int               `json:"mensajeRespondido"`
}

// Send persists a direct message over REST. Live routing is the
// websocket layer's job; REST sends always stay in enviado.
func (h *MessagesHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": err.Error()})
		return
	}

	tipo := req.Tipo
	if tipo == "" {
		tipo = models.TypeText
	}
	if !models.ValidMessageType(tipo) {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": "Tipo de mensaje no válido"})
		return
	}

	if _, err := h.users.GetUser(c.Request.Context(), req.Receptor); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "msg": "Usuario receptor no encontrado"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
		return
	}

	msg, err := h.messages.CreateMessage(c.Request.Context(), authedUserID(c), req.Receptor, req.Contenido, tipo, req.ReplyTo)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "mensaje": msg, "msg": "Mensaje enviado correctamente"})
}

// MarkRead advances a message to leido; receiver only.
func (h *MessagesHandler) MarkRead(c *gin.Context) {
	id, ok := messageIDParam(c)
	if !ok {
		return
	}

	msg, err := h.reconciler.MarkRead(c.Request.Context(), id, authedUserID(c))
	if err != nil {
		if errors.Is(err, repositories.ErrStaleState) {
			h.respondCurrent(c, id, "Mensaje ya estaba marcado como leído")
			return
		}
		respondMutationError(c, err, "No tienes permisos para marcar este mensaje como leído")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "mensaje": msg, "msg": "Mensaje marcado como leído"})
}

// MarkDelivered advances a message to entregado; receiver only.
func (h *MessagesHandler) MarkDelivered(c *gin.Context) {
	id, ok := messageIDParam(c)
	if !ok {
		return
	}

	msg, err := h.messages.GetMessage(c.Request.Context(), id)
	if err != nil {
		respondMutationError(c, err, "")
		return
	}
	if msg.ReceiverID != authedUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "msg": "No tienes permisos para marcar este mensaje como entregado"})
		return
	}

	if err := h.reconciler.MarkDelivered(c.Request.Context(), id); err != nil {
		if errors.Is(err, repositories.ErrStaleState) {
			h.respondCurrent(c, id, "Mensaje ya estaba marcado como entregado")
			return
		}
		respondMutationError(c, err, "")
		return
	}

	h.respondCurrent(c, id, "Mensaje marcado como entregado")
}

type reactionRequest struct {
	Tipo models.ReactionKind `json:"tipo" binding:"required"`
}

// AddReaction sets the caller's reaction on a received message,
// replacing any prior reaction by the caller.
func (h *MessagesHandler) AddReaction(c *gin.Context) {
	id, ok := messageIDParam(c)
	if !ok {
		return
	}

	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": err.Error()})
		return
	}

	msg, err := h.messages.GetMessage(c.Request.Context(), id)
	if err != nil {
		respondMutationError(c, err, "")
		return
	}
	if msg.ReceiverID != authedUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "msg": "No tienes permisos para reaccionar a este mensaje"})
		return
	}

	if err := h.reconciler.AddReaction(c.Request.Context(), id, authedUserID(c), req.Tipo); err != nil {
		if errors.Is(err, delivery.ErrInvalidReaction) {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": "Tipo de reacción no válido"})
			return
		}
		respondMutationError(c, err, "")
		return
	}

	h.respondCurrent(c, id, "Reacción agregada correctamente")
}

// RemoveReaction clears the caller's reaction from a received message.
func (h *MessagesHandler) RemoveReaction(c *gin.Context) {
	id, ok := messageIDParam(c)
	if !ok {
		return
	}

	msg, err := h.messages.GetMessage(c.Request.Context(), id)
	if err != nil {
		respondMutationError(c, err, "")
		return
	}
	if msg.ReceiverID != authedUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "msg": "No tienes permisos para remover la reacción de este mensaje"})
		return
	}

	if err := h.reconciler.RemoveReaction(c.Request.Context(), id, authedUserID(c)); err != nil {
		respondMutationError(c, err, "")
		return
	}

	h.respondCurrent(c, id, "Reacción removida correctamente")
}

// Delete soft-deletes a message; sender only. The row is kept and
// excluded from history.
func (h *MessagesHandler) Delete(c *gin.Context) {
	id, ok := messageIDParam(c)
	if !ok {
		return
	}

	if err := h.reconciler.SoftDelete(c.Request.Context(), id, authedUserID(c)); err != nil {
		respondMutationError(c, err, "No tienes permisos para eliminar este mensaje")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "msg": "Mensaje eliminado correctamente"})
}

func (h *MessagesHandler) respondCurrent(c *gin.Context, id int, text string) {
	msg, err := h.messages.GetMessage(c.Request.Context(), id)
	if err != nil {
		respondMutationError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "mensaje": msg, "msg": text})
}

func messageIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("mensajeId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": "Identificador de mensaje no válido"})
		return 0, false
	}
	return id, true
}

func respondMutationError(c *gin.Context, err error, forbiddenMsg string) {
	switch {
	case errors.Is(err, repositories.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "msg": "Mensaje no encontrado"})
	case errors.Is(err, delivery.ErrForbidden):
		if forbiddenMsg == "" {
			forbiddenMsg = "No tienes permisos para modificar este mensaje"
		}
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "msg": forbiddenMsg})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "Error interno del servidor"})
	}
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return fallback
	}
	return val
}
