package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-server/internal/delivery"
	"chat-server/internal/models"
	"chat-server/internal/observability"
	"chat-server/internal/presence"
	"chat-server/internal/repositories"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler dispatches protocol events for every websocket connection.
// A connection is unauthenticated until a successful login event, then
// authenticated until the read loop ends or the reaper evicts it.
type Handler struct {
	registry   *presence.Registry
	users      repositories.UserRepository
	messages   repositories.MessageRepository
	reconciler *delivery.Reconciler
}

// NewHandler constructs a Handler.
func NewHandler(registry *presence.Registry, users repositories.UserRepository, messages repositories.MessageRepository, reconciler *delivery.Reconciler) *Handler {
	return &Handler{registry: registry, users: users, messages: messages, reconciler: reconciler}
}

// Handle upgrades the connection and runs the event loop.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-server/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		IP:          observability.IPFromRequest(c.Request),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishConnEvent(ctx, "ws_connect", info, "", "")

	go h.readLoop(info, NewClient(conn))
}

func (h *Handler) readLoop(info ConnInfo, client *Client) {
	var closeReason string
	defer func() {
		userID := ""
		if sess := h.dropSession(info.ConnID, closeReason); sess != nil {
			userID = sess.UserID
		}
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishConnEvent(context.Background(), "ws_disconnect", info, closeReason, userID)
		client.Close()
	}()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.send(client, EventMessageError, ErrorPayload{Mensaje: "evento mal formado"})
			continue
		}

		h.registry.Touch(info.ConnID)
		h.dispatch(context.Background(), info.ConnID, client, env)
	}
}

func (h *Handler) dispatch(ctx context.Context, connID string, conn presence.Conn, env Envelope) {
	observability.IncWSEvent(env.Event)

	switch env.Event {
	case EventLogin:
		h.handleLogin(ctx, connID, conn, env.Payload)
	case EventMessage:
		h.handleBroadcast(connID, conn, env.Payload)
	case EventPersonalMessage:
		h.handlePersonal(ctx, connID, conn, env.Payload)
	case EventTyping:
		h.handleTyping(connID, env.Payload)
	case EventMarkRead:
		h.handleMarkRead(ctx, connID, conn, env.Payload)
	case EventGetUsers:
		h.handleRoster(connID, conn)
	default:
		h.send(conn, EventMessageError, ErrorPayload{Mensaje: "evento desconocido: " + env.Event})
	}
}

// handleLogin validates credentials, registers the session and
// announces arrival. The durable online flag is best-effort: a store
// failure is logged but never blocks the in-memory transition.
func (h *Handler) handleLogin(ctx context.Context, connID string, conn presence.Conn, payload json.RawMessage) {
	var req LoginRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.send(conn, EventLoginError, ErrorPayload{Mensaje: "datos de login mal formados"})
		return
	}

	nombre := strings.TrimSpace(req.Nombre)
	uid := strings.TrimSpace(req.UID)
	email := strings.TrimSpace(req.Email)
	if nombre == "" || uid == "" {
		h.send(conn, EventLoginError, ErrorPayload{Mensaje: "Datos incompletos: nombre y uid requeridos"})
		return
	}

	sess, err := h.registry.Register(connID, conn, uid, nombre, email)
	if err != nil {
		h.send(conn, EventLoginError, ErrorPayload{Mensaje: "Usuario ya conectado desde otro dispositivo"})
		return
	}

	go func() {
		now := time.Now()
		if err := h.users.SetOnlineStatus(context.Background(), uid, true, &now); err != nil {
			log.Printf("online flag update failed for %s: %v", uid, err)
		}
	}()

	log.Printf("user authenticated: %s (%s)", nombre, uid)

	h.send(conn, EventLoginOK, LoginOK{
		Usuario:        sessionView(sess),
		UsuariosOnline: h.registry.Snapshot(),
	})
	h.broadcastExcept(connID, EventUserConnected, UserEvent{Usuario: sessionView(sess)})
}

// handleBroadcast re-emits the payload to every connected session.
// Ephemeral room chat, nothing is persisted.
func (h *Handler) handleBroadcast(connID string, conn presence.Conn, payload json.RawMessage) {
	sess := h.registry.Lookup(connID)
	if sess == nil {
		h.send(conn, EventMessageError, ErrorPayload{Mensaje: "Usuario no autenticado"})
		return
	}

	out := BroadcastMessage{
		Usuario:   sess.Name,
		Mensaje:   payload,
		Timestamp: time.Now().UnixMilli(),
		UID:       sess.UserID,
	}
	for _, peer := range h.registry.Sessions() {
		h.send(peer.Conn, EventMessage, out)
	}
}

// handlePersonal persists a direct message and routes it to the
// target's live connection. Exactly one record is created per accepted
// send; the delivered transition only happens when the target is
// online at send time.
func (h *Handler) handlePersonal(ctx context.Context, connID string, conn presence.Conn, payload json.RawMessage) {
	sess := h.registry.Lookup(connID)
	if sess == nil {
		h.send(conn, EventMessageError, ErrorPayload{Mensaje: "Usuario no autenticado"})
		return
	}

	var req PersonalRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.send(conn, EventMessageError, ErrorPayload{Mensaje: "mensaje personal mal formado"})
		return
	}

	contenido := strings.TrimSpace(req.Mensaje)
	tipo := req.Tipo
	if tipo == "" {
		tipo = models.TypeText
	}
	if !models.ValidMessageType(tipo) {
		h.send(conn, EventMessageError, ErrorPayload{Mensaje: "tipo de mensaje no válido"})
		return
	}

	// Persistence is best-effort here: a store failure must not stop
	// the live delivery, so the message keeps flowing with id 0.
	var msgID int
	msg, err := h.messages.CreateMessage(ctx, sess.UserID, req.Para, contenido, tipo, nil)
	if err != nil {
		log.Printf("message persist failed %s -> %s: %v", sess.UserID, req.Para, err)
	} else {
		msgID = msg.ID
	}

	full := PersonalMessage{
		ID:           msgID,
		De:           sess.UserID,
		Para:         req.Para,
		Mensaje:      contenido,
		Tipo:         tipo,
		Timestamp:    time.Now().UnixMilli(),
		NombreEmisor: sess.Name,
	}

	target := h.registry.FindByUserID(req.Para)
	if target == nil {
		observability.IncDelivery("offline")
		h.send(conn, EventMessageSent, SentAck{
			PersonalMessage: full,
			Entregado:       false,
			Error:           "Usuario no disponible",
		})
		return
	}

	h.send(target.Conn, EventPersonalMessage, full)
	h.send(conn, EventMessageSent, SentAck{PersonalMessage: full, Entregado: true})
	observability.IncDelivery("delivered")

	if msgID != 0 {
		// The store update trails the live notification on purpose: a
		// slow store call must not stall delivery.
		go func(id int) {
			if err := h.reconciler.MarkDelivered(context.Background(), id); err != nil {
				log.Printf("delivered transition failed: %v", err)
			}
		}(msgID)
	}
}

// handleTyping forwards a typing indicator to the target, if online.
// Loss is acceptable: offline target and unauthenticated sender are
// both silent no-ops.
func (h *Handler) handleTyping(connID string, payload json.RawMessage) {
	sess := h.registry.Lookup(connID)
	if sess == nil {
		return
	}

	var req TypingRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}

	target := h.registry.FindByUserID(req.Para)
	if target == nil {
		return
	}
	h.send(target.Conn, EventTyping, TypingNotice{
		De:          sess.UserID,
		Nombre:      sess.Name,
		Escribiendo: req.Escribiendo,
	})
}

// handleMarkRead advances a received message to leido and notifies the
// original sender when online. A receipt from anyone but the recorded
// receiver never mutates the record.
func (h *Handler) handleMarkRead(ctx context.Context, connID string, conn presence.Conn, payload json.RawMessage) {
	sess := h.registry.Lookup(connID)
	if sess == nil {
		h.send(conn, EventMessageError, ErrorPayload{Mensaje: "Usuario no autenticado"})
		return
	}

	var req ReadRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.send(conn, EventMessageError, ErrorPayload{Mensaje: "recibo de lectura mal formado"})
		return
	}

	msg, err := h.reconciler.MarkRead(ctx, req.MensajeID, sess.UserID)
	switch {
	case err == nil:
	case errors.Is(err, delivery.ErrForbidden), errors.Is(err, repositories.ErrMessageNotFound), errors.Is(err, repositories.ErrStaleState):
		log.Printf("read receipt ignored for message %d from %s: %v", req.MensajeID, sess.UserID, err)
		return
	default:
		h.send(conn, EventMessageError, ErrorPayload{Mensaje: "Error al marcar mensaje como leído"})
		return
	}

	if sender := h.registry.FindByUserID(msg.SenderID); sender != nil {
		leidoEn := time.Now()
		if msg.ReadAt != nil {
			leidoEn = *msg.ReadAt
		}
		h.send(sender.Conn, EventMessageRead, ReadNotice{
			MensajeID: msg.ID,
			De:        sess.UserID,
			LeidoEn:   leidoEn,
		})
	}
}

// handleRoster answers a presence query. Silent no-op for
// unauthenticated connections, matching the typing indicator policy.
func (h *Handler) handleRoster(connID string, conn presence.Conn) {
	if h.registry.Lookup(connID) == nil {
		return
	}
	usuarios := h.registry.Snapshot()
	h.send(conn, EventOnlineUsers, OnlineUsers{Usuarios: usuarios, Total: len(usuarios)})
}

// dropSession removes the session bound to the connection, flags the
// user offline (best-effort) and broadcasts departure. Idempotent:
// once the registry entry is gone this is a no-op, so a reaper
// eviction racing a disconnect yields a single departure broadcast.
func (h *Handler) dropSession(connID, reason string) *presence.Session {
	sess := h.registry.Remove(connID)
	if sess == nil {
		return nil
	}

	go func(uid string) {
		if err := h.users.SetOnlineStatus(context.Background(), uid, false, nil); err != nil {
			log.Printf("offline flag update failed for %s: %v", uid, err)
		}
	}(sess.UserID)

	h.broadcastExcept(connID, EventUserDisconnected, UserEvent{Usuario: sessionView(sess)})
	log.Printf("user disconnected: %s (%s) reason=%s", sess.Name, sess.UserID, reason)
	return sess
}

func (h *Handler) broadcastExcept(connID, event string, payload interface{}) {
	for _, peer := range h.registry.Sessions() {
		if peer.ConnID == connID {
			continue
		}
		h.send(peer.Conn, event, payload)
	}
}

func (h *Handler) send(conn presence.Conn, event string, payload interface{}) {
	if err := conn.WriteJSON(OutEvent{Event: event, Payload: payload}); err != nil {
		log.Printf("websocket write error: %v", err)
	}
}

func (h *Handler) publishConnEvent(ctx context.Context, name string, info ConnInfo, reason, userID string) {
	_ = observability.PublishEvent(ctx, "ws_events.sessions", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       name,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   userID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func sessionView(sess *presence.Session) presence.Session {
	view := *sess
	view.Conn = nil
	return view
}
