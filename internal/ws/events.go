package ws

import (
	"encoding/json"
	"time"

	"chat-server/internal/models"
	"chat-server/internal/presence"
)

// Client-facing event names. The wire vocabulary is kept compatible
// with the Flutter chat clients this server was written for.
const (
	EventLogin            = "login"
	EventLoginOK          = "login-ok"
	EventLoginError       = "login-error"
	EventMessage          = "mensaje"
	EventMessageError     = "mensaje-error"
	EventPersonalMessage  = "mensaje-personal"
	EventMessageSent      = "mensaje-enviado"
	EventTyping           = "escribiendo"
	EventMarkRead         = "marcar-leido"
	EventMessageRead      = "mensaje-leido"
	EventGetUsers         = "obtener-usuarios"
	EventOnlineUsers      = "usuarios-online"
	EventUserConnected    = "usuario-conectado"
	EventUserDisconnected = "usuario-desconectado"
)

// Envelope frames every client-to-server event.
type Envelope struct {
	Event   string          `json:"evento"`
	Payload json.RawMessage `json:"payload"`
}

// OutEvent frames every server-to-client event.
type OutEvent struct {
	Event   string      `json:"evento"`
	Payload interface{} `json:"payload"`
}

// LoginRequest carries login credentials.
type LoginRequest struct {
	Nombre string `json:"nombre"`
	UID    string `json:"uid"`
	Email  string `json:"email"`
}

// LoginOK acknowledges a successful login with the current roster.
type LoginOK struct {
	Usuario        presence.Session   `json:"usuario"`
	UsuariosOnline []presence.Session `json:"usuariosOnline"`
}

// ErrorPayload carries a protocol-level error back to the sender.
type ErrorPayload struct {
	Mensaje string `json:"mensaje"`
}

// BroadcastMessage is the room-wide ephemeral chat event.
type BroadcastMessage struct {
	Usuario   string          `json:"usuario"`
	Mensaje   json.RawMessage `json:"mensaje"`
	Timestamp int64           `json:"timestamp"`
	UID       string          `json:"uid"`
}

// PersonalRequest is an incoming direct message.
type PersonalRequest struct {
	Para    string             `json:"para"`
	Mensaje string             `json:"mensaje"`
	Tipo    models.MessageType `json:"tipo"`
}

// PersonalMessage is a direct message as delivered to the recipient.
type PersonalMessage struct {
	ID           int                `json:"id,omitempty"`
	De           string             `json:"de"`
	Para         string             `json:"para"`
	Mensaje      string             `json:"mensaje"`
	Tipo         models.MessageType `json:"tipo"`
	Timestamp    int64              `json:"timestamp"`
	NombreEmisor string             `json:"nombreEmisor"`
}

// SentAck confirms to the sender whether the message reached a live
// connection. Entregado false is an outcome, not an error: the message
// is persisted and shows up on the next history fetch.
type SentAck struct {
	PersonalMessage
	Entregado bool   `json:"entregado"`
	Error     string `json:"error,omitempty"`
}

// TypingRequest is an incoming typing indicator.
type TypingRequest struct {
	Para        string `json:"para"`
	Escribiendo bool   `json:"escribiendo"`
}

// TypingNotice names the typing sender to the target.
type TypingNotice struct {
	De          string `json:"de"`
	Nombre      string `json:"nombre"`
	Escribiendo bool   `json:"escribiendo"`
}

// ReadRequest is an incoming read receipt.
type ReadRequest struct {
	MensajeID int `json:"mensajeId"`
}

// ReadNotice tells the original sender their message was read.
type ReadNotice struct {
	MensajeID int       `json:"mensajeId"`
	De        string    `json:"de"`
	LeidoEn   time.Time `json:"leidoEn"`
}

// OnlineUsers answers a roster query.
type OnlineUsers struct {
	Usuarios []presence.Session `json:"usuarios"`
	Total    int                `json:"total"`
}

// UserEvent wraps a session for arrival/departure broadcasts.
type UserEvent struct {
	Usuario presence.Session `json:"usuario"`
}
