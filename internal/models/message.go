package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MessageType classifies the content of a message.
type MessageType string

const (
	TypeText     MessageType = "texto"
	TypeImage    MessageType = "imagen"
	TypeAudio    MessageType = "audio"
	TypeVideo    MessageType = "video"
	TypeFile     MessageType = "archivo"
	TypeLocation MessageType = "ubicacion"
	TypeContact  MessageType = "contacto"
	TypeSystem   MessageType = "sistema"
)

// ValidMessageType reports whether t is one of the known message types.
func ValidMessageType(t MessageType) bool {
	switch t {
	case TypeText, TypeImage, TypeAudio, TypeVideo, TypeFile, TypeLocation, TypeContact, TypeSystem:
		return true
	}
	return false
}

// MessageState is the delivery lifecycle stage of a message.
// Transitions move forward only: enviado -> entregado -> leido.
type MessageState string

const (
	StateSending   MessageState = "enviando"
	StateSent      MessageState = "enviado"
	StateDelivered MessageState = "entregado"
	StateRead      MessageState = "leido"
	StateError     MessageState = "error"
	StateDeleted   MessageState = "eliminado"
)

// ReactionKind is a reaction attached to a message by a user.
type ReactionKind string

const (
	ReactionLike  ReactionKind = "like"
	ReactionLove  ReactionKind = "love"
	ReactionHaha  ReactionKind = "haha"
	ReactionWow   ReactionKind = "wow"
	ReactionSad   ReactionKind = "sad"
	ReactionAngry ReactionKind = "angry"
)

// ValidReactionKind reports whether k is a known reaction kind.
func ValidReactionKind(k ReactionKind) bool {
	switch k {
	case ReactionLike, ReactionLove, ReactionHaha, ReactionWow, ReactionSad, ReactionAngry:
		return true
	}
	return false
}

// Reactions maps user id to that user's single reaction. Stored as JSONB.
type Reactions map[string]ReactionKind

// Value implements driver.Valuer for the reactions JSONB column.
func (r Reactions) Value() (driver.Value, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner for the reactions JSONB column.
func (r *Reactions) Scan(src interface{}) error {
	if src == nil {
		*r = Reactions{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("reactions: unsupported scan type %T", src)
	}
	return json.Unmarshal(b, r)
}

// Message is a persisted direct message between two users.
type Message struct {
	ID          int          `db:"id" json:"id"`
	SenderID    string       `db:"sender_id" json:"de"`
	ReceiverID  string       `db:"receiver_id" json:"para"`
	Content     string       `db:"content" json:"mensaje"`
	Type        MessageType  `db:"type" json:"tipo"`
	State       MessageState `db:"state" json:"estado"`
	ReplyTo     *int         `db:"reply_to" json:"mensajeRespondido,omitempty"`
	Reactions   Reactions    `db:"reactions" json:"reacciones,omitempty"`
	Deleted     bool         `db:"deleted" json:"eliminado"`
	DeletedBy   *string      `db:"deleted_by" json:"eliminadoPor,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"timestamp"`
	DeliveredAt *time.Time   `db:"delivered_at" json:"entregadoEn,omitempty"`
	ReadAt      *time.Time   `db:"read_at" json:"leidoEn,omitempty"`
	DeletedAt   *time.Time   `db:"deleted_at" json:"eliminadoEn,omitempty"`
}
