package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-server/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrStaleState      = errors.New("message state already past requested transition")
)

const messageSelectColumns = `id, sender_id, receiver_id, content, type, state, reply_to, reactions, deleted, deleted_by, created_at, delivered_at, read_at, deleted_at`

// MessageRepository abstracts persisted direct messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, senderID, receiverID, content string, msgType models.MessageType, replyTo *int) (models.Message, error)
	GetMessage(ctx context.Context, id int) (models.Message, error)
	UpdateState(ctx context.Context, id int, state models.MessageState, at time.Time) error
	SetReaction(ctx context.Context, id int, userID string, kind models.ReactionKind) error
	ClearReaction(ctx context.Context, id int, userID string) error
	SoftDelete(ctx context.Context, id int, actorID string, at time.Time) error
	ListBetween(ctx context.Context, userA, userB string, limit, offset int) ([]models.Message, error)
	ListUnread(ctx context.Context, receiverID string) ([]models.Message, error)
	LastBetween(ctx context.Context, userA, userB string) (models.Message, error)
	SearchBetween(ctx context.Context, userA, userB, query string, limit int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a direct message in state enviado.
func (r *MessageRepo) CreateMessage(ctx context.Context, senderID, receiverID, content string, msgType models.MessageType, replyTo *int) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (sender_id, receiver_id, content, type, state, reply_to) VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+messageSelectColumns,
		senderID, receiverID, content, msgType, models.StateSent, replyTo).StructScan(&msg)
	return msg, err
}

// GetMessage retrieves a single message, including soft-deleted ones.
func (r *MessageRepo) GetMessage(ctx context.Context, id int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageSelectColumns+` FROM messages WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// UpdateState advances the delivery state. The WHERE clause enforces
// forward-only transitions; a transition the record is already past is
// reported as ErrStaleState.
func (r *MessageRepo) UpdateState(ctx context.Context, id int, state models.MessageState, at time.Time) error {
	var query string
	switch state {
	case models.StateDelivered:
		query = `UPDATE messages SET state=$2, delivered_at=$3 WHERE id=$1 AND state=$4`
	case models.StateRead:
		query = `UPDATE messages SET state=$2, read_at=$3 WHERE id=$1 AND state IN ($4, $5)`
	default:
		return fmt.Errorf("unsupported state transition to %q", state)
	}

	var res sql.Result
	var err error
	if state == models.StateDelivered {
		res, err = r.db.ExecContext(ctx, query, id, state, at, models.StateSent)
	} else {
		res, err = r.db.ExecContext(ctx, query, id, state, at, models.StateSent, models.StateDelivered)
	}
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		if _, getErr := r.GetMessage(ctx, id); getErr != nil {
			return getErr
		}
		return ErrStaleState
	}
	return nil
}

// SetReaction upserts the user's reaction. One reaction per user,
// last write wins.
func (r *MessageRepo) SetReaction(ctx context.Context, id int, userID string, kind models.ReactionKind) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET reactions = reactions || jsonb_build_object($2::text, $3::text) WHERE id=$1`, id, userID, kind)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ClearReaction removes the user's reaction, if any.
func (r *MessageRepo) ClearReaction(ctx context.Context, id int, userID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET reactions = reactions - $2::text WHERE id=$1`, id, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SoftDelete marks the message deleted without removing the row.
func (r *MessageRepo) SoftDelete(ctx context.Context, id int, actorID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET deleted=TRUE, deleted_by=$2, deleted_at=$3 WHERE id=$1`, id, actorID, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListBetween returns the conversation between two users, newest
// first, excluding soft-deleted messages.
func (r *MessageRepo) ListBetween(ctx context.Context, userA, userB string, limit, offset int) ([]models.Message, error) {
	query := `SELECT ` + messageSelectColumns + ` FROM messages
        WHERE ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))
        AND deleted = FALSE
        ORDER BY created_at DESC
        LIMIT $3 OFFSET $4`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, userA, userB, limit, offset)
	return msgs, err
}

// ListUnread returns the not-yet-read messages addressed to a user.
func (r *MessageRepo) ListUnread(ctx context.Context, receiverID string) ([]models.Message, error) {
	query := `SELECT ` + messageSelectColumns + ` FROM messages
        WHERE receiver_id=$1 AND state IN ($2, $3) AND deleted = FALSE
        ORDER BY created_at ASC`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, receiverID, models.StateSent, models.StateDelivered)
	return msgs, err
}

// LastBetween returns the most recent message of a conversation.
func (r *MessageRepo) LastBetween(ctx context.Context, userA, userB string) (models.Message, error) {
	query := `SELECT ` + messageSelectColumns + ` FROM messages
        WHERE ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))
        AND deleted = FALSE
        ORDER BY created_at DESC
        LIMIT 1`
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, query, userA, userB)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// SearchBetween finds conversation messages whose content matches the
// query, case-insensitively, newest first.
func (r *MessageRepo) SearchBetween(ctx context.Context, userA, userB, query string, limit int) ([]models.Message, error) {
	sqlQuery := `SELECT ` + messageSelectColumns + ` FROM messages
        WHERE ((sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1))
        AND deleted = FALSE
        AND content ILIKE '%' || $3 || '%'
        ORDER BY created_at DESC
        LIMIT $4`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, sqlQuery, userA, userB, query, limit)
	return msgs, err
}

func requireRow(res sql.Result) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
