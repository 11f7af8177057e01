// Package delivery bridges transient delivery and read acknowledgements
// with the durable message record's lifecycle. Unlike the presence
// sync, which tolerates store failures, every mutation here is strict:
// failures are reported to the caller, never swallowed.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-server/internal/models"
	"chat-server/internal/repositories"
)

var (
	// ErrForbidden is returned when the actor does not own the
	// mutation: reading a message they don't receive, or deleting a
	// message they didn't send.
	ErrForbidden = errors.New("not allowed to mutate this message")

	// ErrInvalidReaction is returned for unknown reaction kinds.
	ErrInvalidReaction = errors.New("unknown reaction kind")
)

// Reconciler applies delivery-state mutations to persisted messages.
type Reconciler struct {
	messages repositories.MessageRepository
	nowFunc  func() time.Time
}

// NewReconciler constructs a Reconciler over the message store.
func NewReconciler(messages repositories.MessageRepository) *Reconciler {
	return &Reconciler{messages: messages, nowFunc: time.Now}
}

// MarkDelivered advances the message to entregado.
func (r *Reconciler) MarkDelivered(ctx context.Context, id int) error {
	if err := r.messages.UpdateState(ctx, id, models.StateDelivered, r.nowFunc()); err != nil {
		return fmt.Errorf("mark delivered %d: %w", id, err)
	}
	return nil
}

// MarkRead advances the message to leido. Only the recorded receiver
// may read a message; anyone else gets ErrForbidden and the record is
// left untouched.
func (r *Reconciler) MarkRead(ctx context.Context, id int, readerID string) (models.Message, error) {
	msg, err := r.messages.GetMessage(ctx, id)
	if err != nil {
		return models.Message{}, err
	}
	if msg.ReceiverID != readerID {
		return models.Message{}, ErrForbidden
	}
	readAt := r.nowFunc()
	if err := r.messages.UpdateState(ctx, id, models.StateRead, readAt); err != nil {
		return models.Message{}, fmt.Errorf("mark read %d: %w", id, err)
	}
	msg.State = models.StateRead
	msg.ReadAt = &readAt
	return msg, nil
}

// AddReaction sets the user's reaction on the message, replacing any
// prior reaction by the same user.
func (r *Reconciler) AddReaction(ctx context.Context, id int, userID string, kind models.ReactionKind) error {
	if !models.ValidReactionKind(kind) {
		return ErrInvalidReaction
	}
	if err := r.messages.SetReaction(ctx, id, userID, kind); err != nil {
		return fmt.Errorf("add reaction %d: %w", id, err)
	}
	return nil
}

// RemoveReaction clears the user's reaction from the message.
func (r *Reconciler) RemoveReaction(ctx context.Context, id int, userID string) error {
	if err := r.messages.ClearReaction(ctx, id, userID); err != nil {
		return fmt.Errorf("remove reaction %d: %w", id, err)
	}
	return nil
}

// SoftDelete marks the message deleted. Only the sender may delete;
// the row is kept and excluded from default retrieval.
func (r *Reconciler) SoftDelete(ctx context.Context, id int, actorID string) error {
	msg, err := r.messages.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if msg.SenderID != actorID {
		return ErrForbidden
	}
	if err := r.messages.SoftDelete(ctx, id, actorID, r.nowFunc()); err != nil {
		return fmt.Errorf("soft delete %d: %w", id, err)
	}
	return nil
}
