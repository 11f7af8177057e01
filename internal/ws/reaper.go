package ws

import (
	"context"
	"log"
	"time"

	"chat-server/internal/models"
	"chat-server/internal/observability"
)

// Reaper periodically evicts sessions idle past the threshold. It is
// the only recovery path for ungraceful disconnects that never deliver
// a close frame. On the same period it also revisits enviado-state
// messages whose receiver is online now and delivers them, closing the
// lookup-vs-delivery race window left by live routing.
type Reaper struct {
	handler   *Handler
	interval  time.Duration
	threshold time.Duration
	stop      chan struct{}
}

// NewReaper constructs a Reaper over the handler's registry.
func NewReaper(handler *Handler, interval, threshold time.Duration) *Reaper {
	return &Reaper{
		handler:   handler,
		interval:  interval,
		threshold: threshold,
		stop:      make(chan struct{}),
	}
}

// Run blocks sweeping on the configured period until Stop is called.
func (r *Reaper) Run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.stop:
			return
		}
	}
}

// Stop terminates Run.
func (r *Reaper) Stop() {
	close(r.stop)
}

// Sweep runs one eviction plus redelivery pass.
func (r *Reaper) Sweep() {
	r.evictIdle()
	r.redeliverPending()
}

func (r *Reaper) evictIdle() {
	for _, connID := range r.handler.registry.IdleConnIDs(r.threshold) {
		sess := r.handler.dropSession(connID, "inactividad")
		if sess == nil {
			continue
		}
		_ = sess.Conn.Close()
		observability.IncReaperEviction()
		log.Printf("session reaped for inactivity: %s (%s)", sess.Name, sess.UserID)
	}
}

// redeliverPending pushes messages stuck in enviado to receivers that
// are online now and advances them to entregado.
func (r *Reaper) redeliverPending() {
	ctx := context.Background()
	for _, sess := range r.handler.registry.Sessions() {
		pending, err := r.handler.messages.ListUnread(ctx, sess.UserID)
		if err != nil {
			log.Printf("redelivery scan failed for %s: %v", sess.UserID, err)
			continue
		}

		for _, msg := range pending {
			if msg.State != models.StateSent {
				continue
			}
			r.handler.send(sess.Conn, EventPersonalMessage, PersonalMessage{
				ID:           msg.ID,
				De:           msg.SenderID,
				Para:         msg.ReceiverID,
				Mensaje:      msg.Content,
				Tipo:         msg.Type,
				Timestamp:    msg.CreatedAt.UnixMilli(),
				NombreEmisor: r.senderName(msg.SenderID),
			})
			if err := r.handler.reconciler.MarkDelivered(ctx, msg.ID); err != nil {
				log.Printf("redelivery transition failed: %v", err)
				continue
			}
			observability.IncDelivery("redelivered")
		}
	}
}

func (r *Reaper) senderName(userID string) string {
	if sess := r.handler.registry.FindByUserID(userID); sess != nil {
		return sess.Name
	}
	user, err := r.handler.users.GetUser(context.Background(), userID)
	if err != nil {
		return ""
	}
	return user.Name
}
