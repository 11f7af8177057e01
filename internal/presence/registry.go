package presence

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrAlreadyOnline is returned when a login arrives for a user id that
// already owns a live session. Duplicates are rejected, never merged,
// so the first connection is never orphaned.
var ErrAlreadyOnline = errors.New("user already connected from another device")

// Conn is the transport side of a session. *ws.Client satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Session binds a live connection to an authenticated user identity.
type Session struct {
	ConnID       string    `json:"socketId"`
	UserID       string    `json:"uid"`
	Name         string    `json:"nombre"`
	Email        string    `json:"email"`
	Online       bool      `json:"online"`
	LastActivity time.Time `json:"ultimaConexion"`

	Conn Conn `json:"-"`
}

// Registry is the in-memory store of all active sessions. It keeps a
// user-id index alongside the primary connection map; both are updated
// within the same critical section. Mutations are serialized by the
// mutex and never overlap a durable-store call.
type Registry struct {
	mu      sync.RWMutex
	byConn  map[string]*Session
	byUser  map[string]*Session
	nowFunc func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn:  make(map[string]*Session),
		byUser:  make(map[string]*Session),
		nowFunc: time.Now,
	}
}

// Register inserts a session for the connection. It fails with
// ErrAlreadyOnline if any live session already carries userID.
func (r *Registry) Register(connID string, conn Conn, userID, name, email string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byUser[userID]; taken {
		return nil, ErrAlreadyOnline
	}

	sess := &Session{
		ConnID:       connID,
		UserID:       userID,
		Name:         name,
		Email:        email,
		Online:       true,
		LastActivity: r.nowFunc(),
		Conn:         conn,
	}
	r.byConn[connID] = sess
	r.byUser[userID] = sess
	return sess, nil
}

// Lookup returns the session bound to the connection, or nil.
func (r *Registry) Lookup(connID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConn[connID]
}

// FindByUserID resolves a user id to its live session, or nil.
func (r *Registry) FindByUserID(userID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[userID]
}

// Remove deletes and returns the session for the connection, or nil if
// none existed. The caller broadcasts departure and reconciles durable
// state; calling Remove twice for the same connection is a no-op.
func (r *Registry) Remove(connID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.byConn[connID]
	if !ok {
		return nil
	}
	delete(r.byConn, connID)
	delete(r.byUser, sess.UserID)
	return sess
}

// Touch stamps the session's last activity, if it exists.
func (r *Registry) Touch(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.byConn[connID]; ok {
		sess.LastActivity = r.nowFunc()
	}
}

// Snapshot returns a copy of every session ordered by name, for "who
// is online" answers. It is atomic but not isolated against later
// mutation.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.byConn))
	for _, sess := range r.byConn {
		copied := *sess
		copied.Conn = nil
		out = append(out, copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Sessions returns the live session records. Callers may write to the
// attached connections but must not mutate the sessions themselves.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.byConn))
	for _, sess := range r.byConn {
		out = append(out, sess)
	}
	return out
}

// IdleConnIDs returns the connections whose last activity is older
// than the threshold, for the reaper to evict.
func (r *Registry) IdleConnIDs(threshold time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := r.nowFunc().Add(-threshold)
	var stale []string
	for connID, sess := range r.byConn {
		if sess.LastActivity.Before(cutoff) {
			stale = append(stale, connID)
		}
	}
	return stale
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
