package session

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mode selects which relay serves a connection.
type Mode string

const (
	ModeVoice Mode = "voice"
	ModeText  Mode = "text"
)

var ErrNotFound = errors.New("session not found")

// Session is the server-side record of one client connection.
type Session struct {
	ID           string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	Mode         Mode      `json:"mode"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}

// Registry owns all live sessions. Relays hold only the session id and call
// back in; they never mutate Session fields directly.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	idleTimeout time.Duration
	onExpire    func(*Session)
}

func NewRegistry(idleTimeout time.Duration) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &Registry{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
	}
}

// SetExpireHook registers a callback invoked for every session the sweeper evicts.
func (r *Registry) SetExpireHook(hook func(*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = hook
}

func (r *Registry) Create(userID string, mode Mode) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:           newSessionID(),
		UserID:       userID,
		Mode:         mode,
		CreatedAt:    now,
		LastActivity: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return clone(s)
}

func (r *Registry) Get(sessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// Touch records activity on a session. A touch racing against sweep-driven
// eviction is a no-op, not an error.
func (r *Registry) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	s.LastActivity = time.Now().UTC()
	s.MessageCount++
}

// Remove deletes a session and returns the removed record for logging.
// Removing an already-removed session returns (nil, false).
func (r *Registry) Remove(sessionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	delete(r.sessions, sessionID)
	return clone(s), true
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StartSweeper evicts idle sessions on a fixed interval until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.evictIdle()
			}
		}
	}()
}

func (r *Registry) evictIdle() {
	now := time.Now().UTC()
	var evicted []*Session

	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.LastActivity) <= r.idleTimeout {
			continue
		}
		delete(r.sessions, id)
		evicted = append(evicted, clone(s))
	}
	hook := r.onExpire
	r.mu.Unlock()

	if hook != nil {
		for _, s := range evicted {
			hook(s)
		}
	}
}

// newSessionID returns a fresh 128-bit token rendered as 32 hex characters.
func newSessionID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
