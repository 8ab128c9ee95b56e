package archive

import (
	"context"
	"time"

	"github.com/nhcloud/voicechat/internal/session"
)

// Record stores the lifecycle summary of one finished session. Message
// content is never archived.
type Record struct {
	SessionID    string       `json:"session_id"`
	UserID       string       `json:"user_id"`
	Mode         session.Mode `json:"mode"`
	CreatedAt    time.Time    `json:"created_at"`
	EndedAt      time.Time    `json:"ended_at"`
	MessageCount int          `json:"message_count"`
	EndReason    string       `json:"end_reason"`
}

// Store persists session lifecycle records.
type Store interface {
	SaveSession(ctx context.Context, record Record) error
	Close() error
}
