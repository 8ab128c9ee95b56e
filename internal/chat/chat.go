// Package chat provides the upstream completion client used by text-mode
// sessions.
package chat

import "context"

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DeltaHandler receives streaming reply fragments.
type DeltaHandler func(delta string) error

// Completer produces one assistant reply from the full conversation history.
// Implementations stream deltas through onDelta when available and return the
// accumulated reply.
type Completer interface {
	Complete(ctx context.Context, messages []Message, onDelta DeltaHandler) (string, error)
}
