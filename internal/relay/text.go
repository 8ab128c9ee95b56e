package relay

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gorilla/websocket"

	"github.com/nhcloud/voicechat/internal/chat"
	"github.com/nhcloud/voicechat/internal/observability"
	"github.com/nhcloud/voicechat/internal/protocol"
	"github.com/nhcloud/voicechat/internal/session"
)

// TextRelay serves one turn-based text conversation per connection. The
// client drives one message at a time; processing is serialized in the read
// loop, so replies go out in the order messages arrive.
type TextRelay struct {
	sessions     *session.Registry
	completer    chat.Completer
	instructions string
	metrics      *observability.Metrics
}

func NewTextRelay(sessions *session.Registry, completer chat.Completer, instructions string, metrics *observability.Metrics) *TextRelay {
	return &TextRelay{
		sessions:     sessions,
		completer:    completer,
		instructions: instructions,
		metrics:      metrics,
	}
}

func (r *TextRelay) Run(ctx context.Context, client *peerConn, sessionID string) error {
	if r.completer == nil {
		_ = client.WriteJSON(protocol.NewErrorFrame(
			"text mode is not configured: upstream endpoint or credential is missing"))
		r.metrics.RelayErrors.WithLabelValues("text", "config_missing").Inc()
		return errors.New("chat upstream not configured")
	}

	if err := client.WriteJSON(protocol.NewSessionCreated(sessionID)); err != nil {
		return fmt.Errorf("send session.created: %w", err)
	}

	// Turn history lives for this socket's lifetime only.
	history := []chat.Message{{Role: chat.RoleSystem, Content: r.instructions}}

	for {
		msgType, data, err := client.ReadMessage()
		if err != nil {
			if isExpectedClose(ctx, err) {
				log.Printf("[%s] text client disconnected", shortID(sessionID))
				return nil
			}
			return fmt.Errorf("client read: %w", err)
		}
		if msgType != websocket.TextMessage {
			log.Printf("[%s] ignoring non-text frame in text mode", shortID(sessionID))
			continue
		}

		text, ok := protocol.DecodeTextMessage(data)
		if !ok {
			if typ, hasType := protocol.TypeOf(data); hasType {
				log.Printf("[%s] ignoring message type %q", shortID(sessionID), typ)
			} else {
				log.Printf("[%s] ignoring malformed client message", shortID(sessionID))
			}
			continue
		}

		r.sessions.Touch(sessionID)
		r.metrics.RelayFrames.WithLabelValues("text", "client_to_upstream").Inc()
		history = append(history, chat.Message{Role: chat.RoleUser, Content: text})

		// Deltas are available from the completer, but the reply is sent to
		// the client once, in full.
		reply, err := r.completer.Complete(ctx, history, nil)
		if err != nil {
			// A failed turn is reported in-band and does not end the session.
			// The failed user turn is dropped so history matches what the
			// upstream actually saw.
			history = history[:len(history)-1]
			log.Printf("[%s] chat completion failed: %v", shortID(sessionID), err)
			r.metrics.RelayErrors.WithLabelValues("text", "completion").Inc()
			if werr := client.WriteJSON(protocol.NewErrorFrame(err.Error())); werr != nil {
				if isExpectedClose(ctx, werr) {
					return nil
				}
				return fmt.Errorf("send error frame: %w", werr)
			}
			continue
		}

		history = append(history, chat.Message{Role: chat.RoleAssistant, Content: reply})
		r.metrics.RelayFrames.WithLabelValues("text", "upstream_to_client").Inc()

		if err := client.WriteJSON(protocol.NewTextResponse(reply)); err != nil {
			if isExpectedClose(ctx, err) {
				return nil
			}
			return fmt.Errorf("send text response: %w", err)
		}
	}
}
