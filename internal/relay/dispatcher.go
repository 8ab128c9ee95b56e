package relay

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nhcloud/voicechat/internal/admission"
	"github.com/nhcloud/voicechat/internal/archive"
	"github.com/nhcloud/voicechat/internal/observability"
	"github.com/nhcloud/voicechat/internal/session"
)

// Dispatcher owns the lifecycle of every inbound connection: admission,
// session creation, relay selection, and guaranteed cleanup.
type Dispatcher struct {
	sessions *session.Registry
	limiter  *admission.Limiter
	voice    *VoiceRelay
	text     *TextRelay
	store    archive.Store
	metrics  *observability.Metrics
}

func NewDispatcher(
	sessions *session.Registry,
	limiter *admission.Limiter,
	voice *VoiceRelay,
	text *TextRelay,
	store archive.Store,
	metrics *observability.Metrics,
) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		limiter:  limiter,
		voice:    voice,
		text:     text,
		store:    store,
		metrics:  metrics,
	}
}

// Handle runs one upgraded client connection to completion. The caller closes
// the socket; Handle guarantees that session removal, admission release, and
// archival happen exactly once however the relay exits.
func (d *Dispatcher) Handle(ctx context.Context, conn *websocket.Conn, mode session.Mode, token string) {
	userID := ResolveUserID(token)

	allowed, reason := d.limiter.CheckAndReserve(userID, time.Now())
	if !allowed {
		log.Printf("admission denied for user %s: %s", userID, reason)
		d.metrics.AdmissionDenials.WithLabelValues(denialLabel(reason)).Inc()
		closePolicyViolation(conn, reason)
		return
	}

	sess := d.sessions.Create(userID, mode)
	log.Printf("[%s] session started: user=%s mode=%s", shortID(sess.ID), userID, mode)
	d.metrics.SessionEvents.WithLabelValues("created").Inc()
	d.metrics.ActiveSessions.Set(float64(d.sessions.ActiveCount()))

	runErr := d.runRelay(ctx, conn, mode, sess.ID)

	d.finish(sess, userID, runErr)
}

// runRelay dispatches to the mode's relay and converts a panic into an error
// so the cleanup path always runs normally.
func (d *Dispatcher) runRelay(ctx context.Context, conn *websocket.Conn, mode session.Mode, sessionID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("relay panic: %v", r)
		}
	}()

	client := newPeerConn(conn)
	switch mode {
	case session.ModeText:
		return d.text.Run(ctx, client, sessionID)
	default:
		return d.voice.Run(ctx, client, sessionID)
	}
}

func (d *Dispatcher) finish(sess *session.Session, userID string, runErr error) {
	removed, ok := d.sessions.Remove(sess.ID)
	if !ok {
		// Already evicted by the sweeper; archive what we know.
		removed = sess
	}
	d.limiter.Release(userID)
	d.metrics.SessionEvents.WithLabelValues("ended").Inc()
	d.metrics.ActiveSessions.Set(float64(d.sessions.ActiveCount()))

	endReason := "closed"
	if runErr != nil {
		endReason = runErr.Error()
		log.Printf("[%s] session ended with error: %v", shortID(sess.ID), runErr)
	}
	log.Printf("[%s] session ended: user=%s mode=%s messages=%d",
		shortID(sess.ID), userID, removed.Mode, removed.MessageCount)

	// The request context may already be cancelled by the disconnect that
	// ended the relay; archival gets its own deadline.
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.store.SaveSession(saveCtx, archive.Record{
		SessionID:    removed.ID,
		UserID:       removed.UserID,
		Mode:         removed.Mode,
		CreatedAt:    removed.CreatedAt,
		EndedAt:      time.Now().UTC(),
		MessageCount: removed.MessageCount,
		EndReason:    endReason,
	}); err != nil {
		log.Printf("[%s] archive failed: %v", shortID(sess.ID), err)
	}
}

// closePolicyViolation sends a policy-violation close frame carrying the
// denial reason, then closes the socket.
func closePolicyViolation(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(2*time.Second))
	_ = conn.Close()
}

func denialLabel(reason string) string {
	if reason == admission.ReasonRateLimit {
		return "rate_limit"
	}
	return "max_connections"
}
