package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nhcloud/voicechat/internal/config"
	"github.com/nhcloud/voicechat/internal/observability"
	"github.com/nhcloud/voicechat/internal/protocol"
	"github.com/nhcloud/voicechat/internal/session"
	"github.com/nhcloud/voicechat/internal/tools"
)

const maxFrameBytes = 10 << 20

// VoiceRelay proxies frames bidirectionally between a client socket and the
// realtime upstream, intercepting completed function calls to run local tools.
type VoiceRelay struct {
	cfg      config.Config
	sessions *session.Registry
	metrics  *observability.Metrics
	dialer   *websocket.Dialer

	// upstreamURL overrides the endpoint-derived URL. Used by tests.
	upstreamURL string
}

func NewVoiceRelay(cfg config.Config, sessions *session.Registry, metrics *observability.Metrics) *VoiceRelay {
	return &VoiceRelay{
		cfg:      cfg,
		sessions: sessions,
		metrics:  metrics,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Run drives one voice session until either side closes. It returns nil on a
// normal teardown and an error only for failures worth surfacing to the
// dispatcher's log.
func (r *VoiceRelay) Run(ctx context.Context, client *peerConn, sessionID string) error {
	if !r.configured() {
		_ = client.WriteJSON(protocol.NewErrorFrame(
			"voice mode is not configured: upstream endpoint, credential, or deployment is missing"))
		r.metrics.RelayErrors.WithLabelValues("voice", "config_missing").Inc()
		return errors.New("realtime upstream not configured")
	}

	target := r.upstreamURL
	if target == "" {
		target = buildRealtimeURL(r.cfg.AzureEndpoint, r.cfg.RealtimeAPIVersion, r.cfg.RealtimeDeployment, r.cfg.AzureAPIKey)
	}

	conn, resp, err := r.dialer.DialContext(ctx, target, nil)
	if err != nil {
		log.Printf("[%s] realtime dial failed: %s: %v", shortID(sessionID), dialFailureHint(resp, r.cfg.RealtimeDeployment), err)
		r.metrics.RelayErrors.WithLabelValues("voice", "upstream_connect").Inc()
		// The client never sees the credential or the upstream URL.
		_ = client.WriteJSON(protocol.NewErrorFrame("failed to connect to realtime upstream"))
		return fmt.Errorf("dial realtime upstream: %w", err)
	}
	conn.SetReadLimit(maxFrameBytes)
	upstream := newPeerConn(conn)
	defer upstream.Close()

	log.Printf("[%s] connected to realtime upstream", shortID(sessionID))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	go func() { errc <- r.pumpClientToUpstream(ctx, client, upstream, sessionID) }()
	go func() { errc <- r.pumpUpstreamToClient(ctx, upstream, client, sessionID) }()

	// First pump to finish cancels the other; closing both sockets unblocks
	// its pending read. Expected close errors are already swallowed inside
	// the pumps.
	first := <-errc
	cancel()
	_ = client.Close()
	_ = upstream.Close()
	second := <-errc

	if first != nil {
		return first
	}
	return second
}

func (r *VoiceRelay) configured() bool {
	return r.upstreamURL != "" ||
		(r.cfg.UpstreamConfigured() && strings.TrimSpace(r.cfg.RealtimeDeployment) != "")
}

func (r *VoiceRelay) pumpClientToUpstream(ctx context.Context, client, upstream *peerConn, sessionID string) error {
	for {
		msgType, data, err := client.ReadMessage()
		if err != nil {
			if isExpectedClose(ctx, err) {
				if ctx.Err() == nil {
					log.Printf("[%s] client disconnected", shortID(sessionID))
				}
				return nil
			}
			return fmt.Errorf("client read: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}

		r.sessions.Touch(sessionID)
		if msgType == websocket.TextMessage {
			r.logClientFrame(sessionID, data)
		}
		r.metrics.RelayFrames.WithLabelValues("voice", "client_to_upstream").Inc()

		if err := upstream.Write(msgType, data); err != nil {
			if isExpectedClose(ctx, err) {
				return nil
			}
			return fmt.Errorf("upstream write: %w", err)
		}
	}
}

func (r *VoiceRelay) pumpUpstreamToClient(ctx context.Context, upstream, client *peerConn, sessionID string) error {
	for {
		msgType, data, err := upstream.ReadMessage()
		if err != nil {
			if isExpectedClose(ctx, err) {
				if ctx.Err() == nil {
					log.Printf("[%s] upstream disconnected", shortID(sessionID))
				}
				return nil
			}
			return fmt.Errorf("upstream read: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}

		if msgType == websocket.TextMessage {
			if call, ok := protocol.DecodeFunctionCallDone(data); ok {
				if err := r.handleFunctionCall(sessionID, upstream, call); err != nil {
					if isExpectedClose(ctx, err) {
						return nil
					}
					return err
				}
			} else {
				r.logUpstreamFrame(sessionID, data)
			}
		}
		r.metrics.RelayFrames.WithLabelValues("voice", "upstream_to_client").Inc()

		// The intercepted frame is still forwarded for UI visibility.
		if err := client.Write(msgType, data); err != nil {
			if isExpectedClose(ctx, err) {
				return nil
			}
			return fmt.Errorf("client write: %w", err)
		}
	}
}

// handleFunctionCall executes the named local tool and feeds the result back
// to the upstream so generation resumes. Tool execution itself cannot fail;
// only the upstream writes can.
func (r *VoiceRelay) handleFunctionCall(sessionID string, upstream *peerConn, call protocol.FunctionCallDone) error {
	log.Printf("[%s] function call %s args=%s", shortID(sessionID), call.Name, call.Arguments)
	result := tools.Execute(call.Name, call.Arguments)
	r.metrics.ToolCalls.WithLabelValues(call.Name).Inc()

	if err := upstream.WriteJSON(protocol.NewFunctionCallOutput(call.CallID, result)); err != nil {
		return fmt.Errorf("send function result: %w", err)
	}
	if err := upstream.WriteJSON(protocol.NewResponseCreate()); err != nil {
		return fmt.Errorf("resume after function result: %w", err)
	}
	return nil
}

func (r *VoiceRelay) logClientFrame(sessionID string, data []byte) {
	typ, ok := protocol.TypeOf(data)
	if !ok {
		log.Printf("[%s] client -> upstream: non-JSON text frame", shortID(sessionID))
		return
	}
	// Audio chunks arrive continuously and are excluded from logging.
	if typ == protocol.TypeAudioAppend {
		return
	}
	log.Printf("[%s] client -> upstream: %s", shortID(sessionID), typ)
}

func (r *VoiceRelay) logUpstreamFrame(sessionID string, data []byte) {
	typ, ok := protocol.TypeOf(data)
	if !ok {
		log.Printf("[%s] upstream -> client: non-JSON text frame", shortID(sessionID))
		return
	}
	switch typ {
	case "response.audio.delta", "response.audio_transcript.delta":
		return
	}
	log.Printf("[%s] upstream -> client: %s", shortID(sessionID), typ)
}

// buildRealtimeURL rewrites the HTTPS endpoint to a secure websocket URL and
// appends the connection parameters.
func buildRealtimeURL(endpoint, apiVersion, deployment, apiKey string) string {
	ws := endpoint
	if strings.HasPrefix(ws, "https://") {
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	}
	ws = strings.TrimRight(ws, "/") + "/openai/realtime"

	q := url.Values{}
	q.Set("api-version", apiVersion)
	q.Set("deployment", deployment)
	q.Set("api-key", apiKey)
	return ws + "?" + q.Encode()
}

// dialFailureHint classifies a handshake failure for operator logs. The hint
// is never sent to the client.
func dialFailureHint(resp *http.Response, deployment string) string {
	if resp == nil {
		return "network or handshake failure"
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "authentication rejected; check AZURE_API_KEY and AZURE_ENDPOINT"
	case http.StatusNotFound:
		return fmt.Sprintf("deployment not found; check AZURE_REALTIME_DEPLOYMENT (%s)", deployment)
	default:
		return fmt.Sprintf("handshake status %d", resp.StatusCode)
	}
}

func shortID(sessionID string) string {
	if len(sessionID) > 8 {
		return sessionID[:8]
	}
	return sessionID
}
