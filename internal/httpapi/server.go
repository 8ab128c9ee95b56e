package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nhcloud/voicechat/internal/config"
	"github.com/nhcloud/voicechat/internal/observability"
	"github.com/nhcloud/voicechat/internal/relay"
	"github.com/nhcloud/voicechat/internal/session"
)

type Server struct {
	cfg        config.Config
	dispatcher *relay.Dispatcher
	upgrader   websocket.Upgrader
}

func New(cfg config.Config, dispatcher *relay.Dispatcher) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so other sites cannot drive a user's session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/ws", s.handleWS)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	archiveMode := "in-memory"
	if strings.TrimSpace(s.cfg.DatabaseURL) != "" {
		archiveMode = "postgres"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":              "ok",
		"upstream_configured": s.cfg.UpstreamConfigured(),
		"archive_mode":        archiveMode,
	})
}

// handleWS is the single inbound endpoint. Mode and token travel as query
// parameters; everything after the upgrade belongs to the dispatcher.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	mode, ok := parseMode(r.URL.Query().Get("mode"))
	token := r.URL.Query().Get("token")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(10 << 20)

	if !ok {
		closeInvalidMode(conn)
		return
	}

	s.dispatcher.Handle(r.Context(), conn, mode, token)
}

func parseMode(raw string) (session.Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "voice":
		return session.ModeVoice, true
	case "text":
		return session.ModeText, true
	default:
		return "", false
	}
}

func closeInvalidMode(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid mode")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(2*time.Second))
}
