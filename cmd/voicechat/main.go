package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nhcloud/voicechat/internal/admission"
	"github.com/nhcloud/voicechat/internal/archive"
	"github.com/nhcloud/voicechat/internal/chat"
	"github.com/nhcloud/voicechat/internal/config"
	"github.com/nhcloud/voicechat/internal/httpapi"
	"github.com/nhcloud/voicechat/internal/observability"
	"github.com/nhcloud/voicechat/internal/relay"
	"github.com/nhcloud/voicechat/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := archive.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("archive store init failed: %v", err)
	}
	defer store.Close()

	var completer chat.Completer
	if cfg.UpstreamConfigured() {
		completer = chat.NewAzureClient(chat.AzureConfig{
			Endpoint:   cfg.AzureEndpoint,
			APIKey:     cfg.AzureAPIKey,
			Deployment: cfg.ChatDeployment,
			APIVersion: cfg.ChatAPIVersion,
		})
		log.Printf("upstream endpoint: %s (key %s)", cfg.AzureEndpoint, maskKey(cfg.AzureAPIKey))
		log.Printf("realtime deployment: %s, chat deployment: %s", cfg.RealtimeDeployment, cfg.ChatDeployment)
	} else {
		log.Printf("upstream not configured; voice and text sessions will be refused with an error frame")
	}

	sessions := session.NewRegistry(cfg.SessionIdleTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		log.Printf("[%s] session expired after idle timeout", shortID(s.ID))
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	limiter := admission.NewLimiter(admission.Config{
		MaxConnectionsPerUser: cfg.MaxConnectionsPerUser,
		MaxRequestsPerWindow:  cfg.MaxRequestsPerMinute,
		Window:                cfg.RateLimitWindow,
	})

	voice := relay.NewVoiceRelay(cfg, sessions, metrics)
	text := relay.NewTextRelay(sessions, completer, cfg.ChatInstructions, metrics)
	dispatcher := relay.NewDispatcher(sessions, limiter, voice, text, store, metrics)

	api := httpapi.New(cfg, dispatcher)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartSweeper(runCtx, cfg.SessionSweepInterval)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

func shortID(sessionID string) string {
	if len(sessionID) > 8 {
		return sessionID[:8]
	}
	return sessionID
}
