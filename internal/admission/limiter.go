package admission

import (
	"sync"
	"time"
)

const (
	ReasonMaxConnections = "max concurrent connections exceeded"
	ReasonRateLimit      = "rate limit exceeded"
)

// Config holds the admission thresholds. Zero values fall back to the
// service defaults (3 concurrent, 60 requests per 60s window).
type Config struct {
	MaxConnectionsPerUser int
	MaxRequestsPerWindow  int
	Window                time.Duration
}

// Limiter gates new sessions per user: a concurrent-connection cap plus a
// sliding-window request count. Records are created lazily and live for the
// process lifetime.
type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*userRecord
}

// userRecord carries one user's admission state. Its mutex serializes the
// compound prune/check/increment so concurrent connection bursts from the
// same user cannot exceed the limits.
type userRecord struct {
	mu sync.Mutex

	activeConnections int
	requestTimes      []time.Time
}

func NewLimiter(cfg Config) *Limiter {
	if cfg.MaxConnectionsPerUser <= 0 {
		cfg.MaxConnectionsPerUser = 3
	}
	if cfg.MaxRequestsPerWindow <= 0 {
		cfg.MaxRequestsPerWindow = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = 60 * time.Second
	}
	return &Limiter{
		cfg: cfg,
		m:   make(map[string]*userRecord),
	}
}

// CheckAndReserve admits or denies a new connection for userID. On success it
// reserves one connection slot and records the request timestamp; the caller
// must pair it with Release.
func (l *Limiter) CheckAndReserve(userID string, now time.Time) (bool, string) {
	rec := l.getOrCreate(userID)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.prune(now, l.cfg.Window)

	if rec.activeConnections >= l.cfg.MaxConnectionsPerUser {
		return false, ReasonMaxConnections
	}
	if len(rec.requestTimes) >= l.cfg.MaxRequestsPerWindow {
		return false, ReasonRateLimit
	}

	rec.activeConnections++
	rec.requestTimes = append(rec.requestTimes, now)
	return true, ""
}

// Release returns a connection slot. Releasing more times than reserved never
// drives the count negative.
func (l *Limiter) Release(userID string) {
	rec := l.getOrCreate(userID)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.activeConnections > 0 {
		rec.activeConnections--
	}
}

// ActiveConnections reports the current reservation count for userID.
func (l *Limiter) ActiveConnections(userID string) int {
	rec := l.getOrCreate(userID)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.activeConnections
}

func (l *Limiter) getOrCreate(userID string) *userRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.m[userID]
	if !ok {
		rec = &userRecord{}
		l.m[userID] = rec
	}
	return rec
}

// prune drops timestamps older than the trailing window. Timestamps are
// appended in order, so the first in-window entry bounds the cut.
func (rec *userRecord) prune(now time.Time, window time.Duration) {
	cut := 0
	for cut < len(rec.requestTimes) && now.Sub(rec.requestTimes[cut]) >= window {
		cut++
	}
	if cut > 0 {
		rec.requestTimes = append(rec.requestTimes[:0], rec.requestTimes[cut:]...)
	}
}
