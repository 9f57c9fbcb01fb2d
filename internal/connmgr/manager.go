package connmgr

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"crest_go/internal/infra"
)

// Manager owns the maker link registry. It dials every configured maker at
// startup and hands the engine the set of eligible links for a pair.
type Manager struct {
	mu    sync.RWMutex
	links map[string]*Link
	log   *slog.Logger
}

// NewManager builds links for every configured maker.
func NewManager(cfg *infra.Config, log *slog.Logger) *Manager {
	opts := LinkOptions{
		PingInterval:          time.Duration(cfg.Connection.PingIntervalSec) * time.Second,
		ReadTimeout:           time.Duration(cfg.Connection.ReadTimeoutSec) * time.Second,
		UnstableAfterMissed:   cfg.Connection.UnstableAfterMissed,
		DisconnectAfterMissed: cfg.Connection.DisconnectAfterMissed,
		MaxReconnectAttempts:  cfg.Connection.MaxReconnectAttempts,
		RequestBurst:          cfg.Connection.RequestBurst,
		RequestPerSec:         cfg.Connection.RequestPerSec,
	}

	m := &Manager{
		links: make(map[string]*Link, len(cfg.Makers)),
		log:   log,
	}
	for _, mc := range cfg.Makers {
		m.links[mc.ID] = NewLink(mc, cfg.Auth.SharedSecret, opts)
	}
	return m
}

// Start dials all makers concurrently. Individual links keep retrying with
// backoff on their own; Start does not wait for authentication.
func (m *Manager) Start(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, l := range m.links {
		l.Start(ctx)
	}
	m.log.Info("Maker links starting", "count", len(m.links))
}

// Stop tears down all links.
func (m *Manager) Stop() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, l := range m.links {
		l.Stop()
	}
}

// Add registers an extra link at runtime. Used by tests and by future
// admin tooling; config-declared makers go through NewManager.
func (m *Manager) Add(l *Link) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[l.ID()] = l
}

// Link returns the link for a maker id, or nil.
func (m *Manager) Link(id string) *Link {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.links[id]
}

// Candidates returns every ready link that declared support for the pair.
func (m *Manager) Candidates(pair string) []*Link {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Link
	for _, l := range m.links {
		if l.Ready() && l.SupportsPair(pair) {
			out = append(out, l)
		}
	}
	return out
}

// Snapshot reports each maker's current link state, for logging and the
// status endpoint of the integration binary.
func (m *Manager) Snapshot() map[string]LinkState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]LinkState, len(m.links))
	for id, l := range m.links {
		out[id] = l.State()
	}
	return out
}
