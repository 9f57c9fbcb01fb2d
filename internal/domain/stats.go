package domain

import (
	"sync"
	"time"
)

// ewmaAlpha controls how fast the rolling latency tracks recent samples.
const ewmaAlpha = 0.2

// MakerStats is a snapshot of one market maker's historical performance.
type MakerStats struct {
	Attempts     uint64
	Successes    uint64
	AvgLatencyUS int64 // EWMA, microseconds
}

// SuccessRate returns successes/attempts in [0,1]. An unseen maker starts at
// a neutral 0.5 so new entrants are neither favored nor buried.
func (s MakerStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0.5
	}
	return float64(s.Successes) / float64(s.Attempts)
}

type makerRecord struct {
	mu    sync.Mutex
	stats MakerStats
}

// StatsBook tracks per-maker response statistics. Safe for concurrent use by
// many in-flight quote requests; updates lock per maker, not globally.
type StatsBook struct {
	mu      sync.RWMutex
	records map[string]*makerRecord
}

// NewStatsBook creates an empty stats book.
func NewStatsBook() *StatsBook {
	return &StatsBook{records: make(map[string]*makerRecord)}
}

func (b *StatsBook) record(makerID string) *makerRecord {
	b.mu.RLock()
	r, ok := b.records[makerID]
	b.mu.RUnlock()
	if ok {
		return r
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok = b.records[makerID]; ok {
		return r
	}
	r = &makerRecord{}
	b.records[makerID] = r
	return r
}

// RecordSuccess notes a valid in-window response with the observed latency.
func (b *StatsBook) RecordSuccess(makerID string, latency time.Duration) {
	r := b.record(makerID)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.Attempts++
	r.stats.Successes++

	sample := latency.Microseconds()
	if r.stats.AvgLatencyUS == 0 {
		r.stats.AvgLatencyUS = sample
	} else {
		r.stats.AvgLatencyUS = int64(float64(r.stats.AvgLatencyUS)*(1-ewmaAlpha) + float64(sample)*ewmaAlpha)
	}
}

// RecordFailure notes a non-response, late response, or invalid response.
// Failures count against reliability but do not move the latency average.
func (b *StatsBook) RecordFailure(makerID string) {
	r := b.record(makerID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Attempts++
}

// Get returns a copy of the maker's current stats.
func (b *StatsBook) Get(makerID string) MakerStats {
	r := b.record(makerID)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Restore seeds a maker's stats, used when reloading persisted history.
func (b *StatsBook) Restore(makerID string, stats MakerStats) {
	r := b.record(makerID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = stats
}

// Snapshot returns a copy of all tracked maker stats, for persistence.
func (b *StatsBook) Snapshot() map[string]MakerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]MakerStats, len(b.records))
	for id, r := range b.records {
		r.mu.Lock()
		out[id] = r.stats
		r.mu.Unlock()
	}
	return out
}
