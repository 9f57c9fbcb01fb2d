package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"crest_go/internal/connmgr"
	"crest_go/internal/domain"
	"crest_go/internal/engine"
	"crest_go/internal/infra"
	"crest_go/internal/storage"
)

// Bootstrap orchestrates the RFQ node startup sequence.
type Bootstrap struct {
	Config     *infra.Config
	EventStore *storage.EventStore
	Stats      *domain.StatsBook
	Manager    *connmgr.Manager
	Engine     *engine.Engine

	unlock func()
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, store,
// instance lock, maker links, engine).
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping Crest RFQ node...")

	// 1. Load Config (Dynamic Path Resolution)
	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Workspace and singleton instance lock
	workDir := infra.GetWorkspaceDir()
	dataDir := filepath.Join(workDir, "data")
	if err := infra.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return err
	}
	b.unlock = unlock

	// 4. EventStore (Single-Writer WAL DB)
	dbPath := filepath.Join(dataDir, "events.db")
	evStore, err := storage.NewEventStore(dbPath)
	if err != nil {
		return err
	}
	b.EventStore = evStore
	slog.Info("✅ EventStore initialized (WAL-mode)", "path", dbPath)

	// 5. Maker stats, seeded from the last persisted snapshot
	b.Stats = domain.NewStatsBook()
	if err := evStore.LoadMakerStats(context.Background(), b.Stats); err != nil {
		slog.Warn("Could not restore maker stats", "err", err)
	}

	// 6. Connection manager and engine
	b.Manager = connmgr.NewManager(cfg, logger)
	b.Engine = engine.New(
		engine.NewLinkRegistry(b.Manager),
		b.Stats,
		engine.Config{
			Window:        time.Duration(cfg.RFQ.WindowMS) * time.Millisecond,
			MaxCandidates: cfg.RFQ.MaxCandidates,
			Weights: engine.Weights{
				Price:       cfg.RFQ.Weights.Price,
				Reliability: cfg.RFQ.Weights.Reliability,
				Latency:     cfg.RFQ.Weights.Latency,
			},
			Domain: domain.SigningDomain{
				ChainID:           cfg.Settlement.ChainID,
				VerifyingContract: common.HexToAddress(cfg.Settlement.VerifyingContract),
			},
		},
		logger,
	)

	slog.Info("✅ Engine ready",
		"windowMs", cfg.RFQ.WindowMS,
		"maxCandidates", cfg.RFQ.MaxCandidates,
		"makers", len(cfg.Makers))
	return nil
}

// PersistStats runs a periodic flush of the maker stats book until ctx
// is cancelled, then flushes once more on the way out.
func (b *Bootstrap) PersistStats(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := b.EventStore.SaveMakerStats(flushCtx, b.Stats); err != nil {
				slog.Warn("Final stats flush failed", "err", err)
			}
			return
		case <-ticker.C:
			if err := b.EventStore.SaveMakerStats(ctx, b.Stats); err != nil {
				slog.Warn("Stats flush failed", "err", err)
			}
		}
	}
}

// Shutdown releases the store and instance lock.
func (b *Bootstrap) Shutdown() {
	if b.Manager != nil {
		b.Manager.Stop()
	}
	if b.EventStore != nil {
		b.EventStore.Close()
	}
	if b.unlock != nil {
		b.unlock()
	}
}
