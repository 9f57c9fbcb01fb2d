package storage

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"crest_go/internal/domain"
	"crest_go/internal/event"
)

func newTestStore(t *testing.T) *EventStore {
	t.Helper()
	store, err := NewEventStore(filepath.Join(t.TempDir(), "crest.db"))
	if err != nil {
		t.Fatalf("NewEventStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func settlementEvent(seq uint64, amountIn, amountOut int64) event.SettlementEvent {
	return event.SettlementEvent{
		BaseEvent:         event.BaseEvent{Seq: seq, Ts: time.Now().UnixMicro()},
		QuoteID:           [32]byte{byte(seq)},
		User:              common.HexToAddress("0xaa"),
		MarketMaker:       common.HexToAddress("0xbb"),
		TokenIn:           domain.NativeToken,
		TokenOut:          common.HexToAddress("0xcc"),
		AmountIn:          big.NewInt(amountIn),
		AmountOut:         big.NewInt(amountOut),
		IsTraderInitiated: true,
	}
}

func TestEventStore_SettlementRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for seq := uint64(1); seq <= 3; seq++ {
		if err := store.SaveEvent(ctx, settlementEvent(seq, 100, 195)); err != nil {
			t.Fatalf("SaveEvent seq %d: %v", seq, err)
		}
	}
	// Mixed-in non-settlement event must be skipped on load.
	if err := store.SaveEvent(ctx, event.FeeChangeEvent{
		BaseEvent: event.BaseEvent{Seq: 4, Ts: time.Now().UnixMicro()},
		OldFeeBps: 0, NewFeeBps: 30,
	}); err != nil {
		t.Fatalf("SaveEvent fee change: %v", err)
	}

	got, err := store.LoadSettlements(ctx, 2)
	if err != nil {
		t.Fatalf("LoadSettlements: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d settlements, want 2", len(got))
	}
	if got[0].GetSeq() != 2 || got[1].GetSeq() != 3 {
		t.Errorf("seqs = %d,%d, want 2,3", got[0].GetSeq(), got[1].GetSeq())
	}
	if got[0].AmountOut.Cmp(big.NewInt(195)) != 0 {
		t.Errorf("amountOut = %s, want 195", got[0].AmountOut)
	}
	if got[0].TokenIn != domain.NativeToken {
		t.Errorf("tokenIn = %s, want native sentinel", got[0].TokenIn.Hex())
	}

	last, err := store.GetLastSeq(ctx)
	if err != nil {
		t.Fatalf("GetLastSeq: %v", err)
	}
	if last != 4 {
		t.Errorf("last seq = %d, want 4", last)
	}
}

func TestEventStore_DuplicateSeqRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveEvent(ctx, settlementEvent(7, 1, 2)); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := store.SaveEvent(ctx, settlementEvent(7, 3, 4)); err == nil {
		t.Error("duplicate sequence should violate the primary key")
	}
}

func TestEventStore_EmptyLastSeq(t *testing.T) {
	store := newTestStore(t)

	last, err := store.GetLastSeq(context.Background())
	if err != nil {
		t.Fatalf("GetLastSeq: %v", err)
	}
	if last != 0 {
		t.Errorf("last seq on empty store = %d, want 0", last)
	}
}

func TestEventStore_MakerStatsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	book := domain.NewStatsBook()
	book.RecordSuccess("mm-a", 40*time.Millisecond)
	book.RecordSuccess("mm-a", 60*time.Millisecond)
	book.RecordFailure("mm-b")

	if err := store.SaveMakerStats(ctx, book); err != nil {
		t.Fatalf("SaveMakerStats: %v", err)
	}

	restored := domain.NewStatsBook()
	if err := store.LoadMakerStats(ctx, restored); err != nil {
		t.Fatalf("LoadMakerStats: %v", err)
	}

	a := restored.Get("mm-a")
	if a.Attempts != 2 || a.Successes != 2 {
		t.Errorf("mm-a = %+v, want 2 attempts 2 successes", a)
	}
	if a.AvgLatencyUS == 0 {
		t.Error("mm-a latency not restored")
	}
	if b := restored.Get("mm-b"); b.Attempts != 1 || b.Successes != 0 {
		t.Errorf("mm-b = %+v, want 1 attempt 0 successes", b)
	}
}

func TestEventStore_LoadMakerStatsEmpty(t *testing.T) {
	store := newTestStore(t)

	book := domain.NewStatsBook()
	if err := store.LoadMakerStats(context.Background(), book); err != nil {
		t.Fatalf("LoadMakerStats on empty store: %v", err)
	}
	if got := book.Get("anyone"); got.Attempts != 0 {
		t.Errorf("empty store seeded stats: %+v", got)
	}
}

func TestEventStore_Metadata(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertMetadata(ctx, "schema", "1", 100); err != nil {
		t.Fatalf("UpsertMetadata: %v", err)
	}
	if err := store.UpsertMetadata(ctx, "schema", "2", 200); err != nil {
		t.Fatalf("UpsertMetadata update: %v", err)
	}

	got, err := store.GetMetadata(ctx, "schema")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if got != "2" {
		t.Errorf("value = %q, want 2", got)
	}

	missing, err := store.GetMetadata(ctx, "nope")
	if err != nil || missing != "" {
		t.Errorf("missing key = (%q, %v), want empty", missing, err)
	}
}
