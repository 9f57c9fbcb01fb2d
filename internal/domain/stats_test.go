package domain

import (
	"sync"
	"testing"
	"time"
)

func TestStatsBookSuccessRate(t *testing.T) {
	book := NewStatsBook()

	// Unseen maker starts neutral.
	if got := book.Get("mm-1").SuccessRate(); got != 0.5 {
		t.Errorf("fresh maker success rate = %v, want 0.5", got)
	}

	book.RecordSuccess("mm-1", 10*time.Millisecond)
	book.RecordSuccess("mm-1", 20*time.Millisecond)
	book.RecordFailure("mm-1")
	book.RecordFailure("mm-1")

	s := book.Get("mm-1")
	if s.Attempts != 4 || s.Successes != 2 {
		t.Errorf("attempts=%d successes=%d, want 4/2", s.Attempts, s.Successes)
	}
	if got := s.SuccessRate(); got != 0.5 {
		t.Errorf("success rate = %v, want 0.5", got)
	}
}

func TestStatsBookLatencyEWMA(t *testing.T) {
	book := NewStatsBook()

	book.RecordSuccess("mm-1", 100*time.Millisecond)
	first := book.Get("mm-1").AvgLatencyUS
	if first != 100_000 {
		t.Fatalf("first sample should seed the average, got %d", first)
	}

	book.RecordSuccess("mm-1", 200*time.Millisecond)
	second := book.Get("mm-1").AvgLatencyUS
	if second <= first || second >= 200_000 {
		t.Errorf("EWMA should move toward the new sample, got %d", second)
	}

	// Failures must not disturb the latency average.
	book.RecordFailure("mm-1")
	if book.Get("mm-1").AvgLatencyUS != second {
		t.Error("failure changed the latency average")
	}
}

func TestStatsBookConcurrent(t *testing.T) {
	book := NewStatsBook()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			book.RecordSuccess("mm-1", time.Millisecond)
			book.RecordFailure("mm-2")
		}()
	}
	wg.Wait()

	if got := book.Get("mm-1").Successes; got != 50 {
		t.Errorf("mm-1 successes = %d, want 50", got)
	}
	if got := book.Get("mm-2").Attempts; got != 50 {
		t.Errorf("mm-2 attempts = %d, want 50", got)
	}
}

func TestStatsBookSnapshotRestore(t *testing.T) {
	book := NewStatsBook()
	book.RecordSuccess("mm-1", 5*time.Millisecond)
	book.RecordFailure("mm-2")

	snap := book.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snap))
	}

	fresh := NewStatsBook()
	for id, s := range snap {
		fresh.Restore(id, s)
	}
	if fresh.Get("mm-1") != snap["mm-1"] {
		t.Error("restored stats do not match snapshot")
	}
}
