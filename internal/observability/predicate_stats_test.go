package observability

import (
	"sync"
	"testing"
	"time"
)

func TestRecordAndTopFields(t *testing.T) {
	stats := NewPredicateStats(time.Hour)

	for i := 0; i < 5; i++ {
		stats.Record("status", "eq")
	}
	for i := 0; i < 3; i++ {
		stats.Record("guest_id", "eq")
	}
	stats.Record("start_date", "range")

	top := stats.TopFields(2)
	if len(top) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(top))
	}
	if top[0].Field != "status" || top[0].Frequency != 5 {
		t.Errorf("expected status with frequency 5 first, got %s/%d", top[0].Field, top[0].Frequency)
	}
	if top[1].Field != "guest_id" {
		t.Errorf("expected guest_id second, got %s", top[1].Field)
	}
	if top[0].Operators["eq"] != 5 {
		t.Errorf("expected 5 eq operators for status, got %d", top[0].Operators["eq"])
	}
}

func TestTopFieldsReturnsCopies(t *testing.T) {
	stats := NewPredicateStats(time.Hour)
	stats.Record("status", "eq")

	top := stats.TopFields(1)
	top[0].Operators["eq"] = 999

	if stats.TopFields(1)[0].Operators["eq"] != 1 {
		t.Error("mutating a returned copy must not affect internal state")
	}
}

func TestFrequency(t *testing.T) {
	stats := NewPredicateStats(time.Hour)
	stats.Record("end_date", "range")
	stats.Record("end_date", "range")

	if got := stats.Frequency("end_date"); got != 2 {
		t.Errorf("expected frequency 2, got %d", got)
	}
	if got := stats.Frequency("unknown"); got != 0 {
		t.Errorf("expected frequency 0 for untracked field, got %d", got)
	}
}

func TestPruneStale(t *testing.T) {
	stats := NewPredicateStats(10 * time.Millisecond)
	stats.Record("status", "eq")

	time.Sleep(20 * time.Millisecond)
	stats.Record("guest_id", "eq")

	pruned := stats.PruneStale()
	if pruned != 1 {
		t.Errorf("expected 1 pruned field, got %d", pruned)
	}
	if stats.Frequency("status") != 0 {
		t.Error("stale field should be gone")
	}
	if stats.Frequency("guest_id") != 1 {
		t.Error("fresh field should survive pruning")
	}
}

func TestConcurrentRecording(t *testing.T) {
	stats := NewPredicateStats(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				stats.Record("status", "eq")
			}
		}()
	}
	wg.Wait()

	if got := stats.Frequency("status"); got != 800 {
		t.Errorf("expected 800 recordings, got %d", got)
	}
}
