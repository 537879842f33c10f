package store

import (
	stderrors "errors"
	"testing"
	"time"

	serrors "github.com/stayridge/stayridge/internal/errors"
	"github.com/stayridge/stayridge/internal/wal"
	"github.com/stayridge/stayridge/pkg/types"
)

func bookingAt(guestID int64, start time.Time) types.Record {
	return types.Record{
		BookingRef:  []byte("0123456789abcdef"),
		PropertyID:  3,
		GuestID:     guestID,
		StartDate:   start.UnixNano(),
		EndDate:     start.AddDate(0, 0, 3).UnixNano(),
		Status:      "confirmed",
		NightlyRate: 89.5,
		Payload:     map[string]interface{}{},
	}
}

func TestAppendThenFetchRoundTrip(t *testing.T) {
	s := New(0, nil)
	rec := bookingAt(42, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))

	id, err := s.Append(rec)
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if id != 1 {
		t.Errorf("expected first id 1, got %d", id)
	}

	got, err := s.Fetch(id)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if got.GuestID != rec.GuestID || got.StartDate != rec.StartDate || got.Status != rec.Status {
		t.Errorf("fetched record differs from appended record")
	}
}

func TestIDsAreMonotonic(t *testing.T) {
	s := New(0, nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 100; i++ {
		id, err := s.Append(bookingAt(int64(i), start))
		if err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
		if id != types.RecordID(i) {
			t.Fatalf("expected id %d, got %d", i, id)
		}
	}
}

func TestFetchUnknownID(t *testing.T) {
	s := New(0, nil)

	_, err := s.Fetch(1)
	if !serrors.IsCode(err, serrors.CodeRecordNotFound) {
		t.Errorf("expected RECORD_NOT_FOUND, got %v", err)
	}

	_, err = s.Fetch(0)
	if !serrors.IsCode(err, serrors.CodeRecordNotFound) {
		t.Errorf("expected RECORD_NOT_FOUND for id 0, got %v", err)
	}
}

func TestCapacityLimit(t *testing.T) {
	s := New(2, nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if _, err := s.Append(bookingAt(int64(i), start)); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	_, err := s.Append(bookingAt(3, start))
	if !serrors.IsCode(err, serrors.CodeStorageExhausted) {
		t.Errorf("expected STORAGE_EXHAUSTED, got %v", err)
	}

	var se *serrors.StoreError
	if !stderrors.As(err, &se) || se.Retryable {
		t.Error("STORAGE_EXHAUSTED must not be retryable")
	}
}

func TestScanIsConsistentSnapshot(t *testing.T) {
	s := New(0, nil)
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 5; i++ {
		if _, err := s.Append(bookingAt(int64(i), start)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	snapshot := s.Scan()

	// Appends after the snapshot must not appear in it
	if _, err := s.Append(bookingAt(6, start)); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	if len(snapshot) != 5 {
		t.Fatalf("expected snapshot of 5 entries, got %d", len(snapshot))
	}
	for i, e := range snapshot {
		if e.ID != types.RecordID(i+1) {
			t.Errorf("entry %d: expected id %d, got %d", i, i+1, e.ID)
		}
		if e.Record.GuestID != int64(i+1) {
			t.Errorf("entry %d: expected guest %d, got %d", i, i+1, e.Record.GuestID)
		}
	}

	if s.Len() != 6 {
		t.Errorf("expected store length 6, got %d", s.Len())
	}
}

func TestDurableAppendSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	log, err := wal.Open(dir, 1<<20, true)
	if err != nil {
		t.Fatalf("failed to open wal: %v", err)
	}

	s := New(0, log)
	start := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		if _, err := s.Append(bookingAt(int64(i), start)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	log.Close()

	// Rebuild from the WAL alone
	rebuilt := New(0, nil)
	count, err := wal.Replay(dir, func(e *wal.Entry) error {
		return rebuilt.Restore(e.RecordID, e.Record)
	})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 replayed entries, got %d", count)
	}

	for i := 1; i <= 3; i++ {
		got, err := rebuilt.Fetch(types.RecordID(i))
		if err != nil {
			t.Fatalf("fetch %d after replay failed: %v", i, err)
		}
		if got.GuestID != int64(i) {
			t.Errorf("record %d: expected guest %d, got %d", i, i, got.GuestID)
		}
	}
}

func TestRestoreRejectsOutOfOrder(t *testing.T) {
	s := New(0, nil)
	if err := s.Restore(2, bookingAt(1, time.Now())); err == nil {
		t.Error("expected error for out-of-order restore")
	}
}
