package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stayridge/stayridge/internal/partition"
	"github.com/stayridge/stayridge/internal/storage"
	"github.com/stayridge/stayridge/internal/store"
	"github.com/stayridge/stayridge/pkg/types"
)

func archivedPartition(t *testing.T, records int) *partition.Partition {
	t.Helper()
	low := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := types.Bounds{Low: low.UnixNano(), High: low.AddDate(0, 3, 0).UnixNano()}
	p := partition.New("bookings_2026_q1", b, store.New(0, nil))

	for i := 0; i < records; i++ {
		record := types.Record{
			BookingRef:  []byte("ref"),
			GuestID:     int64(i + 1),
			StartDate:   low.AddDate(0, 0, i).UnixNano(),
			EndDate:     low.AddDate(0, 0, i+2).UnixNano(),
			Status:      "confirmed",
			NightlyRate: 99.5,
		}
		if _, err := p.Append(record); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	return p
}

func TestArchiveRoundTrip(t *testing.T) {
	obj, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("storage setup failed: %v", err)
	}
	a := NewArchiver(obj, t.TempDir())
	ctx := context.Background()

	p := archivedPartition(t, 25)
	objectPath, err := a.Archive(ctx, p)
	if err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	if objectPath != "archive/bookings_2026_q1.seg" {
		t.Errorf("unexpected object path %s", objectPath)
	}

	exists, err := obj.Exists(ctx, objectPath)
	if err != nil || !exists {
		t.Fatalf("uploaded segment missing: exists=%v err=%v", exists, err)
	}

	bounds, entries, err := a.ReadSegment(ctx, objectPath)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if bounds != p.Bounds() {
		t.Errorf("bounds mismatch: %v vs %v", bounds, p.Bounds())
	}
	if len(entries) != 25 {
		t.Fatalf("expected 25 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.RecordID != types.RecordID(i+1) || e.Record.GuestID != int64(i+1) {
			t.Errorf("entry %d out of order: id=%d guest=%d", i, e.RecordID, e.Record.GuestID)
		}
	}
}

func TestArchiveEmptyPartition(t *testing.T) {
	obj, _ := storage.NewLocalStorage(t.TempDir())
	a := NewArchiver(obj, t.TempDir())
	ctx := context.Background()

	p := archivedPartition(t, 0)
	objectPath, err := a.Archive(ctx, p)
	if err != nil {
		t.Fatalf("archive failed: %v", err)
	}

	_, entries, err := a.ReadSegment(ctx, objectPath)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestReadMissingSegment(t *testing.T) {
	obj, _ := storage.NewLocalStorage(t.TempDir())
	a := NewArchiver(obj, t.TempDir())

	if _, _, err := a.ReadSegment(context.Background(), "archive/never-written.seg"); err == nil {
		t.Error("expected error for missing archive")
	}
}
