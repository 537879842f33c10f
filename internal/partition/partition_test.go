package partition

import (
	"testing"
	"time"

	serrors "github.com/stayridge/stayridge/internal/errors"
	"github.com/stayridge/stayridge/internal/index"
	"github.com/stayridge/stayridge/internal/store"
	"github.com/stayridge/stayridge/pkg/types"
)

func stay(guestID int64, start time.Time, status string) types.Record {
	return types.Record{
		BookingRef:  []byte("ref"),
		PropertyID:  7,
		GuestID:     guestID,
		StartDate:   start.UnixNano(),
		EndDate:     start.AddDate(0, 0, 3).UnixNano(),
		Status:      status,
		NightlyRate: 180,
	}
}

func testPartition(t *testing.T) *Partition {
	t.Helper()
	return New("bookings_2026_q3", quarterBounds(2026, 3), store.New(0, nil))
}

func TestAppendPropagatesToIndexes(t *testing.T) {
	p := testPartition(t)
	ix, err := p.DeclareIndex(index.Definition{Name: "by_status", Fields: []string{"status"}})
	if err != nil {
		t.Fatalf("declare failed: %v", err)
	}
	if !ix.Usable() {
		t.Fatal("index on empty partition should be immediately usable")
	}

	july := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	id, err := p.Append(stay(1, july, "confirmed"))
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	ids := ix.LookupEquality([]interface{}{"confirmed"})
	if len(ids) != 1 || ids[0] != id {
		t.Errorf("expected index to hold record %d, got %v", id, ids)
	}
}

func TestDeclareIndexBackfillsExistingRecords(t *testing.T) {
	p := testPartition(t)

	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if _, err := p.Append(stay(int64(i), july.AddDate(0, 0, i), "confirmed")); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	ix, err := p.DeclareIndex(index.Definition{Name: "by_guest", Fields: []string{"guest_id"}})
	if err != nil {
		t.Fatalf("declare failed: %v", err)
	}
	if !ix.Usable() {
		t.Error("declared index should be usable after backfill")
	}
	if ix.Len() != 5 {
		t.Errorf("expected 5 backfilled entries, got %d", ix.Len())
	}
}

func TestAppendOutsideBoundsIsInternalError(t *testing.T) {
	p := testPartition(t)

	january := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	_, err := p.Append(stay(1, january, "confirmed"))
	if err == nil {
		t.Fatal("expected error for key outside bounds")
	}
	if serrors.GetCategory(err) != serrors.ErrCategoryInternal {
		t.Errorf("misrouted record should be an internal error, got %v", err)
	}
}

func TestRetiredPartitionRejectsAppends(t *testing.T) {
	p := testPartition(t)
	p.MarkRetired()

	july := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	_, err := p.Append(stay(1, july, "confirmed"))
	if !serrors.IsCode(err, serrors.CodeNoPartitionCoversValue) {
		t.Errorf("expected NO_PARTITION_COVERS_VALUE on retired partition, got %v", err)
	}
}

func TestRestoreRebuildsIndexes(t *testing.T) {
	p := testPartition(t)
	ix, err := p.DeclareIndexDeferred(index.Definition{Name: "by_status", Fields: []string{"status"}}, index.StateBackfilled)
	if err != nil {
		t.Fatalf("declare failed: %v", err)
	}

	july := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	if err := p.Restore(1, stay(1, july, "confirmed")); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if err := p.Restore(2, stay(2, july.AddDate(0, 0, 1), "pending")); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	if p.RecordCount() != 2 {
		t.Errorf("expected 2 records, got %d", p.RecordCount())
	}
	if got := ix.LookupEquality([]interface{}{"confirmed"}); len(got) != 1 || got[0] != 1 {
		t.Errorf("restored record missing from index: %v", got)
	}
}

func TestDropIndex(t *testing.T) {
	p := testPartition(t)
	if _, err := p.DeclareIndex(index.Definition{Name: "by_status", Fields: []string{"status"}}); err != nil {
		t.Fatalf("declare failed: %v", err)
	}

	if err := p.DropIndex("by_status"); err != nil {
		t.Fatalf("drop failed: %v", err)
	}
	if err := p.DropIndex("by_status"); !serrors.IsCode(err, serrors.CodeIndexNotFound) {
		t.Errorf("expected INDEX_NOT_FOUND, got %v", err)
	}
}
