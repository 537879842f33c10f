package executor

import (
	"testing"

	"github.com/stayridge/stayridge/pkg/types"
)

func TestCursorRoundTripPreservesNanosecondKeys(t *testing.T) {
	// Past 2^53, float64 JSON round-trips lose precision
	start := int64(1787174400123456789)
	s := &types.Sort{Field: "start_date"}
	hit := types.Hit{
		PartitionID: "bookings_2026_h2",
		RecordID:    42,
		Record:      types.Record{StartDate: start},
	}

	token, err := EncodeCursor(s, hit)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := DecodeCursor(token, s)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Value != start {
		t.Errorf("expected %d, got %v", start, decoded.Value)
	}
	if decoded.Partition != "bookings_2026_h2" || decoded.RecordID != 42 {
		t.Errorf("tiebreak identifiers lost: %+v", decoded)
	}
}

func TestCursorAfterOrdering(t *testing.T) {
	s := &types.Sort{Field: "guest_id"}
	boundary := types.Hit{PartitionID: "p1", RecordID: 5, Record: types.Record{GuestID: 10}}

	token, err := EncodeCursor(s, boundary)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	c, err := DecodeCursor(token, s)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	cases := []struct {
		hit  types.Hit
		want bool
	}{
		{types.Hit{PartitionID: "p1", RecordID: 5, Record: types.Record{GuestID: 10}}, false}, // the boundary itself
		{types.Hit{PartitionID: "p1", RecordID: 4, Record: types.Record{GuestID: 10}}, false}, // earlier tiebreak
		{types.Hit{PartitionID: "p1", RecordID: 6, Record: types.Record{GuestID: 10}}, true},  // later tiebreak
		{types.Hit{PartitionID: "p0", RecordID: 9, Record: types.Record{GuestID: 11}}, true},  // later value
		{types.Hit{PartitionID: "p9", RecordID: 1, Record: types.Record{GuestID: 9}}, false},  // earlier value
	}
	for i, tc := range cases {
		if got := c.after(tc.hit); got != tc.want {
			t.Errorf("case %d: after=%v, want %v", i, got, tc.want)
		}
	}
}

func TestDescendingCursorFlipsComparison(t *testing.T) {
	s := &types.Sort{Field: "guest_id", Desc: true}
	boundary := types.Hit{PartitionID: "p1", RecordID: 5, Record: types.Record{GuestID: 10}}

	token, _ := EncodeCursor(s, boundary)
	c, err := DecodeCursor(token, s)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if !c.after(types.Hit{PartitionID: "p1", RecordID: 1, Record: types.Record{GuestID: 9}}) {
		t.Error("smaller value comes later under descending order")
	}
	if c.after(types.Hit{PartitionID: "p1", RecordID: 1, Record: types.Record{GuestID: 11}}) {
		t.Error("larger value comes earlier under descending order")
	}
}
