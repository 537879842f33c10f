package partition

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	serrors "github.com/stayridge/stayridge/internal/errors"
	"github.com/stayridge/stayridge/internal/store"
	"github.com/stayridge/stayridge/pkg/types"
)

func quarterBounds(year, q int) types.Bounds {
	low := time.Date(year, time.Month(1+(q-1)*3), 1, 0, 0, 0, 0, time.UTC)
	return types.Bounds{Low: low.UnixNano(), High: low.AddDate(0, 3, 0).UnixNano()}
}

func newQuarter(t *testing.T, m *Manager, year, q int) *Partition {
	t.Helper()
	p := New(quarterName(year, q), quarterBounds(year, q), store.New(0, nil))
	if err := m.Attach(p); err != nil {
		t.Fatalf("attach %s failed: %v", p.ID(), err)
	}
	return p
}

func quarterName(year, q int) string {
	return time.Date(year, time.Month(1+(q-1)*3), 1, 0, 0, 0, 0, time.UTC).Format("bookings_2006_01")
}

func TestResolveRoutesToCoveringPartition(t *testing.T) {
	m := NewManager(false)
	for q := 1; q <= 4; q++ {
		newQuarter(t, m, 2026, q)
	}

	key := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC).UnixNano()
	p, err := m.Resolve(key)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if p.ID() != quarterName(2026, 3) {
		t.Errorf("expected Q3 partition, got %s", p.ID())
	}
}

func TestResolveBoundaryKeysLandInUpperPartition(t *testing.T) {
	m := NewManager(false)
	for q := 1; q <= 2; q++ {
		newQuarter(t, m, 2026, q)
	}

	// A key exactly on a boundary belongs to the partition whose Low it is
	boundary := quarterBounds(2026, 2).Low
	p, err := m.Resolve(boundary)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if p.ID() != quarterName(2026, 2) {
		t.Errorf("boundary key should land in Q2, got %s", p.ID())
	}
}

func TestResolveOutsideProvisionedRangeFailsFast(t *testing.T) {
	m := NewManager(false)
	newQuarter(t, m, 2026, 1)

	after := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano()
	if _, err := m.Resolve(after); !serrors.IsCode(err, serrors.CodeNoPartitionCoversValue) {
		t.Errorf("expected NO_PARTITION_COVERS_VALUE, got %v", err)
	}

	before := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).UnixNano()
	if _, err := m.Resolve(before); !serrors.IsCode(err, serrors.CodeNoPartitionCoversValue) {
		t.Errorf("expected NO_PARTITION_COVERS_VALUE, got %v", err)
	}
}

func TestAttachRejectsOverlap(t *testing.T) {
	m := NewManager(false)
	newQuarter(t, m, 2026, 1)

	// [Feb, May) overlaps Q1's [Jan, Apr)
	low := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	overlapping := New("overlap", types.Bounds{
		Low:  low.UnixNano(),
		High: low.AddDate(0, 3, 0).UnixNano(),
	}, store.New(0, nil))

	err := m.Attach(overlapping)
	if !serrors.IsCode(err, serrors.CodeOverlappingRange) {
		t.Errorf("expected OVERLAPPING_RANGE, got %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("failed attach must not change the active set, got %d partitions", m.Len())
	}
}

func TestAttachContiguityPolicy(t *testing.T) {
	m := NewManager(true)
	newQuarter(t, m, 2026, 1)

	// Q3 leaves a Q2-sized gap
	gap := New("gap", quarterBounds(2026, 3), store.New(0, nil))
	if err := m.Attach(gap); !serrors.IsCode(err, serrors.CodeNonContiguous) {
		t.Errorf("expected NON_CONTIGUOUS, got %v", err)
	}

	// Q2 abuts Q1 exactly
	newQuarter(t, m, 2026, 2)

	relaxed := NewManager(false)
	newQuarter(t, relaxed, 2026, 1)
	if err := relaxed.Attach(New("gap_ok", quarterBounds(2026, 3), store.New(0, nil))); err != nil {
		t.Errorf("gaps should be allowed without the contiguity policy: %v", err)
	}
}

func TestListOverlappingReturnsAscendingRanges(t *testing.T) {
	m := NewManager(false)
	for _, q := range []int{4, 2, 1, 3} {
		newQuarter(t, m, 2026, q)
	}

	// Window spanning mid-Q2 through mid-Q3
	low := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC).UnixNano()
	high := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC).UnixNano()

	overlapping := m.ListOverlapping(low, high)
	if len(overlapping) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(overlapping))
	}
	if overlapping[0].ID() != quarterName(2026, 2) || overlapping[1].ID() != quarterName(2026, 3) {
		t.Errorf("expected [Q2 Q3], got [%s %s]", overlapping[0].ID(), overlapping[1].ID())
	}

	// A window touching only Q2's exclusive upper edge misses Q2
	edge := quarterBounds(2026, 2).High
	only := m.ListOverlapping(edge, edge+1)
	if len(only) != 1 || only[0].ID() != quarterName(2026, 3) {
		t.Errorf("half-open window at the edge should only hit Q3, got %d partitions", len(only))
	}
}

func TestRetireEnforcesRetentionHorizon(t *testing.T) {
	m := NewManager(false)
	q1 := newQuarter(t, m, 2026, 1)
	newQuarter(t, m, 2026, 2)

	// Horizon in mid-Q2: Q1 is fully past it, Q2 is not
	horizon := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)

	if _, err := m.Retire(quarterName(2026, 2), horizon); !serrors.IsCode(err, serrors.CodePartitionRetained) {
		t.Errorf("expected PARTITION_RETAINED for in-retention range, got %v", err)
	}

	retired, err := m.Retire(quarterName(2026, 1), horizon)
	if err != nil {
		t.Fatalf("retire failed: %v", err)
	}
	if retired != q1 || !retired.Retired() {
		t.Error("retired partition should be marked and returned")
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 active partition after retire, got %d", m.Len())
	}

	// The retired range no longer resolves
	key := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC).UnixNano()
	if _, err := m.Resolve(key); !serrors.IsCode(err, serrors.CodeNoPartitionCoversValue) {
		t.Errorf("expected NO_PARTITION_COVERS_VALUE for retired range, got %v", err)
	}
}

func TestRetireCandidates(t *testing.T) {
	m := NewManager(false)
	for q := 1; q <= 4; q++ {
		newQuarter(t, m, 2026, q)
	}

	horizon := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC) // Q3's Low
	candidates := m.RetireCandidates(horizon)
	if len(candidates) != 2 {
		t.Fatalf("expected Q1 and Q2 as candidates, got %d", len(candidates))
	}
	if candidates[0].ID() != quarterName(2026, 1) || candidates[1].ID() != quarterName(2026, 2) {
		t.Errorf("unexpected candidate order: %s, %s", candidates[0].ID(), candidates[1].ID())
	}
}

func TestResolvePropertyCoversEveryKeyExactlyOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	m := NewManager(true)
	for q := 1; q <= 4; q++ {
		if err := m.Attach(New(quarterName(2026, q), quarterBounds(2026, q), store.New(0, nil))); err != nil {
			t.Fatalf("attach failed: %v", err)
		}
	}
	yearLow := quarterBounds(2026, 1).Low
	yearHigh := quarterBounds(2026, 4).High

	properties := gopter.NewProperties(parameters)

	properties.Property("every in-range key resolves to the covering partition", prop.ForAll(
		func(key int64) bool {
			p, err := m.Resolve(key)
			if err != nil {
				return false
			}
			return p.Bounds().Contains(key)
		},
		gen.Int64Range(yearLow, yearHigh-1),
	))

	properties.Property("every out-of-range key fails fast", prop.ForAll(
		func(offset int64) bool {
			_, errAfter := m.Resolve(yearHigh + offset)
			_, errBefore := m.Resolve(yearLow - 1 - offset)
			return serrors.IsCode(errAfter, serrors.CodeNoPartitionCoversValue) &&
				serrors.IsCode(errBefore, serrors.CodeNoPartitionCoversValue)
		},
		gen.Int64Range(0, int64(365*24)*int64(time.Hour)),
	))

	properties.TestingRun(t)
}
