package integration

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/stayridge/stayridge/internal/index"
	"github.com/stayridge/stayridge/pkg/types"
)

// TestPropertyWindowQueryMatchesBruteForce checks that for arbitrary query
// windows, the planned and pruned execution returns exactly the records a
// brute-force filter over everything appended would.
func TestPropertyWindowQueryMatchesBruteForce(t *testing.T) {
	e := openEngine(t, testConfig(t))
	provisionYear(t, e)
	ctx := context.Background()

	all, err := e.Query(ctx, &types.Descriptor{Sort: &types.Sort{Field: "start_date"}})
	if err != nil {
		t.Fatalf("baseline query failed: %v", err)
	}

	yearLow := day(2026, time.January, 1)
	yearHigh := day(2027, time.January, 1)

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	properties.Property("window query equals brute-force filter", prop.ForAll(
		func(a, b int64) bool {
			low, high := a, b
			if low > high {
				low, high = high, low
			}

			result, err := e.Query(ctx, &types.Descriptor{
				Constraints: []types.Constraint{{
					Field:  "start_date",
					Op:     types.OpRange,
					Low:    low,
					High:   high,
					IncLow: true,
				}},
				Sort: &types.Sort{Field: "start_date"},
			})
			if err != nil {
				return false
			}

			var want []types.Hit
			for _, h := range all.Hits {
				if h.Record.StartDate >= low && h.Record.StartDate < high {
					want = append(want, h)
				}
			}
			if len(result.Hits) != len(want) {
				return false
			}
			for i := range want {
				if result.Hits[i].PartitionID != want[i].PartitionID ||
					result.Hits[i].RecordID != want[i].RecordID {
					return false
				}
			}
			return true
		},
		gen.Int64Range(yearLow-int64(30*24*time.Hour), yearHigh+int64(30*24*time.Hour)),
		gen.Int64Range(yearLow-int64(30*24*time.Hour), yearHigh+int64(30*24*time.Hour)),
	))

	properties.TestingRun(t)
}

// TestPropertyIndexPathEqualsScanPath declares indexes mid-test and checks
// that every query answered through an index agrees with the answer the full
// scan gave before the index existed.
func TestPropertyIndexPathEqualsScanPath(t *testing.T) {
	e := openEngine(t, testConfig(t))
	provisionYear(t, e)
	ctx := context.Background()

	queries := func() []*types.Descriptor {
		return []*types.Descriptor{
			{
				Constraints: []types.Constraint{{Field: "status", Op: types.OpEq, Value: "confirmed"}},
				Sort:        &types.Sort{Field: "guest_id"},
			},
			{
				Constraints: []types.Constraint{{Field: "guest_id", Op: types.OpIn,
					Values: []interface{}{int64(3), int64(17), int64(33), int64(99)}}},
				Sort: &types.Sort{Field: "guest_id"},
			},
			{
				Constraints: []types.Constraint{
					{Field: "status", Op: types.OpEq, Value: "pending"},
					{Field: "start_date", Op: types.OpRange,
						Low: day(2026, time.April, 1), High: day(2026, time.October, 1), IncLow: true},
				},
				Sort: &types.Sort{Field: "start_date", Desc: true},
			},
		}
	}

	var scanned []*types.Result
	for _, d := range queries() {
		r, err := e.Query(ctx, d)
		if err != nil {
			t.Fatalf("scan-path query failed: %v", err)
		}
		scanned = append(scanned, r)
	}

	for _, def := range []index.Definition{
		{Name: "by_status_start", Fields: []string{"status", "start_date"}},
		{Name: "by_guest", Fields: []string{"guest_id"}},
	} {
		if err := e.DeclareIndex(ctx, def); err != nil {
			t.Fatalf("declare %s failed: %v", def.Name, err)
		}
	}

	for i, d := range queries() {
		r, err := e.Query(ctx, d)
		if err != nil {
			t.Fatalf("index-path query %d failed: %v", i, err)
		}
		if len(r.Hits) != len(scanned[i].Hits) {
			t.Fatalf("query %d: index path returned %d hits, scan returned %d",
				i, len(r.Hits), len(scanned[i].Hits))
		}
		for j := range r.Hits {
			if r.Hits[j].PartitionID != scanned[i].Hits[j].PartitionID ||
				r.Hits[j].RecordID != scanned[i].Hits[j].RecordID {
				t.Errorf("query %d diverges at hit %d", i, j)
				break
			}
		}
	}
}
