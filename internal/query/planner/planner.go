// Package planner turns a query descriptor into an execution plan: partition
// pruning on the partition key, then at most one index selection per visited
// partition. Anything the chosen access path over-fetches is removed by the
// residual filter, so planning mistakes cost time, never correctness.
package planner

import (
	"github.com/stayridge/stayridge/internal/index"
	"github.com/stayridge/stayridge/internal/partition"
	"github.com/stayridge/stayridge/pkg/types"
)

// RangeSpec is the bounded range applied to the index field after the
// equality prefix.
type RangeSpec struct {
	Low     interface{}
	High    interface{}
	IncLow  bool
	IncHigh bool
}

// Access describes how one partition's records are located. When Index is
// nil the partition is scanned in full. With an index, EqPrefix holds the
// equality values for the index's leading fields; at most one of InValues
// (one lookup per value) or Range then narrows the next field.
type Access struct {
	Index    *index.Index
	EqPrefix []interface{}
	InValues []interface{}
	Range    *RangeSpec

	// SortCovered means the index emits hits already in the requested
	// order. The executor uses it to read the index in descending key
	// order for descending sorts, and selection prefers covered indexes.
	SortCovered bool
}

// FullScan reports whether the partition will be scanned without an index.
func (a Access) FullScan() bool {
	return a.Index == nil
}

// PartitionPlan pairs one visited partition with its access path.
type PartitionPlan struct {
	Partition *partition.Partition
	Access    Access
}

// Plan is the full execution plan for one descriptor.
type Plan struct {
	Descriptor *types.Descriptor
	Partitions []PartitionPlan

	// Pruned counts partitions skipped by the key window.
	Pruned int
}

// Planner builds plans against the active partition set.
type Planner struct {
	mgr *partition.Manager
}

// New creates a planner.
func New(mgr *partition.Manager) *Planner {
	return &Planner{mgr: mgr}
}

// BuildPlan validates the descriptor, prunes partitions, and selects an
// access path per surviving partition. Index sets differ per partition, so
// the same descriptor may use an index on one partition and scan another.
func (p *Planner) BuildPlan(d *types.Descriptor) (*Plan, error) {
	if err := Validate(d); err != nil {
		return nil, err
	}

	visited, pruned := Prune(p.mgr, d)

	plan := &Plan{
		Descriptor: d,
		Partitions: make([]PartitionPlan, 0, len(visited)),
		Pruned:     pruned,
	}
	for _, part := range visited {
		plan.Partitions = append(plan.Partitions, PartitionPlan{
			Partition: part,
			Access:    selectAccess(part, d),
		})
	}
	return plan, nil
}

// selectAccess picks the best usable index for one partition, or a full scan
// when no index serves the predicate. Selection prefers the longest equality
// prefix, then a bounded range or in-set on the next field, then an index
// whose order covers the requested sort.
func selectAccess(part *partition.Partition, d *types.Descriptor) Access {
	best := Access{}
	bestScore := 0

	for _, ix := range part.Indexes().Usable() {
		access, score := buildAccess(ix, d)
		if score == 0 {
			continue
		}
		if score > bestScore || (score == bestScore && access.SortCovered && !best.SortCovered) {
			best = access
			bestScore = score
		}
	}
	return best
}

// buildAccess walks the index's fields left to right against the predicate
// and returns the executable access path plus its selectivity score. A field
// without a constraint ends the walk; so does the first range or in term,
// since entries beyond it are no longer contiguous in the index.
func buildAccess(ix *index.Index, d *types.Descriptor) (Access, int) {
	access := Access{Index: ix}
	score := 0
	consumed := 0

	fields := ix.Definition().Fields
	for _, f := range fields {
		c, ok := d.ConstraintOn(f)
		if !ok {
			break
		}
		done := false
		switch c.Op {
		case types.OpEq:
			access.EqPrefix = append(access.EqPrefix, c.Value)
			score += 2
			consumed++
		case types.OpIn:
			access.InValues = c.Values
			score++
			consumed++
			done = true
		case types.OpRange:
			access.Range = &RangeSpec{Low: c.Low, High: c.High, IncLow: c.IncLow, IncHigh: c.IncHigh}
			score++
			consumed++
			done = true
		default:
			done = true
		}
		if done {
			break
		}
	}
	if score == 0 {
		return Access{}, 0
	}

	access.SortCovered = sortCovered(d, fields, access, consumed)
	return access, score
}

// sortCovered reports whether index order satisfies the requested sort. It
// does when the sort field is pinned by the equality prefix (every emitted
// key shares its value), or when it is the next index field after the prefix
// and the access emits one contiguous ordered run.
func sortCovered(d *types.Descriptor, fields []string, access Access, consumed int) bool {
	if d.Sort == nil {
		return true
	}
	for i := 0; i < len(access.EqPrefix); i++ {
		if fields[i] == d.Sort.Field {
			return true
		}
	}
	if access.InValues != nil {
		// Per-value lookups concatenate runs; the union is unordered.
		return false
	}
	next := len(access.EqPrefix)
	return next < len(fields) && fields[next] == d.Sort.Field
}
