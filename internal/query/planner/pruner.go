package planner

import (
	"math"

	"github.com/stayridge/stayridge/internal/partition"
	"github.com/stayridge/stayridge/pkg/types"
)

// KeyWindow derives the half-open [low, high) window on the partition key
// implied by the descriptor's constraints. Without a partition-key constraint
// the window spans the whole domain and nothing prunes.
func KeyWindow(d *types.Descriptor) (int64, int64) {
	c, ok := d.ConstraintOn(types.PartitionKeyField)
	if !ok {
		return math.MinInt64, types.OpenHigh
	}

	switch c.Op {
	case types.OpEq:
		if v, ok := keyValue(c.Value); ok {
			return v, succ(v)
		}

	case types.OpIn:
		var low, high int64
		first := true
		for _, candidate := range c.Values {
			v, ok := keyValue(candidate)
			if !ok {
				continue
			}
			if first || v < low {
				low = v
			}
			if first || v > high {
				high = v
			}
			first = false
		}
		if !first {
			// Conservative envelope over the in-set; residual filtering
			// removes keys between the candidates.
			return low, succ(high)
		}

	case types.OpRange:
		low, high := int64(math.MinInt64), types.OpenHigh
		if v, ok := keyValue(c.Low); ok {
			low = v
			if !c.IncLow {
				low = succ(low)
			}
		}
		if v, ok := keyValue(c.High); ok {
			high = v
			if c.IncHigh {
				high = succ(high)
			}
		}
		return low, high
	}

	return math.MinInt64, types.OpenHigh
}

// Prune returns the active partitions whose range intersects the key window,
// in ascending range order, plus the number of partitions skipped. Pruning
// is exact: a skipped partition cannot contain a matching record, because
// every record's partition key lies inside its partition's bounds.
func Prune(mgr *partition.Manager, d *types.Descriptor) (visited []*partition.Partition, pruned int) {
	low, high := KeyWindow(d)
	visited = mgr.ListOverlapping(low, high)
	return visited, mgr.Len() - len(visited)
}

// succ is the saturating successor used for exclusive window bounds. The
// domain edge clamps instead of wrapping; no attachable partition contains
// math.MaxInt64, so the clamped window loses nothing.
func succ(v int64) int64 {
	if v == math.MaxInt64 {
		return v
	}
	return v + 1
}

// keyValue coerces a constraint value to a partition key.
func keyValue(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}
