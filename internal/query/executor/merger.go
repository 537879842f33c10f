package executor

import (
	"container/heap"
	"sort"

	"github.com/stayridge/stayridge/pkg/types"
)

// compareHits orders two hits under the requested sort: sort value first,
// then partition ID, then record ID. The tiebreak makes the total order
// deterministic, which cursor resumption depends on.
func compareHits(a, b types.Hit, s *types.Sort) int {
	if s != nil {
		av, _ := a.Record.Field(s.Field)
		bv, _ := b.Record.Field(s.Field)
		cmp := types.Compare(av, bv)
		if s.Desc {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp
		}
	}
	if a.PartitionID != b.PartitionID {
		if a.PartitionID < b.PartitionID {
			return -1
		}
		return 1
	}
	switch {
	case a.RecordID < b.RecordID:
		return -1
	case a.RecordID > b.RecordID:
		return 1
	}
	return 0
}

// sortHits orders one partition's partial result in place.
func sortHits(hits []types.Hit, s *types.Sort) {
	sort.SliceStable(hits, func(i, j int) bool {
		return compareHits(hits[i], hits[j], s) < 0
	})
}

// mergePartials combines per-partition partials into one ordered stream.
//
// Without a sort the partials concatenate in partition range order. When the
// sort is on the partition key, ranges are disjoint so sorted partials also
// concatenate (reversed for descending). Otherwise a k-way heap merge
// interleaves the sorted partials.
func mergePartials(partials [][]types.Hit, s *types.Sort, sortIsPartitionKey bool) []types.Hit {
	total := 0
	for _, p := range partials {
		total += len(p)
	}
	if total == 0 {
		return nil
	}

	if s == nil || sortIsPartitionKey {
		out := make([]types.Hit, 0, total)
		if s != nil && s.Desc {
			for i := len(partials) - 1; i >= 0; i-- {
				out = append(out, partials[i]...)
			}
		} else {
			for _, p := range partials {
				out = append(out, p...)
			}
		}
		return out
	}

	h := &hitHeap{sort: s}
	for i, p := range partials {
		if len(p) > 0 {
			h.items = append(h.items, heapItem{hits: p, source: i})
		}
	}
	heap.Init(h)

	out := make([]types.Hit, 0, total)
	for h.Len() > 0 {
		item := &h.items[0]
		out = append(out, item.hits[0])
		item.hits = item.hits[1:]
		if len(item.hits) == 0 {
			heap.Pop(h)
		} else {
			heap.Fix(h, 0)
		}
	}
	return out
}

type heapItem struct {
	hits   []types.Hit
	source int
}

type hitHeap struct {
	items []heapItem
	sort  *types.Sort
}

func (h *hitHeap) Len() int { return len(h.items) }

func (h *hitHeap) Less(i, j int) bool {
	return compareHits(h.items[i].hits[0], h.items[j].hits[0], h.sort) < 0
}

func (h *hitHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *hitHeap) Push(x interface{}) { h.items = append(h.items, x.(heapItem)) }

func (h *hitHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
