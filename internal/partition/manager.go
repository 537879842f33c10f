package partition

import (
	"fmt"
	"sort"
	"sync"
	"time"

	serrors "github.com/stayridge/stayridge/internal/errors"
	"github.com/stayridge/stayridge/pkg/types"
)

// Manager owns the active partition set: a sorted list of non-overlapping
// ranges over the partition key. Mutations take the write lock and swap in a
// new slice; readers work on the snapshot they grabbed and never observe a
// half-applied change.
type Manager struct {
	mu                sync.RWMutex
	parts             []*Partition // sorted by Bounds.Low, never mutated in place
	requireContiguous bool
}

// NewManager creates an empty manager. When requireContiguous is set, every
// new partition must start exactly where the previous highest range ended.
func NewManager(requireContiguous bool) *Manager {
	return &Manager{requireContiguous: requireContiguous}
}

// Attach adds a partition to the active set, enforcing the range invariants.
// Fails with OVERLAPPING_RANGE when the bounds intersect an existing
// partition, and with NON_CONTIGUOUS when contiguity is required and the new
// range leaves a gap after the current upper edge.
func (m *Manager) Attach(p *Partition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := p.Bounds()
	for _, existing := range m.parts {
		if existing.Bounds().OverlapsBounds(b) {
			return serrors.OverlappingRange(
				fmt.Sprintf("range %s overlaps partition %s (%s)", b, existing.ID(), existing.Bounds()))
		}
	}

	if m.requireContiguous && len(m.parts) > 0 {
		edge := m.parts[len(m.parts)-1].Bounds().High
		if b.Low != edge {
			return serrors.NonContiguous(
				fmt.Sprintf("range %s does not abut current upper edge %s", b, types.FormatKey(edge)))
		}
	}

	next := make([]*Partition, 0, len(m.parts)+1)
	next = append(next, m.parts...)
	next = append(next, p)
	sort.Slice(next, func(i, j int) bool {
		return next[i].Bounds().Low < next[j].Bounds().Low
	})
	m.parts = next
	return nil
}

// Resolve returns the partition whose range contains the key. Keys outside
// every provisioned range fail with NO_PARTITION_COVERS_VALUE; the caller
// must provision the missing range rather than have data land in a fallback.
func (m *Manager) Resolve(key int64) (*Partition, error) {
	parts := m.snapshot()

	i := sort.Search(len(parts), func(i int) bool {
		return parts[i].Bounds().High > key
	})
	if i < len(parts) && parts[i].Bounds().Contains(key) {
		return parts[i], nil
	}
	return nil, serrors.NoPartitionCoversValue(
		fmt.Sprintf("no partition covers key %s", types.FormatKey(key)))
}

// ListOverlapping returns, in ascending range order, every active partition
// whose bounds intersect the half-open [low, high) window.
func (m *Manager) ListOverlapping(low, high int64) []*Partition {
	parts := m.snapshot()

	var out []*Partition
	for _, p := range parts {
		if p.Bounds().Overlaps(low, high) {
			out = append(out, p)
		}
	}
	return out
}

// All returns the active partitions in ascending range order.
func (m *Manager) All() []*Partition {
	return m.snapshot()
}

// Get returns the active partition with the given ID.
func (m *Manager) Get(id string) (*Partition, error) {
	for _, p := range m.snapshot() {
		if p.ID() == id {
			return p, nil
		}
	}
	return nil, serrors.New(serrors.ErrCategoryPartition, serrors.CodePartitionNotFound,
		fmt.Sprintf("partition %s not in active set", id))
}

// Len returns the number of active partitions.
func (m *Manager) Len() int {
	return len(m.snapshot())
}

// UpperEdge returns the exclusive upper bound of the highest provisioned
// range, or false when no partition exists.
func (m *Manager) UpperEdge() (int64, bool) {
	parts := m.snapshot()
	if len(parts) == 0 {
		return 0, false
	}
	return parts[len(parts)-1].Bounds().High, true
}

// Retire removes a partition from the active set and marks it retired. The
// partition's entire range must fall before the retention horizon; a range
// still inside the retention window fails with PARTITION_RETAINED. The
// removed partition is returned so the caller can archive its records.
func (m *Manager) Retire(id string, horizon time.Time) (*Partition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, p := range m.parts {
		if p.ID() == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, serrors.New(serrors.ErrCategoryPartition, serrors.CodePartitionNotFound,
			fmt.Sprintf("partition %s not in active set", id))
	}

	p := m.parts[idx]
	if p.Bounds().High > horizon.UnixNano() {
		return nil, serrors.New(serrors.ErrCategoryPartition, serrors.CodePartitionRetained,
			fmt.Sprintf("partition %s range %s extends past retention horizon %s",
				id, p.Bounds(), horizon.UTC().Format(time.RFC3339)))
	}

	next := make([]*Partition, 0, len(m.parts)-1)
	next = append(next, m.parts[:idx]...)
	next = append(next, m.parts[idx+1:]...)
	m.parts = next

	p.MarkRetired()
	return p, nil
}

// RetireCandidates returns active partitions whose entire range falls before
// the horizon, in ascending range order.
func (m *Manager) RetireCandidates(horizon time.Time) []*Partition {
	var out []*Partition
	for _, p := range m.snapshot() {
		if p.Bounds().High <= horizon.UnixNano() {
			out = append(out, p)
		}
	}
	return out
}

func (m *Manager) snapshot() []*Partition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.parts
}
