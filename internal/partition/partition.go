// Package partition manages the range-partitioned layout: each partition owns
// a half-open [low, high) slice of the partition key space, its own record
// store, and its own index set.
package partition

import (
	"fmt"
	"sync"

	serrors "github.com/stayridge/stayridge/internal/errors"
	"github.com/stayridge/stayridge/internal/index"
	"github.com/stayridge/stayridge/internal/store"
	"github.com/stayridge/stayridge/pkg/types"
)

// Partition is one provisioned range. Appends and backfills are serialized
// under the partition's write lock; index declaration over existing data
// therefore observes a frozen record set.
type Partition struct {
	id     string
	bounds types.Bounds

	mu      sync.Mutex
	store   *store.Store
	indexes *index.Registry
	retired bool
}

// New creates a partition handle over its store.
func New(id string, bounds types.Bounds, st *store.Store) *Partition {
	return &Partition{
		id:      id,
		bounds:  bounds,
		store:   st,
		indexes: index.NewRegistry(),
	}
}

// ID returns the partition identifier.
func (p *Partition) ID() string {
	return p.id
}

// Bounds returns the partition's key range.
func (p *Partition) Bounds() types.Bounds {
	return p.bounds
}

// Store exposes the record store for reads.
func (p *Partition) Store() *store.Store {
	return p.store
}

// Indexes exposes the index registry for planning.
func (p *Partition) Indexes() *index.Registry {
	return p.indexes
}

// RecordCount returns the number of stored records.
func (p *Partition) RecordCount() int {
	return p.store.Len()
}

// Retired reports whether the partition has been retired.
func (p *Partition) Retired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retired
}

// MarkRetired flips the partition into its terminal state. Subsequent
// appends are rejected; reads of already-fetched snapshots are unaffected.
func (p *Partition) MarkRetired() {
	p.mu.Lock()
	p.retired = true
	p.mu.Unlock()
}

// Reinstate clears the retired flag so a partition pulled out of the active
// set for archiving can resume serving when the archive step fails.
func (p *Partition) Reinstate() {
	p.mu.Lock()
	p.retired = false
	p.mu.Unlock()
}

// Append stores a record and propagates it into every declared index. The
// record's partition key must fall inside the partition's bounds; the
// manager routes before calling, so a violation here means a caller bug.
func (p *Partition) Append(record types.Record) (types.RecordID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.retired {
		return 0, serrors.NoPartitionCoversValue(
			fmt.Sprintf("partition %s is retired; range %s no longer accepts writes", p.id, p.bounds))
	}
	if !p.bounds.Contains(record.StartDate) {
		return 0, serrors.NewInternalError(
			fmt.Sprintf("record key %d routed to partition %s with bounds %s", record.StartDate, p.id, p.bounds), nil)
	}

	id, err := p.store.Append(record)
	if err != nil {
		return 0, err
	}
	p.indexes.OnInsert(id, record)
	return id, nil
}

// Restore re-applies a record during write-ahead log replay.
func (p *Partition) Restore(id types.RecordID, record types.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.store.Restore(id, record); err != nil {
		return err
	}
	p.indexes.OnInsert(id, record)
	return nil
}

// DeclareIndex declares an index and backfills it from the current record
// set. On an empty partition the index is immediately usable; otherwise it
// stays pending until the backfill scan completes. Appends wait on the
// partition lock, so the backfill misses nothing.
func (p *Partition) DeclareIndex(def index.Definition) (*index.Index, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	initial := index.StatePending
	if p.store.Len() == 0 {
		initial = index.StateBackfilled
	}

	ix, err := p.indexes.Declare(def, initial)
	if err != nil {
		return nil, err
	}

	if initial == index.StatePending {
		for _, e := range p.store.Scan() {
			ix.InsertIfAbsent(e.ID, e.Record)
		}
		ix.MarkBackfilled()
	}
	return ix, nil
}

// DeclareIndexDeferred declares an index without backfilling, in the given
// state. Used on startup to rebuild registries from the catalog before the
// record set is replayed.
func (p *Partition) DeclareIndexDeferred(def index.Definition, state index.State) (*index.Index, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.indexes.Declare(def, state)
}

// DropIndex removes a declared index. Missing indexes report INDEX_NOT_FOUND.
func (p *Partition) DropIndex(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.indexes.Drop(name) {
		return serrors.New(serrors.ErrCategoryIndex, serrors.CodeIndexNotFound,
			fmt.Sprintf("index %q not declared on partition %s", name, p.id))
	}
	return nil
}
