// Package store provides the append-only record store owned by a single
// partition. Records are immutable once appended; identifiers are
// monotonically increasing and scoped to the partition.
package store

import (
	"fmt"
	"sync"

	serrors "github.com/stayridge/stayridge/internal/errors"
	"github.com/stayridge/stayridge/internal/wal"
	"github.com/stayridge/stayridge/pkg/types"
)

// Entry pairs a record with its identifier, as produced by Scan.
type Entry struct {
	ID     types.RecordID
	Record types.Record
}

// Store is the record storage for one partition. A single writer appends;
// readers work on immutable snapshots and never block the writer beyond the
// pointer swap.
type Store struct {
	mu         sync.RWMutex
	records    []types.Record
	maxRecords int
	log        *wal.Log
}

// New creates a store. maxRecords of 0 means unlimited. log may be nil for
// ephemeral stores (tests); when present, Append is durable before it returns.
func New(maxRecords int, log *wal.Log) *Store {
	return &Store{
		maxRecords: maxRecords,
		log:        log,
	}
}

// Append stores a record and returns its identifier. O(1) amortized. Fails
// only with STORAGE_EXHAUSTED when the configured capacity is reached, or
// when the WAL cannot acknowledge the write.
func (s *Store) Append(record types.Record) (types.RecordID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxRecords > 0 && len(s.records) >= s.maxRecords {
		return 0, serrors.StorageExhausted(
			fmt.Sprintf("partition at capacity (%d records)", s.maxRecords))
	}

	id := types.RecordID(len(s.records) + 1)

	if s.log != nil {
		if _, err := s.log.Append(id, record); err != nil {
			return 0, serrors.Wrap(serrors.ErrCategoryStorage, serrors.CodeAppendFailed,
				"wal append failed", err)
		}
	}

	s.records = append(s.records, record)
	return id, nil
}

// Restore re-inserts a record during WAL replay. IDs must arrive in the
// original append order; the WAL is not re-written.
func (s *Store) Restore(id types.RecordID, record types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != types.RecordID(len(s.records)+1) {
		return serrors.New(serrors.ErrCategoryStorage, serrors.CodeAppendFailed,
			fmt.Sprintf("out-of-order restore: expected id %d, got %d", len(s.records)+1, id))
	}

	s.records = append(s.records, record)
	return nil
}

// Fetch returns the record for an identifier.
func (s *Store) Fetch(id types.RecordID) (types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == 0 || int(id) > len(s.records) {
		return types.Record{}, serrors.RecordNotFound(fmt.Sprintf("record %d", id))
	}
	return s.records[id-1], nil
}

// Scan returns a snapshot of all records in insertion order. The snapshot is
// consistent: appends after the call are not visible through it. It always
// starts from the beginning; there is no mid-scan resume.
func (s *Store) Scan() []Entry {
	s.mu.RLock()
	snapshot := s.records[:len(s.records):len(s.records)]
	s.mu.RUnlock()

	entries := make([]Entry, len(snapshot))
	for i, r := range snapshot {
		entries[i] = Entry{ID: types.RecordID(i + 1), Record: r}
	}
	return entries
}

// Len returns the current record count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
