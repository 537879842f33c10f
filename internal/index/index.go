// Package index maintains per-partition secondary indexes: ordered mappings
// from field values (or composite field tuples) to record identifiers.
package index

import (
	"sort"
	"sync"

	"github.com/stayridge/stayridge/pkg/types"
)

// State is the usability state of an index.
type State string

const (
	// StatePending means the index was declared over existing data and has
	// not been backfilled yet. The planner must not use a pending index.
	StatePending State = "pending"

	// StateBackfilled means the index covers every record in its partition.
	StateBackfilled State = "backfilled"
)

// Definition declares an index: an ordered list of field names. Composite
// order matters for the leftmost-prefix rule.
type Definition struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`

	// AutoCreated marks indexes declared by the background policy loop
	AutoCreated bool `json:"auto_created,omitempty"`
}

// Index is one ordered secondary index within a partition. Entries are kept
// sorted by composite key, then record ID, so equality and range lookups are
// binary searches and results come out in key order without a sort pass.
type Index struct {
	def Definition

	mu      sync.RWMutex
	state   State
	entries []entry
}

type entry struct {
	key []interface{}
	id  types.RecordID
}

// New creates an index in the given initial state. A partition with no
// pre-existing data declares its indexes directly as backfilled.
func New(def Definition, state State) *Index {
	return &Index{def: def, state: state}
}

// Definition returns the index declaration.
func (ix *Index) Definition() Definition {
	return ix.def
}

// State returns the current usability state.
func (ix *Index) State() State {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.state
}

// Usable reports whether the planner may select this index.
func (ix *Index) Usable() bool {
	return ix.State() == StateBackfilled
}

// Len returns the number of entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// keyFor extracts the composite key for a record.
func (ix *Index) keyFor(record types.Record) []interface{} {
	key := make([]interface{}, len(ix.def.Fields))
	for i, f := range ix.def.Fields {
		v, _ := record.Field(f)
		key[i] = v
	}
	return key
}

// Insert adds a record to the index. Called exactly once per stored record,
// synchronously with the store append.
func (ix *Index) Insert(id types.RecordID, record types.Record) {
	key := ix.keyFor(record)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	pos := sort.Search(len(ix.entries), func(i int) bool {
		return compareEntry(ix.entries[i], key, id) >= 0
	})

	ix.entries = append(ix.entries, entry{})
	copy(ix.entries[pos+1:], ix.entries[pos:])
	ix.entries[pos] = entry{key: key, id: id}
}

// InsertIfAbsent adds a record unless the exact (key, id) pair is already
// present. Used by backfill so a record inserted after declaration is not
// indexed twice.
func (ix *Index) InsertIfAbsent(id types.RecordID, record types.Record) {
	key := ix.keyFor(record)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	pos := sort.Search(len(ix.entries), func(i int) bool {
		return compareEntry(ix.entries[i], key, id) >= 0
	})
	if pos < len(ix.entries) && compareEntry(ix.entries[pos], key, id) == 0 {
		return
	}

	ix.entries = append(ix.entries, entry{})
	copy(ix.entries[pos+1:], ix.entries[pos:])
	ix.entries[pos] = entry{key: key, id: id}
}

// MarkBackfilled transitions the index to the backfilled state.
func (ix *Index) MarkBackfilled() {
	ix.mu.Lock()
	ix.state = StateBackfilled
	ix.mu.Unlock()
}

// LookupEquality returns the identifiers of records whose leading indexed
// fields equal the given values. Fewer values than declared fields performs
// a prefix lookup. Results are in key order.
func (ix *Index) LookupEquality(values []interface{}) []types.RecordID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	lo, hi := ix.prefixBounds(values)
	return ix.collect(lo, hi, false)
}

// LookupRange returns identifiers whose indexed key matches the equality
// prefix and whose next field falls within [low, high] per the inclusive
// flags. A nil bound is unbounded on that side. Results are ordered by the
// index key, descending when desc is set, which serves sort-by-indexed-field
// queries without a separate sort step.
func (ix *Index) LookupRange(prefix []interface{}, low, high interface{}, incLow, incHigh, desc bool) []types.RecordID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	plo, phi := ix.prefixBounds(prefix)
	lo, hi := plo, phi

	if low != nil {
		probe := append(append([]interface{}{}, prefix...), low)
		if incLow {
			lo = ix.searchPrefixGE(probe)
		} else {
			lo = ix.searchPrefixGT(probe)
		}
	}
	if high != nil {
		probe := append(append([]interface{}{}, prefix...), high)
		if incHigh {
			hi = ix.searchPrefixGT(probe)
		} else {
			hi = ix.searchPrefixGE(probe)
		}
	}

	if lo < plo {
		lo = plo
	}
	if hi > phi {
		hi = phi
	}
	return ix.collect(lo, hi, desc)
}

// prefixBounds returns the half-open entry range whose keys start with the
// given prefix values.
func (ix *Index) prefixBounds(prefix []interface{}) (int, int) {
	if len(prefix) == 0 {
		return 0, len(ix.entries)
	}
	return ix.searchPrefixGE(prefix), ix.searchPrefixGT(prefix)
}

// searchPrefixGE finds the first entry whose key prefix is >= probe.
func (ix *Index) searchPrefixGE(probe []interface{}) int {
	return sort.Search(len(ix.entries), func(i int) bool {
		return comparePrefix(ix.entries[i].key, probe) >= 0
	})
}

// searchPrefixGT finds the first entry whose key prefix is > probe.
func (ix *Index) searchPrefixGT(probe []interface{}) int {
	return sort.Search(len(ix.entries), func(i int) bool {
		return comparePrefix(ix.entries[i].key, probe) > 0
	})
}

func (ix *Index) collect(lo, hi int, desc bool) []types.RecordID {
	if hi <= lo {
		return nil
	}
	ids := make([]types.RecordID, 0, hi-lo)
	if desc {
		for i := hi - 1; i >= lo; i-- {
			ids = append(ids, ix.entries[i].id)
		}
	} else {
		for i := lo; i < hi; i++ {
			ids = append(ids, ix.entries[i].id)
		}
	}
	return ids
}

// UsableFor reports whether the descriptor's predicate constrains the
// index's leading field(s) with an equality or bounded-range term. A
// composite (a, b) index serves predicates on a alone, or a and b together,
// but never b alone.
func (ix *Index) UsableFor(d *types.Descriptor) bool {
	eq, ranged := ix.Coverage(d)
	return eq > 0 || ranged
}

// Coverage returns how much of the descriptor's predicate this index can
// serve left to right: the number of leading fields with equality (or in)
// constraints, and whether the field after them carries a range constraint.
func (ix *Index) Coverage(d *types.Descriptor) (eqFields int, ranged bool) {
	for _, f := range ix.def.Fields {
		c, ok := d.ConstraintOn(f)
		if !ok {
			return eqFields, false
		}
		switch c.Op {
		case types.OpEq, types.OpIn:
			eqFields++
		case types.OpRange:
			// A range ends the usable prefix
			return eqFields, c.Low != nil || c.High != nil
		default:
			return eqFields, false
		}
	}
	return eqFields, false
}

// comparePrefix compares an entry key against a probe, considering only the
// probe's length. Shorter probes match any continuation.
func comparePrefix(key, probe []interface{}) int {
	n := len(probe)
	if len(key) < n {
		n = len(key)
	}
	for i := 0; i < n; i++ {
		if c := types.Compare(key[i], probe[i]); c != 0 {
			return c
		}
	}
	return 0
}

// compareEntry orders entries by full key, then record ID.
func compareEntry(e entry, key []interface{}, id types.RecordID) int {
	for i := range e.key {
		if i >= len(key) {
			break
		}
		if c := types.Compare(e.key[i], key[i]); c != 0 {
			return c
		}
	}
	switch {
	case e.id < id:
		return -1
	case e.id > id:
		return 1
	}
	return 0
}
