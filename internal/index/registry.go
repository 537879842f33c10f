package index

import (
	"fmt"
	"sort"
	"sync"

	serrors "github.com/stayridge/stayridge/internal/errors"
	"github.com/stayridge/stayridge/pkg/types"
)

// Registry holds the index set of one partition. Declarations may arrive at
// any time; an index declared over existing data stays pending until its
// backfill completes.
type Registry struct {
	mu      sync.RWMutex
	indexes map[string]*Index
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{indexes: make(map[string]*Index)}
}

// Declare registers a new index in the given initial state and returns it.
// Fails with INDEX_EXISTS on a duplicate name and INVALID_INDEX on an empty
// or non-indexable field list.
func (r *Registry) Declare(def Definition, state State) (*Index, error) {
	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.indexes[def.Name]; exists {
		return nil, serrors.New(serrors.ErrCategoryIndex, serrors.CodeIndexExists,
			fmt.Sprintf("index %q already declared", def.Name))
	}

	ix := New(def, state)
	r.indexes[def.Name] = ix
	return ix, nil
}

// Get returns the named index.
func (r *Registry) Get(name string) (*Index, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ix, ok := r.indexes[name]
	return ix, ok
}

// Drop removes the named index and reports whether it existed.
func (r *Registry) Drop(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.indexes[name]; !ok {
		return false
	}
	delete(r.indexes, name)
	return true
}

// OnInsert propagates a stored record into every declared index, pending
// ones included, so records written after declaration are already covered
// when the backfill completes.
func (r *Registry) OnInsert(id types.RecordID, record types.Record) {
	for _, ix := range r.List() {
		ix.Insert(id, record)
	}
}

// List returns all indexes ordered by name.
func (r *Registry) List() []*Index {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.indexes))
	for name := range r.indexes {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Index, len(names))
	for i, name := range names {
		out[i] = r.indexes[name]
	}
	return out
}

// Usable returns only the backfilled indexes, ordered by name.
func (r *Registry) Usable() []*Index {
	all := r.List()
	out := all[:0:0]
	for _, ix := range all {
		if ix.Usable() {
			out = append(out, ix)
		}
	}
	return out
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return serrors.New(serrors.ErrCategoryIndex, serrors.CodeInvalidIndex, "index name cannot be empty")
	}
	if len(def.Fields) == 0 {
		return serrors.New(serrors.ErrCategoryIndex, serrors.CodeInvalidIndex,
			fmt.Sprintf("index %q must have at least one field", def.Name))
	}

	seen := make(map[string]bool, len(def.Fields))
	for _, f := range def.Fields {
		if !types.IsIndexable(f) {
			return serrors.New(serrors.ErrCategoryIndex, serrors.CodeInvalidIndex,
				fmt.Sprintf("index %q references non-indexable field %q", def.Name, f))
		}
		if seen[f] {
			return serrors.New(serrors.ErrCategoryIndex, serrors.CodeInvalidIndex,
				fmt.Sprintf("index %q repeats field %q", def.Name, f))
		}
		seen[f] = true
	}
	return nil
}
