// Package observability provides predicate frequency tracking for automated
// index creation and performance monitoring.
package observability

import (
	"sort"
	"sync"
	"time"
)

// PredicateStats tracks how often each field appears in query predicates.
// The index policy uses the frequencies to decide which fields deserve a
// secondary index.
type PredicateStats struct {
	mu     sync.RWMutex
	fields map[string]*FieldStats
	window time.Duration
}

// FieldStats holds statistics for one predicate field.
type FieldStats struct {
	Field     string
	Frequency int64
	LastSeen  time.Time
	Operators map[string]int // operator → count (e.g., "eq" → 5, "range" → 2)
}

// NewPredicateStats creates a new tracker. window controls how long an idle
// field's counts stay live before PruneStale drops them.
func NewPredicateStats(window time.Duration) *PredicateStats {
	return &PredicateStats{
		fields: make(map[string]*FieldStats),
		window: window,
	}
}

// Record notes one predicate occurrence. O(1) and thread-safe.
func (p *PredicateStats) Record(field, operator string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats, exists := p.fields[field]
	if !exists {
		stats = &FieldStats{
			Field:     field,
			Operators: make(map[string]int),
		}
		p.fields[field] = stats
	}

	stats.Frequency++
	stats.LastSeen = time.Now()
	stats.Operators[operator]++
}

// TopFields returns the top N predicate fields by frequency, as copies.
func (p *PredicateStats) TopFields(n int) []FieldStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if n <= 0 || len(p.fields) == 0 {
		return []FieldStats{}
	}

	stats := make([]FieldStats, 0, len(p.fields))
	for _, s := range p.fields {
		cp := FieldStats{
			Field:     s.Field,
			Frequency: s.Frequency,
			LastSeen:  s.LastSeen,
			Operators: make(map[string]int, len(s.Operators)),
		}
		for op, count := range s.Operators {
			cp.Operators[op] = count
		}
		stats = append(stats, cp)
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Frequency > stats[j].Frequency
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Frequency returns the current count for one field.
func (p *PredicateStats) Frequency(field string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.fields[field]; ok {
		return s.Frequency
	}
	return 0
}

// PruneStale drops fields not seen within the window.
func (p *PredicateStats) PruneStale() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-p.window)
	var pruned int
	for field, s := range p.fields {
		if s.LastSeen.Before(cutoff) {
			delete(p.fields, field)
			pruned++
		}
	}
	return pruned
}

// Reset clears all counters.
func (p *PredicateStats) Reset() {
	p.mu.Lock()
	p.fields = make(map[string]*FieldStats)
	p.mu.Unlock()
}
