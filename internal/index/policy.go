package index

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stayridge/stayridge/internal/config"
	"github.com/stayridge/stayridge/internal/observability"
)

// Admin is the engine surface the policy drives: declaring (and backfilling)
// an index across all active partitions, or dropping one.
type Admin interface {
	// DeclareIndex declares and backfills an index on every active partition.
	DeclareIndex(ctx context.Context, def Definition) error

	// DropIndex removes an index from every active partition.
	DropIndex(ctx context.Context, name string) error

	// IndexDefinitions lists the currently declared index definitions.
	IndexDefinitions(ctx context.Context) ([]Definition, error)
}

// ActionType represents the type of index action to perform.
type ActionType string

const (
	ActionCreate ActionType = "CREATE"
	ActionDrop   ActionType = "DROP"
)

// Action represents an action to create or drop an index.
type Action struct {
	Type  ActionType
	Field string
}

// Policy manages automated index creation and deletion based on predicate
// frequency statistics. It mirrors the operator workflow of declaring ad hoc
// indexes on hot filter columns, without the operator.
type Policy struct {
	stats           *observability.PredicateStats
	admin           Admin
	createThreshold int64
	dropThreshold   int64
	checkInterval   time.Duration
	maxIndexes      int
	mu              sync.Mutex
}

// NewPolicy creates a new index policy manager.
func NewPolicy(stats *observability.PredicateStats, admin Admin, cfg config.IndexConfig) *Policy {
	return &Policy{
		stats:           stats,
		admin:           admin,
		createThreshold: cfg.CreateThreshold,
		dropThreshold:   cfg.DropThreshold,
		checkInterval:   cfg.CheckInterval,
		maxIndexes:      cfg.MaxIndexes,
	}
}

// Run starts the background policy evaluation loop.
// It runs until the context is cancelled.
func (p *Policy) Run(ctx context.Context) {
	if p.checkInterval <= 0 {
		p.checkInterval = 5 * time.Minute
	}

	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.stats.PruneStale()

			actions, err := p.Evaluate(ctx)
			if err != nil {
				log.Printf("index policy: evaluate failed: %v", err)
				continue
			}

			for _, action := range actions {
				if err := p.executeAction(ctx, action); err != nil {
					log.Printf("index policy: failed to execute %s for field %s: %v",
						action.Type, action.Field, err)
				}
			}
		}
	}
}

// Evaluate determines which index actions should be taken based on current
// predicate statistics.
func (p *Policy) Evaluate(ctx context.Context) ([]Action, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var actions []Action

	topFields := p.stats.TopFields(p.maxIndexes + 10)

	defs, err := p.admin.IndexDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list existing indexes: %w", err)
	}

	// Track which fields already lead an index; the leftmost-prefix rule
	// means a leading field is the one an extra single-field index would
	// duplicate.
	leadingField := make(map[string]bool)
	autoCount := 0
	for _, def := range defs {
		leadingField[def.Fields[0]] = true
		if def.AutoCreated {
			autoCount++
		}
	}

	for _, fs := range topFields {
		if fs.Frequency >= p.createThreshold && !leadingField[fs.Field] {
			if autoCount < p.maxIndexes {
				actions = append(actions, Action{Type: ActionCreate, Field: fs.Field})
				leadingField[fs.Field] = true
				autoCount++
			}
		}
	}

	// Auto-created indexes whose field went cold get dropped; operator
	// declared indexes are never touched.
	for _, def := range defs {
		if !def.AutoCreated {
			continue
		}
		if p.stats.Frequency(def.Fields[0]) < p.dropThreshold {
			actions = append(actions, Action{Type: ActionDrop, Field: def.Fields[0]})
		}
	}

	return actions, nil
}

// executeAction performs the specified index action.
func (p *Policy) executeAction(ctx context.Context, action Action) error {
	switch action.Type {
	case ActionCreate:
		return p.executeCreate(ctx, action.Field)
	case ActionDrop:
		return p.executeDrop(ctx, action.Field)
	default:
		return fmt.Errorf("unknown action type: %s", action.Type)
	}
}

// executeCreate declares a single-field index on the hot field.
func (p *Policy) executeCreate(ctx context.Context, field string) error {
	log.Printf("index policy: creating index for field %s", field)

	def := Definition{
		Name:        AutoIndexName(field),
		Fields:      []string{field},
		AutoCreated: true,
	}
	if err := p.admin.DeclareIndex(ctx, def); err != nil {
		return fmt.Errorf("failed to declare index for field %s: %w", field, err)
	}

	log.Printf("index policy: successfully created index %s", def.Name)
	return nil
}

// executeDrop removes the auto-created index for the cold field.
func (p *Policy) executeDrop(ctx context.Context, field string) error {
	log.Printf("index policy: dropping index for field %s", field)

	if err := p.admin.DropIndex(ctx, AutoIndexName(field)); err != nil {
		return fmt.Errorf("failed to drop index for field %s: %w", field, err)
	}

	log.Printf("index policy: successfully dropped index for field %s", field)
	return nil
}

// AutoIndexName names a policy-created single-field index.
func AutoIndexName(field string) string {
	return "auto_" + field
}
