package planner

import (
	"fmt"

	serrors "github.com/stayridge/stayridge/internal/errors"
	"github.com/stayridge/stayridge/pkg/types"
)

// Validate rejects malformed descriptors before any storage access. A
// descriptor that passes validation can still match nothing; validation only
// guards structure, never selectivity.
func Validate(d *types.Descriptor) error {
	if d == nil {
		return serrors.InvalidQuery("descriptor is nil")
	}
	if d.Limit < 0 {
		return serrors.InvalidQuery(fmt.Sprintf("limit must be non-negative, got %d", d.Limit))
	}
	if d.Offset < 0 {
		return serrors.InvalidQuery(fmt.Sprintf("offset must be non-negative, got %d", d.Offset))
	}
	if d.Cursor != "" && d.Offset > 0 {
		return serrors.InvalidQuery("cursor and offset are mutually exclusive")
	}
	if d.Cursor != "" && d.Sort == nil {
		return serrors.InvalidQuery("cursor pagination requires a sort")
	}

	seen := make(map[string]bool, len(d.Constraints))
	for _, c := range d.Constraints {
		if err := validateConstraint(c); err != nil {
			return err
		}
		if seen[c.Field] {
			return serrors.InvalidQuery(fmt.Sprintf("duplicate constraint on field %q", c.Field))
		}
		seen[c.Field] = true
	}

	if d.Sort != nil && !types.IsIndexable(d.Sort.Field) {
		return serrors.InvalidQuery(fmt.Sprintf("unknown sort field %q", d.Sort.Field))
	}
	return nil
}

func validateConstraint(c types.Constraint) error {
	if !types.IsIndexable(c.Field) {
		return serrors.InvalidQuery(fmt.Sprintf("unknown field %q in constraint", c.Field))
	}

	switch c.Op {
	case types.OpEq:
		if c.Value == nil {
			return serrors.InvalidQuery(fmt.Sprintf("eq constraint on %q has no value", c.Field))
		}
	case types.OpIn:
		if len(c.Values) == 0 {
			return serrors.InvalidQuery(fmt.Sprintf("in constraint on %q has an empty value set", c.Field))
		}
	case types.OpRange:
		if c.Low == nil && c.High == nil {
			return serrors.InvalidQuery(fmt.Sprintf("range constraint on %q is unbounded on both sides", c.Field))
		}
		if c.Low != nil && c.High != nil && types.Compare(c.Low, c.High) > 0 {
			return serrors.InvalidQuery(fmt.Sprintf("range constraint on %q has low above high", c.Field))
		}
	default:
		return serrors.InvalidQuery(fmt.Sprintf("unknown operator %q on field %q", c.Op, c.Field))
	}
	return nil
}

// Matches evaluates the full predicate against one record. The executor
// applies this residual filter to every fetched record regardless of how it
// was found, so an index access path can never widen a result.
func Matches(d *types.Descriptor, record types.Record) bool {
	for _, c := range d.Constraints {
		v, ok := record.Field(c.Field)
		if !ok {
			return false
		}
		switch c.Op {
		case types.OpEq:
			if !types.Equal(v, c.Value) {
				return false
			}
		case types.OpIn:
			found := false
			for _, candidate := range c.Values {
				if types.Equal(v, candidate) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case types.OpRange:
			if c.Low != nil {
				cmp := types.Compare(v, c.Low)
				if cmp < 0 || (cmp == 0 && !c.IncLow) {
					return false
				}
			}
			if c.High != nil {
				cmp := types.Compare(v, c.High)
				if cmp > 0 || (cmp == 0 && !c.IncHigh) {
					return false
				}
			}
		}
	}
	return true
}
