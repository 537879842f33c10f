package types

// Op is a predicate operator in a query descriptor.
type Op string

const (
	// OpEq matches records whose field equals the constraint value
	OpEq Op = "eq"

	// OpRange matches records whose field falls between Low and High
	OpRange Op = "range"

	// OpIn matches records whose field equals any of the constraint values
	OpIn Op = "in"
)

// Constraint is a single predicate term. A descriptor's predicate is the
// conjunction of its constraints.
type Constraint struct {
	// Field is the record field the constraint applies to
	Field string `json:"field"`

	// Op is the predicate operator
	Op Op `json:"op"`

	// Value is the comparison value for eq constraints
	Value interface{} `json:"value,omitempty"`

	// Values are the candidate values for in constraints
	Values []interface{} `json:"values,omitempty"`

	// Low and High bound range constraints; nil means unbounded on that side
	Low  interface{} `json:"low,omitempty"`
	High interface{} `json:"high,omitempty"`

	// IncLow and IncHigh control range bound inclusivity
	IncLow  bool `json:"inc_low,omitempty"`
	IncHigh bool `json:"inc_high,omitempty"`
}

// Sort specifies the requested result ordering.
type Sort struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Descriptor describes one query: a conjunction of constraints, an optional
// sort, and optional pagination. It is constructed per request by the caller
// (the SQL-facing layer) and consumed once.
type Descriptor struct {
	Constraints []Constraint `json:"constraints,omitempty"`

	Sort *Sort `json:"sort,omitempty"`

	// Limit caps the number of returned records; 0 means unlimited
	Limit int `json:"limit,omitempty"`

	// Offset skips the first N records of the merged stream. Cost is
	// O(offset); deep pages should use Cursor instead.
	Offset int `json:"offset,omitempty"`

	// Cursor is an opaque continuation token from a previous Result.
	// Mutually exclusive with Offset.
	Cursor string `json:"cursor,omitempty"`
}

// ConstraintOn returns the first constraint on the named field, if any.
func (d *Descriptor) ConstraintOn(field string) (Constraint, bool) {
	for _, c := range d.Constraints {
		if c.Field == field {
			return c, true
		}
	}
	return Constraint{}, false
}

// Hit is a single query result: the record plus the identifiers needed to
// resume pagination after it.
type Hit struct {
	PartitionID string   `json:"partition_id"`
	RecordID    RecordID `json:"record_id"`
	Record      Record   `json:"record"`
}

// Result is an ordered page of records. NextCursor is empty when the result
// is exhaustive.
type Result struct {
	Hits       []Hit  `json:"hits"`
	NextCursor string `json:"next_cursor,omitempty"`

	// PartitionsScanned and PartitionsPruned report planner effectiveness
	PartitionsScanned int `json:"partitions_scanned"`
	PartitionsPruned  int `json:"partitions_pruned"`
}
