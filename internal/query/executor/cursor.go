package executor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spaolacci/murmur3"

	serrors "github.com/stayridge/stayridge/internal/errors"
	"github.com/stayridge/stayridge/pkg/types"
)

// cursor is the decoded continuation token: the sort position of the last
// returned hit plus the identifiers breaking ties at that position. The
// checksum catches tampered or truncated tokens before they can silently
// skip or repeat records.
type cursor struct {
	Field     string      `json:"f"`
	Desc      bool        `json:"d,omitempty"`
	ValueKind string      `json:"k"`
	Value     interface{} `json:"v"`
	Partition string      `json:"p"`
	RecordID  uint64      `json:"r"`
	Checksum  uint32      `json:"c"`
}

// Value kinds. Integers travel as strings because JSON numbers lose
// precision past 2^53, and partition keys are nanosecond timestamps.
const (
	kindInt    = "i"
	kindFloat  = "f"
	kindString = "s"
	kindBool   = "b"
)

// EncodeCursor builds the continuation token for the hit after which the
// next page resumes.
func EncodeCursor(sort *types.Sort, hit types.Hit) (string, error) {
	v, ok := hit.Record.Field(sort.Field)
	if !ok {
		return "", serrors.NewInternalError(
			fmt.Sprintf("sort field %q missing from record %d", sort.Field, hit.RecordID), nil)
	}

	c := cursor{
		Field:     sort.Field,
		Desc:      sort.Desc,
		Partition: hit.PartitionID,
		RecordID:  uint64(hit.RecordID),
	}
	switch n := v.(type) {
	case int64:
		c.ValueKind = kindInt
		c.Value = strconv.FormatInt(n, 10)
	case float64:
		c.ValueKind = kindFloat
		c.Value = n
	case string:
		c.ValueKind = kindString
		c.Value = n
	case bool:
		c.ValueKind = kindBool
		c.Value = n
	default:
		return "", serrors.NewInternalError(
			fmt.Sprintf("sort field %q has uncursorable type %T", sort.Field, v), nil)
	}
	c.Checksum = c.sum()

	raw, err := json.Marshal(c)
	if err != nil {
		return "", serrors.NewInternalError("failed to marshal cursor", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// DecodeCursor parses and verifies a continuation token against the
// descriptor's sort. Any mismatch or corruption fails with INVALID_CURSOR.
func DecodeCursor(token string, sort *types.Sort) (*cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, serrors.New(serrors.ErrCategoryQuery, serrors.CodeInvalidCursor, "cursor is not valid base64")
	}

	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, serrors.New(serrors.ErrCategoryQuery, serrors.CodeInvalidCursor, "cursor is not valid JSON")
	}
	if c.Checksum != c.sum() {
		return nil, serrors.New(serrors.ErrCategoryQuery, serrors.CodeInvalidCursor, "cursor checksum mismatch")
	}
	if c.Field != sort.Field || c.Desc != sort.Desc {
		return nil, serrors.New(serrors.ErrCategoryQuery, serrors.CodeInvalidCursor,
			fmt.Sprintf("cursor was issued for a different ordering (%s)", c.Field))
	}

	switch c.ValueKind {
	case kindInt:
		s, ok := c.Value.(string)
		if !ok {
			return nil, serrors.New(serrors.ErrCategoryQuery, serrors.CodeInvalidCursor, "integer cursor value malformed")
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, serrors.New(serrors.ErrCategoryQuery, serrors.CodeInvalidCursor, "integer cursor value malformed")
		}
		c.Value = n
	case kindFloat, kindString, kindBool:
	default:
		return nil, serrors.New(serrors.ErrCategoryQuery, serrors.CodeInvalidCursor, "unknown cursor value kind")
	}
	return &c, nil
}

// sum computes the checksum over the cursor's canonical form.
func (c *cursor) sum() uint32 {
	canonical := fmt.Sprintf("%s|%t|%s|%v|%s|%d", c.Field, c.Desc, c.ValueKind, c.Value, c.Partition, c.RecordID)
	return murmur3.Sum32([]byte(canonical))
}

// after reports whether the hit sorts strictly after the cursor position
// under the given ordering.
func (c *cursor) after(hit types.Hit) bool {
	v, ok := hit.Record.Field(c.Field)
	if !ok {
		return false
	}
	cmp := types.Compare(v, c.Value)
	if c.Desc {
		cmp = -cmp
	}
	if cmp != 0 {
		return cmp > 0
	}
	if hit.PartitionID != c.Partition {
		return hit.PartitionID > c.Partition
	}
	return uint64(hit.RecordID) > c.RecordID
}
