package types

import (
	"bytes"
	"fmt"
)

// Compare orders two field values. It returns a negative number when a < b,
// zero when equal, and a positive number when a > b. Nil sorts first.
// Numeric values compare across int64/int/float64; everything else compares
// within its own type, falling back to the string rendering for mixed types.
func Compare(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	switch va := a.(type) {
	case int64:
		if vb, ok := asInt64(b); ok {
			return compareInt64(va, vb)
		}
		if vb, ok := b.(float64); ok {
			return compareFloat64(float64(va), vb)
		}
	case int:
		return Compare(int64(va), b)
	case float64:
		if vb, ok := asFloat64(b); ok {
			return compareFloat64(va, vb)
		}
	case string:
		if vb, ok := b.(string); ok {
			switch {
			case va < vb:
				return -1
			case va > vb:
				return 1
			}
			return 0
		}
	case []byte:
		if vb, ok := b.([]byte); ok {
			return bytes.Compare(va, vb)
		}
		if vb, ok := b.(string); ok {
			return bytes.Compare(va, []byte(vb))
		}
	case bool:
		if vb, ok := b.(bool); ok {
			switch {
			case !va && vb:
				return -1
			case va && !vb:
				return 1
			}
			return 0
		}
	}

	sa := fmt.Sprintf("%v", a)
	sb := fmt.Sprintf("%v", b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

// Equal reports whether two field values compare equal.
func Equal(a, b interface{}) bool {
	return Compare(a, b) == 0
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func asInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	}
	return 0, false
}

func asFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	}
	return 0, false
}
