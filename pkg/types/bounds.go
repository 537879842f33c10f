package types

import (
	"fmt"
	"math"
	"time"
)

// OpenHigh marks the upper bound of the open-ended future partition.
const OpenHigh = int64(math.MaxInt64)

// Bounds is a half-open range [Low, High) over the partition key domain
// (Unix nanoseconds). High == OpenHigh means the range extends to +infinity.
type Bounds struct {
	Low  int64 `json:"low"`
	High int64 `json:"high"`
}

// NewBounds builds a range and rejects empty or inverted ranges.
func NewBounds(low, high int64) (Bounds, error) {
	if high <= low {
		return Bounds{}, fmt.Errorf("bounds: high must be greater than low, got [%d, %d)", low, high)
	}
	return Bounds{Low: low, High: high}, nil
}

// Contains reports whether v falls inside [Low, High).
func (b Bounds) Contains(v int64) bool {
	return v >= b.Low && v < b.High
}

// Overlaps reports whether this range intersects the half-open query
// range [lo, hi).
func (b Bounds) Overlaps(lo, hi int64) bool {
	return b.Low < hi && b.High > lo
}

// OverlapsBounds reports whether two partition ranges intersect.
func (b Bounds) OverlapsBounds(other Bounds) bool {
	return b.Overlaps(other.Low, other.High)
}

// Open reports whether the range is the open-ended future partition.
func (b Bounds) Open() bool {
	return b.High == OpenHigh
}

// FormatKey renders a partition key value for logs and error messages.
func FormatKey(v int64) string {
	if v == OpenHigh {
		return "+inf"
	}
	return time.Unix(0, v).UTC().Format("2006-01-02")
}

// String renders the range for logs and error messages.
func (b Bounds) String() string {
	low := time.Unix(0, b.Low).UTC().Format("2006-01-02")
	if b.Open() {
		return fmt.Sprintf("[%s, +inf)", low)
	}
	return fmt.Sprintf("[%s, %s)", low, time.Unix(0, b.High).UTC().Format("2006-01-02"))
}
