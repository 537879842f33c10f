package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestNewError(t *testing.T) {
	err := New(ErrCategoryPartition, CodeOverlappingRange, "range [10, 20) overlaps [15, 25)")

	if err.Category != ErrCategoryPartition {
		t.Errorf("expected category PARTITION, got %s", err.Category)
	}
	if err.Code != CodeOverlappingRange {
		t.Errorf("expected code OVERLAPPING_RANGE, got %s", err.Code)
	}
	if err.Retryable {
		t.Error("partition invariant violations must not be retryable")
	}

	expected := "[PARTITION:OVERLAPPING_RANGE] range [10, 20) overlaps [15, 25)"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(ErrCategoryStorage, CodeAppendFailed, "failed to append record", cause)

	if !stderrors.Is(err, cause) {
		t.Error("wrapped error should match its cause via errors.Is")
	}
	if stderrors.Unwrap(err) != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestIsMatchesCategoryAndCode(t *testing.T) {
	err := NoPartitionCoversValue("key 2024-01-01 before earliest partition")
	target := New(ErrCategoryPartition, CodeNoPartitionCoversValue, "")

	if !stderrors.Is(err, target) {
		t.Error("errors with same category and code should match")
	}

	other := New(ErrCategoryPartition, CodeNonContiguous, "")
	if stderrors.Is(err, other) {
		t.Error("errors with different codes should not match")
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	inner := InvalidQuery("offset must be non-negative")
	outer := fmt.Errorf("query failed: %w", inner)

	if !IsCode(outer, CodeInvalidQuery) {
		t.Error("IsCode should see through fmt.Errorf wrapping")
	}
	if GetCategory(outer) != ErrCategoryQuery {
		t.Errorf("expected category QUERY, got %s", GetCategory(outer))
	}
	if GetCode(outer) != CodeInvalidQuery {
		t.Errorf("expected code INVALID_QUERY, got %s", GetCode(outer))
	}
}

func TestRetryableFlags(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
	}{
		{NewCatalogError(CodeCatalogWrite, "busy", fmt.Errorf("locked")), true},
		{Wrap(ErrCategoryStorage, CodeAppendFailed, "wal", fmt.Errorf("io")), true},
		{StorageExhausted("partition full"), false},
		{InvalidQuery("bad range"), false},
		{OverlappingRange("overlap"), false},
	}

	for i, tc := range cases {
		if IsRetryable(tc.err) != tc.retryable {
			t.Errorf("case %d: expected retryable=%v for %v", i, tc.retryable, tc.err)
		}
	}
}

func TestWithDetailsDoesNotMutateOriginal(t *testing.T) {
	err := RecordNotFound("record 42")
	detailed := err.WithDetails(map[string]interface{}{"record_id": 42})

	if err.Details != nil {
		t.Error("original error must not gain details")
	}
	if detailed.Details["record_id"] != 42 {
		t.Error("detailed copy should carry the details")
	}
}

func TestNonStoreErrorAccessors(t *testing.T) {
	plain := fmt.Errorf("plain error")

	if GetCategory(plain) != "" {
		t.Error("plain errors have no category")
	}
	if GetCode(plain) != "" {
		t.Error("plain errors have no code")
	}
	if IsRetryable(plain) {
		t.Error("plain errors are not retryable")
	}
}
