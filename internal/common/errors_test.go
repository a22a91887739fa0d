package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestQuotaExceededError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &QuotaExceededError{RequestedBytes: 10, RemainingBytes: 5})

	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("want match for ErrQuotaExceeded")
	}
	if errors.Is(err, ErrIncompletePartSet) {
		t.Fatalf("must not match unrelated sentinel")
	}

	var qe *QuotaExceededError
	if !errors.As(err, &qe) || qe.RequestedBytes != 10 || qe.RemainingBytes != 5 {
		t.Fatalf("errors.As lost the details: %+v", qe)
	}
}

func TestIncompletePartSetError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &IncompletePartSetError{Missing: []int32{2}, Duplicate: []int32{1}})

	if !errors.Is(err, ErrIncompletePartSet) {
		t.Fatalf("want match for ErrIncompletePartSet")
	}

	var pe *IncompletePartSetError
	if !errors.As(err, &pe) || len(pe.Missing) != 1 || pe.Missing[0] != 2 {
		t.Fatalf("errors.As lost the details: %+v", pe)
	}
}
