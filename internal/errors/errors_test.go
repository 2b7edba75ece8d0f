package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorStringIncludesCategoryAndCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, CategoryRemote, SeverityFatal, "fetch page 42")
	want := "remote (fatal): fetch page 42: connection refused"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if !stderrors.Is(err, cause) {
		t.Fatalf("wrapped cause not reachable via errors.Is")
	}
}

func TestIsCategoryUnwraps(t *testing.T) {
	inner := New(CategoryAsset, SeverityWarning, "image missing")
	outer := fmt.Errorf("resolving page: %w", inner)
	if !IsCategory(outer, CategoryAsset) {
		t.Fatalf("IsCategory failed to unwrap nested MirrorError")
	}
	if IsCategory(outer, CategoryRemote) {
		t.Fatalf("IsCategory matched wrong category")
	}
}

func TestGetCategoryFallsBackToInternal(t *testing.T) {
	if got := GetCategory(stderrors.New("plain")); got != CategoryInternal {
		t.Fatalf("GetCategory = %q, want %q", got, CategoryInternal)
	}
}

func TestRetryableFlag(t *testing.T) {
	err := WrapRetryable(stderrors.New("503"), CategoryRemote, SeverityError, "transient upstream failure")
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if IsRetryable(New(CategoryConfig, SeverityFatal, "bad url")) {
		t.Fatalf("config errors must not be retryable")
	}
}

func TestWithContext(t *testing.T) {
	err := New(CategoryIntegrity, SeverityFatal, "dangling links").
		WithContext("violations", 3)
	if err.Context["violations"] != 3 {
		t.Fatalf("context not recorded: %v", err.Context)
	}
}
