package resilience

import (
	"errors"
	"testing"
	"time"
)

func newSinkGroup(cfg CircuitBreakerConfig) *FallbackGroup[string] {
	fg := NewFallbackGroup("stdout", "stdout", FallbackConfig{CircuitBreaker: cfg})
	fg.AddFallback("file", "file")
	return fg
}

func TestFallbackGroup_PrimaryFirst(t *testing.T) {
	fg := newSinkGroup(CircuitBreakerConfig{MaxFailures: 3})

	var delivered []string
	if err := fg.Execute(func(s string) error {
		delivered = append(delivered, s)
		return nil
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(delivered) != 1 || delivered[0] != "stdout" {
		t.Fatalf("delivered to %v, want just the primary", delivered)
	}
}

func TestFallbackGroup_FailoverStopsAtFirstSuccess(t *testing.T) {
	fg := newSinkGroup(CircuitBreakerConfig{MaxFailures: 3})

	var delivered []string
	if err := fg.Execute(func(s string) error {
		delivered = append(delivered, s)
		if s == "stdout" {
			return errSinkDown
		}
		return nil
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []string{"stdout", "file"}
	if len(delivered) != 2 || delivered[0] != want[0] || delivered[1] != want[1] {
		t.Fatalf("delivered to %v, want %v", delivered, want)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	fg := newSinkGroup(CircuitBreakerConfig{MaxFailures: 3})

	err := fg.Execute(func(string) error { return errSinkDown })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_OpenBreakerSkipsPrimary(t *testing.T) {
	fg := newSinkGroup(CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})

	for range 2 {
		_ = fg.Execute(func(s string) error {
			if s == "stdout" {
				return errSinkDown
			}
			return nil
		})
	}

	// The primary breaker is open now; delivery must go straight to the
	// fallback without touching the primary.
	var delivered []string
	if err := fg.Execute(func(s string) error {
		delivered = append(delivered, s)
		return nil
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(delivered) != 1 || delivered[0] != "file" {
		t.Fatalf("delivered to %v, want just the fallback", delivered)
	}
}

func TestExecuteWithResult(t *testing.T) {
	fg := NewFallbackGroup(16000, "native", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("downsampled", 8000)

	got, err := ExecuteWithResult(fg, func(rate int) (string, error) {
		if rate == 16000 {
			return "wideband", nil
		}
		return "narrowband", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "wideband" {
		t.Fatalf("result = %q, want wideband", got)
	}

	got, err = ExecuteWithResult(fg, func(rate int) (string, error) {
		if rate == 16000 {
			return "", errSinkDown
		}
		return "narrowband", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult failover: %v", err)
	}
	if got != "narrowband" {
		t.Fatalf("result = %q, want narrowband", got)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	fg := NewFallbackGroup(16000, "native", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	if _, err := ExecuteWithResult(fg, func(int) (string, error) {
		return "", errSinkDown
	}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
