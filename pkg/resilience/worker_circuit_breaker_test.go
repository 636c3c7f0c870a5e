package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
)

func TestNewBreaker_TripsOnConsecutiveFailures(t *testing.T) {
	cb := NewBreaker(BreakerConfig{Name: "test", ConsecutiveFailures: 2})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if _, err := Execute(cb, func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected boom, got %v", i, err)
		}
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", cb.State())
	}

	_, err := Execute(cb, func() (int, error) { return 1, nil })
	if !IsOpen(err) {
		t.Errorf("expected open-state error, got %v", err)
	}
}

func TestNewBreaker_IgnoresUnsuccessfulFilter(t *testing.T) {
	cb := NewBreaker(BreakerConfig{
		Name:                "test",
		ConsecutiveFailures: 1,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	for i := 0; i < 5; i++ {
		_, _ = Execute(cb, func() (string, error) { return "", context.Canceled })
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected closed breaker, got %s", cb.State())
	}
}

func TestExecute_ReturnsValue(t *testing.T) {
	cb := NewBreaker(DefaultBreakerConfig("test"))
	got, err := Execute(cb, func() ([]string, error) { return []string{"a"}, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("expected [a], got %v", got)
	}
}
