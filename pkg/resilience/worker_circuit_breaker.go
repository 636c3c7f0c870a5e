// Package resilience provides the circuit breaker shared by external service calls.
package resilience

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/FinanGammell/pare/pkg/logger"
)

// BreakerConfig tunes a breaker. Zero fields take the defaults below.
type BreakerConfig struct {
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval resets the closed-state counters.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker when exceeded.
	ConsecutiveFailures uint32
	// MinRequests and FailureRatio trip on a sustained failure rate.
	MinRequests  uint32
	FailureRatio float64
	// IsSuccessful decides which errors count as failures. Nil counts every error.
	IsSuccessful func(err error) bool
}

// DefaultBreakerConfig returns the settings used for provider APIs.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		MaxRequests:         3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		MinRequests:         10,
		FailureRatio:        0.6,
	}
}

// NewBreaker builds a gobreaker circuit breaker that logs state changes.
func NewBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	def := DefaultBreakerConfig(cfg.Name)
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = def.ConsecutiveFailures
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = def.MinRequests
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = def.FailureRatio
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures > cfg.ConsecutiveFailures {
				return true
			}
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
		IsSuccessful: cfg.IsSuccessful,
	})
}

// IsOpen reports whether err was returned because the breaker rejected the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Execute runs fn through cb and returns its typed result.
func Execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}
