package detector

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the detector circuit breaker rejects a call.
var ErrCircuitOpen = errors.New("detector circuit breaker is open")

// BreakerConfig holds the configuration for the circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip the circuit.
	MaxFailures uint32
	// Timeout is the duration the circuit stays open before transitioning to half-open.
	Timeout time.Duration
}

// DefaultBreakerConfig trips after 3 consecutive failures and stays open 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxFailures: 3, Timeout: 30 * time.Second}
}

// circuitBreaker wraps gobreaker so that a dead model server fails frames
// fast instead of stalling every tick for the full HTTP timeout.
type circuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

func newCircuitBreaker(cfg BreakerConfig) *circuitBreaker {
	def := DefaultBreakerConfig()
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	settings := gobreaker.Settings{
		Name:        "detector",
		MaxRequests: 1,
		Interval:    0, // Don't clear counts periodically
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// a cancelled tick says nothing about the server
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("detector: circuit %s -> %s", from, to)
		},
	}
	return &circuitBreaker{breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (cb *circuitBreaker) execute(ctx context.Context, fn func() ([]Detection, error)) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := cb.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	detections, _ := result.([]Detection)
	return detections, nil
}

// State returns "closed", "open" or "half-open".
func (cb *circuitBreaker) State() string {
	return cb.breaker.State().String()
}
