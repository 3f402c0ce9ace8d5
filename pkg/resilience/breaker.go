package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the breaker rejects an execution.
var ErrCircuitOpen = errors.New("resilience: circuit breaker open")

// Settings tunes a circuit breaker instance.
type Settings struct {
	Name             string
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
}

// CircuitBreaker wraps gobreaker with logging, metrics, and an optional
// fallback executed when the circuit is open.
type CircuitBreaker struct {
	name     string
	breaker  *gobreaker.CircuitBreaker
	fallback FallbackFunc
}

// NewCircuitBreaker creates a breaker from the given settings. Zero-valued
// knobs fall back to the package defaults.
func NewCircuitBreaker(settings Settings, fallback FallbackFunc) *CircuitBreaker {
	settings = settings.normalize()
	if fallback == nil {
		fallback = NoopFallback
	}

	cb := &CircuitBreaker{
		name:     settings.Name,
		fallback: fallback,
	}

	cb.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		MaxRequests: settings.SuccessThreshold,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			recordStateChange(name, from, to)
		},
	})

	registerBreaker(settings.Name)
	return cb
}

// Execute runs fn through the breaker, invoking the fallback when open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	result, err := cb.breaker.Execute(func() (interface{}, error) {
		recordRequest(cb.name)
		res, execErr := fn(ctx)
		if execErr != nil {
			recordFailure(cb.name)
		}
		return res, execErr
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		recordFallback(cb.name)
		return cb.fallback(ctx, ErrCircuitOpen)
	}

	return result, err
}

// State reports the current breaker state.
func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.breaker.State()
}
