package resilience

import "time"

// Outbound provider calls share one tuning profile: failures counted over a
// one minute closed-state window, a 30 second cool-off once open, tripping
// after five consecutive failures.
const (
	defaultInterval         = time.Minute
	defaultTimeout          = 30 * time.Second
	defaultFailureThreshold = 5
	defaultSuccessThreshold = 1
)

// DefaultSettings returns the standard breaker tuning for an outbound
// provider. Callers needing different knobs adjust the returned fields
// before constructing the breaker.
func DefaultSettings(name string) Settings {
	return Settings{
		Name:             name,
		Interval:         defaultInterval,
		Timeout:          defaultTimeout,
		FailureThreshold: defaultFailureThreshold,
		SuccessThreshold: defaultSuccessThreshold,
	}
}

// normalize fills zero-valued knobs with the defaults so a hand-built
// Settings never produces a breaker that cannot trip or close.
func (s Settings) normalize() Settings {
	if s.Interval <= 0 {
		s.Interval = defaultInterval
	}
	if s.Timeout <= 0 {
		s.Timeout = defaultTimeout
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = defaultFailureThreshold
	}
	if s.SuccessThreshold == 0 {
		s.SuccessThreshold = defaultSuccessThreshold
	}
	return s
}
