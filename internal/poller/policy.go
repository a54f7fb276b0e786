package poller

import (
	"errors"
	"time"
)

// Default polling policy.
const (
	DefaultInitialInterval = 2 * time.Second
	DefaultMultiplier      = 1.5
	DefaultMaxInterval     = 15 * time.Second
	DefaultBudget          = 5 * time.Minute
)

// Policy is an exponential backoff with a ceiling, bounded by a wall-clock budget.
type Policy struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	Budget          time.Duration
}

// DefaultPolicy returns the default polling policy.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: DefaultInitialInterval,
		Multiplier:      DefaultMultiplier,
		MaxInterval:     DefaultMaxInterval,
		Budget:          DefaultBudget,
	}
}

// Validate checks that the policy terminates and never shrinks the interval.
func (p Policy) Validate() error {
	switch {
	case p.InitialInterval <= 0:
		return errors.New("poll policy: initial interval must be positive")
	case p.MaxInterval < p.InitialInterval:
		return errors.New("poll policy: max interval must be at least the initial interval")
	case p.Multiplier < 1:
		return errors.New("poll policy: multiplier must be at least 1")
	case p.Budget <= 0:
		return errors.New("poll policy: budget must be positive")
	}
	return nil
}

// Next returns the interval that follows d: d*Multiplier, capped at MaxInterval.
func (p Policy) Next(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * p.Multiplier)
	if next < d {
		next = d
	}
	return min(next, p.MaxInterval)
}
