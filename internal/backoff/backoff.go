// Package backoff computes jittered exponential reconnect delays.
package backoff

import (
	"time"

	cbackoff "github.com/cenkalti/backoff/v5"
)

const (
	DefaultBase   = 500 * time.Millisecond
	DefaultFactor = 1.8
	DefaultCap    = 10 * time.Second
	DefaultJitter = 0.3
)

// maxSteps bounds how far an attempt index advances the interval. The
// interval reaches Cap long before this for any sane factor.
const maxSteps = 64

// Calculator produces exponential delays with symmetric jitter, indexed by
// attempt rather than by call count.
type Calculator struct {
	Base   time.Duration
	Factor float64
	Cap    time.Duration
	// Jitter is the randomization factor: the delay lands uniformly in
	// [d*(1-Jitter), d*(1+Jitter)]. Zero makes Next deterministic.
	Jitter float64
}

// New returns a Calculator with the default parameters.
func New() *Calculator {
	return &Calculator{
		Base:   DefaultBase,
		Factor: DefaultFactor,
		Cap:    DefaultCap,
		Jitter: DefaultJitter,
	}
}

// Next returns the delay before reconnect number attempt (zero-based).
// The result is never below Base.
func (c *Calculator) Next(attempt int) time.Duration {
	b := &cbackoff.ExponentialBackOff{
		InitialInterval: c.Base,
		Multiplier:      c.Factor,
		MaxInterval:     c.Cap,
	}
	for range min(max(attempt, 0), maxSteps) {
		b.NextBackOff()
	}
	b.RandomizationFactor = c.Jitter
	return max(c.Base, b.NextBackOff())
}

var defaultCalculator = New()

// NextDelay returns the default jittered delay for attempt.
func NextDelay(attempt int) time.Duration {
	return defaultCalculator.Next(attempt)
}
