// Package backoff computes retry delays for transiently failed jobs.
// Strategies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	Delay(attempt int) time.Duration
}

// Exponential doubles the delay each attempt: Base * 2^(attempt-1),
// capped at Max.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

func NewExponential(base, max time.Duration) *Exponential {
	if base <= 0 {
		base = time.Second
	}
	return &Exponential{Base: base, Max: max}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Guard the shift: beyond 62 doublings everything is capped anyway.
	if attempt > 62 {
		return e.Max
	}
	d := float64(e.Base) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	return time.Duration(d)
}

// Constant always waits the same interval.
type Constant struct {
	Interval time.Duration
}

func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

func (c *Constant) Delay(_ int) time.Duration { return c.Interval }
