package upstream

import (
	"math"
	"time"
)

// Policy describes the retry schedule for transient upstream failures.
// Delays grow exponentially from BaseDelay by Multiplier per attempt and are
// capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultPolicy matches the documented upstream guidance of three attempts
// with exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

// delay returns the backoff before retry number retry (0 for the first
// retry, i.e. the second attempt overall).
func (p Policy) delay(retry int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(retry)))
	if d > p.MaxDelay || d < 0 {
		return p.MaxDelay
	}
	return d
}
