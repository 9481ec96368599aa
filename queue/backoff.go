package queue

import "time"

// Backoff maps a retry attempt (1-based) to a republish delay.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// ExponentialBackoff doubles the delay per attempt up to Cap.
type ExponentialBackoff struct {
	Base   time.Duration
	Factor float64
	Cap    time.Duration
}

func DefaultBackoff() ExponentialBackoff {
	return ExponentialBackoff{Base: 30 * time.Second, Factor: 2, Cap: 10 * time.Minute}
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base)
	for i := 1; i < attempt; i++ {
		d *= b.Factor
		if time.Duration(d) >= b.Cap {
			return b.Cap
		}
	}
	if time.Duration(d) > b.Cap {
		return b.Cap
	}
	return time.Duration(d)
}
