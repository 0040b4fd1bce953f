package blob

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes the wait before retry number attempt (0-based).
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Base: 200 * time.Millisecond, Cap: 5 * time.Second, Jitter: 100 * time.Millisecond}
}

func (b Backoff) Delay(attempt int) time.Duration {
	// attempt=0 => base, attempt=1 => 2*base, attempt=2 => 4*base
	multiple := math.Pow(2, float64(attempt))
	delay := time.Duration(float64(b.Base) * multiple)

	if b.Cap > 0 && delay > b.Cap {
		delay = b.Cap
	}

	if b.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(b.Jitter)))
	}
	return delay
}
