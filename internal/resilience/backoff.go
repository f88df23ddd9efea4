package resilience

import (
	"math/rand/v2"
	"time"
)

// MaxBackoff caps a single retry delay.
const MaxBackoff = 10 * time.Second

// Backoff returns the exponential delay before retry attempt n (1-based),
// spread by ±jitter (0.2 == 20%) and capped at MaxBackoff.
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt && d < MaxBackoff; i++ {
		d *= 2
	}
	if d > MaxBackoff {
		d = MaxBackoff
	}
	if jitter <= 0 {
		return d
	}
	spread := float64(d) * jitter
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
