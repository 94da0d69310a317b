package webhookq

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes retry delays: exponential in the attempt number with
// equal jitter, capped at Max. Stateless and safe for concurrent use.
//
// Delay for attempt n (1-indexed) is a random value in [base/2, base] where
// base = min(Initial * 2^(n-1), Max). Jitter spreads simultaneous retries
// apart; the base/2 floor keeps successive delays increasing until the cap
// is reached.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff returns the backoff used when configuration is absent:
// 30s initial, 1h cap.
func DefaultBackoff() Backoff {
	return Backoff{Initial: 30 * time.Second, Max: time.Hour}
}

// Delay returns the jittered delay before retry attempt n (1-indexed).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := b.Initial
	if initial <= 0 {
		initial = 30 * time.Second
	}
	base := float64(initial) * math.Pow(2, float64(attempt-1))
	if b.Max > 0 && base > float64(b.Max) {
		base = float64(b.Max)
	}
	half := base / 2
	return time.Duration(half + rand.Float64()*half) //nolint:gosec // jitter intentionally uses non-crypto rand
}
