package poller

import "time"

const (
	// DefaultBaseInterval is the delay between healthy cycles.
	DefaultBaseInterval = 10 * time.Second

	// DefaultMaxInterval caps the backoff delay.
	DefaultMaxInterval = 60 * time.Second

	// defaultExponentCap bounds the exponent so the shift cannot overflow.
	defaultExponentCap = 6
)

// Backoff computes the delay before the next cycle from the number of
// consecutive failures: min(Base * 2^min(failures, Cap), Max).
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	Cap  int
}

// DefaultBackoff returns the 10s/60s backoff with the exponent capped at 6.
func DefaultBackoff() Backoff {
	return Backoff{
		Base: DefaultBaseInterval,
		Max:  DefaultMaxInterval,
		Cap:  defaultExponentCap,
	}
}

// Delay returns the wait before the next cycle after failures consecutive
// failed cycles. Negative counts are treated as zero.
func (b Backoff) Delay(failures int) time.Duration {
	exp := failures
	if exp < 0 {
		exp = 0
	}
	if exp > b.Cap {
		exp = b.Cap
	}

	d := b.Base << uint(exp)
	if d > b.Max || d <= 0 {
		return b.Max
	}
	return d
}
