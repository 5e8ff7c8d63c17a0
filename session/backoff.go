package session

import (
	"time"

	"github.com/jpillora/backoff"
)

// RetryBackoff schedules reconnection attempts for upper layers that
// received a retryable stream error (§7 "Retryable stream errors" —
// "upper layers can retry on a new connection"). It wraps
// jpillora/backoff's exponential/jitter policy rather than reinventing
// one.
type RetryBackoff struct {
	b *backoff.Backoff
}

// NewRetryBackoff builds a RetryBackoff with sane HTTP/2 reconnect
// defaults: 100ms up to 30s, doubling each attempt.
func NewRetryBackoff() *RetryBackoff {
	return &RetryBackoff{b: &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}}
}

// Next returns the delay before the next reconnect attempt.
func (r *RetryBackoff) Next() time.Duration { return r.b.Duration() }

// Reset clears attempt history after a successful reconnect.
func (r *RetryBackoff) Reset() { r.b.Reset() }

// Attempt returns how many attempts have been made so far.
func (r *RetryBackoff) Attempt() int { return int(r.b.Attempt()) }
