package client

import "time"

// backoff yields reconnect delays growing geometrically from initial up to
// a cap. It is not safe for concurrent use; the Client guards it with its
// own mutex.
type backoff struct {
	initial time.Duration
	factor  float64
	max     time.Duration
	current time.Duration
}

func newBackoff(initial time.Duration, factor float64, max time.Duration) *backoff {
	if initial <= 0 {
		initial = 800 * time.Millisecond
	}
	if factor < 1.0 {
		factor = 1.7
	}
	if max < initial {
		max = 15 * time.Second
	}
	return &backoff{initial: initial, factor: factor, max: max, current: initial}
}

// Next returns the delay to use for the next reconnect attempt and advances
// the cursor.
func (b *backoff) Next() time.Duration {
	d := b.current
	next := time.Duration(float64(b.current) * b.factor)
	if next > b.max {
		next = b.max
	}
	b.current = next
	return d
}

// Reset rewinds the cursor to the initial delay. Called on successful
// handshake completion.
func (b *backoff) Reset() {
	b.current = b.initial
}
