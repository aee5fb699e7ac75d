package watch

import "time"

// backoff produces the reconnect delay schedule: initial delay, doubling,
// capped at max. Reset is called whenever a stream is successfully
// established, so only consecutive failures escalate the delay.
type backoff struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{initial: initial, max: max, next: initial}
}

func (b *backoff) Next() time.Duration {
	delay := b.next
	doubled := delay * 2
	if doubled > b.max {
		doubled = b.max
	}
	b.next = doubled
	return delay
}

func (b *backoff) Reset() {
	b.next = b.initial
}
