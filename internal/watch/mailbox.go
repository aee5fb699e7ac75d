package watch

import (
	"errors"
	"sync"
)

// DefaultMailboxCapacity bounds the per-client event backlog.
const DefaultMailboxCapacity = 100

var (
	ErrMailboxFull   = errors.New("mailbox full")
	ErrMailboxClosed = errors.New("mailbox closed")
)

// Mailbox is a bounded event queue owned by exactly one stream session.
// The multiplexer writes with TryPut; the session drains Events.
type Mailbox struct {
	events    chan Envelope
	closed    chan struct{}
	closeOnce sync.Once
}

func NewMailbox() *Mailbox {
	return NewMailboxWithCapacity(DefaultMailboxCapacity)
}

func NewMailboxWithCapacity(capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = DefaultMailboxCapacity
	}
	return &Mailbox{
		events: make(chan Envelope, capacity),
		closed: make(chan struct{}),
	}
}

// TryPut enqueues without blocking. Delivery to a full or closed mailbox
// fails immediately; the caller decides eviction.
func (m *Mailbox) TryPut(envelope Envelope) error {
	select {
	case <-m.closed:
		return ErrMailboxClosed
	default:
	}

	select {
	case m.events <- envelope:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Events is the session-side read end.
func (m *Mailbox) Events() <-chan Envelope {
	return m.events
}

// Close marks the mailbox dead so later deliveries fail fast. It does not
// drain queued events. Safe to call more than once.
func (m *Mailbox) Close() {
	m.closeOnce.Do(func() {
		close(m.closed)
	})
}
