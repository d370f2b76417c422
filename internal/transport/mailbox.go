package transport

import (
	"context"
	"sync"
)

// Mailbox is the master's inbound queue. Links deliver envelopes into it from
// any goroutine; the master receives from it with an optional sender filter.
// Envelopes skipped by a filtered receive keep their arrival order.
type Mailbox struct {
	in      chan Envelope
	pending []Envelope

	closed    chan struct{}
	closeOnce sync.Once
}

// NewMailbox creates a mailbox whose channel buffers size envelopes.
func NewMailbox(size int) *Mailbox {
	return &Mailbox{
		in:     make(chan Envelope, size),
		closed: make(chan struct{}),
	}
}

// Deliver queues env. It blocks while the buffer is full and fails once the
// mailbox is closed or ctx is done.
func (m *Mailbox) Deliver(ctx context.Context, env Envelope) error {
	select {
	case <-m.closed:
		return ErrClosed
	default:
	}

	select {
	case m.in <- env:
		return nil
	case <-m.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the oldest envelope accepted by match, or any envelope that
// carries a link error. A nil match accepts every sender.
func (m *Mailbox) Receive(ctx context.Context, match func(WorkerID) bool) (Envelope, error) {
	accept := func(env Envelope) bool {
		return env.Err != nil || match == nil || match(env.From)
	}

	for i, env := range m.pending {
		if accept(env) {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return env, env.Err
		}
	}

	for {
		select {
		case env := <-m.in:
			if accept(env) {
				return env, env.Err
			}
			m.pending = append(m.pending, env)
		case <-m.closed:
			return Envelope{}, ErrClosed
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		}
	}
}

// Close wakes every pending Receive and rejects further deliveries.
func (m *Mailbox) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
}

// Done is closed when the mailbox is closed.
func (m *Mailbox) Done() <-chan struct{} {
	return m.closed
}
