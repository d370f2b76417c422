package transport

import (
	"context"
	"fmt"
)

// outboxSize bounds the messages queued for one worker. A worker holds at
// most one assignment, so an assignment and a termination never coexist.
const outboxSize = 2

// Local is an in-process Hub whose workers are goroutines in the same binary.
type Local struct {
	ids       []WorkerID
	endpoints map[WorkerID]*localEndpoint
	box       *Mailbox
}

// NewLocal creates a hub for n workers named worker-1 .. worker-n and returns
// it together with the workers' endpoints, in the same order as Workers().
func NewLocal(n int) (*Local, []Endpoint) {
	h := &Local{
		ids:       make([]WorkerID, 0, n),
		endpoints: make(map[WorkerID]*localEndpoint, n),
		box:       NewMailbox(n),
	}

	eps := make([]Endpoint, 0, n)
	for i := 1; i <= n; i++ {
		id := WorkerID(fmt.Sprintf("worker-%d", i))
		ep := &localEndpoint{
			id:    id,
			inbox: make(chan Message, outboxSize),
			hub:   h,
		}
		h.ids = append(h.ids, id)
		h.endpoints[id] = ep
		eps = append(eps, ep)
	}
	return h, eps
}

func (h *Local) Workers() []WorkerID {
	out := make([]WorkerID, len(h.ids))
	copy(out, h.ids)
	return out
}

func (h *Local) Send(ctx context.Context, to WorkerID, msg Message) error {
	ep, ok := h.endpoints[to]
	if !ok {
		return fmt.Errorf("send to %s: %w", to, ErrUnknownWorker)
	}

	select {
	case <-h.box.Done():
		return ErrClosed
	default:
	}

	select {
	case ep.inbox <- msg.clone():
		return nil
	case <-h.box.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Local) RecvAny(ctx context.Context) (Envelope, error) {
	return h.box.Receive(ctx, nil)
}

func (h *Local) Recv(ctx context.Context, from WorkerID) (Message, error) {
	if _, ok := h.endpoints[from]; !ok {
		return Message{}, fmt.Errorf("receive from %s: %w", from, ErrUnknownWorker)
	}
	env, err := h.box.Receive(ctx, func(id WorkerID) bool { return id == from })
	return env.Msg, err
}

func (h *Local) Close() error {
	h.box.Close()
	return nil
}

type localEndpoint struct {
	id    WorkerID
	inbox chan Message
	hub   *Local
}

func (e *localEndpoint) ID() WorkerID { return e.id }

func (e *localEndpoint) Send(ctx context.Context, msg Message) error {
	return e.hub.box.Deliver(ctx, Envelope{From: e.id, Msg: msg.clone()})
}

func (e *localEndpoint) Recv(ctx context.Context) (Message, error) {
	// Anything already queued wins over a concurrent close.
	select {
	case msg := <-e.inbox:
		return msg, nil
	default:
	}

	select {
	case msg := <-e.inbox:
		return msg, nil
	case <-e.hub.box.Done():
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (e *localEndpoint) Close() error { return nil }
