// Package transport defines the message-passing substrate between one master
// and a fixed set of workers, and an in-process implementation of it.
//
// Master and workers never share memory through a transport: every pixel
// payload is copied when it is sent. Ordering between one sender and one
// receiver is FIFO; there is no ordering across different workers.
package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed hub or endpoint.
	ErrClosed = errors.New("transport closed")

	// ErrUnknownWorker is returned when a message is addressed to a worker
	// the hub does not know.
	ErrUnknownWorker = errors.New("unknown worker")
)

// WorkerID is the stable address of one worker for the lifetime of a run.
type WorkerID string

// Kind discriminates the three protocol messages.
type Kind string

const (
	// KindWork assigns one row to a worker.
	KindWork Kind = "work"
	// KindResult reports a computed row back to the master.
	KindResult Kind = "result"
	// KindTerminate tells a worker there is no more work.
	KindTerminate Kind = "terminate"
)

// Message is a single protocol message. Row is meaningful for work and result
// messages, Pixels only for results.
type Message struct {
	Kind   Kind    `json:"kind"`
	Row    int     `json:"row"`
	Pixels []int32 `json:"pixels,omitempty"`
}

// WorkItem builds an assignment for row.
func WorkItem(row int) Message {
	return Message{Kind: KindWork, Row: row}
}

// RowResult builds the report for a computed row.
func RowResult(row int, pixels []int32) Message {
	return Message{Kind: KindResult, Row: row, Pixels: pixels}
}

// Termination builds the stop signal.
func Termination() Message {
	return Message{Kind: KindTerminate}
}

func (m Message) String() string {
	switch m.Kind {
	case KindWork:
		return fmt.Sprintf("work(row=%d)", m.Row)
	case KindResult:
		return fmt.Sprintf("result(row=%d, %d pixels)", m.Row, len(m.Pixels))
	case KindTerminate:
		return "terminate"
	default:
		return fmt.Sprintf("unknown(%q)", m.Kind)
	}
}

// clone returns a copy of m that shares no memory with it.
func (m Message) clone() Message {
	if m.Pixels != nil {
		px := make([]int32, len(m.Pixels))
		copy(px, m.Pixels)
		m.Pixels = px
	}
	return m
}

// Envelope is a message tagged with the worker that sent it.
type Envelope struct {
	From WorkerID
	Msg  Message

	// Err is set when the link to From failed; Msg is then empty.
	Err error
}

// Hub is the master's side of a transport. Receive methods are meant to be
// called from a single goroutine (the master loop).
type Hub interface {
	// Workers returns every worker of the run, in a stable order.
	Workers() []WorkerID

	// Send hands msg to worker to. It does not wait for the worker to read it.
	Send(ctx context.Context, to WorkerID, msg Message) error

	// RecvAny blocks until a message from any worker is available.
	RecvAny(ctx context.Context) (Envelope, error)

	// Recv blocks until a message from the given worker is available.
	// Messages from other workers that arrive meanwhile are kept for later.
	Recv(ctx context.Context, from WorkerID) (Message, error)

	// Close releases the hub. Pending receives return ErrClosed.
	Close() error
}

// Endpoint is one worker's side of a transport.
type Endpoint interface {
	// ID returns the address the master knows this worker by.
	ID() WorkerID

	// Send hands msg to the master.
	Send(ctx context.Context, msg Message) error

	// Recv blocks for the next message from the master.
	Recv(ctx context.Context) (Message, error)

	// Close releases the endpoint.
	Close() error
}
