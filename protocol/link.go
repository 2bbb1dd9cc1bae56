package protocol

import (
	"context"
	"errors"
	"sync"
)

// ErrNoBarrier is returned when a message is sent before the barrier.
var ErrNoBarrier = errors.New("link: barrier not reached")

// Endpoint is one side of a link. Messages are delivered in order.
type Endpoint struct {
	name string
	out  chan<- Message
	in   <-chan Message

	ready     chan struct{}
	readyOnce sync.Once
	peer      *Endpoint
}

// NewLink creates the two endpoints of a link. Each direction buffers up to
// depth messages.
func NewLink(depth int) (control, compute *Endpoint) {
	toCompute := make(chan Message, depth)
	toControl := make(chan Message, depth)

	control = &Endpoint{
		name:  "control",
		out:   toCompute,
		in:    toControl,
		ready: make(chan struct{}),
	}
	compute = &Endpoint{
		name:  "compute",
		out:   toControl,
		in:    toCompute,
		ready: make(chan struct{}),
	}
	control.peer = compute
	compute.peer = control

	return control, compute
}

// Name returns which side the endpoint is on.
func (e *Endpoint) Name() string {
	return e.name
}

// Barrier marks this side ready and waits for the other side. Calling it
// again after it has passed returns immediately.
func (e *Endpoint) Barrier(ctx context.Context) error {
	e.readyOnce.Do(func() { close(e.ready) })

	select {
	case <-e.peer.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Endpoint) passed() bool {
	select {
	case <-e.ready:
	default:
		return false
	}

	select {
	case <-e.peer.ready:
		return true
	default:
		return false
	}
}

// Send queues a message for the other side.
func (e *Endpoint) Send(ctx context.Context, msg Message) error {
	if !e.passed() {
		return ErrNoBarrier
	}

	select {
	case e.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv waits for the next message from the other side.
func (e *Endpoint) Recv(ctx context.Context) (Message, error) {
	select {
	case msg := <-e.in:
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}
