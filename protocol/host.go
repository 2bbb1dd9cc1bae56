package protocol

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// ErrDropped is returned by Host.Execute when the compute core dropped the
// frame.
var ErrDropped = errors.New("frame dropped")

// Host is the control core: its state machine plus the client calls that
// send requests to the compute core and wait for the replies.
type Host struct {
	*Core

	link    *Endpoint
	shared  *Shared
	done    chan struct{}
	results chan uint32
	serving chan struct{}
	err     error
}

// NewHost creates the control core.
func NewHost(
	name string,
	link *Endpoint,
	shared *Shared,
	logger *log.Logger,
) *Host {
	h := &Host{
		link:    link,
		shared:  shared,
		done:    make(chan struct{}, 1),
		results: make(chan uint32, 1),
		serving: make(chan struct{}),
	}

	actions := map[Action]ActionFunc{
		ActNoOp: func(context.Context, Message) error { return nil },
		ActRecord: func(ctx context.Context, _ Message) error {
			return deliver(ctx, h.done, struct{}{})
		},
		ActDeliver: func(ctx context.Context, msg Message) error {
			return deliver(ctx, h.results, msg.Payload)
		},
	}

	h.Core = NewCore(name, ControlTable(), actions, link, logger)

	return h
}

func deliver[T any](ctx context.Context, ch chan T, v T) error {
	select {
	case ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve runs the control core's dispatcher. The client calls fail once it
// has returned.
func (h *Host) Serve(ctx context.Context) error {
	h.err = h.Core.Serve(ctx)
	close(h.serving)

	return h.err
}

func (h *Host) stopped() error {
	if h.err != nil {
		return h.err
	}

	return errors.New("control core is not serving")
}

// send waits until both cores have passed the barrier and queues msg.
func (h *Host) send(ctx context.Context, msg Message) error {
	err := h.link.Barrier(ctx)
	if err != nil {
		return err
	}

	return h.link.Send(ctx, msg)
}

// ApplyConfig writes the blob into shared memory, asks the compute core to
// apply it, and waits for the confirmation. It may be called before Serve;
// the request is held until both cores are up.
func (h *Host) ApplyConfig(ctx context.Context, blob []byte) error {
	err := h.link.Barrier(ctx)
	if err != nil {
		return err
	}

	h.shared.PutConfig(blob)
	h.shared.inFlight.Add(1)

	err = h.link.Send(ctx, Message{Event: ApplyConfig})
	if err != nil {
		h.shared.inFlight.Add(-1)
		return err
	}

	select {
	case <-h.done:
		return nil
	case <-h.serving:
		return h.stopped()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute announces a radar cube and waits for its result.
func (h *Host) Execute(ctx context.Context) (*SlotResult, error) {
	err := h.send(ctx, Message{Event: CubeReady})
	if err != nil {
		return nil, err
	}

	select {
	case token := <-h.results:
		if token == NoResult {
			return nil, ErrDropped
		}

		return h.shared.Load(token)
	case <-h.serving:
		return nil, h.stopped()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop returns both cores to Idle.
func (h *Host) Stop(ctx context.Context) error {
	err := h.Dispatch(ctx, Message{Event: Stop})
	if err != nil {
		return fmt.Errorf("local stop: %w", err)
	}

	return h.send(ctx, Message{Event: Stop})
}
