package protocol

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/sarchlab/radarctl/fault"
	"github.com/sarchlab/radarctl/hooking"
)

// ActionFunc performs the work of a transition.
type ActionFunc func(ctx context.Context, msg Message) error

// Hook positions of a core.
var (
	// HookPosTransition fires after a transition. The item is the message
	// and the detail is the Transition.
	HookPosTransition = &hooking.HookPos{Name: "Protocol Transition"}

	// HookPosReject fires when a message is not valid in the current state.
	HookPosReject = &hooking.HookPos{Name: "Protocol Reject"}
)

// CoreStats are the counters of a core.
type CoreStats struct {
	State      string `json:"state"`
	Dispatched uint64 `json:"dispatched"`
	Rejected   uint64 `json:"rejected"`
}

// Core is the state machine of one core. Dispatch calls are serialized.
type Core struct {
	hooking.HookableBase

	name    string
	table   Table
	actions map[Action]ActionFunc
	link    *Endpoint
	logger  *log.Logger

	mu         sync.Mutex
	state      State
	dispatched uint64
	rejected   uint64
}

// NewCore creates a core in the Idle state. It panics if the table is not
// total or uses an action that is not bound.
func NewCore(
	name string,
	table Table,
	actions map[Action]ActionFunc,
	link *Endpoint,
	logger *log.Logger,
) *Core {
	err := table.Validate()
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	for _, a := range table.Actions() {
		if actions[a] == nil {
			panic(fmt.Sprintf("%s: action %s is not bound", name, a))
		}
	}

	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Core{
		name:    name,
		table:   table,
		actions: actions,
		link:    link,
		logger:  logger,
	}
}

// Name returns the name of the core.
func (c *Core) Name() string {
	return c.name
}

// State returns the current state.
func (c *Core) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Stats returns the counters of the core.
func (c *Core) Stats() CoreStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CoreStats{
		State:      c.state.String(),
		Dispatched: c.dispatched,
		Rejected:   c.rejected,
	}
}

// ResetToIdle puts the core back to Idle without running any action.
func (c *Core) ResetToIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = Idle
}

// Dispatch looks up the cell for the current state and the message's event
// and runs its action. An unknown event or a rejecting cell returns an error
// wrapping fault.ErrProtocol and leaves the state unchanged, as does a
// failing action.
func (c *Core) Dispatch(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !msg.Event.Valid() {
		return fmt.Errorf("%s: unknown event %d: %w",
			c.name, uint32(msg.Event), fault.ErrProtocol)
	}

	tr := c.table[Key{c.state, msg.Event}]
	if tr.Reject {
		c.rejected++

		if c.NumHooks() > 0 {
			c.InvokeHook(hooking.HookCtx{
				Domain: c,
				Pos:    HookPosReject,
				Item:   msg,
				Detail: c.state,
			})
		}

		return fmt.Errorf("%s: %s not valid in %s: %w",
			c.name, msg.Event, c.state, fault.ErrProtocol)
	}

	err := c.actions[tr.Action](ctx, msg)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", c.name, tr.Action, err)
	}

	c.state = tr.Next
	c.dispatched++

	if c.NumHooks() > 0 {
		c.InvokeHook(hooking.HookCtx{
			Domain: c,
			Pos:    HookPosTransition,
			Item:   msg,
			Detail: tr,
		})
	}

	return nil
}

// Serve passes the barrier and then dispatches inbound messages until ctx is
// done or a dispatch fails. Every dispatch error is fatal for the session.
func (c *Core) Serve(ctx context.Context) error {
	err := c.link.Barrier(ctx)
	if err != nil {
		return nil
	}

	for {
		msg, err := c.link.Recv(ctx)
		if err != nil {
			return nil
		}

		err = c.Dispatch(ctx, msg)
		if err != nil {
			c.logger.Printf("FATAL: %v", err)
			return err
		}
	}
}

func (c *Core) reply(ctx context.Context, event Event, payload uint32) error {
	return c.link.Send(ctx, Message{Event: event, Payload: payload})
}
