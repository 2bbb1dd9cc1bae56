package protocol

import (
	"errors"
	"fmt"
)

// Action names what a transition does. Cores bind names to functions.
type Action string

// The actions.
const (
	ActNoOp        Action = "no_op"
	ActApplyConfig Action = "apply_config"
	ActExecuteOnce Action = "execute_once"
	ActStop        Action = "stop"
	ActRecord      Action = "record"
	ActDeliver     Action = "deliver"
)

// Transition is one cell of a table. A rejecting cell leaves the state
// unchanged and raises a protocol error.
type Transition struct {
	Action Action
	Next   State
	Reject bool
}

// Key addresses one cell of a table.
type Key struct {
	State State
	Event Event
}

// Table maps every (state, event) pair to a transition.
type Table map[Key]Transition

func to(action Action, next State) Transition {
	return Transition{Action: action, Next: next}
}

var reject = Transition{Reject: true}

// ComputeTable returns the table of the compute core.
func ComputeTable() Table {
	return Table{
		{Idle, ApplyConfig}:  to(ActApplyConfig, Ready),
		{Idle, CubeReady}:    reject,
		{Idle, Stop}:         to(ActNoOp, Idle),
		{Idle, ConfigDone}:   reject,
		{Idle, ResultReady}:  reject,
		{Ready, ApplyConfig}: to(ActApplyConfig, Ready),
		{Ready, CubeReady}:   to(ActExecuteOnce, Ready),
		{Ready, Stop}:        to(ActStop, Idle),
		{Ready, ConfigDone}:  reject,
		{Ready, ResultReady}: reject,
	}
}

// ControlTable returns the table of the control core.
func ControlTable() Table {
	return Table{
		{Idle, ApplyConfig}:  reject,
		{Idle, CubeReady}:    reject,
		{Idle, Stop}:         to(ActNoOp, Idle),
		{Idle, ConfigDone}:   to(ActRecord, Ready),
		{Idle, ResultReady}:  reject,
		{Ready, ApplyConfig}: reject,
		{Ready, CubeReady}:   reject,
		{Ready, Stop}:        to(ActNoOp, Idle),
		{Ready, ConfigDone}:  to(ActRecord, Ready),
		{Ready, ResultReady}: to(ActDeliver, Ready),
	}
}

// Validate checks that every (state, event) pair has a cell and that every
// cell leads to a known state.
func (t Table) Validate() error {
	var errs []error

	for s := State(0); s < numStates; s++ {
		for e := Event(0); e < numEvents; e++ {
			tr, ok := t[Key{s, e}]
			if !ok {
				errs = append(errs, fmt.Errorf("no transition for (%s, %s)", s, e))
				continue
			}

			if tr.Reject {
				continue
			}

			if tr.Next < 0 || tr.Next >= numStates {
				errs = append(errs,
					fmt.Errorf("(%s, %s) leads to %s", s, e, tr.Next))
			}

			if tr.Action == "" {
				errs = append(errs, fmt.Errorf("(%s, %s) has no action", s, e))
			}
		}
	}

	return errors.Join(errs...)
}

// Actions returns every action the table uses.
func (t Table) Actions() []Action {
	seen := make(map[Action]bool)

	var actions []Action

	for s := State(0); s < numStates; s++ {
		for e := Event(0); e < numEvents; e++ {
			tr := t[Key{s, e}]
			if tr.Reject || tr.Action == "" || seen[tr.Action] {
				continue
			}

			seen[tr.Action] = true
			actions = append(actions, tr.Action)
		}
	}

	return actions
}
