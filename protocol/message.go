// Package protocol sequences configuration and execution between the control
// core and the compute core.
//
// Each core runs a small state machine. Its transition table is pure data;
// one generic dispatcher looks up and invokes the cell for every inbound
// message.
package protocol

import "fmt"

// State is the protocol state of one core.
type State int

// The protocol states.
const (
	Idle State = iota
	Ready
	numStates
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Ready:
		return "Ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event identifies a message.
type Event uint32

// The events. ApplyConfig, CubeReady, and Stop travel from the control core
// to the compute core; ConfigDone and ResultReady are the replies.
const (
	ApplyConfig Event = iota
	CubeReady
	Stop
	ConfigDone
	ResultReady
	numEvents
)

var eventNames = [numEvents]string{
	"ApplyConfig", "CubeReady", "Stop", "ConfigDone", "ResultReady",
}

func (e Event) String() string {
	if e < numEvents {
		return eventNames[e]
	}

	return fmt.Sprintf("Event(%d)", uint32(e))
}

// Valid reports whether e is a known event.
func (e Event) Valid() bool {
	return e < numEvents
}

// NoResult is the ResultReady payload of a dropped frame.
const NoResult = ^uint32(0)

// Message is what crosses the link: an event and one payload word.
type Message struct {
	Event   Event
	Payload uint32
}

func (m Message) String() string {
	return fmt.Sprintf("%s(%#x)", m.Event, m.Payload)
}
