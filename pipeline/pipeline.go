// Package pipeline drives the stages of the active processing mode through
// one frame at a time.
package pipeline

import (
	"fmt"
	"time"

	"github.com/sarchlab/radarctl/hooking"
	"github.com/sarchlab/radarctl/stage"
)

// State is the state of a Controller. There is no running sub-state: a frame
// either completes inside RunOneFrame or it is dropped.
type State int

// The controller states.
const (
	Unconfigured State = iota
	Configured
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "Unconfigured"
	case Configured:
		return "Configured"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// A Mode is a named, ordered list of stages.
type Mode struct {
	Name   string
	Stages []stage.Stage
}

// StageTiming is how long one stage took on one frame.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
}

// Result is the record of one completed frame. Output is the last stage's
// output; whoever consumes the result must call Release so that the last
// stage can reuse the buffer.
type Result struct {
	Frame    uint64                   `json:"frame"`
	Mode     string                   `json:"mode"`
	Start    time.Time                `json:"start"`
	Duration time.Duration            `json:"duration"`
	Timing   []StageTiming            `json:"timing"`
	Metrics  map[string]stage.Metrics `json:"metrics"`
	Output   *stage.Output            `json:"-"`
}

// Release hands the last stage's buffer back.
func (r *Result) Release() {
	if r == nil {
		return
	}

	r.Output.Release()
}

// Stats are the counters of a Controller.
type Stats struct {
	Frames  uint64 `json:"frames"`
	Dropped uint64 `json:"dropped"`
	Configs uint64 `json:"configs"`
}

// Hook positions of the controller.
var (
	// HookPosConfigured fires after a successful ConfigureAll. The item is
	// the mode name.
	HookPosConfigured = &hooking.HookPos{Name: "Pipeline Configured"}

	// HookPosConfigFailed fires when ConfigureAll fails. The item is the
	// error.
	HookPosConfigFailed = &hooking.HookPos{Name: "Pipeline Config Failed"}

	// HookPosFrameDone fires after a frame completes. The item is the
	// *Result.
	HookPosFrameDone = &hooking.HookPos{Name: "Pipeline Frame Done"}

	// HookPosFrameDrop fires when a stage fails and the frame is dropped.
	// The item is the frame number and the detail is the error.
	HookPosFrameDrop = &hooking.HookPos{Name: "Pipeline Frame Drop"}
)
