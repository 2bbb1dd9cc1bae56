// Package stage defines the unit of per-frame radar processing and a generic,
// data-driven implementation of it.
//
// A stage goes through init (software state only), configure (allocates all of
// its hardware resources from the pools, once per mode change), process (once
// per frame, never allocates), and control (out-of-band commands that never
// touch the resources granted at configure time).
package stage

import (
	"fmt"
	"strings"

	"github.com/sarchlab/radarctl/hooking"
	"github.com/sarchlab/radarctl/hwport"
	"github.com/sarchlab/radarctl/pool"
)

// Kind is the kind of processing a stage performs.
type Kind int

// The stage kinds.
const (
	Range Kind = iota
	Doppler
	Detection
	AngleEstimate
	Classify
)

var kindNames = map[Kind]string{
	Range:         "range",
	Doppler:       "doppler",
	Detection:     "detection",
	AngleEstimate: "angle",
	Classify:      "classify",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind-%d", int(k))
}

// ParseKind converts a kind name, as used in configuration files, to a Kind.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}

	return 0, fmt.Errorf("unknown stage kind %q", name)
}

// StaticParams are the parameters fixed for the lifetime of a mode.
type StaticParams struct {
	NumRangeBins       int `json:"num_range_bins" mapstructure:"num_range_bins"`
	NumDopplerBins     int `json:"num_doppler_bins" mapstructure:"num_doppler_bins"`
	NumVirtualAntennas int `json:"num_virtual_antennas" mapstructure:"num_virtual_antennas"`
	MaxObjects         int `json:"max_objects" mapstructure:"max_objects"`
}

// DynamicParams can change between frames through Control.
type DynamicParams struct {
	Scale float64
}

// DefaultDynamicParams returns the dynamic parameters a stage starts with.
func DefaultDynamicParams() DynamicParams {
	return DynamicParams{Scale: 1}
}

// Command is an out-of-band request sent to a stage.
type Command int

// The commands understood by stages.
const (
	// CmdTrigger arms the stage for the next frame.
	CmdTrigger Command = iota

	// CmdRearm arms the stage and restores its default dynamic parameters.
	CmdRearm

	// CmdSetScale changes the output scale. The payload is a float64.
	CmdSetScale
)

func (c Command) String() string {
	switch c {
	case CmdTrigger:
		return "trigger"
	case CmdRearm:
		return "rearm"
	case CmdSetScale:
		return "set-scale"
	default:
		return fmt.Sprintf("command-%d", int(c))
	}
}

// Metrics are the numbers a kernel reports about one frame.
type Metrics map[string]float64

// Stage is one unit of the fixed per-frame processing sequence.
type Stage interface {
	hooking.Named

	// Kind returns the kind of processing of the stage.
	Kind() Kind

	// Init prepares software state. It must not take hardware resources.
	Init(port hwport.Port) error

	// Configure takes every hardware resource the stage needs for a mode.
	// The pools must have been reset by the caller.
	Configure(params StaticParams, pools *pool.Set) error

	// Process runs the stage on one frame. The first stage of a chain
	// receives a nil input.
	Process(frame uint64, in *Output) (*Output, error)

	// Control applies an out-of-band command.
	Control(cmd Command, payload any) error
}
