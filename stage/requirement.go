package stage

import (
	"fmt"

	"github.com/sarchlab/radarctl/pool"
)

const (
	bufferAlign  = 64
	scratchAlign = 16
)

// Requirement lists the hardware resources a stage takes at configure time.
type Requirement struct {
	DMAChannels    int
	ParamSets      int
	TriggerSources int
	WindowElements uint32
	ScratchBytes   uint64
	OutputBytes    uint64
	OutputArena    pool.ArenaKind
}

// RequirementFor computes what a stage of the given kind needs for a mode.
func RequirementFor(kind Kind, p StaticParams) (Requirement, error) {
	if err := validateParams(kind, p); err != nil {
		return Requirement{}, err
	}

	switch kind {
	case Range:
		return Requirement{
			DMAChannels:    2,
			ParamSets:      4,
			TriggerSources: 1,
			WindowElements: uint32(p.NumRangeBins / 2),
			ScratchBytes:   uint64(p.NumRangeBins) * 4,
			OutputBytes:    uint64(p.NumRangeBins*p.NumVirtualAntennas) * 4,
			OutputArena:    pool.LargeScratch,
		}, nil
	case Doppler:
		return Requirement{
			DMAChannels:    2,
			ParamSets:      4,
			WindowElements: uint32(p.NumDopplerBins / 2),
			ScratchBytes:   uint64(p.NumDopplerBins) * 4,
			OutputBytes:    uint64(p.NumRangeBins*p.NumDopplerBins) * 2,
			OutputArena:    pool.LargeScratch,
		}, nil
	case Detection:
		return Requirement{
			DMAChannels:  1,
			ParamSets:    2,
			ScratchBytes: uint64(p.NumRangeBins) * 2,
			OutputBytes:  uint64(p.MaxObjects) * 8,
			OutputArena:  pool.FastScratch,
		}, nil
	case AngleEstimate:
		return Requirement{
			DMAChannels:    1,
			ParamSets:      2,
			WindowElements: uint32(p.NumVirtualAntennas * 2),
			ScratchBytes:   uint64(p.NumVirtualAntennas) * 8,
			OutputBytes:    uint64(p.MaxObjects) * 16,
			OutputArena:    pool.FastScratch,
		}, nil
	case Classify:
		return Requirement{
			ScratchBytes: uint64(p.MaxObjects) * 32,
			OutputBytes:  uint64(p.MaxObjects) * 4,
			OutputArena:  pool.FastScratch,
		}, nil
	default:
		return Requirement{}, fmt.Errorf("unknown stage kind %d", int(kind))
	}
}

func validateParams(kind Kind, p StaticParams) error {
	need := func(name string, v int) error {
		if v <= 0 {
			return fmt.Errorf("%s stage needs %s > 0", kind, name)
		}

		return nil
	}

	var checks []error

	switch kind {
	case Range:
		checks = append(checks,
			need("num_range_bins", p.NumRangeBins),
			need("num_virtual_antennas", p.NumVirtualAntennas))
	case Doppler:
		checks = append(checks,
			need("num_range_bins", p.NumRangeBins),
			need("num_doppler_bins", p.NumDopplerBins))
	case Detection:
		checks = append(checks,
			need("num_range_bins", p.NumRangeBins),
			need("max_objects", p.MaxObjects))
	case AngleEstimate:
		checks = append(checks,
			need("num_virtual_antennas", p.NumVirtualAntennas),
			need("max_objects", p.MaxObjects))
	case Classify:
		checks = append(checks, need("max_objects", p.MaxObjects))
	}

	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	return nil
}
