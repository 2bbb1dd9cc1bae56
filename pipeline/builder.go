package pipeline

import (
	"io"
	"log"

	"github.com/benbjohnson/clock"

	"github.com/sarchlab/radarctl/hwport"
	"github.com/sarchlab/radarctl/id"
	"github.com/sarchlab/radarctl/pool"
)

// A Builder can build pipeline controllers.
type Builder struct {
	pools  *pool.Set
	port   hwport.Port
	clock  clock.Clock
	logger *log.Logger
	ids    id.Generator
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		clock:  clock.New(),
		logger: log.New(io.Discard, "", 0),
		ids:    id.NewGenerator(),
	}
}

// WithPools sets the pools that the stages allocate from.
func (b Builder) WithPools(pools *pool.Set) Builder {
	b.pools = pools
	return b
}

// WithPort sets the hardware port handed to the stages at init.
func (b Builder) WithPort(port hwport.Port) Builder {
	b.port = port
	return b
}

// WithClock sets the time source used to time the stages.
func (b Builder) WithClock(clk clock.Clock) Builder {
	b.clock = clk
	return b
}

// WithLogger sets the logger that receives fatal frame conditions.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// WithIDGenerator sets the generator of trace task IDs.
func (b Builder) WithIDGenerator(ids id.Generator) Builder {
	b.ids = ids
	return b
}

// Build creates a controller in the Unconfigured state.
func (b Builder) Build(name string) *Controller {
	if b.pools == nil {
		panic("pipeline needs pools")
	}

	if b.port == nil {
		panic("pipeline needs a hardware port")
	}

	return &Controller{
		name:        name,
		pools:       b.pools,
		port:        b.port,
		clock:       b.clock,
		logger:      b.logger,
		ids:         b.ids,
		modes:       make(map[string]*Mode),
		initialized: make(map[string]bool),
	}
}
