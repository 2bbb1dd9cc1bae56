package stage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sarchlab/radarctl/fault"
	"github.com/sarchlab/radarctl/hooking"
	"github.com/sarchlab/radarctl/hwport"
	"github.com/sarchlab/radarctl/pool"
)

// HookPosStall marks a stage waiting for its next output buffer to drain.
var HookPosStall = &hooking.HookPos{Name: "Stage Stall"}

// HookPosConfigured marks a stage that has taken all of its resources.
var HookPosConfigured = &hooking.HookPos{Name: "Stage Configured"}

// Resources are the hardware resources granted to a stage at configure time.
// They are never validated again at process time.
type Resources struct {
	DMAStart      int
	DMACount      int
	ParamSetStart int
	ParamSetCount int
	TriggerStart  int
	TriggerCount  int
	WindowOffset  uint32
	WindowLength  uint32
	Scratch       pool.Addr
	Outputs       [2]pool.Addr
	OutputArena   pool.ArenaKind
}

// Comp is the generic stage. What it allocates is derived from its kind;
// what it computes is delegated to its kernel.
type Comp struct {
	hooking.HookableBase

	name         string
	kind         Kind
	kernel       Kernel
	stallTimeout time.Duration
	port         hwport.Port

	lock        sync.Mutex
	initialized bool
	configured  bool
	armed       bool
	triggers    uint64
	dynamic     DynamicParams
	params      StaticParams
	res         Resources
	scratch     []byte
	outputs     *pingPong
}

// Name returns the name of the stage.
func (c *Comp) Name() string {
	return c.name
}

// Kind returns the kind of the stage.
func (c *Comp) Kind() Kind {
	return c.kind
}

// Init binds the stage to the hardware port.
func (c *Comp) Init(port hwport.Port) error {
	if port == nil {
		return fmt.Errorf("%s: hardware port is nil", c.name)
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	c.port = port
	c.initialized = true
	c.configured = false

	return nil
}

// Configure takes the resources the stage needs for a mode.
func (c *Comp) Configure(params StaticParams, pools *pool.Set) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.configured = false

	if !c.initialized {
		return fmt.Errorf("%s: configure before init", c.name)
	}

	req, err := RequirementFor(c.kind, params)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}

	res, err := c.allocate(req, pools)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}

	outArena := pools.Arena(req.OutputArena)
	c.outputs = newPingPong(
		outArena.Bytes(res.Outputs[0], req.OutputBytes),
		outArena.Bytes(res.Outputs[1], req.OutputBytes),
	)

	c.scratch = nil
	if req.ScratchBytes > 0 {
		c.scratch = pools.Arena(pool.FastScratch).
			Bytes(res.Scratch, req.ScratchBytes)
	}

	c.params = params
	c.res = res
	c.configured = true
	c.armed = true

	if c.NumHooks() > 0 {
		c.InvokeHook(hooking.HookCtx{
			Domain: c,
			Pos:    HookPosConfigured,
			Item:   res,
		})
	}

	return nil
}

func (c *Comp) allocate(req Requirement, pools *pool.Set) (Resources, error) {
	res := Resources{OutputArena: req.OutputArena}
	var err error

	res.DMAStart, res.DMACount, err =
		c.takeChannels(pools, pool.DMAChannel, req.DMAChannels)
	if err != nil {
		return res, err
	}

	res.ParamSetStart, res.ParamSetCount, err =
		c.takeChannels(pools, pool.ParamSet, req.ParamSets)
	if err != nil {
		return res, err
	}

	res.TriggerStart, res.TriggerCount, err =
		c.takeChannels(pools, pool.TriggerSource, req.TriggerSources)
	if err != nil {
		return res, err
	}

	if req.WindowElements > 0 {
		res.WindowOffset, err = pools.AllocWindow(req.WindowElements)
		if err != nil {
			return res, err
		}

		res.WindowLength = req.WindowElements
	}

	if req.ScratchBytes > 0 {
		res.Scratch, err = pools.AllocScratch(
			pool.FastScratch, req.ScratchBytes, scratchAlign)
		if err != nil {
			return res, err
		}
	}

	for i := range res.Outputs {
		res.Outputs[i], err = pools.AllocScratch(
			req.OutputArena, req.OutputBytes, bufferAlign)
		if err != nil {
			return res, err
		}
	}

	return res, nil
}

func (c *Comp) takeChannels(
	pools *pool.Set,
	class pool.ChannelClass,
	n int,
) (start, count int, err error) {
	if n == 0 {
		return 0, 0, nil
	}

	start, err = pools.AllocChannels(class, n)
	if err != nil {
		return 0, 0, err
	}

	for i := start; i < start+n; i++ {
		if err = c.port.AcquireChannel(class, i); err != nil {
			return 0, 0, err
		}
	}

	return start, n, nil
}

// Drain waits, up to the stall timeout, until every output the stage has
// handed out is released, then gives up the resources of the current mode.
// The pools the resources came from are reset by the caller afterwards.
func (c *Comp) Drain() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.outputs != nil && !c.outputs.drain(c.stallTimeout) {
		return fmt.Errorf("%s: output buffer not drained after %v",
			c.name, c.stallTimeout)
	}

	c.configured = false
	c.res = Resources{}
	c.scratch = nil
	c.outputs = nil

	return nil
}

// Resources returns the resources granted at the last successful configure.
func (c *Comp) Resources() Resources {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.res
}

// Configured tells if the stage holds the resources of a mode.
func (c *Comp) Configured() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.configured
}

// Armed tells if a source stage will accept the next frame.
func (c *Comp) Armed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.armed
}

// Triggers returns how many trigger commands the stage received.
func (c *Comp) Triggers() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.triggers
}

// Process runs the kernel on one frame.
func (c *Comp) Process(frame uint64, in *Output) (*Output, error) {
	c.lock.Lock()
	configured, armed := c.configured, c.armed
	params, dynamic := c.params, c.dynamic
	outputs := c.outputs
	c.lock.Unlock()

	if !configured {
		return nil, fmt.Errorf("%s: %w", c.name, fault.ErrNotConfigured)
	}

	if in == nil && !armed {
		return nil, c.processErr(frame, errors.New("source is not armed"))
	}

	if in == nil && c.kind != Range {
		return nil, c.processErr(frame, errors.New("missing input"))
	}

	s, err := c.acquireSlot(outputs)
	if err != nil {
		return nil, c.processErr(frame, err)
	}

	var inData []byte
	if in != nil {
		inData = in.Data
	}

	n, metrics, err := c.kernel.Compute(params, dynamic, inData, s.data)
	if err != nil {
		s.release()

		if in == nil {
			c.disarm()
		}

		return nil, c.processErr(frame, err)
	}

	if n < 0 || n > len(s.data) {
		s.release()
		return nil, c.processErr(frame,
			fmt.Errorf("kernel wrote %d bytes into a %d-byte buffer",
				n, len(s.data)))
	}

	return &Output{
		Stage:   c.name,
		Frame:   frame,
		Data:    s.data[:n],
		Metrics: metrics,
		slot:    s,
	}, nil
}

func (c *Comp) acquireSlot(outputs *pingPong) (*slot, error) {
	if s, ok := outputs.tryAcquire(); ok {
		return s, nil
	}

	if c.NumHooks() > 0 {
		c.InvokeHook(hooking.HookCtx{Domain: c, Pos: HookPosStall})
	}

	s, ok := outputs.acquire(c.stallTimeout)
	if !ok {
		return nil, fmt.Errorf("output buffer not drained after %v",
			c.stallTimeout)
	}

	return s, nil
}

func (c *Comp) disarm() {
	c.lock.Lock()
	c.armed = false
	c.lock.Unlock()
}

func (c *Comp) processErr(frame uint64, err error) error {
	return fmt.Errorf("%s frame %d: %v: %w",
		c.name, frame, err, fault.ErrStageProcess)
}

// Control applies an out-of-band command. It never touches the resources
// granted at configure time.
func (c *Comp) Control(cmd Command, payload any) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	switch cmd {
	case CmdTrigger:
		c.armed = true
		c.triggers++
	case CmdRearm:
		c.armed = true
		c.triggers++
		c.dynamic = DefaultDynamicParams()
	case CmdSetScale:
		scale, ok := payload.(float64)
		if !ok {
			return fmt.Errorf("%s: %s needs a float64 payload, got %T",
				c.name, cmd, payload)
		}

		c.dynamic.Scale = scale
	default:
		return fmt.Errorf("%s: unknown command %s", c.name, cmd)
	}

	return nil
}
