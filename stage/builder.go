package stage

import "time"

// A Builder can build stages.
type Builder struct {
	kind         Kind
	kernel       Kernel
	stallTimeout time.Duration
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		kind:         Range,
		kernel:       PassthroughKernel{},
		stallTimeout: 100 * time.Millisecond,
	}
}

// WithKind sets the kind of processing of the stage.
func (b Builder) WithKind(kind Kind) Builder {
	b.kind = kind
	return b
}

// WithKernel sets the numeric collaborator of the stage.
func (b Builder) WithKernel(k Kernel) Builder {
	b.kernel = k
	return b
}

// WithStallTimeout sets how long the stage waits for its next output buffer
// to be drained before giving up on the frame.
func (b Builder) WithStallTimeout(d time.Duration) Builder {
	b.stallTimeout = d
	return b
}

// Build creates a stage.
func (b Builder) Build(name string) *Comp {
	if name == "" {
		panic("stage name must not be empty")
	}

	return &Comp{
		name:         name,
		kind:         b.kind,
		kernel:       b.kernel,
		stallTimeout: b.stallTimeout,
		dynamic:      DefaultDynamicParams(),
	}
}
