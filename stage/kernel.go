package stage

import "errors"

// Kernel is the numeric collaborator of a stage. It turns the previous
// stage's output into this stage's output. The output buffer is owned by the
// stage; the kernel writes at most len(out) bytes and returns how many it
// wrote.
type Kernel interface {
	Compute(
		static StaticParams,
		dynamic DynamicParams,
		in, out []byte,
	) (n int, m Metrics, err error)
}

// KernelFunc adapts a function to the Kernel interface.
type KernelFunc func(
	static StaticParams,
	dynamic DynamicParams,
	in, out []byte,
) (int, Metrics, error)

// Compute calls f.
func (f KernelFunc) Compute(
	static StaticParams,
	dynamic DynamicParams,
	in, out []byte,
) (int, Metrics, error) {
	return f(static, dynamic, in, out)
}

// PassthroughKernel stands in for a hardware-accelerated kernel. A source
// stage gets a ramp pattern; other stages copy their input, scaled.
type PassthroughKernel struct{}

// Compute fills out.
func (PassthroughKernel) Compute(
	_ StaticParams,
	dynamic DynamicParams,
	in, out []byte,
) (int, Metrics, error) {
	if len(out) == 0 {
		return 0, Metrics{"bytes": 0}, nil
	}

	scale := dynamic.Scale
	if scale == 0 {
		scale = 1
	}

	if in == nil {
		for i := range out {
			out[i] = byte(float64(i) * scale)
		}

		return len(out), Metrics{"bytes": float64(len(out))}, nil
	}

	if len(in) == 0 {
		return 0, nil, errors.New("empty input")
	}

	for i := range out {
		out[i] = byte(float64(in[i%len(in)]) * scale)
	}

	return len(out), Metrics{"bytes": float64(len(out))}, nil
}
