package executor

// SoftwareExecutorOption is a functional option applied to a software
// executor during construction via NewSoftwareExecutor.
type SoftwareExecutorOption func(*softwareExecutor)

// WithAsyncComputeSupport overrides whether the software executor reports an
// asynchronous compute timeline with fence support. Used to simulate
// platforms without async compute.
//
// Parameters:
//   - supported: true to report async compute as available
//
// Returns:
//   - SoftwareExecutorOption: a function that applies the option
func WithAsyncComputeSupport(supported bool) SoftwareExecutorOption {
	return func(e *softwareExecutor) {
		e.caps.AsyncCompute = supported
	}
}

// WithComputeKernelSupport overrides whether the reconstruction compute
// kernel resource is reported as present. Used to simulate a missing kernel
// mid-session.
//
// Parameters:
//   - supported: true to report the kernel as present
//
// Returns:
//   - SoftwareExecutorOption: a function that applies the option
func WithComputeKernelSupport(supported bool) SoftwareExecutorOption {
	return func(e *softwareExecutor) {
		e.caps.ComputeKernels = supported
	}
}

// WithMultiTargetSupport overrides whether simultaneous multiple render
// targets are reported as supported. Gates the packed history encoding.
//
// Parameters:
//   - supported: true to report MRT as available
//
// Returns:
//   - SoftwareExecutorOption: a function that applies the option
func WithMultiTargetSupport(supported bool) SoftwareExecutorOption {
	return func(e *softwareExecutor) {
		e.caps.MultipleRenderTargets = supported
	}
}

// WithFormatSupport overrides support for a single texture format. Used to
// exercise the format fallback lists.
//
// Parameters:
//   - f: the format to override
//   - supported: true to report the format as supported
//
// Returns:
//   - SoftwareExecutorOption: a function that applies the option
func WithFormatSupport(f Format, supported bool) SoftwareExecutorOption {
	return func(e *softwareExecutor) {
		e.caps.Formats[f] = supported
	}
}

// WithWorkerCount sets the number of pool workers used for row-parallel pass
// execution. Defaults to NumCPU-1 (minimum 1).
//
// Parameters:
//   - workers: the worker count (values < 1 are clamped to 1)
//
// Returns:
//   - SoftwareExecutorOption: a function that applies the option
func WithWorkerCount(workers int) SoftwareExecutorOption {
	return func(e *softwareExecutor) {
		e.workers = max(workers, 1)
	}
}
