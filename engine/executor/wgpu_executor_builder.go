package executor

// WGPUExecutorOption is a functional option applied to a WebGPU executor
// during construction via NewWGPUExecutor.
type WGPUExecutorOption func(*wgpuExecutorImpl)

// WithAsyncCompute enables reporting of the asynchronous compute timeline.
// WebGPU exposes a single queue, so the two timelines serialize at submission
// rather than overlapping on hardware; the scheduling structure is still
// exercised end to end. Off by default.
//
// Parameters:
//   - enabled: true to report async compute as available
//
// Returns:
//   - WGPUExecutorOption: a function that applies the option
func WithAsyncCompute(enabled bool) WGPUExecutorOption {
	return func(e *wgpuExecutorImpl) {
		e.asyncCompute = enabled
	}
}

// WithForceFallbackAdapter forces selection of the fallback (software)
// adapter, useful on machines without a capable GPU.
//
// Parameters:
//   - force: true to force the fallback adapter
//
// Returns:
//   - WGPUExecutorOption: a function that applies the option
func WithForceFallbackAdapter(force bool) WGPUExecutorOption {
	return func(e *wgpuExecutorImpl) {
		e.forceFallbackAdapter = force
	}
}
