package motionblur

import (
	"github.com/Carmen-Shannon/oxy-blur/common"
	"github.com/Carmen-Shannon/oxy-blur/engine/profiler"
)

// DualPathSchedulerOption is a functional option applied to a scheduler
// during construction via NewDualPathScheduler.
type DualPathSchedulerOption func(*dualPathSchedulerImpl)

// WithShutterAngle sets the simulated shutter angle in degrees, clamped to
// [0, 360]. Zero disables the blur. Defaults to 270.
//
// Parameters:
//   - degrees: the shutter angle
//
// Returns:
//   - DualPathSchedulerOption: a function that applies the option
func WithShutterAngle(degrees float32) DualPathSchedulerOption {
	return func(s *dualPathSchedulerImpl) {
		s.shutterAngle = common.Clamp(degrees, 0, 360)
	}
}

// WithSampleCount sets the requested reconstruction sample count, clamped to
// [2, 64] at use. Defaults to 32.
//
// Parameters:
//   - samples: the sample count
//
// Returns:
//   - DualPathSchedulerOption: a function that applies the option
func WithSampleCount(samples int) DualPathSchedulerOption {
	return func(s *dualPathSchedulerImpl) {
		s.sampleCount = samples
	}
}

// WithFrameBlending sets the history blend strength, clamped to [0, 1].
// Zero (the default) disables temporal blending.
//
// Parameters:
//   - strength: the blend strength
//
// Returns:
//   - DualPathSchedulerOption: a function that applies the option
func WithFrameBlending(strength float32) DualPathSchedulerOption {
	return func(s *dualPathSchedulerImpl) {
		s.blendStrength = common.Clamp(strength, 0, 1)
	}
}

// WithAsyncCompute requests the asynchronous compute path. The backend's
// capability set still gates it per frame. Off by default.
//
// Parameters:
//   - enabled: true to request the async path
//
// Returns:
//   - DualPathSchedulerOption: a function that applies the option
func WithAsyncCompute(enabled bool) DualPathSchedulerOption {
	return func(s *dualPathSchedulerImpl) {
		s.useAsync = enabled
	}
}

// WithFilterCameraMotion enables removal of camera-induced displacement from
// the motion vectors, leaving only object motion to blur. Off by default.
//
// Parameters:
//   - enabled: true to subtract camera motion
//
// Returns:
//   - DualPathSchedulerOption: a function that applies the option
func WithFilterCameraMotion(enabled bool) DualPathSchedulerOption {
	return func(s *dualPathSchedulerImpl) {
		s.filterCameraMotion = enabled
	}
}

// WithProfiler attaches a profiler that is ticked once per processed frame
// with the path taken and the CPU encode time.
//
// Parameters:
//   - prof: the profiler to tick
//
// Returns:
//   - DualPathSchedulerOption: a function that applies the option
func WithProfiler(prof *profiler.Profiler) DualPathSchedulerOption {
	return func(s *dualPathSchedulerImpl) {
		s.prof = prof
	}
}
