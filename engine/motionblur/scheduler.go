package motionblur

import (
	"fmt"
	"log"
	"time"

	"github.com/Carmen-Shannon/oxy-blur/common"
	"github.com/Carmen-Shannon/oxy-blur/engine/executor"
	"github.com/Carmen-Shannon/oxy-blur/engine/profiler"
)

// Path identifies which scheduling path produced a frame.
type Path int

const (
	// PathBypass means the frame was copied through unblurred: the shutter was
	// closed, the blur radius was degenerate, or a prerequisite failed.
	PathBypass Path = iota
	// PathInline means the full cascade ran on the graphics timeline with
	// transient buffers.
	PathInline
	// PathAsync means the motion stages ran on graphics and the reconstruction
	// kernel on the compute timeline, joined by fences.
	PathAsync
)

// String returns the path name used by the profiler and logs.
func (p Path) String() string {
	switch p {
	case PathBypass:
		return "bypass"
	case PathInline:
		return "inline"
	case PathAsync:
		return "async"
	default:
		return "unknown"
	}
}

// colorFormats is the preference-ordered fallback list for intermediate color
// buffers.
var colorFormats = []executor.Format{
	executor.FormatRGBAHalf,
	executor.FormatRGBA8,
}

// DualPathScheduler drives the motion blur pipeline once per displayed frame,
// choosing between the inline and asynchronous compute paths each frame.
// Every frame produces a displayable result in dest: any failure along the
// way degrades to a pass-through copy, never to a missing frame.
type DualPathScheduler interface {
	// Open acquires the filter and marks the scheduler ready. Resolution-
	// dependent buffers are acquired lazily on the first frame and reacquired
	// whenever the frame resolution changes.
	//
	// Returns:
	//   - error: an error if no intermediate color format is available
	Open() error

	// ProcessFrame runs the pipeline for one frame, writing the result to
	// dest. Must be called between Open and Close, once per displayed frame.
	//
	// Parameters:
	//   - frame: the frame input
	//   - dest: the output color texture, sized to the frame
	//
	// Returns:
	//   - Path: which scheduling path produced the frame
	ProcessFrame(frame FrameInput, dest executor.Texture) Path

	// Close drains outstanding GPU work and releases all persistent buffers
	// and history frames. The scheduler can be reopened afterwards.
	Close()

	// SetShutterAngle sets the shutter angle in degrees, clamped to [0, 360].
	//
	// Parameters:
	//   - degrees: the shutter angle
	SetShutterAngle(degrees float32)

	// SetSampleCount sets the requested reconstruction sample count.
	//
	// Parameters:
	//   - samples: the sample count (clamped to [2, 64] at use)
	SetSampleCount(samples int)

	// SetFrameBlending sets the history blend strength, clamped to [0, 1].
	// Zero disables temporal blending.
	//
	// Parameters:
	//   - strength: the blend strength
	SetFrameBlending(strength float32)

	// SetAsyncCompute enables or disables use of the compute timeline. Takes
	// effect on the next frame; the backend capability still gates it.
	//
	// Parameters:
	//   - enabled: true to request the async path
	SetAsyncCompute(enabled bool)

	// SetFilterCameraMotion toggles removal of camera-induced motion from the
	// blur vectors.
	//
	// Parameters:
	//   - enabled: true to subtract camera motion
	SetFilterCameraMotion(enabled bool)
}

// asyncState holds the persistent buffers of the async compute path, sized to
// the current frame resolution.
type asyncState struct {
	width, height int

	sourceCopy  executor.Texture
	result      executor.Texture
	velocity    executor.Texture
	neighborMax executor.Texture
}

type dualPathSchedulerImpl struct {
	ex   executor.Executor
	prof *profiler.Profiler

	shutterAngle       float32
	sampleCount        int
	blendStrength      float32
	useAsync           bool
	filterCameraMotion bool

	opened           bool
	filter           MotionReconstructionFilter
	compositor       FrameBlendCompositor
	compositorWidth  int
	compositorHeight int
	colorFormat      executor.Format
	async            *asyncState
}

var _ DualPathScheduler = &dualPathSchedulerImpl{}

// NewDualPathScheduler creates a scheduler bound to an executor. Defaults:
// shutter angle 270, 32 samples, blending off, async compute off, camera
// motion kept.
//
// Parameters:
//   - ex: the executor to drive (must not be nil)
//   - options: variadic list of DualPathSchedulerOption functions
//
// Returns:
//   - DualPathScheduler: the newly created scheduler
func NewDualPathScheduler(ex executor.Executor, options ...DualPathSchedulerOption) DualPathScheduler {
	if ex == nil {
		panic("motionblur: executor is required to create a scheduler")
	}
	s := &dualPathSchedulerImpl{
		ex:           ex,
		shutterAngle: 270,
		sampleCount:  32,
	}

	for _, option := range options {
		option(s)
	}

	return s
}

func (s *dualPathSchedulerImpl) Open() error {
	if s.opened {
		return nil
	}

	caps := s.ex.Capabilities()
	s.colorFormat = executor.FormatUnknown
	for _, candidate := range colorFormats {
		if caps.Supports(candidate) {
			s.colorFormat = candidate
			break
		}
	}
	if s.colorFormat == executor.FormatUnknown {
		return fmt.Errorf("no intermediate color format supported by executor")
	}

	s.filter = NewMotionReconstructionFilter(s.ex)
	s.opened = true
	return nil
}

func (s *dualPathSchedulerImpl) Close() {
	if !s.opened {
		return
	}
	s.ex.Flush()

	s.releaseAsync()
	if s.compositor != nil {
		s.compositor.Release()
		s.compositor = nil
	}
	s.filter = nil
	s.opened = false
}

func (s *dualPathSchedulerImpl) ProcessFrame(frame FrameInput, dest executor.Texture) Path {
	start := time.Now()
	path := s.processFrame(frame, dest)
	if s.prof != nil {
		s.prof.Tick(path.String(), time.Since(start))
	}
	return path
}

func (s *dualPathSchedulerImpl) processFrame(frame FrameInput, dest executor.Texture) Path {
	p := Params{
		ShutterAngle:       s.shutterAngle,
		SampleCount:        s.sampleCount,
		FilterCameraMotion: s.filterCameraMotion,
	}

	if !s.opened || s.shutterAngle <= 0 || MaxBlurPixels(frame.Height) == 0 || !s.filter.Ready() {
		s.passthrough(frame, dest)
		return PathBypass
	}

	caps := s.ex.Capabilities()
	if s.useAsync && caps.AsyncCompute && caps.ComputeKernels {
		if err := s.ensureAsyncState(frame.Width, frame.Height); err != nil {
			log.Printf("[MotionBlur] async buffers unavailable, falling back inline: %v", err)
		} else if s.processAsync(frame, p, dest) {
			return PathAsync
		}
	}

	if s.processInline(frame, p, dest) {
		return PathInline
	}
	s.passthrough(frame, dest)
	return PathBypass
}

// passthrough copies the source to dest unchanged. The degradation path of
// every failure: a frame never fails to produce output.
func (s *dualPathSchedulerImpl) passthrough(frame FrameInput, dest executor.Texture) {
	s.ex.RunPass(executor.TimelineGraphics, executor.PassCopy, executor.PassConstants{
		ScreenWidth:  frame.Width,
		ScreenHeight: frame.Height,
		Time:         frame.Time,
	}, []executor.Texture{frame.Source}, []executor.Texture{dest})
}

func (s *dualPathSchedulerImpl) processInline(frame FrameInput, p Params, dest executor.Texture) bool {
	gfx := executor.TimelineGraphics

	blend := s.ensureCompositor(frame.Width, frame.Height)
	if !blend {
		if err := s.filter.Process(gfx, frame, p, dest); err != nil {
			log.Printf("[MotionBlur] inline frame degraded to copy: %v", err)
			return false
		}
		return true
	}

	work, err := s.ex.CreateTexture(executor.TextureDesc{
		Label:  "mb_work",
		Width:  frame.Width,
		Height: frame.Height,
		Format: s.colorFormat,
	})
	if err != nil {
		log.Printf("[MotionBlur] inline frame degraded to copy: %v", err)
		return false
	}
	defer s.ex.ReleaseTexture(work)

	if err := s.filter.Process(gfx, frame, p, work); err != nil {
		log.Printf("[MotionBlur] inline frame degraded to copy: %v", err)
		return false
	}
	s.compositor.Blend(gfx, s.blendStrength, work, dest, frame.Time)
	return true
}

// processAsync records the two-timeline frame: motion stages on graphics, the
// reconstruction kernel on compute, joined by a fence in each direction.
func (s *dualPathSchedulerImpl) processAsync(frame FrameInput, p Params, dest executor.Texture) bool {
	gfx := executor.TimelineGraphics
	cmp := executor.TimelineCompute
	st := s.async

	// The kernel gathers from a stable copy of the source, not the live
	// frame texture the host may reuse.
	s.ex.RunPass(gfx, executor.PassCopy, executor.PassConstants{
		ScreenWidth:  frame.Width,
		ScreenHeight: frame.Height,
	}, []executor.Texture{frame.Source}, []executor.Texture{st.sourceCopy})

	if err := s.filter.PrepareMotion(gfx, frame, p, st.velocity, st.neighborMax); err != nil {
		log.Printf("[MotionBlur] async frame falling back inline: %v", err)
		return false
	}

	s.ex.ReleaseTargets(gfx)
	motionReady := s.ex.NewFence()
	s.ex.SignalFence(gfx, motionReady)

	s.ex.WaitFence(cmp, motionReady)
	s.filter.DispatchReconstruct(cmp, frame, p, st.sourceCopy, st.velocity, st.neighborMax, st.result)
	reconstructDone := s.ex.NewFence()
	s.ex.SignalFence(cmp, reconstructDone)

	s.ex.WaitFence(gfx, reconstructDone)
	if s.ensureCompositor(frame.Width, frame.Height) {
		s.compositor.Blend(gfx, s.blendStrength, st.result, dest, frame.Time)
	} else {
		s.ex.RunPass(gfx, executor.PassCopy, executor.PassConstants{
			ScreenWidth:  frame.Width,
			ScreenHeight: frame.Height,
		}, []executor.Texture{st.result}, []executor.Texture{dest})
	}
	return true
}

// ensureCompositor keeps the compositor matched to the frame resolution.
// Returns false when blending is disabled or the compositor cannot exist.
func (s *dualPathSchedulerImpl) ensureCompositor(width, height int) bool {
	if s.blendStrength <= 0 {
		if s.compositor != nil {
			s.compositor.Release()
			s.compositor = nil
		}
		return false
	}
	if s.compositor != nil {
		if s.compositorWidth == width && s.compositorHeight == height {
			return true
		}
		s.compositor.Release()
		s.compositor = nil
	}
	s.compositor = NewFrameBlendCompositor(s.ex, width, height)
	s.compositorWidth, s.compositorHeight = width, height
	return true
}

// ensureAsyncState keeps the persistent async buffers matched to the frame
// resolution, reallocating on change.
func (s *dualPathSchedulerImpl) ensureAsyncState(width, height int) error {
	if s.async != nil && s.async.width == width && s.async.height == height {
		return nil
	}
	s.releaseAsync()

	st := &asyncState{width: width, height: height}
	tw, th := TileGrid(width, height)

	allocs := []struct {
		target *executor.Texture
		desc   executor.TextureDesc
	}{
		{&st.sourceCopy, executor.TextureDesc{Label: "mb_async_source", Width: width, Height: height, Format: s.colorFormat}},
		{&st.result, executor.TextureDesc{Label: "mb_async_result", Width: width, Height: height, Format: s.colorFormat}},
		{&st.velocity, executor.TextureDesc{Label: "mb_async_velocity", Width: width, Height: height, Format: s.filter.VelocityFormat()}},
		{&st.neighborMax, executor.TextureDesc{Label: "mb_async_neighbor_max", Width: tw, Height: th, Format: s.filter.VelocityFormat()}},
	}
	for _, a := range allocs {
		t, err := s.ex.CreateTexture(a.desc)
		if err != nil {
			s.async = st
			s.releaseAsync()
			return fmt.Errorf("failed to allocate %s: %w", a.desc.Label, err)
		}
		*a.target = t
	}

	s.async = st
	return nil
}

func (s *dualPathSchedulerImpl) releaseAsync() {
	if s.async == nil {
		return
	}
	for _, t := range []executor.Texture{s.async.sourceCopy, s.async.result, s.async.velocity, s.async.neighborMax} {
		if t != nil {
			s.ex.ReleaseTexture(t)
		}
	}
	s.async = nil
}

func (s *dualPathSchedulerImpl) SetShutterAngle(degrees float32) {
	s.shutterAngle = common.Clamp(degrees, 0, 360)
}

func (s *dualPathSchedulerImpl) SetSampleCount(samples int) {
	s.sampleCount = samples
}

func (s *dualPathSchedulerImpl) SetFrameBlending(strength float32) {
	s.blendStrength = common.Clamp(strength, 0, 1)
}

func (s *dualPathSchedulerImpl) SetAsyncCompute(enabled bool) {
	s.useAsync = enabled
}

func (s *dualPathSchedulerImpl) SetFilterCameraMotion(enabled bool) {
	s.filterCameraMotion = enabled
}
