package motionblur

import (
	"fmt"
	"log"

	"github.com/Carmen-Shannon/oxy-blur/common"
	"github.com/Carmen-Shannon/oxy-blur/engine/executor"
)

// velocityFormats is the preference-ordered fallback list for the packed
// velocity/depth buffer. Three channels are needed (vx, vy, linear depth), so
// two-channel formats are not candidates.
var velocityFormats = []executor.Format{
	executor.FormatRGBAHalf,
	executor.FormatRGBAFloat,
}

// MotionReconstructionFilter runs the velocity reconstruction cascade:
// velocity/depth pack, tile-max pyramid, neighbor-max, and the weighted
// reconstruction walk. It holds no per-frame state; every invocation receives
// the full frame input and parameters.
type MotionReconstructionFilter interface {
	// Ready reports whether the filter can run at all on its executor. A
	// filter that is not ready never runs a pass; callers substitute a copy.
	//
	// Returns:
	//   - bool: true when a velocity buffer format is available
	Ready() bool

	// VelocityFormat returns the texture format chosen for velocity/depth
	// buffers, so callers allocating persistent buffers match the filter.
	//
	// Returns:
	//   - executor.Format: the selected velocity format
	VelocityFormat() executor.Format

	// Process runs the full cascade on one timeline using transient
	// intermediate buffers, writing the blurred frame to dest. A degenerate
	// blur radius produces a plain copy.
	//
	// Parameters:
	//   - tl: the timeline to record on
	//   - frame: the frame input
	//   - p: the quality parameters
	//   - dest: the output color texture
	//
	// Returns:
	//   - error: an error if a transient buffer could not be allocated; dest
	//     is unwritten in that case
	Process(tl executor.Timeline, frame FrameInput, p Params, dest executor.Texture) error

	// PrepareMotion runs the cascade's motion stages (velocity pack, tile-max
	// pyramid, neighbor-max) into caller-owned buffers, leaving the
	// reconstruction to a later dispatch. velocity must be full-resolution in
	// VelocityFormat; neighborMax must be TileGrid-sized in the same format.
	//
	// Parameters:
	//   - tl: the timeline to record on
	//   - frame: the frame input
	//   - p: the quality parameters
	//   - velocity: the packed velocity/depth output buffer
	//   - neighborMax: the neighbor-max output buffer
	//
	// Returns:
	//   - error: an error if a transient pyramid level could not be allocated
	PrepareMotion(tl executor.Timeline, frame FrameInput, p Params, velocity, neighborMax executor.Texture) error

	// DispatchReconstruct records the reconstruction as a compute kernel
	// dispatch over ceil(w/8) x ceil(h/8) thread groups, carrying all frame
	// constants explicitly.
	//
	// Parameters:
	//   - tl: the timeline to record on
	//   - frame: the frame input
	//   - p: the quality parameters
	//   - source: the color frame to gather from
	//   - velocity: the packed velocity/depth buffer from PrepareMotion
	//   - neighborMax: the neighbor-max buffer from PrepareMotion
	//   - dest: the output color texture
	DispatchReconstruct(tl executor.Timeline, frame FrameInput, p Params, source, velocity, neighborMax, dest executor.Texture)
}

type motionReconstructionFilterImpl struct {
	ex             executor.Executor
	velocityFormat executor.Format
	ready          bool
}

var _ MotionReconstructionFilter = &motionReconstructionFilterImpl{}

// NewMotionReconstructionFilter creates a filter bound to an executor,
// selecting the velocity buffer format from the backend's capability set.
//
// Parameters:
//   - ex: the executor to record passes on (must not be nil)
//
// Returns:
//   - MotionReconstructionFilter: the newly created filter
func NewMotionReconstructionFilter(ex executor.Executor) MotionReconstructionFilter {
	if ex == nil {
		panic("motionblur: executor is required to create a filter")
	}
	f := &motionReconstructionFilterImpl{ex: ex}

	caps := ex.Capabilities()
	for _, candidate := range velocityFormats {
		if caps.Supports(candidate) {
			f.velocityFormat = candidate
			f.ready = true
			break
		}
	}
	if !f.ready {
		log.Printf("[MotionBlur] no velocity buffer format supported, blur disabled")
	}

	return f
}

func (f *motionReconstructionFilterImpl) Ready() bool {
	return f.ready
}

func (f *motionReconstructionFilterImpl) VelocityFormat() executor.Format {
	return f.velocityFormat
}

// constants assembles the per-invocation constant block shared by every pass
// of a frame.
func (f *motionReconstructionFilterImpl) constants(frame FrameInput, p Params) executor.PassConstants {
	maxBlur := MaxBlurPixels(frame.Height)
	tileMaxLoop := TileSizeFor(maxBlur) / 8

	return executor.PassConstants{
		ScreenWidth:  frame.Width,
		ScreenHeight: frame.Height,

		VelocityScale: p.ShutterAngle / 360,
		MaxBlurRadius: float32(maxBlur),
		TileMaxOffset: (float32(tileMaxLoop) - 1) * 0.5,
		TileMaxLoop:   tileMaxLoop,
		LoopCount:     SampleLoopCount(p.SampleCount),

		NearClip:           frame.NearClip,
		FarClip:            frame.FarClip,
		ReversedDepth:      frame.ReversedDepth,
		FilterCameraMotion: p.FilterCameraMotion,

		ViewProj:     frame.ViewProj,
		InvViewProj:  frame.InvViewProj,
		PrevViewProj: frame.PrevViewProj,
		InvProj:      frame.InvProj,

		Time: frame.Time,
	}
}

func (f *motionReconstructionFilterImpl) Process(tl executor.Timeline, frame FrameInput, p Params, dest executor.Texture) error {
	if !f.ready || MaxBlurPixels(frame.Height) == 0 {
		f.ex.RunPass(tl, executor.PassCopy, f.constants(frame, p), []executor.Texture{frame.Source}, []executor.Texture{dest})
		return nil
	}

	velocity, err := f.ex.CreateTexture(executor.TextureDesc{
		Label:  "mb_velocity",
		Width:  frame.Width,
		Height: frame.Height,
		Format: f.velocityFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to allocate velocity buffer: %w", err)
	}
	defer f.ex.ReleaseTexture(velocity)

	tw, th := TileGrid(frame.Width, frame.Height)
	neighborMax, err := f.ex.CreateTexture(executor.TextureDesc{
		Label:  "mb_neighbor_max",
		Width:  tw,
		Height: th,
		Format: f.velocityFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to allocate neighbor-max buffer: %w", err)
	}
	defer f.ex.ReleaseTexture(neighborMax)

	if err := f.PrepareMotion(tl, frame, p, velocity, neighborMax); err != nil {
		return err
	}

	f.ex.RunPass(tl, executor.PassReconstruct, f.constants(frame, p),
		[]executor.Texture{frame.Source, velocity, neighborMax},
		[]executor.Texture{dest})
	return nil
}

func (f *motionReconstructionFilterImpl) PrepareMotion(tl executor.Timeline, frame FrameInput, p Params, velocity, neighborMax executor.Texture) error {
	c := f.constants(frame, p)

	f.ex.RunPass(tl, executor.PassVelocitySetup, c,
		[]executor.Texture{frame.Motion}, []executor.Texture{velocity})

	// Three fixed halvings take the velocity buffer to 1/8 resolution; the
	// variable reduction then lands on tile granularity.
	levels := make([]executor.Texture, 0, 4)
	release := func() {
		for _, t := range levels {
			f.ex.ReleaseTexture(t)
		}
	}

	w, h := frame.Width, frame.Height
	prev := velocity
	for i := 0; i < 3; i++ {
		w = common.CeilDiv(w, 2)
		h = common.CeilDiv(h, 2)
		level, err := f.ex.CreateTexture(executor.TextureDesc{
			Label:  fmt.Sprintf("mb_tile_max_%d", 2<<i),
			Width:  w,
			Height: h,
			Format: f.velocityFormat,
		})
		if err != nil {
			release()
			return fmt.Errorf("failed to allocate tile-max level %d: %w", i, err)
		}
		levels = append(levels, level)

		f.ex.RunPass(tl, executor.PassTileMax2, c,
			[]executor.Texture{prev}, []executor.Texture{level})
		prev = level
	}

	tileMax, err := f.ex.CreateTexture(executor.TextureDesc{
		Label:  "mb_tile_max",
		Width:  neighborMax.Width(),
		Height: neighborMax.Height(),
		Format: f.velocityFormat,
	})
	if err != nil {
		release()
		return fmt.Errorf("failed to allocate tile-max buffer: %w", err)
	}
	levels = append(levels, tileMax)

	f.ex.RunPass(tl, executor.PassTileMaxVariable, c,
		[]executor.Texture{prev}, []executor.Texture{tileMax})
	f.ex.RunPass(tl, executor.PassNeighborMax, c,
		[]executor.Texture{tileMax}, []executor.Texture{neighborMax})

	release()
	return nil
}

func (f *motionReconstructionFilterImpl) DispatchReconstruct(tl executor.Timeline, frame FrameInput, p Params, source, velocity, neighborMax, dest executor.Texture) {
	groupsX := common.CeilDiv(dest.Width(), 8)
	groupsY := common.CeilDiv(dest.Height(), 8)
	f.ex.DispatchKernel(tl, f.constants(frame, p),
		[]executor.Texture{source, velocity, neighborMax}, dest, groupsX, groupsY)
}
