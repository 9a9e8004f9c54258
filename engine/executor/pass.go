package executor

// PassKind identifies one filter pass of the motion blur pipeline. The pass
// semantics are fixed; backends implement each kind either as an embedded GPU
// kernel or as CPU reference code.
type PassKind int

const (
	// PassCopy copies input 0 to output 0, converting formats if they differ.
	PassCopy PassKind = iota
	// PassVelocitySetup packs scaled, radius-bounded screen-space velocity and
	// linearized depth into a MotionSample texture. Input 0 is the raw
	// motion/depth source. Optionally removes camera-only motion by
	// reprojecting each pixel through the previous view-projection.
	PassVelocitySetup
	// PassTileMax2 halves resolution, keeping the maximum-magnitude
	// MotionSample of each 2x2 block.
	PassTileMax2
	// PassTileMaxVariable reduces the 1/8-resolution velocity buffer directly
	// to tile granularity, scanning a TileMaxLoop x TileMaxLoop neighborhood
	// per output tile.
	PassTileMaxVariable
	// PassNeighborMax writes, per tile, the maximum-magnitude sample among the
	// tile and its eight neighbors (3x3 box).
	PassNeighborMax
	// PassReconstruct walks LoopCount steps in each direction along the
	// dominant tile velocity, accumulating depth- and velocity-weighted color
	// samples. Inputs: source color, velocity, neighbor-max.
	PassReconstruct
	// PassHistoryPack encodes a frame for the history store. In packed mode it
	// writes a luma plane and an interleaved 4:2:2 chroma plane (two outputs);
	// in raw mode it writes one color texture.
	PassHistoryPack
	// PassBlendRaw accumulates input 0 (current frame, weight 1) with
	// HistoryCount raw history frames scaled by HistoryWeights, dividing by
	// the total weight. Inputs: source, history1..historyN.
	PassBlendRaw
	// PassBlendPacked is PassBlendRaw for packed history frames. Inputs:
	// source, then a luma/chroma texture pair per history frame.
	PassBlendPacked
)

// String returns the pass name used in trace output, GPU debug labels, and logs.
func (k PassKind) String() string {
	switch k {
	case PassCopy:
		return "copy"
	case PassVelocitySetup:
		return "velocity_setup"
	case PassTileMax2:
		return "tile_max_2"
	case PassTileMaxVariable:
		return "tile_max_variable"
	case PassNeighborMax:
		return "neighbor_max"
	case PassReconstruct:
		return "reconstruct"
	case PassHistoryPack:
		return "history_pack"
	case PassBlendRaw:
		return "blend_raw"
	case PassBlendPacked:
		return "blend_packed"
	default:
		return "unknown"
	}
}

// PassConstants carries every per-invocation parameter a pass can consume.
// A fresh value is built for each RunPass/DispatchKernel call; backends hold
// no pass state between invocations. Fields irrelevant to a given pass kind
// are ignored by it.
type PassConstants struct {
	// ScreenWidth and ScreenHeight are the source resolution in pixels.
	ScreenWidth, ScreenHeight int

	// VelocityScale scales raw motion vectors; derived from shutterAngle/360.
	VelocityScale float32
	// MaxBlurRadius bounds velocity magnitude, in pixels.
	MaxBlurRadius float32
	// TileMaxOffset is the half-texel centering offset for the variable
	// tile-max reduction, derived from (TileMaxLoop - 1) * 0.5.
	TileMaxOffset float32
	// TileMaxLoop is the per-axis neighborhood extent of the variable
	// tile-max reduction (tileSize / 8).
	TileMaxLoop int
	// LoopCount is the number of reconstruction steps taken in each direction
	// along the motion vector (clamp(sampleCount, 2, 64) / 2).
	LoopCount int

	// NearClip and FarClip are the camera clip distances used for depth
	// linearization.
	NearClip, FarClip float32
	// ReversedDepth indicates the depth buffer stores 1 at the near plane.
	ReversedDepth bool
	// FilterCameraMotion enables subtraction of camera-induced displacement
	// from the total motion vector.
	FilterCameraMotion bool

	// ViewProj, InvViewProj, PrevViewProj, and InvProj are the camera matrices
	// for the current frame, flat column-major. The compute timeline receives
	// no implicit globals, so these are always carried here.
	ViewProj     [16]float32
	InvViewProj  [16]float32
	PrevViewProj [16]float32
	InvProj      [16]float32

	// Time is the frame capture time in seconds.
	Time float64

	// BlendStrength is the history blend strength in [0, 1].
	BlendStrength float32
	// HistoryCount is the number of populated history frames bound to a blend
	// pass (0..4).
	HistoryCount int
	// HistoryWeights holds the decay weight for each bound history frame.
	HistoryWeights [4]float32
}
