// Package motionblur implements a per-frame motion blur post-process:
// velocity reconstruction over a tile-max pyramid, an optional decaying
// frame-history blend, and a scheduler that runs the cascade either inline on
// the graphics timeline or split across the asynchronous compute timeline.
package motionblur

import (
	"github.com/Carmen-Shannon/oxy-blur/common"
	"github.com/Carmen-Shannon/oxy-blur/engine/executor"
)

// FrameInput carries everything the pipeline consumes for one frame. The
// compute timeline inherits no globals, so camera matrices and clip planes
// ride along every frame even when only some passes read them.
type FrameInput struct {
	// Source is the rendered color frame to be blurred.
	Source executor.Texture
	// Motion holds per-pixel screen-space motion vectors in the xy channels
	// (pixels moved since the previous frame) and raw device depth in z.
	Motion executor.Texture

	// Width and Height are the frame dimensions in pixels.
	Width, Height int

	// ViewProj, InvViewProj, PrevViewProj, and InvProj are flat column-major
	// camera matrices for the current frame.
	ViewProj     [16]float32
	InvViewProj  [16]float32
	PrevViewProj [16]float32
	InvProj      [16]float32

	// NearClip and FarClip are the camera clip distances.
	NearClip, FarClip float32
	// ReversedDepth indicates the depth buffer stores 1 at the near plane.
	ReversedDepth bool

	// Time is the frame capture time in seconds.
	Time float64
	// DeltaTime is the time since the previous frame in seconds.
	DeltaTime float32
}

// Params carries the tunable quality parameters applied to one frame.
type Params struct {
	// ShutterAngle is the simulated shutter angle in degrees [0, 360]. The
	// velocity scale is ShutterAngle/360; zero disables the blur entirely.
	ShutterAngle float32
	// SampleCount is the requested reconstruction sample count, clamped to
	// [2, 64] before being halved into per-direction steps.
	SampleCount int
	// FilterCameraMotion removes camera-induced displacement from the motion
	// vectors by reprojecting through the previous view-projection.
	FilterCameraMotion bool
}

// MaxBlurPixels returns the maximum blur radius in pixels for a frame height,
// scaled so a 1080-pixel-tall frame blurs at most 10 pixels. Zero for very
// small frames, in which case the blur degenerates to a copy.
//
// Parameters:
//   - height: the frame height in pixels
//
// Returns:
//   - int: the maximum blur radius in pixels
func MaxBlurPixels(height int) int {
	return 10 * height / 1080
}

// TileSizeFor returns the tile granularity for a maximum blur radius: the
// smallest multiple of 8 that covers it. Never consulted when maxBlurPixels
// is zero.
//
// Parameters:
//   - maxBlurPixels: the maximum blur radius in pixels
//
// Returns:
//   - int: the tile edge length in pixels
func TileSizeFor(maxBlurPixels int) int {
	return max(8, common.NextMultiple(maxBlurPixels, 8))
}

// SampleLoopCount converts a requested sample count into the number of
// reconstruction steps taken in each direction along the motion vector.
//
// Parameters:
//   - sampleCount: the requested total sample count
//
// Returns:
//   - int: clamp(sampleCount, 2, 64) / 2
func SampleLoopCount(sampleCount int) int {
	return common.Clamp(sampleCount, 2, 64) / 2
}

// TileGrid returns the dimensions of the tile-resolution buffers for a frame.
//
// Parameters:
//   - width: the frame width in pixels
//   - height: the frame height in pixels
//
// Returns:
//   - int: tile grid width
//   - int: tile grid height
func TileGrid(width, height int) (int, int) {
	tile := TileSizeFor(MaxBlurPixels(height))
	return common.CeilDiv(width, tile), common.CeilDiv(height, tile)
}
