package motionblur

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-blur/engine/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFrame(source, motion executor.Texture, w, h int) FrameInput {
	f := FrameInput{
		Source:   source,
		Motion:   motion,
		Width:    w,
		Height:   h,
		NearClip: 0.1,
		FarClip:  100,
		Time:     1,
	}
	for i := 0; i < 4; i++ {
		f.ViewProj[i*5] = 1
		f.InvViewProj[i*5] = 1
		f.PrevViewProj[i*5] = 1
		f.InvProj[i*5] = 1
	}
	return f
}

func newColorTexture(t *testing.T, ex executor.SoftwareExecutor, label string, w, h int) executor.Texture {
	t.Helper()
	tex, err := ex.CreateTexture(executor.TextureDesc{Label: label, Width: w, Height: h, Format: executor.FormatRGBAFloat})
	require.NoError(t, err)
	return tex
}

// fillUniform writes the same texel value everywhere.
func fillUniform(ex executor.SoftwareExecutor, tex executor.Texture, r, g, b, a float32) {
	data := make([]float32, tex.Width()*tex.Height()*4)
	for i := 0; i < len(data); i += 4 {
		data[i], data[i+1], data[i+2], data[i+3] = r, g, b, a
	}
	ex.WriteTexture(tex, data)
}

// TestMaxBlurPixels tests the height-proportional blur radius.
func TestMaxBlurPixels(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10, MaxBlurPixels(1080))
	assert.Equal(t, 6, MaxBlurPixels(720))
	assert.Equal(t, 20, MaxBlurPixels(2160))
	assert.Equal(t, 1, MaxBlurPixels(108))
	assert.Equal(t, 0, MaxBlurPixels(107))
}

// TestTileSizeFor tests that the tile size is always a multiple of 8 covering
// the blur radius.
func TestTileSizeFor(t *testing.T) {
	t.Parallel()

	for _, height := range []int{108, 256, 720, 1080, 1440, 2160, 4320} {
		mbp := MaxBlurPixels(height)
		tile := TileSizeFor(mbp)
		assert.Zero(t, tile%8, "height %d", height)
		assert.GreaterOrEqual(t, tile, mbp, "height %d", height)
		assert.GreaterOrEqual(t, tile, 8, "height %d", height)
		assert.Less(t, tile, mbp+8, "height %d", height)
	}

	assert.Equal(t, 8, TileSizeFor(2))
	assert.Equal(t, 8, TileSizeFor(8))
	assert.Equal(t, 16, TileSizeFor(10))
	assert.Equal(t, 24, TileSizeFor(20))
}

// TestSampleLoopCount tests the sample-to-step conversion at and beyond the
// clamp bounds.
func TestSampleLoopCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, SampleLoopCount(1))
	assert.Equal(t, 1, SampleLoopCount(2))
	assert.Equal(t, 16, SampleLoopCount(32))
	assert.Equal(t, 32, SampleLoopCount(64))
	assert.Equal(t, 32, SampleLoopCount(200))
}

// TestTileGrid tests tile grid dimensions for common resolutions.
func TestTileGrid(t *testing.T) {
	t.Parallel()

	tw, th := TileGrid(256, 256)
	assert.Equal(t, 32, tw)
	assert.Equal(t, 32, th)

	tw, th = TileGrid(1920, 1080)
	assert.Equal(t, 120, tw)
	assert.Equal(t, 68, th)
}

// TestVelocityFormatFallback tests that the filter falls back through the
// velocity format list and disables itself when nothing fits.
func TestVelocityFormatFallback(t *testing.T) {
	t.Parallel()

	t.Run("prefers rgba16f", func(t *testing.T) {
		t.Parallel()
		ex := executor.NewSoftwareExecutor()
		defer ex.Close()
		f := NewMotionReconstructionFilter(ex)
		assert.True(t, f.Ready())
		assert.Equal(t, executor.FormatRGBAHalf, f.VelocityFormat())
	})

	t.Run("falls back to rgba32f", func(t *testing.T) {
		t.Parallel()
		ex := executor.NewSoftwareExecutor(executor.WithFormatSupport(executor.FormatRGBAHalf, false))
		defer ex.Close()
		f := NewMotionReconstructionFilter(ex)
		assert.True(t, f.Ready())
		assert.Equal(t, executor.FormatRGBAFloat, f.VelocityFormat())
	})

	t.Run("not ready without any candidate", func(t *testing.T) {
		t.Parallel()
		ex := executor.NewSoftwareExecutor(
			executor.WithFormatSupport(executor.FormatRGBAHalf, false),
			executor.WithFormatSupport(executor.FormatRGBAFloat, false),
		)
		defer ex.Close()
		f := NewMotionReconstructionFilter(ex)
		assert.False(t, f.Ready())
	})
}

// TestProcessDegenerateCopies tests that a frame too small for any blur
// radius passes through unchanged.
func TestProcessDegenerateCopies(t *testing.T) {
	t.Parallel()
	ex := executor.NewSoftwareExecutor(executor.WithWorkerCount(2))
	defer ex.Close()

	const w, h = 64, 64 // below the 108-pixel height needed for a 1-pixel radius
	source := newColorTexture(t, ex, "src", w, h)
	motion := newColorTexture(t, ex, "motion", w, h)
	dest := newColorTexture(t, ex, "dst", w, h)

	fillUniform(ex, source, 0.2, 0.4, 0.6, 1)
	fillUniform(ex, motion, 50, 0, 0.5, 0)

	f := NewMotionReconstructionFilter(ex)
	err := f.Process(executor.TimelineGraphics, newFrame(source, motion, w, h), Params{ShutterAngle: 360, SampleCount: 32}, dest)
	require.NoError(t, err)

	assert.Equal(t, ex.ReadTexture(source), ex.ReadTexture(dest))
}

// TestProcessNotReadyCopies tests that a filter without a velocity format
// still produces output by copying.
func TestProcessNotReadyCopies(t *testing.T) {
	t.Parallel()
	ex := executor.NewSoftwareExecutor(
		executor.WithWorkerCount(2),
		executor.WithFormatSupport(executor.FormatRGBAHalf, false),
		executor.WithFormatSupport(executor.FormatRGBAFloat, false),
	)
	defer ex.Close()

	const w, h = 128, 128
	mk := func(label string) executor.Texture {
		tex, err := ex.CreateTexture(executor.TextureDesc{Label: label, Width: w, Height: h, Format: executor.FormatRGBA8})
		require.NoError(t, err)
		return tex
	}
	source := mk("src")
	motion := mk("motion")
	dest := mk("dst")
	fillUniform(ex, source, 0.7, 0.1, 0.3, 1)

	f := NewMotionReconstructionFilter(ex)
	require.False(t, f.Ready())

	require.NoError(t, f.Process(executor.TimelineGraphics, newFrame(source, motion, w, h), Params{ShutterAngle: 360, SampleCount: 32}, dest))
	assert.Equal(t, ex.ReadTexture(source), ex.ReadTexture(dest))
}

// TestProcessBlursMovingEdge tests the full cascade: a hard luminance edge
// under uniform motion softens, while texels far from the edge keep their
// color.
func TestProcessBlursMovingEdge(t *testing.T) {
	t.Parallel()
	ex := executor.NewSoftwareExecutor(executor.WithWorkerCount(4))
	defer ex.Close()

	const w, h = 256, 256 // 2-pixel blur radius, 8-pixel tiles
	source := newColorTexture(t, ex, "src", w, h)
	motion := newColorTexture(t, ex, "motion", w, h)
	dest := newColorTexture(t, ex, "dst", w, h)

	// White left half, black right half, everything moving right.
	src := make([]float32, w*h*4)
	mot := make([]float32, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			if x < w/2 {
				src[i], src[i+1], src[i+2] = 1, 1, 1
			}
			src[i+3] = 1
			mot[i] = 20
			mot[i+2] = 0.5
		}
	}
	ex.WriteTexture(source, src)
	ex.WriteTexture(motion, mot)

	f := NewMotionReconstructionFilter(ex)
	require.True(t, f.Ready())
	require.NoError(t, f.Process(executor.TimelineGraphics, newFrame(source, motion, w, h), Params{ShutterAngle: 360, SampleCount: 32}, dest))

	got := ex.ReadTexture(dest)
	at := func(x, y int) float32 { return got[(y*w+x)*4] }

	assert.Less(t, at(w/2-1, h/2), float32(0.95), "edge texel gathers across the boundary")
	assert.Greater(t, at(w/2, h/2), float32(0.05), "dark side picks up bright samples")
	assert.InDelta(t, 1.0, at(10, h/2), 1e-3, "deep inside the bright region stays bright")
	assert.InDelta(t, 0.0, at(w-10, h/2), 1e-3, "deep inside the dark region stays dark")
}
