package motionblur

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-blur/engine/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEncodingSelection tests that the store picks the richest encoding the
// backend supports.
func TestEncodingSelection(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		options []executor.SoftwareExecutorOption
		want    HistoryEncoding
	}{
		{
			name: "packed with mrt and r8",
			want: EncodingPacked,
		},
		{
			name:    "raw16f without mrt",
			options: []executor.SoftwareExecutorOption{executor.WithMultiTargetSupport(false)},
			want:    EncodingRawHalf,
		},
		{
			name:    "raw16f without r8",
			options: []executor.SoftwareExecutorOption{executor.WithFormatSupport(executor.FormatR8, false)},
			want:    EncodingRawHalf,
		},
		{
			name: "raw8 fallback",
			options: []executor.SoftwareExecutorOption{
				executor.WithMultiTargetSupport(false),
				executor.WithFormatSupport(executor.FormatRGBAHalf, false),
			},
			want: EncodingRaw8,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ex := executor.NewSoftwareExecutor(tc.options...)
			defer ex.Close()

			store := NewFrameHistoryStore(ex, 16, 16)
			defer store.Release()
			assert.Equal(t, tc.want, store.Encoding())
		})
	}
}

// TestWeightDecay tests the exponential decay weight at both ends of the
// strength range.
func TestWeightDecay(t *testing.T) {
	t.Parallel()
	ex := executor.NewSoftwareExecutor(executor.WithWorkerCount(1))
	defer ex.Close()

	source := newColorTexture(t, ex, "src", 16, 16)
	store := NewFrameHistoryStore(ex, 16, 16)
	defer store.Release()

	require.NoError(t, store.PushFrame(executor.TimelineGraphics, source, 1.0))

	t.Run("weight is 1 at the capture instant", func(t *testing.T) {
		assert.InDelta(t, 1.0, store.Weight(0, 0.5, 1.0), 1e-6)
	})

	t.Run("strength 0 decays at rate 80", func(t *testing.T) {
		want := float32(math.Exp(-0.5 * 80))
		assert.InDelta(t, want, store.Weight(0, 0, 1.5), 1e-9)
	})

	t.Run("strength 1 decays at rate 16", func(t *testing.T) {
		want := float32(math.Exp(-0.5 * 16))
		assert.InDelta(t, want, store.Weight(0, 1, 1.5), 1e-6)
	})

	t.Run("higher strength keeps old frames heavier", func(t *testing.T) {
		assert.Greater(t, store.Weight(0, 1, 1.5), store.Weight(0, 0, 1.5))
	})

	t.Run("weight strictly decreases with age", func(t *testing.T) {
		assert.Greater(t, store.Weight(0, 0, 1.1), store.Weight(0, 0, 1.2))
		assert.Greater(t, store.Weight(0, 1, 1.1), store.Weight(0, 1, 1.2))
	})

	t.Run("empty and out-of-range slots weigh nothing", func(t *testing.T) {
		assert.Zero(t, store.Weight(1, 0.5, 1.5))
		assert.Zero(t, store.Weight(-1, 0.5, 1.5))
		assert.Zero(t, store.Weight(historySlots, 0.5, 1.5))
	})
}

// TestRingRotation tests that pushes shift slots toward older offsets and
// evict the oldest frame, preserving each slot's payload.
func TestRingRotation(t *testing.T) {
	t.Parallel()
	// Raw encoding keeps the stored frame a directly readable color texture.
	ex := executor.NewSoftwareExecutor(
		executor.WithWorkerCount(1),
		executor.WithMultiTargetSupport(false),
	)
	defer ex.Close()

	const w, h = 16, 16
	source := newColorTexture(t, ex, "src", w, h)
	store := NewFrameHistoryStore(ex, w, h)
	defer store.Release()
	require.Equal(t, EncodingRawHalf, store.Encoding())

	for i := 1; i <= 5; i++ {
		fillUniform(ex, source, float32(i)/10, 0, 0, 1)
		require.NoError(t, store.PushFrame(executor.TimelineGraphics, source, float64(i)))
	}

	// Frames 1 (evicted) through 5; slot 0 is the newest.
	for offset := 0; offset < historySlots; offset++ {
		frame := store.Frame(offset)
		require.False(t, frame.Empty(), "offset %d", offset)
		assert.Equal(t, float64(5-offset), frame.CaptureTime, "offset %d", offset)

		pix := ex.ReadTexture(frame.Color)
		assert.InDelta(t, float64(5-offset)/10, pix[0], 1e-6, "offset %d payload", offset)
	}

	assert.True(t, store.Frame(historySlots).Empty())
	assert.True(t, store.Frame(-1).Empty())

	store.Release()
	assert.True(t, store.Frame(0).Empty())
}

// TestPackedFramesCarryPlanes tests that packed pushes populate luma and
// chroma planes instead of a color texture.
func TestPackedFramesCarryPlanes(t *testing.T) {
	t.Parallel()
	ex := executor.NewSoftwareExecutor(executor.WithWorkerCount(1))
	defer ex.Close()

	const w, h = 16, 16
	source := newColorTexture(t, ex, "src", w, h)
	fillUniform(ex, source, 0.5, 0.5, 0.5, 1)

	store := NewFrameHistoryStore(ex, w, h)
	defer store.Release()
	require.Equal(t, EncodingPacked, store.Encoding())

	require.NoError(t, store.PushFrame(executor.TimelineGraphics, source, 1.0))

	frame := store.Frame(0)
	require.False(t, frame.Empty())
	require.NotNil(t, frame.Luma)
	require.NotNil(t, frame.Chroma)
	assert.Nil(t, frame.Color)

	// Mid gray: luma 0.5, both chroma channels at the 0.5 bias.
	luma := ex.ReadTexture(frame.Luma)
	chroma := ex.ReadTexture(frame.Chroma)
	assert.InDelta(t, 0.5, luma[0], 0.01)
	assert.InDelta(t, 0.5, chroma[0], 0.01)
	assert.InDelta(t, 0.5, chroma[4], 0.01)
}

// TestBlendWithoutHistoryCopies tests that the first blend is a plain copy
// and still records the frame into the ring.
func TestBlendWithoutHistoryCopies(t *testing.T) {
	t.Parallel()
	ex := executor.NewSoftwareExecutor(executor.WithWorkerCount(1))
	defer ex.Close()

	const w, h = 16, 16
	source := newColorTexture(t, ex, "src", w, h)
	dest := newColorTexture(t, ex, "dst", w, h)
	fillUniform(ex, source, 0.3, 0.6, 0.9, 1)

	comp := NewFrameBlendCompositor(ex, w, h)
	defer comp.Release()

	comp.Blend(executor.TimelineGraphics, 0.5, source, dest, 2.0)

	assert.Equal(t, ex.ReadTexture(source), ex.ReadTexture(dest))

	frame := comp.History().Frame(0)
	require.False(t, frame.Empty())
	assert.Equal(t, 2.0, frame.CaptureTime)
	assert.True(t, comp.History().Frame(1).Empty(), "exactly one frame recorded")
}

// TestBlendRawAccumulatesHistory tests the weighted accumulation formula
// against a hand-computed raw-encoding blend.
func TestBlendRawAccumulatesHistory(t *testing.T) {
	t.Parallel()
	ex := executor.NewSoftwareExecutor(
		executor.WithWorkerCount(1),
		executor.WithMultiTargetSupport(false),
	)
	defer ex.Close()

	const w, h = 16, 16
	source := newColorTexture(t, ex, "src", w, h)
	dest := newColorTexture(t, ex, "dst", w, h)

	comp := NewFrameBlendCompositor(ex, w, h)
	defer comp.Release()
	require.Equal(t, EncodingRawHalf, comp.History().Encoding())

	gfx := executor.TimelineGraphics

	// Frame 1: pure red enters the ring.
	fillUniform(ex, source, 1, 0, 0, 1)
	comp.Blend(gfx, 1, source, dest, 1.0)
	ex.Flush()

	// Frame 2: pure blue blends against the red history frame.
	fillUniform(ex, source, 0, 0, 1, 1)
	comp.Blend(gfx, 1, source, dest, 1.01)

	weight := float32(math.Exp(-0.01 * 16))
	wantRed := weight / (1 + weight)
	wantBlue := 1 / (1 + weight)

	got := ex.ReadTexture(dest)
	assert.InDelta(t, wantRed, got[0], 1e-4)
	assert.InDelta(t, 0.0, got[1], 1e-4)
	assert.InDelta(t, wantBlue, got[2], 1e-4)
}

// TestBlendPackedRoundtrip tests that packed history survives the encode and
// decode within 8-bit tolerance.
func TestBlendPackedRoundtrip(t *testing.T) {
	t.Parallel()
	ex := executor.NewSoftwareExecutor(executor.WithWorkerCount(1))
	defer ex.Close()

	const w, h = 16, 16
	source := newColorTexture(t, ex, "src", w, h)
	dest := newColorTexture(t, ex, "dst", w, h)

	comp := NewFrameBlendCompositor(ex, w, h)
	defer comp.Release()
	require.Equal(t, EncodingPacked, comp.History().Encoding())

	gfx := executor.TimelineGraphics

	fillUniform(ex, source, 0.5, 0.5, 0.5, 1)
	comp.Blend(gfx, 1, source, dest, 1.0)
	ex.Flush()

	fillUniform(ex, source, 0.8, 0.8, 0.8, 1)
	comp.Blend(gfx, 1, source, dest, 1.01)

	weight := float32(math.Exp(-0.01 * 16))
	want := (0.8 + weight*0.5) / (1 + weight)

	got := ex.ReadTexture(dest)
	assert.InDelta(t, want, got[0], 0.02)
	assert.InDelta(t, want, got[1], 0.02)
	assert.InDelta(t, want, got[2], 0.02)
}
