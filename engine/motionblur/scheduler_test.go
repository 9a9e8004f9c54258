package motionblur

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-blur/engine/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schedW, schedH = 256, 256

// writeTestScene fills a source/motion pair with a bright square on a dark
// background, everything moving diagonally.
func writeTestScene(ex executor.SoftwareExecutor, source, motion executor.Texture) {
	w, h := source.Width(), source.Height()
	src := make([]float32, w*h*4)
	mot := make([]float32, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			if x >= w/4 && x < 3*w/4 && y >= h/4 && y < 3*h/4 {
				src[i], src[i+1], src[i+2] = 0.9, 0.7, 0.2
			} else {
				src[i], src[i+1], src[i+2] = 0.05, 0.05, 0.1
			}
			src[i+3] = 1
			mot[i], mot[i+1] = 30, 10
			mot[i+2] = 0.5
		}
	}
	ex.WriteTexture(source, src)
	ex.WriteTexture(motion, mot)
}

func newSchedulerScene(t *testing.T, ex executor.SoftwareExecutor) (source, motion, dest executor.Texture) {
	t.Helper()
	source = newColorTexture(t, ex, "scene_src", schedW, schedH)
	motion = newColorTexture(t, ex, "scene_motion", schedW, schedH)
	dest = newColorTexture(t, ex, "scene_dst", schedW, schedH)
	writeTestScene(ex, source, motion)
	return source, motion, dest
}

// TestBypassWhenShutterClosed tests that a zero shutter angle passes the
// frame through untouched.
func TestBypassWhenShutterClosed(t *testing.T) {
	t.Parallel()
	ex := executor.NewSoftwareExecutor(executor.WithWorkerCount(2))
	defer ex.Close()

	source, motion, dest := newSchedulerScene(t, ex)

	sched := NewDualPathScheduler(ex, WithShutterAngle(0))
	require.NoError(t, sched.Open())
	defer sched.Close()

	path := sched.ProcessFrame(newFrame(source, motion, schedW, schedH), dest)
	assert.Equal(t, PathBypass, path)
	assert.Equal(t, ex.ReadTexture(source), ex.ReadTexture(dest))
}

// TestBypassWhenFilterNotReady tests that a backend without any velocity
// format still produces a pass-through frame.
func TestBypassWhenFilterNotReady(t *testing.T) {
	t.Parallel()
	ex := executor.NewSoftwareExecutor(
		executor.WithWorkerCount(2),
		executor.WithFormatSupport(executor.FormatRGBAHalf, false),
		executor.WithFormatSupport(executor.FormatRGBAFloat, false),
	)
	defer ex.Close()

	mk := func(label string) executor.Texture {
		tex, err := ex.CreateTexture(executor.TextureDesc{Label: label, Width: schedW, Height: schedH, Format: executor.FormatRGBA8})
		require.NoError(t, err)
		return tex
	}
	source, motion, dest := mk("src"), mk("motion"), mk("dst")
	fillUniform(ex, source, 0.4, 0.5, 0.6, 1)

	sched := NewDualPathScheduler(ex)
	require.NoError(t, sched.Open())
	defer sched.Close()

	path := sched.ProcessFrame(newFrame(source, motion, schedW, schedH), dest)
	assert.Equal(t, PathBypass, path)
	assert.Equal(t, ex.ReadTexture(source), ex.ReadTexture(dest))
}

// TestOpenFailsWithoutColorFormat tests that Open reports the missing
// intermediate color format instead of limping along.
func TestOpenFailsWithoutColorFormat(t *testing.T) {
	t.Parallel()
	ex := executor.NewSoftwareExecutor(
		executor.WithFormatSupport(executor.FormatRGBAHalf, false),
		executor.WithFormatSupport(executor.FormatRGBA8, false),
	)
	defer ex.Close()

	sched := NewDualPathScheduler(ex)
	assert.Error(t, sched.Open())
}

// TestAsyncRequiresCapability tests that the async request degrades to the
// inline path when the backend lacks async compute or kernels.
func TestAsyncRequiresCapability(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name   string
		option executor.SoftwareExecutorOption
	}{
		{"no async compute", executor.WithAsyncComputeSupport(false)},
		{"no compute kernels", executor.WithComputeKernelSupport(false)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ex := executor.NewSoftwareExecutor(executor.WithWorkerCount(2), tc.option)
			defer ex.Close()

			source, motion, dest := newSchedulerScene(t, ex)

			sched := NewDualPathScheduler(ex, WithAsyncCompute(true))
			require.NoError(t, sched.Open())
			defer sched.Close()

			path := sched.ProcessFrame(newFrame(source, motion, schedW, schedH), dest)
			assert.Equal(t, PathInline, path)
		})
	}
}

// TestInlineAsyncEquivalence tests that both scheduling paths produce the
// same image for the same frame.
func TestInlineAsyncEquivalence(t *testing.T) {
	t.Parallel()
	ex := executor.NewSoftwareExecutor(executor.WithWorkerCount(4))
	defer ex.Close()

	source, motion, _ := newSchedulerScene(t, ex)
	destInline := newColorTexture(t, ex, "dst_inline", schedW, schedH)
	destAsync := newColorTexture(t, ex, "dst_async", schedW, schedH)

	inline := NewDualPathScheduler(ex, WithShutterAngle(270), WithSampleCount(32))
	require.NoError(t, inline.Open())
	defer inline.Close()

	async := NewDualPathScheduler(ex, WithShutterAngle(270), WithSampleCount(32), WithAsyncCompute(true))
	require.NoError(t, async.Open())
	defer async.Close()

	frame := newFrame(source, motion, schedW, schedH)

	require.Equal(t, PathInline, inline.ProcessFrame(frame, destInline))
	require.Equal(t, PathAsync, async.ProcessFrame(frame, destAsync))

	a := ex.ReadTexture(destInline)
	b := ex.ReadTexture(destAsync)
	require.Len(t, b, len(a))
	for i := range a {
		require.InDelta(t, a[i], b[i], 1e-5, "texel component %d", i)
	}
}

// TestAsyncFenceOrdering tests that the async frame's trace respects the
// cross-timeline fences: motion stages before the kernel, the kernel before
// the graphics-side consumption.
func TestAsyncFenceOrdering(t *testing.T) {
	t.Parallel()
	ex := executor.NewSoftwareExecutor(executor.WithWorkerCount(2))
	defer ex.Close()

	source, motion, dest := newSchedulerScene(t, ex)

	sched := NewDualPathScheduler(ex, WithAsyncCompute(true))
	require.NoError(t, sched.Open())
	defer sched.Close()

	require.Equal(t, PathAsync, sched.ProcessFrame(newFrame(source, motion, schedW, schedH), dest))

	trace := ex.Trace()
	gfxSignal, computeWait, kernel, gfxWait := -1, -1, -1, -1
	for i, ev := range trace {
		switch {
		case ev.Op == "fence:signal" && ev.Timeline == executor.TimelineGraphics && gfxSignal < 0:
			gfxSignal = i
		case ev.Op == "fence:wait" && ev.Timeline == executor.TimelineCompute:
			computeWait = i
		case ev.Op == "kernel:reconstruct":
			kernel = i
		case ev.Op == "fence:wait" && ev.Timeline == executor.TimelineGraphics:
			gfxWait = i
		}
	}
	require.GreaterOrEqual(t, gfxSignal, 0)
	require.GreaterOrEqual(t, computeWait, 0)
	require.GreaterOrEqual(t, kernel, 0)
	require.GreaterOrEqual(t, gfxWait, 0)

	assert.Equal(t, executor.TimelineCompute, trace[kernel].Timeline)
	assert.Less(t, gfxSignal, computeWait, "compute waits for the motion stages")
	assert.Less(t, computeWait, kernel, "kernel runs after its wait")
	assert.Less(t, kernel, gfxWait, "graphics consumes after the kernel")
}

// TestResolutionChangeReallocates tests that consecutive frames at different
// resolutions both take the async path.
func TestResolutionChangeReallocates(t *testing.T) {
	t.Parallel()
	ex := executor.NewSoftwareExecutor(executor.WithWorkerCount(2))
	defer ex.Close()

	sched := NewDualPathScheduler(ex, WithAsyncCompute(true))
	require.NoError(t, sched.Open())
	defer sched.Close()

	for _, size := range []struct{ w, h int }{{256, 256}, {320, 240}, {256, 256}} {
		source := newColorTexture(t, ex, "src", size.w, size.h)
		motion := newColorTexture(t, ex, "motion", size.w, size.h)
		dest := newColorTexture(t, ex, "dst", size.w, size.h)
		writeTestScene(ex, source, motion)

		path := sched.ProcessFrame(newFrame(source, motion, size.w, size.h), dest)
		assert.Equal(t, PathAsync, path, "size %dx%d", size.w, size.h)
		ex.Flush()
	}
}

// TestFrameBlendingGhosts tests that with blending enabled a frame carries a
// visible contribution from the previous one.
func TestFrameBlendingGhosts(t *testing.T) {
	t.Parallel()
	ex := executor.NewSoftwareExecutor(executor.WithWorkerCount(2))
	defer ex.Close()

	const w, h = 256, 256
	source := newColorTexture(t, ex, "src", w, h)
	motion := newColorTexture(t, ex, "motion", w, h)
	dest := newColorTexture(t, ex, "dst", w, h)

	// Static scene: zero motion keeps the reconstruction an identity, so the
	// blend contribution is isolated.
	fillUniform(ex, motion, 0, 0, 0.5, 0)

	sched := NewDualPathScheduler(ex, WithShutterAngle(270), WithFrameBlending(0.5))
	require.NoError(t, sched.Open())
	defer sched.Close()

	fillUniform(ex, source, 1, 0, 0, 1)
	frame1 := newFrame(source, motion, w, h)
	frame1.Time = 1.0
	require.Equal(t, PathInline, sched.ProcessFrame(frame1, dest))
	ex.Flush()

	fillUniform(ex, source, 0, 0, 1, 1)
	frame2 := newFrame(source, motion, w, h)
	frame2.Time = 1.02
	require.Equal(t, PathInline, sched.ProcessFrame(frame2, dest))

	weight := math.Exp(-0.02 * (80 + (16-80)*0.5))
	wantRed := weight / (1 + weight)

	got := ex.ReadTexture(dest)
	assert.InDelta(t, wantRed, got[0], 0.02, "previous red frame ghosts through")
	assert.Greater(t, got[2], float32(0.5), "current blue frame dominates")
}
