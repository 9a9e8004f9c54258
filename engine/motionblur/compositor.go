package motionblur

import (
	"log"

	"github.com/Carmen-Shannon/oxy-blur/common"
	"github.com/Carmen-Shannon/oxy-blur/engine/executor"
)

// FrameBlendCompositor accumulates the current frame with decay-weighted
// history frames in a single combined pass, then records the pre-blend frame
// into its history store.
type FrameBlendCompositor interface {
	// History returns the compositor's owned history store.
	//
	// Returns:
	//   - FrameHistoryStore: the store
	History() FrameHistoryStore

	// Blend writes (source + sum(w_i * history_i)) / (1 + sum(w_i)) to dest,
	// then pushes source into the history ring with capture time now. Exactly
	// one frame enters the ring per call. A push failure leaves the blended
	// output intact and the ring unchanged.
	//
	// Parameters:
	//   - tl: the timeline to record on
	//   - strength: the blend strength, clamped to [0, 1]
	//   - source: the frame to blend and record (typically the reconstruction
	//     result)
	//   - dest: the output color texture
	//   - now: the current frame time in seconds
	Blend(tl executor.Timeline, strength float32, source, dest executor.Texture, now float64)

	// Release frees the history store's textures.
	Release()
}

type frameBlendCompositorImpl struct {
	ex      executor.Executor
	history FrameHistoryStore

	width, height int
}

var _ FrameBlendCompositor = &frameBlendCompositorImpl{}

// NewFrameBlendCompositor creates a compositor with its own history store for
// frames of a fixed resolution.
//
// Parameters:
//   - ex: the executor to record passes on (must not be nil)
//   - width: frame width in pixels
//   - height: frame height in pixels
//
// Returns:
//   - FrameBlendCompositor: the newly created compositor
func NewFrameBlendCompositor(ex executor.Executor, width, height int) FrameBlendCompositor {
	if ex == nil {
		panic("motionblur: executor is required to create a compositor")
	}
	return &frameBlendCompositorImpl{
		ex:      ex,
		history: NewFrameHistoryStore(ex, width, height),
		width:   width,
		height:  height,
	}
}

func (c *frameBlendCompositorImpl) History() FrameHistoryStore {
	return c.history
}

func (c *frameBlendCompositorImpl) Blend(tl executor.Timeline, strength float32, source, dest executor.Texture, now float64) {
	strength = common.Clamp(strength, 0, 1)

	constants := executor.PassConstants{
		ScreenWidth:   c.width,
		ScreenHeight:  c.height,
		BlendStrength: strength,
		Time:          now,
	}

	packed := c.history.Encoding() == EncodingPacked
	inputs := make([]executor.Texture, 0, 1+2*historySlots)
	inputs = append(inputs, source)

	for offset := 0; offset < historySlots; offset++ {
		frame := c.history.Frame(offset)
		if frame.Empty() {
			break
		}
		constants.HistoryWeights[constants.HistoryCount] = c.history.Weight(offset, strength, now)
		constants.HistoryCount++
		if packed {
			inputs = append(inputs, frame.Luma, frame.Chroma)
		} else {
			inputs = append(inputs, frame.Color)
		}
	}

	if constants.HistoryCount == 0 {
		c.ex.RunPass(tl, executor.PassCopy, constants,
			[]executor.Texture{source}, []executor.Texture{dest})
	} else {
		kind := executor.PassBlendRaw
		if packed {
			kind = executor.PassBlendPacked
		}
		c.ex.RunPass(tl, kind, constants, inputs, []executor.Texture{dest})
	}

	if err := c.history.PushFrame(tl, source, now); err != nil {
		log.Printf("[MotionBlur] history push skipped: %v", err)
	}
}

func (c *frameBlendCompositorImpl) Release() {
	c.history.Release()
}
