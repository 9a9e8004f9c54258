package motionblur

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-blur/common"
	"github.com/Carmen-Shannon/oxy-blur/engine/executor"
)

// historySlots is the fixed ring depth of the frame history store.
const historySlots = 4

// HistoryEncoding selects how stored frames are encoded. The encoding is
// fixed per store instance at construction from the backend's capabilities.
type HistoryEncoding int

const (
	// EncodingPacked stores a full-resolution 8-bit luma plane plus an
	// interleaved 4:2:2 chroma plane (even columns Cb, odd columns Cr, each
	// from the averaged horizontal pixel pair). Needs MRT and R8 support.
	EncodingPacked HistoryEncoding = iota
	// EncodingRawHalf stores one RGBA16F color texture per frame.
	EncodingRawHalf
	// EncodingRaw8 stores one RGBA8 color texture per frame, the universal
	// fallback.
	EncodingRaw8
)

// String returns the encoding's name for logs.
func (e HistoryEncoding) String() string {
	switch e {
	case EncodingPacked:
		return "packed"
	case EncodingRawHalf:
		return "raw16f"
	case EncodingRaw8:
		return "raw8"
	default:
		return "unknown"
	}
}

// HistoryFrame is one stored slot. Packed frames carry Luma and Chroma; raw
// frames carry Color. An empty slot has a zero CaptureTime and nil textures.
type HistoryFrame struct {
	// CaptureTime is the frame time in seconds; zero marks an empty slot.
	CaptureTime float64
	// Luma and Chroma are the packed planes (EncodingPacked only).
	Luma, Chroma executor.Texture
	// Color is the raw color texture (raw encodings only).
	Color executor.Texture
}

// Empty reports whether the slot holds no frame.
func (h HistoryFrame) Empty() bool {
	return h.CaptureTime == 0
}

// FrameHistoryStore keeps the last four processed frames for temporal
// blending. Slot offset k holds the frame captured k pushes ago.
type FrameHistoryStore interface {
	// Encoding returns the encoding fixed at construction.
	//
	// Returns:
	//   - HistoryEncoding: the store's encoding
	Encoding() HistoryEncoding

	// PushFrame encodes source into a new slot 0 and rotates the ring,
	// releasing the evicted oldest slot's textures. Allocation happens before
	// the rotation, so on failure the ring is left unchanged.
	//
	// Parameters:
	//   - tl: the timeline to record the encode pass on
	//   - source: the color frame to store
	//   - captureTime: the frame time in seconds (must be non-zero)
	//
	// Returns:
	//   - error: an error if the slot textures could not be allocated
	PushFrame(tl executor.Timeline, source executor.Texture, captureTime float64) error

	// Weight returns the unnormalized blend weight of a slot: zero for empty
	// slots, otherwise exp((captureTime - now) * lerp(80, 16, strength)).
	// Higher strength decays slower, keeping older frames visible longer.
	//
	// Parameters:
	//   - offset: the slot offset (0 = most recent)
	//   - strength: the blend strength in [0, 1]
	//   - now: the current frame time in seconds
	//
	// Returns:
	//   - float32: the raw decay weight
	Weight(offset int, strength float32, now float64) float32

	// Frame returns the slot at the given offset.
	//
	// Parameters:
	//   - offset: the slot offset (0 = most recent)
	//
	// Returns:
	//   - HistoryFrame: the slot contents; empty if out of range or unused
	Frame(offset int) HistoryFrame

	// Release frees all stored slot textures. The store stays usable; the
	// ring is simply empty afterwards.
	Release()
}

type frameHistoryStoreImpl struct {
	ex            executor.Executor
	encoding      HistoryEncoding
	width, height int
	slots         [historySlots]HistoryFrame
}

var _ FrameHistoryStore = &frameHistoryStoreImpl{}

// NewFrameHistoryStore creates a store for frames of a fixed resolution,
// picking the richest encoding the backend supports.
//
// Parameters:
//   - ex: the executor owning the slot textures (must not be nil)
//   - width: frame width in pixels
//   - height: frame height in pixels
//
// Returns:
//   - FrameHistoryStore: the newly created store
func NewFrameHistoryStore(ex executor.Executor, width, height int) FrameHistoryStore {
	if ex == nil {
		panic("motionblur: executor is required to create a history store")
	}

	caps := ex.Capabilities()
	encoding := EncodingRaw8
	switch {
	case caps.MultipleRenderTargets && caps.Supports(executor.FormatR8):
		encoding = EncodingPacked
	case caps.Supports(executor.FormatRGBAHalf):
		encoding = EncodingRawHalf
	}

	return &frameHistoryStoreImpl{
		ex:       ex,
		encoding: encoding,
		width:    width,
		height:   height,
	}
}

func (s *frameHistoryStoreImpl) Encoding() HistoryEncoding {
	return s.encoding
}

func (s *frameHistoryStoreImpl) PushFrame(tl executor.Timeline, source executor.Texture, captureTime float64) error {
	next := HistoryFrame{CaptureTime: captureTime}
	var outputs []executor.Texture

	switch s.encoding {
	case EncodingPacked:
		luma, err := s.ex.CreateTexture(executor.TextureDesc{
			Label:  "mb_history_luma",
			Width:  s.width,
			Height: s.height,
			Format: executor.FormatR8,
		})
		if err != nil {
			return fmt.Errorf("failed to allocate history luma plane: %w", err)
		}
		chroma, err := s.ex.CreateTexture(executor.TextureDesc{
			Label:  "mb_history_chroma",
			Width:  s.width,
			Height: s.height,
			Format: executor.FormatR8,
		})
		if err != nil {
			s.ex.ReleaseTexture(luma)
			return fmt.Errorf("failed to allocate history chroma plane: %w", err)
		}
		next.Luma, next.Chroma = luma, chroma
		outputs = []executor.Texture{luma, chroma}
	default:
		format := executor.FormatRGBAHalf
		if s.encoding == EncodingRaw8 {
			format = executor.FormatRGBA8
		}
		color, err := s.ex.CreateTexture(executor.TextureDesc{
			Label:  "mb_history_color",
			Width:  s.width,
			Height: s.height,
			Format: format,
		})
		if err != nil {
			return fmt.Errorf("failed to allocate history frame: %w", err)
		}
		next.Color = color
		outputs = []executor.Texture{color}
	}

	s.ex.RunPass(tl, executor.PassHistoryPack, executor.PassConstants{
		ScreenWidth:  s.width,
		ScreenHeight: s.height,
		Time:         captureTime,
	}, []executor.Texture{source}, outputs)

	s.releaseSlot(historySlots - 1)
	copy(s.slots[1:], s.slots[:historySlots-1])
	s.slots[0] = next
	return nil
}

func (s *frameHistoryStoreImpl) Weight(offset int, strength float32, now float64) float32 {
	if offset < 0 || offset >= historySlots || s.slots[offset].Empty() {
		return 0
	}
	decay := common.Lerp(80, 16, common.Clamp(strength, 0, 1))
	return float32(math.Exp((s.slots[offset].CaptureTime - now) * float64(decay)))
}

func (s *frameHistoryStoreImpl) Frame(offset int) HistoryFrame {
	if offset < 0 || offset >= historySlots {
		return HistoryFrame{}
	}
	return s.slots[offset]
}

func (s *frameHistoryStoreImpl) Release() {
	for i := range s.slots {
		s.releaseSlot(i)
	}
}

func (s *frameHistoryStoreImpl) releaseSlot(i int) {
	slot := &s.slots[i]
	if slot.Luma != nil {
		s.ex.ReleaseTexture(slot.Luma)
	}
	if slot.Chroma != nil {
		s.ex.ReleaseTexture(slot.Chroma)
	}
	if slot.Color != nil {
		s.ex.ReleaseTexture(slot.Color)
	}
	*slot = HistoryFrame{}
}
