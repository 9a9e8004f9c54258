package executor

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// gpuPassConstants is the GPU-aligned representation of PassConstants.
// Matches the WGSL PassConstants struct layout exactly (see wgslCommon).
// Size: 336 bytes (std140 / WGSL uniform aligned).
type gpuPassConstants struct {
	ViewProj     [16]float32 // offset   0: mat4x4<f32>
	InvViewProj  [16]float32 // offset  64: mat4x4<f32>
	PrevViewProj [16]float32 // offset 128: mat4x4<f32>
	InvProj      [16]float32 // offset 192: mat4x4<f32>

	ScreenWidth        uint32  // offset 256: screen_size.x (vec2<u32>)
	ScreenHeight       uint32  // offset 260: screen_size.y
	VelocityScale      float32 // offset 264
	MaxBlurRadius      float32 // offset 268
	TileMaxOffset      float32 // offset 272
	TileMaxLoop        uint32  // offset 276
	LoopCount          uint32  // offset 280
	NearClip           float32 // offset 284
	FarClip            float32 // offset 288
	ReversedDepth      uint32  // offset 292
	FilterCameraMotion uint32  // offset 296
	BlendStrength      float32 // offset 300
	HistoryCount       uint32  // offset 304
	Time               float32 // offset 308
	_pad0              float32 // offset 312
	_pad1              float32 // offset 316

	HistoryWeights [4]float32 // offset 320: vec4<f32>, 16-byte aligned
}

// newGPUPassConstants converts the CPU-side constant block to its GPU layout.
func newGPUPassConstants(c PassConstants) gpuPassConstants {
	g := gpuPassConstants{
		ViewProj:      c.ViewProj,
		InvViewProj:   c.InvViewProj,
		PrevViewProj:  c.PrevViewProj,
		InvProj:       c.InvProj,
		ScreenWidth:   uint32(c.ScreenWidth),
		ScreenHeight:  uint32(c.ScreenHeight),
		VelocityScale: c.VelocityScale,
		MaxBlurRadius: c.MaxBlurRadius,
		TileMaxOffset: c.TileMaxOffset,
		TileMaxLoop:   uint32(max(c.TileMaxLoop, 0)),
		LoopCount:     uint32(max(c.LoopCount, 0)),
		NearClip:      c.NearClip,
		FarClip:       c.FarClip,
		BlendStrength: c.BlendStrength,
		HistoryCount:  uint32(max(c.HistoryCount, 0)),
		Time:          float32(c.Time),
	}
	if c.ReversedDepth {
		g.ReversedDepth = 1
	}
	if c.FilterCameraMotion {
		g.FilterCameraMotion = 1
	}
	copy(g.HistoryWeights[:], c.HistoryWeights[:])
	return g
}

// Size returns the size of the gpuPassConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (336)
func (g *gpuPassConstants) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the gpuPassConstants struct into a byte buffer suitable
// for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *gpuPassConstants) Marshal() []byte {
	buf := make([]byte, g.Size())
	putF32 := func(off int, v float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
	}
	putU32 := func(off int, v uint32) {
		binary.LittleEndian.PutUint32(buf[off:], v)
	}

	mats := [4][16]float32{g.ViewProj, g.InvViewProj, g.PrevViewProj, g.InvProj}
	for m := range mats {
		for i := range 16 {
			putF32(m*64+i*4, mats[m][i])
		}
	}

	putU32(256, g.ScreenWidth)
	putU32(260, g.ScreenHeight)
	putF32(264, g.VelocityScale)
	putF32(268, g.MaxBlurRadius)
	putF32(272, g.TileMaxOffset)
	putU32(276, g.TileMaxLoop)
	putU32(280, g.LoopCount)
	putF32(284, g.NearClip)
	putF32(288, g.FarClip)
	putU32(292, g.ReversedDepth)
	putU32(296, g.FilterCameraMotion)
	putF32(300, g.BlendStrength)
	putU32(304, g.HistoryCount)
	putF32(308, g.Time)
	putF32(312, 0) // _pad0
	putF32(316, 0) // _pad1
	for i := range 4 {
		putF32(320+i*4, g.HistoryWeights[i])
	}
	return buf
}
