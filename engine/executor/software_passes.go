package executor

import (
	"math"

	"github.com/Carmen-Shannon/oxy-blur/common"
)

// Reference implementations of every filter pass. Each pass reads whole input
// planes and writes whole output planes; per-format quantization happens on
// store so the CPU path observes the same precision loss as the GPU path.

// store writes one texel, applying the format's quantization.
func (t *softTexture) store(x, y int, r, g, b, a float32) {
	i := (y*t.width + x) * 4
	switch t.format {
	case FormatR8:
		t.pix[i] = quantize8(r)
		t.pix[i+1], t.pix[i+2], t.pix[i+3] = 0, 0, 0
	case FormatRGBA8:
		t.pix[i] = quantize8(r)
		t.pix[i+1] = quantize8(g)
		t.pix[i+2] = quantize8(b)
		t.pix[i+3] = quantize8(a)
	default:
		// Half/float formats carry enough precision that quantization is not
		// modeled for them.
		t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3] = r, g, b, a
	}
}

// at reads one texel with clamp-to-edge addressing.
func (t *softTexture) at(x, y int) (float32, float32, float32, float32) {
	x = common.Clamp(x, 0, t.width-1)
	y = common.Clamp(y, 0, t.height-1)
	i := (y*t.width + x) * 4
	return t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3]
}

// bilinear samples the texture at a continuous texel position with
// clamp-to-edge addressing.
func (t *softTexture) bilinear(fx, fy float32) (float32, float32, float32, float32) {
	fx -= 0.5
	fy -= 0.5
	x0 := int(math.Floor(float64(fx)))
	y0 := int(math.Floor(float64(fy)))
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	r00, g00, b00, a00 := t.at(x0, y0)
	r10, g10, b10, a10 := t.at(x0+1, y0)
	r01, g01, b01, a01 := t.at(x0, y0+1)
	r11, g11, b11, a11 := t.at(x0+1, y0+1)

	lerp2 := func(v00, v10, v01, v11 float32) float32 {
		return common.Lerp(common.Lerp(v00, v10, tx), common.Lerp(v01, v11, tx), ty)
	}
	return lerp2(r00, r10, r01, r11), lerp2(g00, g10, g01, g11), lerp2(b00, b10, b01, b11), lerp2(a00, a10, a01, a11)
}

func quantize8(v float32) float32 {
	v = common.Clamp(v, 0, 1)
	return float32(math.Round(float64(v)*255)) / 255
}

func magnitude(x, y float32) float32 {
	return float32(math.Sqrt(float64(x*x + y*y)))
}

func (e *softwareExecutor) execPass(kind PassKind, c PassConstants, inputs []Texture, outputs []Texture) {
	soft := func(t Texture) *softTexture { return t.(*softTexture) }

	switch kind {
	case PassCopy:
		e.passCopy(soft(inputs[0]), soft(outputs[0]))
	case PassVelocitySetup:
		e.passVelocitySetup(c, soft(inputs[0]), soft(outputs[0]))
	case PassTileMax2:
		e.passTileMax2(soft(inputs[0]), soft(outputs[0]))
	case PassTileMaxVariable:
		e.passTileMaxVariable(c, soft(inputs[0]), soft(outputs[0]))
	case PassNeighborMax:
		e.passNeighborMax(soft(inputs[0]), soft(outputs[0]))
	case PassReconstruct:
		e.execReconstruct(c, inputs, outputs[0], soft(outputs[0]).width, soft(outputs[0]).height)
	case PassHistoryPack:
		if len(outputs) == 2 {
			e.passHistoryPackPlanes(soft(inputs[0]), soft(outputs[0]), soft(outputs[1]))
		} else {
			e.passCopy(soft(inputs[0]), soft(outputs[0]))
		}
	case PassBlendRaw:
		e.passBlendRaw(c, inputs, soft(outputs[0]))
	case PassBlendPacked:
		e.passBlendPacked(c, inputs, soft(outputs[0]))
	}
}

func (e *softwareExecutor) passCopy(src, dst *softTexture) {
	sameSize := src.width == dst.width && src.height == dst.height
	e.forEachRow(dst.height, func(y int) {
		for x := 0; x < dst.width; x++ {
			var r, g, b, a float32
			if sameSize {
				r, g, b, a = src.at(x, y)
			} else {
				fx := (float32(x) + 0.5) * float32(src.width) / float32(dst.width)
				fy := (float32(y) + 0.5) * float32(src.height) / float32(dst.height)
				r, g, b, a = src.bilinear(fx, fy)
			}
			dst.store(x, y, r, g, b, a)
		}
	})
}

// passVelocitySetup scales raw motion by VelocityScale, optionally removes
// the camera-only contribution via reprojection, bounds the result to
// MaxBlurRadius, and packs it with linearized depth.
func (e *softwareExecutor) passVelocitySetup(c PassConstants, motion, dst *softTexture) {
	w := float32(dst.width)
	h := float32(dst.height)

	e.forEachRow(dst.height, func(y int) {
		for x := 0; x < dst.width; x++ {
			mx, my, depth, _ := motion.at(x, y)

			if c.FilterCameraMotion {
				cx, cy, ok := cameraDisplacement(c, float32(x)+0.5, float32(y)+0.5, depth, w, h)
				if ok {
					mx -= cx
					my -= cy
				}
			}

			vx := mx * c.VelocityScale
			vy := my * c.VelocityScale
			if mag := magnitude(vx, vy); mag > c.MaxBlurRadius && mag > 0 {
				scale := c.MaxBlurRadius / mag
				vx *= scale
				vy *= scale
			}

			dst.store(x, y, vx, vy, linearizeDepth(depth, c), 0)
		}
	})
}

// cameraDisplacement reprojects a pixel through the previous view-projection
// and returns the camera-induced screen displacement in pixels.
func cameraDisplacement(c PassConstants, px, py, depth, w, h float32) (float32, float32, bool) {
	ndcX := px/w*2 - 1
	ndcY := 1 - py/h*2

	wx, wy, wz, ww := common.TransformPoint(c.InvViewProj[:], ndcX, ndcY, depth, 1)
	if ww == 0 {
		return 0, 0, false
	}
	wx /= ww
	wy /= ww
	wz /= ww

	qx, qy, _, qw := common.TransformPoint(c.PrevViewProj[:], wx, wy, wz, 1)
	if qw == 0 {
		return 0, 0, false
	}
	prevX := (qx/qw + 1) * 0.5 * w
	prevY := (1 - qy/qw) * 0.5 * h

	return px - prevX, py - prevY, true
}

func linearizeDepth(d float32, c PassConstants) float32 {
	if c.ReversedDepth {
		d = 1 - d
	}
	denom := c.FarClip - d*(c.FarClip-c.NearClip)
	if denom < 1e-6 {
		denom = 1e-6
	}
	return c.NearClip * c.FarClip / denom
}

func (e *softwareExecutor) passTileMax2(src, dst *softTexture) {
	e.forEachRow(dst.height, func(y int) {
		for x := 0; x < dst.width; x++ {
			var br, bg, bb, ba, bm float32
			for j := 0; j < 2; j++ {
				for i := 0; i < 2; i++ {
					r, g, b, a := src.at(x*2+i, y*2+j)
					if m := magnitude(r, g); m >= bm {
						br, bg, bb, ba, bm = r, g, b, a, m
					}
				}
			}
			dst.store(x, y, br, bg, bb, ba)
		}
	})
}

func (e *softwareExecutor) passTileMaxVariable(c PassConstants, src, dst *softTexture) {
	n := max(c.TileMaxLoop, 1)
	e.forEachRow(dst.height, func(y int) {
		for x := 0; x < dst.width; x++ {
			var br, bg, bb, ba, bm float32
			for j := 0; j < n; j++ {
				for i := 0; i < n; i++ {
					r, g, b, a := src.at(x*n+i, y*n+j)
					if m := magnitude(r, g); m >= bm {
						br, bg, bb, ba, bm = r, g, b, a, m
					}
				}
			}
			dst.store(x, y, br, bg, bb, ba)
		}
	})
}

func (e *softwareExecutor) passNeighborMax(src, dst *softTexture) {
	e.forEachRow(dst.height, func(y int) {
		for x := 0; x < dst.width; x++ {
			var br, bg, bb, ba, bm float32
			for j := -1; j <= 1; j++ {
				for i := -1; i <= 1; i++ {
					r, g, b, a := src.at(x+i, y+j)
					if m := magnitude(r, g); m >= bm {
						br, bg, bb, ba, bm = r, g, b, a, m
					}
				}
			}
			dst.store(x, y, br, bg, bb, ba)
		}
	})
}

// execReconstruct walks LoopCount steps in each direction along the tile's
// dominant velocity, weighting samples by depth classification and by how far
// each sample's own blur reaches. maxW/maxH bound the written region when the
// pass runs as a kernel dispatch over fixed-size thread groups.
func (e *softwareExecutor) execReconstruct(c PassConstants, inputs []Texture, output Texture, maxW, maxH int) {
	src := inputs[0].(*softTexture)
	vel := inputs[1].(*softTexture)
	nmax := inputs[2].(*softTexture)
	dst := output.(*softTexture)

	width := min(dst.width, maxW)
	height := min(dst.height, maxH)
	count := max(c.LoopCount, 1)

	e.forEachRow(height, func(y int) {
		for x := 0; x < width; x++ {
			cr, cg, cb, ca := src.at(x, y)

			tx := x * nmax.width / src.width
			ty := y * nmax.height / src.height
			vmx, vmy, _, _ := nmax.at(tx, ty)

			// Sub-pixel dominant motion: nothing to gather.
			if magnitude(vmx, vmy) < 0.5 {
				dst.store(x, y, cr, cg, cb, ca)
				continue
			}

			vcx, vcy, zc, _ := vel.at(x, y)
			centerSpeed := magnitude(vcx, vcy)

			accR, accG, accB, accA := cr, cg, cb, ca
			total := float32(1)

			for s := 1; s <= count; s++ {
				for _, dir := range [2]float32{-1, 1} {
					t := dir * float32(s) / float32(count)
					dx := vmx * t * 0.5
					dy := vmy * t * 0.5
					qx := float32(x) + 0.5 + dx
					qy := float32(y) + 0.5 + dy

					vsx, vsy, zs, _ := vel.bilinear(qx, qy)
					sampleSpeed := magnitude(vsx, vsy)
					dist := magnitude(dx, dy)
					if dist < 1e-4 {
						dist = 1e-4
					}

					// Foreground fraction from soft linear-depth comparison:
					// samples nearer than the center occlude it fully.
					soft := max(zc*0.05, 1e-3)
					fg := common.Clamp(1-(zs-zc)/soft, 0, 1)

					w := fg*common.Clamp(sampleSpeed*0.5/dist, 0, 1) +
						(1-fg)*common.Clamp(centerSpeed*0.5/dist, 0, 1)

					sr, sg, sb, sa := src.bilinear(qx, qy)
					accR += sr * w
					accG += sg * w
					accB += sb * w
					accA += sa * w
					total += w
				}
			}

			dst.store(x, y, accR/total, accG/total, accB/total, accA/total)
		}
	})
}

// passHistoryPackPlanes converts color to a full-resolution luma plane and an
// interleaved 4:2:2 chroma plane: even columns carry Cb, odd columns Cr, each
// computed from the horizontally averaged pixel pair.
func (e *softwareExecutor) passHistoryPackPlanes(src, luma, chroma *softTexture) {
	e.forEachRow(luma.height, func(y int) {
		for x := 0; x < luma.width; x++ {
			r, g, b, _ := src.at(x, y)
			luma.store(x, y, lumaOf(r, g, b), 0, 0, 0)
		}
	})
	e.forEachRow(chroma.height, func(y int) {
		for x := 0; x < chroma.width; x++ {
			pair := x &^ 1
			r0, g0, b0, _ := src.at(pair, y)
			r1, g1, b1, _ := src.at(pair+1, y)
			r := (r0 + r1) * 0.5
			g := (g0 + g1) * 0.5
			b := (b0 + b1) * 0.5
			yv := lumaOf(r, g, b)
			var v float32
			if x%2 == 0 {
				v = (b-yv)*0.564 + 0.5
			} else {
				v = (r-yv)*0.713 + 0.5
			}
			chroma.store(x, y, v, 0, 0, 0)
		}
	})
}

func lumaOf(r, g, b float32) float32 {
	return 0.299*r + 0.587*g + 0.114*b
}

func (e *softwareExecutor) passBlendRaw(c PassConstants, inputs []Texture, dst *softTexture) {
	src := inputs[0].(*softTexture)
	e.forEachRow(dst.height, func(y int) {
		for x := 0; x < dst.width; x++ {
			r, g, b, a := src.at(x, y)
			total := float32(1)
			for i := 0; i < c.HistoryCount; i++ {
				h := inputs[1+i].(*softTexture)
				w := c.HistoryWeights[i]
				hr, hg, hb, ha := h.at(x, y)
				r += hr * w
				g += hg * w
				b += hb * w
				a += ha * w
				total += w
			}
			dst.store(x, y, r/total, g/total, b/total, a/total)
		}
	})
}

func (e *softwareExecutor) passBlendPacked(c PassConstants, inputs []Texture, dst *softTexture) {
	src := inputs[0].(*softTexture)
	e.forEachRow(dst.height, func(y int) {
		for x := 0; x < dst.width; x++ {
			r, g, b, a := src.at(x, y)
			total := float32(1)
			for i := 0; i < c.HistoryCount; i++ {
				luma := inputs[1+i*2].(*softTexture)
				chroma := inputs[2+i*2].(*softTexture)
				w := c.HistoryWeights[i]
				hr, hg, hb := unpackYCbCr(luma, chroma, x, y)
				r += hr * w
				g += hg * w
				b += hb * w
				a += w
				total += w
			}
			dst.store(x, y, r/total, g/total, b/total, a/total)
		}
	})
}

func unpackYCbCr(luma, chroma *softTexture, x, y int) (float32, float32, float32) {
	yv, _, _, _ := luma.at(x, y)
	pair := x &^ 1
	cbv, _, _, _ := chroma.at(pair, y)
	crv, _, _, _ := chroma.at(pair+1, y)
	cb := cbv - 0.5
	cr := crv - 0.5
	return yv + 1.403*cr, yv - 0.344*cb - 0.714*cr, yv + 1.773*cb
}
