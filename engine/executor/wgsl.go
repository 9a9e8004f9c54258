package executor

import "fmt"

// Embedded WGSL compute kernels, one per pass kind. Every kernel shares the
// PassConstants uniform block at binding 0 and a workgroup size of 8x8. The
// storage texture format of each output binding is compile-time in WGSL, so
// kernel source is generated per (pass kind, output format) pair and the
// resulting pipelines are cached.

const kernelEntryPoint = "main"

const wgslCommon = `
struct PassConstants {
    view_proj: mat4x4<f32>,
    inv_view_proj: mat4x4<f32>,
    prev_view_proj: mat4x4<f32>,
    inv_proj: mat4x4<f32>,
    screen_size: vec2<u32>,
    velocity_scale: f32,
    max_blur_radius: f32,
    tile_max_offset: f32,
    tile_max_loop: u32,
    loop_count: u32,
    near_clip: f32,
    far_clip: f32,
    reversed_depth: u32,
    filter_camera_motion: u32,
    blend_strength: f32,
    history_count: u32,
    time: f32,
    _pad0: f32,
    _pad1: f32,
    history_weights: vec4<f32>,
}

@group(0) @binding(0) var<uniform> cst: PassConstants;

fn load_clamped(t: texture_2d<f32>, p: vec2<i32>) -> vec4<f32> {
    let dims = vec2<i32>(textureDimensions(t));
    return textureLoad(t, clamp(p, vec2<i32>(0), dims - vec2<i32>(1)), 0);
}

fn sample_bilinear(t: texture_2d<f32>, fp: vec2<f32>) -> vec4<f32> {
    let p = fp - vec2<f32>(0.5);
    let p0 = vec2<i32>(floor(p));
    let f = p - vec2<f32>(p0);
    let c00 = load_clamped(t, p0);
    let c10 = load_clamped(t, p0 + vec2<i32>(1, 0));
    let c01 = load_clamped(t, p0 + vec2<i32>(0, 1));
    let c11 = load_clamped(t, p0 + vec2<i32>(1, 1));
    return mix(mix(c00, c10, f.x), mix(c01, c11, f.x), f.y);
}

fn luma_of(c: vec3<f32>) -> f32 {
    return dot(c, vec3<f32>(0.299, 0.587, 0.114));
}
`

// copy resamples input 0 into output 0. For equal sizes the bilinear sample
// lands exactly on the source texel center, so one path covers both cases.
const wgslCopy = `
@group(0) @binding(1) var src_tex: texture_2d<f32>;
@group(0) @binding(2) var dst_tex: texture_storage_2d<%s, write>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let dims = textureDimensions(dst_tex);
    if (gid.x >= dims.x || gid.y >= dims.y) {
        return;
    }
    let sdims = textureDimensions(src_tex);
    let q = (vec2<f32>(gid.xy) + vec2<f32>(0.5)) * vec2<f32>(sdims) / vec2<f32>(dims);
    textureStore(dst_tex, vec2<i32>(gid.xy), sample_bilinear(src_tex, q));
}
`

const wgslVelocitySetup = `
@group(0) @binding(1) var motion_tex: texture_2d<f32>;
@group(0) @binding(2) var dst_tex: texture_storage_2d<%s, write>;

fn linearize_depth(d_in: f32) -> f32 {
    var d = d_in;
    if (cst.reversed_depth != 0u) {
        d = 1.0 - d;
    }
    let denom = max(cst.far_clip - d * (cst.far_clip - cst.near_clip), 1e-6);
    return cst.near_clip * cst.far_clip / denom;
}

fn camera_displacement(px: vec2<f32>, depth: f32, size: vec2<f32>) -> vec2<f32> {
    let ndc = vec2<f32>(px.x / size.x * 2.0 - 1.0, 1.0 - px.y / size.y * 2.0);
    let world = cst.inv_view_proj * vec4<f32>(ndc, depth, 1.0);
    if (world.w == 0.0) {
        return vec2<f32>(0.0);
    }
    let wp = world.xyz / world.w;
    let prev = cst.prev_view_proj * vec4<f32>(wp, 1.0);
    if (prev.w == 0.0) {
        return vec2<f32>(0.0);
    }
    let prev_px = vec2<f32>((prev.x / prev.w + 1.0) * 0.5 * size.x,
        (1.0 - prev.y / prev.w) * 0.5 * size.y);
    return px - prev_px;
}

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let dims = textureDimensions(dst_tex);
    if (gid.x >= dims.x || gid.y >= dims.y) {
        return;
    }
    let p = vec2<i32>(gid.xy);
    let m = textureLoad(motion_tex, p, 0);
    var mv = m.xy;
    if (cst.filter_camera_motion != 0u) {
        let px = vec2<f32>(gid.xy) + vec2<f32>(0.5);
        mv = mv - camera_displacement(px, m.z, vec2<f32>(dims));
    }
    var v = mv * cst.velocity_scale;
    let mag = length(v);
    if (mag > cst.max_blur_radius && mag > 0.0) {
        v = v * (cst.max_blur_radius / mag);
    }
    textureStore(dst_tex, p, vec4<f32>(v, linearize_depth(m.z), 0.0));
}
`

const wgslTileMax2 = `
@group(0) @binding(1) var src_tex: texture_2d<f32>;
@group(0) @binding(2) var dst_tex: texture_storage_2d<%s, write>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let dims = textureDimensions(dst_tex);
    if (gid.x >= dims.x || gid.y >= dims.y) {
        return;
    }
    let p = vec2<i32>(gid.xy);
    var best = vec4<f32>(0.0);
    var bm = 0.0;
    for (var j = 0; j < 2; j = j + 1) {
        for (var i = 0; i < 2; i = i + 1) {
            let c = load_clamped(src_tex, p * 2 + vec2<i32>(i, j));
            let m = length(c.xy);
            if (m >= bm) {
                best = c;
                bm = m;
            }
        }
    }
    textureStore(dst_tex, p, best);
}
`

const wgslTileMaxVariable = `
@group(0) @binding(1) var src_tex: texture_2d<f32>;
@group(0) @binding(2) var dst_tex: texture_storage_2d<%s, write>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let dims = textureDimensions(dst_tex);
    if (gid.x >= dims.x || gid.y >= dims.y) {
        return;
    }
    let p = vec2<i32>(gid.xy);
    let n = i32(max(cst.tile_max_loop, 1u));
    var best = vec4<f32>(0.0);
    var bm = 0.0;
    for (var j = 0; j < n; j = j + 1) {
        for (var i = 0; i < n; i = i + 1) {
            let c = load_clamped(src_tex, p * n + vec2<i32>(i, j));
            let m = length(c.xy);
            if (m >= bm) {
                best = c;
                bm = m;
            }
        }
    }
    textureStore(dst_tex, p, best);
}
`

const wgslNeighborMax = `
@group(0) @binding(1) var src_tex: texture_2d<f32>;
@group(0) @binding(2) var dst_tex: texture_storage_2d<%s, write>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let dims = textureDimensions(dst_tex);
    if (gid.x >= dims.x || gid.y >= dims.y) {
        return;
    }
    let p = vec2<i32>(gid.xy);
    var best = vec4<f32>(0.0);
    var bm = 0.0;
    for (var j = -1; j <= 1; j = j + 1) {
        for (var i = -1; i <= 1; i = i + 1) {
            let c = load_clamped(src_tex, p + vec2<i32>(i, j));
            let m = length(c.xy);
            if (m >= bm) {
                best = c;
                bm = m;
            }
        }
    }
    textureStore(dst_tex, p, best);
}
`

const wgslReconstruct = `
@group(0) @binding(1) var src_tex: texture_2d<f32>;
@group(0) @binding(2) var vel_tex: texture_2d<f32>;
@group(0) @binding(3) var nmax_tex: texture_2d<f32>;
@group(0) @binding(4) var dst_tex: texture_storage_2d<%s, write>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let dims = textureDimensions(dst_tex);
    if (gid.x >= dims.x || gid.y >= dims.y) {
        return;
    }
    let p = vec2<i32>(gid.xy);
    let center = textureLoad(src_tex, p, 0);

    let sdims = vec2<i32>(textureDimensions(src_tex));
    let ndims = vec2<i32>(textureDimensions(nmax_tex));
    let vmax = load_clamped(nmax_tex, p * ndims / sdims).xy;

    if (length(vmax) < 0.5) {
        textureStore(dst_tex, p, center);
        return;
    }

    let vc = textureLoad(vel_tex, p, 0);
    let center_speed = length(vc.xy);
    let zc = vc.z;
    let soft = max(zc * 0.05, 1e-3);

    var acc = center;
    var total = 1.0;
    let count = max(cst.loop_count, 1u);
    for (var s = 1u; s <= count; s = s + 1u) {
        for (var d = 0u; d < 2u; d = d + 1u) {
            var dir = 1.0;
            if (d == 0u) {
                dir = -1.0;
            }
            let t = dir * f32(s) / f32(count);
            let disp = vmax * t * 0.5;
            let q = vec2<f32>(p) + vec2<f32>(0.5) + disp;

            let vs = sample_bilinear(vel_tex, q);
            let sample_speed = length(vs.xy);
            let dist = max(length(disp), 1e-4);

            let fg = clamp(1.0 - (vs.z - zc) / soft, 0.0, 1.0);
            let w = fg * clamp(sample_speed * 0.5 / dist, 0.0, 1.0) +
                (1.0 - fg) * clamp(center_speed * 0.5 / dist, 0.0, 1.0);

            acc = acc + sample_bilinear(src_tex, q) * w;
            total = total + w;
        }
    }
    textureStore(dst_tex, p, acc / total);
}
`

// history_pack writes the full-resolution luma plane and the interleaved
// 4:2:2 chroma plane in one dispatch: even columns carry Cb, odd columns Cr,
// each derived from the horizontally averaged pixel pair.
const wgslHistoryPack = `
@group(0) @binding(1) var src_tex: texture_2d<f32>;
@group(0) @binding(2) var luma_tex: texture_storage_2d<r8unorm, write>;
@group(0) @binding(3) var chroma_tex: texture_storage_2d<r8unorm, write>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let dims = textureDimensions(luma_tex);
    if (gid.x >= dims.x || gid.y >= dims.y) {
        return;
    }
    let p = vec2<i32>(gid.xy);
    let c = textureLoad(src_tex, p, 0);
    textureStore(luma_tex, p, vec4<f32>(luma_of(c.rgb), 0.0, 0.0, 0.0));

    let pair = (p.x / 2) * 2;
    let c0 = textureLoad(src_tex, vec2<i32>(pair, p.y), 0);
    let c1 = load_clamped(src_tex, vec2<i32>(pair + 1, p.y));
    let avg = (c0.rgb + c1.rgb) * 0.5;
    let yv = luma_of(avg);
    var v = (avg.b - yv) * 0.564 + 0.5;
    if ((gid.x & 1u) != 0u) {
        v = (avg.r - yv) * 0.713 + 0.5;
    }
    textureStore(chroma_tex, p, vec4<f32>(v, 0.0, 0.0, 0.0));
}
`

// blend_raw always binds four history textures; history_count guards which of
// them contribute, so unused slots can alias the source texture.
const wgslBlendRaw = `
@group(0) @binding(1) var src_tex: texture_2d<f32>;
@group(0) @binding(2) var hist0_tex: texture_2d<f32>;
@group(0) @binding(3) var hist1_tex: texture_2d<f32>;
@group(0) @binding(4) var hist2_tex: texture_2d<f32>;
@group(0) @binding(5) var hist3_tex: texture_2d<f32>;
@group(0) @binding(6) var dst_tex: texture_storage_2d<%s, write>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let dims = textureDimensions(dst_tex);
    if (gid.x >= dims.x || gid.y >= dims.y) {
        return;
    }
    let p = vec2<i32>(gid.xy);
    var acc = textureLoad(src_tex, p, 0);
    var total = 1.0;
    let w = cst.history_weights;
    if (cst.history_count > 0u) {
        acc = acc + textureLoad(hist0_tex, p, 0) * w.x;
        total = total + w.x;
    }
    if (cst.history_count > 1u) {
        acc = acc + textureLoad(hist1_tex, p, 0) * w.y;
        total = total + w.y;
    }
    if (cst.history_count > 2u) {
        acc = acc + textureLoad(hist2_tex, p, 0) * w.z;
        total = total + w.z;
    }
    if (cst.history_count > 3u) {
        acc = acc + textureLoad(hist3_tex, p, 0) * w.w;
        total = total + w.w;
    }
    textureStore(dst_tex, p, acc / total);
}
`

const wgslBlendPacked = `
@group(0) @binding(1) var src_tex: texture_2d<f32>;
@group(0) @binding(2) var luma0_tex: texture_2d<f32>;
@group(0) @binding(3) var chroma0_tex: texture_2d<f32>;
@group(0) @binding(4) var luma1_tex: texture_2d<f32>;
@group(0) @binding(5) var chroma1_tex: texture_2d<f32>;
@group(0) @binding(6) var luma2_tex: texture_2d<f32>;
@group(0) @binding(7) var chroma2_tex: texture_2d<f32>;
@group(0) @binding(8) var luma3_tex: texture_2d<f32>;
@group(0) @binding(9) var chroma3_tex: texture_2d<f32>;
@group(0) @binding(10) var dst_tex: texture_storage_2d<%s, write>;

fn unpack_ycbcr(l: texture_2d<f32>, ch: texture_2d<f32>, p: vec2<i32>) -> vec3<f32> {
    let yv = textureLoad(l, p, 0).x;
    let pair = (p.x / 2) * 2;
    let cb = textureLoad(ch, vec2<i32>(pair, p.y), 0).x - 0.5;
    let cr = load_clamped(ch, vec2<i32>(pair + 1, p.y)).x - 0.5;
    return vec3<f32>(yv + 1.403 * cr, yv - 0.344 * cb - 0.714 * cr, yv + 1.773 * cb);
}

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let dims = textureDimensions(dst_tex);
    if (gid.x >= dims.x || gid.y >= dims.y) {
        return;
    }
    let p = vec2<i32>(gid.xy);
    var acc = textureLoad(src_tex, p, 0);
    var total = 1.0;
    let w = cst.history_weights;
    if (cst.history_count > 0u) {
        acc = acc + vec4<f32>(unpack_ycbcr(luma0_tex, chroma0_tex, p) * w.x, w.x);
        total = total + w.x;
    }
    if (cst.history_count > 1u) {
        acc = acc + vec4<f32>(unpack_ycbcr(luma1_tex, chroma1_tex, p) * w.y, w.y);
        total = total + w.y;
    }
    if (cst.history_count > 2u) {
        acc = acc + vec4<f32>(unpack_ycbcr(luma2_tex, chroma2_tex, p) * w.z, w.z);
        total = total + w.z;
    }
    if (cst.history_count > 3u) {
        acc = acc + vec4<f32>(unpack_ycbcr(luma3_tex, chroma3_tex, p) * w.w, w.w);
        total = total + w.w;
    }
    textureStore(dst_tex, p, acc / total);
}
`

// wgslStorageFormat returns the WGSL texel format name for a storage texture
// declaration.
//
// Parameters:
//   - f: the texture format
//
// Returns:
//   - string: the WGSL texel format name
//   - error: an error if the format has no WGSL storage equivalent
func wgslStorageFormat(f Format) (string, error) {
	switch f {
	case FormatRGBA8:
		return "rgba8unorm", nil
	case FormatRGBAHalf:
		return "rgba16float", nil
	case FormatRGBAFloat:
		return "rgba32float", nil
	case FormatRGHalf:
		return "rg16float", nil
	case FormatR8:
		return "r8unorm", nil
	default:
		return "", fmt.Errorf("format %s has no WGSL storage texel format", f)
	}
}

// wgslPassSource assembles the complete WGSL module for a pass kind with the
// given output format.
//
// Parameters:
//   - kind: the pass kind
//   - outFormat: the format of the storage texture output
//
// Returns:
//   - string: the WGSL module source
//   - error: an error if the kind or format is unsupported
func wgslPassSource(kind PassKind, outFormat Format) (string, error) {
	var tmpl string
	switch kind {
	case PassCopy:
		tmpl = wgslCopy
	case PassVelocitySetup:
		tmpl = wgslVelocitySetup
	case PassTileMax2:
		tmpl = wgslTileMax2
	case PassTileMaxVariable:
		tmpl = wgslTileMaxVariable
	case PassNeighborMax:
		tmpl = wgslNeighborMax
	case PassReconstruct:
		tmpl = wgslReconstruct
	case PassHistoryPack:
		// Both planes are r8unorm; the template hard-codes them.
		return wgslCommon + wgslHistoryPack, nil
	case PassBlendRaw:
		tmpl = wgslBlendRaw
	case PassBlendPacked:
		tmpl = wgslBlendPacked
	default:
		return "", fmt.Errorf("pass kind %s has no kernel", kind)
	}

	name, err := wgslStorageFormat(outFormat)
	if err != nil {
		return "", err
	}
	return wgslCommon + fmt.Sprintf(tmpl, name), nil
}
