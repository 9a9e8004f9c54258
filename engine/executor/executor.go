// Package executor abstracts GPU filter-pass execution behind a backend
// interface. Commands are issued to one of two ordered timelines (graphics
// and compute); ordering between timelines is established exclusively by
// fence signal/wait pairs recorded into the command streams, never by
// CPU-side blocking on the frame path.
//
// Two backends exist: a WebGPU backend for real GPU execution and a software
// backend that executes every pass numerically on the CPU. The software
// backend doubles as a simulated two-timeline executor for tests.
package executor

// Timeline identifies one of the two GPU command timelines an Executor
// exposes.
type Timeline int

const (
	// TimelineGraphics is the main timeline. It is always available and all
	// inline-path work is submitted here.
	TimelineGraphics Timeline = iota
	// TimelineCompute is the asynchronous compute timeline. Work submitted
	// here may overlap with graphics work; ordering against the graphics
	// timeline must be established with fences.
	TimelineCompute
)

// String returns a short name for the timeline, used in trace output and logs.
func (t Timeline) String() string {
	switch t {
	case TimelineGraphics:
		return "graphics"
	case TimelineCompute:
		return "compute"
	default:
		return "unknown"
	}
}

// Format enumerates the texture formats the motion blur pipeline can request.
// Backends report per-format support through Capabilities; callers fall back
// through ordered preference lists when a format is unsupported.
type Format int

const (
	// FormatUnknown is the zero value and never supported.
	FormatUnknown Format = iota
	// FormatRGBA8 is 8-bit-per-channel color, the universally available default.
	FormatRGBA8
	// FormatRGBAHalf is 16-bit float color, preferred for intermediate color data.
	FormatRGBAHalf
	// FormatRGBAFloat is 32-bit float color, the fallback for velocity/depth packing.
	FormatRGBAFloat
	// FormatRGHalf is a two-channel 16-bit float format.
	FormatRGHalf
	// FormatR8 is a single-channel 8-bit format, used for packed history planes.
	FormatR8
)

// String returns the format's name for labels and diagnostics.
func (f Format) String() string {
	switch f {
	case FormatRGBA8:
		return "rgba8"
	case FormatRGBAHalf:
		return "rgba16f"
	case FormatRGBAFloat:
		return "rgba32f"
	case FormatRGHalf:
		return "rg16f"
	case FormatR8:
		return "r8"
	default:
		return "unknown"
	}
}

// TextureDesc describes a texture to be created by an Executor.
type TextureDesc struct {
	// Label is a human-readable identifier used for GPU debug labels and
	// trace output.
	Label string
	// Width and Height are the texture dimensions in texels. Both must be positive.
	Width, Height int
	// Format is the requested texel format.
	Format Format
}

// Texture is an opaque handle to a backend-owned image. Handles are scoped to
// the Executor instance that created them and must be released through it.
type Texture interface {
	// Label returns the debug label the texture was created with.
	Label() string

	// Width returns the texture width in texels.
	Width() int

	// Height returns the texture height in texels.
	Height() int

	// Format returns the texel format the texture was created with.
	Format() Format
}

// Fence is an opaque one-way synchronization edge between timelines. A fence
// is signaled on exactly one timeline and waited on by the other; reuse
// across frames is not supported — create a fresh fence per edge.
type Fence interface {
	fence()
}

// Capabilities reports what an Executor backend can do. Queried once at
// component construction; the answers are fixed for the executor's lifetime.
type Capabilities struct {
	// AsyncCompute is true when the backend supports a compute timeline that
	// can overlap the graphics timeline, ordered by fences.
	AsyncCompute bool
	// ComputeKernels is true when the reconstruction compute kernel resource
	// is present on this backend.
	ComputeKernels bool
	// MultipleRenderTargets is true when a single pass may write several
	// outputs simultaneously (gates the packed history encoding).
	MultipleRenderTargets bool
	// Formats maps each Format to whether the backend supports it.
	Formats map[Format]bool
}

// Supports reports whether the backend supports the given texture format.
//
// Parameters:
//   - f: the format to query
//
// Returns:
//   - bool: true if textures of this format can be created and sampled
func (c Capabilities) Supports(f Format) bool {
	return c.Formats[f]
}

// Executor runs filter passes on GPU timelines. All methods that take a
// Timeline enqueue work; none of them block the CPU. Pass execution errors do
// not exist at this level — malformed submissions are programming errors and
// resource exhaustion surfaces through CreateTexture.
type Executor interface {
	// Capabilities returns the backend's fixed capability set.
	//
	// Returns:
	//   - Capabilities: the capability flags and format support table
	Capabilities() Capabilities

	// CreateTexture allocates a texture owned by this executor.
	//
	// Parameters:
	//   - desc: dimensions, format, and debug label for the texture
	//
	// Returns:
	//   - Texture: the opaque handle
	//   - error: an error if the format is unsupported or allocation fails
	CreateTexture(desc TextureDesc) (Texture, error)

	// ReleaseTexture frees a texture created by this executor. Safe to call
	// with nil. The handle must not be used afterwards.
	//
	// Parameters:
	//   - t: the texture to release
	ReleaseTexture(t Texture)

	// RunPass enqueues one filter pass on the given timeline. Inputs are read
	// whole; outputs are written whole. Passing more than one output requires
	// MultipleRenderTargets capability.
	//
	// Parameters:
	//   - tl: the timeline to record the pass on
	//   - kind: which filter pass to run
	//   - constants: per-invocation parameters (never backend-global state)
	//   - inputs: textures the pass reads
	//   - outputs: textures the pass writes
	RunPass(tl Timeline, kind PassKind, constants PassConstants, inputs []Texture, outputs []Texture)

	// DispatchKernel enqueues the reconstruction compute kernel over
	// groupsX x groupsY thread groups of 8x8 threads. All frame constants must
	// be supplied explicitly in constants; nothing is inherited from the
	// graphics timeline.
	//
	// Parameters:
	//   - tl: the timeline to record the dispatch on
	//   - constants: the full frame constant block
	//   - inputs: source, velocity, and neighbor-max textures, in that order
	//   - output: the reconstruction result texture
	//   - groupsX: thread group count along x (ceil(width/8))
	//   - groupsY: thread group count along y (ceil(height/8))
	DispatchKernel(tl Timeline, constants PassConstants, inputs []Texture, output Texture, groupsX, groupsY int)

	// ReleaseTargets records an explicit resource-state release barrier on the
	// timeline, unbinding all render targets. Required before handing buffers
	// written on one timeline to the other.
	//
	// Parameters:
	//   - tl: the timeline to record the barrier on
	ReleaseTargets(tl Timeline)

	// NewFence creates a fence usable for exactly one signal/wait edge.
	//
	// Returns:
	//   - Fence: the fence handle
	NewFence() Fence

	// SignalFence records a signal of f on the given timeline. All commands
	// recorded on tl before the signal complete before the fence is observed
	// signaled.
	//
	// Parameters:
	//   - tl: the timeline that signals
	//   - f: the fence to signal
	SignalFence(tl Timeline, f Fence)

	// WaitFence records a wait for f on the given timeline. Commands recorded
	// on tl after the wait do not begin until f has been signaled.
	//
	// Parameters:
	//   - tl: the timeline that waits
	//   - f: the fence to wait on
	WaitFence(tl Timeline, f Fence)

	// Flush drains all recorded work on both timelines. CPU-blocking; used at
	// shutdown, for readback, and in tests — never on the per-frame path.
	Flush()

	// Close flushes outstanding work and releases backend resources owned by
	// the executor. The executor must not be used afterwards.
	Close()
}
