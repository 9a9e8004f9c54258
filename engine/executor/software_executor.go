package executor

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-blur/common"
)

// TraceEvent records one executed command for structural inspection. Events
// are appended in completion order, so cross-timeline ordering established by
// fences is directly visible in the trace.
type TraceEvent struct {
	// Timeline is the timeline the command executed on.
	Timeline Timeline
	// Op names the command: "pass:<kind>", "kernel:reconstruct",
	// "fence:signal", "fence:wait", or "barrier:release_targets".
	Op string
	// Reads lists the labels of textures the command read.
	Reads []string
	// Writes lists the labels of textures the command wrote.
	Writes []string
}

// SoftwareExecutor is the CPU reference backend. It executes every pass
// numerically on float32 planes and models the two GPU timelines as
// goroutines joined by channel fences, which makes it both the numeric
// oracle and the simulated two-timeline executor used by tests.
type SoftwareExecutor interface {
	Executor

	// Trace returns a snapshot of all commands executed since construction or
	// the last ResetTrace, in completion order. Flushes both timelines first.
	//
	// Returns:
	//   - []TraceEvent: the executed command trace
	Trace() []TraceEvent

	// ResetTrace discards the recorded trace. Flushes both timelines first.
	ResetTrace()

	// ReadTexture returns a copy of a texture's texel data as RGBA float32
	// quadruplets in row-major order. Flushes both timelines first.
	//
	// Parameters:
	//   - t: a texture created by this executor
	//
	// Returns:
	//   - []float32: width*height*4 texel values
	ReadTexture(t Texture) []float32

	// WriteTexture replaces a texture's texel data. data must hold
	// width*height*4 values; per-format quantization is applied on store.
	// Flushes both timelines first so no in-flight pass observes a partial
	// write.
	//
	// Parameters:
	//   - t: a texture created by this executor
	//   - data: the RGBA float32 texel values to store
	WriteTexture(t Texture, data []float32)
}

type softTexture struct {
	label         string
	width, height int
	format        Format
	pix           []float32 // 4 channels per texel regardless of format
}

func (t *softTexture) Label() string  { return t.label }
func (t *softTexture) Width() int     { return t.width }
func (t *softTexture) Height() int    { return t.height }
func (t *softTexture) Format() Format { return t.format }

type softFence struct {
	ch chan struct{}
}

func (f *softFence) fence() {}

type softwareExecutor struct {
	caps    Capabilities
	workers int

	pool   worker.DynamicWorkerPool
	queues [2]chan func()

	pending sync.WaitGroup

	mu    sync.Mutex
	trace []TraceEvent
}

var _ SoftwareExecutor = &softwareExecutor{}

// NewSoftwareExecutor creates the CPU backend. By default every capability is
// reported as supported; builder options narrow the capability set to
// simulate constrained platforms.
//
// Parameters:
//   - options: variadic list of SoftwareExecutorOption functions
//
// Returns:
//   - SoftwareExecutor: the newly created executor
func NewSoftwareExecutor(options ...SoftwareExecutorOption) SoftwareExecutor {
	e := &softwareExecutor{
		caps: Capabilities{
			AsyncCompute:          true,
			ComputeKernels:        true,
			MultipleRenderTargets: true,
			Formats: map[Format]bool{
				FormatRGBA8:     true,
				FormatRGBAHalf:  true,
				FormatRGBAFloat: true,
				FormatRGHalf:    true,
				FormatR8:        true,
			},
		},
	}

	for _, option := range options {
		option(e)
	}
	e.workers = common.Coalesce(e.workers, max(runtime.NumCPU()-1, 1))

	// Row bands from both timelines share one pool, mirroring the per-frame
	// compute-prep pool pattern: workers persist, a per-pass WaitGroup is the
	// barrier. Queue size of 256 covers both timelines' bands with headroom.
	e.pool = worker.NewDynamicWorkerPool(e.workers, 256, 1*time.Second)

	for tl := range e.queues {
		q := make(chan func(), 256)
		e.queues[tl] = q
		go func() {
			for cmd := range q {
				cmd()
			}
		}()
	}

	return e
}

func (e *softwareExecutor) Capabilities() Capabilities {
	return e.caps
}

func (e *softwareExecutor) CreateTexture(desc TextureDesc) (Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("texture %q has non-positive size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	if !e.caps.Supports(desc.Format) {
		return nil, fmt.Errorf("texture %q requests unsupported format %s", desc.Label, desc.Format)
	}
	return &softTexture{
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		pix:    make([]float32, desc.Width*desc.Height*4),
	}, nil
}

func (e *softwareExecutor) ReleaseTexture(t Texture) {
	// In-flight commands hold their own references; the collector reclaims
	// the backing store once the last one completes. Releasing must not block
	// the frame path, so there is nothing to do eagerly here.
}

// submit enqueues fn on a timeline. The per-command WaitGroup entry is what
// Flush drains.
func (e *softwareExecutor) submit(tl Timeline, fn func()) {
	e.pending.Add(1)
	e.queues[tl] <- func() {
		defer e.pending.Done()
		fn()
	}
}

func (e *softwareExecutor) record(ev TraceEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace = append(e.trace, ev)
}

func labels(ts []Texture) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		if t != nil {
			out = append(out, t.Label())
		}
	}
	return out
}

func (e *softwareExecutor) RunPass(tl Timeline, kind PassKind, constants PassConstants, inputs []Texture, outputs []Texture) {
	e.submit(tl, func() {
		e.execPass(kind, constants, inputs, outputs)
		e.record(TraceEvent{
			Timeline: tl,
			Op:       "pass:" + kind.String(),
			Reads:    labels(inputs),
			Writes:   labels(outputs),
		})
	})
}

func (e *softwareExecutor) DispatchKernel(tl Timeline, constants PassConstants, inputs []Texture, output Texture, groupsX, groupsY int) {
	e.submit(tl, func() {
		e.execReconstruct(constants, inputs, output, groupsX*8, groupsY*8)
		e.record(TraceEvent{
			Timeline: tl,
			Op:       "kernel:reconstruct",
			Reads:    labels(inputs),
			Writes:   labels([]Texture{output}),
		})
	})
}

func (e *softwareExecutor) ReleaseTargets(tl Timeline) {
	e.submit(tl, func() {
		e.record(TraceEvent{Timeline: tl, Op: "barrier:release_targets"})
	})
}

func (e *softwareExecutor) NewFence() Fence {
	return &softFence{ch: make(chan struct{})}
}

func (e *softwareExecutor) SignalFence(tl Timeline, f Fence) {
	sf := f.(*softFence)
	e.submit(tl, func() {
		e.record(TraceEvent{Timeline: tl, Op: "fence:signal"})
		close(sf.ch)
	})
}

func (e *softwareExecutor) WaitFence(tl Timeline, f Fence) {
	sf := f.(*softFence)
	e.submit(tl, func() {
		<-sf.ch
		e.record(TraceEvent{Timeline: tl, Op: "fence:wait"})
	})
}

func (e *softwareExecutor) Flush() {
	e.pending.Wait()
}

func (e *softwareExecutor) Close() {
	e.pending.Wait()
	for _, q := range e.queues {
		close(q)
	}
}

func (e *softwareExecutor) Trace() []TraceEvent {
	e.pending.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TraceEvent, len(e.trace))
	copy(out, e.trace)
	return out
}

func (e *softwareExecutor) ResetTrace() {
	e.pending.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace = e.trace[:0]
}

func (e *softwareExecutor) ReadTexture(t Texture) []float32 {
	e.pending.Wait()
	st := t.(*softTexture)
	out := make([]float32, len(st.pix))
	copy(out, st.pix)
	return out
}

func (e *softwareExecutor) WriteTexture(t Texture, data []float32) {
	e.pending.Wait()
	st := t.(*softTexture)
	for i := 0; i < st.width*st.height; i++ {
		st.store(i%st.width, i/st.width, data[i*4], data[i*4+1], data[i*4+2], data[i*4+3])
	}
}

// forEachRow executes fn for every row index, spreading row bands across the
// worker pool. The WaitGroup is the per-pass barrier; pool workers are reused
// across passes and frames.
func (e *softwareExecutor) forEachRow(height int, fn func(y int)) {
	band := max(height/(e.workers*4), 1)

	var wg sync.WaitGroup
	taskID := 0
	for y0 := 0; y0 < height; y0 += band {
		y1 := min(y0+band, height)
		wg.Add(1)
		start, end := y0, y1
		id := taskID
		taskID++
		e.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				for y := start; y < end; y++ {
					fn(y)
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
}
