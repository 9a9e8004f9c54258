package profiler

import (
	"fmt"
	"log"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Profiler tracks frame rate, scheduling-path distribution, CPU encode time,
// and memory statistics. Outputs stats to the log at a configurable interval.
type Profiler struct {
	frameCount     int
	pathCounts     map[string]int
	encodeTotal    time.Duration
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastTotalAlloc uint64
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler() *Profiler {
	return &Profiler{
		pathCounts:     make(map[string]int),
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
}

// Tick should be called once per frame with the scheduling path taken and the
// CPU time spent encoding the frame's commands. Logs statistics when the
// update interval has elapsed: FPS, per-path frame counts, mean encode time,
// heap usage, allocation rate, and GC count.
//
// Parameters:
//   - path: the name of the scheduling path taken this frame
//   - encodeTime: CPU time spent encoding the frame
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(path string, encodeTime time.Duration) bool {
	p.frameCount++
	p.pathCounts[path]++
	p.encodeTotal += encodeTime

	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()
	encodeUs := p.encodeTotal.Microseconds() / int64(p.frameCount)

	paths := make([]string, 0, len(p.pathCounts))
	for name := range p.pathCounts {
		paths = append(paths, name)
	}
	sort.Strings(paths)
	parts := make([]string, 0, len(paths))
	for _, name := range paths {
		parts = append(parts, fmt.Sprintf("%s:%d", name, p.pathCounts[name]))
	}

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	log.Printf("[Profiler] FPS: %.2f | Paths: %s | Encode: %d µs | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d",
		fps, strings.Join(parts, " "), encodeUs, allocMB, allocRateMB, p.memStats.NumGC)

	p.frameCount = 0
	p.encodeTotal = 0
	clear(p.pathCounts)
	p.lastTime = currentTime
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
