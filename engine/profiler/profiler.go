package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-xr/engine/xr"
	"go.uber.org/zap"
)

// Profiler tracks frame rate, frame outcomes and memory statistics for performance monitoring.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	logger         *zap.Logger
	now            func() time.Time
	frameCount     int
	results        map[xr.BeginFrameResult]int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
}

// NewProfiler creates a new Profiler with an update interval of 1 second.
//
// Parameters:
//   - logger: the logger stats are written to (nil discards them)
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(logger *zap.Logger) *Profiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Profiler{
		logger:         logger,
		now:            time.Now,
		results:        make(map[xr.BeginFrameResult]int),
		updateInterval: time.Second,
	}
	p.lastTime = p.now()
	return p
}

// Record counts the outcome of one BeginFrame call.
//
// Parameters:
//   - result: the frame outcome
func (p *Profiler) Record(result xr.BeginFrameResult) {
	p.results[result]++
}

// Counts returns the outcomes recorded since the last report.
//
// Returns:
//   - map[xr.BeginFrameResult]int: a copy of the per-result counts
func (p *Profiler) Counts() map[xr.BeginFrameResult]int {
	out := make(map[xr.BeginFrameResult]int, len(p.results))
	for k, v := range p.results {
		out[k] = v
	}
	return out
}

// Tick should be called once per loop iteration.
// Logs FPS, per-result frame counts, heap usage, allocation rate and GC pauses when the
// update interval has elapsed, then resets the counters.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc

	gcCount := p.memStats.NumGC
	var lastPause, maxPause time.Duration
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 pauses.
		lastPause = time.Duration(p.memStats.PauseNs[(gcCount-1)%256])
		start := p.lastGCCount
		if gcCount-start > 256 {
			start = gcCount - 256
		}
		for i := start; i < gcCount; i++ {
			maxPause = max(maxPause, time.Duration(p.memStats.PauseNs[i%256]))
		}
	}

	p.logger.Info("profiler",
		zap.Float64("fps", float64(p.frameCount)/elapsed.Seconds()),
		zap.Int("render_fully", p.results[xr.BeginFrameRenderFully]),
		zap.Int("skip_render", p.results[xr.BeginFrameSkipRender]),
		zap.Int("skip_fully", p.results[xr.BeginFrameSkipFully]),
		zap.Int("errors", p.results[xr.BeginFrameError]),
		zap.Float64("heap_mb", float64(p.memStats.Alloc)/1024/1024),
		zap.Float64("alloc_rate_mb_s", float64(allocDelta)/1024/1024/elapsed.Seconds()),
		zap.Uint32("gc_count", gcCount),
		zap.Duration("gc_last_pause", lastPause),
		zap.Duration("gc_max_pause", maxPause),
		zap.Float64("sys_mb", float64(p.memStats.Sys)/1024/1024),
	)

	p.frameCount = 0
	clear(p.results)
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
