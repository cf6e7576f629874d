package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-xr/engine/preview"
	"github.com/Carmen-Shannon/oxy-xr/engine/window"
	"github.com/Carmen-Shannon/oxy-xr/engine/xr"
	"go.uber.org/zap"
)

// EngineBuilderOption is a functional option for configuring an Engine.
type EngineBuilderOption func(*engine)

// WithLogger sets the logger.
//
// Parameters:
//   - logger: the logger (nil keeps the no-op default)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLogger(logger *zap.Logger) EngineBuilderOption {
	return func(e *engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithTickRate sets the engine tick rate in ticks per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.engineTickRate = tickPeriod(fps)
	}
}

// WithWindow sets the desktop window polled by the frame loop. Closing it stops Run.
//
// Parameters:
//   - w: an open Window
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithPreview sets the preview presented after every loop iteration.
//
// Parameters:
//   - p: the preview surface
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithPreview(p preview.Preview) EngineBuilderOption {
	return func(e *engine) {
		e.preview = p
	}
}

// WithMaxConsecutiveErrors sets how many BeginFrame errors in a row are tolerated (default 30).
//
// Parameters:
//   - n: the limit; values <= 0 keep the default
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithMaxConsecutiveErrors(n int) EngineBuilderOption {
	return func(e *engine) {
		if n > 0 {
			e.maxConsecutiveErrors = n
		}
	}
}

// WithIdleBackoff sets the longest sleep between frames while the session is not render eligible (default 250ms).
//
// Parameters:
//   - maxInterval: the upper bound of the exponential backoff
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithIdleBackoff(maxInterval time.Duration) EngineBuilderOption {
	return func(e *engine) {
		if maxInterval > 0 {
			e.idleBackoffMax = maxInterval
		}
	}
}

// WithInputListener delivers the headset's input events to listener on a worker pool.
//
// Parameters:
//   - listener: the listener
//   - workers: the maximum number of concurrent deliveries; values <= 0 keep the default of 2
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithInputListener(listener xr.InputListener, workers int) EngineBuilderOption {
	return func(e *engine) {
		e.inputListener = listener
		if workers > 0 {
			e.inputWorkers = workers
		}
	}
}
