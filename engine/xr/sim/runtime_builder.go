package sim

import (
	"time"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"go.uber.org/zap"
)

// RuntimeBuilderOption is a functional option for configuring a simulated Runtime.
type RuntimeBuilderOption func(*runtime)

// WithLogger sets the logger.
//
// Parameters:
//   - logger: the logger (nil keeps the no-op default)
//
// Returns:
//   - RuntimeBuilderOption: option function to apply
func WithLogger(logger *zap.Logger) RuntimeBuilderOption {
	return func(r *runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRefreshRate sets the simulated display refresh rate in Hz (default 90).
// A rate <= 0 disables WaitFrame pacing; display times still advance by the 90 Hz period.
//
// Parameters:
//   - hz: the refresh rate
//
// Returns:
//   - RuntimeBuilderOption: option function to apply
func WithRefreshRate(hz float64) RuntimeBuilderOption {
	return func(r *runtime) {
		if hz <= 0 {
			r.paced = false
			return
		}
		r.paced = true
		r.period = time.Duration(float64(time.Second) / hz)
	}
}

// WithEyeResolution sets the recommended per-eye resolution (default 1832x1920).
//
// Parameters:
//   - width: width in pixels
//   - height: height in pixels
//
// Returns:
//   - RuntimeBuilderOption: option function to apply
func WithEyeResolution(width, height uint32) RuntimeBuilderOption {
	return func(r *runtime) {
		r.eyeExtent = common.Extent2D{Width: width, Height: height}
	}
}

// WithSwapchainLength sets how many images each swapchain holds (default 3).
//
// Parameters:
//   - n: the image count, at least 1
//
// Returns:
//   - RuntimeBuilderOption: option function to apply
func WithSwapchainLength(n int) RuntimeBuilderOption {
	return func(r *runtime) {
		if n > 0 {
			r.swapchainLength = n
		}
	}
}

// WithHeadMotion enables or disables the animated head and controller poses (default enabled).
// When disabled every pose stays at its rest position.
//
// Parameters:
//   - enabled: false for static poses
//
// Returns:
//   - RuntimeBuilderOption: option function to apply
func WithHeadMotion(enabled bool) RuntimeBuilderOption {
	return func(r *runtime) {
		r.animate = enabled
	}
}

// WithClock replaces the wall clock and sleep used for frame pacing.
//
// Parameters:
//   - now: returns the current time
//   - sleep: blocks for the given duration
//
// Returns:
//   - RuntimeBuilderOption: option function to apply
func WithClock(now func() time.Time, sleep func(time.Duration)) RuntimeBuilderOption {
	return func(r *runtime) {
		if now != nil {
			r.now = now
		}
		if sleep != nil {
			r.sleep = sleep
		}
	}
}
