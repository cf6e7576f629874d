package xr

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// HeadsetBuilderOption is a functional option for configuring a Headset.
// Options are applied before any runtime or device call is made.
type HeadsetBuilderOption func(*headset)

// WithLogger sets the logger. The headset adds its id to every entry.
//
// Parameters:
//   - logger: the logger (nil keeps the no-op default)
//
// Returns:
//   - HeadsetBuilderOption: option function to apply
func WithLogger(logger *zap.Logger) HeadsetBuilderOption {
	return func(h *headset) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRegisterer exports the headset metrics on reg.
// Headsets sharing a registerer share their collectors.
//
// Parameters:
//   - reg: the prometheus registerer
//
// Returns:
//   - HeadsetBuilderOption: option function to apply
func WithRegisterer(reg prometheus.Registerer) HeadsetBuilderOption {
	return func(h *headset) {
		h.registerer = reg
	}
}

// WithClipPlanes sets the near and far clip distances of the eye projections (default 0.1 and 250).
// Invalid pairs are ignored.
//
// Parameters:
//   - near: the near clip distance
//   - far: the far clip distance
//
// Returns:
//   - HeadsetBuilderOption: option function to apply
func WithClipPlanes(near, far float32) HeadsetBuilderOption {
	return func(h *headset) {
		if near > 0 && far > near {
			h.nearClip = near
			h.farClip = far
		}
	}
}

// WithReferenceSpace selects the reference space all poses are expressed in (default stage).
//
// Parameters:
//   - spaceType: the reference space type
//
// Returns:
//   - HeadsetBuilderOption: option function to apply
func WithReferenceSpace(spaceType ReferenceSpaceType) HeadsetBuilderOption {
	return func(h *headset) {
		h.referenceSpace = spaceType
	}
}

// WithHonorShouldRender makes BeginFrame return SkipRender when the runtime advises against rendering.
// By default such frames are still reported as RenderFully.
//
// Parameters:
//   - honor: true to report SkipRender
//
// Returns:
//   - HeadsetBuilderOption: option function to apply
func WithHonorShouldRender(honor bool) HeadsetBuilderOption {
	return func(h *headset) {
		h.honorShouldRender = honor
	}
}

// WithGrabThreshold sets the grab value a hand must exceed to trigger a haptic pulse (default 0.75).
//
// Parameters:
//   - threshold: the exclusive threshold
//
// Returns:
//   - HeadsetBuilderOption: option function to apply
func WithGrabThreshold(threshold float32) HeadsetBuilderOption {
	return func(h *headset) {
		h.input.cfg.grabThreshold = threshold
	}
}

// WithHapticAmplitude sets the amplitude of grab haptic pulses (default 0.5).
//
// Parameters:
//   - amplitude: amplitude in [0, 1]
//
// Returns:
//   - HeadsetBuilderOption: option function to apply
func WithHapticAmplitude(amplitude float32) HeadsetBuilderOption {
	return func(h *headset) {
		h.input.cfg.hapticAmplitude = amplitude
	}
}

// WithPinchDistance sets the index-to-thumb tip distance below which a pinch is detected (default 0.001).
//
// Parameters:
//   - distance: the exclusive distance in meters
//
// Returns:
//   - HeadsetBuilderOption: option function to apply
func WithPinchDistance(distance float32) HeadsetBuilderOption {
	return func(h *headset) {
		h.input.cfg.pinchDistance = distance
	}
}

// WithHandTracking enables or disables hand joint tracking (default enabled).
//
// Parameters:
//   - enabled: false to skip creating hand trackers
//
// Returns:
//   - HeadsetBuilderOption: option function to apply
func WithHandTracking(enabled bool) HeadsetBuilderOption {
	return func(h *headset) {
		h.input.cfg.handTracking = enabled
	}
}

// WithInputListener sets the listener receiving input events.
//
// Parameters:
//   - listener: the listener
//
// Returns:
//   - HeadsetBuilderOption: option function to apply
func WithInputListener(listener InputListener) HeadsetBuilderOption {
	return func(h *headset) {
		h.input.listener = listener
	}
}
