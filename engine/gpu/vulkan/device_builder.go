package vulkan

import "go.uber.org/zap"

// DeviceBuilderOption is a functional option for configuring a Vulkan Device.
type DeviceBuilderOption func(*device)

// WithApplicationName sets the application name reported to the driver.
//
// Parameters:
//   - name: the application name
//
// Returns:
//   - DeviceBuilderOption: option function to apply
func WithApplicationName(name string) DeviceBuilderOption {
	return func(d *device) {
		if name != "" {
			d.appName = name
		}
	}
}

// WithValidation enables the Khronos validation layer.
//
// Parameters:
//   - enabled: true to request the layer
//
// Returns:
//   - DeviceBuilderOption: option function to apply
func WithValidation(enabled bool) DeviceBuilderOption {
	return func(d *device) {
		d.validation = enabled
	}
}

// WithLogger sets the logger.
//
// Parameters:
//   - logger: the logger (nil keeps the no-op default)
//
// Returns:
//   - DeviceBuilderOption: option function to apply
func WithLogger(logger *zap.Logger) DeviceBuilderOption {
	return func(d *device) {
		if logger != nil {
			d.logger = logger
		}
	}
}
