// Package config loads the YAML configuration of the oxy-xr demo.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Carmen-Shannon/oxy-xr/engine/xr"
	"gopkg.in/yaml.v3"
)

// Device backends selectable with gpu.backend.
const (
	BackendVulkan   = "vulkan"
	BackendHeadless = "headless"
)

// Config is the full demo configuration. Zero-valued fields in a file keep their defaults.
type Config struct {
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"metrics"`

	GPU struct {
		Backend         string `yaml:"backend"`
		ApplicationName string `yaml:"application_name"`
		Validation      bool   `yaml:"validation"`
	} `yaml:"gpu"`

	Headset struct {
		ReferenceSpace    string  `yaml:"reference_space"`
		NearClip          float32 `yaml:"near_clip"`
		FarClip           float32 `yaml:"far_clip"`
		HonorShouldRender bool    `yaml:"honor_should_render"`
		HandTracking      bool    `yaml:"hand_tracking"`
		GrabThreshold     float32 `yaml:"grab_threshold"`
		HapticAmplitude   float32 `yaml:"haptic_amplitude"`
		PinchDistance     float32 `yaml:"pinch_distance"`
	} `yaml:"headset"`

	Simulator struct {
		RefreshRate     float64       `yaml:"refresh_rate"`
		EyeWidth        uint32        `yaml:"eye_width"`
		EyeHeight       uint32        `yaml:"eye_height"`
		SwapchainLength int           `yaml:"swapchain_length"`
		HeadMotion      bool          `yaml:"head_motion"`
		ExitAfter       time.Duration `yaml:"exit_after"`
	} `yaml:"simulator"`

	Engine struct {
		TickRate             float64       `yaml:"tick_rate"`
		Profiling            bool          `yaml:"profiling"`
		MaxConsecutiveErrors int           `yaml:"max_consecutive_errors"`
		IdleBackoffMax       time.Duration `yaml:"idle_backoff_max"`
		InputWorkers         int           `yaml:"input_workers"`
	} `yaml:"engine"`

	Preview struct {
		Enabled bool   `yaml:"enabled"`
		Width   int    `yaml:"width"`
		Height  int    `yaml:"height"`
		Title   string `yaml:"title"`
	} `yaml:"preview"`
}

// Default returns the configuration used when no file is given.
//
// Returns:
//   - Config: the default configuration
func Default() Config {
	var c Config
	c.Log.Level = "info"

	c.Metrics.Enabled = true
	c.Metrics.Address = ":9464"

	c.GPU.Backend = BackendVulkan
	c.GPU.ApplicationName = "oxy-xr"

	c.Headset.ReferenceSpace = xr.ReferenceSpaceStage.String()
	c.Headset.NearClip = 0.1
	c.Headset.FarClip = 250
	c.Headset.HandTracking = true
	c.Headset.GrabThreshold = 0.75
	c.Headset.HapticAmplitude = 0.5
	c.Headset.PinchDistance = 0.001

	c.Simulator.RefreshRate = 90
	c.Simulator.EyeWidth = 1832
	c.Simulator.EyeHeight = 1920
	c.Simulator.SwapchainLength = 3
	c.Simulator.HeadMotion = true

	c.Engine.TickRate = 60
	c.Engine.MaxConsecutiveErrors = 30
	c.Engine.IdleBackoffMax = 250 * time.Millisecond
	c.Engine.InputWorkers = 2

	c.Preview.Width = 960
	c.Preview.Height = 540
	c.Preview.Title = "oxy-xr preview"
	return c
}

// Load reads and validates a configuration file on top of Default.
//
// Parameters:
//   - path: the YAML file path
//
// Returns:
//   - Config: the loaded configuration
//   - error: error if the file cannot be read, parsed or validated
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result. Unknown keys are rejected.
//
// Parameters:
//   - data: the YAML document
//
// Returns:
//   - Config: the parsed configuration
//   - error: error if the document is malformed or invalid
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every invalid setting.
//
// Returns:
//   - error: nil, or all problems joined
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.GPU.Backend == BackendVulkan || c.GPU.Backend == BackendHeadless, "gpu.backend must be %q or %q, got %q", BackendVulkan, BackendHeadless, c.GPU.Backend)
	check(!c.Metrics.Enabled || c.Metrics.Address != "", "metrics.address is required when metrics are enabled")

	_, ok := xr.ParseReferenceSpaceType(c.Headset.ReferenceSpace)
	check(ok, "headset.reference_space %q is not one of view, local, stage", c.Headset.ReferenceSpace)
	check(c.Headset.NearClip > 0, "headset.near_clip must be positive")
	check(c.Headset.FarClip > c.Headset.NearClip, "headset.far_clip must be greater than near_clip")
	check(c.Headset.GrabThreshold >= 0 && c.Headset.GrabThreshold < 1, "headset.grab_threshold must be in [0, 1)")
	check(c.Headset.HapticAmplitude >= 0 && c.Headset.HapticAmplitude <= 1, "headset.haptic_amplitude must be in [0, 1]")
	check(c.Headset.PinchDistance > 0, "headset.pinch_distance must be positive")

	check(c.Simulator.RefreshRate >= 0, "simulator.refresh_rate must not be negative")
	check(c.Simulator.EyeWidth > 0 && c.Simulator.EyeHeight > 0, "simulator eye resolution must be non-zero")
	check(c.Simulator.SwapchainLength > 0, "simulator.swapchain_length must be positive")
	check(c.Simulator.ExitAfter >= 0, "simulator.exit_after must not be negative")

	check(c.Engine.TickRate > 0, "engine.tick_rate must be positive")
	check(c.Engine.MaxConsecutiveErrors > 0, "engine.max_consecutive_errors must be positive")
	check(c.Engine.IdleBackoffMax > 0, "engine.idle_backoff_max must be positive")
	check(c.Engine.InputWorkers > 0, "engine.input_workers must be positive")

	check(!c.Preview.Enabled || (c.Preview.Width > 0 && c.Preview.Height > 0), "preview size must be positive")

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ReferenceSpace returns the configured reference space type. Call only on a validated config.
//
// Returns:
//   - xr.ReferenceSpaceType: the reference space type
func (c Config) ReferenceSpace() xr.ReferenceSpaceType {
	t, _ := xr.ParseReferenceSpaceType(c.Headset.ReferenceSpace)
	return t
}
