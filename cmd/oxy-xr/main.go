// Command oxy-xr drives a headset against the simulated runtime, optionally mirroring the
// session state into a desktop preview window.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/config"
	"github.com/Carmen-Shannon/oxy-xr/engine"
	"github.com/Carmen-Shannon/oxy-xr/engine/gpu"
	"github.com/Carmen-Shannon/oxy-xr/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-xr/engine/gpu/vulkan"
	"github.com/Carmen-Shannon/oxy-xr/engine/preview"
	"github.com/Carmen-Shannon/oxy-xr/engine/window"
	"github.com/Carmen-Shannon/oxy-xr/engine/xr"
	"github.com/Carmen-Shannon/oxy-xr/engine/xr/sim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	logger, err := common.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("oxy-xr stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.Metrics.Enabled {
		srv := serveMetrics(cfg.Metrics.Address, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	device, closeDevice, err := openDevice(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDevice()

	runtime := sim.NewRuntime(device,
		sim.WithLogger(logger.Named("sim")),
		sim.WithRefreshRate(cfg.Simulator.RefreshRate),
		sim.WithEyeResolution(cfg.Simulator.EyeWidth, cfg.Simulator.EyeHeight),
		sim.WithSwapchainLength(cfg.Simulator.SwapchainLength),
		sim.WithHeadMotion(cfg.Simulator.HeadMotion),
	)

	headset := xr.NewHeadset(runtime, device,
		xr.WithLogger(logger.Named("xr")),
		xr.WithRegisterer(reg),
		xr.WithClipPlanes(cfg.Headset.NearClip, cfg.Headset.FarClip),
		xr.WithReferenceSpace(cfg.ReferenceSpace()),
		xr.WithHonorShouldRender(cfg.Headset.HonorShouldRender),
		xr.WithHandTracking(cfg.Headset.HandTracking),
		xr.WithGrabThreshold(cfg.Headset.GrabThreshold),
		xr.WithHapticAmplitude(cfg.Headset.HapticAmplitude),
		xr.WithPinchDistance(cfg.Headset.PinchDistance),
	)
	defer headset.Close()
	if !headset.IsValid() {
		return fmt.Errorf("failed to create headset: %w", headset.Err())
	}

	options := []engine.EngineBuilderOption{
		engine.WithLogger(logger.Named("engine")),
		engine.WithProfiling(cfg.Engine.Profiling),
		engine.WithTickRate(cfg.Engine.TickRate),
		engine.WithMaxConsecutiveErrors(cfg.Engine.MaxConsecutiveErrors),
		engine.WithIdleBackoff(cfg.Engine.IdleBackoffMax),
		engine.WithInputListener(logInput(logger.Named("input")), cfg.Engine.InputWorkers),
	}

	if cfg.Preview.Enabled {
		win, err := window.NewWindow(
			window.WithTitle(cfg.Preview.Title),
			window.WithSize(cfg.Preview.Width, cfg.Preview.Height),
		)
		if err != nil {
			return err
		}
		defer func() { _ = win.Close() }()

		pv, err := preview.NewPreview(win.SurfaceDescriptor(), win.Width(), win.Height(), logger.Named("preview"))
		if err != nil {
			return err
		}
		defer pv.Release()

		win.SetKeyDownCallback(simulatorControls(runtime))
		options = append(options, engine.WithWindow(win), engine.WithPreview(pv))
	}

	eng := engine.NewEngine(headset, options...)
	eng.SetTickCallback(animateGrab(runtime))

	var frames int
	eng.SetRenderCallback(func(frame engine.FrameContext) {
		frames++
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			logger.Info("shutdown requested")
			runtime.RequestExit()
		case <-done:
		}
	}()
	if cfg.Simulator.ExitAfter > 0 {
		timer := time.AfterFunc(cfg.Simulator.ExitAfter, runtime.RequestExit)
		defer timer.Stop()
	}

	logger.Info("oxy-xr running",
		zap.Int("eyes", headset.EyeCount()),
		zap.Int("render_targets", headset.RenderTargetCount()),
		zap.String("backend", cfg.GPU.Backend),
	)
	err = eng.Run()

	stats := runtime.Stats()
	logger.Info("oxy-xr finished",
		zap.Int("frames_rendered", frames),
		zap.Int("frames_ended", stats.FramesEnded),
		zap.Int("layers_submitted", stats.LayersSubmitted),
		zap.Ints("haptic_pulses", stats.HapticPulses[:]),
	)
	return err
}

func openDevice(cfg config.Config, logger *zap.Logger) (gpu.Device, func(), error) {
	if cfg.GPU.Backend == config.BackendHeadless {
		logger.Warn("running on the headless device, nothing is rendered")
		return gputest.NewDevice(), func() {}, nil
	}
	device, err := vulkan.NewDevice(
		vulkan.WithLogger(logger.Named("vulkan")),
		vulkan.WithApplicationName(cfg.GPU.ApplicationName),
		vulkan.WithValidation(cfg.GPU.Validation),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open vulkan device: %w", err)
	}
	return device, device.Close, nil
}

func serveMetrics(address string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server exited", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("address", address))
	return srv
}

func logInput(logger *zap.Logger) xr.InputListener {
	return xr.InputListenerFunc(func(event xr.InputEvent) {
		logger.Info("input",
			zap.Stringer("type", event.Type),
			zap.Stringer("hand", event.Hand),
			zap.Float32("value", event.Value),
		)
	})
}

// animateGrab squeezes the right trigger on a four second cycle, so haptics fire near the top.
func animateGrab(runtime sim.Runtime) func(deltaTime float32) {
	var elapsed float64
	return func(deltaTime float32) {
		elapsed += float64(deltaTime)
		runtime.SetGrab(xr.HandRight, float32(0.5-0.5*math.Cos(elapsed*math.Pi/2)))
	}
}

// simulatorControls maps preview keys onto the simulated runtime: space taps the left system
// button, H toggles right hand tracking, L injects session loss and X requests exit.
func simulatorControls(runtime sim.Runtime) func(keyCode int) {
	handTracked := true
	return func(keyCode int) {
		switch keyCode {
		case window.KeySpace:
			runtime.SetSystemButton(xr.HandLeft, true)
			time.AfterFunc(100*time.Millisecond, func() { runtime.SetSystemButton(xr.HandLeft, false) })
		case window.KeyH:
			handTracked = !handTracked
			runtime.SetHandTrackingActive(xr.HandRight, handTracked)
		case window.KeyL:
			runtime.InjectLoss()
		case window.KeyX:
			runtime.RequestExit()
		}
	}
}
