package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-xr/engine/preview"
	"github.com/Carmen-Shannon/oxy-xr/engine/profiler"
	"github.com/Carmen-Shannon/oxy-xr/engine/window"
	"github.com/Carmen-Shannon/oxy-xr/engine/xr"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrTooManyFrameErrors is returned by Run when BeginFrame fails more often in a row than allowed.
var ErrTooManyFrameErrors = errors.New("too many consecutive frame errors")

// FrameContext is handed to the render callback for every frame that should be drawn.
type FrameContext struct {
	// ImageIndex selects the render target acquired for this frame.
	ImageIndex uint32
	// Headset exposes the eye matrices, render pass and tracked points of the frame.
	Headset xr.Headset
	// DeltaTime is the wall time in seconds since the previous loop iteration.
	DeltaTime float32
}

// engine implements the Engine interface.
// The frame loop runs on the goroutine calling Run; the tick loop runs on its own goroutine.
type engine struct {
	logger  *zap.Logger
	headset xr.Headset

	tickRateChannel chan time.Duration
	running         atomic.Bool
	wg              sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once

	window  window.Window
	preview preview.Preview

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(frame FrameContext)

	maxConsecutiveErrors int
	idleBackoffMax       time.Duration
	sleep                func(time.Duration)

	inputListener xr.InputListener
	inputWorkers  int
	inputPool     worker.DynamicWorkerPool
	inputWG       sync.WaitGroup
	inputTaskID   atomic.Int64
}

// Engine drives a headset: it runs the frame loop, a fixed-rate tick loop, the optional desktop
// window and preview, and delivers input events off the frame goroutine.
type Engine interface {
	// Headset returns the headset driven by the engine.
	//
	// Returns:
	//   - xr.Headset: the headset
	Headset() xr.Headset

	// Window returns the desktop window, or nil when running without one.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in ticks per second.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// Use this for simulation logic that should not run at display rate.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called for every frame that should be drawn.
	// The callback records into the render target at frame.ImageIndex; the engine ends the frame afterwards.
	//
	// Parameters:
	//   - callback: function receiving the frame context
	SetRenderCallback(callback func(frame FrameContext))

	// Run drives the headset on the calling goroutine until the runtime requests exit, the window
	// closes, Quit is called, or BeginFrame fails more than the allowed number of times in a row.
	//
	// Returns:
	//   - error: the headset construction error, ErrTooManyFrameErrors, or nil on a clean stop
	Run() error

	// Quit signals the frame and tick loops to stop.
	// Safe to call multiple times and from any goroutine; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates an engine for the headset.
//
// Parameters:
//   - headset: the headset to drive
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(headset xr.Headset, options ...EngineBuilderOption) Engine {
	e := &engine{
		logger:               zap.NewNop(),
		headset:              headset,
		tickRateChannel:      make(chan time.Duration, 1),
		quitChannel:          make(chan struct{}),
		engineTickRate:       time.Second / 60,
		maxConsecutiveErrors: 30,
		idleBackoffMax:       250 * time.Millisecond,
		sleep:                time.Sleep,
		inputWorkers:         2,
	}

	for _, opt := range options {
		opt(e)
	}
	e.profiler = profiler.NewProfiler(e.logger.Named("profiler"))

	if e.inputListener != nil {
		e.inputPool = worker.NewDynamicWorkerPool(e.inputWorkers, 256, 1*time.Second)
		headset.SetInputListener(xr.InputListenerFunc(e.dispatchInput))
	}

	if e.window != nil && e.preview != nil {
		e.window.SetResizeCallback(e.preview.Resize)
	}

	return e
}

func (e *engine) Headset() xr.Headset {
	return e.headset
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Run() error {
	if !e.headset.IsValid() {
		return fmt.Errorf("headset is not usable: %w", e.headset.Err())
	}

	e.running.Store(true)
	e.wg.Add(1)
	go e.handleEngine()

	defer func() {
		e.signalQuit()
		e.wg.Wait()
		e.inputWG.Wait()
		e.running.Store(false)
	}()

	return e.handleFrames()
}

// Quit signals all engine goroutines to stop.
func (e *engine) Quit() {
	e.signalQuit()
}

func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) quitting() bool {
	select {
	case <-e.quitChannel:
		return true
	default:
		return false
	}
}

// handleFrames is the frame loop. WaitFrame inside BeginFrame paces it while the session runs;
// the idle backoff paces it while the session gate holds frames back.
func (e *engine) handleFrames() error {
	idle := backoff.NewExponentialBackOff()
	idle.InitialInterval = 5 * time.Millisecond
	idle.MaxInterval = e.idleBackoffMax
	idle.MaxElapsedTime = 0
	idle.Reset()

	lastFrame := time.Now()
	consecutiveErrors := 0

	for {
		if e.quitting() {
			e.logger.Info("engine quit requested")
			return nil
		}
		if e.window != nil && !e.window.PollEvents() {
			e.logger.Info("window closed")
			return nil
		}
		if e.headset.IsExitRequested() {
			e.logger.Info("runtime requested exit", zap.Stringer("state", e.headset.SessionState()))
			return nil
		}

		result, imageIndex, err := e.headset.BeginFrame()
		now := time.Now()
		dt := float32(now.Sub(lastFrame).Seconds())
		lastFrame = now

		if e.profilingEnabled {
			e.profiler.Record(result)
		}

		switch result {
		case xr.BeginFrameRenderFully:
			consecutiveErrors = 0
			idle.Reset()
			if e.renderCallback != nil {
				e.renderCallback(FrameContext{ImageIndex: imageIndex, Headset: e.headset, DeltaTime: dt})
			}
			e.headset.EndFrame()
		case xr.BeginFrameSkipRender:
			consecutiveErrors = 0
			idle.Reset()
			e.headset.EndFrame()
		case xr.BeginFrameSkipFully:
			consecutiveErrors = 0
			e.sleep(idle.NextBackOff())
		default:
			consecutiveErrors++
			e.logger.Warn("frame failed", zap.Error(err), zap.Int("consecutive", consecutiveErrors))
			if consecutiveErrors > e.maxConsecutiveErrors {
				return fmt.Errorf("%w: last error: %w", ErrTooManyFrameErrors, err)
			}
		}

		if e.preview != nil {
			if err := e.preview.Present(e.headset.SessionState()); err != nil {
				e.logger.Debug("preview present failed", zap.Error(err))
			}
		}

		if e.profilingEnabled {
			e.profiler.Tick()
		}
	}
}

// handleEngine runs the fixed-rate tick loop in its own goroutine and listens for rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// dispatchInput runs on the frame goroutine inside BeginFrame and hands the event to the pool.
func (e *engine) dispatchInput(event xr.InputEvent) {
	e.inputWG.Add(1)
	e.inputPool.SubmitTask(worker.Task{
		ID: int(e.inputTaskID.Add(1)),
		Do: func() (any, error) {
			defer e.inputWG.Done()
			e.inputListener.HandleInputEvent(event)
			return nil, nil
		},
	})
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	newRate := tickPeriod(fps)

	if !e.running.Load() {
		e.engineTickRate = newRate
		return
	}
	// Replace any pending update so the latest rate wins.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(frame FrameContext)) {
	e.renderCallback = callback
}

func tickPeriod(fps float64) time.Duration {
	if fps <= 0 {
		fps = 60
	}
	return time.Duration(float64(time.Second) / fps)
}
