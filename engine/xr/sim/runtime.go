// Package sim is an in-process XR runtime. It paces frames like a headset would, walks the
// session through its lifecycle, animates the head and controllers, and allocates swapchain
// images on a real gpu.Device, so the headset can run without hardware.
package sim

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/gpu"
	"github.com/Carmen-Shannon/oxy-xr/engine/xr"
	"go.uber.org/zap"
)

var (
	ErrHandleInvalid      = errors.New("sim: invalid handle")
	ErrCallOrderInvalid   = errors.New("sim: call order invalid")
	ErrSessionRunning     = errors.New("sim: session running")
	ErrSessionNotRunning  = errors.New("sim: session not running")
	ErrSessionExists      = errors.New("sim: session already exists")
	ErrFormatUnsupported  = errors.New("sim: swapchain format unsupported")
	ErrViewConfigInvalid  = errors.New("sim: view configuration unsupported")
	ErrActionSetsAttached = errors.New("sim: action sets already attached")
	ErrActionSetDetached  = errors.New("sim: action set not attached")
	ErrPathInvalid        = errors.New("sim: path invalid")
)

const (
	defaultPeriod   = time.Second / 90
	interpupillary  = 0.064
	standingHeight  = 1.6
	supportedLayers = 2
)

// Runtime is a simulated XR runtime with controls for scripting the session and input.
// The control methods may be called from any goroutine.
type Runtime interface {
	xr.Runtime

	// RequestExit asks the application to stop, as a user leaving the experience would.
	// The session moves to Stopping; after EndSession it moves through Idle to Exiting.
	RequestExit()

	// InjectLoss reports that the session is about to be lost.
	InjectLoss()

	// SetGrab sets the analog grab value of a hand, clamped to [0, 1].
	//
	// Parameters:
	//   - hand: the hand
	//   - value: the grab value
	SetGrab(hand xr.Hand, value float32)

	// SetSystemButton presses or releases the system button of a hand.
	//
	// Parameters:
	//   - hand: the hand
	//   - pressed: the button state
	SetSystemButton(hand xr.Hand, pressed bool)

	// SetHandTrackingActive sets whether the joint tracker of a hand sees the hand.
	//
	// Parameters:
	//   - hand: the hand
	//   - active: true if the hand is tracked
	SetHandTrackingActive(hand xr.Hand, active bool)

	// SetHandJoints replaces the joint poses of a hand. Pass nil to return to the generated rest pose.
	//
	// Parameters:
	//   - hand: the hand
	//   - joints: the joint poses in the reference space, or nil
	SetHandJoints(hand xr.Hand, joints *[xr.HandJointCount]common.Pose)

	// SetTrackingValid sets whether located poses carry valid flags.
	//
	// Parameters:
	//   - valid: true if tracking is valid
	SetTrackingValid(valid bool)

	// State returns the last session state queued for the application.
	//
	// Returns:
	//   - xr.SessionState: the session state
	State() xr.SessionState

	// Stats returns counters of what the application submitted.
	//
	// Returns:
	//   - Stats: the counters
	Stats() Stats
}

// Stats counts application activity seen by the simulated runtime.
type Stats struct {
	FramesWaited    int
	FramesEnded     int
	LayersSubmitted int
	HapticPulses    [xr.HandCount]int
	LastFrameEnd    xr.FrameEndInfo
}

type spaceInfo struct {
	action bool
	hand   xr.Hand
}

type swapchain struct {
	info     xr.SwapchainCreateInfo
	images   []gpu.Image
	next     uint32
	acquired bool
	waited   bool
}

type frameStage int

const (
	frameIdle frameStage = iota
	frameWaited
	frameBegun
)

// runtime implements the Runtime interface.
type runtime struct {
	mu sync.Mutex

	device          gpu.Device
	logger          *zap.Logger
	now             func() time.Time
	sleep           func(time.Duration)
	paced           bool
	period          time.Duration
	eyeExtent       common.Extent2D
	swapchainLength int
	formats         []gpu.Format
	animate         bool

	nextHandle uint64
	paths      map[string]xr.Path
	pathNames  map[xr.Path]string

	session       xr.Session
	state         xr.SessionState
	running       bool
	exitRequested bool
	events        []xr.Event

	spaces     map[xr.Space]spaceInfo
	swapchains map[xr.Swapchain]*swapchain
	trackers   map[xr.HandTracker]xr.Hand

	stage         frameStage
	nextDisplay   time.Time
	trackingValid bool

	input inputState
	stats Stats
}

// NewRuntime creates a simulated runtime whose swapchain images are allocated on device.
//
// Parameters:
//   - device: the graphics device swapchain images are created on
//   - options: functional options for runtime configuration
//
// Returns:
//   - Runtime: the simulated runtime
func NewRuntime(device gpu.Device, options ...RuntimeBuilderOption) Runtime {
	r := &runtime{
		device:          device,
		logger:          zap.NewNop(),
		now:             time.Now,
		sleep:           time.Sleep,
		paced:           true,
		period:          defaultPeriod,
		eyeExtent:       common.Extent2D{Width: 1832, Height: 1920},
		swapchainLength: 3,
		formats:         []gpu.Format{gpu.FormatB8G8R8A8Unorm, gpu.FormatR8G8B8A8Unorm},
		animate:         true,
		paths:           map[string]xr.Path{},
		pathNames:       map[xr.Path]string{},
		spaces:          map[xr.Space]spaceInfo{},
		swapchains:      map[xr.Swapchain]*swapchain{},
		trackers:        map[xr.HandTracker]xr.Hand{},
		trackingValid:   true,
		input:           newInputState(),
	}

	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *runtime) handle() uint64 {
	r.nextHandle++
	return r.nextHandle
}

// queue appends a state change for the application to poll. Caller must hold the mutex.
func (r *runtime) queue(state xr.SessionState) {
	r.state = state
	r.events = append(r.events, xr.Event{Type: xr.EventSessionStateChanged, State: state, Time: xr.Time(r.now().UnixNano())})
	r.logger.Debug("sim session state queued", zap.Stringer("state", state))
}

func (r *runtime) checkSession(session xr.Session) error {
	if session == 0 || session != r.session {
		return fmt.Errorf("%w: session %d", ErrHandleInvalid, session)
	}
	return nil
}

func (r *runtime) RequestExit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == 0 || r.exitRequested {
		return
	}
	r.exitRequested = true
	if r.running {
		r.queue(xr.SessionStateStopping)
		return
	}
	r.queue(xr.SessionStateExiting)
}

func (r *runtime) InjectLoss() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == 0 {
		r.events = append(r.events, xr.Event{Type: xr.EventInstanceLossPending})
		return
	}
	r.queue(xr.SessionStateLossPending)
}

func (r *runtime) SetTrackingValid(valid bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackingValid = valid
}

func (r *runtime) State() xr.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *runtime) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *runtime) PollEvent() (xr.Event, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return xr.Event{}, false, nil
	}
	e := r.events[0]
	r.events = r.events[1:]
	return e, true, nil
}

func (r *runtime) StringToPath(path string) (xr.Path, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(path) < 2 || path[0] != '/' || path[len(path)-1] == '/' {
		return 0, fmt.Errorf("%w: %q", ErrPathInvalid, path)
	}
	if p, ok := r.paths[path]; ok {
		return p, nil
	}
	p := xr.Path(r.handle())
	r.paths[path] = p
	r.pathNames[p] = path
	return p, nil
}

func (r *runtime) CreateSession(binding gpu.Binding) (xr.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != 0 {
		return 0, ErrSessionExists
	}
	if binding.Device == nil {
		return 0, fmt.Errorf("%w: graphics binding has no device", ErrHandleInvalid)
	}
	r.session = xr.Session(r.handle())
	r.queue(xr.SessionStateIdle)
	r.queue(xr.SessionStateReady)
	r.logger.Info("sim session created", zap.Uint64("session", uint64(r.session)))
	return r.session, nil
}

func (r *runtime) DestroySession(session xr.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkSession(session); err != nil {
		return err
	}
	if r.running {
		return ErrSessionRunning
	}
	r.session = 0
	r.events = nil
	r.input.attached = 0
	r.logger.Info("sim session destroyed")
	return nil
}

func (r *runtime) BeginSession(session xr.Session, viewConfig xr.ViewConfigurationType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkSession(session); err != nil {
		return err
	}
	if viewConfig != xr.ViewConfigurationPrimaryStereo {
		return ErrViewConfigInvalid
	}
	if r.running {
		return ErrSessionRunning
	}
	r.running = true
	r.stage = frameIdle
	r.queue(xr.SessionStateSynchronized)
	r.queue(xr.SessionStateVisible)
	r.queue(xr.SessionStateFocused)
	return nil
}

func (r *runtime) EndSession(session xr.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkSession(session); err != nil {
		return err
	}
	if !r.running {
		return ErrSessionNotRunning
	}
	r.running = false
	r.queue(xr.SessionStateIdle)
	if r.exitRequested {
		r.queue(xr.SessionStateExiting)
	}
	return nil
}

func (r *runtime) CreateReferenceSpace(session xr.Session, spaceType xr.ReferenceSpaceType, _ common.Pose) (xr.Space, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkSession(session); err != nil {
		return 0, err
	}
	switch spaceType {
	case xr.ReferenceSpaceView, xr.ReferenceSpaceLocal, xr.ReferenceSpaceStage:
	default:
		return 0, fmt.Errorf("sim: unsupported reference space type %d", spaceType)
	}
	s := xr.Space(r.handle())
	r.spaces[s] = spaceInfo{}
	return s, nil
}

func (r *runtime) DestroySpace(space xr.Space) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.spaces[space]; !ok {
		return fmt.Errorf("%w: space %d", ErrHandleInvalid, space)
	}
	delete(r.spaces, space)
	return nil
}

func (r *runtime) EnumerateViewConfigurationViews(viewConfig xr.ViewConfigurationType) ([]xr.ViewConfigurationView, error) {
	if viewConfig != xr.ViewConfigurationPrimaryStereo {
		return nil, ErrViewConfigInvalid
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	view := xr.ViewConfigurationView{
		RecommendedExtent:      r.eyeExtent,
		MaxExtent:              common.Extent2D{Width: r.eyeExtent.Width * 2, Height: r.eyeExtent.Height * 2},
		RecommendedSampleCount: 1,
		MaxSampleCount:         4,
	}
	return []xr.ViewConfigurationView{view, view}, nil
}

func (r *runtime) EnumerateSwapchainFormats(session xr.Session) ([]gpu.Format, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkSession(session); err != nil {
		return nil, err
	}
	return slices.Clone(r.formats), nil
}

func (r *runtime) CreateSwapchain(session xr.Session, info xr.SwapchainCreateInfo) (xr.Swapchain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkSession(session); err != nil {
		return 0, err
	}
	if !slices.Contains(r.formats, info.Format) {
		return 0, fmt.Errorf("%w: %d", ErrFormatUnsupported, info.Format)
	}
	if info.ArraySize == 0 || info.ArraySize > supportedLayers {
		return 0, fmt.Errorf("sim: array size %d out of range", info.ArraySize)
	}

	sc := &swapchain{info: info}
	for i := 0; i < r.swapchainLength; i++ {
		image, err := r.device.CreateImage(gpu.ImageDescriptor{
			Label:       fmt.Sprintf("sim swapchain %d", i),
			Extent:      info.Extent,
			ArrayLayers: info.ArraySize,
			Format:      info.Format,
			Usage:       info.Usage | gpu.ImageUsageTransferSrc,
			SampleCount: info.SampleCount,
		})
		if err != nil {
			r.destroyImages(sc)
			return 0, fmt.Errorf("sim: failed to create swapchain image %d: %w", i, err)
		}
		sc.images = append(sc.images, image)
	}

	h := xr.Swapchain(r.handle())
	r.swapchains[h] = sc
	return h, nil
}

func (r *runtime) destroyImages(sc *swapchain) {
	for _, image := range sc.images {
		r.device.DestroyImage(image)
	}
	sc.images = nil
}

func (r *runtime) DestroySwapchain(handle xr.Swapchain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.swapchains[handle]
	if !ok {
		return fmt.Errorf("%w: swapchain %d", ErrHandleInvalid, handle)
	}
	r.destroyImages(sc)
	delete(r.swapchains, handle)
	return nil
}

func (r *runtime) EnumerateSwapchainImages(handle xr.Swapchain) ([]gpu.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.swapchains[handle]
	if !ok {
		return nil, fmt.Errorf("%w: swapchain %d", ErrHandleInvalid, handle)
	}
	return slices.Clone(sc.images), nil
}

func (r *runtime) AcquireSwapchainImage(handle xr.Swapchain) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.swapchains[handle]
	if !ok {
		return 0, fmt.Errorf("%w: swapchain %d", ErrHandleInvalid, handle)
	}
	if sc.acquired {
		return 0, fmt.Errorf("%w: image already acquired", ErrCallOrderInvalid)
	}
	index := sc.next
	sc.next = (sc.next + 1) % uint32(len(sc.images))
	sc.acquired = true
	return index, nil
}

func (r *runtime) WaitSwapchainImage(handle xr.Swapchain, _ xr.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.swapchains[handle]
	if !ok {
		return fmt.Errorf("%w: swapchain %d", ErrHandleInvalid, handle)
	}
	if !sc.acquired || sc.waited {
		return fmt.Errorf("%w: wait without acquire", ErrCallOrderInvalid)
	}
	sc.waited = true
	return nil
}

func (r *runtime) ReleaseSwapchainImage(handle xr.Swapchain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.swapchains[handle]
	if !ok {
		return fmt.Errorf("%w: swapchain %d", ErrHandleInvalid, handle)
	}
	if !sc.waited {
		return fmt.Errorf("%w: release without wait", ErrCallOrderInvalid)
	}
	sc.acquired = false
	sc.waited = false
	return nil
}

// WaitFrame blocks until one period before the next display time.
func (r *runtime) WaitFrame(session xr.Session) (xr.FrameState, error) {
	r.mu.Lock()
	if err := r.checkSession(session); err != nil {
		r.mu.Unlock()
		return xr.FrameState{}, err
	}
	if !r.running {
		r.mu.Unlock()
		return xr.FrameState{}, ErrSessionNotRunning
	}

	now := r.now()
	if r.nextDisplay.IsZero() || r.nextDisplay.Before(now) {
		r.nextDisplay = now.Add(r.period)
	} else {
		r.nextDisplay = r.nextDisplay.Add(r.period)
	}
	display := r.nextDisplay
	wake := display.Add(-r.period)
	paced := r.paced
	state := xr.FrameState{
		PredictedDisplayTime:   xr.Time(display.UnixNano()),
		PredictedDisplayPeriod: xr.Duration(r.period),
		ShouldRender:           r.state == xr.SessionStateVisible || r.state == xr.SessionStateFocused,
	}
	r.stage = frameWaited
	r.stats.FramesWaited++
	r.mu.Unlock()

	if paced {
		if d := wake.Sub(now); d > 0 {
			r.sleep(d)
		}
	}
	return state, nil
}

func (r *runtime) BeginFrame(session xr.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkSession(session); err != nil {
		return err
	}
	if r.stage != frameWaited {
		return fmt.Errorf("%w: begin frame without wait frame", ErrCallOrderInvalid)
	}
	r.stage = frameBegun
	return nil
}

func (r *runtime) EndFrame(session xr.Session, info xr.FrameEndInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkSession(session); err != nil {
		return err
	}
	if r.stage != frameBegun {
		return fmt.Errorf("%w: end frame without begin frame", ErrCallOrderInvalid)
	}
	for _, layer := range info.Layers {
		for _, v := range layer.Views {
			sc, ok := r.swapchains[v.SubImage.Swapchain]
			if !ok {
				return fmt.Errorf("%w: layer swapchain %d", ErrHandleInvalid, v.SubImage.Swapchain)
			}
			if sc.acquired {
				return fmt.Errorf("%w: layer image not released", ErrCallOrderInvalid)
			}
			if v.SubImage.ImageArrayIndex >= sc.info.ArraySize {
				return fmt.Errorf("sim: layer array index %d out of range", v.SubImage.ImageArrayIndex)
			}
		}
	}
	r.stage = frameIdle
	r.stats.FramesEnded++
	r.stats.LayersSubmitted += len(info.Layers)
	r.stats.LastFrameEnd = info
	return nil
}

func (r *runtime) LocateViews(session xr.Session, viewConfig xr.ViewConfigurationType, displayTime xr.Time, space xr.Space) (xr.ViewStateFlags, []xr.View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkSession(session); err != nil {
		return 0, nil, err
	}
	if !r.running {
		return 0, nil, ErrSessionNotRunning
	}
	if viewConfig != xr.ViewConfigurationPrimaryStereo {
		return 0, nil, ErrViewConfigInvalid
	}
	if _, ok := r.spaces[space]; !ok {
		return 0, nil, fmt.Errorf("%w: space %d", ErrHandleInvalid, space)
	}

	head, yaw := r.headPose(displayTime)
	views := make([]xr.View, 2)
	for eye, side := range []float32{-1, 1} {
		offset := rotateY(common.Vec3{X: side * interpupillary / 2}, yaw)
		views[eye] = xr.View{
			Pose: common.Pose{
				Orientation: head.Orientation,
				Position:    common.Vec3{X: head.Position.X + offset.X, Y: head.Position.Y + offset.Y, Z: head.Position.Z + offset.Z},
			},
			Fov: eyeFov(side),
		}
	}

	var flags xr.ViewStateFlags
	if r.trackingValid {
		flags = xr.ViewStateOrientationValid | xr.ViewStatePositionValid | xr.ViewStateOrientationTracked | xr.ViewStatePositionTracked
	}
	return flags, views, nil
}

// headPose is a standing head slowly looking left and right. Caller must hold the mutex.
func (r *runtime) headPose(t xr.Time) (common.Pose, float64) {
	if !r.animate {
		return common.Pose{Orientation: common.Quat{W: 1}, Position: common.Vec3{Y: standingHeight}}, 0
	}
	secs := float64(t) / float64(time.Second)
	yaw := 0.25 * math.Sin(secs*0.5)
	return common.Pose{
		Orientation: common.Quat{Y: float32(math.Sin(yaw / 2)), W: float32(math.Cos(yaw / 2))},
		Position:    common.Vec3{Y: standingHeight + float32(0.01*math.Sin(secs*1.3))},
	}, yaw
}

// eyeFov returns a slightly asymmetric field of view; the wider half-angle faces outward.
func eyeFov(side float32) common.Fov {
	const inner, outer = 0.76, 0.87
	if side < 0 {
		return common.Fov{AngleLeft: -outer, AngleRight: inner, AngleUp: 0.82, AngleDown: -0.9}
	}
	return common.Fov{AngleLeft: -inner, AngleRight: outer, AngleUp: 0.82, AngleDown: -0.9}
}

func rotateY(v common.Vec3, yaw float64) common.Vec3 {
	s, c := float32(math.Sin(yaw)), float32(math.Cos(yaw))
	return common.Vec3{X: v.X*c + v.Z*s, Y: v.Y, Z: -v.X*s + v.Z*c}
}
