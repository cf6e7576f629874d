// Package xr drives a stereo head-mounted display through an XR runtime: the session lifecycle,
// the per-frame wait/begin/locate/acquire/end protocol, the swapchain and its render targets,
// and controller and hand-tracking input synchronized to the frame.
package xr

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/gpu"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// BeginFrameResult tells the caller what to do with the current frame.
type BeginFrameResult int

const (
	// BeginFrameError reports a per-frame failure. EndFrame must not be called.
	BeginFrameError BeginFrameResult = iota
	// BeginFrameRenderFully means the image is acquired and eye matrices are current: render, then EndFrame.
	BeginFrameRenderFully
	// BeginFrameSkipRender means the frame is acquired but should not be drawn: call EndFrame only.
	BeginFrameSkipRender
	// BeginFrameSkipFully means no frame was started: do not call EndFrame.
	BeginFrameSkipFully
)

func (r BeginFrameResult) String() string {
	switch r {
	case BeginFrameError:
		return "error"
	case BeginFrameRenderFully:
		return "render_fully"
	case BeginFrameSkipRender:
		return "skip_render"
	case BeginFrameSkipFully:
		return "skip_fully"
	}
	return fmt.Sprintf("BeginFrameResult(%d)", int(r))
}

// eyeView is the per-eye state. Pose and matrices are refreshed by every BeginFrame that
// gets past the session gate.
type eyeView struct {
	resolution     common.Extent2D
	subImage       SwapchainSubImage
	view           View
	viewMatrix     [16]float32
	projection     [16]float32
	viewProjection [16]float32
}

// headset implements the Headset interface.
// All methods must be called from the single frame goroutine.
type headset struct {
	runtime Runtime
	device  gpu.Device
	logger  *zap.Logger
	metrics *metrics
	id      uuid.UUID

	registerer        prometheus.Registerer
	nearClip          float32
	farClip           float32
	referenceSpace    ReferenceSpaceType
	viewConfig        ViewConfigurationType
	honorShouldRender bool

	stack  releaseStack
	valid  bool
	err    error
	closed bool

	renderPass gpu.RenderPass
	session    sessionMachine
	space      Space
	eyes       []eyeView
	swapchain  *swapchainSet
	input      inputSystem

	frameState FrameState
	viewState  ViewStateFlags
	inFlight   bool
	imageIndex uint32
}

// Headset is the frame-cycle controller for one XR session.
type Headset interface {
	// IsValid reports whether construction succeeded and the headset has not been closed.
	// An invalid headset must not be used for frame processing.
	//
	// Returns:
	//   - bool: true if the headset can process frames
	IsValid() bool

	// Err returns the construction failure, or nil.
	//
	// Returns:
	//   - error: the error that invalidated the headset
	Err() error

	// ID returns the correlation id attached to every log line of this headset.
	//
	// Returns:
	//   - string: the headset id
	ID() string

	// BeginFrame drains runtime events, then, if the session state allows it, waits for the next frame,
	// locates the eyes, acquires a swapchain image and polls input.
	// EndFrame must follow every RenderFully or SkipRender result and no other.
	//
	// Returns:
	//   - BeginFrameResult: what the caller should do with this frame
	//   - uint32: the acquired swapchain image index, valid for RenderFully and SkipRender
	//   - error: the failure when the result is BeginFrameError, nil otherwise
	BeginFrame() (BeginFrameResult, uint32, error)

	// EndFrame releases the acquired image and submits the frame. The projection layer is only
	// submitted when the runtime asked for rendering and the eye poses were valid.
	// Runtime failures are counted and absorbed. Calling EndFrame with no frame in flight does nothing.
	EndFrame()

	// IsExitRequested reports whether the runtime asked the application to exit. Once true it stays true.
	//
	// Returns:
	//   - bool: true if the frame loop should stop
	IsExitRequested() bool

	// SessionState returns the last session state reported by the runtime.
	//
	// Returns:
	//   - SessionState: the current state
	SessionState() SessionState

	// EyeCount returns the number of views, fixed at construction.
	//
	// Returns:
	//   - int: the eye count
	EyeCount() int

	// EyeResolution returns the recommended render resolution of an eye.
	//
	// Parameters:
	//   - eye: the eye index
	//
	// Returns:
	//   - common.Extent2D: the resolution in pixels
	EyeResolution(eye int) common.Extent2D

	// EyeViewMatrix returns the view matrix of an eye (column-major), current after RenderFully.
	//
	// Parameters:
	//   - eye: the eye index
	//
	// Returns:
	//   - [16]float32: the view matrix
	EyeViewMatrix(eye int) [16]float32

	// EyeProjectionMatrix returns the projection matrix of an eye (column-major), current after RenderFully.
	//
	// Parameters:
	//   - eye: the eye index
	//
	// Returns:
	//   - [16]float32: the projection matrix
	EyeProjectionMatrix(eye int) [16]float32

	// EyeViewProjectionMatrix returns projection * view for an eye.
	//
	// Parameters:
	//   - eye: the eye index
	//
	// Returns:
	//   - [16]float32: the combined matrix
	EyeViewProjectionMatrix(eye int) [16]float32

	// PredictedDisplayTime returns the display time of the frame in flight.
	//
	// Returns:
	//   - Time: the predicted display time
	PredictedDisplayTime() Time

	// RenderPass returns the multiview render pass every render target is compatible with.
	//
	// Returns:
	//   - gpu.RenderPass: the render pass handle
	RenderPass() gpu.RenderPass

	// RenderTargetCount returns the number of swapchain images.
	//
	// Returns:
	//   - int: the render target count
	RenderTargetCount() int

	// RenderTarget returns the render target for a swapchain image index, or nil if out of range.
	//
	// Parameters:
	//   - index: the swapchain image index returned by BeginFrame
	//
	// Returns:
	//   - gpu.RenderTarget: the render target
	RenderTarget(index uint32) gpu.RenderTarget

	// TrackedPoints returns the tracked-point slots of the current frame. Slots not written this
	// frame hold the identity pose.
	//
	// Returns:
	//   - [MaxTrackedPoints]common.Pose: a copy of the slots
	TrackedPoints() [MaxTrackedPoints]common.Pose

	// HandLocation returns the located controller pose of a hand.
	//
	// Parameters:
	//   - hand: the hand
	//
	// Returns:
	//   - SpaceLocation: the location and its validity flags
	HandLocation(hand Hand) SpaceLocation

	// GrabValue returns the grab action state of a hand.
	//
	// Parameters:
	//   - hand: the hand
	//
	// Returns:
	//   - ActionStateFloat: the grab state
	GrabValue(hand Hand) ActionStateFloat

	// SystemButton returns the system button state of a hand.
	//
	// Parameters:
	//   - hand: the hand
	//
	// Returns:
	//   - ActionStateBoolean: the button state
	SystemButton(hand Hand) ActionStateBoolean

	// HandJoints returns the last joint set located for a hand.
	//
	// Parameters:
	//   - hand: the hand
	//
	// Returns:
	//   - HandJointLocations: the joints, only meaningful when IsActive is set
	HandJoints(hand Hand) HandJointLocations

	// IsPinching reports the pinch gesture of a hand. The value is kept while the hand tracker is inactive.
	//
	// Parameters:
	//   - hand: the hand
	//
	// Returns:
	//   - bool: true while index and thumb tips touch
	IsPinching(hand Hand) bool

	// SetInputListener replaces the listener receiving input events. Pass nil to remove it.
	//
	// Parameters:
	//   - listener: the new listener
	SetInputListener(listener InputListener)

	// Close ends a running session and releases every resource in reverse order of creation.
	// Safe to call more than once.
	Close()
}

// NewHeadset creates the render pass, session, reference space, swapchain, depth buffer, render
// targets and input actions, in that order. It never returns nil: on failure everything created so
// far is released and the returned headset reports IsValid() == false and the cause through Err().
//
// Parameters:
//   - runtime: the XR runtime
//   - device: the graphics device the session is bound to
//   - options: functional options for headset configuration
//
// Returns:
//   - Headset: the headset
func NewHeadset(runtime Runtime, device gpu.Device, options ...HeadsetBuilderOption) Headset {
	h := &headset{
		runtime:        runtime,
		device:         device,
		logger:         zap.NewNop(),
		id:             uuid.New(),
		nearClip:       0.1,
		farClip:        250.0,
		referenceSpace: ReferenceSpaceStage,
		viewConfig:     ViewConfigurationPrimaryStereo,
		input: inputSystem{
			cfg: inputConfig{
				grabThreshold:   0.75,
				hapticAmplitude: 0.5,
				pinchDistance:   0.001,
				handTracking:    true,
			},
		},
	}

	for _, opt := range options {
		opt(h)
	}

	h.logger = h.logger.With(zap.String("headset", h.id.String()))
	h.metrics = newMetrics(h.registerer)
	h.stack.logger = h.logger

	if err := h.init(); err != nil {
		h.err = err
		h.logger.Error("headset construction failed", zap.Error(err))
		h.stack.unwind()
		return h
	}
	h.valid = true
	h.logger.Info("headset ready",
		zap.Int("eyes", len(h.eyes)),
		zap.Uint32("width", h.swapchain.extent.Width),
		zap.Uint32("height", h.swapchain.extent.Height),
		zap.Int("images", len(h.swapchain.targets)),
	)
	return h
}

func (h *headset) init() error {
	if h.runtime == nil || h.device == nil {
		return errors.New("runtime and device are required")
	}

	pass, err := createRenderPass(h.device, &h.stack)
	if err != nil {
		return err
	}
	h.renderPass = pass

	session, err := h.runtime.CreateSession(h.device.Binding())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	h.session = sessionMachine{
		runtime:    h.runtime,
		session:    session,
		viewConfig: h.viewConfig,
		logger:     h.logger,
		metrics:    h.metrics,
	}
	h.stack.push("session", h.destroySession)

	space, err := h.runtime.CreateReferenceSpace(session, h.referenceSpace, common.IdentityPose())
	if err != nil {
		return fmt.Errorf("failed to create %s reference space: %w", h.referenceSpace, err)
	}
	h.space = space
	h.stack.push("reference space", func() error { return h.runtime.DestroySpace(space) })

	views, err := h.runtime.EnumerateViewConfigurationViews(h.viewConfig)
	if err != nil {
		return fmt.Errorf("failed to enumerate view configuration views: %w", err)
	}
	if len(views) == 0 {
		return errors.New("runtime reported no views")
	}

	swapchain, err := createSwapchainSet(h.runtime, h.device, session, pass, views[0], uint32(len(views)), &h.stack)
	if err != nil {
		return err
	}
	h.swapchain = swapchain

	h.eyes = make([]eyeView, len(views))
	for i := range h.eyes {
		e := &h.eyes[i]
		e.resolution = views[i].RecommendedExtent
		e.subImage = SwapchainSubImage{
			Swapchain:       swapchain.swapchain,
			ImageRect:       common.Rect2D{Extent: swapchain.extent},
			ImageArrayIndex: uint32(i),
		}
		e.view.Pose = common.IdentityPose()
		common.Identity(e.viewMatrix[:])
		common.Identity(e.projection[:])
		common.Identity(e.viewProjection[:])
	}

	h.input.runtime = h.runtime
	h.input.session = session
	h.input.baseSpace = space
	h.input.logger = h.logger
	h.input.metrics = h.metrics
	return h.input.setup(&h.stack)
}

// destroySession ends the session if it is still running, then destroys it.
func (h *headset) destroySession() error {
	if h.session.running {
		if err := h.runtime.EndSession(h.session.session); err != nil {
			h.logger.Warn("failed to end session during teardown", zap.Error(err))
		}
		h.session.running = false
	}
	return h.runtime.DestroySession(h.session.session)
}

func (h *headset) IsValid() bool {
	return h.valid
}

func (h *headset) Err() error {
	return h.err
}

func (h *headset) ID() string {
	return h.id.String()
}

func (h *headset) BeginFrame() (BeginFrameResult, uint32, error) {
	result, err := h.beginFrame()
	h.metrics.frames.WithLabelValues(result.String()).Inc()
	if err != nil {
		h.logger.Warn("begin frame failed", zap.Error(err))
		return BeginFrameError, 0, err
	}
	return result, h.imageIndex, nil
}

func (h *headset) beginFrame() (BeginFrameResult, error) {
	if !h.valid {
		return BeginFrameError, ErrNotValid
	}
	if h.inFlight {
		h.logger.Warn("begin frame called before the previous frame was ended")
		h.EndFrame()
	}

	abandon, err := h.session.pump()
	if err != nil {
		return BeginFrameError, err
	}
	if abandon || !IsRenderEligible(h.session.state) {
		return BeginFrameSkipFully, nil
	}

	frameState, err := h.runtime.WaitFrame(h.session.session)
	if err != nil {
		return BeginFrameError, fmt.Errorf("failed to wait for frame: %w", err)
	}
	h.frameState = frameState

	if err := h.runtime.BeginFrame(h.session.session); err != nil {
		return BeginFrameError, fmt.Errorf("failed to begin frame: %w", err)
	}

	if err := h.locateEyes(); err != nil {
		return BeginFrameError, err
	}

	index, err := h.runtime.AcquireSwapchainImage(h.swapchain.swapchain)
	if err != nil {
		return BeginFrameError, fmt.Errorf("failed to acquire swapchain image: %w", err)
	}
	if err := h.runtime.WaitSwapchainImage(h.swapchain.swapchain, InfiniteDuration); err != nil {
		return BeginFrameError, fmt.Errorf("failed to wait for swapchain image %d: %w", index, err)
	}
	h.imageIndex = index
	h.inFlight = true

	h.input.poll(frameState.PredictedDisplayTime)

	if h.honorShouldRender && !frameState.ShouldRender {
		return BeginFrameSkipRender, nil
	}
	return BeginFrameRenderFully, nil
}

// locateEyes refreshes every eye's pose and matrices for the predicted display time.
func (h *headset) locateEyes() error {
	state, views, err := h.runtime.LocateViews(h.session.session, h.viewConfig, h.frameState.PredictedDisplayTime, h.space)
	if err != nil {
		return fmt.Errorf("failed to locate views: %w", err)
	}
	if len(views) != len(h.eyes) {
		return fmt.Errorf("%w: located %d, configured %d", ErrViewCountMismatch, len(views), len(h.eyes))
	}
	h.viewState = state

	for i := range h.eyes {
		e := &h.eyes[i]
		e.view = views[i]
		common.ViewMatrix(e.viewMatrix[:], e.view.Pose)
		common.ProjectionFromFov(e.projection[:], e.view.Fov, h.nearClip, h.farClip)
		common.Mul4(e.viewProjection[:], e.projection[:], e.viewMatrix[:])
	}
	return nil
}

func (h *headset) EndFrame() {
	if !h.inFlight {
		h.logger.Warn("end frame called with no frame in flight")
		return
	}
	h.inFlight = false

	if err := h.runtime.ReleaseSwapchainImage(h.swapchain.swapchain); err != nil {
		h.metrics.endFrameFailures.WithLabelValues("release").Inc()
		h.logger.Debug("failed to release swapchain image", zap.Error(err))
		return
	}

	info := FrameEndInfo{
		DisplayTime: h.frameState.PredictedDisplayTime,
		BlendMode:   EnvironmentBlendModeOpaque,
	}
	if h.shouldSubmitLayer() {
		layer := CompositionLayerProjection{Space: h.space, Views: make([]CompositionLayerProjectionView, len(h.eyes))}
		for i, e := range h.eyes {
			layer.Views[i] = CompositionLayerProjectionView{Pose: e.view.Pose, Fov: e.view.Fov, SubImage: e.subImage}
		}
		info.Layers = []CompositionLayerProjection{layer}
	}

	if err := h.runtime.EndFrame(h.session.session, info); err != nil {
		h.metrics.endFrameFailures.WithLabelValues("end").Inc()
		h.logger.Debug("failed to end frame", zap.Error(err))
	}
}

func (h *headset) shouldSubmitLayer() bool {
	const poseValid = ViewStatePositionValid | ViewStateOrientationValid
	return h.frameState.ShouldRender && h.viewState&poseValid == poseValid
}

func (h *headset) IsExitRequested() bool {
	return h.session.exitRequested
}

func (h *headset) SessionState() SessionState {
	return h.session.state
}

func (h *headset) EyeCount() int {
	return len(h.eyes)
}

func (h *headset) EyeResolution(eye int) common.Extent2D {
	return h.eyes[eye].resolution
}

func (h *headset) EyeViewMatrix(eye int) [16]float32 {
	return h.eyes[eye].viewMatrix
}

func (h *headset) EyeProjectionMatrix(eye int) [16]float32 {
	return h.eyes[eye].projection
}

func (h *headset) EyeViewProjectionMatrix(eye int) [16]float32 {
	return h.eyes[eye].viewProjection
}

func (h *headset) PredictedDisplayTime() Time {
	return h.frameState.PredictedDisplayTime
}

func (h *headset) RenderPass() gpu.RenderPass {
	return h.renderPass
}

func (h *headset) RenderTargetCount() int {
	if h.swapchain == nil {
		return 0
	}
	return len(h.swapchain.targets)
}

func (h *headset) RenderTarget(index uint32) gpu.RenderTarget {
	if h.swapchain == nil || int(index) >= len(h.swapchain.targets) {
		return nil
	}
	return h.swapchain.targets[index]
}

func (h *headset) TrackedPoints() [MaxTrackedPoints]common.Pose {
	return h.input.slots
}

func (h *headset) HandLocation(hand Hand) SpaceLocation {
	return h.input.hands[hand].location
}

func (h *headset) GrabValue(hand Hand) ActionStateFloat {
	return h.input.hands[hand].grab
}

func (h *headset) SystemButton(hand Hand) ActionStateBoolean {
	return h.input.hands[hand].system
}

func (h *headset) HandJoints(hand Hand) HandJointLocations {
	return h.input.hands[hand].joints
}

func (h *headset) IsPinching(hand Hand) bool {
	return h.input.hands[hand].pinch
}

func (h *headset) SetInputListener(listener InputListener) {
	h.input.listener = listener
}

func (h *headset) Close() {
	if h.closed {
		return
	}
	h.closed = true
	h.valid = false
	h.inFlight = false
	h.stack.unwind()
	h.logger.Info("headset closed")
}
