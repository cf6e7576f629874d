package xr

import (
	"math"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/gpu"
)

// Opaque runtime handles. The zero value of each is the null handle.
type (
	Session     uint64
	Space       uint64
	Swapchain   uint64
	ActionSet   uint64
	Action      uint64
	HandTracker uint64
	Path        uint64
)

// NullPath is the null semantic path, used as the subaction path when an action is queried across all hands.
const NullPath Path = 0

// Time is a runtime timestamp in nanoseconds.
type Time int64

// Duration is a runtime duration in nanoseconds.
type Duration int64

const (
	// InfiniteDuration waits without a timeout.
	InfiniteDuration Duration = math.MaxInt64
	// MinHapticDuration asks the runtime for the shortest pulse the device supports.
	MinHapticDuration Duration = -1
	// FrequencyUnspecified lets the runtime choose the haptic frequency.
	FrequencyUnspecified float32 = 0
)

// Hand indexes the two tracked hands.
type Hand int

const (
	HandLeft Hand = iota
	HandRight
	HandCount
)

// String returns the lowercase hand name as used in semantic paths.
func (h Hand) String() string {
	switch h {
	case HandLeft:
		return "left"
	case HandRight:
		return "right"
	}
	return "unknown"
}

// ViewConfigurationType selects how many views the runtime expects per frame.
type ViewConfigurationType int

const (
	ViewConfigurationPrimaryMono   ViewConfigurationType = 1
	ViewConfigurationPrimaryStereo ViewConfigurationType = 2
)

// ReferenceSpaceType selects the coordinate frame of a reference space.
type ReferenceSpaceType int

const (
	ReferenceSpaceView  ReferenceSpaceType = 1
	ReferenceSpaceLocal ReferenceSpaceType = 2
	ReferenceSpaceStage ReferenceSpaceType = 3
)

// String returns the configuration name of the reference space type.
func (t ReferenceSpaceType) String() string {
	switch t {
	case ReferenceSpaceView:
		return "view"
	case ReferenceSpaceLocal:
		return "local"
	case ReferenceSpaceStage:
		return "stage"
	}
	return "unknown"
}

// ParseReferenceSpaceType is the inverse of ReferenceSpaceType.String.
func ParseReferenceSpaceType(name string) (ReferenceSpaceType, bool) {
	for _, t := range []ReferenceSpaceType{ReferenceSpaceView, ReferenceSpaceLocal, ReferenceSpaceStage} {
		if t.String() == name {
			return t, true
		}
	}
	return 0, false
}

// EventType identifies a polled runtime event.
type EventType int

const (
	EventSessionStateChanged EventType = iota + 1
	EventInstanceLossPending
)

// Event is one runtime notification. State is only meaningful for EventSessionStateChanged.
type Event struct {
	Type  EventType
	State SessionState
	Time  Time
}

// ViewConfigurationView carries the runtime's recommendation for one view.
type ViewConfigurationView struct {
	RecommendedExtent      common.Extent2D
	MaxExtent              common.Extent2D
	RecommendedSampleCount uint32
	MaxSampleCount         uint32
}

// View is the pose and field of view of one eye at a display time.
type View struct {
	Pose common.Pose
	Fov  common.Fov
}

// ViewStateFlags report which components of the located views are usable.
type ViewStateFlags uint64

const (
	ViewStateOrientationValid ViewStateFlags = 1 << iota
	ViewStatePositionValid
	ViewStateOrientationTracked
	ViewStatePositionTracked
)

// SpaceLocationFlags report which components of a located space are usable.
type SpaceLocationFlags uint64

const (
	SpaceLocationOrientationValid SpaceLocationFlags = 1 << iota
	SpaceLocationPositionValid
	SpaceLocationOrientationTracked
	SpaceLocationPositionTracked
)

// SpaceLocation is the result of locating one space against another.
type SpaceLocation struct {
	Flags SpaceLocationFlags
	Pose  common.Pose
}

// FrameState is returned by WaitFrame.
type FrameState struct {
	PredictedDisplayTime   Time
	PredictedDisplayPeriod Duration
	ShouldRender           bool
}

// SwapchainCreateInfo describes the swapchain requested from the runtime.
type SwapchainCreateInfo struct {
	Usage       gpu.ImageUsage
	Format      gpu.Format
	SampleCount uint32
	Extent      common.Extent2D
	FaceCount   uint32
	ArraySize   uint32
	MipCount    uint32
}

// SwapchainSubImage addresses one layer region of a swapchain image.
type SwapchainSubImage struct {
	Swapchain       Swapchain
	ImageRect       common.Rect2D
	ImageArrayIndex uint32
}

// CompositionLayerProjectionView is one eye of a projection layer.
type CompositionLayerProjectionView struct {
	Pose     common.Pose
	Fov      common.Fov
	SubImage SwapchainSubImage
}

// CompositionLayerProjection is a stereo layer composited by the runtime.
type CompositionLayerProjection struct {
	Space Space
	Views []CompositionLayerProjectionView
}

// EnvironmentBlendMode controls how layers are blended with the real world.
type EnvironmentBlendMode int

const (
	EnvironmentBlendModeOpaque EnvironmentBlendMode = 1
)

// FrameEndInfo is submitted with EndFrame. An empty Layers slice ends the frame with nothing composited.
type FrameEndInfo struct {
	DisplayTime Time
	BlendMode   EnvironmentBlendMode
	Layers      []CompositionLayerProjection
}

// ActionType is the value type of an action.
type ActionType int

const (
	ActionTypeBoolean ActionType = 1
	ActionTypeFloat   ActionType = 2
	ActionTypePose    ActionType = 4
	ActionTypeHaptic  ActionType = 100
)

// ActionCreateInfo describes one action in an action set.
type ActionCreateInfo struct {
	Name           string
	LocalizedName  string
	Type           ActionType
	SubactionPaths []Path
}

// SuggestedBinding binds an action to an input or output path of an interaction profile.
type SuggestedBinding struct {
	Action  Action
	Binding Path
}

// ActionStatePose reports whether a pose action is bound and active.
type ActionStatePose struct {
	IsActive bool
}

// ActionStateFloat is the current state of a float action.
type ActionStateFloat struct {
	CurrentState         float32
	ChangedSinceLastSync bool
	IsActive             bool
}

// ActionStateBoolean is the current state of a boolean action.
type ActionStateBoolean struct {
	CurrentState         bool
	ChangedSinceLastSync bool
	IsActive             bool
}

// HapticVibration describes one haptic pulse.
type HapticVibration struct {
	Duration  Duration
	Frequency float32
	Amplitude float32
}

// HandJointCount is the number of joints reported per hand.
const HandJointCount = 26

// Joint indices used by gesture detection.
const (
	HandJointPalm      = 0
	HandJointWrist     = 1
	HandJointThumbTip  = 5
	HandJointIndexTip  = 10
	HandJointLittleTip = 25
)

// HandJointLocation is the pose of one joint.
type HandJointLocation struct {
	Flags  SpaceLocationFlags
	Pose   common.Pose
	Radius float32
}

// HandJointVelocity is the linear and angular velocity of one joint.
type HandJointVelocity struct {
	Flags           SpaceLocationFlags
	LinearVelocity  common.Vec3
	AngularVelocity common.Vec3
}

// HandJointLocations is a full joint set for one hand. Joints and Velocities are only
// meaningful when IsActive is true.
type HandJointLocations struct {
	IsActive   bool
	Joints     [HandJointCount]HandJointLocation
	Velocities [HandJointCount]HandJointVelocity
}

// Runtime is the XR session and frame protocol consumed by the headset.
// Every method may block only where noted. Implementations are driven from a single goroutine.
type Runtime interface {
	// PollEvent returns the next queued event. ok is false when the queue is empty. Never blocks.
	PollEvent() (event Event, ok bool, err error)

	// StringToPath interns a semantic path such as "/user/hand/left".
	StringToPath(path string) (Path, error)

	// CreateSession binds a session to the graphics device described by binding.
	CreateSession(binding gpu.Binding) (Session, error)

	// DestroySession destroys a session. The session must not be running.
	DestroySession(session Session) error

	// BeginSession starts the session for the given view configuration.
	BeginSession(session Session, viewConfig ViewConfigurationType) error

	// EndSession stops a running session.
	EndSession(session Session) error

	// CreateReferenceSpace creates a reference space offset by pose.
	CreateReferenceSpace(session Session, spaceType ReferenceSpaceType, pose common.Pose) (Space, error)

	// DestroySpace destroys a reference or action space.
	DestroySpace(space Space) error

	// EnumerateViewConfigurationViews reports the recommended per-view parameters.
	EnumerateViewConfigurationViews(viewConfig ViewConfigurationType) ([]ViewConfigurationView, error)

	// EnumerateSwapchainFormats lists supported swapchain formats in runtime preference order.
	EnumerateSwapchainFormats(session Session) ([]gpu.Format, error)

	// CreateSwapchain creates a swapchain.
	CreateSwapchain(session Session, info SwapchainCreateInfo) (Swapchain, error)

	// DestroySwapchain destroys a swapchain and its images.
	DestroySwapchain(swapchain Swapchain) error

	// EnumerateSwapchainImages returns the runtime-owned color images of a swapchain.
	EnumerateSwapchainImages(swapchain Swapchain) ([]gpu.Image, error)

	// AcquireSwapchainImage returns the index of the next image to render into.
	AcquireSwapchainImage(swapchain Swapchain) (uint32, error)

	// WaitSwapchainImage blocks until the acquired image is writable or timeout elapses.
	WaitSwapchainImage(swapchain Swapchain, timeout Duration) error

	// ReleaseSwapchainImage hands the rendered image back to the runtime.
	ReleaseSwapchainImage(swapchain Swapchain) error

	// WaitFrame blocks until the runtime is ready for the next frame.
	WaitFrame(session Session) (FrameState, error)

	// BeginFrame marks the start of rendering for the frame returned by WaitFrame.
	BeginFrame(session Session) error

	// EndFrame submits the frame's composition layers.
	EndFrame(session Session, info FrameEndInfo) error

	// LocateViews returns the eye views at displayTime relative to space.
	LocateViews(session Session, viewConfig ViewConfigurationType, displayTime Time, space Space) (ViewStateFlags, []View, error)

	// CreateActionSet creates an action set.
	CreateActionSet(name, localizedName string, priority uint32) (ActionSet, error)

	// DestroyActionSet destroys an action set and its actions.
	DestroyActionSet(set ActionSet) error

	// CreateAction creates an action in set.
	CreateAction(set ActionSet, info ActionCreateInfo) (Action, error)

	// CreateActionSpace creates a space that tracks a pose action for one subaction path.
	CreateActionSpace(session Session, action Action, subaction Path, pose common.Pose) (Space, error)

	// SuggestInteractionProfileBindings suggests bindings for one interaction profile.
	SuggestInteractionProfileBindings(profile Path, bindings []SuggestedBinding) error

	// AttachSessionActionSets attaches action sets to a session. May only be called once per session.
	AttachSessionActionSets(session Session, sets []ActionSet) error

	// SyncActions updates the state of every action in set.
	SyncActions(session Session, set ActionSet) error

	// GetActionStatePose reads a pose action.
	GetActionStatePose(session Session, action Action, subaction Path) (ActionStatePose, error)

	// GetActionStateFloat reads a float action.
	GetActionStateFloat(session Session, action Action, subaction Path) (ActionStateFloat, error)

	// GetActionStateBoolean reads a boolean action.
	GetActionStateBoolean(session Session, action Action, subaction Path) (ActionStateBoolean, error)

	// ApplyHapticFeedback fires a haptic output action.
	ApplyHapticFeedback(session Session, action Action, subaction Path, vibration HapticVibration) error

	// LocateSpace locates space relative to base at time.
	LocateSpace(space, base Space, time Time) (SpaceLocation, error)

	// CreateHandTracker creates a joint tracker for one hand.
	CreateHandTracker(session Session, hand Hand) (HandTracker, error)

	// DestroyHandTracker destroys a hand tracker.
	DestroyHandTracker(tracker HandTracker) error

	// LocateHandJoints locates every joint of a hand relative to base at time.
	LocateHandJoints(tracker HandTracker, base Space, time Time, withVelocities bool) (HandJointLocations, error)
}
