package xr

import (
	"errors"
	"slices"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/gpu"
)

var errRuntime = errors.New("fake runtime failure")

type hapticCall struct {
	hand      Hand
	vibration HapticVibration
}

// fakeRuntime is a scriptable Runtime that records every call by method name.
type fakeRuntime struct {
	calls  []string
	failOn map[string]bool

	events []Event

	formats     []gpu.Format
	viewConfigs []ViewConfigurationView
	images      []gpu.Image
	frameState  FrameState
	viewState   ViewStateFlags
	views       []View
	imageIndex  uint32

	poseActive [HandCount]bool
	handLoc    [HandCount]SpaceLocation
	grab       [HandCount]ActionStateFloat
	system     [HandCount]ActionStateBoolean
	joints     [HandCount]HandJointLocations

	haptics          []hapticCall
	suggested        map[string][]SuggestedBinding
	swapchainInfos   []SwapchainCreateInfo
	endFrames        []FrameEndInfo
	referenceSpaces  []ReferenceSpaceType
	beginViewConfigs []ViewConfigurationType

	nextHandle   uint64
	paths        map[string]Path
	pathNames    map[Path]string
	actionNames  map[Action]string
	actionSpaces map[Space]Hand
	trackers     map[HandTracker]Hand
}

var _ Runtime = &fakeRuntime{}

func newFakeRuntime() *fakeRuntime {
	fov := common.Fov{AngleLeft: -0.8, AngleRight: 0.75, AngleUp: 0.8, AngleDown: -0.85}
	return &fakeRuntime{
		failOn:  map[string]bool{},
		formats: []gpu.Format{gpu.FormatB8G8R8A8Unorm, gpu.FormatR8G8B8A8Unorm},
		viewConfigs: []ViewConfigurationView{
			{RecommendedExtent: common.Extent2D{Width: 100, Height: 80}, RecommendedSampleCount: 1},
			{RecommendedExtent: common.Extent2D{Width: 100, Height: 80}, RecommendedSampleCount: 1},
		},
		images:     []gpu.Image{"image0", "image1", "image2"},
		frameState: FrameState{PredictedDisplayTime: 1_000_000, PredictedDisplayPeriod: 11_111_111, ShouldRender: true},
		viewState:  ViewStatePositionValid | ViewStateOrientationValid,
		views: []View{
			{Pose: common.Pose{Orientation: common.Quat{W: 1}, Position: common.Vec3{X: -0.032, Y: 1.6}}, Fov: fov},
			{Pose: common.Pose{Orientation: common.Quat{W: 1}, Position: common.Vec3{X: 0.032, Y: 1.6}}, Fov: fov},
		},
		imageIndex:   1,
		suggested:    map[string][]SuggestedBinding{},
		paths:        map[string]Path{},
		pathNames:    map[Path]string{},
		actionNames:  map[Action]string{},
		actionSpaces: map[Space]Hand{},
		trackers:     map[HandTracker]Hand{},
	}
}

func (r *fakeRuntime) record(name string) error {
	r.calls = append(r.calls, name)
	if r.failOn[name] {
		return errRuntime
	}
	return nil
}

func (r *fakeRuntime) handle() uint64 {
	r.nextHandle++
	return r.nextHandle
}

func (r *fakeRuntime) count(name string) int {
	n := 0
	for _, c := range r.calls {
		if c == name {
			n++
		}
	}
	return n
}

// mark returns the current call count so callsSince can report only newer calls.
func (r *fakeRuntime) mark() int {
	return len(r.calls)
}

func (r *fakeRuntime) callsSince(mark int) []string {
	return slices.Clone(r.calls[mark:])
}

func (r *fakeRuntime) pushState(states ...SessionState) {
	for _, s := range states {
		r.events = append(r.events, Event{Type: EventSessionStateChanged, State: s})
	}
}

func (r *fakeRuntime) handOf(path Path) (Hand, bool) {
	name := r.pathNames[path]
	for h, p := range handPaths {
		if p == name {
			return Hand(h), true
		}
	}
	return 0, false
}

func (r *fakeRuntime) PollEvent() (Event, bool, error) {
	if err := r.record("PollEvent"); err != nil {
		return Event{}, false, err
	}
	if len(r.events) == 0 {
		return Event{}, false, nil
	}
	e := r.events[0]
	r.events = r.events[1:]
	return e, true, nil
}

func (r *fakeRuntime) StringToPath(path string) (Path, error) {
	if err := r.record("StringToPath"); err != nil {
		return 0, err
	}
	if p, ok := r.paths[path]; ok {
		return p, nil
	}
	p := Path(r.handle())
	r.paths[path] = p
	r.pathNames[p] = path
	return p, nil
}

func (r *fakeRuntime) CreateSession(binding gpu.Binding) (Session, error) {
	if err := r.record("CreateSession"); err != nil {
		return 0, err
	}
	return Session(r.handle()), nil
}

func (r *fakeRuntime) DestroySession(Session) error { return r.record("DestroySession") }

func (r *fakeRuntime) BeginSession(_ Session, viewConfig ViewConfigurationType) error {
	r.beginViewConfigs = append(r.beginViewConfigs, viewConfig)
	return r.record("BeginSession")
}

func (r *fakeRuntime) EndSession(Session) error { return r.record("EndSession") }

func (r *fakeRuntime) CreateReferenceSpace(_ Session, spaceType ReferenceSpaceType, _ common.Pose) (Space, error) {
	if err := r.record("CreateReferenceSpace"); err != nil {
		return 0, err
	}
	r.referenceSpaces = append(r.referenceSpaces, spaceType)
	return Space(r.handle()), nil
}

func (r *fakeRuntime) DestroySpace(Space) error { return r.record("DestroySpace") }

func (r *fakeRuntime) EnumerateViewConfigurationViews(ViewConfigurationType) ([]ViewConfigurationView, error) {
	if err := r.record("EnumerateViewConfigurationViews"); err != nil {
		return nil, err
	}
	return slices.Clone(r.viewConfigs), nil
}

func (r *fakeRuntime) EnumerateSwapchainFormats(Session) ([]gpu.Format, error) {
	if err := r.record("EnumerateSwapchainFormats"); err != nil {
		return nil, err
	}
	return slices.Clone(r.formats), nil
}

func (r *fakeRuntime) CreateSwapchain(_ Session, info SwapchainCreateInfo) (Swapchain, error) {
	if err := r.record("CreateSwapchain"); err != nil {
		return 0, err
	}
	r.swapchainInfos = append(r.swapchainInfos, info)
	return Swapchain(r.handle()), nil
}

func (r *fakeRuntime) DestroySwapchain(Swapchain) error { return r.record("DestroySwapchain") }

func (r *fakeRuntime) EnumerateSwapchainImages(Swapchain) ([]gpu.Image, error) {
	if err := r.record("EnumerateSwapchainImages"); err != nil {
		return nil, err
	}
	return slices.Clone(r.images), nil
}

func (r *fakeRuntime) AcquireSwapchainImage(Swapchain) (uint32, error) {
	if err := r.record("AcquireSwapchainImage"); err != nil {
		return 0, err
	}
	return r.imageIndex, nil
}

func (r *fakeRuntime) WaitSwapchainImage(_ Swapchain, timeout Duration) error {
	if timeout != InfiniteDuration {
		return errors.New("swapchain image wait must not time out")
	}
	return r.record("WaitSwapchainImage")
}

func (r *fakeRuntime) ReleaseSwapchainImage(Swapchain) error { return r.record("ReleaseSwapchainImage") }

func (r *fakeRuntime) WaitFrame(Session) (FrameState, error) {
	if err := r.record("WaitFrame"); err != nil {
		return FrameState{}, err
	}
	return r.frameState, nil
}

func (r *fakeRuntime) BeginFrame(Session) error { return r.record("BeginFrame") }

func (r *fakeRuntime) EndFrame(_ Session, info FrameEndInfo) error {
	if err := r.record("EndFrame"); err != nil {
		return err
	}
	r.endFrames = append(r.endFrames, info)
	return nil
}

func (r *fakeRuntime) LocateViews(Session, ViewConfigurationType, Time, Space) (ViewStateFlags, []View, error) {
	if err := r.record("LocateViews"); err != nil {
		return 0, nil, err
	}
	return r.viewState, slices.Clone(r.views), nil
}

func (r *fakeRuntime) CreateActionSet(string, string, uint32) (ActionSet, error) {
	if err := r.record("CreateActionSet"); err != nil {
		return 0, err
	}
	return ActionSet(r.handle()), nil
}

func (r *fakeRuntime) DestroyActionSet(ActionSet) error { return r.record("DestroyActionSet") }

func (r *fakeRuntime) CreateAction(_ ActionSet, info ActionCreateInfo) (Action, error) {
	if err := r.record("CreateAction"); err != nil {
		return 0, err
	}
	a := Action(r.handle())
	r.actionNames[a] = info.Name
	return a, nil
}

func (r *fakeRuntime) CreateActionSpace(_ Session, _ Action, subaction Path, _ common.Pose) (Space, error) {
	if err := r.record("CreateActionSpace"); err != nil {
		return 0, err
	}
	s := Space(r.handle())
	hand, _ := r.handOf(subaction)
	r.actionSpaces[s] = hand
	return s, nil
}

func (r *fakeRuntime) SuggestInteractionProfileBindings(profile Path, bindings []SuggestedBinding) error {
	if err := r.record("SuggestInteractionProfileBindings"); err != nil {
		return err
	}
	r.suggested[r.pathNames[profile]] = slices.Clone(bindings)
	return nil
}

func (r *fakeRuntime) AttachSessionActionSets(Session, []ActionSet) error {
	return r.record("AttachSessionActionSets")
}

func (r *fakeRuntime) SyncActions(Session, ActionSet) error { return r.record("SyncActions") }

func (r *fakeRuntime) GetActionStatePose(_ Session, _ Action, subaction Path) (ActionStatePose, error) {
	if err := r.record("GetActionStatePose"); err != nil {
		return ActionStatePose{}, err
	}
	hand, _ := r.handOf(subaction)
	return ActionStatePose{IsActive: r.poseActive[hand]}, nil
}

func (r *fakeRuntime) GetActionStateFloat(_ Session, _ Action, subaction Path) (ActionStateFloat, error) {
	if err := r.record("GetActionStateFloat"); err != nil {
		return ActionStateFloat{}, err
	}
	hand, _ := r.handOf(subaction)
	return r.grab[hand], nil
}

func (r *fakeRuntime) GetActionStateBoolean(_ Session, _ Action, subaction Path) (ActionStateBoolean, error) {
	if err := r.record("GetActionStateBoolean"); err != nil {
		return ActionStateBoolean{}, err
	}
	hand, _ := r.handOf(subaction)
	return r.system[hand], nil
}

func (r *fakeRuntime) ApplyHapticFeedback(_ Session, _ Action, subaction Path, vibration HapticVibration) error {
	if err := r.record("ApplyHapticFeedback"); err != nil {
		return err
	}
	hand, _ := r.handOf(subaction)
	r.haptics = append(r.haptics, hapticCall{hand: hand, vibration: vibration})
	return nil
}

func (r *fakeRuntime) LocateSpace(space, _ Space, _ Time) (SpaceLocation, error) {
	if err := r.record("LocateSpace"); err != nil {
		return SpaceLocation{}, err
	}
	return r.handLoc[r.actionSpaces[space]], nil
}

func (r *fakeRuntime) CreateHandTracker(_ Session, hand Hand) (HandTracker, error) {
	if err := r.record("CreateHandTracker"); err != nil {
		return 0, err
	}
	t := HandTracker(r.handle())
	r.trackers[t] = hand
	return t, nil
}

func (r *fakeRuntime) DestroyHandTracker(HandTracker) error { return r.record("DestroyHandTracker") }

func (r *fakeRuntime) LocateHandJoints(tracker HandTracker, _ Space, _ Time, _ bool) (HandJointLocations, error) {
	if err := r.record("LocateHandJoints"); err != nil {
		return HandJointLocations{}, err
	}
	return r.joints[r.trackers[tracker]], nil
}

// jointSet builds an active joint set whose joint j sits at base + (j, 0, 0) centimeters, with the
// thumb and index tips placed tipDistance meters apart.
func jointSet(base common.Vec3, tipDistance float32) HandJointLocations {
	var set HandJointLocations
	set.IsActive = true
	for j := range set.Joints {
		set.Joints[j] = HandJointLocation{
			Flags: SpaceLocationPositionValid | SpaceLocationOrientationValid,
			Pose: common.Pose{
				Orientation: common.Quat{W: 1},
				Position:    common.Vec3{X: base.X + float32(j)*0.01, Y: base.Y, Z: base.Z},
			},
			Radius: 0.005,
		}
	}
	thumb := set.Joints[HandJointThumbTip].Pose.Position
	set.Joints[HandJointIndexTip].Pose.Position = common.Vec3{X: thumb.X, Y: thumb.Y + tipDistance, Z: thumb.Z}
	return set
}

func isIdentity(p common.Pose) bool {
	return p == common.IdentityPose()
}
