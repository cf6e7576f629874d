package xr

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"go.uber.org/zap"
)

// MaxTrackedPoints is the number of generic tracked-point slots refreshed every frame.
// Slot i < HandCount holds hand i's controller pose; hand joints follow from slot HandCount,
// HandJointCount slots per hand.
const MaxTrackedPoints = 64

const handJointSlotOffset = int(HandCount)

// InputEventType identifies an InputEvent.
type InputEventType int

const (
	InputEventPinchStarted InputEventType = iota + 1
	InputEventPinchEnded
	InputEventSystemPressed
	InputEventHapticFired
)

func (t InputEventType) String() string {
	switch t {
	case InputEventPinchStarted:
		return "pinch_started"
	case InputEventPinchEnded:
		return "pinch_ended"
	case InputEventSystemPressed:
		return "system_pressed"
	case InputEventHapticFired:
		return "haptic_fired"
	}
	return fmt.Sprintf("InputEventType(%d)", int(t))
}

// InputEvent is an edge in the per-hand input state, reported once per occurrence.
type InputEvent struct {
	Type InputEventType
	Hand Hand
	// Value is the grab value for haptic events and the tip distance for pinch events.
	Value float32
	Time  Time
}

// InputListener receives input events. It is called on the frame goroutine, inside BeginFrame.
type InputListener interface {
	HandleInputEvent(event InputEvent)
}

// InputListenerFunc adapts a function to InputListener.
type InputListenerFunc func(event InputEvent)

func (f InputListenerFunc) HandleInputEvent(event InputEvent) { f(event) }

type inputConfig struct {
	grabThreshold   float32
	hapticAmplitude float32
	pinchDistance   float32
	handTracking    bool
}

// handState is everything tracked for one hand. Only the action space, the tracker and the
// pinch flag survive from one frame to the next.
type handState struct {
	path         Path
	space        Space
	tracker      HandTracker
	trackerValid bool

	poseActive bool
	location   SpaceLocation
	grab       ActionStateFloat
	system     ActionStateBoolean
	joints     HandJointLocations
	pinch      bool
}

type inputSystem struct {
	runtime   Runtime
	session   Session
	baseSpace Space
	cfg       inputConfig
	listener  InputListener
	logger    *zap.Logger
	metrics   *metrics

	actionSet ActionSet
	actions   [actionCount]Action
	hands     [HandCount]handState
	slots     [MaxTrackedPoints]common.Pose
}

// setup creates the action set, actions, hand action spaces and hand trackers and suggests bindings.
// Everything except binding suggestions and hand trackers is required.
func (in *inputSystem) setup(stack *releaseStack) error {
	paths := make([]Path, HandCount)
	for h := range in.hands {
		p, err := in.runtime.StringToPath(handPaths[h])
		if err != nil {
			return fmt.Errorf("failed to resolve hand path %s: %w", handPaths[h], err)
		}
		in.hands[h].path = p
		paths[h] = p
	}

	set, err := in.runtime.CreateActionSet(actionSetName, actionSetLocalizedName, 0)
	if err != nil {
		return fmt.Errorf("failed to create action set: %w", err)
	}
	in.actionSet = set
	stack.push("action set", func() error { return in.runtime.DestroyActionSet(set) })

	for a, def := range actionDefinitions {
		def.SubactionPaths = paths
		action, err := in.runtime.CreateAction(set, def)
		if err != nil {
			return fmt.Errorf("failed to create action %s: %w", def.Name, err)
		}
		in.actions[a] = action
	}

	for h := range in.hands {
		space, err := in.runtime.CreateActionSpace(in.session, in.actions[actionHandPose], in.hands[h].path, common.IdentityPose())
		if err != nil {
			return fmt.Errorf("failed to create %s hand space: %w", Hand(h), err)
		}
		in.hands[h].space = space
		stack.push(Hand(h).String()+" hand space", func() error { return in.runtime.DestroySpace(space) })
	}

	for _, profile := range interactionProfiles {
		if err := in.suggest(profile); err != nil {
			in.logger.Warn("failed to suggest interaction profile bindings", zap.String("profile", profile.path), zap.Error(err))
		}
	}

	if err := in.runtime.AttachSessionActionSets(in.session, []ActionSet{set}); err != nil {
		return fmt.Errorf("failed to attach action set: %w", err)
	}

	if !in.cfg.handTracking {
		return nil
	}
	for h := range in.hands {
		tracker, err := in.runtime.CreateHandTracker(in.session, Hand(h))
		if err != nil {
			in.logger.Warn("hand tracking unavailable", zap.Stringer("hand", Hand(h)), zap.Error(err))
			continue
		}
		in.hands[h].tracker = tracker
		in.hands[h].trackerValid = true
		stack.push(Hand(h).String()+" hand tracker", func() error { return in.runtime.DestroyHandTracker(tracker) })
	}
	return nil
}

func (in *inputSystem) suggest(profile interactionProfile) error {
	profilePath, err := in.runtime.StringToPath(profile.path)
	if err != nil {
		return err
	}
	bindings := make([]SuggestedBinding, 0, len(profile.bindings)*int(HandCount))
	for _, b := range profile.bindings {
		for h, component := range b.components {
			p, err := in.runtime.StringToPath(handPaths[h] + component)
			if err != nil {
				return err
			}
			bindings = append(bindings, SuggestedBinding{Action: in.actions[b.action], Binding: p})
		}
	}
	return in.runtime.SuggestInteractionProfileBindings(profilePath, bindings)
}

// poll refreshes all input state for the frame displayed at t. Query failures are logged and
// leave the affected state inactive; they never fail the frame.
func (in *inputSystem) poll(t Time) {
	for i := range in.slots {
		in.slots[i] = common.IdentityPose()
	}

	if err := in.runtime.SyncActions(in.session, in.actionSet); err != nil {
		in.logger.Debug("failed to sync actions", zap.Error(err))
	}

	for h := range in.hands {
		in.pollActions(Hand(h), t)
	}
	for h := range in.hands {
		in.pollJoints(Hand(h), t)
	}
}

func (in *inputSystem) pollActions(hand Hand, t Time) {
	hs := &in.hands[hand]

	pose, err := in.runtime.GetActionStatePose(in.session, in.actions[actionHandPose], hs.path)
	if err != nil {
		in.logger.Debug("failed to get hand pose state", zap.Stringer("hand", hand), zap.Error(err))
	}
	hs.poseActive = err == nil && pose.IsActive

	hs.location = SpaceLocation{Pose: common.IdentityPose()}
	if loc, err := in.runtime.LocateSpace(hs.space, in.baseSpace, t); err != nil {
		in.logger.Debug("failed to locate hand space", zap.Stringer("hand", hand), zap.Error(err))
	} else {
		hs.location = loc
		in.slots[hand] = loc.Pose
	}

	grab, err := in.runtime.GetActionStateFloat(in.session, in.actions[actionGrab], hs.path)
	if err != nil {
		in.logger.Debug("failed to get grab state", zap.Stringer("hand", hand), zap.Error(err))
		grab = ActionStateFloat{}
	}
	hs.grab = grab
	if grab.IsActive && grab.CurrentState > in.cfg.grabThreshold {
		in.pulse(hand, grab.CurrentState, t)
	}

	system, err := in.runtime.GetActionStateBoolean(in.session, in.actions[actionSystem], hs.path)
	if err != nil {
		in.logger.Debug("failed to get system button state", zap.Stringer("hand", hand), zap.Error(err))
		system = ActionStateBoolean{}
	}
	hs.system = system
	if system.IsActive && system.CurrentState && system.ChangedSinceLastSync {
		in.logger.Info("system button pressed", zap.Stringer("hand", hand))
		in.emit(InputEvent{Type: InputEventSystemPressed, Hand: hand, Value: 1, Time: t})
	}
}

func (in *inputSystem) pulse(hand Hand, value float32, t Time) {
	vibration := HapticVibration{
		Duration:  MinHapticDuration,
		Frequency: FrequencyUnspecified,
		Amplitude: in.cfg.hapticAmplitude,
	}
	if err := in.runtime.ApplyHapticFeedback(in.session, in.actions[actionHaptic], in.hands[hand].path, vibration); err != nil {
		in.logger.Debug("failed to apply haptic feedback", zap.Stringer("hand", hand), zap.Error(err))
		return
	}
	in.metrics.hapticPulses.WithLabelValues(hand.String()).Inc()
	in.emit(InputEvent{Type: InputEventHapticFired, Hand: hand, Value: value, Time: t})
}

// pollJoints copies an active hand's joints into its slots and updates the pinch flag.
// An inactive tracker leaves the pinch flag as it was.
func (in *inputSystem) pollJoints(hand Hand, t Time) {
	hs := &in.hands[hand]
	if !hs.trackerValid {
		return
	}

	joints, err := in.runtime.LocateHandJoints(hs.tracker, in.baseSpace, t, true)
	if err != nil {
		in.logger.Debug("failed to locate hand joints", zap.Stringer("hand", hand), zap.Error(err))
		hs.joints.IsActive = false
		return
	}
	hs.joints = joints
	if !joints.IsActive {
		return
	}

	offset := handJointSlotOffset + int(hand)*HandJointCount
	for j := range joints.Joints {
		in.slots[offset+j] = joints.Joints[j].Pose
	}

	distance := common.Distance(joints.Joints[HandJointIndexTip].Pose.Position, joints.Joints[HandJointThumbTip].Pose.Position)
	pinch := distance < in.cfg.pinchDistance
	if pinch == hs.pinch {
		return
	}
	hs.pinch = pinch
	if pinch {
		in.metrics.pinch.WithLabelValues(hand.String()).Set(1)
		in.emit(InputEvent{Type: InputEventPinchStarted, Hand: hand, Value: distance, Time: t})
		return
	}
	in.metrics.pinch.WithLabelValues(hand.String()).Set(0)
	in.emit(InputEvent{Type: InputEventPinchEnded, Hand: hand, Value: distance, Time: t})
}

func (in *inputSystem) emit(event InputEvent) {
	if in.listener != nil {
		in.listener.HandleInputEvent(event)
	}
}
