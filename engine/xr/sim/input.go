package sim

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/xr"
)

type action struct {
	set  xr.ActionSet
	info xr.ActionCreateInfo
}

// handInput is the scripted physical state of one hand and what the last SyncActions saw.
type handInput struct {
	grab          float32
	system        bool
	trackingOn    bool
	joints        *[xr.HandJointCount]common.Pose
	syncedGrab    float32
	syncedSystem  bool
	grabChanged   bool
	systemChanged bool
}

type inputState struct {
	sets      map[xr.ActionSet]string
	actions   map[xr.Action]action
	suggested map[string]int
	attached  xr.ActionSet
	synced    bool
	hands     [xr.HandCount]handInput
}

func newInputState() inputState {
	in := inputState{
		sets:      map[xr.ActionSet]string{},
		actions:   map[xr.Action]action{},
		suggested: map[string]int{},
	}
	for h := range in.hands {
		in.hands[h].trackingOn = true
	}
	return in
}

func (r *runtime) SetGrab(hand xr.Hand, value float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.input.hands[hand].grab = min(max(value, 0), 1)
}

func (r *runtime) SetSystemButton(hand xr.Hand, pressed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.input.hands[hand].system = pressed
}

func (r *runtime) SetHandTrackingActive(hand xr.Hand, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.input.hands[hand].trackingOn = active
}

func (r *runtime) SetHandJoints(hand xr.Hand, joints *[xr.HandJointCount]common.Pose) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if joints == nil {
		r.input.hands[hand].joints = nil
		return
	}
	copied := *joints
	r.input.hands[hand].joints = &copied
}

func (r *runtime) CreateActionSet(name, localizedName string, _ uint32) (xr.ActionSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" || localizedName == "" || strings.ToLower(name) != name {
		return 0, fmt.Errorf("%w: action set name %q", ErrPathInvalid, name)
	}
	s := xr.ActionSet(r.handle())
	r.input.sets[s] = name
	return s, nil
}

func (r *runtime) DestroyActionSet(set xr.ActionSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.input.sets[set]; !ok {
		return fmt.Errorf("%w: action set %d", ErrHandleInvalid, set)
	}
	for a, act := range r.input.actions {
		if act.set == set {
			delete(r.input.actions, a)
		}
	}
	delete(r.input.sets, set)
	return nil
}

func (r *runtime) CreateAction(set xr.ActionSet, info xr.ActionCreateInfo) (xr.Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.input.sets[set]; !ok {
		return 0, fmt.Errorf("%w: action set %d", ErrHandleInvalid, set)
	}
	if r.input.attached == set {
		return 0, ErrActionSetsAttached
	}
	for _, p := range info.SubactionPaths {
		if _, ok := r.handOf(p); !ok {
			return 0, fmt.Errorf("%w: subaction path %d", ErrPathInvalid, p)
		}
	}
	a := xr.Action(r.handle())
	info.SubactionPaths = append([]xr.Path(nil), info.SubactionPaths...)
	r.input.actions[a] = action{set: set, info: info}
	return a, nil
}

func (r *runtime) handOf(path xr.Path) (xr.Hand, bool) {
	switch r.pathNames[path] {
	case "/user/hand/left":
		return xr.HandLeft, true
	case "/user/hand/right":
		return xr.HandRight, true
	}
	return 0, false
}

func (r *runtime) CreateActionSpace(session xr.Session, handle xr.Action, subaction xr.Path, _ common.Pose) (xr.Space, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkSession(session); err != nil {
		return 0, err
	}
	act, ok := r.input.actions[handle]
	if !ok || act.info.Type != xr.ActionTypePose {
		return 0, fmt.Errorf("%w: pose action %d", ErrHandleInvalid, handle)
	}
	hand, ok := r.handOf(subaction)
	if !ok {
		return 0, fmt.Errorf("%w: subaction path %d", ErrPathInvalid, subaction)
	}
	s := xr.Space(r.handle())
	r.spaces[s] = spaceInfo{action: true, hand: hand}
	return s, nil
}

func (r *runtime) SuggestInteractionProfileBindings(profile xr.Path, bindings []xr.SuggestedBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.pathNames[profile]
	if !ok || !strings.HasPrefix(name, "/interaction_profiles/") {
		return fmt.Errorf("%w: interaction profile %d", ErrPathInvalid, profile)
	}
	for _, b := range bindings {
		if _, ok := r.input.actions[b.Action]; !ok {
			return fmt.Errorf("%w: action %d", ErrHandleInvalid, b.Action)
		}
		if !strings.HasPrefix(r.pathNames[b.Binding], "/user/hand/") {
			return fmt.Errorf("%w: binding %d", ErrPathInvalid, b.Binding)
		}
	}
	r.input.suggested[name] = len(bindings)
	return nil
}

func (r *runtime) AttachSessionActionSets(session xr.Session, sets []xr.ActionSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkSession(session); err != nil {
		return err
	}
	if r.input.attached != 0 {
		return ErrActionSetsAttached
	}
	if len(sets) != 1 {
		return fmt.Errorf("sim: exactly one action set can be attached, got %d", len(sets))
	}
	if _, ok := r.input.sets[sets[0]]; !ok {
		return fmt.Errorf("%w: action set %d", ErrHandleInvalid, sets[0])
	}
	r.input.attached = sets[0]
	return nil
}

func (r *runtime) SyncActions(session xr.Session, set xr.ActionSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkSession(session); err != nil {
		return err
	}
	if set != r.input.attached {
		return ErrActionSetDetached
	}
	for h := range r.input.hands {
		hi := &r.input.hands[h]
		hi.grabChanged = hi.grab != hi.syncedGrab
		hi.systemChanged = hi.system != hi.syncedSystem
		hi.syncedGrab = hi.grab
		hi.syncedSystem = hi.system
	}
	r.input.synced = true
	return nil
}

// actionFor resolves an action query. active is false until actions are synced with a bound profile.
// Caller must hold the mutex.
func (r *runtime) actionFor(session xr.Session, handle xr.Action, want xr.ActionType, subaction xr.Path) (hand xr.Hand, active bool, err error) {
	if err := r.checkSession(session); err != nil {
		return 0, false, err
	}
	act, ok := r.input.actions[handle]
	if !ok || act.info.Type != want {
		return 0, false, fmt.Errorf("%w: action %d", ErrHandleInvalid, handle)
	}
	if act.set != r.input.attached {
		return 0, false, ErrActionSetDetached
	}
	hand, ok = r.handOf(subaction)
	if !ok {
		return 0, false, fmt.Errorf("%w: subaction path %d", ErrPathInvalid, subaction)
	}
	return hand, r.input.synced && len(r.input.suggested) > 0 && r.running, nil
}

func (r *runtime) GetActionStatePose(session xr.Session, handle xr.Action, subaction xr.Path) (xr.ActionStatePose, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, active, err := r.actionFor(session, handle, xr.ActionTypePose, subaction)
	if err != nil {
		return xr.ActionStatePose{}, err
	}
	return xr.ActionStatePose{IsActive: active}, nil
}

func (r *runtime) GetActionStateFloat(session xr.Session, handle xr.Action, subaction xr.Path) (xr.ActionStateFloat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hand, active, err := r.actionFor(session, handle, xr.ActionTypeFloat, subaction)
	if err != nil || !active {
		return xr.ActionStateFloat{}, err
	}
	hi := r.input.hands[hand]
	return xr.ActionStateFloat{CurrentState: hi.syncedGrab, ChangedSinceLastSync: hi.grabChanged, IsActive: true}, nil
}

func (r *runtime) GetActionStateBoolean(session xr.Session, handle xr.Action, subaction xr.Path) (xr.ActionStateBoolean, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hand, active, err := r.actionFor(session, handle, xr.ActionTypeBoolean, subaction)
	if err != nil || !active {
		return xr.ActionStateBoolean{}, err
	}
	hi := r.input.hands[hand]
	return xr.ActionStateBoolean{CurrentState: hi.syncedSystem, ChangedSinceLastSync: hi.systemChanged, IsActive: true}, nil
}

func (r *runtime) ApplyHapticFeedback(session xr.Session, handle xr.Action, subaction xr.Path, vibration xr.HapticVibration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	hand, active, err := r.actionFor(session, handle, xr.ActionTypeHaptic, subaction)
	if err != nil {
		return err
	}
	if vibration.Amplitude < 0 || vibration.Amplitude > 1 {
		return fmt.Errorf("sim: haptic amplitude %f out of range", vibration.Amplitude)
	}
	if active {
		r.stats.HapticPulses[hand]++
	}
	return nil
}

func (r *runtime) LocateSpace(space, base xr.Space, t xr.Time) (xr.SpaceLocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.spaces[space]
	if !ok {
		return xr.SpaceLocation{}, fmt.Errorf("%w: space %d", ErrHandleInvalid, space)
	}
	if _, ok := r.spaces[base]; !ok {
		return xr.SpaceLocation{}, fmt.Errorf("%w: base space %d", ErrHandleInvalid, base)
	}
	if !info.action {
		return xr.SpaceLocation{Flags: r.locationFlags(), Pose: common.IdentityPose()}, nil
	}
	if !r.running || !r.input.synced {
		return xr.SpaceLocation{Pose: common.IdentityPose()}, nil
	}
	return xr.SpaceLocation{Flags: r.locationFlags(), Pose: r.controllerPose(info.hand, t)}, nil
}

func (r *runtime) locationFlags() xr.SpaceLocationFlags {
	if !r.trackingValid {
		return 0
	}
	return xr.SpaceLocationOrientationValid | xr.SpaceLocationPositionValid | xr.SpaceLocationOrientationTracked | xr.SpaceLocationPositionTracked
}

// controllerPose holds the controller in front of the body at waist height, swaying gently.
// Caller must hold the mutex.
func (r *runtime) controllerPose(hand xr.Hand, t xr.Time) common.Pose {
	side := float32(-1)
	if hand == xr.HandRight {
		side = 1
	}
	pose := common.Pose{
		Orientation: common.Quat{W: 1},
		Position:    common.Vec3{X: side * 0.2, Y: standingHeight - 0.45, Z: -0.3},
	}
	if r.animate {
		secs := float64(t) / float64(time.Second)
		pose.Position.Y += float32(0.03 * math.Sin(secs*2+float64(hand)))
	}
	return pose
}

func (r *runtime) CreateHandTracker(session xr.Session, hand xr.Hand) (xr.HandTracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkSession(session); err != nil {
		return 0, err
	}
	if hand != xr.HandLeft && hand != xr.HandRight {
		return 0, fmt.Errorf("sim: unknown hand %d", hand)
	}
	t := xr.HandTracker(r.handle())
	r.trackers[t] = hand
	return t, nil
}

func (r *runtime) DestroyHandTracker(tracker xr.HandTracker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.trackers[tracker]; !ok {
		return fmt.Errorf("%w: hand tracker %d", ErrHandleInvalid, tracker)
	}
	delete(r.trackers, tracker)
	return nil
}

func (r *runtime) LocateHandJoints(tracker xr.HandTracker, base xr.Space, t xr.Time, withVelocities bool) (xr.HandJointLocations, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hand, ok := r.trackers[tracker]
	if !ok {
		return xr.HandJointLocations{}, fmt.Errorf("%w: hand tracker %d", ErrHandleInvalid, tracker)
	}
	if _, ok := r.spaces[base]; !ok {
		return xr.HandJointLocations{}, fmt.Errorf("%w: base space %d", ErrHandleInvalid, base)
	}

	var out xr.HandJointLocations
	hi := r.input.hands[hand]
	if !hi.trackingOn || !r.running {
		return out, nil
	}

	out.IsActive = true
	poses := hi.joints
	if poses == nil {
		rest := restHand(r.controllerPose(hand, t), hand)
		poses = &rest
	}
	flags := r.locationFlags()
	for j := range out.Joints {
		out.Joints[j] = xr.HandJointLocation{Flags: flags, Pose: poses[j], Radius: 0.008}
		if withVelocities {
			out.Velocities[j] = xr.HandJointVelocity{Flags: flags}
		}
	}
	return out, nil
}

// restHand lays an open hand out from the controller grip: each finger's joints march forward
// from the wrist, fingers fanned sideways, so no two tips coincide.
func restHand(grip common.Pose, hand xr.Hand) [xr.HandJointCount]common.Pose {
	side := float32(-1)
	if hand == xr.HandRight {
		side = 1
	}
	var joints [xr.HandJointCount]common.Pose
	joints[xr.HandJointPalm] = common.Pose{Orientation: grip.Orientation, Position: common.Vec3{X: grip.Position.X, Y: grip.Position.Y, Z: grip.Position.Z - 0.04}}
	joints[xr.HandJointWrist] = grip
	// Thumb has four joints, every other finger five.
	j := xr.HandJointWrist + 1
	for finger, length := range []int{4, 5, 5, 5, 5} {
		spread := side * (0.035 - float32(finger)*0.018)
		for k := 0; k < length; k++ {
			joints[j] = common.Pose{
				Orientation: grip.Orientation,
				Position: common.Vec3{
					X: grip.Position.X + spread,
					Y: grip.Position.Y,
					Z: grip.Position.Z - 0.02 - float32(k)*0.022,
				},
			}
			j++
		}
	}
	return joints
}
