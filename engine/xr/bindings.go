package xr

// inputAction names one action of the gameplay action set.
type inputAction int

const (
	actionHandPose inputAction = iota
	actionGrab
	actionHaptic
	actionSystem
	actionCount
)

// actionDefinitions lists the gameplay actions in creation order.
var actionDefinitions = [actionCount]ActionCreateInfo{
	actionHandPose: {Name: "handpose", LocalizedName: "Hand Pose", Type: ActionTypePose},
	actionGrab:     {Name: "grabobjectfloat", LocalizedName: "Grab Object", Type: ActionTypeFloat},
	actionHaptic:   {Name: "haptic", LocalizedName: "Haptic Vibration", Type: ActionTypeHaptic},
	actionSystem:   {Name: "systemactionbool", LocalizedName: "Home Button", Type: ActionTypeBoolean},
}

const (
	actionSetName          = "gameplay_actionset"
	actionSetLocalizedName = "Gameplay Actions"
)

// handPaths are the top level user paths of each hand.
var handPaths = [HandCount]string{
	HandLeft:  "/user/hand/left",
	HandRight: "/user/hand/right",
}

// bindingSuggestion binds one action to a component path below each hand's user path.
type bindingSuggestion struct {
	action     inputAction
	components [HandCount]string
}

// interactionProfile is a controller class and the bindings suggested for it.
type interactionProfile struct {
	path     string
	bindings []bindingSuggestion
}

func bothHands(component string) [HandCount]string {
	return [HandCount]string{component, component}
}

// interactionProfiles is the binding table suggested to the runtime at construction.
// The simple controller has no analog trigger, so its select click drives both grab and system.
var interactionProfiles = []interactionProfile{
	{
		path: "/interaction_profiles/khr/simple_controller",
		bindings: []bindingSuggestion{
			{action: actionHandPose, components: bothHands("/input/grip/pose")},
			{action: actionGrab, components: bothHands("/input/select/click")},
			{action: actionHaptic, components: bothHands("/output/haptic")},
			{action: actionSystem, components: bothHands("/input/select/click")},
		},
	},
	{
		path: "/interaction_profiles/valve/index_controller",
		bindings: []bindingSuggestion{
			{action: actionHandPose, components: bothHands("/input/grip/pose")},
			{action: actionGrab, components: bothHands("/input/trigger/value")},
			{action: actionHaptic, components: bothHands("/output/haptic")},
			{action: actionSystem, components: bothHands("/input/system/click")},
		},
	},
	{
		path: "/interaction_profiles/oculus/touch_controller",
		bindings: []bindingSuggestion{
			{action: actionHandPose, components: bothHands("/input/grip/pose")},
			{action: actionGrab, components: bothHands("/input/trigger/value")},
			{action: actionHaptic, components: bothHands("/output/haptic")},
			{action: actionSystem, components: [HandCount]string{
				HandLeft:  "/input/menu/click",
				HandRight: "/input/system/click",
			}},
		},
	},
}
