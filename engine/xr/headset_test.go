package xr

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/gpu"
	"github.com/Carmen-Shannon/oxy-xr/engine/gpu/gputest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHeadset(t *testing.T, rt *fakeRuntime, dev *gputest.Device, options ...HeadsetBuilderOption) *headset {
	t.Helper()
	h := NewHeadset(rt, dev, options...).(*headset)
	require.True(t, h.IsValid(), "construction failed: %v", h.Err())
	t.Cleanup(h.Close)
	return h
}

// focus drives the session into the focused state through one BeginFrame and ends that frame.
func focus(t *testing.T, h *headset, rt *fakeRuntime) {
	t.Helper()
	rt.pushState(SessionStateReady, SessionStateSynchronized, SessionStateVisible, SessionStateFocused)
	result, _, err := h.BeginFrame()
	require.NoError(t, err)
	require.Equal(t, BeginFrameRenderFully, result)
	h.EndFrame()
}

func TestNewHeadsetCreatesResourcesInOrder(t *testing.T) {
	rt := newFakeRuntime()
	dev := gputest.NewDevice()
	h := newTestHeadset(t, rt, dev)

	assert.Equal(t, []string{
		"CreateRenderPass",
		"CreateImage",
		"ImageMemoryRequirements",
		"AllocateMemory",
		"BindImageMemory",
		"CreateImageView",
		"CreateRenderTarget",
		"CreateRenderTarget",
		"CreateRenderTarget",
	}, dev.Calls())

	var setup []string
	for _, c := range rt.calls {
		if c != "StringToPath" && c != "CreateAction" && c != "CreateActionSpace" && c != "SuggestInteractionProfileBindings" {
			setup = append(setup, c)
		}
	}
	assert.Equal(t, []string{
		"CreateSession",
		"CreateReferenceSpace",
		"EnumerateViewConfigurationViews",
		"EnumerateSwapchainFormats",
		"CreateSwapchain",
		"EnumerateSwapchainImages",
		"CreateActionSet",
		"AttachSessionActionSets",
		"CreateHandTracker",
		"CreateHandTracker",
	}, setup)

	assert.Equal(t, []ReferenceSpaceType{ReferenceSpaceStage}, rt.referenceSpaces)
	assert.Equal(t, 2, h.EyeCount())
	assert.Equal(t, common.Extent2D{Width: 100, Height: 80}, h.EyeResolution(1))
	assert.Equal(t, 3, h.RenderTargetCount())
	assert.NotNil(t, h.RenderPass())
	assert.Nil(t, h.RenderTarget(3))
	assert.Equal(t, SessionStateUnknown, h.SessionState())
	assert.False(t, h.IsExitRequested())
	assert.NotEmpty(t, h.ID())
}

func TestNewHeadsetMultiviewResources(t *testing.T) {
	rt := newFakeRuntime()
	dev := gputest.NewDevice()
	h := newTestHeadset(t, rt, dev)

	passes := dev.RenderPasses()
	require.Len(t, passes, 1)
	assert.Equal(t, gpu.RenderPassDescriptor{
		ColorFormat:     gpu.FormatR8G8B8A8Unorm,
		DepthFormat:     gpu.FormatD32Sfloat,
		ViewMask:        0b11,
		CorrelationMask: 0b11,
	}, passes[0])

	images := dev.Images()
	require.Len(t, images, 1)
	assert.Equal(t, uint32(2), images[0].ArrayLayers)
	assert.Equal(t, gpu.FormatD32Sfloat, images[0].Format)
	assert.Equal(t, common.Extent2D{Width: 100, Height: 80}, images[0].Extent)

	views := dev.Views()
	require.Len(t, views, 1)
	assert.Equal(t, gpu.ImageAspectDepth, views[0].Aspect)
	assert.Equal(t, uint32(2), views[0].ArrayLayers)

	require.Len(t, rt.swapchainInfos, 1)
	info := rt.swapchainInfos[0]
	assert.Equal(t, gpu.FormatR8G8B8A8Unorm, info.Format)
	assert.Equal(t, uint32(2), info.ArraySize)
	assert.Equal(t, uint32(1), info.FaceCount)
	assert.Equal(t, uint32(1), info.MipCount)
	assert.Equal(t, common.Extent2D{Width: 100, Height: 80}, info.Extent)

	targets := dev.Targets()
	require.Len(t, targets, 3)
	for i, target := range targets {
		assert.Equal(t, rt.images[i], target.Desc.Image)
		assert.Equal(t, h.RenderPass(), target.Desc.RenderPass)
		assert.NotNil(t, target.Desc.DepthView)
		assert.Equal(t, uint32(2), target.Desc.ArrayLayers)
		assert.Same(t, target, h.RenderTarget(uint32(i)))
	}
}

func TestNewHeadsetFormatUnsupported(t *testing.T) {
	rt := newFakeRuntime()
	rt.formats = []gpu.Format{gpu.FormatB8G8R8A8Unorm, gpu.FormatR8G8B8A8Srgb}
	dev := gputest.NewDevice()

	h := NewHeadset(rt, dev)

	require.False(t, h.IsValid())
	assert.ErrorIs(t, h.Err(), ErrFormatUnsupported)
	assert.Zero(t, rt.count("CreateSwapchain"))
	assert.Zero(t, dev.Count("CreateImage"))
	assert.Empty(t, dev.Targets())
	assert.Zero(t, h.RenderTargetCount())
	assert.Zero(t, dev.Live(), "render pass must be released")
	assert.Equal(t, 1, rt.count("DestroySession"))
	assert.Equal(t, 1, rt.count("DestroySpace"))

	result, _, err := h.BeginFrame()
	assert.Equal(t, BeginFrameError, result)
	assert.ErrorIs(t, err, ErrNotValid)
	assert.Zero(t, rt.count("PollEvent"))
}

func TestNewHeadsetNoDeviceLocalMemory(t *testing.T) {
	rt := newFakeRuntime()
	dev := gputest.NewDevice()
	dev.Types = []gpu.MemoryType{{PropertyFlags: gpu.MemoryPropertyHostVisible}}

	h := NewHeadset(rt, dev)

	require.False(t, h.IsValid())
	assert.ErrorIs(t, h.Err(), gpu.ErrNoMemoryType)
	assert.Zero(t, dev.Count("AllocateMemory"))
	assert.Zero(t, rt.count("CreateSwapchain"))
	assert.Zero(t, dev.Live())
}

func TestNewHeadsetRenderTargetFailureInvalidatesHeadset(t *testing.T) {
	rt := newFakeRuntime()
	dev := gputest.NewDevice()
	dev.FailOn["CreateRenderTarget#2"] = true

	h := NewHeadset(rt, dev)

	require.False(t, h.IsValid())
	assert.ErrorIs(t, h.Err(), gputest.ErrInjected)
	targets := dev.Targets()
	require.Len(t, targets, 1)
	assert.True(t, targets[0].Released)
	assert.Equal(t, 1, rt.count("DestroySwapchain"))
	assert.Zero(t, rt.count("CreateActionSet"))
	assert.Zero(t, dev.Live())
}

func TestNewHeadsetRuntimeFailuresAreFatal(t *testing.T) {
	for _, call := range []string{
		"CreateSession",
		"CreateReferenceSpace",
		"EnumerateViewConfigurationViews",
		"EnumerateSwapchainFormats",
		"CreateSwapchain",
		"EnumerateSwapchainImages",
		"CreateActionSet",
		"CreateAction",
		"CreateActionSpace",
		"AttachSessionActionSets",
	} {
		t.Run(call, func(t *testing.T) {
			rt := newFakeRuntime()
			rt.failOn[call] = true
			dev := gputest.NewDevice()

			h := NewHeadset(rt, dev)

			assert.False(t, h.IsValid())
			assert.ErrorIs(t, h.Err(), errRuntime)
			assert.Zero(t, dev.Live())
		})
	}
}

func TestNewHeadsetNilCollaborators(t *testing.T) {
	h := NewHeadset(nil, nil)
	assert.NotNil(t, h)
	assert.False(t, h.IsValid())
	assert.Error(t, h.Err())
	h.Close()
}

func TestCloseReleasesInReverseOrder(t *testing.T) {
	rt := newFakeRuntime()
	dev := gputest.NewDevice()
	h := NewHeadset(rt, dev)
	require.True(t, h.IsValid())

	runtimeMark := rt.mark()
	deviceMark := len(dev.Calls())
	h.Close()
	h.Close()

	assert.Equal(t, []string{
		"DestroyHandTracker",
		"DestroyHandTracker",
		"DestroySpace",
		"DestroySpace",
		"DestroyActionSet",
		"DestroySwapchain",
		"DestroySpace",
		"DestroySession",
	}, rt.callsSince(runtimeMark))
	assert.Equal(t, []string{
		"DestroyImageView",
		"FreeMemory",
		"DestroyImage",
		"DestroyRenderPass",
	}, dev.Calls()[deviceMark:])
	for _, target := range dev.Targets() {
		assert.True(t, target.Released)
	}
	assert.Zero(t, dev.Live())
	assert.False(t, h.IsValid())
}

func TestCloseEndsRunningSession(t *testing.T) {
	rt := newFakeRuntime()
	h := NewHeadset(rt, gputest.NewDevice()).(*headset)
	require.True(t, h.IsValid())
	focus(t, h, rt)

	mark := rt.mark()
	h.Close()

	calls := rt.callsSince(mark)
	require.Contains(t, calls, "EndSession")
	assert.Less(t, indexOf(calls, "EndSession"), indexOf(calls, "DestroySession"))
}

func indexOf(calls []string, name string) int {
	for i, c := range calls {
		if c == name {
			return i
		}
	}
	return -1
}

func TestBeginFrameGatedStatesMakeNoRuntimeCalls(t *testing.T) {
	for _, state := range []SessionState{
		SessionStateUnknown,
		SessionStateIdle,
		SessionStateStopping,
		SessionStateLossPending,
		SessionStateExiting,
	} {
		t.Run(state.String(), func(t *testing.T) {
			rt := newFakeRuntime()
			h := newTestHeadset(t, rt, gputest.NewDevice())
			h.session.state = state

			mark := rt.mark()
			result, _, err := h.BeginFrame()

			require.NoError(t, err)
			assert.Equal(t, BeginFrameSkipFully, result)
			assert.Equal(t, []string{"PollEvent"}, rt.callsSince(mark))
		})
	}
}

func TestSkipFullyFramesAreNeverEnded(t *testing.T) {
	rt := newFakeRuntime()
	h := newTestHeadset(t, rt, gputest.NewDevice())

	script := [][]SessionState{
		{SessionStateIdle},
		nil,
		{SessionStateReady},
		{SessionStateSynchronized, SessionStateVisible},
		{SessionStateFocused},
		{SessionStateVisible},
		{SessionStateStopping},
		{SessionStateIdle},
		{SessionStateExiting},
		nil,
	}

	ended := 0
	for _, states := range script {
		rt.pushState(states...)
		result, _, err := h.BeginFrame()
		require.NoError(t, err)
		if result == BeginFrameSkipFully {
			continue
		}
		h.EndFrame()
		ended++
	}

	assert.Equal(t, 4, ended)
	assert.Equal(t, ended, rt.count("EndFrame"))
	assert.Equal(t, ended, rt.count("WaitFrame"))
	assert.True(t, h.IsExitRequested())
}

func TestEndFrameWithoutFrameInFlightIsNoop(t *testing.T) {
	rt := newFakeRuntime()
	h := newTestHeadset(t, rt, gputest.NewDevice())

	result, _, err := h.BeginFrame()
	require.NoError(t, err)
	require.Equal(t, BeginFrameSkipFully, result)

	mark := rt.mark()
	h.EndFrame()
	assert.Empty(t, rt.callsSince(mark))
}

func TestBeginFrameViewCountMismatch(t *testing.T) {
	rt := newFakeRuntime()
	h := newTestHeadset(t, rt, gputest.NewDevice())
	focus(t, h, rt)

	rt.views = rt.views[:1]
	result, _, err := h.BeginFrame()

	assert.Equal(t, BeginFrameError, result)
	assert.ErrorIs(t, err, ErrViewCountMismatch)
	assert.True(t, h.IsValid())
	assert.Equal(t, 1, rt.count("AcquireSwapchainImage"))
	assert.Equal(t, 2, h.EyeCount())
}

func TestBeginFrameRuntimeFailuresKeepHeadsetValid(t *testing.T) {
	for _, call := range []string{"PollEvent", "WaitFrame", "BeginFrame", "LocateViews", "AcquireSwapchainImage", "WaitSwapchainImage"} {
		t.Run(call, func(t *testing.T) {
			rt := newFakeRuntime()
			h := newTestHeadset(t, rt, gputest.NewDevice())
			focus(t, h, rt)

			rt.failOn[call] = true
			result, _, err := h.BeginFrame()

			assert.Equal(t, BeginFrameError, result)
			assert.ErrorIs(t, err, errRuntime)
			assert.True(t, h.IsValid())

			rt.failOn[call] = false
			result, _, err = h.BeginFrame()
			require.NoError(t, err)
			assert.Equal(t, BeginFrameRenderFully, result)
		})
	}
}

func TestReadyBeginsSessionAndOpensGate(t *testing.T) {
	rt := newFakeRuntime()
	h := newTestHeadset(t, rt, gputest.NewDevice())

	rt.pushState(SessionStateReady)
	mark := rt.mark()
	result, index, err := h.BeginFrame()

	require.NoError(t, err)
	assert.Equal(t, BeginFrameRenderFully, result)
	assert.Equal(t, uint32(1), index)
	assert.Equal(t, []ViewConfigurationType{ViewConfigurationPrimaryStereo}, rt.beginViewConfigs)
	calls := rt.callsSince(mark)
	assert.Less(t, indexOf(calls, "BeginSession"), indexOf(calls, "WaitFrame"))
	assert.Equal(t, SessionStateReady, h.SessionState())
	h.EndFrame()

	result, _, err = h.BeginFrame()
	require.NoError(t, err)
	assert.Equal(t, BeginFrameRenderFully, result)
	assert.Equal(t, 2, rt.count("WaitFrame"))
	assert.Equal(t, 1, rt.count("BeginSession"))
}

func TestBeginSessionFailureIsFrameError(t *testing.T) {
	rt := newFakeRuntime()
	rt.failOn["BeginSession"] = true
	h := newTestHeadset(t, rt, gputest.NewDevice())

	rt.pushState(SessionStateReady)
	result, _, err := h.BeginFrame()

	assert.Equal(t, BeginFrameError, result)
	assert.ErrorIs(t, err, errRuntime)
	assert.True(t, h.IsValid())
	assert.Zero(t, rt.count("WaitFrame"))
}

func TestStoppingEndsSession(t *testing.T) {
	rt := newFakeRuntime()
	h := newTestHeadset(t, rt, gputest.NewDevice())
	focus(t, h, rt)

	rt.pushState(SessionStateStopping)
	result, _, err := h.BeginFrame()

	require.NoError(t, err)
	assert.Equal(t, BeginFrameSkipFully, result)
	assert.Equal(t, 1, rt.count("EndSession"))
	assert.False(t, h.session.running)
	assert.False(t, h.IsExitRequested())
}

func TestLossPendingIsSticky(t *testing.T) {
	tests := []struct {
		name  string
		event Event
	}{
		{name: "loss pending state", event: Event{Type: EventSessionStateChanged, State: SessionStateLossPending}},
		{name: "exiting state", event: Event{Type: EventSessionStateChanged, State: SessionStateExiting}},
		{name: "instance loss", event: Event{Type: EventInstanceLossPending}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			h := newTestHeadset(t, rt, gputest.NewDevice())
			focus(t, h, rt)
			waits := rt.count("WaitFrame")

			rt.events = append(rt.events, tt.event)
			for i := 0; i < 4; i++ {
				result, _, err := h.BeginFrame()
				require.NoError(t, err)
				assert.Equal(t, BeginFrameSkipFully, result, "frame %d", i)
				assert.True(t, h.IsExitRequested())
			}

			rt.pushState(SessionStateFocused)
			result, _, err := h.BeginFrame()
			require.NoError(t, err)
			assert.Equal(t, BeginFrameSkipFully, result)
			assert.Equal(t, waits, rt.count("WaitFrame"))
		})
	}
}

func TestEndFrameLayerSubmission(t *testing.T) {
	tests := []struct {
		name         string
		shouldRender bool
		viewState    ViewStateFlags
		wantLayer    bool
	}{
		{name: "render with valid poses", shouldRender: true, viewState: ViewStatePositionValid | ViewStateOrientationValid, wantLayer: true},
		{name: "runtime advises skip", shouldRender: false, viewState: ViewStatePositionValid | ViewStateOrientationValid},
		{name: "position invalid", shouldRender: true, viewState: ViewStateOrientationValid},
		{name: "orientation invalid", shouldRender: true, viewState: ViewStatePositionValid},
		{name: "nothing valid", shouldRender: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			h := newTestHeadset(t, rt, gputest.NewDevice())
			focus(t, h, rt)

			rt.frameState.ShouldRender = tt.shouldRender
			rt.frameState.PredictedDisplayTime = 42_000_000
			rt.viewState = tt.viewState
			result, _, err := h.BeginFrame()
			require.NoError(t, err)
			assert.Equal(t, BeginFrameRenderFully, result)
			h.EndFrame()

			require.Len(t, rt.endFrames, 2)
			info := rt.endFrames[1]
			assert.Equal(t, Time(42_000_000), info.DisplayTime)
			assert.Equal(t, EnvironmentBlendModeOpaque, info.BlendMode)
			if !tt.wantLayer {
				assert.Empty(t, info.Layers)
				return
			}
			require.Len(t, info.Layers, 1)
			layer := info.Layers[0]
			assert.Equal(t, h.space, layer.Space)
			require.Len(t, layer.Views, 2)
			for i, v := range layer.Views {
				assert.Equal(t, rt.views[i].Pose, v.Pose)
				assert.Equal(t, rt.views[i].Fov, v.Fov)
				assert.Equal(t, uint32(i), v.SubImage.ImageArrayIndex)
				assert.Equal(t, h.swapchain.swapchain, v.SubImage.Swapchain)
				assert.Equal(t, common.Rect2D{Extent: common.Extent2D{Width: 100, Height: 80}}, v.SubImage.ImageRect)
			}
		})
	}
}

func TestEndFrameFailuresAreAbsorbed(t *testing.T) {
	rt := newFakeRuntime()
	h := newTestHeadset(t, rt, gputest.NewDevice())
	focus(t, h, rt)

	rt.failOn["ReleaseSwapchainImage"] = true
	_, _, err := h.BeginFrame()
	require.NoError(t, err)
	ends := rt.count("EndFrame")
	h.EndFrame()
	assert.Equal(t, ends, rt.count("EndFrame"), "frame is dropped when release fails")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.endFrameFailures.WithLabelValues("release")))

	rt.failOn["ReleaseSwapchainImage"] = false
	rt.failOn["EndFrame"] = true
	_, _, err = h.BeginFrame()
	require.NoError(t, err)
	h.EndFrame()
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.endFrameFailures.WithLabelValues("end")))
	assert.True(t, h.IsValid())

	rt.failOn["EndFrame"] = false
	result, _, err := h.BeginFrame()
	require.NoError(t, err)
	assert.Equal(t, BeginFrameRenderFully, result)
}

func TestShouldRenderAdvisory(t *testing.T) {
	tests := []struct {
		name  string
		honor bool
		want  BeginFrameResult
	}{
		{name: "advisory ignored by default", honor: false, want: BeginFrameRenderFully},
		{name: "advisory honored", honor: true, want: BeginFrameSkipRender},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			h := newTestHeadset(t, rt, gputest.NewDevice(), WithHonorShouldRender(tt.honor))
			focus(t, h, rt)

			rt.frameState.ShouldRender = false
			result, _, err := h.BeginFrame()
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
			assert.Equal(t, 2, rt.count("AcquireSwapchainImage"))

			h.EndFrame()
			assert.Equal(t, 2, rt.count("ReleaseSwapchainImage"))
			assert.Empty(t, rt.endFrames[1].Layers)
		})
	}
}

func TestEyeMatricesFollowLocatedViews(t *testing.T) {
	rt := newFakeRuntime()
	h := newTestHeadset(t, rt, gputest.NewDevice(), WithClipPlanes(0.05, 100))
	focus(t, h, rt)

	for eye := 0; eye < h.EyeCount(); eye++ {
		var view, projection, combined [16]float32
		common.ViewMatrix(view[:], rt.views[eye].Pose)
		common.ProjectionFromFov(projection[:], rt.views[eye].Fov, 0.05, 100)
		common.Mul4(combined[:], projection[:], view[:])

		assert.Equal(t, view, h.EyeViewMatrix(eye))
		assert.Equal(t, projection, h.EyeProjectionMatrix(eye))
		assert.Equal(t, combined, h.EyeViewProjectionMatrix(eye))
	}
	assert.Equal(t, rt.frameState.PredictedDisplayTime, h.PredictedDisplayTime())
}

func TestWithReferenceSpace(t *testing.T) {
	rt := newFakeRuntime()
	newTestHeadset(t, rt, gputest.NewDevice(), WithReferenceSpace(ReferenceSpaceLocal))
	assert.Equal(t, []ReferenceSpaceType{ReferenceSpaceLocal}, rt.referenceSpaces)
}

func TestWithRegistererExportsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rt := newFakeRuntime()
	h := newTestHeadset(t, rt, gputest.NewDevice(), WithRegisterer(reg))
	focus(t, h, rt)

	_, _, err := h.BeginFrame()
	require.NoError(t, err)
	h.EndFrame()

	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.frames.WithLabelValues("render_fully")))
	assert.Equal(t, float64(SessionStateFocused), testutil.ToFloat64(h.metrics.sessionState))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "oxy_xr_begin_frame_total")
	assert.Contains(t, names, "oxy_xr_session_state")

	second := newTestHeadset(t, newFakeRuntime(), gputest.NewDevice(), WithRegisterer(reg))
	assert.Same(t, h.metrics.frames, second.metrics.frames)
}
