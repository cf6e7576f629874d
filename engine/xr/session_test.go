package xr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIsRenderEligible(t *testing.T) {
	tests := []struct {
		state SessionState
		want  bool
	}{
		{SessionStateUnknown, false},
		{SessionStateIdle, false},
		{SessionStateReady, true},
		{SessionStateSynchronized, true},
		{SessionStateVisible, true},
		{SessionStateFocused, true},
		{SessionStateStopping, false},
		{SessionStateLossPending, false},
		{SessionStateExiting, false},
		{SessionState(42), false},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, IsRenderEligible(tt.state))
		})
	}
}

func TestSessionStateString(t *testing.T) {
	assert.Equal(t, "loss_pending", SessionStateLossPending.String())
	assert.Equal(t, "focused", SessionStateFocused.String())
	assert.Equal(t, "SessionState(-1)", SessionState(-1).String())
}

func newTestMachine(rt *fakeRuntime) *sessionMachine {
	return &sessionMachine{
		runtime:    rt,
		session:    7,
		viewConfig: ViewConfigurationPrimaryStereo,
		logger:     zap.NewNop(),
		metrics:    newMetrics(nil),
	}
}

func TestSessionMachineDrainsAllEvents(t *testing.T) {
	rt := newFakeRuntime()
	m := newTestMachine(rt)
	rt.pushState(SessionStateIdle, SessionStateReady, SessionStateSynchronized, SessionStateVisible, SessionStateFocused)

	abandon, err := m.pump()

	require.NoError(t, err)
	assert.False(t, abandon)
	assert.Equal(t, SessionStateFocused, m.state)
	assert.True(t, m.running)
	assert.Equal(t, 1, rt.count("BeginSession"))
	assert.Equal(t, 6, rt.count("PollEvent"))
	assert.Empty(t, rt.events)
}

func TestSessionMachineStopsAtExit(t *testing.T) {
	rt := newFakeRuntime()
	m := newTestMachine(rt)
	rt.pushState(SessionStateStopping, SessionStateExiting, SessionStateIdle)

	abandon, err := m.pump()

	require.NoError(t, err)
	assert.True(t, abandon)
	assert.True(t, m.exitRequested)
	assert.False(t, m.running)
	assert.Equal(t, SessionStateExiting, m.state)
	assert.Len(t, rt.events, 1, "events after an exit stay queued for the next pump")

	abandon, err = m.pump()
	require.NoError(t, err)
	assert.True(t, abandon)
	assert.Equal(t, SessionStateIdle, m.state)
}

func TestSessionMachineErrors(t *testing.T) {
	tests := []struct {
		name   string
		fail   string
		states []SessionState
	}{
		{name: "poll", fail: "PollEvent"},
		{name: "begin session", fail: "BeginSession", states: []SessionState{SessionStateReady}},
		{name: "end session", fail: "EndSession", states: []SessionState{SessionStateStopping}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			rt.failOn[tt.fail] = true
			rt.pushState(tt.states...)
			m := newTestMachine(rt)

			abandon, err := m.pump()

			assert.ErrorIs(t, err, errRuntime)
			assert.False(t, abandon)
			assert.False(t, m.exitRequested)
		})
	}
}
