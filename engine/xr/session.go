package xr

import (
	"fmt"

	"go.uber.org/zap"
)

// SessionState is the runtime-reported lifecycle state of a session.
type SessionState int

const (
	SessionStateUnknown SessionState = iota
	SessionStateIdle
	SessionStateReady
	SessionStateSynchronized
	SessionStateVisible
	SessionStateFocused
	SessionStateStopping
	SessionStateLossPending
	SessionStateExiting
)

var sessionStateNames = [...]string{
	SessionStateUnknown:      "unknown",
	SessionStateIdle:         "idle",
	SessionStateReady:        "ready",
	SessionStateSynchronized: "synchronized",
	SessionStateVisible:      "visible",
	SessionStateFocused:      "focused",
	SessionStateStopping:     "stopping",
	SessionStateLossPending:  "loss_pending",
	SessionStateExiting:      "exiting",
}

func (s SessionState) String() string {
	if s < 0 || int(s) >= len(sessionStateNames) {
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
	return sessionStateNames[s]
}

// IsRenderEligible reports whether frame work (wait, begin, locate, acquire) may be attempted in state.
//
// Parameters:
//   - state: the current session state
//
// Returns:
//   - bool: true for Ready, Synchronized, Visible and Focused
func IsRenderEligible(state SessionState) bool {
	switch state {
	case SessionStateReady, SessionStateSynchronized, SessionStateVisible, SessionStateFocused:
		return true
	}
	return false
}

// sessionMachine owns the runtime session and follows its state from polled events.
type sessionMachine struct {
	runtime    Runtime
	session    Session
	viewConfig ViewConfigurationType
	logger     *zap.Logger
	metrics    *metrics

	state         SessionState
	running       bool
	exitRequested bool
}

// pump drains queued runtime events and reacts to each transition.
// abandon is true when the caller must skip the frame without any further runtime calls.
// Once exit has been requested every later pump reports abandon.
func (m *sessionMachine) pump() (abandon bool, err error) {
	for {
		event, ok, err := m.runtime.PollEvent()
		if err != nil {
			return false, fmt.Errorf("failed to poll runtime events: %w", err)
		}
		if !ok {
			break
		}

		switch event.Type {
		case EventInstanceLossPending:
			m.logger.Warn("runtime instance loss pending")
			m.requestExit()
			return true, nil
		case EventSessionStateChanged:
			if exit, err := m.transition(event.State); err != nil || exit {
				return exit, err
			}
		}
	}
	return m.exitRequested, nil
}

func (m *sessionMachine) transition(state SessionState) (exit bool, err error) {
	m.logger.Info("session state changed", zap.Stringer("from", m.state), zap.Stringer("to", state))
	m.state = state
	m.metrics.sessionState.Set(float64(state))

	switch state {
	case SessionStateReady:
		if err := m.runtime.BeginSession(m.session, m.viewConfig); err != nil {
			return false, fmt.Errorf("failed to begin session: %w", err)
		}
		m.running = true
	case SessionStateStopping:
		if err := m.runtime.EndSession(m.session); err != nil {
			return false, fmt.Errorf("failed to end session: %w", err)
		}
		m.running = false
	case SessionStateLossPending, SessionStateExiting:
		m.requestExit()
		return true, nil
	}
	return false, nil
}

func (m *sessionMachine) requestExit() {
	if !m.exitRequested {
		m.logger.Info("exit requested", zap.Stringer("state", m.state))
	}
	m.exitRequested = true
}
