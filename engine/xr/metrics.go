package xr

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the headset's prometheus collectors.
// Collectors are always created; they are only exported when a Registerer is supplied.
type metrics struct {
	sessionState     prometheus.Gauge
	frames           *prometheus.CounterVec
	endFrameFailures *prometheus.CounterVec
	hapticPulses     *prometheus.CounterVec
	pinch            *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		sessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "oxy",
			Subsystem: "xr",
			Name:      "session_state",
			Help:      "Current runtime session state as its enumeration value",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oxy",
			Subsystem: "xr",
			Name:      "begin_frame_total",
			Help:      "BeginFrame outcomes by result",
		}, []string{"result"}),
		endFrameFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oxy",
			Subsystem: "xr",
			Name:      "end_frame_failures_total",
			Help:      "Absorbed EndFrame failures by stage",
		}, []string{"stage"}),
		hapticPulses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oxy",
			Subsystem: "xr",
			Name:      "haptic_pulses_total",
			Help:      "Haptic pulses requested by hand",
		}, []string{"hand"}),
		pinch: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "oxy",
			Subsystem: "xr",
			Name:      "pinch_active",
			Help:      "1 while a pinch gesture is held, by hand",
		}, []string{"hand"}),
	}

	if reg == nil {
		return m
	}
	m.sessionState = register(reg, m.sessionState)
	m.frames = register(reg, m.frames)
	m.endFrameFailures = register(reg, m.endFrameFailures)
	m.hapticPulses = register(reg, m.hapticPulses)
	m.pinch = register(reg, m.pinch)
	return m
}

// register adds c to reg, reusing the collector already registered under the same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}
