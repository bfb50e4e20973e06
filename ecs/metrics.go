package ecs

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// SingletonMetrics counts singleton lifecycle transitions per type.
// All methods are nil-safe: a registry without metrics records nothing.
type SingletonMetrics struct {
	// CreatedTotal counts containers created by the accessor.
	CreatedTotal *prometheus.CounterVec

	// InitializedTotal counts objects that became the current instance,
	// whether found in the scene, adopted on creation or created by the accessor.
	InitializedTotal *prometheus.CounterVec

	// DuplicatesTotal counts objects destroyed because an instance already existed.
	DuplicatesTotal *prometheus.CounterVec

	// TeardownsTotal counts current instances torn down by the host.
	TeardownsTotal *prometheus.CounterVec

	// Live is 1 while a type has a current instance.
	Live *prometheus.GaugeVec
}

// NewSingletonMetrics creates the singleton metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewSingletonMetrics(reg prometheus.Registerer) *SingletonMetrics {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soloecs",
			Subsystem: "singletons",
			Name:      name,
			Help:      help,
		}, []string{"type"})
	}

	m := &SingletonMetrics{
		CreatedTotal:     counter("created_total", "Singleton containers created on first access"),
		InitializedTotal: counter("initialized_total", "Objects that became the current singleton instance"),
		DuplicatesTotal:  counter("duplicates_destroyed_total", "Duplicate singleton objects handed back for destruction"),
		TeardownsTotal:   counter("teardowns_total", "Current singleton instances torn down"),
		Live: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "soloecs",
			Subsystem: "singletons",
			Name:      "live",
			Help:      "Whether a singleton type currently has an instance",
		}, []string{"type"}),
	}

	if reg != nil {
		collectors := []prometheus.Collector{
			m.CreatedTotal,
			m.InitializedTotal,
			m.DuplicatesTotal,
			m.TeardownsTotal,
			m.Live,
		}
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				var already prometheus.AlreadyRegisteredError
				if !errors.As(err, &already) {
					panic(err)
				}
			}
		}
	}

	return m
}

func (m *SingletonMetrics) recordCreated(typ string) {
	if m == nil {
		return
	}
	m.CreatedTotal.WithLabelValues(typ).Inc()
}

func (m *SingletonMetrics) recordInitialized(typ string) {
	if m == nil {
		return
	}
	m.InitializedTotal.WithLabelValues(typ).Inc()
	m.Live.WithLabelValues(typ).Set(1)
}

func (m *SingletonMetrics) recordDuplicate(typ string) {
	if m == nil {
		return
	}
	m.DuplicatesTotal.WithLabelValues(typ).Inc()
}

func (m *SingletonMetrics) recordTeardown(typ string) {
	if m == nil {
		return
	}
	m.TeardownsTotal.WithLabelValues(typ).Inc()
	m.Live.WithLabelValues(typ).Set(0)
}
