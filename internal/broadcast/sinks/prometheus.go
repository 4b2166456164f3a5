package sinks

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acreleads/realtime-lead-engine/internal/broadcast"
)

// PrometheusSink exports broadcast stream metrics. It owns the collectors for
// published events and discovered properties.
type PrometheusSink struct {
	eventsPublished *prometheus.CounterVec
	propertiesFound prometheus.Counter
	jobsCompleted   *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadengine_broadcast_events_total",
			Help: "Broadcast events published, partitioned by type.",
		}, []string{"type"}),
		propertiesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadengine_properties_total",
			Help: "Total properties reported by the workflow runner.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadengine_jobs_finished_total",
			Help: "Jobs that reached a terminal state, partitioned by outcome.",
		}, []string{"outcome"}),
	}
	for _, collector := range []prometheus.Collector{
		s.eventsPublished,
		s.propertiesFound,
		s.jobsCompleted,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register broadcast collector: %w", err)
		}
	}
	return s, nil
}

// Observe updates the collectors for one published event. It is safe for
// concurrent use by multiple goroutines.
func (s *PrometheusSink) Observe(evt broadcast.Event) {
	s.eventsPublished.WithLabelValues(string(evt.Type)).Inc()
	switch evt.Type {
	case broadcast.TypeNewProperty:
		s.propertiesFound.Inc()
	case broadcast.TypeJobComplete:
		s.jobsCompleted.WithLabelValues("completed").Inc()
	case broadcast.TypeJobStopped:
		s.jobsCompleted.WithLabelValues("stopped").Inc()
	}
}
