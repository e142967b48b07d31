// ABOUTME: Prometheus instrumentation for the playback pipeline
// ABOUTME: Counts underruns, degenerate decodes, and dropped segments
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters. A nil *Metrics is valid and all
// methods are no-ops, so components never need to guard instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	underruns       prometheus.Counter
	degenerate      prometheus.Counter
	droppedSegments prometheus.Counter
	filteredPrompts prometheus.Counter
	scheduledTotal  prometheus.Counter
	bufferedAhead   prometheus.Gauge
}

// New creates and registers the pipeline metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		underruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundrift_underruns_total",
			Help: "Playback underruns forcing a re-buffer.",
		}),
		degenerate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundrift_degenerate_buffers_total",
			Help: "Malformed audio payloads substituted with silence.",
		}),
		droppedSegments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundrift_segments_dropped_total",
			Help: "Audio segments ignored because playback was stopped or paused.",
		}),
		filteredPrompts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundrift_filtered_prompts_total",
			Help: "Prompts rejected by the service content filter.",
		}),
		scheduledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundrift_segments_scheduled_total",
			Help: "Audio segments scheduled on the output graph.",
		}),
		bufferedAhead: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "soundrift_buffered_ahead_seconds",
			Help: "Seconds of audio scheduled ahead of the playback clock.",
		}),
	}

	reg.MustRegister(m.underruns, m.degenerate, m.droppedSegments,
		m.filteredPrompts, m.scheduledTotal, m.bufferedAhead)

	return m
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncUnderrun() {
	if m != nil {
		m.underruns.Inc()
	}
}

func (m *Metrics) IncDegenerate() {
	if m != nil {
		m.degenerate.Inc()
	}
}

func (m *Metrics) IncDroppedSegment() {
	if m != nil {
		m.droppedSegments.Inc()
	}
}

func (m *Metrics) IncFilteredPrompt() {
	if m != nil {
		m.filteredPrompts.Inc()
	}
}

func (m *Metrics) IncScheduled() {
	if m != nil {
		m.scheduledTotal.Inc()
	}
}

func (m *Metrics) SetBufferedAhead(seconds float64) {
	if m != nil {
		m.bufferedAhead.Set(seconds)
	}
}
