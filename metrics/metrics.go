// Package metrics exposes Prometheus metrics for the registration coordinator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder exposes Prometheus metrics for the coordinator. All components
// share one Recorder, created alongside the metrics server.
type Recorder struct {
	sessionsStarted   *prometheus.CounterVec
	sessionsCompleted prometheus.Counter
	sessionsFailed    *prometheus.CounterVec
	stepTransitions   *prometheus.CounterVec
	transitionRejects *prometheus.CounterVec
	statusPolls       *prometheus.CounterVec
	pollDuration      prometheus.Histogram
	peerProbes        *prometheus.CounterVec
	sessionStalls     *prometheus.CounterVec
	activeSessions    prometheus.Gauge
	peerConnections   prometheus.Gauge
}

// NewRecorder registers coordinator metrics with the provided registry.
func NewRecorder(namespace string, reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Registration sessions started, grouped by variant and mode",
		}, []string{"variant", "mode"}),
		sessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Registration sessions that reached success",
		}),
		sessionsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Registration sessions that ended in a fatal failure, grouped by reason",
		}, []string{"reason"}),
		stepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_transitions_total",
			Help:      "Forward step transitions, grouped by the step entered",
		}, []string{"step"}),
		transitionRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transition_rejects_total",
			Help:      "Transition attempts rejected by a guard, grouped by reason",
		}, []string{"reason"}),
		statusPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_polls_total",
			Help:      "Registry status polls, grouped by result",
		}, []string{"result"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "status_poll_duration_seconds",
			Help:      "Latency of batched registry status reads",
			Buckets:   prometheus.DefBuckets,
		}),
		peerProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_probes_total",
			Help:      "Active peer latency probes, grouped by result",
		}, []string{"result"}),
		sessionStalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_stalls_total",
			Help:      "Sessions that entered the stalled state, grouped by reason",
		}, []string{"reason"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Registration sessions currently tracked by the coordinator",
		}),
		peerConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peer_connections_open",
			Help:      "Peer relay connections currently reported open",
		}),
	}

	reg.MustRegister(
		r.sessionsStarted,
		r.sessionsCompleted,
		r.sessionsFailed,
		r.stepTransitions,
		r.transitionRejects,
		r.statusPolls,
		r.pollDuration,
		r.peerProbes,
		r.sessionStalls,
		r.activeSessions,
		r.peerConnections,
	)
	return r
}

// ObserveSessionStarted increments the started counter for a variant and mode.
func (r *Recorder) ObserveSessionStarted(variant, mode string) {
	r.sessionsStarted.WithLabelValues(variant, mode).Inc()
}

// ObserveSessionCompleted increments the completed counter.
func (r *Recorder) ObserveSessionCompleted() { r.sessionsCompleted.Inc() }

// ObserveSessionFailed records a fatal session failure.
func (r *Recorder) ObserveSessionFailed(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	r.sessionsFailed.WithLabelValues(reason).Inc()
}

// ObserveStepTransition records a forward transition into a step.
func (r *Recorder) ObserveStepTransition(step string) {
	r.stepTransitions.WithLabelValues(step).Inc()
}

// ObserveTransitionReject records a guard rejection with its reason code.
func (r *Recorder) ObserveTransitionReject(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	r.transitionRejects.WithLabelValues(reason).Inc()
}

// ObserveStatusPoll records one batched status read and its latency.
func (r *Recorder) ObserveStatusPoll(result string, d time.Duration) {
	if result == "" {
		result = "unknown"
	}
	r.statusPolls.WithLabelValues(result).Inc()
	r.pollDuration.Observe(d.Seconds())
}

// ObservePeerProbe records an active latency probe outcome.
func (r *Recorder) ObservePeerProbe(result string) {
	if result == "" {
		result = "unknown"
	}
	r.peerProbes.WithLabelValues(result).Inc()
}

// ObserveSessionStall records a session entering the stalled state.
func (r *Recorder) ObserveSessionStall(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	r.sessionStalls.WithLabelValues(reason).Inc()
}

// SetActiveSessions records the number of tracked sessions.
func (r *Recorder) SetActiveSessions(count int) {
	r.activeSessions.Set(float64(count))
}

// SetPeerConnections records the number of open peer relay connections.
func (r *Recorder) SetPeerConnections(count int) {
	r.peerConnections.Set(float64(count))
}
