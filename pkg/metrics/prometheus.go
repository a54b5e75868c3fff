// Package metrics exposes Prometheus collectors for the speech pipeline.
//
// All methods are safe on a nil *Metrics, so components can take an optional
// collector without guarding every call.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provider call outcomes.
const (
	OutcomeSuccess       = "success"
	OutcomeTimeout       = "timeout"
	OutcomeError         = "error"
	OutcomeCanceled      = "canceled"
	OutcomeLowConfidence = "low_confidence"
	OutcomeNoSpeech      = "no_speech"
	OutcomePlayback      = "playback_error"
)

// Metrics contains all Prometheus metrics for the voice service.
type Metrics struct {
	// Provider metrics, labelled by kind (stt|tts) and provider id
	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	Demotions       *prometheus.CounterVec
	Fallbacks       *prometheus.CounterVec

	// Transcription quality
	Confidence prometheus.Histogram

	// Turn metrics
	Turns            *prometheus.CounterVec
	TurnDuration     prometheus.Histogram
	StateTransitions *prometheus.CounterVec

	// Chat collaborator
	ChatRequests *prometheus.CounterVec
	ChatDuration prometheus.Histogram

	// Sessions
	ActiveSessions prometheus.Gauge
	SessionsTotal  prometheus.Counter
}

// New creates and registers all metrics on reg. A nil reg uses the default
// Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceturn_provider_calls_total",
			Help: "Provider invocations by outcome",
		}, []string{"kind", "provider", "outcome"}),
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voiceturn_provider_duration_seconds",
			Help:    "Provider call latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"kind", "provider"}),
		Demotions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceturn_provider_demotions_total",
			Help: "Providers marked unhealthy for the rest of a session",
		}, []string{"kind", "provider"}),
		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceturn_provider_fallbacks_total",
			Help: "Calls served by a provider other than the first in priority order",
		}, []string{"kind", "provider"}),
		Confidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceturn_transcript_confidence",
			Help:    "Confidence of accepted and rejected transcripts",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceturn_turns_total",
			Help: "Completed turns by outcome",
		}, []string{"outcome"}),
		TurnDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceturn_turn_duration_seconds",
			Help:    "Time from end of recording to end of reply",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms to ~1min
		}),
		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceturn_state_transitions_total",
			Help: "Turn state machine transitions by target state",
		}, []string{"state"}),
		ChatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceturn_chat_requests_total",
			Help: "Chat collaborator requests by outcome",
		}, []string{"outcome"}),
		ChatDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceturn_chat_duration_seconds",
			Help:    "Chat collaborator latency",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 9),
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "voiceturn_active_sessions",
			Help: "Sessions currently registered",
		}),
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "voiceturn_sessions_created_total",
			Help: "Sessions created since start",
		}),
	}
}

// ProviderCall records one provider invocation.
func (m *Metrics) ProviderCall(kind, provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(kind, provider, outcome).Inc()
	m.ProviderLatency.WithLabelValues(kind, provider).Observe(d.Seconds())
}

// Demotion records a provider being marked unhealthy.
func (m *Metrics) Demotion(kind, provider string) {
	if m == nil {
		return
	}
	m.Demotions.WithLabelValues(kind, provider).Inc()
}

// Fallback records a call answered by a lower-priority provider.
func (m *Metrics) Fallback(kind, provider string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(kind, provider).Inc()
}

// TranscriptConfidence records the confidence of a transcript.
func (m *Metrics) TranscriptConfidence(c float64) {
	if m == nil {
		return
	}
	m.Confidence.Observe(c)
}

// Turn records a finished turn.
func (m *Metrics) Turn(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.TurnDuration.Observe(d.Seconds())
	}
}

// Transition records entry into state.
func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(state).Inc()
}

// Chat records a chat collaborator request.
func (m *Metrics) Chat(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(outcome).Inc()
	m.ChatDuration.Observe(d.Seconds())
}

// SessionOpened records a new session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsTotal.Inc()
	m.ActiveSessions.Inc()
}

// SessionClosed records a removed session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}
