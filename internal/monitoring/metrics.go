package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "core_view"

// distanceBuckets bracket the archetype fit threshold of 15
var distanceBuckets = []float64{5, 10, 15, 20, 30, 45, 60, 90, 150}

// Metrics exposes Prometheus collectors for HTTP traffic and scoring activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	responsesScored   *prometheus.CounterVec
	responsesRejected *prometheus.CounterVec
	profilesBuilt     prometheus.Counter
	archetypes        *prometheus.CounterVec
	archetypeDistance prometheus.Histogram
	adjustments       *prometheus.CounterVec
	feedbackResponses prometheus.Counter

	cacheRequests   *prometheus.CounterVec
	rateLimitBlocks *prometheus.CounterVec
}

// NewMetrics registers the application collectors plus the Go runtime and
// process collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return MustNewMetrics(reg)
}

// MustNewMetrics registers the application collectors on reg. It panics on
// registration conflicts. If reg is also a Gatherer, Handler serves it.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		responsesScored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "responses_total",
			Help:      "Wizard responses applied to an accumulator, by question type.",
		}, []string{"question_type"}),
		responsesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "rejected_responses_total",
			Help:      "Wizard responses refused before scoring, by reason.",
		}, []string{"reason"}),
		profilesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "profile",
			Name:      "built_total",
			Help:      "Profiles computed from an accumulator.",
		}),
		archetypes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "profile",
			Name:      "archetype_assignments_total",
			Help:      "Archetype assignments, including re-assignments after adjustment.",
		}, []string{"archetype"}),
		archetypeDistance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "profile",
			Name:      "archetype_distance",
			Help:      "Euclidean distance between a profile and its assigned archetype.",
			Buckets:   distanceBuckets,
		}),
		adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "profile",
			Name:      "adjustments_total",
			Help:      "Post-hoc adjustments applied, by source.",
		}, []string{"source"}),
		feedbackResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "responses_total",
			Help:      "Third-party feedback answers stored.",
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by cache name and result.",
		}, []string{"cache", "result"}),
		rateLimitBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "blocked_total",
			Help:      "Requests rejected by the rate limiter, by backend.",
		}, []string{"backend"}),
	}

	reg.MustRegister(
		m.requests, m.requestDuration,
		m.responsesScored, m.responsesRejected,
		m.profilesBuilt, m.archetypes, m.archetypeDistance, m.adjustments,
		m.feedbackResponses, m.cacheRequests, m.rateLimitBlocks,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil || m.gatherer == nil {
		return prometheus.DefaultGatherer
	}
	return m.gatherer
}

// RecordRequest records one completed HTTP request.
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordResponseScored counts a response applied to an accumulator.
func (m *Metrics) RecordResponseScored(questionType string) {
	if m == nil {
		return
	}
	m.responsesScored.WithLabelValues(questionType).Inc()
}

// RecordResponseRejected counts a response refused before scoring.
func (m *Metrics) RecordResponseRejected(reason string) {
	if m == nil {
		return
	}
	m.responsesRejected.WithLabelValues(reason).Inc()
}

// RecordProfileBuilt counts a freshly computed profile and its assignment.
func (m *Metrics) RecordProfileBuilt(archetypeID string, distance float64) {
	if m == nil {
		return
	}
	m.profilesBuilt.Inc()
	m.recordAssignment(archetypeID, distance)
}

// RecordAdjustment counts an applied adjustment and the resulting assignment.
func (m *Metrics) RecordAdjustment(source, archetypeID string, distance float64) {
	if m == nil {
		return
	}
	m.adjustments.WithLabelValues(source).Inc()
	m.recordAssignment(archetypeID, distance)
}

func (m *Metrics) recordAssignment(archetypeID string, distance float64) {
	m.archetypes.WithLabelValues(archetypeID).Inc()
	m.archetypeDistance.Observe(distance)
}

// RecordFeedback counts stored feedback answers.
func (m *Metrics) RecordFeedback(responses int) {
	if m == nil {
		return
	}
	m.feedbackResponses.Add(float64(responses))
}

// IncrementCacheHit counts a cache hit for the named cache.
func (m *Metrics) IncrementCacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(cache, "hit").Inc()
}

// IncrementCacheMiss counts a cache miss for the named cache.
func (m *Metrics) IncrementCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(cache, "miss").Inc()
}

// IncrementRateLimitBlock counts a request rejected by the given limiter backend.
func (m *Metrics) IncrementRateLimitBlock(backend string) {
	if m == nil {
		return
	}
	m.rateLimitBlocks.WithLabelValues(backend).Inc()
}
