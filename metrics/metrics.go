// Package metrics exposes the league service's Prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LeagueMetrics groups the counters and histograms recorded by the services.
// A nil *LeagueMetrics is valid and records nothing.
type LeagueMetrics struct {
	submissions     *prometheus.CounterVec
	completions     prometheus.Counter
	mismatches      prometheus.Counter
	stepDuration    *prometheus.HistogramVec
	stepFailures    *prometheus.CounterVec
	retries         *prometheus.CounterVec
	holderReassigns prometheus.Counter
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *LeagueMetrics {
	m := &LeagueMetrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "evidence_submissions_total",
			Help:      "Evidence submissions by resulting consensus state.",
		}, []string{"state"}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "match_completions_total",
			Help:      "Matches transitioned to completed.",
		}),
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "winner_mismatches_total",
			Help:      "Submissions that left both winner selections in disagreement.",
		}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "league",
			Name:      "recompute_step_duration_seconds",
			Help:      "Duration of post-completion recompute steps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "recompute_step_failures_total",
			Help:      "Failed post-completion recompute steps.",
		}, []string{"step"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "recompute_retries_total",
			Help:      "Recompute task retries by outcome.",
		}, []string{"outcome"}),
		holderReassigns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "gym_badge_reassignments_total",
			Help:      "Gym badge holder rows written.",
		}),
	}
	reg.MustRegister(
		m.submissions, m.completions, m.mismatches,
		m.stepDuration, m.stepFailures, m.retries, m.holderReassigns,
	)
	return m
}

func (m *LeagueMetrics) Submission(state string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(state).Inc()
}

func (m *LeagueMetrics) Completion() {
	if m == nil {
		return
	}
	m.completions.Inc()
}

func (m *LeagueMetrics) Mismatch() {
	if m == nil {
		return
	}
	m.mismatches.Inc()
}

// Step records one recompute step run.
func (m *LeagueMetrics) Step(step string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
	if err != nil {
		m.stepFailures.WithLabelValues(step).Inc()
	}
}

func (m *LeagueMetrics) Retry(outcome string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(outcome).Inc()
}

func (m *LeagueMetrics) HolderReassigned(n int) {
	if m == nil {
		return
	}
	m.holderReassigns.Add(float64(n))
}
