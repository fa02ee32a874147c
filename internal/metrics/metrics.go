package metrics

import (
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studyguide-quiz/internal/domain"
)

// Metrics records quiz lifecycle counters. It implements app.Observer.
type Metrics struct {
	started        *prometheus.CounterVec
	completed      prometheus.Counter
	providerErrors *prometheus.CounterVec
	scores         prometheus.Histogram
	gatherer       prometheus.Gatherer
}

// New registers the quiz collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		started: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_sessions_started_total",
				Help: "Quiz sessions opened, including regenerated ones",
			},
			[]string{"kind"},
		),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_sessions_completed_total",
			Help: "Quiz sessions finalized with a score",
		}),
		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_provider_errors_total",
				Help: "Failed question fetches by HTTP status (0 for transport failures)",
			},
			[]string{"status"},
		),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiz_score_percentage",
			Help:    "Distribution of final quiz scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.started, m.completed, m.providerErrors, m.scores)
	return m
}

func (m *Metrics) SessionStarted(filename string) {
	m.started.WithLabelValues(kindOf(filename)).Inc()
}

func (m *Metrics) SessionCompleted(score domain.Score) {
	m.completed.Inc()
	m.scores.Observe(score.Percentage)
}

func (m *Metrics) ProviderFailed(err error) {
	status := "0"
	var perr *domain.ProviderError
	if errors.As(err, &perr) {
		status = strconv.Itoa(perr.StatusCode)
	}
	m.providerErrors.WithLabelValues(status).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// kindOf buckets documents by extension to keep label cardinality bounded.
func kindOf(filename string) string {
	switch ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), "."); ext {
	case "pdf", "docx", "txt":
		return ext
	}
	return "other"
}
