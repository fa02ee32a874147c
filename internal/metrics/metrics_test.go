package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"studyguide-quiz/internal/domain"
)

func TestMetricsCountLifecycle(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SessionStarted("notes.pdf")
	m.SessionStarted("Notes.PDF")
	m.SessionStarted("archive.pdf.zip")
	m.SessionCompleted(domain.Score{Correct: 1, Total: 2, Percentage: 50})
	m.ProviderFailed(&domain.ProviderError{StatusCode: 500})
	m.ProviderFailed(errors.New("dial tcp: refused"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.started.WithLabelValues("pdf")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.started.WithLabelValues("other")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerErrors.WithLabelValues("500")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerErrors.WithLabelValues("0")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SessionCompleted(domain.Score{Correct: 2, Total: 2, Percentage: 100})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Contains(t, rec.Body.String(), "quiz_sessions_completed_total 1")
	assert.Contains(t, rec.Body.String(), "quiz_score_percentage_bucket")
}

func TestKindOf(t *testing.T) {
	cases := map[string]string{
		"notes.pdf":         "pdf",
		"Notes.PDF":         "pdf",
		"dir.v2/essay.DocX": "docx",
		"readme.txt":        "txt",
		"slides.pptx":       "other",
		"noext":             "other",
		"dir.pdf/noext":     "other",
	}
	for name, want := range cases {
		assert.Equal(t, want, kindOf(name), name)
	}
}
