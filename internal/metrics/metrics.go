// Package metrics records run telemetry in a Prometheus registry and writes
// it out in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"twcc/internal/twcc"
)

// Recorder implements twcc.Observer.
type Recorder struct {
	registry *prometheus.Registry

	pagesFetched   *prometheus.CounterVec
	entriesFetched *prometheus.CounterVec
	retries        *prometheus.CounterVec
	unrecognized   *prometheus.CounterVec
	runs           *prometheus.CounterVec
	runDuration    *prometheus.GaugeVec
	lastRun        *prometheus.GaugeVec
	tweets         *prometheus.GaugeVec
}

var _ twcc.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.pagesFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "twcc",
		Name:      "pages_fetched_total",
		Help:      "Timeline pages fetched from the platform",
	}, []string{"user"})
	r.entriesFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "twcc",
		Name:      "entries_fetched_total",
		Help:      "Timeline entries received from the platform",
	}, []string{"user"})
	r.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "twcc",
		Name:      "fetch_retries_total",
		Help:      "Page requests retried, by reason",
	}, []string{"user", "reason"})
	r.unrecognized = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "twcc",
		Name:      "entries_unrecognized_total",
		Help:      "Timeline entries that could not be parsed as tweets",
	}, []string{"user"})
	r.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "twcc",
		Name:      "runs_total",
		Help:      "Report runs by outcome and failing stage",
	}, []string{"user", "status", "stage"})
	r.runDuration = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "twcc",
		Name:      "run_duration_seconds",
		Help:      "Duration of the last run",
	}, []string{"user"})
	r.lastRun = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "twcc",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the last run, by outcome",
	}, []string{"user", "status"})
	r.tweets = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "twcc",
		Name:      "tweets",
		Help:      "Tweets per classification in the last successful run",
	}, []string{"user", "status"})

	r.registry.MustRegister(
		r.pagesFetched, r.entriesFetched, r.retries, r.unrecognized,
		r.runs, r.runDuration, r.lastRun, r.tweets,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) PageFetched(userID string, seq int, entries int) {
	r.pagesFetched.WithLabelValues(userID).Inc()
	r.entriesFetched.WithLabelValues(userID).Add(float64(entries))
}

func (r *Recorder) FetchRetried(userID string, reason string, attempt int, delay time.Duration) {
	r.retries.WithLabelValues(userID, reason).Inc()
}

func (r *Recorder) EntryUnrecognized(userID string, reason string) {
	r.unrecognized.WithLabelValues(userID).Inc()
}

func (r *Recorder) RunFinished(summary twcc.RunSummary, err error, elapsed time.Duration) {
	user := summary.UserID
	status := twcc.RunSuccess
	if err != nil {
		status = twcc.RunError
	}
	r.runs.WithLabelValues(user, status, string(twcc.StageOf(err))).Inc()
	r.runDuration.WithLabelValues(user).Set(elapsed.Seconds())
	r.lastRun.WithLabelValues(user, status).Set(float64(summary.StartedAt.Add(elapsed).Unix()))
	if err != nil {
		return
	}
	c := summary.Counts
	for _, kv := range []struct {
		status twcc.Status
		n      int
	}{
		{twcc.StatusPresent, c.Present},
		{twcc.StatusDeleted, c.Deleted},
		{twcc.StatusModified, c.Modified},
		{twcc.StatusNew, c.New},
	} {
		r.tweets.WithLabelValues(user, kv.status.String()).Set(float64(kv.n))
	}
}

// WriteTextfile writes every metric to path atomically, for collection by
// node_exporter's textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
