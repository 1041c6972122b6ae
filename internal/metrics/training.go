package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// TrainingJob is the job label used when pushing training metrics.
const TrainingJob = "term_deposit_trainer"

// TrainingMetrics holds the metrics of one trainer process. They live on a
// private registry that the trainer exports before it exits.
type TrainingMetrics struct {
	registry *prometheus.Registry

	TrialScores   prometheus.Histogram // Mean CV ROC AUC of each sampled configuration
	Duration      prometheus.Histogram // Wall time of a full search run
	HeldOutScore  prometheus.Gauge     // Held-out ROC AUC of the refit model
	RunsCompleted prometheus.Counter   // Completed search runs
	RunsFailed    prometheus.Counter   // Runs that ended without a model
	LastRunTime   prometheus.Gauge     // Unix time the last run finished
}

// NewTraining creates training metrics on a fresh registry.
func NewTraining() *TrainingMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &TrainingMetrics{
		registry: registry,
		TrialScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "search_trial_roc_auc",
			Help:    "Mean cross-validated ROC AUC of sampled configurations",
			Buckets: []float64{0.5, 0.55, 0.6, 0.65, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1.0},
		}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "search_duration_seconds",
			Help:    "Duration of hyperparameter search runs in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		HeldOutScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "search_held_out_roc_auc",
			Help: "Held-out ROC AUC of the most recently refit model",
		}),
		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "search_runs_completed_total",
			Help: "Total number of completed search runs",
		}),
		RunsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "search_runs_failed_total",
			Help: "Total number of training runs that did not produce a model",
		}),
		LastRunTime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "search_last_run_timestamp_seconds",
			Help: "Unix time at which the last training run finished",
		}),
	}
}

// Gatherer exposes the private registry.
func (t *TrainingMetrics) Gatherer() prometheus.Gatherer { return t.registry }

func (t *TrainingMetrics) SearchTrialScoreObserve(v float64) {
	t.TrialScores.Observe(v)
}

func (t *TrainingMetrics) SearchDurationObserve(v float64) {
	t.Duration.Observe(v)
	t.RunsCompleted.Inc()
}

func (t *TrainingMetrics) SearchHeldOutScoreSet(v float64) {
	t.HeldOutScore.Set(v)
}

// RunFinished stamps the end of a run and counts it as failed when err is set.
func (t *TrainingMetrics) RunFinished(err error) {
	if err != nil {
		t.RunsFailed.Inc()
	}
	t.LastRunTime.SetToCurrentTime()
}

// WriteTextfile writes the metrics in the text exposition format, for the
// node exporter textfile collector.
func (t *TrainingMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, t.registry); err != nil {
		return fmt.Errorf("write training metrics: %w", err)
	}
	return nil
}

// Push sends the metrics to a Pushgateway at url.
func (t *TrainingMetrics) Push(url string) error {
	if err := push.New(url, TrainingJob).Gatherer(t.registry).Push(); err != nil {
		return fmt.Errorf("push training metrics: %w", err)
	}
	return nil
}
