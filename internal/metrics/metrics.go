// Package metrics provides Prometheus metrics collection for the term deposit
// predictor. Metrics covers online inference and is scraped from the model
// server; TrainingMetrics covers search runs and is exported by the trainer
// when the run ends.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds the Prometheus metrics of the model server.
type Metrics struct {
	Predictions        prometheus.Counter   // Successful predictions
	PredictionFailures prometheus.Counter   // Records rejected by encoding or schema checks
	NotReady           prometheus.Counter   // Requests refused because no model is loaded
	PredictionLatency  prometheus.Histogram // End-to-end prediction latency in seconds
	PredictionScores   prometheus.Histogram // Distribution of predicted probabilities
	ModelReady         prometheus.Gauge     // 1 when artifacts are loaded, 0 otherwise
	ModelHeldOutScore  prometheus.Gauge     // Held-out ROC AUC recorded with the served model
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of successful predictions",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of records rejected during prediction",
		}),
		NotReady: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_not_ready_total",
			Help: "Total number of predictions refused because the model is not loaded",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Prediction latency in seconds (encode and score)",
			Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_scores",
			Help:    "Distribution of predicted subscription probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ModelReady: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_ready",
			Help: "Whether model artifacts are loaded (1) or not (0)",
		}),
		ModelHeldOutScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_held_out_roc_auc",
			Help: "Held-out ROC AUC measured when the served model was trained",
		}),
	}
}

// FailureRate returns rejected predictions over all prediction attempts that
// reached a loaded model, or 0 before the first attempt.
func (m *Metrics) FailureRate() float64 {
	ok := counterValue(m.Predictions)
	failed := counterValue(m.PredictionFailures)
	if ok+failed == 0 {
		return 0
	}
	return failed / (ok + failed)
}

func counterValue(c prometheus.Counter) float64 {
	var out dto.Metric
	if err := c.Write(&out); err != nil || out.Counter == nil {
		return 0
	}
	return out.Counter.GetValue()
}
