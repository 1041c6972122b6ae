package metrics

// MetricsWrapper adapts Metrics to the narrow interface the predictor depends
// on, so the ml package never imports Prometheus types.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) PredictionsInc() {
	w.m.Predictions.Inc()
}

func (w *MetricsWrapper) PredictionFailuresInc() {
	w.m.PredictionFailures.Inc()
}

func (w *MetricsWrapper) NotReadyInc() {
	w.m.NotReady.Inc()
}

func (w *MetricsWrapper) LatencyObserve(v float64) {
	w.m.PredictionLatency.Observe(v)
}

func (w *MetricsWrapper) PredictionScoresObserve(v float64) {
	w.m.PredictionScores.Observe(v)
}

func (w *MetricsWrapper) ReadySet(ready bool) {
	if ready {
		w.m.ModelReady.Set(1)
		return
	}
	w.m.ModelReady.Set(0)
}

func (w *MetricsWrapper) ModelScoreSet(v float64) {
	w.m.ModelHeldOutScore.Set(v)
}

// FailureRate exposes Metrics.FailureRate.
func (w *MetricsWrapper) FailureRate() float64 {
	return w.m.FailureRate()
}
