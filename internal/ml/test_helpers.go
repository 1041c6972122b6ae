package ml

import "sync"

// MockMetrics implements MetricsInterface and SearchMetrics for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      int
	failures         int
	notReady         int
	latencySum       float64
	ready            bool
	predictionScores []float64
	trialScores      []float64
	searchDuration   float64
	heldOutScore     float64
	modelScore       float64
}

func (m *MockMetrics) PredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) PredictionFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) NotReadyInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notReady++
}

func (m *MockMetrics) LatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) PredictionScoresObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionScores = append(m.predictionScores, v)
}

func (m *MockMetrics) ReadySet(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = v
}

func (m *MockMetrics) ModelScoreSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelScore = v
}

func (m *MockMetrics) SearchTrialScoreObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trialScores = append(m.trialScores, v)
}

func (m *MockMetrics) SearchDurationObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchDuration = v
}

func (m *MockMetrics) SearchHeldOutScoreSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heldOutScore = v
}
