package ml

import (
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"term-deposit/internal/dataset"
	"term-deposit/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() features.RawRecord {
	return features.RawRecord{
		"age": 35, "job": "admin.", "marital": "married", "education": "secondary",
		"default": "no", "balance": 1000, "housing": "yes", "loan": "no",
		"contact": "cellular", "day": 5, "month": "may", "duration": 200,
		"campaign": 1, "pdays": -1, "previous": 0, "poutcome": "unknown",
	}
}

func readyPredictor(t *testing.T, margin float64, metrics MetricsInterface) *Predictor {
	t.Helper()
	model := constantModel(t, margin)
	serving, err := NewServingContext(model, model.Schema())
	require.NoError(t, err)
	return NewPredictor(serving, metrics)
}

func TestPredictor_NotReadyWithoutArtifacts(t *testing.T) {
	metrics := &MockMetrics{}
	p := Load(filepath.Join(t.TempDir(), "missing"), metrics)

	assert.False(t, p.Ready())
	assert.False(t, metrics.ready)
	var loadErr *ArtifactLoadError
	require.True(t, errors.As(p.Err(), &loadErr))

	for i := 0; i < 3; i++ {
		outcome, err := p.Predict(sampleRecord())
		require.True(t, errors.As(err, &loadErr), "got %v", err)
		assert.Equal(t, Outcome{}, outcome)
	}
	assert.Equal(t, 3, metrics.notReady)
	assert.Zero(t, metrics.predictions)

	_, ok := p.Metadata()
	assert.False(t, ok)
	_, ok = p.Schema()
	assert.False(t, ok)
	assert.Empty(t, p.Version())
}

func TestPredictor_NilSafety(t *testing.T) {
	var p *Predictor

	assert.False(t, p.Ready())
	_, err := p.Predict(sampleRecord())
	var loadErr *ArtifactLoadError
	assert.True(t, errors.As(err, &loadErr))
	assert.Error(t, p.Err())
}

func TestNewUnavailablePredictor_WrapsPlainErrors(t *testing.T) {
	p := NewUnavailablePredictor(errors.New("disk on fire"), nil)

	_, err := p.Predict(sampleRecord())
	var loadErr *ArtifactLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestPredictor_DecisionThreshold(t *testing.T) {
	tests := []struct {
		name   string
		margin float64
		label  string
	}{
		{"exactly one half is no", 0, "no"},
		{"just above one half is yes", 1e-9, "yes"},
		{"below one half is no", -1, "no"},
		{"well above one half is yes", 3, "yes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := readyPredictor(t, tt.margin, nil)
			outcome, err := p.Predict(sampleRecord())
			require.NoError(t, err)
			assert.Equal(t, tt.label, outcome.Label)
			assert.InDelta(t, 1/(1+math.Exp(-tt.margin)), outcome.Probability, 1e-12)
		})
	}
}

func TestPredictor_ReadyMetrics(t *testing.T) {
	metrics := &MockMetrics{}
	p := readyPredictor(t, 1, metrics)

	assert.True(t, p.Ready())
	assert.NoError(t, p.Err())
	assert.True(t, metrics.ready)
	assert.Equal(t, 0.87, metrics.modelScore, "held-out score of the served model")
	assert.Equal(t, "test", p.Version())

	_, err := p.Predict(sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.predictions)
	assert.Len(t, metrics.predictionScores, 1)
	assert.Greater(t, metrics.latencySum, 0.0)
}

func TestPredictor_RejectsBadRecords(t *testing.T) {
	metrics := &MockMetrics{}
	p := readyPredictor(t, 0, metrics)

	badNumber := sampleRecord()
	badNumber["balance"] = "lots"
	_, err := p.Predict(badNumber)
	var encErr *features.EncodingError
	require.True(t, errors.As(err, &encErr), "got %v", err)
	assert.Equal(t, "balance", encErr.Column)

	badBinary := sampleRecord()
	badBinary["loan"] = "maybe"
	_, err = p.Predict(badBinary)
	require.True(t, errors.As(err, &encErr), "got %v", err)
	assert.Equal(t, "loan", encErr.Column)

	missing := sampleRecord()
	delete(missing, "poutcome")
	_, err = p.Predict(missing)
	var mismatch *features.SchemaMismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Equal(t, []string{"poutcome"}, mismatch.Missing)

	assert.Equal(t, 3, metrics.failures)
	assert.Zero(t, metrics.predictions)
}

func TestPredictor_UnknownCategoryStillPredicts(t *testing.T) {
	p := readyPredictor(t, 0, nil)
	r := sampleRecord()
	r["job"] = "astronaut"

	outcome, err := p.Predict(r)
	require.NoError(t, err)
	assert.Equal(t, "no", outcome.Label)
}

func TestPredictor_ConcurrentPredict(t *testing.T) {
	model := trainTestModel(t)
	serving, err := NewServingContext(model, model.Schema())
	require.NoError(t, err)
	p := NewPredictor(serving, &MockMetrics{})

	rows := dataset.Synthetic(50, 8).Rows
	want := make([]Outcome, len(rows))
	for i, r := range rows {
		want[i], err = p.Predict(r)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	got := make([][]Outcome, 8)
	for g := range got {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[g] = make([]Outcome, len(rows))
			for i, r := range rows {
				got[g][i], _ = p.Predict(r)
			}
		}()
	}
	wg.Wait()

	for g := range got {
		assert.Equal(t, want, got[g])
	}
}

func TestNewServingContext_SchemaMismatch(t *testing.T) {
	model := constantModel(t, 0)
	other, err := features.NewSchema(
		[]string{"age", "job", "default"},
		[]string{"age"}, []string{"job"}, []string{"default"},
	)
	require.NoError(t, err)

	_, err = NewServingContext(model, other)
	assert.Error(t, err)
	_, err = NewServingContext(nil, model.Schema())
	assert.Error(t, err)
}
