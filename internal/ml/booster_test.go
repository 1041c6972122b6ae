package ml

import (
	"context"
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noisyData builds a two-feature problem where only the first feature matters.
func noisyData(n int, positiveRate float64, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]int, n)
	for i := range X {
		x0 := rng.Float64()
		X[i] = []float64{x0, rng.NormFloat64()}
		if rng.Float64() < positiveRate*2*x0 {
			y[i] = 1
		}
	}
	return X, y
}

func smallParams() Params {
	p := DefaultParams()
	p.NEstimators = 20
	p.MaxDepth = 3
	return p
}

func TestFitBooster_SeparableData(t *testing.T) {
	X := make([][]float64, 40)
	y := make([]int, 40)
	for i := range X {
		X[i] = []float64{float64(i) / 40, 1}
		if i >= 30 {
			y[i] = 1
		}
	}

	b, err := FitBooster(context.Background(), X, y, smallParams())
	require.NoError(t, err)
	assert.Equal(t, 2, b.NumFeatures())
	assert.Equal(t, 20, b.NumTrees())

	scores, err := b.PredictBatch(X)
	require.NoError(t, err)
	auc, err := ROCAUC(y, scores)
	require.NoError(t, err)
	assert.Equal(t, 1.0, auc)

	for _, s := range scores {
		assert.True(t, s > 0 && s < 1, "probability %f out of range", s)
	}

	// the constant column never splits
	importance := b.FeatureImportance()
	assert.Equal(t, 0.0, importance[1])
	assert.InDelta(t, 1.0, importance[0], 1e-12)
}

func TestFitBooster_Deterministic(t *testing.T) {
	X, y := noisyData(300, 0.3, 1)
	params := smallParams()
	params.Subsample = 0.7
	params.ColsampleByTree = 0.6

	a, err := FitBooster(context.Background(), X, y, params)
	require.NoError(t, err)
	b, err := FitBooster(context.Background(), X, y, params)
	require.NoError(t, err)

	sa, err := a.PredictBatch(X)
	require.NoError(t, err)
	sb, err := b.PredictBatch(X)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
}

func TestFitBooster_ScalePosWeightRaisesScores(t *testing.T) {
	X, y := noisyData(400, 0.15, 2)

	mean := func(weight float64) float64 {
		params := smallParams()
		params.ScalePosWeight = weight
		b, err := FitBooster(context.Background(), X, y, params)
		require.NoError(t, err)
		scores, err := b.PredictBatch(X)
		require.NoError(t, err)
		sum := 0.0
		for _, s := range scores {
			sum += s
		}
		return sum / float64(len(scores))
	}

	assert.Greater(t, mean(6), mean(1))
}

func TestFitBooster_Errors(t *testing.T) {
	good := [][]float64{{0}, {1}}
	tests := []struct {
		name   string
		X      [][]float64
		y      []int
		params func(*Params)
	}{
		{"no rows", nil, nil, nil},
		{"label count", good, []int{0}, nil},
		{"ragged rows", [][]float64{{0, 1}, {1}}, []int{0, 1}, nil},
		{"bad label", good, []int{0, 2}, nil},
		{"zero estimators", good, []int{0, 1}, func(p *Params) { p.NEstimators = 0 }},
		{"zero subsample", good, []int{0, 1}, func(p *Params) { p.Subsample = 0 }},
		{"negative gamma", good, []int{0, 1}, func(p *Params) { p.Gamma = -1 }},
		{"zero weight", good, []int{0, 1}, func(p *Params) { p.ScalePosWeight = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := smallParams()
			if tt.params != nil {
				tt.params(&params)
			}
			_, err := FitBooster(context.Background(), tt.X, tt.y, params)
			assert.Error(t, err)
		})
	}
}

func TestFitBooster_Cancelled(t *testing.T) {
	X, y := noisyData(50, 0.3, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FitBooster(ctx, X, y, smallParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBooster_PredictRowWidth(t *testing.T) {
	X, y := noisyData(50, 0.3, 4)
	b, err := FitBooster(context.Background(), X, y, smallParams())
	require.NoError(t, err)

	_, err = b.PredictRow([]float64{0.5})
	assert.Error(t, err)
}

func TestBooster_JSONRoundTrip(t *testing.T) {
	X, y := noisyData(200, 0.3, 5)
	b, err := FitBooster(context.Background(), X, y, smallParams())
	require.NoError(t, err)

	data, err := json.Marshal(b)
	require.NoError(t, err)

	var restored Booster
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, b.Params(), restored.Params())
	assert.Equal(t, b.NumTrees(), restored.NumTrees())

	want, err := b.PredictBatch(X)
	require.NoError(t, err)
	got, err := restored.PredictBatch(X)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBooster_UnmarshalRejectsMalformedTrees(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"format version", `{"format_version":9,"n_features":1,"gain":[0],"trees":[]}`},
		{"no features", `{"format_version":1,"n_features":0,"gain":[],"trees":[]}`},
		{"gain length", `{"format_version":1,"n_features":2,"gain":[0],"trees":[]}`},
		{"empty tree", `{"format_version":1,"n_features":1,"gain":[0],"trees":[{"nodes":[]}]}`},
		{"unknown feature", `{"format_version":1,"n_features":1,"gain":[0],"trees":[{"nodes":[{"f":3,"t":0,"l":1,"r":2},{"l":-1,"r":-1},{"l":-1,"r":-1}]}]}`},
		{"cyclic children", `{"format_version":1,"n_features":1,"gain":[0],"trees":[{"nodes":[{"f":0,"t":0,"l":0,"r":1},{"l":-1,"r":-1}]}]}`},
		{"children out of range", `{"format_version":1,"n_features":1,"gain":[0],"trees":[{"nodes":[{"f":0,"t":0,"l":1,"r":5},{"l":-1,"r":-1}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b Booster
			assert.Error(t, json.Unmarshal([]byte(tt.doc), &b))
		})
	}
}
