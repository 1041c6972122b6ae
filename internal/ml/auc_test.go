package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestROCAUC(t *testing.T) {
	tests := []struct {
		name   string
		labels []int
		scores []float64
		want   float64
	}{
		{"perfect", []int{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}, 1},
		{"inverted", []int{1, 1, 0, 0}, []float64{0.1, 0.2, 0.8, 0.9}, 0},
		{"all tied", []int{0, 1, 0, 1}, []float64{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"one misordered pair", []int{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8}, 0.75},
		{"partial tie", []int{0, 1, 0}, []float64{0.3, 0.3, 0.1}, 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ROCAUC(tt.labels, tt.scores)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestROCAUC_Undefined(t *testing.T) {
	_, err := ROCAUC([]int{1, 1}, []float64{0.2, 0.3})
	assert.Error(t, err)
	_, err = ROCAUC([]int{0, 0}, []float64{0.2, 0.3})
	assert.Error(t, err)
	_, err = ROCAUC([]int{0, 1}, []float64{0.2})
	assert.Error(t, err)
}
