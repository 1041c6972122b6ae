package features

import (
	"math"
	"testing"
)

func labelsWith(positives, negatives int) []int {
	labels := make([]int, 0, positives+negatives)
	for i := 0; i < negatives; i++ {
		labels = append(labels, 0)
	}
	for i := 0; i < positives; i++ {
		labels = append(labels, 1)
	}
	return labels
}

func TestClassImbalance_ValidInputs(t *testing.T) {
	testCases := []struct {
		name      string
		positives int
		negatives int
		expected  float64
	}{
		{"100 positives 900 negatives", 100, 900, 9.0},
		{"balanced", 50, 50, 1.0},
		{"minority negatives", 300, 100, 1.0 / 3.0},
		{"single positive", 1, 7, 7.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ClassImbalance(labelsWith(tc.positives, tc.negatives))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(result-tc.expected) > 1e-12 {
				t.Errorf("Expected %.10f, got %.10f", tc.expected, result)
			}
			if result <= 0 {
				t.Errorf("Expected strictly positive weight, got %f", result)
			}
		})
	}
}

func TestClassImbalance_ExactRatio(t *testing.T) {
	result, err := ClassImbalance(labelsWith(100, 900))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 9.0 {
		t.Errorf("Expected exactly 9.0, got %v", result)
	}
}

func TestClassImbalance_NoPositives(t *testing.T) {
	if _, err := ClassImbalance(labelsWith(0, 10)); err == nil {
		t.Error("Expected error when there are no positive labels")
	}
	if _, err := ClassImbalance(nil); err == nil {
		t.Error("Expected error for empty labels")
	}
}

func TestClassImbalance_InvalidLabel(t *testing.T) {
	if _, err := ClassImbalance([]int{0, 1, 2}); err == nil {
		t.Error("Expected error for a label outside {0,1}")
	}
}

func TestWeightBand(t *testing.T) {
	lower, upper := WeightBand(9.0)
	if math.Abs(lower-8.1) > 1e-12 {
		t.Errorf("Expected lower bound 8.1, got %f", lower)
	}
	if math.Abs(upper-9.9) > 1e-12 {
		t.Errorf("Expected upper bound 9.9, got %f", upper)
	}
}
