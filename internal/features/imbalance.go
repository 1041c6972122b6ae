package features

import "fmt"

// ClassImbalance returns negatives/positives for 0/1 labels. It seeds the
// classifier's positive-class weight and centers the search range for it.
func ClassImbalance(labels []int) (float64, error) {
	positives := 0
	for i, y := range labels {
		switch y {
		case 1:
			positives++
		case 0:
		default:
			return 0, fmt.Errorf("label %d at index %d is not 0 or 1", y, i)
		}
	}
	if positives == 0 {
		return 0, fmt.Errorf("class imbalance is undefined without positive labels (%d rows)", len(labels))
	}
	return float64(len(labels)-positives) / float64(positives), nil
}

// WeightBand returns the [lower, upper) search band centered on an imbalance weight.
func WeightBand(weight float64) (lower, upper float64) {
	return weight * 0.9, weight * 1.1
}
