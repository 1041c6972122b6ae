package ml

import (
	"fmt"
	"sort"
)

// ROCAUC returns the area under the ROC curve: the probability that a random
// positive is scored above a random negative, ties counting one half.
func ROCAUC(labels []int, scores []float64) (float64, error) {
	if len(labels) != len(scores) {
		return 0, fmt.Errorf("got %d labels but %d scores", len(labels), len(scores))
	}

	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	var positives, negatives int
	var rankSum float64
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && scores[idx[end]] == scores[idx[start]] {
			end++
		}
		// ranks are 1-based; tied scores share the average rank
		avgRank := float64(start+end+1) / 2
		for _, i := range idx[start:end] {
			if labels[i] == 1 {
				positives++
				rankSum += avgRank
			} else {
				negatives++
			}
		}
		start = end
	}

	if positives == 0 || negatives == 0 {
		return 0, fmt.Errorf("ROC AUC is undefined with %d positives and %d negatives", positives, negatives)
	}
	u := rankSum - float64(positives)*float64(positives+1)/2
	return u / (float64(positives) * float64(negatives)), nil
}
