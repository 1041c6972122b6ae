package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// classIndices groups row indices by label, in ascending label order.
func classIndices(labels []int) [][]int {
	byClass := map[int][]int{}
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	out := make([][]int, len(classes))
	for i, c := range classes {
		out[i] = byClass[c]
	}
	return out
}

// stratifiedSplit partitions rows into train and test sets, keeping each
// class's share of the test set at testRatio.
func stratifiedSplit(labels []int, testRatio float64, rng *rand.Rand) (train, test []int, err error) {
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio must be in (0, 1), got %f", testRatio)
	}
	for _, idx := range classIndices(labels) {
		if len(idx) < 2 {
			return nil, nil, fmt.Errorf("every class needs at least 2 rows for a stratified split")
		}
		shuffled := append([]int(nil), idx...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		nTest := int(math.Round(float64(len(shuffled)) * testRatio))
		nTest = max(1, min(nTest, len(shuffled)-1))
		test = append(test, shuffled[:nTest]...)
		train = append(train, shuffled[nTest:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// stratifiedKFold assigns every row to one of k validation folds so each fold
// keeps the class proportions. It returns the validation indices per fold.
func stratifiedKFold(labels []int, k int, rng *rand.Rand) ([][]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("k-fold needs at least 2 folds, got %d", k)
	}
	if len(labels) < k {
		return nil, fmt.Errorf("cannot split %d rows into %d folds", len(labels), k)
	}

	folds := make([][]int, k)
	offset := 0
	for _, idx := range classIndices(labels) {
		shuffled := append([]int(nil), idx...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		for j, row := range shuffled {
			f := (offset + j) % k
			folds[f] = append(folds[f], row)
		}
		offset += len(shuffled)
	}
	for f := range folds {
		sort.Ints(folds[f])
	}
	return folds, nil
}

// complement returns the indices of [0, n) not in sorted subset.
func complement(n int, subset []int) []int {
	out := make([]int, 0, n-len(subset))
	j := 0
	for i := 0; i < n; i++ {
		if j < len(subset) && subset[j] == i {
			j++
			continue
		}
		out = append(out, i)
	}
	return out
}

// hasBothClasses reports whether labels at idx contain both 0 and 1.
func hasBothClasses(labels []int, idx []int) bool {
	var pos, neg bool
	for _, i := range idx {
		if labels[i] == 1 {
			pos = true
		} else {
			neg = true
		}
		if pos && neg {
			return true
		}
	}
	return false
}
