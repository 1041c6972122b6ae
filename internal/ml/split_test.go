package ml

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imbalancedLabels(pos, neg int) []int {
	labels := make([]int, pos+neg)
	stride := (pos + neg) / pos
	// spread positives out so class membership does not follow row order
	for i, placed := 0, 0; i < len(labels) && placed < pos; i += stride {
		labels[i] = 1
		placed++
	}
	return labels
}

func countPositives(labels, idx []int) int {
	n := 0
	for _, i := range idx {
		n += labels[i]
	}
	return n
}

func TestStratifiedSplit_KeepsClassShares(t *testing.T) {
	labels := imbalancedLabels(100, 900)
	require.Equal(t, 100, countPositives(labels, complement(len(labels), nil)))

	train, test, err := stratifiedSplit(labels, 0.2, rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	assert.Len(t, test, 200)
	assert.Len(t, train, 800)
	assert.Equal(t, 20, countPositives(labels, test))
	assert.Equal(t, 80, countPositives(labels, train))

	all := append(append([]int(nil), train...), test...)
	sort.Ints(all)
	for i, v := range all {
		require.Equal(t, i, v)
	}
}

func TestStratifiedSplit_Seeded(t *testing.T) {
	labels := imbalancedLabels(30, 170)
	trainA, testA, err := stratifiedSplit(labels, 0.25, rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	trainB, testB, err := stratifiedSplit(labels, 0.25, rand.New(rand.NewSource(9)))
	require.NoError(t, err)

	assert.Equal(t, trainA, trainB)
	assert.Equal(t, testA, testB)
}

func TestStratifiedSplit_Errors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, _, err := stratifiedSplit([]int{0, 0, 1, 1}, 0, rng)
	assert.Error(t, err)
	_, _, err = stratifiedSplit([]int{0, 0, 1, 1}, 1, rng)
	assert.Error(t, err)
	_, _, err = stratifiedSplit([]int{0, 0, 0, 1}, 0.5, rng)
	assert.Error(t, err, "a single positive cannot land on both sides")
}

func TestStratifiedKFold_PartitionsRows(t *testing.T) {
	labels := imbalancedLabels(100, 900)
	folds, err := stratifiedKFold(labels, 5, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	require.Len(t, folds, 5)

	seen := make([]bool, len(labels))
	for _, fold := range folds {
		assert.Len(t, fold, 200)
		assert.Equal(t, 20, countPositives(labels, fold))
		assert.True(t, sort.IntsAreSorted(fold))
		for _, i := range fold {
			require.False(t, seen[i], "row %d in two folds", i)
			seen[i] = true
		}
	}
	for i, ok := range seen {
		assert.True(t, ok, "row %d in no fold", i)
	}
}

func TestStratifiedKFold_Errors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, err := stratifiedKFold([]int{0, 1, 0}, 1, rng)
	assert.Error(t, err)
	_, err = stratifiedKFold([]int{0, 1, 0}, 5, rng)
	assert.Error(t, err)
}

func TestComplement(t *testing.T) {
	assert.Equal(t, []int{0, 2, 4}, complement(5, []int{1, 3}))
	assert.Equal(t, []int{}, complement(2, []int{0, 1}))
}

func TestHasBothClasses(t *testing.T) {
	labels := []int{0, 0, 1, 0}
	assert.True(t, hasBothClasses(labels, []int{0, 2}))
	assert.False(t, hasBothClasses(labels, []int{0, 1, 3}))
	assert.False(t, hasBothClasses(labels, []int{2}))
	assert.False(t, hasBothClasses(labels, nil))
}
