package dataset

import (
	"fmt"
	"math/rand"
)

// Split partitions the table's rows into training and testing views using a
// seeded permutation. The same seed, fraction and table always produce the
// same partition regardless of call site.
func Split(t *Table, testFraction float64, seed int64) (train, test *Table, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction %v outside (0,1)", testFraction)
	}
	n := t.NumRows()
	if n < 2 {
		return nil, nil, fmt.Errorf("%d rows is too few to split", n)
	}
	nTest := int(testFraction * float64(n))
	if nTest < 1 {
		nTest = 1
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	test = t.Subset(perm[:nTest])
	train = t.Subset(perm[nTest:])
	return train, test, nil
}

// Folds assigns each of n rows to one of k cross-validation folds using a
// seeded permutation, returning the per-fold row index lists.
func Folds(n, k int, seed int64) [][]int {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	folds := make([][]int, k)
	for i, r := range perm {
		folds[i%k] = append(folds[i%k], r)
	}
	return folds
}
