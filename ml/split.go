package ml

import (
	"fmt"
	"math"
	"math/rand"
)

const (
	DefaultTestRatio = 0.2
	DefaultSeed      = 42
)

// TrainTestSplit shuffles row indices with a seeded source and puts the first
// ceil(n*testRatio) of them in the test set. The same seed always yields the
// same split.
func TrainTestSplit(n int, testRatio float64, seed int64) (train, test []int, err error) {
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio %g outside (0, 1)", testRatio)
	}
	testSize := int(math.Ceil(float64(n) * testRatio))
	if n < 2 || testSize >= n {
		return nil, nil, fmt.Errorf("cannot split %d rows with test ratio %g", n, testRatio)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[testSize:], perm[:testSize], nil
}
