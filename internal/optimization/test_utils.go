package optimization

import (
	"errors"
	"math"
	"testing"
)

// SumFitness scores a candidate by the negated sum of squares, so the
// all-zero vector is optimal.
func SumFitness(values []int) (float64, error) {
	sum := 0.0
	for _, v := range values {
		sum += float64(v * v)
	}
	return -sum, nil
}

// TargetFitness returns a fitness peaking at target. Length differences
// cost as much as a full-range miss per position.
func TargetFitness(target []int, spread int) FitnessFunc {
	return func(values []int) (float64, error) {
		score := 0.0
		for i := range values {
			if i >= len(target) {
				score -= float64(spread)
				continue
			}
			score -= math.Abs(float64(values[i] - target[i]))
		}
		if len(values) < len(target) {
			score -= float64(spread * (len(target) - len(values)))
		}
		return score, nil
	}
}

// ErrFitness is returned by FailingFitness.
var ErrFitness = errors.New("fitness failed")

// FailingFitness fails for any candidate whose first value is bad.
func FailingFitness(bad int) FitnessFunc {
	return func(values []int) (float64, error) {
		if len(values) > 0 && values[0] == bad {
			return 0, ErrFitness
		}
		return SumFitness(values)
	}
}

// AssertGenesWithin checks that every gene respects the length and value bounds.
func AssertGenesWithin(t *testing.T, genes [][]int, minLen, maxLen, minVal, maxVal int) {
	t.Helper()

	for i, g := range genes {
		if len(g) < minLen || len(g) > maxLen {
			t.Fatalf("gene %d: length %d outside [%d, %d]", i, len(g), minLen, maxLen)
		}
		for j, v := range g {
			if v < minVal || v > maxVal {
				t.Fatalf("gene %d position %d: value %d outside [%d, %d]", i, j, v, minVal, maxVal)
			}
		}
	}
}
