package contrast

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultLevel is the confidence level used by Compare and AllPairs.
const DefaultLevel = 0.95

// z95 is the conventional two-sided 95% Wald critical value.
const z95 = 1.96

var (
	// ErrCoefficientNotFound is returned when a requested coefficient name
	// is not present in the model summary.
	ErrCoefficientNotFound = errors.New("coefficient not found")

	// ErrSelfComparison is returned when base and comparison name the same
	// coefficient. The difference would trivially be zero; rejecting it
	// surfaces what is almost certainly a caller mistake.
	ErrSelfComparison = errors.New("cannot compare a coefficient to itself")

	// ErrNegativeStdErr is returned when a summary carries a negative
	// standard error. That is a contract violation by the upstream fitting
	// step, not something the comparator can repair.
	ErrNegativeStdErr = errors.New("negative standard error")

	// ErrInvalidLevel is returned for confidence levels outside (0, 1).
	ErrInvalidLevel = errors.New("confidence level must be in (0, 1)")
)

// Compare computes the contrast comparison - base between two fixed-effect
// coefficients of the same fitted model, with a symmetric 95% Wald interval.
//
// The pooled standard error sqrt(se_b^2 + se_a^2) treats the two estimators
// as independent. Fixed-effect estimates from the same fit are generally
// correlated, so the interval width can be misstated when predictors are
// correlated. The approximation is intentional and kept as-is.
func Compare(sum *ModelSummary, base, comparison string) (*Comparison, error) {
	return compare(sum, base, comparison, DefaultLevel, z95)
}

// CompareAt is Compare at an arbitrary confidence level in (0, 1). The
// critical value comes from the standard normal quantile, so CompareAt at
// 0.95 agrees with Compare to within the rounding of the conventional 1.96.
func CompareAt(sum *ModelSummary, base, comparison string, level float64) (*Comparison, error) {
	z, err := criticalValue(level)
	if err != nil {
		return nil, err
	}
	return compare(sum, base, comparison, level, z)
}

// criticalValue returns the two-sided standard normal critical value for
// the given confidence level.
func criticalValue(level float64) (float64, error) {
	if level <= 0 || level >= 1 || math.IsNaN(level) {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidLevel, level)
	}
	norm := distuv.Normal{Mu: 0, Sigma: 1}
	return norm.Quantile(0.5 + level/2), nil
}

func compare(sum *ModelSummary, base, comparison string, level, z float64) (*Comparison, error) {
	if base == comparison {
		return nil, fmt.Errorf("%w: %q", ErrSelfComparison, base)
	}

	a, ok := sum.Coefficient(base)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCoefficientNotFound, base)
	}
	b, ok := sum.Coefficient(comparison)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCoefficientNotFound, comparison)
	}

	if a.StdErr < 0 {
		return nil, fmt.Errorf("%w: %q has stdErr %v", ErrNegativeStdErr, base, a.StdErr)
	}
	if b.StdErr < 0 {
		return nil, fmt.Errorf("%w: %q has stdErr %v", ErrNegativeStdErr, comparison, b.StdErr)
	}

	estimate := b.Estimate - a.Estimate
	pooledSE := math.Sqrt(b.StdErr*b.StdErr + a.StdErr*a.StdErr)
	margin := z * pooledSE

	return &Comparison{
		Base:       base,
		Comparison: comparison,
		Estimate:   estimate,
		PooledSE:   pooledSE,
		Lower:      estimate - margin,
		Upper:      estimate + margin,
		Level:      level,
	}, nil
}

// AllPairs compares every ordered pair of distinct coefficients in the
// summary, N*(N-1) results for N coefficients. A pair that cannot be
// compared carries its error in the PairResult; the rest of the batch is
// computed regardless.
//
// Pairs are enumerated over the sorted coefficient names so repeated calls
// produce the same sequence, but callers wanting a display order should
// sort explicitly by estimate or by name rather than rely on it.
func AllPairs(sum *ModelSummary) []PairResult {
	return AllPairsAt(sum, DefaultLevel)
}

// AllPairsAt is AllPairs at an arbitrary confidence level. The critical
// value is computed once for the whole batch; at the default level it is
// the conventional 1.96, so AllPairs agrees with Compare bound for bound.
// An invalid level fails every pair.
func AllPairsAt(sum *ModelSummary, level float64) []PairResult {
	names := sum.CoefficientNames()
	sort.Strings(names)

	z := z95
	var zErr error
	if level != DefaultLevel {
		z, zErr = criticalValue(level)
	}

	results := make([]PairResult, 0, len(names)*(len(names)-1))
	for _, base := range names {
		for _, comparison := range names {
			if base == comparison {
				continue
			}
			if zErr != nil {
				results = append(results, PairResult{
					Base:       base,
					Comparison: comparison,
					Err:        zErr,
				})
				continue
			}
			cmp, err := compare(sum, base, comparison, level, z)
			results = append(results, PairResult{
				Base:       base,
				Comparison: comparison,
				Result:     cmp,
				Err:        err,
			})
		}
	}
	return results
}
