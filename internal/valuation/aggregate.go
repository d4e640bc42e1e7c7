package valuation

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/comps-cli/internal/model"
)

// ErrNoComparables is returned when no evaluation has a usable weight.
var ErrNoComparables = eris.New("valuation: no usable comparables")

// Basis selects the adjusted series an aggregation runs over.
type Basis string

const (
	BasisPrice        Basis = "adjusted_price"
	BasisPricePerArea Basis = "adjusted_price_per_unit_area"
)

// Aggregate computes the weighted average and dispersion statistics of the
// adjusted series. Evaluations whose weight is non-finite or non-positive are
// excluded, and the remaining weights are renormalized to sum to 1.
//
// StdDev is the population standard deviation (divides by n, not n-1), so a
// single comparable has a dispersion of exactly zero.
func Aggregate(evals []model.ComparableEvaluation, basis Basis) (model.Statistics, error) {
	stats, _, err := aggregate(evals, basis)
	return stats, err
}

// aggregate also returns the normalized weight of each input evaluation, 0
// for excluded ones.
func aggregate(evals []model.ComparableEvaluation, basis Basis) (model.Statistics, []float64, error) {
	normalized := make([]float64, len(evals))

	var weightSum float64
	var used []int
	for i, ev := range evals {
		if !usableWeight(ev.Weight) {
			continue
		}
		if v := basisValue(ev, basis); math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		used = append(used, i)
		weightSum += ev.Weight
	}
	if len(used) == 0 || weightSum <= 0 || math.IsInf(weightSum, 0) {
		return model.Statistics{}, normalized, ErrNoComparables
	}

	values := make([]float64, 0, len(used))
	stats := model.Statistics{
		Basis:   string(basis),
		Count:   len(used),
		Weights: make(map[string]float64, len(used)),
	}
	for _, i := range used {
		w := evals[i].Weight / weightSum
		v := basisValue(evals[i], basis)
		normalized[i] = w
		stats.Weights[evals[i].Transaction.ID] += w
		stats.WeightedAverage += w * v
		values = append(values, v)
	}

	stats.Min, stats.Max = values[0], values[0]
	for _, v := range values[1:] {
		stats.Min = math.Min(stats.Min, v)
		stats.Max = math.Max(stats.Max, v)
	}
	// Guard against rounding drift past the observed range.
	stats.WeightedAverage = math.Max(stats.Min, math.Min(stats.Max, stats.WeightedAverage))

	stats.Median = Median(values)
	mean, sd := MeanStdDev(values)
	stats.StdDev = sd
	if mean != 0 {
		stats.CoefficientOfVariation = sd / math.Abs(mean)
	}

	return stats, normalized, nil
}

func usableWeight(w float64) bool {
	return !math.IsNaN(w) && !math.IsInf(w, 0) && w > 0
}

func basisValue(ev model.ComparableEvaluation, basis Basis) float64 {
	if basis == BasisPricePerArea {
		return ev.AdjustedPricePerUnitArea
	}
	return ev.AdjustedPrice
}

// Median returns the median of values without modifying the input.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// MeanStdDev returns the arithmetic mean and population standard deviation.
func MeanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
