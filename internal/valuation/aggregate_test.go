package valuation

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/comps-cli/internal/model"
)

func eval(id string, adjustedPrice, weight float64) model.ComparableEvaluation {
	return model.ComparableEvaluation{
		Transaction:              model.Transaction{ID: id, Area: 100},
		AdjustedPrice:            adjustedPrice,
		AdjustedPricePerUnitArea: adjustedPrice / 100,
		Weight:                   weight,
	}
}

func TestAggregate_SingleComparable(t *testing.T) {
	stats, err := Aggregate([]model.ComparableEvaluation{eval("a", 2_000_000, 0.37)}, BasisPrice)
	require.NoError(t, err)

	assert.Equal(t, 2_000_000.0, stats.WeightedAverage)
	assert.Zero(t, stats.StdDev)
	assert.Zero(t, stats.CoefficientOfVariation)
	assert.Equal(t, 1, stats.Count)
	assert.InDelta(t, 1.0, stats.Weights["a"], 1e-12)
}

func TestAggregate_WeightedAverageWithinBounds(t *testing.T) {
	sets := [][]model.ComparableEvaluation{
		{eval("a", 100, 1), eval("b", 300, 1)},
		{eval("a", 1_950_000, 0.9), eval("b", 2_100_000, 0.1), eval("c", 2_050_000, 0.5)},
		{eval("a", 5, 1e-9), eval("b", 7, 1e9)},
		{eval("a", 1e7, 0.3333333), eval("b", 1e7, 0.3333333), eval("c", 1e7, 0.3333334)},
	}
	for i, evals := range sets {
		stats, err := Aggregate(evals, BasisPrice)
		require.NoError(t, err, "set %d", i)
		assert.GreaterOrEqual(t, stats.WeightedAverage, stats.Min, "set %d", i)
		assert.LessOrEqual(t, stats.WeightedAverage, stats.Max, "set %d", i)
	}
}

func TestAggregate_WeightsNormalizeOverIncluded(t *testing.T) {
	evals := []model.ComparableEvaluation{
		eval("a", 100, 2),
		eval("b", 200, 0),
		eval("c", 300, 6),
		eval("d", 400, math.NaN()),
		eval("e", 500, -1),
	}

	stats, normalized, err := aggregate(evals, BasisPrice)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Count)
	var sum float64
	for _, w := range stats.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, 0.25, normalized[0], 1e-12)
	assert.Zero(t, normalized[1])
	assert.InDelta(t, 0.75, normalized[2], 1e-12)
	assert.Zero(t, normalized[3])
	assert.Zero(t, normalized[4])
	assert.InDelta(t, 250.0, stats.WeightedAverage, 1e-9)
}

func TestAggregate_NoUsableComparables(t *testing.T) {
	tests := []struct {
		name  string
		evals []model.ComparableEvaluation
	}{
		{"empty", nil},
		{"zero weights", []model.ComparableEvaluation{eval("a", 100, 0), eval("b", 200, 0)}},
		{"infinite value", []model.ComparableEvaluation{eval("a", math.Inf(1), 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregate(tt.evals, BasisPrice)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNoComparables))
		})
	}
}

func TestAggregate_PerAreaBasis(t *testing.T) {
	stats, err := Aggregate([]model.ComparableEvaluation{eval("a", 2_000_000, 1), eval("b", 2_200_000, 1)}, BasisPricePerArea)
	require.NoError(t, err)
	assert.Equal(t, string(BasisPricePerArea), stats.Basis)
	assert.InDelta(t, 21_000.0, stats.WeightedAverage, 1e-6)
	assert.InDelta(t, 21_000.0, stats.Median, 1e-6)
	assert.InDelta(t, 1_000.0, stats.StdDev, 1e-6)
}

func TestMedian(t *testing.T) {
	assert.Zero(t, Median(nil))
	assert.Equal(t, 3.0, Median([]float64{5, 1, 3}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))

	in := []float64{3, 1, 2}
	Median(in)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestMeanStdDev_Population(t *testing.T) {
	mean, sd := MeanStdDev([]float64{100, 100, 100, 100, 1000})
	assert.InDelta(t, 280.0, mean, 1e-9)
	assert.InDelta(t, 360.0, sd, 1e-9)
}
