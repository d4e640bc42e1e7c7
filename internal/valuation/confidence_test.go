package valuation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/comps-cli/internal/model"
)

func evalsWith(n int, adj, dist float64) []model.ComparableEvaluation {
	out := make([]model.ComparableEvaluation, n)
	for i := range out {
		out[i] = model.ComparableEvaluation{TotalAdjustmentPercent: adj, DistanceKM: floatPtr(dist)}
	}
	return out
}

func TestScoreConfidence_Bounds(t *testing.T) {
	cfg := DefaultConfidenceConfig()

	tests := []struct {
		name  string
		evals []model.ComparableEvaluation
		n     int
		cv    float64
		want  float64
	}{
		{"best case clamps to max", evalsWith(8, 2, 0.3), 8, 0.02, 0.95},
		{"worst case clamps to min", evalsWith(1, 45, 12), 1, 0.6, 0.5},
		{"empty", nil, 0, 0, 0.55},
		{"mid", evalsWith(4, 15, 3), 4, 0.15, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreConfidence(tt.evals, tt.n, tt.cv, cfg)
			assert.InDelta(t, tt.want, got.Score, 1e-9)
			assert.GreaterOrEqual(t, got.Score, 0.5)
			assert.LessOrEqual(t, got.Score, 0.95)
		})
	}
}

func TestScoreConfidence_AlwaysWithinClamp(t *testing.T) {
	cfg := DefaultConfidenceConfig()
	for n := 0; n <= 10; n++ {
		for _, adj := range []float64{0, 5, 12, 25, 60} {
			for _, dist := range []float64{0, 0.5, 3, 20} {
				for _, cv := range []float64{0, 0.05, 0.2, 0.9} {
					got := ScoreConfidence(evalsWith(n, adj, dist), n, cv, cfg)
					assert.GreaterOrEqual(t, got.Score, cfg.Min)
					assert.LessOrEqual(t, got.Score, cfg.Max)
				}
			}
		}
	}
}

func TestLabelFor_Monotonic(t *testing.T) {
	cfg := DefaultConfidenceConfig()
	rank := map[model.ConfidenceLabel]int{
		model.ConfidenceLow:    0,
		model.ConfidenceMedium: 1,
		model.ConfidenceHigh:   2,
	}

	prev := -1
	for s := 0.0; s <= 1.0; s += 0.01 {
		r := rank[LabelFor(s, cfg)]
		assert.GreaterOrEqual(t, r, prev, "score %.2f", s)
		prev = r
	}

	assert.Equal(t, model.ConfidenceHigh, LabelFor(0.8, cfg))
	assert.Equal(t, model.ConfidenceMedium, LabelFor(0.6, cfg))
	assert.Equal(t, model.ConfidenceLow, LabelFor(0.59, cfg))
}

func TestConfidenceConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfidenceConfig().Validate())

	cfg := DefaultConfidenceConfig()
	cfg.Max = 1
	cfg.MediumThreshold = 0.9
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "confidence bounds")
	assert.Contains(t, err.Error(), "medium_threshold")
}

func TestConfidenceConfig_ValidateBounds(t *testing.T) {
	tests := []struct {
		name     string
		min, max float64
		wantErr  bool
	}{
		{"defaults", 0.5, 0.95, false},
		{"narrowed", 0.55, 0.9, false},
		{"floor below 0.5", 0.3, 0.95, true},
		{"ceiling above 0.95", 0.5, 0.99, true},
		{"inverted", 0.9, 0.6, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfidenceConfig()
			cfg.Min, cfg.Max = tt.min, tt.max
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
