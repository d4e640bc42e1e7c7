// Package valuation weighs adjusted comparables, aggregates them into a value
// estimate and scores how much the estimate can be trusted.
package valuation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/comps-cli/internal/model"
)

// WeightConfig controls how a comparable's relevance weight is blended from
// its sub-weights. The four blend weights must sum to 1.
type WeightConfig struct {
	Proximity   float64 `yaml:"proximity" json:"proximity"`
	Similarity  float64 `yaml:"similarity" json:"similarity"`
	Recency     float64 `yaml:"recency" json:"recency"`
	Reliability float64 `yaml:"reliability" json:"reliability"`

	// ProximityScaleKM is the distance at which proximity drops to 0.5.
	ProximityScaleKM float64 `yaml:"proximity_scale_km" json:"proximity_scale_km"`
	// SimilarityZeroAt is the |total adjustment| percent at which similarity reaches 0.
	SimilarityZeroAt    float64 `yaml:"similarity_zero_at" json:"similarity_zero_at"`
	RecencyHalfLifeDays int     `yaml:"recency_half_life_days" json:"recency_half_life_days"`
	RecencyFloor        float64 `yaml:"recency_floor" json:"recency_floor"`
}

// DefaultWeightConfig returns the baseline blend.
func DefaultWeightConfig() WeightConfig {
	return WeightConfig{
		Proximity:           0.3,
		Similarity:          0.4,
		Recency:             0.2,
		Reliability:         0.1,
		ProximityScaleKM:    2,
		SimilarityZeroAt:    50,
		RecencyHalfLifeDays: 365,
		RecencyFloor:        0.1,
	}
}

// Sum returns the total of the four blend weights.
func (c WeightConfig) Sum() float64 {
	return c.Proximity + c.Similarity + c.Recency + c.Reliability
}

// Validate checks the blend is convex and the scales are usable.
func (c WeightConfig) Validate() error {
	var errs []string
	for name, w := range map[string]float64{
		"proximity":   c.Proximity,
		"similarity":  c.Similarity,
		"recency":     c.Recency,
		"reliability": c.Reliability,
	} {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s weight must be >= 0", name))
		}
	}
	if math.Abs(c.Sum()-1) > 1e-6 {
		errs = append(errs, fmt.Sprintf("weights should sum to 1, got %.4f", c.Sum()))
	}
	if c.ProximityScaleKM <= 0 {
		errs = append(errs, "proximity_scale_km must be > 0")
	}
	if c.SimilarityZeroAt <= 0 {
		errs = append(errs, "similarity_zero_at must be > 0")
	}
	if c.RecencyFloor < 0 || c.RecencyFloor > 1 {
		errs = append(errs, "recency_floor must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("valuation: weight config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SubWeights holds the individual relevance signals of one comparable. Nil
// entries were not computable and take no part in the blend.
type SubWeights struct {
	Proximity   *float64
	Similarity  float64
	Recency     *float64
	Reliability *float64
}

// ComputeSubWeights derives every sub-weight in [0, 1] for one evaluation.
func ComputeSubWeights(ev model.ComparableEvaluation, ref time.Time, cfg WeightConfig) SubWeights {
	sw := SubWeights{
		Similarity: Similarity(ev.TotalAdjustmentPercent, cfg),
	}
	if ev.DistanceKM != nil && *ev.DistanceKM >= 0 {
		p := 1 / (1 + *ev.DistanceKM/cfg.ProximityScaleKM)
		sw.Proximity = &p
	}
	if !ev.Transaction.Date.IsZero() && !ref.IsZero() {
		r := RecencyFactor(ev.Transaction.Date, ref, cfg)
		sw.Recency = &r
	}
	if rel := ev.Transaction.Reliability; rel != nil {
		r := math.Max(0, math.Min(1, *rel))
		sw.Reliability = &r
	}
	return sw
}

// Weigh returns the blended relevance weight of one evaluation. Blend weights
// of missing sub-weights are dropped and the rest renormalized, so a
// comparable is not penalized for data the source never had.
func Weigh(ev model.ComparableEvaluation, ref time.Time, cfg WeightConfig) float64 {
	sw := ComputeSubWeights(ev, ref, cfg)

	total := cfg.Similarity * sw.Similarity
	mass := cfg.Similarity
	if sw.Proximity != nil {
		total += cfg.Proximity * *sw.Proximity
		mass += cfg.Proximity
	}
	if sw.Recency != nil {
		total += cfg.Recency * *sw.Recency
		mass += cfg.Recency
	}
	if sw.Reliability != nil {
		total += cfg.Reliability * *sw.Reliability
		mass += cfg.Reliability
	}
	if mass <= 0 {
		return 0
	}
	return total / mass
}

// Similarity maps |total adjustment| linearly onto [0, 1]: no adjustment is a
// perfect match, SimilarityZeroAt percent or more is none.
func Similarity(totalAdjustmentPercent float64, cfg WeightConfig) float64 {
	if math.IsNaN(totalAdjustmentPercent) || cfg.SimilarityZeroAt <= 0 {
		return 0
	}
	return math.Max(0, 1-math.Abs(totalAdjustmentPercent)/cfg.SimilarityZeroAt)
}

// RecencyFactor halves a comparable's relevance every RecencyHalfLifeDays,
// never dropping below RecencyFloor.
// Formula: max(floor, 2^(-ageDays / halfLifeDays))
func RecencyFactor(date, ref time.Time, cfg WeightConfig) float64 {
	ageDays := ref.Sub(date).Hours() / 24
	if ageDays <= 0 {
		return 1
	}
	halfLife := float64(cfg.RecencyHalfLifeDays)
	if halfLife <= 0 {
		halfLife = 365
	}
	decayed := math.Pow(2, -ageDays/halfLife)
	if decayed < cfg.RecencyFloor {
		return cfg.RecencyFloor
	}
	return decayed
}
