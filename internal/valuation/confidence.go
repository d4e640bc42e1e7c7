package valuation

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/comps-cli/internal/model"
)

// ConfidenceConfig holds the heuristic thresholds of the confidence scorer.
type ConfidenceConfig struct {
	Base float64 `yaml:"base" json:"base"`

	LargeSample        int     `yaml:"large_sample" json:"large_sample"`
	LargeSampleBonus   float64 `yaml:"large_sample_bonus" json:"large_sample_bonus"`
	SmallSample        int     `yaml:"small_sample" json:"small_sample"`
	SmallSamplePenalty float64 `yaml:"small_sample_penalty" json:"small_sample_penalty"`

	LowAdjustment         float64 `yaml:"low_adjustment" json:"low_adjustment"`
	LowAdjustmentBonus    float64 `yaml:"low_adjustment_bonus" json:"low_adjustment_bonus"`
	HighAdjustment        float64 `yaml:"high_adjustment" json:"high_adjustment"`
	HighAdjustmentPenalty float64 `yaml:"high_adjustment_penalty" json:"high_adjustment_penalty"`

	NearKM        float64 `yaml:"near_km" json:"near_km"`
	NearBonus     float64 `yaml:"near_bonus" json:"near_bonus"`
	FarKM         float64 `yaml:"far_km" json:"far_km"`
	FarPenalty    float64 `yaml:"far_penalty" json:"far_penalty"`
	LowCV         float64 `yaml:"low_cv" json:"low_cv"`
	LowCVBonus    float64 `yaml:"low_cv_bonus" json:"low_cv_bonus"`
	HighCV        float64 `yaml:"high_cv" json:"high_cv"`
	HighCVPenalty float64 `yaml:"high_cv_penalty" json:"high_cv_penalty"`

	Min             float64 `yaml:"min" json:"min"`
	Max             float64 `yaml:"max" json:"max"`
	HighThreshold   float64 `yaml:"high_threshold" json:"high_threshold"`
	MediumThreshold float64 `yaml:"medium_threshold" json:"medium_threshold"`
}

// DefaultConfidenceConfig returns the baseline scorer thresholds.
func DefaultConfidenceConfig() ConfidenceConfig {
	return ConfidenceConfig{
		Base:                  0.7,
		LargeSample:           5,
		LargeSampleBonus:      0.1,
		SmallSample:           3,
		SmallSamplePenalty:    0.15,
		LowAdjustment:         10,
		LowAdjustmentBonus:    0.1,
		HighAdjustment:        20,
		HighAdjustmentPenalty: 0.1,
		NearKM:                1,
		NearBonus:             0.05,
		FarKM:                 5,
		FarPenalty:            0.05,
		LowCV:                 0.10,
		LowCVBonus:            0.05,
		HighCV:                0.25,
		HighCVPenalty:         0.05,
		Min:                   0.5,
		Max:                   0.95,
		HighThreshold:         0.8,
		MediumThreshold:       0.6,
	}
}

// Profiles may narrow the confidence clamp but never widen it past these.
const (
	ConfidenceFloor   = 0.5
	ConfidenceCeiling = 0.95
)

// Validate checks the clamp range and label thresholds.
func (c ConfidenceConfig) Validate() error {
	var errs []string
	if c.Min < ConfidenceFloor || c.Max > ConfidenceCeiling || c.Min > c.Max {
		errs = append(errs, fmt.Sprintf("confidence bounds must satisfy %.2f <= min <= max <= %.2f", ConfidenceFloor, ConfidenceCeiling))
	}
	if c.MediumThreshold > c.HighThreshold {
		errs = append(errs, "medium_threshold must be <= high_threshold")
	}
	if c.SmallSample > c.LargeSample {
		errs = append(errs, "small_sample must be <= large_sample")
	}
	if c.LowAdjustment > c.HighAdjustment {
		errs = append(errs, "low_adjustment must be <= high_adjustment")
	}
	if len(errs) > 0 {
		return eris.Errorf("valuation: confidence config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ScoreConfidence maps sample size, mean adjustment magnitude, mean distance
// and dispersion (coefficient of variation) into a score clamped to
// [Min, Max]. The scorer never claims full or zero certainty.
func ScoreConfidence(evals []model.ComparableEvaluation, sampleSize int, cv float64, cfg ConfidenceConfig) model.Confidence {
	score := cfg.Base

	switch {
	case sampleSize >= cfg.LargeSample:
		score += cfg.LargeSampleBonus
	case sampleSize < cfg.SmallSample:
		score -= cfg.SmallSamplePenalty
	}

	if len(evals) > 0 {
		var adjSum float64
		var distSum float64
		var distN int
		for _, ev := range evals {
			adjSum += math.Abs(ev.TotalAdjustmentPercent)
			if ev.DistanceKM != nil {
				distSum += *ev.DistanceKM
				distN++
			}
		}

		avgAdj := adjSum / float64(len(evals))
		switch {
		case avgAdj < cfg.LowAdjustment:
			score += cfg.LowAdjustmentBonus
		case avgAdj > cfg.HighAdjustment:
			score -= cfg.HighAdjustmentPenalty
		}

		if distN > 0 {
			avgDist := distSum / float64(distN)
			switch {
			case avgDist < cfg.NearKM:
				score += cfg.NearBonus
			case avgDist > cfg.FarKM:
				score -= cfg.FarPenalty
			}
		}
	}

	if !math.IsNaN(cv) && sampleSize > 1 {
		switch {
		case cv < cfg.LowCV:
			score += cfg.LowCVBonus
		case cv > cfg.HighCV:
			score -= cfg.HighCVPenalty
		}
	}

	if math.IsNaN(score) {
		score = cfg.Min
	}
	score = math.Min(score, cfg.Max)
	score = math.Max(score, cfg.Min)

	return model.Confidence{Score: score, Label: LabelFor(score, cfg)}
}

// LabelFor buckets a score: >= HighThreshold is high, >= MediumThreshold is
// medium, anything else is low.
func LabelFor(score float64, cfg ConfidenceConfig) model.ConfidenceLabel {
	switch {
	case score >= cfg.HighThreshold:
		return model.ConfidenceHigh
	case score >= cfg.MediumThreshold:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}
