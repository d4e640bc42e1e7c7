// Package adjust computes per-factor percentage adjustments that translate a
// comparable's price into what it implies for the subject property.
package adjust

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Band maps a threshold to a percentage. A band applies when the measured
// magnitude is strictly greater than Over.
type Band struct {
	Over    float64 `yaml:"over" json:"over"`
	Percent float64 `yaml:"percent" json:"percent"`
}

// DistanceBand applies Percent when the distance is at most UpToKM.
type DistanceBand struct {
	UpToKM  float64 `yaml:"up_to_km" json:"up_to_km"`
	Percent float64 `yaml:"percent" json:"percent"`
}

// Rules holds the tunable constants of every adjustment rule. The values are
// heuristics pending appraiser review, not statistically derived.
type Rules struct {
	Source string `yaml:"source" json:"source"`

	// DistanceBands must be ordered by UpToKM ascending with non-increasing
	// percentages; FarPercent applies beyond the last band.
	DistanceBands []DistanceBand `yaml:"distance_bands" json:"distance_bands"`
	FarPercent    float64        `yaml:"far_percent" json:"far_percent"`

	// SizeBands are matched against |relative area difference| (0.3 = 30%),
	// ordered by Over descending.
	SizeBands []Band `yaml:"size_bands" json:"size_bands"`

	PerFloorPercent float64 `yaml:"per_floor_percent" json:"per_floor_percent"`

	ConditionScale       map[string]int `yaml:"condition_scale" json:"condition_scale"`
	ConditionStepPercent float64        `yaml:"condition_step_percent" json:"condition_step_percent"`

	ClassScale       map[string]int `yaml:"class_scale" json:"class_scale"`
	ClassStepPercent float64        `yaml:"class_step_percent" json:"class_step_percent"`

	// AgeBands are matched against |year built difference|, Over descending.
	AgeBands []Band `yaml:"age_bands" json:"age_bands"`

	AmenityPercent float64 `yaml:"amenity_percent" json:"amenity_percent"`

	TimeGraceMonths     int     `yaml:"time_grace_months" json:"time_grace_months"`
	MonthlyDriftPercent float64 `yaml:"monthly_drift_percent" json:"monthly_drift_percent"`
}

// DefaultRules returns the baseline residential rule table.
func DefaultRules() Rules {
	return Rules{
		Source: "default residential adjustment table",
		DistanceBands: []DistanceBand{
			{UpToKM: 0.5, Percent: 2},
			{UpToKM: 2, Percent: 0},
			{UpToKM: 5, Percent: -5},
		},
		FarPercent: -10,
		SizeBands: []Band{
			{Over: 0.50, Percent: 15},
			{Over: 0.30, Percent: 10},
			{Over: 0.15, Percent: 5},
		},
		PerFloorPercent: 1,
		ConditionScale: map[string]int{
			"poor": 1, "fair": 2, "good": 3, "excellent": 4, "new": 5,
		},
		ConditionStepPercent: 5,
		ClassScale: map[string]int{
			"C": 1, "B": 2, "A": 3, "A+": 4,
		},
		ClassStepPercent: 7.5,
		AgeBands: []Band{
			{Over: 20, Percent: 10},
			{Over: 10, Percent: 5},
			{Over: 5, Percent: 2},
		},
		AmenityPercent:      2,
		TimeGraceMonths:     6,
		MonthlyDriftPercent: 0.3,
	}
}

// Validate checks that the rule table is internally consistent.
func (r Rules) Validate() error {
	var errs []string

	for i := 1; i < len(r.DistanceBands); i++ {
		prev, cur := r.DistanceBands[i-1], r.DistanceBands[i]
		if cur.UpToKM <= prev.UpToKM {
			errs = append(errs, "distance_bands must be ordered by up_to_km ascending")
		}
		if cur.Percent > prev.Percent {
			errs = append(errs, "distance_bands percentages must not increase with distance")
		}
	}
	if n := len(r.DistanceBands); n > 0 && r.FarPercent > r.DistanceBands[n-1].Percent {
		errs = append(errs, "far_percent must not exceed the last distance band")
	}
	if !descending(r.SizeBands) {
		errs = append(errs, "size_bands must be ordered by over descending")
	}
	if !descending(r.AgeBands) {
		errs = append(errs, "age_bands must be ordered by over descending")
	}
	if r.PerFloorPercent < 0 {
		errs = append(errs, "per_floor_percent must be >= 0")
	}
	if r.ConditionStepPercent < 0 || r.ClassStepPercent < 0 {
		errs = append(errs, "condition and class steps must be >= 0")
	}
	if r.AmenityPercent < 0 {
		errs = append(errs, "amenity_percent must be >= 0")
	}
	if r.TimeGraceMonths < 0 {
		errs = append(errs, "time_grace_months must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("adjust: rules validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func descending(bands []Band) bool {
	for i := 1; i < len(bands); i++ {
		if bands[i].Over >= bands[i-1].Over {
			return false
		}
	}
	return true
}

// bandPercent returns the percentage of the first band whose threshold
// magnitude exceeds, and the threshold matched (for reasoning text).
func bandPercent(bands []Band, magnitude float64) (float64, string) {
	for _, b := range bands {
		if magnitude > b.Over {
			return b.Percent, fmt.Sprintf("over %g", b.Over)
		}
	}
	return 0, "within tolerance"
}
