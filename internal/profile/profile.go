// Package profile holds per-category tuning of the valuation engine and the
// anomaly detector. Profiles are plain data: one parameterized engine serves
// every property category.
package profile

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/comps-cli/internal/adjust"
	"github.com/sells-group/comps-cli/internal/anomaly"
	"github.com/sells-group/comps-cli/internal/model"
	"github.com/sells-group/comps-cli/internal/valuation"
)

// Profile is the complete tuning of one property category.
type Profile struct {
	Name             string                     `yaml:"name" json:"name"`
	Category         string                     `yaml:"category" json:"category"`
	Adjust           adjust.Rules               `yaml:"adjust" json:"adjust"`
	Weights          valuation.WeightConfig     `yaml:"weights" json:"weights"`
	Confidence       valuation.ConfidenceConfig `yaml:"confidence" json:"confidence"`
	Anomaly          anomaly.Config             `yaml:"anomaly" json:"anomaly"`
	RangeBandPercent float64                    `yaml:"range_band_percent" json:"range_band_percent"`
}

// Params converts the profile into engine parameters.
func (p Profile) Params() valuation.Params {
	return valuation.Params{
		Name:             p.Name,
		Rules:            p.Adjust,
		Weights:          p.Weights,
		Confidence:       p.Confidence,
		RangeBandPercent: p.RangeBandPercent,
	}
}

// Validate checks every nested configuration.
func (p Profile) Validate() error {
	if err := p.Params().Validate(); err != nil {
		return eris.Wrapf(err, "profile: %s", p.Name)
	}
	if err := p.Anomaly.Validate(); err != nil {
		return eris.Wrapf(err, "profile: %s", p.Name)
	}
	return nil
}

// Categories lists the built-in profiles.
var Categories = []string{
	model.CategoryResidential,
	model.CategoryOffice,
	model.CategoryRental,
	model.CategoryRetail,
}

// Default returns the built-in profile for category. Unknown categories get
// the residential profile under the requested name.
func Default(category string) Profile {
	category = strings.ToLower(strings.TrimSpace(category))

	p := Profile{
		Name:             category,
		Category:         category,
		Adjust:           adjust.DefaultRules(),
		Weights:          valuation.DefaultWeightConfig(),
		Confidence:       valuation.DefaultConfidenceConfig(),
		Anomaly:          anomaly.DefaultConfig(),
		RangeBandPercent: valuation.DefaultRangeBandPercent,
	}

	switch category {
	case model.CategoryOffice:
		p.Adjust.Source = "default office adjustment table"
		p.Adjust.ClassStepPercent = 10
		p.Adjust.PerFloorPercent = 0.5
		p.Adjust.AmenityPercent = 3
		p.Adjust.MonthlyDriftPercent = 0.25
		p.Weights.Proximity = 0.35
		p.Weights.Similarity = 0.35
		p.Anomaly.Metric = anomaly.MetricPricePerUnitArea
	case model.CategoryRental:
		p.Adjust.Source = "default rental adjustment table"
		p.Adjust.TimeGraceMonths = 3
		p.Adjust.MonthlyDriftPercent = 0.2
		p.Adjust.SizeBands = []adjust.Band{
			{Over: 0.50, Percent: 10},
			{Over: 0.30, Percent: 6},
			{Over: 0.15, Percent: 3},
		}
		p.Weights.RecencyHalfLifeDays = 180
		p.Anomaly.RapidChangeWindowDays = 180
	case model.CategoryRetail:
		p.Adjust.Source = "default retail adjustment table"
		p.Adjust.DistanceBands = []adjust.DistanceBand{
			{UpToKM: 0.2, Percent: 5},
			{UpToKM: 1, Percent: 0},
			{UpToKM: 3, Percent: -7},
		}
		p.Adjust.FarPercent = -15
		p.Adjust.PerFloorPercent = 2
		p.Weights.Proximity = 0.4
		p.Weights.Similarity = 0.3
		p.Weights.ProximityScaleKM = 1
		p.Anomaly.Metric = anomaly.MetricPricePerUnitArea
	default:
		if category == "" {
			p.Name, p.Category = model.CategoryResidential, model.CategoryResidential
		}
	}
	return p
}

// Set is a collection of profiles keyed by name.
type Set map[string]Profile

// DefaultSet returns every built-in profile.
func DefaultSet() Set {
	s := make(Set, len(Categories))
	for _, c := range Categories {
		s[c] = Default(c)
	}
	return s
}

// Get returns the named profile, falling back to residential.
func (s Set) Get(name string) Profile {
	if p, ok := s[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	if p, ok := s[model.CategoryResidential]; ok {
		return p
	}
	return Default(model.CategoryResidential)
}

// Names returns the profile names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load reads profiles from a YAML file. The file has a top-level "profiles"
// map; each entry overlays the built-in defaults of its category (or of the
// profile's own name when no category is given). Built-in profiles not named
// in the file are kept.
func Load(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "profile: read %s", path)
	}

	var wrapper struct {
		Profiles map[string]yaml.Node `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "profile: parse yaml")
	}

	set := DefaultSet()
	for name, node := range wrapper.Profiles {
		name = strings.ToLower(strings.TrimSpace(name))

		var head struct {
			Category string `yaml:"category"`
		}
		if err := node.Decode(&head); err != nil {
			return nil, eris.Wrapf(err, "profile: decode %s", name)
		}
		category := head.Category
		if category == "" {
			category = name
		}

		p := Default(category)
		if err := node.Decode(&p); err != nil {
			return nil, eris.Wrapf(err, "profile: decode %s", name)
		}
		p.Name = name
		if p.Category == "" {
			p.Category = category
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		set[name] = p
	}

	zap.L().Debug("profile: loaded profiles",
		zap.String("path", path),
		zap.Int("overrides", len(wrapper.Profiles)),
		zap.Strings("profiles", set.Names()),
	)
	return set, nil
}
