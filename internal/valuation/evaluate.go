package valuation

import (
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/comps-cli/internal/adjust"
	"github.com/sells-group/comps-cli/internal/model"
)

// ErrInvalidSubject is returned when the subject has no usable area.
var ErrInvalidSubject = eris.New("valuation: subject area must be positive")

// DefaultRangeBandPercent is the half-width of the recommended value range.
const DefaultRangeBandPercent = 5.0

// Params bundles every tunable of one evaluation. Profiles produce it.
type Params struct {
	Name             string
	Rules            adjust.Rules
	Weights          WeightConfig
	Confidence       ConfidenceConfig
	RangeBandPercent float64
}

// DefaultParams returns the residential baseline.
func DefaultParams() Params {
	return Params{
		Name:             model.CategoryResidential,
		Rules:            adjust.DefaultRules(),
		Weights:          DefaultWeightConfig(),
		Confidence:       DefaultConfidenceConfig(),
		RangeBandPercent: DefaultRangeBandPercent,
	}
}

// Validate checks every nested configuration.
func (p Params) Validate() error {
	if err := p.Rules.Validate(); err != nil {
		return err
	}
	if err := p.Weights.Validate(); err != nil {
		return err
	}
	if err := p.Confidence.Validate(); err != nil {
		return err
	}
	if p.RangeBandPercent < 0 || p.RangeBandPercent >= 100 {
		return eris.Errorf("valuation: range_band_percent must be in [0, 100), got %v", p.RangeBandPercent)
	}
	return nil
}

// Options carries per-request inputs that are not part of a profile.
type Options struct {
	// ReferenceDate anchors time adjustments and recency. Zero falls back to
	// the subject's valuation date, then to the current time.
	ReferenceDate time.Time
	// Overrides maps adjustment factor IDs to their applied state.
	Overrides map[string]bool
	// Distances supplies precomputed subject distances in km by transaction ID.
	Distances map[string]float64
	// MaxComparables keeps only the N highest-weighted comparables (0 = all).
	MaxComparables int
}

// Evaluate values the subject against the comparables. It never mutates its
// inputs and returns a fresh result on every call.
func Evaluate(subject model.SubjectProperty, comps []model.Transaction, params Params, opts Options) (*model.ValuationResult, error) {
	if subject.Area <= 0 || math.IsNaN(subject.Area) || math.IsInf(subject.Area, 0) {
		return nil, ErrInvalidSubject
	}

	ref := opts.ReferenceDate
	if ref.IsZero() {
		ref = subject.ValuationDate
	}
	if ref.IsZero() {
		ref = time.Now().UTC()
	}
	band := params.RangeBandPercent
	if band == 0 {
		band = DefaultRangeBandPercent
	}

	evals := make([]model.ComparableEvaluation, 0, len(comps))
	for _, comp := range comps {
		evals = append(evals, evaluateOne(subject, comp, ref, params, opts))
	}

	sort.SliceStable(evals, func(i, j int) bool {
		if evals[i].Weight != evals[j].Weight {
			return evals[i].Weight > evals[j].Weight
		}
		return evals[i].Transaction.ID < evals[j].Transaction.ID
	})
	if opts.MaxComparables > 0 && len(evals) > opts.MaxComparables {
		for i := opts.MaxComparables; i < len(evals); i++ {
			evals[i].Weight = 0
		}
	}

	stats, normalized, err := aggregate(evals, BasisPricePerArea)
	if err != nil {
		return nil, eris.Wrapf(err, "valuation: evaluate %s", subject.Address())
	}

	var included []model.ComparableEvaluation
	var basePPUA float64
	for i := range evals {
		evals[i].Weight = normalized[i]
		evals[i].Included = normalized[i] > 0
		if evals[i].Included {
			included = append(included, evals[i])
			basePPUA += normalized[i] * evals[i].Transaction.PricePerUnitArea
		}
	}

	estimate := stats.WeightedAverage * subject.Area
	result := &model.ValuationResult{
		Subject:                  subject,
		Profile:                  params.Name,
		ReferenceDate:            ref,
		BasePricePerUnitArea:     basePPUA,
		AdjustedPricePerUnitArea: stats.WeightedAverage,
		EstimatedValue:           estimate,
		ValueRange: model.ValueRange{
			Min: estimate * (1 - band/100),
			Max: estimate * (1 + band/100),
		},
		Confidence:  ScoreConfidence(included, len(included), stats.CoefficientOfVariation, params.Confidence),
		SampleSize:  len(included),
		Statistics:  stats,
		Comparables: evals,
	}
	result.Summary = Summarize(result)

	zap.L().Debug("valuation: evaluated subject",
		zap.String("subject", subject.Address()),
		zap.String("profile", params.Name),
		zap.Int("candidates", len(comps)),
		zap.Int("included", len(included)),
		zap.Float64("estimated_value", estimate),
		zap.Float64("confidence", result.Confidence.Score),
	)

	return result, nil
}

func evaluateOne(subject model.SubjectProperty, comp model.Transaction, ref time.Time, params Params, opts Options) model.ComparableEvaluation {
	dist := adjust.Distance(subject, comp)
	if d, ok := opts.Distances[comp.ID]; ok {
		dist = &d
	}

	factors := adjust.ComputeWithDistance(subject, comp, ref, dist, params.Rules)
	if len(opts.Overrides) > 0 {
		factors = adjust.ApplyOverrides(factors, opts.Overrides)
	}

	total := adjust.Total(factors)
	adjusted := adjust.AdjustedPrice(comp.Price, total)

	ev := model.ComparableEvaluation{
		Transaction:            copyTransaction(comp),
		Adjustments:            factors,
		TotalAdjustmentPercent: total,
		AdjustedPrice:          adjusted,
		DistanceKM:             dist,
		SimilarityScore:        100 * Similarity(total, params.Weights),
	}
	if comp.Area > 0 {
		ev.AdjustedPricePerUnitArea = adjusted / comp.Area
	}
	ev.Weight = Weigh(ev, ref, params.Weights)
	return ev
}

// copyTransaction detaches slice fields so results never alias caller data.
func copyTransaction(t model.Transaction) model.Transaction {
	if t.Amenities != nil {
		t.Amenities = append([]string(nil), t.Amenities...)
	}
	return t
}
