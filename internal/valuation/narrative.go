package valuation

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/comps-cli/internal/model"
)

var printer = message.NewPrinter(language.English)

// Summarize renders a short human-readable explanation of a result. Amounts
// are rounded to whole units with thousands separators.
func Summarize(r *model.ValuationResult) string {
	if r == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(printer.Sprintf("Estimated value %d (range %d to %d) for %s, based on %d comparable",
		round(r.EstimatedValue), round(r.ValueRange.Min), round(r.ValueRange.Max),
		r.Subject.Address(), r.SampleSize))
	if r.SampleSize != 1 {
		b.WriteString("s")
	}
	b.WriteString(printer.Sprintf(" at a weighted %d per unit area.", round(r.AdjustedPricePerUnitArea)))

	b.WriteString(printer.Sprintf(" Confidence is %s (%.2f).", r.Confidence.Label, r.Confidence.Score))

	if excluded := len(r.Comparables) - r.SampleSize; excluded > 0 {
		b.WriteString(printer.Sprintf(" %d candidate(s) carried no weight and were excluded.", excluded))
	}

	if top := topAdjustments(r.Comparables, 3); len(top) > 0 {
		b.WriteString(" Largest adjustments: ")
		parts := make([]string, 0, len(top))
		for _, f := range top {
			parts = append(parts, printer.Sprintf("%s %+.1f%% (%s)", f.Category, f.Value, f.Reasoning))
		}
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(".")
	}

	return b.String()
}

// topAdjustments returns the n applied factors of included comparables with
// the largest magnitude.
func topAdjustments(evals []model.ComparableEvaluation, n int) []model.AdjustmentFactor {
	var all []model.AdjustmentFactor
	for _, ev := range evals {
		if !ev.Included {
			continue
		}
		for _, f := range ev.Adjustments {
			if f.Applied && f.Value != 0 {
				all = append(all, f)
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		ai, aj := math.Abs(all[i].Value), math.Abs(all[j].Value)
		if ai != aj {
			return ai > aj
		}
		return all[i].ID < all[j].ID
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func round(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(math.Round(v))
}
