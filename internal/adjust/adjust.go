package adjust

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sells-group/comps-cli/internal/model"
)

// Compute returns the adjustment factors for one comparable against the
// subject. Distance is derived from coordinates when both sides carry them.
func Compute(subject model.SubjectProperty, comp model.Transaction, ref time.Time, rules Rules) []model.AdjustmentFactor {
	return ComputeWithDistance(subject, comp, ref, Distance(subject, comp), rules)
}

// ComputeWithDistance is Compute with a caller-supplied distance in km.
// A nil distance omits the location factor.
//
// Sign convention: a positive value raises the comparable's price, meaning the
// subject is superior on that factor; a negative value discounts it. Factors
// whose inputs are missing on either side are omitted rather than zeroed.
func ComputeWithDistance(subject model.SubjectProperty, comp model.Transaction, ref time.Time, distanceKM *float64, rules Rules) []model.AdjustmentFactor {
	b := builder{compID: comp.ID, source: rules.Source}

	if distanceKM != nil && !math.IsNaN(*distanceKM) && *distanceKM >= 0 {
		pct, why := locationPercent(*distanceKM, rules)
		b.add(model.AdjustLocation, pct, why)
	}

	if subject.Area > 0 && comp.Area > 0 {
		diff := (comp.Area - subject.Area) / subject.Area
		pct, band := bandPercent(rules.SizeBands, math.Abs(diff))
		if diff > 0 {
			pct = -pct
		}
		b.add(model.AdjustSize, pct, fmt.Sprintf(
			"comparable area %.0f vs subject %.0f (%+.1f%%, %s)",
			comp.Area, subject.Area, diff*100, band))
	}

	if subject.Floor != nil && comp.Floor != nil {
		gap := *subject.Floor - *comp.Floor
		b.add(model.AdjustFloor, float64(gap)*rules.PerFloorPercent, fmt.Sprintf(
			"comparable on floor %d vs subject floor %d (%.2f%% per floor)",
			*comp.Floor, *subject.Floor, rules.PerFloorPercent))
	}

	if s, c, ok := ordinalGap(rules.ConditionScale, subject.Condition, comp.Condition, strings.ToLower); ok {
		b.add(model.AdjustCondition, float64(s-c)*rules.ConditionStepPercent, fmt.Sprintf(
			"condition %q vs subject %q (%d grade step(s))",
			comp.Condition, subject.Condition, s-c))
	}

	if subject.YearBuilt != nil && comp.YearBuilt != nil {
		gap := *subject.YearBuilt - *comp.YearBuilt
		pct, band := bandPercent(rules.AgeBands, math.Abs(float64(gap)))
		if gap < 0 {
			pct = -pct
		}
		b.add(model.AdjustAge, pct, fmt.Sprintf(
			"built %d vs subject %d (%d years, %s)",
			*comp.YearBuilt, *subject.YearBuilt, absInt(gap), band))
	}

	if s, c, ok := ordinalGap(rules.ClassScale, subject.BuildingClass, comp.BuildingClass, strings.ToUpper); ok {
		b.add(model.AdjustClass, float64(s-c)*rules.ClassStepPercent, fmt.Sprintf(
			"building class %s vs subject %s",
			strings.ToUpper(comp.BuildingClass), strings.ToUpper(subject.BuildingClass)))
	}

	if len(subject.Amenities) > 0 && len(comp.Amenities) > 0 {
		missing, extra := amenityDiff(subject.Amenities, comp.Amenities)
		pct := float64(len(missing)-len(extra)) * rules.AmenityPercent
		b.add(model.AdjustAmenities, pct, amenityReason(missing, extra))
	}

	if !comp.Date.IsZero() && !ref.IsZero() {
		months := MonthsBetween(comp.Date, ref)
		pct := 0.0
		if over := months - rules.TimeGraceMonths; over > 0 {
			pct = float64(over) * rules.MonthlyDriftPercent
		}
		b.add(model.AdjustTime, pct, fmt.Sprintf(
			"sold %d month(s) before %s; %.2f%% per month beyond %d",
			months, ref.Format("2006-01-02"), rules.MonthlyDriftPercent, rules.TimeGraceMonths))
	}

	return b.factors
}

// Total sums the values of applied factors.
func Total(factors []model.AdjustmentFactor) float64 {
	var total float64
	for _, f := range factors {
		if f.Applied {
			total += f.Value
		}
	}
	return total
}

// AdjustedPrice applies a total percentage adjustment to a price.
func AdjustedPrice(price, totalPercent float64) float64 {
	return price * (1 + totalPercent/100)
}

// Toggle returns a copy of factors with the factor matching id set to applied.
func Toggle(factors []model.AdjustmentFactor, id string, applied bool) []model.AdjustmentFactor {
	out := make([]model.AdjustmentFactor, len(factors))
	copy(out, factors)
	for i := range out {
		if out[i].ID == id {
			out[i].Applied = applied
		}
	}
	return out
}

// ApplyOverrides is Toggle over a map of factor ID to applied state.
func ApplyOverrides(factors []model.AdjustmentFactor, overrides map[string]bool) []model.AdjustmentFactor {
	out := make([]model.AdjustmentFactor, len(factors))
	copy(out, factors)
	for i := range out {
		if applied, ok := overrides[out[i].ID]; ok {
			out[i].Applied = applied
		}
	}
	return out
}

// FactorID returns the ID assigned to a comparable's factor of a category.
func FactorID(compID string, category model.AdjustmentCategory) string {
	return compID + ":" + string(category)
}

// MonthsBetween returns the number of whole calendar months from 'from' to
// 'to', or 0 when 'to' is not after 'from'.
func MonthsBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

type builder struct {
	compID  string
	source  string
	factors []model.AdjustmentFactor
}

func (b *builder) add(cat model.AdjustmentCategory, pct float64, reasoning string) {
	if pct == 0 {
		pct = 0 // normalize -0
	}
	b.factors = append(b.factors, model.AdjustmentFactor{
		ID:        FactorID(b.compID, cat),
		Category:  cat,
		Value:     pct,
		Reasoning: reasoning,
		Source:    b.source,
		Applied:   true,
	})
}

func locationPercent(km float64, rules Rules) (float64, string) {
	for _, band := range rules.DistanceBands {
		if km <= band.UpToKM {
			return band.Percent, fmt.Sprintf("%.2f km from subject (within %g km)", km, band.UpToKM)
		}
	}
	return rules.FarPercent, fmt.Sprintf("%.2f km from subject (beyond all distance bands)", km)
}

func ordinalGap(scale map[string]int, subject, comp string, canon func(string) string) (int, int, bool) {
	if subject == "" || comp == "" {
		return 0, 0, false
	}
	s, okS := scale[canon(strings.TrimSpace(subject))]
	c, okC := scale[canon(strings.TrimSpace(comp))]
	if !okS || !okC {
		return 0, 0, false
	}
	return s, c, true
}

func amenityDiff(subject, comp []string) (missing, extra []string) {
	has := func(list []string) map[string]bool {
		m := make(map[string]bool, len(list))
		for _, a := range list {
			m[strings.ToLower(strings.TrimSpace(a))] = true
		}
		return m
	}
	subj, cmp := has(subject), has(comp)
	for _, a := range subject {
		key := strings.ToLower(strings.TrimSpace(a))
		if !cmp[key] {
			missing = append(missing, key)
		}
	}
	for _, a := range comp {
		key := strings.ToLower(strings.TrimSpace(a))
		if !subj[key] {
			extra = append(extra, key)
		}
	}
	return missing, extra
}

func amenityReason(missing, extra []string) string {
	if len(missing) == 0 && len(extra) == 0 {
		return "same amenities as subject"
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "comparable lacks "+strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		parts = append(parts, "comparable adds "+strings.Join(extra, ", "))
	}
	return strings.Join(parts, "; ")
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
