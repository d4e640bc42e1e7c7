package adjust

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/comps-cli/internal/model"
)

var ref = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func intPtr(i int) *int { return &i }
func floatPtr(f float64) *float64 { return &f }

func byCategory(factors []model.AdjustmentFactor) map[model.AdjustmentCategory]model.AdjustmentFactor {
	out := make(map[model.AdjustmentCategory]model.AdjustmentFactor, len(factors))
	for _, f := range factors {
		out[f.Category] = f
	}
	return out
}

func baseSubject() model.SubjectProperty {
	return model.SubjectProperty{
		Street: "Herzl", HouseNumber: "10", City: "Haifa",
		Area:          100,
		Floor:         intPtr(3),
		YearBuilt:     intPtr(2005),
		Condition:     "good",
		BuildingClass: "B",
	}
}

func baseComp() model.Transaction {
	return model.Transaction{
		ID: "c1", Street: "Herzl", HouseNumber: "14", City: "Haifa",
		Date:          ref.AddDate(0, -3, 0),
		Price:         2_000_000,
		Area:          100,
		Floor:         intPtr(3),
		YearBuilt:     intPtr(2005),
		Condition:     "good",
		BuildingClass: "B",
	}
}

func TestCompute_IdenticalComparableHasNoAdjustment(t *testing.T) {
	factors := Compute(baseSubject(), baseComp(), ref, DefaultRules())

	got := byCategory(factors)
	for _, cat := range []model.AdjustmentCategory{model.AdjustSize, model.AdjustFloor, model.AdjustAge, model.AdjustClass, model.AdjustCondition, model.AdjustTime} {
		f, ok := got[cat]
		require.True(t, ok, "expected factor %s", cat)
		assert.Zero(t, f.Value, cat)
		assert.True(t, f.Applied)
	}

	total := Total(factors)
	assert.InDelta(t, 0, total, 1e-9)
	assert.InDelta(t, 2_000_000, AdjustedPrice(2_000_000, total), 1e-6)
}

func TestCompute_TimeDecayBeyondGrace(t *testing.T) {
	comp := baseComp()
	comp.Date = ref.AddDate(0, -14, 0)

	f := byCategory(Compute(baseSubject(), comp, ref, DefaultRules()))[model.AdjustTime]
	assert.InDelta(t, 2.4, f.Value, 1e-9)
	assert.Contains(t, f.Reasoning, "14 month(s)")
}

func TestCompute_TimeUsesReferenceDateNotSubject(t *testing.T) {
	comp := baseComp()
	comp.Date = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	subject := baseSubject()
	subject.ValuationDate = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	f := byCategory(Compute(subject, comp, ref, DefaultRules()))[model.AdjustTime]
	// 17 months to ref; 11 beyond grace.
	assert.InDelta(t, 3.3, f.Value, 1e-9)
}

func TestCompute_SizeBands(t *testing.T) {
	tests := []struct {
		name     string
		compArea float64
		want     float64
	}{
		{"same", 100, 0},
		{"10% larger within tolerance", 110, 0},
		{"20% larger", 120, -5},
		{"40% larger", 140, -10},
		{"60% larger", 160, -15},
		{"20% smaller", 80, 5},
		{"60% smaller", 40, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := baseComp()
			comp.Area = tt.compArea
			f := byCategory(Compute(baseSubject(), comp, ref, DefaultRules()))[model.AdjustSize]
			assert.InDelta(t, tt.want, f.Value, 1e-9)
		})
	}
}

func TestCompute_FloorIsLinearAndDirectional(t *testing.T) {
	comp := baseComp()
	comp.Floor = intPtr(7)
	f := byCategory(Compute(baseSubject(), comp, ref, DefaultRules()))[model.AdjustFloor]
	assert.InDelta(t, -4, f.Value, 1e-9)

	comp.Floor = intPtr(-1)
	f = byCategory(Compute(baseSubject(), comp, ref, DefaultRules()))[model.AdjustFloor]
	assert.InDelta(t, 4, f.Value, 1e-9)
}

func TestCompute_ConditionAndClassOrdinalGap(t *testing.T) {
	comp := baseComp()
	comp.Condition = "poor"
	comp.BuildingClass = "a"

	got := byCategory(Compute(baseSubject(), comp, ref, DefaultRules()))
	// good(3) - poor(1) = 2 steps of 5%.
	assert.InDelta(t, 10, got[model.AdjustCondition].Value, 1e-9)
	// B(2) - A(3) = -1 step of 7.5%.
	assert.InDelta(t, -7.5, got[model.AdjustClass].Value, 1e-9)
}

func TestCompute_AgeBands(t *testing.T) {
	comp := baseComp()
	comp.YearBuilt = intPtr(1980) // 25 years older
	f := byCategory(Compute(baseSubject(), comp, ref, DefaultRules()))[model.AdjustAge]
	assert.InDelta(t, 10, f.Value, 1e-9)

	comp.YearBuilt = intPtr(2012) // 7 years newer
	f = byCategory(Compute(baseSubject(), comp, ref, DefaultRules()))[model.AdjustAge]
	assert.InDelta(t, -2, f.Value, 1e-9)
}

func TestCompute_Amenities(t *testing.T) {
	subject := baseSubject()
	subject.Amenities = []string{"parking", "elevator", "storage"}
	comp := baseComp()
	comp.Amenities = []string{"Parking", "balcony"}

	f := byCategory(Compute(subject, comp, ref, DefaultRules()))[model.AdjustAmenities]
	// Lacks elevator + storage (+4), adds balcony (-2).
	assert.InDelta(t, 2, f.Value, 1e-9)
	assert.Contains(t, f.Reasoning, "lacks elevator, storage")
	assert.Contains(t, f.Reasoning, "adds balcony")
}

func TestCompute_LocationBands(t *testing.T) {
	tests := []struct {
		km   float64
		want float64
	}{
		{0.2, 2},
		{1.5, 0},
		{4, -5},
		{12, -10},
	}
	for _, tt := range tests {
		f := byCategory(ComputeWithDistance(baseSubject(), baseComp(), ref, floatPtr(tt.km), DefaultRules()))[model.AdjustLocation]
		assert.InDelta(t, tt.want, f.Value, 1e-9, "distance %v", tt.km)
	}
}

func TestCompute_LocationFromCoordinates(t *testing.T) {
	subject := baseSubject()
	subject.Lat, subject.Lon = floatPtr(32.8000), floatPtr(34.9900)
	comp := baseComp()
	comp.Lat, comp.Lon = floatPtr(32.8020), floatPtr(34.9910)

	f, ok := byCategory(Compute(subject, comp, ref, DefaultRules()))[model.AdjustLocation]
	require.True(t, ok)
	assert.InDelta(t, 2, f.Value, 1e-9)
}

func TestCompute_MissingOptionalFieldsAreOmitted(t *testing.T) {
	subject := model.SubjectProperty{Area: 100}
	comp := model.Transaction{ID: "bare", Price: 1_000_000, Area: 100}

	factors := Compute(subject, comp, ref, DefaultRules())
	got := byCategory(factors)

	require.Len(t, factors, 1)
	_, ok := got[model.AdjustSize]
	assert.True(t, ok)
	for _, cat := range []model.AdjustmentCategory{model.AdjustLocation, model.AdjustFloor, model.AdjustCondition, model.AdjustAge, model.AdjustClass, model.AdjustAmenities, model.AdjustTime} {
		_, present := got[cat]
		assert.False(t, present, cat)
	}
}

func TestCompute_UnknownGradeIsOmitted(t *testing.T) {
	comp := baseComp()
	comp.Condition = "renovated-ish"
	_, ok := byCategory(Compute(baseSubject(), comp, ref, DefaultRules()))[model.AdjustCondition]
	assert.False(t, ok)
}

func TestCompute_FactorIDsAndSource(t *testing.T) {
	factors := Compute(baseSubject(), baseComp(), ref, DefaultRules())
	for _, f := range factors {
		assert.Equal(t, FactorID("c1", f.Category), f.ID)
		assert.Equal(t, DefaultRules().Source, f.Source)
		assert.NotEmpty(t, f.Reasoning)
		assert.True(t, f.Category.Valid())
	}
}

func TestToggle_ChangesTotalByExactlyThatFactor(t *testing.T) {
	comp := baseComp()
	comp.Area = 140
	comp.Floor = intPtr(5)
	comp.Date = ref.AddDate(0, -14, 0)

	factors := Compute(baseSubject(), comp, ref, DefaultRules())
	before := Total(factors)

	for _, f := range factors {
		toggled := Toggle(factors, f.ID, false)
		assert.InDelta(t, before-f.Value, Total(toggled), 1e-9, f.ID)
		// Original slice untouched.
		assert.InDelta(t, before, Total(factors), 1e-9)
	}
}

func TestApplyOverrides(t *testing.T) {
	comp := baseComp()
	comp.Area = 140
	factors := Compute(baseSubject(), comp, ref, DefaultRules())
	sizeID := FactorID("c1", model.AdjustSize)

	out := ApplyOverrides(factors, map[string]bool{sizeID: false, "unknown": false})
	assert.InDelta(t, Total(factors)+10, Total(out), 1e-9)
}

func TestMonthsBetween(t *testing.T) {
	d := func(y int, m time.Month, day int) time.Time { return time.Date(y, m, day, 0, 0, 0, 0, time.UTC) }
	assert.Equal(t, 14, MonthsBetween(d(2024, 4, 1), d(2025, 6, 1)))
	assert.Equal(t, 13, MonthsBetween(d(2024, 4, 15), d(2025, 6, 1)))
	assert.Equal(t, 0, MonthsBetween(d(2025, 7, 1), d(2025, 6, 1)))
	assert.Equal(t, 0, MonthsBetween(d(2025, 6, 1), d(2025, 6, 20)))
}

func TestHaversineKM(t *testing.T) {
	// Tel Aviv to Jerusalem, roughly 54 km.
	km := HaversineKM(32.0853, 34.7818, 31.7683, 35.2137)
	assert.InDelta(t, 54, km, 2)
	assert.InDelta(t, 0, HaversineKM(32, 34, 32, 34), 1e-9)
}

func TestRules_Validate(t *testing.T) {
	require.NoError(t, DefaultRules().Validate())

	bad := DefaultRules()
	bad.DistanceBands = []DistanceBand{{UpToKM: 1, Percent: -5}, {UpToKM: 2, Percent: 3}}
	bad.SizeBands = []Band{{Over: 0.1, Percent: 1}, {Over: 0.5, Percent: 2}}
	bad.TimeGraceMonths = -1

	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "percentages must not increase")
	assert.Contains(t, err.Error(), "size_bands")
	assert.Contains(t, err.Error(), "time_grace_months")
}
