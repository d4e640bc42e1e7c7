package model

// AdjustmentCategory tags the property difference an adjustment accounts for.
type AdjustmentCategory string

const (
	AdjustLocation  AdjustmentCategory = "location"
	AdjustSize      AdjustmentCategory = "size"
	AdjustFloor     AdjustmentCategory = "floor"
	AdjustCondition AdjustmentCategory = "condition"
	AdjustAge       AdjustmentCategory = "age"
	AdjustClass     AdjustmentCategory = "class"
	AdjustAmenities AdjustmentCategory = "amenities"
	AdjustTime      AdjustmentCategory = "time"
)

// AdjustmentCategories lists every category in the order factors are emitted.
var AdjustmentCategories = []AdjustmentCategory{
	AdjustLocation, AdjustSize, AdjustFloor, AdjustCondition,
	AdjustAge, AdjustClass, AdjustAmenities, AdjustTime,
}

// Valid reports whether c is one of the fixed categories.
func (c AdjustmentCategory) Valid() bool {
	for _, known := range AdjustmentCategories {
		if c == known {
			return true
		}
	}
	return false
}

// AdjustmentFactor is a signed percentage correction applied to a comparable's
// price. Values are conventionally within [-50, +50]; the engine does not clamp.
type AdjustmentFactor struct {
	ID        string             `json:"id"`
	Category  AdjustmentCategory `json:"category"`
	Value     float64            `json:"value"`
	Reasoning string             `json:"reasoning"`
	Source    string             `json:"source"`
	Applied   bool               `json:"applied"`
}

// ComparableEvaluation wraps a comparable with its adjustments and weight.
type ComparableEvaluation struct {
	Transaction              Transaction        `json:"transaction"`
	Adjustments              []AdjustmentFactor `json:"adjustments"`
	TotalAdjustmentPercent   float64            `json:"total_adjustment_percent"`
	AdjustedPrice            float64            `json:"adjusted_price"`
	AdjustedPricePerUnitArea float64            `json:"adjusted_price_per_unit_area"`
	DistanceKM               *float64           `json:"distance_km,omitempty"`
	Weight                   float64            `json:"weight"`
	SimilarityScore          float64            `json:"similarity_score"`
	Included                 bool               `json:"included"`
}
