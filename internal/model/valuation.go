package model

import "time"

// ConfidenceLabel is the discrete confidence bucket shown to users.
type ConfidenceLabel string

const (
	ConfidenceLow    ConfidenceLabel = "low"
	ConfidenceMedium ConfidenceLabel = "medium"
	ConfidenceHigh   ConfidenceLabel = "high"
)

// Confidence pairs the bounded numeric score with its label.
type Confidence struct {
	Score float64         `json:"score"`
	Label ConfidenceLabel `json:"label"`
}

// ValueRange is the recommended value band around the estimate.
type ValueRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Statistics summarizes the adjusted series a valuation was aggregated over.
// StdDev is a population standard deviation.
type Statistics struct {
	Basis                  string             `json:"basis"`
	WeightedAverage        float64            `json:"weighted_average"`
	Median                 float64            `json:"median"`
	Min                    float64            `json:"min"`
	Max                    float64            `json:"max"`
	StdDev                 float64            `json:"std_dev"`
	CoefficientOfVariation float64            `json:"coefficient_of_variation"`
	Count                  int                `json:"count"`
	Weights                map[string]float64 `json:"weights"`
}

// ValuationResult is the immutable outcome of one evaluation request.
type ValuationResult struct {
	Subject                  SubjectProperty        `json:"subject"`
	Profile                  string                 `json:"profile"`
	ReferenceDate            time.Time              `json:"reference_date"`
	BasePricePerUnitArea     float64                `json:"base_price_per_unit_area"`
	AdjustedPricePerUnitArea float64                `json:"adjusted_price_per_unit_area"`
	EstimatedValue           float64                `json:"estimated_value"`
	ValueRange               ValueRange             `json:"value_range"`
	Confidence               Confidence             `json:"confidence"`
	SampleSize               int                    `json:"sample_size"`
	Statistics               Statistics             `json:"statistics"`
	Comparables              []ComparableEvaluation `json:"comparables"`
	Summary                  string                 `json:"summary"`
}
