package model

// AnomalyType describes the direction or kind of an anomaly.
type AnomalyType string

const (
	AnomalyOutlierHigh AnomalyType = "outlier-high"
	AnomalyOutlierLow  AnomalyType = "outlier-low"
	AnomalyRapidChange AnomalyType = "rapid-change"
	AnomalyDataGap     AnomalyType = "data-gap"
)

// AnomalyClassification is the market-facing label of a finding.
type AnomalyClassification string

const (
	ClassAboveMarket  AnomalyClassification = "above-market"
	ClassBelowMarket  AnomalyClassification = "below-market"
	ClassPriceOutlier AnomalyClassification = "price-outlier"
	ClassRapidChange  AnomalyClassification = "rapid-change"
	ClassDataGap      AnomalyClassification = "data-gap"
)

// Severity ranks how urgently an anomaly should be reviewed.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AnomalyReport is a single finding about one transaction.
type AnomalyReport struct {
	TransactionID    string                `json:"transaction_id"`
	Address          string                `json:"address"`
	City             string                `json:"city"`
	Price            float64               `json:"price"`
	Metric           string                `json:"metric"`
	Value            float64               `json:"value"`
	ZScore           float64               `json:"z_score"`
	DeviationPercent float64               `json:"deviation_percent"`
	AnomalyType      AnomalyType           `json:"anomaly_type"`
	Classification   AnomalyClassification `json:"classification"`
	Severity         Severity              `json:"severity"`
	Recommendation   string                `json:"recommendation"`
}
