package model

import (
	"encoding/json"
	"time"
)

// RunKind identifies what a stored run contains.
type RunKind string

const (
	RunKindValuation   RunKind = "valuation"
	RunKindAnomalyScan RunKind = "anomaly_scan"
)

// Run is a persisted engine invocation. Payload holds the JSON-encoded
// ValuationResult or []AnomalyReport.
type Run struct {
	ID             string          `json:"id"`
	Kind           RunKind         `json:"kind"`
	Label          string          `json:"label"`
	EstimatedValue float64         `json:"estimated_value,omitempty"`
	Confidence     ConfidenceLabel `json:"confidence,omitempty"`
	Findings       int             `json:"findings,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
}
