// Package store persists valuation runs, anomaly scans and normalized
// transactions. The engine packages never import it; callers own storage.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/comps-cli/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Kind   model.RunKind `json:"kind,omitempty"`
	Label  string        `json:"label,omitempty"`
	Limit  int           `json:"limit,omitempty"`
	Offset int           `json:"offset,omitempty"`
}

// TransactionFilter specifies criteria for listing stored transactions.
type TransactionFilter struct {
	City  string    `json:"city,omitempty"`
	Since time.Time `json:"since,omitempty"`
	Limit int       `json:"limit,omitempty"`
}

// Store defines the persistence interface of the CLI and HTTP server.
type Store interface {
	// Runs
	SaveValuation(ctx context.Context, label string, result *model.ValuationResult) (*model.Run, error)
	SaveAnomalyScan(ctx context.Context, label string, reports []model.AnomalyReport) (*model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Transactions, keyed by their content-derived ID so re-imports are idempotent.
	SaveTransactions(ctx context.Context, txs []model.Transaction) (int64, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// newValuationRun builds the run row for a valuation result.
func newValuationRun(label string, result *model.ValuationResult) (*model.Run, error) {
	if result == nil {
		return nil, eris.New("store: nil valuation result")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal valuation")
	}
	if label == "" {
		label = result.Subject.Address()
	}
	return &model.Run{
		ID:             uuid.New().String(),
		Kind:           model.RunKindValuation,
		Label:          label,
		EstimatedValue: result.EstimatedValue,
		Confidence:     result.Confidence.Label,
		Findings:       result.SampleSize,
		Payload:        payload,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// newAnomalyRun builds the run row for an anomaly scan.
func newAnomalyRun(label string, reports []model.AnomalyReport) (*model.Run, error) {
	if reports == nil {
		reports = []model.AnomalyReport{}
	}
	payload, err := json.Marshal(reports)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal anomaly reports")
	}
	return &model.Run{
		ID:        uuid.New().String(),
		Kind:      model.RunKindAnomalyScan,
		Label:     label,
		Findings:  len(reports),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
