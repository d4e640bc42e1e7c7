package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/comps-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleValuation() *model.ValuationResult {
	return &model.ValuationResult{
		Subject:        model.SubjectProperty{Street: "Herzl", HouseNumber: "10", City: "Haifa", Area: 100},
		Profile:        "residential",
		EstimatedValue: 2_040_000,
		Confidence:     model.Confidence{Score: 0.82, Label: model.ConfidenceHigh},
		SampleSize:     4,
	}
}

func sampleTransactions() []model.Transaction {
	return []model.Transaction{
		{ID: "t1", Street: "Herzl", HouseNumber: "12", City: "Haifa", Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Price: 2_000_000, Area: 100, PricePerUnitArea: 20_000},
		{ID: "t2", Street: "Balfour", HouseNumber: "3", City: "haifa ", Date: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), Price: 1_500_000, Area: 80, PricePerUnitArea: 18_750},
		{ID: "t3", Street: "Dizengoff", HouseNumber: "50", City: "Tel Aviv", Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Price: 3_000_000, Area: 90, PricePerUnitArea: 33_333.33},
	}
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_SaveAndGetValuation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.SaveValuation(ctx, "", sampleValuation())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "Herzl 10, Haifa", run.Label)
	assert.Equal(t, model.RunKindValuation, run.Kind)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, model.RunKindValuation, got.Kind)
	assert.Equal(t, 2_040_000.0, got.EstimatedValue)
	assert.Equal(t, model.ConfidenceHigh, got.Confidence)
	assert.Equal(t, 4, got.Findings)

	var payload model.ValuationResult
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, "residential", payload.Profile)
}

func TestSQLite_SaveAnomalyScan(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.SaveAnomalyScan(ctx, "haifa-q3", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Findings)
	assert.JSONEq(t, `[]`, string(run.Payload))

	run, err = st.SaveAnomalyScan(ctx, "haifa-q4", []model.AnomalyReport{{TransactionID: "t1", Severity: model.SeverityWarning}})
	require.NoError(t, err)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunKindAnomalyScan, got.Kind)
	assert.Equal(t, 1, got.Findings)
}

func TestSQLite_SaveRun_ClosedStore(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Close())

	run, err := st.SaveValuation(context.Background(), "flat-a", sampleValuation())
	require.Error(t, err)
	assert.Nil(t, run)

	run, err = st.SaveAnomalyScan(context.Background(), "scan", nil)
	require.Error(t, err)
	assert.Nil(t, run)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ListRuns_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.SaveValuation(ctx, "flat-a", sampleValuation())
	require.NoError(t, err)
	_, err = st.SaveValuation(ctx, "flat-b", sampleValuation())
	require.NoError(t, err)
	_, err = st.SaveAnomalyScan(ctx, "scan", nil)
	require.NoError(t, err)

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	vals, err := st.ListRuns(ctx, RunFilter{Kind: model.RunKindValuation})
	require.NoError(t, err)
	assert.Len(t, vals, 2)

	byLabel, err := st.ListRuns(ctx, RunFilter{Label: "flat-b"})
	require.NoError(t, err)
	require.Len(t, byLabel, 1)
	assert.Equal(t, "flat-b", byLabel[0].Label)

	page, err := st.ListRuns(ctx, RunFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestSQLite_SaveTransactions_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.SaveTransactions(ctx, sampleTransactions())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	updated := sampleTransactions()
	updated[0].Price = 2_100_000
	_, err = st.SaveTransactions(ctx, updated)
	require.NoError(t, err)

	all, err := st.ListTransactions(ctx, TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "t2", all[0].ID, "newest first")

	for _, tx := range all {
		if tx.ID == "t1" {
			assert.Equal(t, 2_100_000.0, tx.Price)
		}
	}
}

func TestSQLite_ListTransactions_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	_, err := st.SaveTransactions(ctx, sampleTransactions())
	require.NoError(t, err)

	haifa, err := st.ListTransactions(ctx, TransactionFilter{City: "HAIFA"})
	require.NoError(t, err)
	assert.Len(t, haifa, 2)

	recent, err := st.ListTransactions(ctx, TransactionFilter{Since: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	one, err := st.ListTransactions(ctx, TransactionFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestSQLite_SaveTransactions_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	n, err := st.SaveTransactions(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_SaveValuation_Nil(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.SaveValuation(context.Background(), "x", nil)
	assert.Error(t, err)
}
