package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/comps-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	label           TEXT NOT NULL DEFAULT '',
	estimated_value REAL NOT NULL DEFAULT 0,
	confidence      TEXT NOT NULL DEFAULT '',
	findings        INTEGER NOT NULL DEFAULT 0,
	payload         TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS transactions (
	id         TEXT PRIMARY KEY,
	city       TEXT NOT NULL,
	sale_date  TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_transactions_city_date ON transactions(city, sale_date);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveValuation(ctx context.Context, label string, result *model.ValuationResult) (*model.Run, error) {
	run, err := newValuationRun(label, result)
	if err != nil {
		return nil, err
	}
	if err := s.insertRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) SaveAnomalyScan(ctx context.Context, label string, reports []model.AnomalyReport) (*model.Run, error) {
	run, err := newAnomalyRun(label, reports)
	if err != nil {
		return nil, err
	}
	if err := s.insertRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) insertRun(ctx context.Context, r *model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, label, estimated_value, confidence, findings, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), r.Label, r.EstimatedValue, string(r.Confidence), r.Findings, string(r.Payload), r.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert run %s", r.ID)
}

const sqliteRunColumns = `id, kind, label, estimated_value, confidence, findings, payload, created_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Label != "" {
		query += ` AND label LIKE ?`
		args = append(args, "%"+filter.Label+"%")
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveTransactions(ctx context.Context, txs []model.Transaction) (int64, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transactions (id, city, sale_date, data, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET city = excluded.city, sale_date = excluded.sale_date,
		 data = excluded.data, updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare transaction upsert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var n int64
	for _, t := range txs {
		data, err := json.Marshal(t)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal transaction %s", t.ID)
		}
		if _, err := stmt.ExecContext(ctx, t.ID, cityKey(t.City), t.Date.Format(time.DateOnly), string(data), now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert transaction %s", t.ID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit transactions")
	}
	return n, nil
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error) {
	query := `SELECT data FROM transactions WHERE 1=1`
	var args []any

	if filter.City != "" {
		query += ` AND city = ?`
		args = append(args, cityKey(filter.City))
	}
	if !filter.Since.IsZero() {
		query += ` AND sale_date >= ?`
		args = append(args, filter.Since.Format(time.DateOnly))
	}
	query += ` ORDER BY sale_date DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list transactions")
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan transaction")
		}
		var t model.Transaction
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal transaction")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list transactions iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var kind, confidence, payload string

	err := row.Scan(&r.ID, &kind, &r.Label, &r.EstimatedValue, &confidence, &r.Findings, &payload, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.Kind = model.RunKind(kind)
	r.Confidence = model.ConfidenceLabel(confidence)
	r.Payload = json.RawMessage(payload)
	return &r, nil
}

// cityKey is the case-insensitive lookup key of a city.
func cityKey(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
