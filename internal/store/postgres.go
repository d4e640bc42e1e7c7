package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/comps-cli/internal/db"
	"github.com/sells-group/comps-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	kind            TEXT NOT NULL,
	label           TEXT NOT NULL DEFAULT '',
	estimated_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence      TEXT NOT NULL DEFAULT '',
	findings        INTEGER NOT NULL DEFAULT 0,
	payload         JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transactions (
	id         TEXT PRIMARY KEY,
	city       TEXT NOT NULL,
	sale_date  DATE NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_city_date ON transactions(city, sale_date DESC);
`

const transactionsTable = "transactions"

var transactionColumns = []string{"id", "city", "sale_date", "data", "updated_at"}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveValuation(ctx context.Context, label string, result *model.ValuationResult) (*model.Run, error) {
	run, err := newValuationRun(label, result)
	if err != nil {
		return nil, err
	}
	if err := s.insertRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *PostgresStore) SaveAnomalyScan(ctx context.Context, label string, reports []model.AnomalyReport) (*model.Run, error) {
	run, err := newAnomalyRun(label, reports)
	if err != nil {
		return nil, err
	}
	if err := s.insertRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *PostgresStore) insertRun(ctx context.Context, r *model.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, kind, label, estimated_value, confidence, findings, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, string(r.Kind), r.Label, r.EstimatedValue, string(r.Confidence), r.Findings, []byte(r.Payload), r.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert run %s", r.ID)
}

const postgresRunColumns = `id, kind, label, estimated_value, confidence, findings, payload, created_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPostgresRun(s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`,
		runID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.Label != "" {
		query += fmt.Sprintf(` AND label ILIKE $%d`, argIdx)
		args = append(args, "%"+filter.Label+"%")
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, limitOrDefault(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveTransactions bulk-upserts through a COPY staging table.
func (s *PostgresStore) SaveTransactions(ctx context.Context, txs []model.Transaction) (int64, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(txs))
	for _, t := range txs {
		data, err := json.Marshal(t)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal transaction %s", t.ID)
		}
		rows = append(rows, []any{t.ID, cityKey(t.City), t.Date, data, now})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        transactionsTable,
		Columns:      transactionColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: save transactions")
}

func (s *PostgresStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error) {
	query := `SELECT data FROM transactions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.City != "" {
		query += fmt.Sprintf(` AND city = $%d`, argIdx)
		args = append(args, cityKey(filter.City))
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND sale_date >= $%d`, argIdx)
		args = append(args, filter.Since)
		argIdx++
	}
	query += ` ORDER BY sale_date DESC, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list transactions")
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan transaction")
		}
		var t model.Transaction
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal transaction")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list transactions iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var kind, confidence string
	var payload []byte

	if err := row.Scan(&r.ID, &kind, &r.Label, &r.EstimatedValue, &confidence, &r.Findings, &payload, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Kind = model.RunKind(kind)
	r.Confidence = model.ConfidenceLabel(confidence)
	r.Payload = json.RawMessage(payload)
	return &r, nil
}
