// Package postgres mirrors committed result tables into a PostgreSQL table so
// they can be queried with SQL.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/carbon-emission-etl/internal/domain"
)

const tableName = "emission_results"

const createTable = `
CREATE TABLE IF NOT EXISTS emission_results (
	domain        TEXT             NOT NULL,
	record_id     TEXT             NOT NULL,
	run_id        TEXT             NOT NULL,
	city          TEXT             NOT NULL,
	lat           DOUBLE PRECISION,
	lon           DOUBLE PRECISION,
	predicted_co2 DOUBLE PRECISION NOT NULL,
	status        TEXT             NOT NULL,
	fields        JSONB            NOT NULL,
	completed_at  TIMESTAMPTZ      NOT NULL,
	PRIMARY KEY (domain, record_id)
)`

var copyColumns = []string{
	"domain", "record_id", "run_id", "city", "lat", "lon",
	"predicted_co2", "status", "fields", "completed_at",
}

// db is the subset of *pgxpool.Pool the mirror uses.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Mirror replaces the rows of a domain with each committed result batch.
// It implements domain.ResultSink.
type Mirror struct {
	db     db
	logger *slog.Logger
}

// Connect opens a pool for dsn, pings it and creates the results table.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Mirror, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}
	m := NewMirror(pool, logger)
	if err := m.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return m, pool, nil
}

// NewMirror wraps an existing pool.
func NewMirror(db db, logger *slog.Logger) *Mirror {
	return &Mirror{db: db, logger: logger}
}

// EnsureSchema creates the results table when it does not exist.
func (m *Mirror) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create %s: %w", tableName, err)
	}
	return nil
}

// Name identifies the sink in logs and metrics.
func (m *Mirror) Name() string { return "postgres" }

// Publish deletes the domain's previous rows and bulk-copies the new ones in
// one transaction, so SQL readers never see a mix of two runs.
func (m *Mirror) Publish(ctx context.Context, batch domain.ResultBatch) (err error) {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "DELETE FROM "+tableName+" WHERE domain = $1", string(batch.Domain)); err != nil {
		return fmt.Errorf("delete %s rows: %w", batch.Domain, err)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{tableName}, copyColumns, pgx.CopyFromRows(copyRows(batch)))
	if err != nil {
		return fmt.Errorf("copy %s rows: %w", batch.Domain, err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	m.logger.Debug("results mirrored", "domain", batch.Domain, "run_id", batch.RunID, "rows", n)
	return nil
}

func copyRows(batch domain.ResultBatch) [][]any {
	rows := make([][]any, len(batch.Records))
	for i, rec := range batch.Records {
		fields := make(map[string]string, len(rec.Record.Cells))
		for j, h := range batch.Table.Header {
			if j < len(rec.Record.Cells) {
				fields[h] = rec.Record.Cells[j]
			}
		}
		var lat, lon *float64
		if rec.Coord.Valid {
			la, lo := rec.Coord.Lat, rec.Coord.Lon
			lat, lon = &la, &lo
		}
		rows[i] = []any{
			string(batch.Domain),
			rec.Record.ID,
			batch.RunID,
			rec.Record.City,
			lat,
			lon,
			rec.PredictedCO2,
			string(rec.Status),
			fields,
			batch.CompletedAt,
		}
	}
	return rows
}
