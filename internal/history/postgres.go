package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Be-Wagile-India/pypss/internal/model"
)

// Postgres stores history in a shared Postgres database, for deployments
// where multiple hosts report into one regression window.
type Postgres struct {
	pool      *pgxpool.Pool
	retention time.Duration
}

// NewPostgres connects to the database at dsn and ensures the history table
// exists. The connection is verified with a ping so a misconfigured backend
// fails at startup.
func NewPostgres(ctx context.Context, dsn string, retention time.Duration) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping postgres: %w", err)
	}

	p := &Postgres{pool: pool, retention: retention}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pss_history (
			id         BIGSERIAL PRIMARY KEY,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			pss        DOUBLE PRECISION NOT NULL,
			ts         DOUBLE PRECISION NOT NULL,
			ms         DOUBLE PRECISION NOT NULL,
			ev         DOUBLE PRECISION NOT NULL,
			be         DOUBLE PRECISION NOT NULL,
			cc         DOUBLE PRECISION NOT NULL,
			meta       JSONB NOT NULL DEFAULT '{}'::jsonb
		);
		CREATE INDEX IF NOT EXISTS idx_pss_history_recorded_at ON pss_history (recorded_at)`)
	if err != nil {
		return fmt.Errorf("history: create history table: %w", err)
	}
	return nil
}

// Append inserts the record and prunes expired rows.
func (p *Postgres) Append(ctx context.Context, rec model.HistoryRecord) error {
	if p.retention > 0 {
		cutoff := time.Now().Add(-p.retention)
		if _, err := p.pool.Exec(ctx,
			`DELETE FROM pss_history WHERE recorded_at < $1`, cutoff); err != nil {
			return fmt.Errorf("history: prune: %w", err)
		}
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	meta := rec.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO pss_history (recorded_at, pss, ts, ms, ev, be, cc, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ts, rec.PSS,
		rec.Scores.TS, rec.Scores.MS, rec.Scores.EV, rec.Scores.BE, rec.Scores.CC,
		meta,
	)
	if err != nil {
		return fmt.Errorf("history: insert record: %w", err)
	}
	return nil
}

// Recent returns the latest n records, newest first.
func (p *Postgres) Recent(ctx context.Context, n int) ([]model.HistoryRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT recorded_at, pss, ts, ms, ev, be, cc, meta
		FROM pss_history ORDER BY recorded_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()
	return collectRows(rows)
}

// Since returns all records within the trailing window d, newest first.
func (p *Postgres) Since(ctx context.Context, d time.Duration) ([]model.HistoryRecord, error) {
	cutoff := time.Now().Add(-d)
	rows, err := p.pool.Query(ctx, `
		SELECT recorded_at, pss, ts, ms, ev, be, cc, meta
		FROM pss_history WHERE recorded_at >= $1 ORDER BY recorded_at DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("history: query since: %w", err)
	}
	defer rows.Close()
	return collectRows(rows)
}

func collectRows(rows pgx.Rows) ([]model.HistoryRecord, error) {
	var recs []model.HistoryRecord
	for rows.Next() {
		var rec model.HistoryRecord
		if err := rows.Scan(&rec.Timestamp, &rec.PSS,
			&rec.Scores.TS, &rec.Scores.MS, &rec.Scores.EV, &rec.Scores.BE, &rec.Scores.CC,
			&rec.Meta); err != nil {
			return nil, fmt.Errorf("history: scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate records: %w", err)
	}
	return recs, nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
