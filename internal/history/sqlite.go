package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/Be-Wagile-India/pypss/internal/model"
)

const sqliteSchemaVersion = 1

// SQLite stores history in an embedded SQLite database. Suitable for
// single-host deployments and local development.
type SQLite struct {
	db        *sql.DB
	retention time.Duration // 0 = keep forever
}

// NewSQLite opens (creating if needed) the history database at path.
// Records older than retention are pruned opportunistically on Append.
func NewSQLite(path string, retention time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite %s: %w", path, err)
	}
	// SQLite allows one writer; serializing through a single connection
	// avoids SQLITE_BUSY under the pipeline's low write rate.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, retention: retention}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS _meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`)
	if err != nil {
		return fmt.Errorf("history: create meta table: %w", err)
	}

	var version int
	err = s.db.QueryRow(`SELECT value FROM _meta WHERE key = 'version'`).Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		version = 0
	case err != nil:
		return fmt.Errorf("history: read schema version: %w", err)
	}

	if version == 0 {
		_, err = s.db.Exec(`
			CREATE TABLE IF NOT EXISTS pss_history (
				id        INTEGER PRIMARY KEY AUTOINCREMENT,
				timestamp REAL NOT NULL,
				pss       REAL NOT NULL,
				ts        REAL NOT NULL,
				ms        REAL NOT NULL,
				ev        REAL NOT NULL,
				be        REAL NOT NULL,
				cc        REAL NOT NULL,
				meta      TEXT NOT NULL DEFAULT '{}'
			);
			CREATE INDEX IF NOT EXISTS idx_pss_history_timestamp ON pss_history (timestamp)`)
		if err != nil {
			return fmt.Errorf("history: create history table: %w", err)
		}
		_, err = s.db.Exec(`INSERT OR REPLACE INTO _meta (key, value) VALUES ('version', ?)`,
			sqliteSchemaVersion)
		if err != nil {
			return fmt.Errorf("history: record schema version: %w", err)
		}
	}
	return nil
}

// Append inserts the record and prunes expired rows.
func (s *SQLite) Append(ctx context.Context, rec model.HistoryRecord) error {
	if err := s.prune(ctx); err != nil {
		return err
	}

	metaJSON, err := json.Marshal(rec.Meta)
	if err != nil {
		return fmt.Errorf("history: marshal meta: %w", err)
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pss_history (timestamp, pss, ts, ms, ev, be, cc, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		float64(ts.UnixNano())/1e9,
		rec.PSS, rec.Scores.TS, rec.Scores.MS, rec.Scores.EV, rec.Scores.BE, rec.Scores.CC,
		string(metaJSON),
	)
	if err != nil {
		return fmt.Errorf("history: insert record: %w", err)
	}
	return nil
}

func (s *SQLite) prune(ctx context.Context) error {
	if s.retention <= 0 {
		return nil
	}
	cutoff := float64(time.Now().Add(-s.retention).UnixNano()) / 1e9
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pss_history WHERE timestamp < ?`, cutoff); err != nil {
		return fmt.Errorf("history: prune: %w", err)
	}
	return nil
}

// Recent returns the latest n records, newest first.
func (s *SQLite) Recent(ctx context.Context, n int) ([]model.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, pss, ts, ms, ev, be, cc, meta
		FROM pss_history ORDER BY timestamp DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Since returns all records within the trailing window d, newest first.
func (s *SQLite) Since(ctx context.Context, d time.Duration) ([]model.HistoryRecord, error) {
	cutoff := float64(time.Now().Add(-d).UnixNano()) / 1e9
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, pss, ts, ms, ev, be, cc, meta
		FROM pss_history WHERE timestamp >= ? ORDER BY timestamp DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("history: query since: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]model.HistoryRecord, error) {
	var recs []model.HistoryRecord
	for rows.Next() {
		var (
			epoch float64
			rec   model.HistoryRecord
			meta  string
		)
		if err := rows.Scan(&epoch, &rec.PSS,
			&rec.Scores.TS, &rec.Scores.MS, &rec.Scores.EV, &rec.Scores.BE, &rec.Scores.CC,
			&meta); err != nil {
			return nil, fmt.Errorf("history: scan record: %w", err)
		}
		rec.Timestamp = time.Unix(0, int64(epoch*1e9))
		if meta != "" && meta != "{}" {
			_ = json.Unmarshal([]byte(meta), &rec.Meta)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate records: %w", err)
	}
	return recs, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
