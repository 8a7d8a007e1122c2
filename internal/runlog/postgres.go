package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/driftwatch/driftwatch/internal/orchestrator"
)

const (
	postgresRunTableName     = "driftwatch_runs"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

type PostgresRecorder struct {
	dsn       string
	tableName string
	limit     int
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresRecorder(dsn string) (*PostgresRecorder, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresRecorder{
		dsn:       dsn,
		tableName: postgresRunTableName,
		limit:     defaultHistoryLimit,
		openDB:    sql.Open,
	}, nil
}

func (r *PostgresRecorder) Record(run orchestrator.PipelineRun) error {
	if run.TargetID == "" {
		return ErrInvalidInput
	}
	if err := r.ensureReady(); err != nil {
		return err
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(
		"INSERT INTO %s (run_id, target_id, outcome, finished_at, payload) VALUES ($1, $2, $3, $4, $5)",
		postgresQuoteIdentifier(r.tableName),
	)
	_, err = r.db.ExecContext(ctx, query, run.ID, run.TargetID, string(run.Outcome), run.FinishedAt, string(payload))
	return err
}

func (r *PostgresRecorder) LastRun(targetID string) (orchestrator.PipelineRun, bool) {
	runs := r.Runs(targetID, 1)
	if len(runs) == 0 {
		return orchestrator.PipelineRun{}, false
	}
	return runs[0], true
}

func (r *PostgresRecorder) Runs(targetID string, limit int) []orchestrator.PipelineRun {
	if err := r.ensureReady(); err != nil {
		return nil
	}
	if limit <= 0 || limit > r.limit {
		limit = r.limit
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(
		"SELECT payload FROM %s WHERE target_id = $1 ORDER BY id DESC LIMIT $2",
		postgresQuoteIdentifier(r.tableName),
	)
	rows, err := r.db.QueryContext(ctx, query, targetID, limit)
	if err != nil {
		return nil
	}
	defer rows.Close()

	runs := make([]orchestrator.PipelineRun, 0, limit)
	for rows.Next() {
		var payload string
		if scanErr := rows.Scan(&payload); scanErr != nil {
			continue
		}
		var run orchestrator.PipelineRun
		if err := json.Unmarshal([]byte(payload), &run); err != nil {
			continue
		}
		runs = append(runs, run)
	}
	// Newest-first from the query; callers expect oldest-first.
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	return runs
}

func (r *PostgresRecorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PostgresRecorder) ensureReady() error {
	r.initOnce.Do(func() {
		db, err := r.openDB("postgres", r.dsn)
		if err != nil {
			r.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				run_id TEXT NOT NULL,
				target_id TEXT NOT NULL,
				outcome TEXT NOT NULL,
				finished_at TIMESTAMPTZ NOT NULL,
				payload TEXT NOT NULL
			)`, postgresQuoteIdentifier(r.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			r.initErr = err
			return
		}
		indexName := r.tableName + "_target_id_id_idx"
		indexQuery := fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s (target_id, id)",
			postgresQuoteIdentifier(indexName),
			postgresQuoteIdentifier(r.tableName),
		)
		if _, err := db.ExecContext(ctx, indexQuery); err != nil {
			_ = db.Close()
			r.initErr = err
			return
		}
		r.db = db
	})
	return r.initErr
}

func postgresQuoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
