package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical/quizgen/internal/config"
	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/observability"
)

// Ledger records batches and task outcomes in SQLite or Postgres.
type Ledger struct {
	db     *sql.DB
	logger *observability.Logger
}

// Open connects to the configured database and applies migrations.
func Open(ctx context.Context, cfg config.LedgerConfig, logger *observability.Logger) (*Ledger, error) {
	if logger == nil {
		logger = observability.Nop()
	}

	var driverName, dsn string
	switch cfg.Driver {
	case "", "sqlite":
		driverName, dsn = "sqlite3", cfg.SQLite.Path
		if dsn == "" {
			dsn = ":memory:"
		}
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, domain.PersistenceError("create ledger directory", err)
			}
		}
	case "postgres":
		driverName, dsn = "postgres", cfg.Postgres.DSN
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown ledger driver %q", cfg.Driver), nil)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, domain.PersistenceError("open ledger", err)
	}
	if driverName == "sqlite3" {
		// One writer, and one shared database for :memory:.
		db.SetMaxOpenConns(1)
	} else if cfg.Postgres.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, domain.PersistenceError("connect ledger", err)
	}

	migrateDB := db
	if driverName == "postgres" {
		if migrateDB, err = sql.Open(driverName, dsn); err != nil {
			db.Close()
			return nil, domain.PersistenceError("open ledger for migration", err)
		}
	}
	if err := Migrate(migrateDB, driverName); err != nil {
		db.Close()
		return nil, domain.PersistenceError("migrate ledger", err)
	}

	logger.Debug().Str("driver", driverName).Msg("Ledger ready")
	return &Ledger{db: db, logger: logger.WithOperation("ledger")}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartBatch inserts a running batch.
func (l *Ledger) StartBatch(ctx context.Context, batch domain.Batch) error {
	query := `
		INSERT INTO batches (id, name, status, task_count, started_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, status = excluded.status,
			task_count = excluded.task_count, started_at = excluded.started_at
	`
	_, err := l.db.ExecContext(ctx, query, batch.ID, batch.Name, string(BatchRunning), len(batch.Tasks), time.Now().UTC())
	if err != nil {
		return domain.PersistenceError("insert batch", err)
	}
	return nil
}

// RecordResult stores one task outcome. A repeated task replaces the earlier row.
func (l *Ledger) RecordResult(ctx context.Context, batchID string, r domain.TaskResult) error {
	query := `
		INSERT INTO task_results (batch_id, task_id, output_name, kind, state, tier,
			artifact_path, debug_path, error_message, cancelled, duration_ms, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (batch_id, task_id) DO UPDATE SET
			output_name = excluded.output_name, kind = excluded.kind, state = excluded.state,
			tier = excluded.tier, artifact_path = excluded.artifact_path, debug_path = excluded.debug_path,
			error_message = excluded.error_message, cancelled = excluded.cancelled,
			duration_ms = excluded.duration_ms, recorded_at = excluded.recorded_at
	`
	_, err := l.db.ExecContext(ctx, query,
		batchID, r.TaskID, r.OutputName, string(r.Kind), string(r.State()), int(r.Tier),
		r.ArtifactPath, r.DebugPath, r.ErrorMessage, r.Cancelled, r.Duration.Milliseconds(), time.Now().UTC(),
	)
	if err != nil {
		return domain.PersistenceError("insert task result", err)
	}
	return nil
}

// FinishBatch stores the batch totals.
func (l *Ledger) FinishBatch(ctx context.Context, report *domain.BatchReport) error {
	status := BatchFinished
	if report.Cancelled > 0 {
		status = BatchStopped
	}
	query := `
		UPDATE batches SET status = $1, succeeded = $2, failed = $3, cancelled = $4,
			finished_at = $5, duration_ms = $6
		WHERE id = $7
	`
	res, err := l.db.ExecContext(ctx, query,
		string(status), report.Succeeded, report.Failed, report.Cancelled,
		time.Now().UTC(), report.Duration.Milliseconds(), report.BatchID,
	)
	if err != nil {
		return domain.PersistenceError("update batch", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBatches returns the most recent batches first.
func (l *Ledger) ListBatches(ctx context.Context, limit int) ([]BatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, name, status, task_count, succeeded, failed, cancelled, started_at, finished_at, duration_ms
		FROM batches ORDER BY started_at DESC, id LIMIT $1
	`
	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, domain.PersistenceError("list batches", err)
	}
	defer rows.Close()

	var out []BatchRecord
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, domain.PersistenceError("scan batch", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// GetBatch returns a batch and its task outcomes in recording order.
func (l *Ledger) GetBatch(ctx context.Context, id string) (*BatchDetail, error) {
	query := `
		SELECT id, name, status, task_count, succeeded, failed, cancelled, started_at, finished_at, duration_ms
		FROM batches WHERE id = $1
	`
	b, err := scanBatch(l.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.PersistenceError("get batch", err)
	}

	tasks, err := l.taskResults(ctx, id)
	if err != nil {
		return nil, err
	}
	return &BatchDetail{BatchRecord: *b, Tasks: tasks}, nil
}

func (l *Ledger) taskResults(ctx context.Context, batchID string) ([]TaskRecord, error) {
	query := `
		SELECT batch_id, task_id, output_name, kind, state, tier, artifact_path, debug_path,
			error_message, cancelled, duration_ms, recorded_at
		FROM task_results WHERE batch_id = $1 ORDER BY recorded_at, task_id
	`
	rows, err := l.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, domain.PersistenceError("list task results", err)
	}
	defer rows.Close()

	out := []TaskRecord{}
	for rows.Next() {
		var (
			t          TaskRecord
			kind       string
			state      string
			tier       int
			durationMS int64
		)
		if err := rows.Scan(&t.BatchID, &t.TaskID, &t.OutputName, &kind, &state, &tier,
			&t.ArtifactPath, &t.DebugPath, &t.ErrorMessage, &t.Cancelled, &durationMS, &t.RecordedAt); err != nil {
			return nil, domain.PersistenceError("scan task result", err)
		}
		t.Kind = domain.QuestionKind(kind)
		t.State = domain.TaskState(state)
		t.Tier = domain.Tier(tier)
		t.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (*BatchRecord, error) {
	var (
		b          BatchRecord
		status     string
		finished   sql.NullTime
		durationMS int64
	)
	if err := row.Scan(&b.ID, &b.Name, &status, &b.TaskCount, &b.Succeeded, &b.Failed, &b.Cancelled,
		&b.StartedAt, &finished, &durationMS); err != nil {
		return nil, err
	}
	b.Status = BatchStatus(status)
	if finished.Valid {
		t := finished.Time
		b.FinishedAt = &t
	}
	b.Duration = time.Duration(durationMS) * time.Millisecond
	return &b, nil
}
