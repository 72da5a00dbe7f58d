package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ahmethakanbesel/cartoon-api/internal/apperror"
	domain "github.com/ahmethakanbesel/cartoon-api/internal/job"
)

// Fixed width so stored timestamps order lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const selectJob = `SELECT id, status, progress, result_url, error, created_at, updated_at FROM jobs`

type Repository struct {
	db  *sql.DB
	now func() time.Time

	// Serializes read-modify-write transactions; SQLite allows one writer.
	mu sync.Mutex
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *Repository) Create(ctx context.Context, id string) error {
	const query = `INSERT INTO jobs (id, status, progress, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(id) DO NOTHING`

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().Format(timeFormat)
	res, err := r.db.ExecContext(ctx, query, id, string(domain.StatusProcessing), now, now)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	if n == 0 {
		return apperror.New(apperror.Conflict, "job already exists")
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*domain.Job, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (r *Repository) Update(ctx context.Context, id string, fn func(*domain.Job)) error {
	const query = `UPDATE jobs SET status = ?, progress = ?, result_url = ?, error = ?, updated_at = ?
		WHERE id = ?`

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update job: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	j, err := scanJob(tx.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		slog.Warn("update of unknown job ignored", "job", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("update job: select: %w", err)
	}

	before := *j
	fn(j)
	if *j == before {
		return nil
	}
	j.UpdatedAt = r.now()

	_, err = tx.ExecContext(ctx, query,
		string(j.Status), j.Progress,
		nullString(j.ResultURL), nullString(j.Error),
		j.UpdatedAt.Format(timeFormat), id,
	)
	if err != nil {
		return fmt.Errorf("update job: exec: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update job: commit: %w", err)
	}
	return nil
}

func (r *Repository) Prune(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM jobs WHERE status IN ('done', 'error') AND updated_at < ?`

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, query, before.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) FailStale(ctx context.Context, reason string) (int64, error) {
	const query = `UPDATE jobs SET status = 'error', error = ?, updated_at = ?
		WHERE status = 'processing'`

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, query, reason, r.now().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	j := &domain.Job{}
	var status, createdStr, updatedStr string
	var resultURL, dbErr sql.NullString

	if err := row.Scan(&j.ID, &status, &j.Progress, &resultURL, &dbErr, &createdStr, &updatedStr); err != nil {
		return nil, err
	}

	j.Status = domain.Status(status)
	j.ResultURL = resultURL.String
	j.Error = dbErr.String
	j.CreatedAt, _ = time.Parse(timeFormat, createdStr)
	j.UpdatedAt, _ = time.Parse(timeFormat, updatedStr)
	return j, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
