package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

// StateCurrentExportJob is the sync_state key holding the current export job id.
const StateCurrentExportJob = "export.current_job"

// ErrExportJobNotFound is returned for unknown export job ids.
var ErrExportJobNotFound = errors.New("export job not found")

// ExportRepository persists export jobs and the small sync_state key/value table.
type ExportRepository struct {
	db *sqlx.DB
}

// NewExportRepository creates a new export repository.
func NewExportRepository(db *sqlx.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// StartJob records job and makes it the current export job in one transaction.
func (r *ExportRepository) StartJob(ctx context.Context, job *domain.ExportJob) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = tx.QueryRowxContext(ctx, `
		INSERT INTO export_jobs (job_id, status, "cursor", written, temp_path)
		VALUES ($1, $2, 0, 0, $3)
		RETURNING started_at, updated_at`,
		job.JobID, domain.ExportRunning, job.TempPath,
	).Scan(&job.StartedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert export job: %w", err)
	}

	if _, err = tx.ExecContext(ctx, upsertStateQuery, StateCurrentExportJob, job.JobID); err != nil {
		return fmt.Errorf("failed to set current export job: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit export job: %w", err)
	}
	job.Status = domain.ExportRunning
	return nil
}

// GetJob loads one export job.
func (r *ExportRepository) GetJob(ctx context.Context, jobID string) (*domain.ExportJob, error) {
	var job domain.ExportJob
	err := r.db.GetContext(ctx, &job, `
		SELECT job_id, status, "cursor", written, temp_path, started_at, updated_at
		FROM export_jobs WHERE job_id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExportJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get export job %s: %w", jobID, err)
	}
	return &job, nil
}

// SaveProgress stores the cursor and written count after a page is flushed.
func (r *ExportRepository) SaveProgress(ctx context.Context, jobID string, cursor int64, written int) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE export_jobs SET "cursor" = $2, written = $3, updated_at = NOW()
		WHERE job_id = $1`, jobID, cursor, written); err != nil {
		return fmt.Errorf("failed to save export progress: %w", err)
	}
	return nil
}

// FinishJob sets the terminal status of a job.
func (r *ExportRepository) FinishJob(ctx context.Context, jobID string, status domain.ExportStatus) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE export_jobs SET status = $2, updated_at = NOW() WHERE job_id = $1`, jobID, status); err != nil {
		return fmt.Errorf("failed to finish export job %s: %w", jobID, err)
	}
	return nil
}

// CurrentJobID returns the id recorded as the current export job, or "".
func (r *ExportRepository) CurrentJobID(ctx context.Context) (string, error) {
	return r.GetState(ctx, StateCurrentExportJob)
}

const upsertStateQuery = `
	INSERT INTO sync_state (key, value, updated_at) VALUES ($1, $2, NOW())
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

// GetState reads a sync_state value; a missing key yields "".
func (r *ExportRepository) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.GetContext(ctx, &value, `SELECT value FROM sync_state WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read state %s: %w", key, err)
	}
	return value, nil
}

// SetState writes a sync_state value.
func (r *ExportRepository) SetState(ctx context.Context, key, value string) error {
	if _, err := r.db.ExecContext(ctx, upsertStateQuery, key, value); err != nil {
		return fmt.Errorf("failed to write state %s: %w", key, err)
	}
	return nil
}
