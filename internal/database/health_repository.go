package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

const healthColumns = `id, source_id, source_kind, source_url, link_url, link_text, link_type,
	is_nofollow, is_sponsored, is_ugc, status_code, status_text, redirect_count, redirect_url,
	final_url, response_time_ms, error_message, target_content_id, target_is_noindex, last_checked`

// HealthRepository stores one row per anchor per scanned content item.
type HealthRepository struct {
	db *sqlx.DB
}

// NewHealthRepository creates a new link health repository.
func NewHealthRepository(db *sqlx.DB) *HealthRepository {
	return &HealthRepository{db: db}
}

// ReplaceForSource swaps all rows of one content item for rows.
func (r *HealthRepository) ReplaceForSource(
	ctx context.Context, sourceID string, kind domain.ContentKind, rows []domain.LinkHealthRecord,
) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM link_health WHERE source_id = $1 AND source_kind = $2`, sourceID, kind); err != nil {
		return fmt.Errorf("failed to clear link health for %s: %w", sourceID, err)
	}

	for i := range rows {
		row := &rows[i]
		if _, err = tx.NamedExecContext(ctx, `
			INSERT INTO link_health (source_id, source_kind, source_url, link_url, link_text,
				link_type, is_nofollow, is_sponsored, is_ugc)
			VALUES (:source_id, :source_kind, :source_url, :link_url, :link_text,
				:link_type, :is_nofollow, :is_sponsored, :is_ugc)`, row); err != nil {
			return fmt.Errorf("failed to insert link health row: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit link health rows: %w", err)
	}
	return nil
}

// ListPending returns up to limit rows that have never been checked.
func (r *HealthRepository) ListPending(ctx context.Context, limit int) ([]domain.LinkHealthRecord, error) {
	rows := []domain.LinkHealthRecord{}
	query := `SELECT ` + healthColumns + ` FROM link_health WHERE last_checked IS NULL ORDER BY id LIMIT $1`
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list pending link checks: %w", err)
	}
	return rows, nil
}

// SaveResult records a check outcome.
func (r *HealthRepository) SaveResult(ctx context.Context, row *domain.LinkHealthRecord) error {
	_, err := r.db.NamedExecContext(ctx, `
		UPDATE link_health SET
			status_code = :status_code,
			status_text = :status_text,
			redirect_count = :redirect_count,
			redirect_url = :redirect_url,
			final_url = :final_url,
			response_time_ms = :response_time_ms,
			error_message = :error_message,
			target_content_id = :target_content_id,
			target_is_noindex = :target_is_noindex,
			last_checked = :last_checked
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("failed to save link check %d: %w", row.ID, err)
	}
	return nil
}

// Stats computes predicate counts over all rows. The predicates mirror
// domain.LinkHealthRecord's IsOK/IsBroken/IsRedirect.
func (r *HealthRepository) Stats(ctx context.Context) (domain.HealthStats, error) {
	var stats domain.HealthStats
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE last_checked IS NOT NULL) AS checked,
			COUNT(*) FILTER (WHERE last_checked IS NULL) AS pending,
			COUNT(*) FILTER (WHERE last_checked IS NOT NULL
				AND status_code >= 200 AND status_code < 300) AS ok,
			COUNT(*) FILTER (WHERE last_checked IS NOT NULL
				AND (status_code >= 400 OR status_code = 0 OR error_message <> '')) AS broken,
			COUNT(*) FILTER (WHERE last_checked IS NOT NULL
				AND (redirect_count > 0 OR (status_code >= 300 AND status_code < 400))) AS redirect,
			COUNT(*) FILTER (WHERE target_is_noindex) AS noindex,
			COUNT(*) FILTER (WHERE link_type = 'internal') AS internal,
			COUNT(*) FILTER (WHERE link_type = 'external') AS external,
			COUNT(*) FILTER (WHERE is_nofollow) AS nofollow
		FROM link_health`
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return stats, fmt.Errorf("failed to compute link health stats: %w", err)
	}
	return stats, nil
}

// ListBroken returns checked rows that failed, worst first.
func (r *HealthRepository) ListBroken(ctx context.Context, limit int) ([]domain.LinkHealthRecord, error) {
	rows := []domain.LinkHealthRecord{}
	query := `SELECT ` + healthColumns + ` FROM link_health
		WHERE last_checked IS NOT NULL AND (status_code >= 400 OR status_code = 0 OR error_message <> '')
		ORDER BY status_code DESC, id LIMIT $1`
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list broken links: %w", err)
	}
	return rows, nil
}
