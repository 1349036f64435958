package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

const contentColumns = `id, origin, native_id, kind, title, url, category_paths, focus_keyword,
	secondary_keywords, word_count, excerpt, linkable, price, stock_status, last_synced`

// ContentRepository is the content store: indexed records keyed by (origin, native id, kind).
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository creates a new content repository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// ReplaceOrigin deletes every record of origin and inserts records, in one
// transaction. Readers never observe a half-replaced origin. Records repeating
// an earlier (native id, kind) pair are skipped; the returned count is the
// number of rows actually stored.
func (r *ContentRepository) ReplaceOrigin(
	ctx context.Context, origin string, records []domain.ContentRecord,
) (inserted int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM content_records WHERE origin = $1`, origin); err != nil {
		return 0, fmt.Errorf("failed to clear origin %s: %w", origin, err)
	}

	if len(records) > 0 {
		stmt, prepErr := tx.PreparexContext(ctx, `
			INSERT INTO content_records (origin, native_id, kind, title, url, category_paths,
				focus_keyword, secondary_keywords, word_count, excerpt, linkable, price,
				stock_status, last_synced)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (origin, native_id, kind) DO NOTHING`)
		if prepErr != nil {
			err = prepErr
			return 0, fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for i := range records {
			rec := &records[i]
			res, execErr := stmt.ExecContext(ctx,
				origin, rec.NativeID, rec.Kind, rec.Title, rec.URL, rec.CategoryPaths,
				rec.FocusKeyword, rec.SecondaryKeywords, rec.WordCount, rec.Excerpt,
				rec.Linkable, rec.Price, rec.StockStatus, now,
			)
			if execErr != nil {
				err = execErr
				return 0, fmt.Errorf("failed to insert content %s/%s: %w", rec.Kind, rec.NativeID, err)
			}
			n, affErr := res.RowsAffected()
			if affErr != nil {
				err = affErr
				return 0, fmt.Errorf("failed to read insert result: %w", err)
			}
			inserted += int(n)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit origin replacement: %w", err)
	}
	return inserted, nil
}

// ListByOrigin returns every record of origin ordered by kind and id.
func (r *ContentRepository) ListByOrigin(ctx context.Context, origin string) ([]domain.ContentRecord, error) {
	records := []domain.ContentRecord{}
	query := `SELECT ` + contentColumns + ` FROM content_records WHERE origin = $1 ORDER BY kind, native_id`
	if err := r.db.SelectContext(ctx, &records, query, origin); err != nil {
		return nil, fmt.Errorf("failed to list content for origin %s: %w", origin, err)
	}
	return records, nil
}

// Find returns the record for (origin, nativeID, kind) or nil when absent.
// An empty kind matches any kind; the first by kind order wins.
func (r *ContentRepository) Find(
	ctx context.Context, origin, nativeID string, kind domain.ContentKind,
) (*domain.ContentRecord, error) {
	var rec domain.ContentRecord
	query := `SELECT ` + contentColumns + ` FROM content_records
		WHERE origin = $1 AND native_id = $2 AND ($3 = '' OR kind = $3)
		ORDER BY kind LIMIT 1`
	err := r.db.GetContext(ctx, &rec, query, origin, nativeID, string(kind))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find content %s/%s: %w", origin, nativeID, err)
	}
	return &rec, nil
}

// CountByOrigin returns record counts keyed by origin.
func (r *ContentRepository) CountByOrigin(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT origin, COUNT(*) FROM content_records GROUP BY origin`)
	if err != nil {
		return nil, fmt.Errorf("failed to count content: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var origin string
		var n int
		if scanErr := rows.Scan(&origin, &n); scanErr != nil {
			return nil, fmt.Errorf("failed to scan count: %w", scanErr)
		}
		counts[origin] = n
	}
	return counts, rows.Err()
}

// AnalysisPage returns up to limit records with id > afterID, each joined with
// its link counters, for snapshot export. localRole maps the local origin to
// the site name used on pending links.
func (r *ContentRepository) AnalysisPage(
	ctx context.Context, localRole string, afterID int64, limit int,
) ([]domain.ContentAnalysis, error) {
	rows := []domain.ContentAnalysis{}
	query := `
		SELECT c.id, c.origin, c.native_id, c.kind, c.title, c.url, c.category_paths, c.focus_keyword,
			c.secondary_keywords, c.word_count, c.excerpt, c.linkable, c.price, c.stock_status, c.last_synced,
			COUNT(*) FILTER (WHERE pl.status = 'active')                       AS active_links,
			COUNT(*) FILTER (WHERE pl.status IN ('pending', 'approved'))       AS pending_links,
			(SELECT COUNT(*) FROM pending_links ib
				WHERE ib.target_id = c.native_id AND ib.status = 'active'
				AND ib.target_site = CASE WHEN c.origin = 'local' THEN $3 ELSE c.origin END) AS inbound_links,
			(SELECT COUNT(*) FROM link_health lh
				WHERE lh.source_id = c.native_id AND c.origin = 'local'
				AND lh.last_checked IS NOT NULL
				AND (lh.status_code >= 400 OR lh.status_code = 0 OR lh.error_message <> '')) AS broken_anchors
		FROM content_records c
		LEFT JOIN pending_links pl ON pl.source_id = c.native_id
			AND pl.source_site = CASE WHEN c.origin = 'local' THEN $3 ELSE c.origin END
		WHERE c.id > $1
		GROUP BY c.id
		ORDER BY c.id
		LIMIT $2`
	if err := r.db.SelectContext(ctx, &rows, query, afterID, limit, localRole); err != nil {
		return nil, fmt.Errorf("failed to load analysis page after %d: %w", afterID, err)
	}
	return rows, nil
}
