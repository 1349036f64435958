package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

const (
	defaultLinkLimit = 50
	maxLinkLimit     = 500
)

// ErrLinkNotFound is returned when a pending link id does not exist.
var ErrLinkNotFound = errors.New("link not found")

const linkColumns = `id, fingerprint, source_site, source_id, source_kind, keyword, target_site,
	target_id, target_url, target_kind, priority, rationale, status, batch_id,
	created_at, updated_at, applied_at`

// LinkRepository stores pending links and their status history.
type LinkRepository struct {
	db *sqlx.DB
}

// NewLinkRepository creates a new link repository.
func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// Upsert inserts link or, when its fingerprint exists, refreshes the
// descriptive fields. An existing row's status only moves when it is still
// pending, so terminal rows stay terminal across re-imports.
func (r *LinkRepository) Upsert(ctx context.Context, link *domain.PendingLink) error {
	if link.Fingerprint == "" {
		link.ComputeFingerprint()
	}
	if link.Status == "" {
		link.Status = domain.StatusPending
	}
	if link.Priority == "" {
		link.Priority = domain.PriorityMedium
	}

	query := `
		INSERT INTO pending_links (fingerprint, source_site, source_id, source_kind, keyword,
			target_site, target_id, target_url, target_kind, priority, rationale, status, batch_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (fingerprint) DO UPDATE SET
			source_kind = EXCLUDED.source_kind,
			target_kind = EXCLUDED.target_kind,
			priority = EXCLUDED.priority,
			rationale = EXCLUDED.rationale,
			batch_id = COALESCE(EXCLUDED.batch_id, pending_links.batch_id),
			status = CASE WHEN pending_links.status = 'pending' THEN EXCLUDED.status
				ELSE pending_links.status END,
			updated_at = NOW()
		RETURNING id, status, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		link.Fingerprint, link.SourceSite, link.SourceID, link.SourceKind, link.Keyword,
		link.TargetSite, link.TargetID, link.TargetURL, link.TargetKind, link.Priority,
		link.Rationale, link.Status, link.BatchID,
	).Scan(&link.ID, &link.Status, &link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert link %s: %w", link.Fingerprint, err)
	}
	return nil
}

// GetByID returns one link.
func (r *LinkRepository) GetByID(ctx context.Context, id int64) (*domain.PendingLink, error) {
	var link domain.PendingLink
	err := r.db.GetContext(ctx, &link, `SELECT `+linkColumns+` FROM pending_links WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link %d: %w", id, err)
	}
	return &link, nil
}

// LinkFilter narrows List.
type LinkFilter struct {
	Statuses   []domain.LinkStatus
	SourceSite string
	SourceID   string
	Limit      int
	Offset     int
}

// List returns links matching filter, newest first, plus the total match count.
func (r *LinkRepository) List(ctx context.Context, filter LinkFilter) ([]domain.PendingLink, int, error) {
	where, args := filter.where()

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM pending_links`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count links: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLinkLimit
	}
	limit = min(limit, maxLinkLimit)

	args = append(args, limit, max(filter.Offset, 0))
	query := fmt.Sprintf(`SELECT %s FROM pending_links%s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		linkColumns, where, len(args)-1, len(args))

	links := []domain.PendingLink{}
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list links: %w", err)
	}
	return links, total, nil
}

func (f LinkFilter) where() (string, []any) {
	var clauses []string
	var args []any

	if len(f.Statuses) > 0 {
		names := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			names[i] = string(s)
		}
		args = append(args, pq.Array(names))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if f.SourceSite != "" {
		args = append(args, f.SourceSite)
		clauses = append(clauses, fmt.Sprintf("source_site = $%d", len(args)))
	}
	if f.SourceID != "" {
		args = append(args, f.SourceID)
		clauses = append(clauses, fmt.Sprintf("source_id = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListWorkQueue returns every approved or active link whose source is on sourceSite,
// ordered so rows of one source item are adjacent.
func (r *LinkRepository) ListWorkQueue(ctx context.Context, sourceSite string) ([]domain.PendingLink, error) {
	links := []domain.PendingLink{}
	query := `SELECT ` + linkColumns + ` FROM pending_links
		WHERE source_site = $1 AND status IN ('approved', 'active')
		ORDER BY source_id, id`
	if err := r.db.SelectContext(ctx, &links, query, sourceSite); err != nil {
		return nil, fmt.Errorf("failed to list work queue: %w", err)
	}
	return links, nil
}

// Transition moves every id currently in one of from to status to and records
// a link event per moved row, in a single statement. Rows in other states are
// left alone. Returns the number of rows moved.
func (r *LinkRepository) Transition(
	ctx context.Context, ids []int64, from []domain.LinkStatus, to domain.LinkStatus, reason string,
) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	for _, f := range from {
		if err := domain.ValidateTransition(f, to); err != nil {
			return 0, err
		}
	}

	fromNames := make([]string, len(from))
	for i, f := range from {
		fromNames[i] = string(f)
	}

	query := `
		WITH moved AS (
			UPDATE pending_links p
			SET status = $1,
				updated_at = NOW(),
				applied_at = CASE WHEN $1 = 'active' THEN NOW() ELSE p.applied_at END
			FROM (
				SELECT id, status AS old_status FROM pending_links
				WHERE id = ANY($2) AND status = ANY($3)
				FOR UPDATE
			) old
			WHERE p.id = old.id
			RETURNING p.id, old.old_status
		)
		INSERT INTO link_events (link_id, from_status, to_status, reason)
		SELECT id, old_status, $1, $4 FROM moved`

	result, err := r.db.ExecContext(ctx, query, string(to), pq.Array(ids), pq.Array(fromNames), reason)
	if err != nil {
		return 0, fmt.Errorf("failed to transition links to %s: %w", to, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

// Events returns the status history of one link, oldest first.
func (r *LinkRepository) Events(ctx context.Context, linkID int64) ([]domain.LinkEvent, error) {
	events := []domain.LinkEvent{}
	query := `SELECT id, link_id, from_status, to_status, reason, occurred_at
		FROM link_events WHERE link_id = $1 ORDER BY occurred_at, id`
	if err := r.db.SelectContext(ctx, &events, query, linkID); err != nil {
		return nil, fmt.Errorf("failed to list events for link %d: %w", linkID, err)
	}
	return events, nil
}

// CountByStatus returns link counts keyed by status.
func (r *LinkRepository) CountByStatus(ctx context.Context) (map[domain.LinkStatus]int, error) {
	var rows []struct {
		Status domain.LinkStatus `db:"status"`
		Count  int               `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT status, COUNT(*) AS count FROM pending_links GROUP BY status`); err != nil {
		return nil, fmt.Errorf("failed to count links by status: %w", err)
	}

	counts := make(map[domain.LinkStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
