package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

// ErrItemNotFound is returned when a site item does not exist.
var ErrItemNotFound = errors.New("site item not found")

// SiteItem is a post, page or commerce item as stored by the host site.
type SiteItem struct {
	ID                string             `db:"id"`
	Kind              domain.ContentKind `db:"kind"`
	Title             string             `db:"title"`
	Slug              string             `db:"slug"`
	URL               string             `db:"url"`
	Status            string             `db:"status"`
	Body              string             `db:"body"`
	SEONoindex        bool               `db:"seo_noindex"`
	FocusKeyword      string             `db:"focus_keyword"`
	SecondaryKeywords pq.StringArray     `db:"secondary_keywords"`
	CategoryPaths     pq.StringArray     `db:"category_paths"`
	Price             *float64           `db:"price"`
	StockStatus       *string            `db:"stock_status"`
	Discontinued      bool               `db:"discontinued"`
	UpdatedAt         time.Time          `db:"updated_at"`
}

// Published reports whether the item is publicly visible.
func (i *SiteItem) Published() bool {
	return i.Status == "publish"
}

// SiteTerm is a category or tag.
type SiteTerm struct {
	ID          string  `db:"id"`
	Taxonomy    string  `db:"taxonomy"`
	ParentID    *string `db:"parent_id"`
	Name        string  `db:"name"`
	Slug        string  `db:"slug"`
	URL         string  `db:"url"`
	Description string  `db:"description"`
	SEONoindex  bool    `db:"seo_noindex"`
}

// Kind maps the taxonomy to a ContentKind.
func (t *SiteTerm) Kind() domain.ContentKind {
	if t.Taxonomy == "category" {
		return domain.KindTermCategory
	}
	return domain.KindTermTag
}

// LinkTarget is what an internal URL resolves to.
type LinkTarget struct {
	ID        string
	Kind      domain.ContentKind
	Published bool
	Noindex   bool
}

const itemColumns = `id, kind, title, slug, url, status, body, seo_noindex, focus_keyword,
	secondary_keywords, category_paths, price, stock_status, discontinued, updated_at`

// SiteRepository reads and updates the host site's content tables.
type SiteRepository struct {
	db *sqlx.DB
}

// NewSiteRepository creates a new site repository.
func NewSiteRepository(db *sqlx.DB) *SiteRepository {
	return &SiteRepository{db: db}
}

// ListPublishedItems returns published items of the given kinds.
func (r *SiteRepository) ListPublishedItems(ctx context.Context, kinds []domain.ContentKind) ([]SiteItem, error) {
	items := []SiteItem{}
	if len(kinds) == 0 {
		return items, nil
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}

	query := `SELECT ` + itemColumns + ` FROM site_items
		WHERE status = 'publish' AND kind = ANY($1) ORDER BY kind, id`
	if err := r.db.SelectContext(ctx, &items, query, pq.Array(names)); err != nil {
		return nil, fmt.Errorf("failed to list site items: %w", err)
	}
	return items, nil
}

// ListTopLevelTerms returns categories and tags without a parent.
func (r *SiteRepository) ListTopLevelTerms(ctx context.Context) ([]SiteTerm, error) {
	terms := []SiteTerm{}
	query := `SELECT id, taxonomy, parent_id, name, slug, url, description, seo_noindex
		FROM site_terms WHERE parent_id IS NULL OR parent_id = '' ORDER BY taxonomy, id`
	if err := r.db.SelectContext(ctx, &terms, query); err != nil {
		return nil, fmt.Errorf("failed to list site terms: %w", err)
	}
	return terms, nil
}

// GetItem returns one item by id.
func (r *SiteRepository) GetItem(ctx context.Context, id string) (*SiteItem, error) {
	var item SiteItem
	err := r.db.GetContext(ctx, &item, `SELECT `+itemColumns+` FROM site_items WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site item %s: %w", id, err)
	}
	return &item, nil
}

// UpdateBody persists a rewritten body.
func (r *SiteRepository) UpdateBody(ctx context.Context, id, body string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE site_items SET body = $2, updated_at = NOW() WHERE id = $1`, id, body)
	if err != nil {
		return fmt.Errorf("failed to update body of %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// ResolveURL finds the item or term whose canonical URL matches one of candidates.
func (r *SiteRepository) ResolveURL(ctx context.Context, candidates []string) (*LinkTarget, error) {
	var row struct {
		ID        string `db:"id"`
		Kind      string `db:"kind"`
		Published bool   `db:"published"`
		Noindex   bool   `db:"noindex"`
	}
	query := `
		SELECT id, kind, status = 'publish' AS published, seo_noindex AS noindex
		FROM site_items WHERE url = ANY($1)
		UNION ALL
		SELECT id, CASE WHEN taxonomy = 'category' THEN 'term_category' ELSE 'term_tag' END,
			TRUE, seo_noindex
		FROM site_terms WHERE url = ANY($1)
		LIMIT 1`
	err := r.db.GetContext(ctx, &row, query, pq.Array(candidates))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve url: %w", err)
	}
	return &LinkTarget{ID: row.ID, Kind: domain.ContentKind(row.Kind), Published: row.Published, Noindex: row.Noindex}, nil
}

// ResolveTermSlug finds a term by slug, the fallback for archive URLs.
func (r *SiteRepository) ResolveTermSlug(ctx context.Context, slug string) (*LinkTarget, error) {
	var term SiteTerm
	err := r.db.GetContext(ctx, &term,
		`SELECT id, taxonomy, parent_id, name, slug, url, description, seo_noindex
		FROM site_terms WHERE slug = $1 ORDER BY taxonomy LIMIT 1`, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve term slug %s: %w", slug, err)
	}
	return &LinkTarget{ID: term.ID, Kind: term.Kind(), Published: true, Noindex: term.SEONoindex}, nil
}
