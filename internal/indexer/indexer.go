// Package indexer builds the local content index from the host site's tables.
package indexer

import (
	"context"
	"fmt"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/database"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
	"github.com/jonesrussell/north-cloud/linksync/internal/htmldoc"
	"github.com/jonesrussell/north-cloud/linksync/internal/observability"
)

// SiteReader reads published content from the host site.
type SiteReader interface {
	ListPublishedItems(ctx context.Context, kinds []domain.ContentKind) ([]database.SiteItem, error)
	ListTopLevelTerms(ctx context.Context) ([]database.SiteTerm, error)
}

// Store receives the rebuilt index and reports how many rows it stored.
type Store interface {
	ReplaceOrigin(ctx context.Context, origin string, records []domain.ContentRecord) (int, error)
}

// Result summarizes one indexing pass.
type Result struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
}

// Indexer rebuilds the local origin of the content store.
type Indexer struct {
	site    SiteReader
	store   Store
	parser  htmldoc.Parser
	role    domain.SiteRole
	metrics *observability.Metrics
	log     infralogger.Logger
	now     func() time.Time
}

// New creates an indexer for a site of the given role.
func New(
	site SiteReader, store Store, parser htmldoc.Parser, role domain.SiteRole,
	metrics *observability.Metrics, log infralogger.Logger,
) *Indexer {
	return &Indexer{
		site:    site,
		store:   store,
		parser:  parser,
		role:    role,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// Kinds returns the item kinds indexed for role. Commerce items only exist on the shop.
func Kinds(role domain.SiteRole) []domain.ContentKind {
	kinds := []domain.ContentKind{domain.KindArticle, domain.KindPage}
	if role == domain.RoleShop {
		kinds = append(kinds, domain.KindCommerceItem)
	}
	return kinds
}

// Run indexes every published item and top-level term, then replaces the
// local origin in one transaction. A body that fails to parse skips its item.
func (ix *Indexer) Run(ctx context.Context) (Result, error) {
	var result Result

	items, err := ix.site.ListPublishedItems(ctx, Kinds(ix.role))
	if err != nil {
		return result, fmt.Errorf("list items: %w", err)
	}
	terms, err := ix.site.ListTopLevelTerms(ctx)
	if err != nil {
		return result, fmt.Errorf("list terms: %w", err)
	}

	synced := ix.now().UTC()
	records := make([]domain.ContentRecord, 0, len(items)+len(terms))

	for i := range items {
		item := &items[i]
		if !item.Published() {
			result.Skipped++
			continue
		}
		rec, recErr := ix.itemRecord(item, synced)
		if recErr != nil {
			ix.log.Warn("Skipping item with unparseable body",
				infralogger.ContentID(item.ID),
				infralogger.Error(recErr),
			)
			result.Skipped++
			continue
		}
		records = append(records, rec)
	}

	for i := range terms {
		rec, recErr := ix.termRecord(&terms[i], synced)
		if recErr != nil {
			ix.log.Warn("Skipping term with unparseable description",
				infralogger.ContentID(terms[i].ID),
				infralogger.Error(recErr),
			)
			result.Skipped++
			continue
		}
		records = append(records, rec)
	}

	stored, err := ix.store.ReplaceOrigin(ctx, domain.OriginLocal, records)
	if err != nil {
		return result, fmt.Errorf("replace local origin: %w", err)
	}
	if dropped := len(records) - stored; dropped > 0 {
		ix.log.Warn("Duplicate content records dropped",
			infralogger.Int("records", len(records)),
			infralogger.Int("dropped", dropped),
		)
		result.Skipped += dropped
	}

	result.Indexed = stored
	ix.metrics.SetContentRecords(domain.OriginLocal, result.Indexed)
	ix.log.Info("Local content indexed",
		infralogger.Int("indexed", result.Indexed),
		infralogger.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (ix *Indexer) itemRecord(item *database.SiteItem, synced time.Time) (domain.ContentRecord, error) {
	summary, err := htmldoc.Summarize(ix.parser, item.Body, htmldoc.DefaultExcerptWords)
	if err != nil {
		return domain.ContentRecord{}, err
	}

	rec := domain.ContentRecord{
		Origin:            domain.OriginLocal,
		NativeID:          item.ID,
		Kind:              item.Kind,
		Title:             item.Title,
		URL:               item.URL,
		CategoryPaths:     item.CategoryPaths,
		FocusKeyword:      item.FocusKeyword,
		SecondaryKeywords: item.SecondaryKeywords,
		WordCount:         summary.WordCount,
		Excerpt:           summary.Excerpt,
		Linkable:          itemLinkable(item),
		LastSynced:        synced,
	}
	if item.Kind == domain.KindCommerceItem {
		rec.Price = item.Price
		rec.StockStatus = item.StockStatus
	}
	return rec, nil
}

func (ix *Indexer) termRecord(term *database.SiteTerm, synced time.Time) (domain.ContentRecord, error) {
	summary, err := htmldoc.Summarize(ix.parser, term.Description, htmldoc.DefaultExcerptWords)
	if err != nil {
		return domain.ContentRecord{}, err
	}

	kind := term.Kind()
	return domain.ContentRecord{
		Origin:     domain.OriginLocal,
		NativeID:   term.ID,
		Kind:       kind,
		Title:      term.Name,
		URL:        term.URL,
		WordCount:  summary.WordCount,
		Excerpt:    summary.Excerpt,
		Linkable:   termLinkable(ix.role, kind, term.SEONoindex),
		LastSynced: synced,
	}, nil
}

func itemLinkable(item *database.SiteItem) bool {
	if item.SEONoindex {
		return false
	}
	switch item.Kind {
	case domain.KindCommerceItem:
		outOfStock := item.StockStatus != nil && *item.StockStatus == domain.StockOutOfStock
		return !outOfStock && !item.Discontinued
	case domain.KindArticle, domain.KindPage:
		return true
	case domain.KindTermCategory, domain.KindTermTag:
		return true
	default:
		return true
	}
}

// Blog categories are navigation only and never receive generated links.
func termLinkable(role domain.SiteRole, kind domain.ContentKind, noindex bool) bool {
	if noindex {
		return false
	}
	return !(role == domain.RoleBlog && kind == domain.KindTermCategory)
}
