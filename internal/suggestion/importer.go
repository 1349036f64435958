// Package suggestion imports externally produced link suggestions as pending links.
package suggestion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
	"github.com/jonesrussell/north-cloud/linksync/internal/observability"
)

// ContentFinder looks up indexed content. An empty kind matches any kind.
type ContentFinder interface {
	Find(ctx context.Context, origin, nativeID string, kind domain.ContentKind) (*domain.ContentRecord, error)
}

// LinkWriter stores pending links.
type LinkWriter interface {
	Upsert(ctx context.Context, link *domain.PendingLink) error
}

// Result summarizes an import. Errors holds one message per rejected entry.
type Result struct {
	Imported int      `json:"imported"`
	Total    int      `json:"total"`
	Valid    int      `json:"valid"`
	Errors   []string `json:"errors"`
	BatchID  string   `json:"batch_id"`
}

// Importer validates suggestion batches and upserts the valid entries.
type Importer struct {
	content    ContentFinder
	links      LinkWriter
	role       domain.SiteRole
	metrics    *observability.Metrics
	log        infralogger.Logger
	newBatchID func() string
}

// NewImporter creates an importer for the site playing role.
func NewImporter(
	content ContentFinder, links LinkWriter, role domain.SiteRole,
	metrics *observability.Metrics, log infralogger.Logger,
) *Importer {
	return &Importer{
		content:    content,
		links:      links,
		role:       role,
		metrics:    metrics,
		log:        log,
		newBatchID: uuid.NewString,
	}
}

// Import parses payload and upserts every valid entry. An invalid entry never
// blocks the others; only a payload that is not a batch at all fails.
func (im *Importer) Import(ctx context.Context, payload []byte) (*Result, error) {
	raw, err := decodeBatch(payload)
	if err != nil {
		return nil, err
	}

	batchID := im.newBatchID()
	result := &Result{Total: len(raw), Errors: []string{}, BatchID: batchID}

	for i, entryJSON := range raw {
		n := i + 1

		link, entryErr := im.prepare(ctx, entryJSON)
		if entryErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: %v", n, entryErr))
			continue
		}
		result.Valid++

		link.BatchID = &batchID
		if upsertErr := im.links.Upsert(ctx, link); upsertErr != nil {
			im.log.Error("Failed to store suggestion",
				infralogger.Int("entry", n),
				infralogger.Error(upsertErr),
			)
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: %v", n, upsertErr))
			continue
		}
		result.Imported++
	}

	im.metrics.RecordSuggestions(result.Valid, result.Total-result.Valid)
	im.log.Info("Suggestion batch imported",
		infralogger.String("batch_id", batchID),
		infralogger.Int("total", result.Total),
		infralogger.Int("valid", result.Valid),
		infralogger.Int("imported", result.Imported),
	)
	return result, nil
}

func (im *Importer) prepare(ctx context.Context, raw json.RawMessage) (*domain.PendingLink, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("malformed entry: %w", err)
	}
	e.trim()
	if err := e.validate(); err != nil {
		return nil, err
	}

	sourceSite := domain.SiteRole(e.SourceSite)
	if sourceSite == "" {
		sourceSite = im.role
	}

	sourceKind, err := kindOrDefault(e.SourceKind, "")
	if err != nil {
		return nil, fmt.Errorf("source_kind: %w", err)
	}
	source, err := im.content.Find(ctx, im.origin(sourceSite), string(e.SourceID), sourceKind)
	if err != nil {
		return nil, fmt.Errorf("lookup source: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("source %s/%s is not in the content index", sourceSite, e.SourceID)
	}
	sourceKind = source.Kind

	targetSite, targetKind, err := im.resolveTarget(ctx, &e, sourceSite)
	if err != nil {
		return nil, err
	}

	link := &domain.PendingLink{
		SourceSite: string(sourceSite),
		SourceID:   string(e.SourceID),
		SourceKind: sourceKind,
		Keyword:    e.Keyword,
		TargetSite: string(targetSite),
		TargetID:   string(e.TargetID),
		TargetURL:  e.TargetURL,
		TargetKind: targetKind,
		Priority:   domain.NormalizePriority(e.Priority),
		Rationale:  e.Rationale,
		Status:     domain.StatusPending,
	}
	if err = link.Validate(); err != nil {
		return nil, err
	}
	link.ComputeFingerprint()
	return link, nil
}

// resolveTarget fills the target site and kind. When the entry names no
// target site, the local index is tried before the peer's; a target missing
// from both is kept on the source site with whatever kind the entry gave.
func (im *Importer) resolveTarget(
	ctx context.Context, e *Entry, sourceSite domain.SiteRole,
) (domain.SiteRole, domain.ContentKind, error) {
	kind, err := kindOrDefault(e.TargetKind, "")
	if err != nil {
		return "", "", fmt.Errorf("target_kind: %w", err)
	}

	sites := []domain.SiteRole{domain.SiteRole(e.TargetSite)}
	if e.TargetSite == "" {
		sites = []domain.SiteRole{im.role, im.role.Peer()}
	}

	for _, site := range sites {
		target, findErr := im.content.Find(ctx, im.origin(site), string(e.TargetID), kind)
		if findErr != nil {
			return "", "", fmt.Errorf("lookup target: %w", findErr)
		}
		if target != nil {
			return site, target.Kind, nil
		}
	}

	site := domain.SiteRole(e.TargetSite)
	if site == "" {
		site = sourceSite
	}
	return site, kind, nil
}

func (im *Importer) origin(site domain.SiteRole) string {
	if site == im.role {
		return domain.OriginLocal
	}
	return string(site)
}

func kindOrDefault(name string, fallback domain.ContentKind) (domain.ContentKind, error) {
	if name == "" {
		return fallback, nil
	}
	return domain.ParseContentKind(name)
}
