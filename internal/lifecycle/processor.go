// Package lifecycle moves pending links through their states: it pulls review
// decisions, detects links authors removed and injects approved links.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"slices"
	"strings"
	"time"

	infrahttp "github.com/jonesrussell/north-cloud/linksync/infrastructure/http"
	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/database"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
	"github.com/jonesrussell/north-cloud/linksync/internal/htmldoc"
	"github.com/jonesrussell/north-cloud/linksync/internal/injector"
	"github.com/jonesrussell/north-cloud/linksync/internal/observability"
)

// LinkStore is the pending-link side of the content store.
type LinkStore interface {
	Upsert(ctx context.Context, link *domain.PendingLink) error
	ListWorkQueue(ctx context.Context, sourceSite string) ([]domain.PendingLink, error)
	Transition(ctx context.Context, ids []int64, from []domain.LinkStatus, to domain.LinkStatus, reason string) (int64, error)
}

// SiteStore reads and writes host-site bodies.
type SiteStore interface {
	GetItem(ctx context.Context, id string) (*database.SiteItem, error)
	UpdateBody(ctx context.Context, id, body string) error
}

// LinkInjector places links in a body.
type LinkInjector interface {
	Inject(req injector.Request) injector.Result
}

// Config holds the processor settings.
type Config struct {
	Role            domain.SiteRole
	ApprovalURL     string
	ApprovalKey     string
	ApprovalTimeout time.Duration
	// ExcludedKinds never receive injected links.
	ExcludedKinds []domain.ContentKind
	// ExcludedCategories never receive injected links. An entry matches a
	// category path, or any one segment of it, ignoring case.
	ExcludedCategories []string
}

// QueueResult summarizes one queue pass.
type QueueResult struct {
	Items          int `json:"items"`
	BodiesUpdated  int `json:"bodies_updated"`
	Drifted        int `json:"drifted"`
	Injected       int `json:"injected"`
	AlreadyPresent int `json:"already_present"`
	Unmatched      int `json:"unmatched"`
	Failed         int `json:"failed"`
}

func (r *QueueResult) add(o *itemOutcome) {
	r.Items++
	if o.bodyChanged {
		r.BodiesUpdated++
	}
	r.Drifted += o.drifted
	r.Injected += o.injected
	r.AlreadyPresent += o.alreadyPresent
	r.Unmatched += o.unmatched
}

// Processor runs approval pulls and queue passes.
type Processor struct {
	cfg      Config
	links    LinkStore
	site     SiteStore
	injector LinkInjector
	parser   htmldoc.Parser
	peer     LinkPusher
	http     *http.Client
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	log      infralogger.Logger
}

// NewProcessor creates a lifecycle processor. peer may be nil, in which case
// links sourced on the peer are never pushed.
func NewProcessor(
	cfg Config, links LinkStore, site SiteStore, inj LinkInjector, parser htmldoc.Parser,
	peer LinkPusher, metrics *observability.Metrics, log infralogger.Logger,
) *Processor {
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = infrahttp.DefaultTimeout
	}
	return &Processor{
		cfg:      cfg,
		links:    links,
		site:     site,
		injector: inj,
		parser:   parser,
		peer:     peer,
		http:     infrahttp.NewClient(&infrahttp.ClientConfig{Timeout: cfg.ApprovalTimeout}),
		metrics:  metrics,
		tracer:   observability.NewTracer(),
		log:      log,
	}
}

// ProcessQueue handles every approved or active link sourced on this site,
// one source item at a time. Failures of one item are logged and counted.
func (p *Processor) ProcessQueue(ctx context.Context) (*QueueResult, error) {
	ctx, span := p.tracer.PassSpan(ctx, "lifecycle")
	defer span.End()

	rows, err := p.links.ListWorkQueue(ctx, string(p.cfg.Role))
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("list work queue: %w", err)
	}

	result := &QueueResult{}
	for _, group := range groupBySource(rows) {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		outcome, itemErr := p.processItem(ctx, group[0].SourceID, group, domain.ReasonInjected)
		if errors.Is(itemErr, database.ErrItemNotFound) {
			result.Failed++
			p.log.Warn("Source item of queued links no longer exists",
				infralogger.ContentID(group[0].SourceID),
				infralogger.Int("links", len(group)),
			)
			continue
		}
		if itemErr != nil {
			result.Failed++
			p.log.Error("Failed to process links for item",
				infralogger.ContentID(group[0].SourceID),
				infralogger.Int("links", len(group)),
				infralogger.Error(itemErr),
			)
			continue
		}
		result.add(outcome)
	}

	observability.SetSuccess(span)
	p.log.Info("Link queue processed",
		infralogger.Int("items", result.Items),
		infralogger.Int("bodies_updated", result.BodiesUpdated),
		infralogger.Int("drifted", result.Drifted),
		infralogger.Int("injected", result.Injected),
		infralogger.Int("failed", result.Failed),
	)
	return result, nil
}

// ApplyResult summarizes a peer push of approved links. Fingerprints lists
// the accepted links so the sender can settle its own rows.
type ApplyResult struct {
	Applied      int      `json:"applied"`
	Accepted     int      `json:"accepted"`
	Rejected     int      `json:"rejected"`
	Fingerprints []string `json:"fingerprints"`
}

// ApplyLinks stores links pushed by the peer as approved and injects them
// right away. Only valid links sourced on this site are accepted. Applied
// counts the source items whose body changed.
func (p *Processor) ApplyLinks(ctx context.Context, links []domain.PendingLink) (*ApplyResult, error) {
	ctx, span := p.tracer.PassSpan(ctx, "apply_links")
	defer span.End()

	result := &ApplyResult{Fingerprints: []string{}}
	var approvable []domain.PendingLink
	var pendingIDs []int64

	for i := range links {
		link, err := p.acceptPushed(links[i])
		if err != nil {
			result.Rejected++
			p.log.Warn("Rejected pushed link",
				infralogger.ContentID(links[i].SourceID),
				infralogger.String("keyword", links[i].Keyword),
				infralogger.Error(err),
			)
			continue
		}
		if err = p.links.Upsert(ctx, &link); err != nil {
			observability.RecordError(span, err)
			return nil, fmt.Errorf("store pushed link: %w", err)
		}
		result.Accepted++
		result.Fingerprints = append(result.Fingerprints, link.Fingerprint)

		switch link.Status {
		case domain.StatusPending:
			pendingIDs = append(pendingIDs, link.ID)
		case domain.StatusApproved:
		case domain.StatusActive, domain.StatusUserDeleted, domain.StatusManualOverride:
			continue
		}
		link.Status = domain.StatusApproved
		approvable = append(approvable, link)
	}

	moved, err := p.links.Transition(ctx, pendingIDs,
		[]domain.LinkStatus{domain.StatusPending}, domain.StatusApproved, domain.ReasonPeerApply)
	if err != nil {
		return nil, fmt.Errorf("approve pushed links: %w", err)
	}
	p.metrics.RecordTransitions(string(domain.StatusApproved), moved)

	slices.SortStableFunc(approvable, func(a, b domain.PendingLink) int {
		return strings.Compare(a.SourceID, b.SourceID)
	})
	for _, group := range groupBySource(approvable) {
		outcome, itemErr := p.processItem(ctx, group[0].SourceID, group, domain.ReasonPeerApply)
		if itemErr != nil {
			p.log.Error("Failed to apply pushed links",
				infralogger.ContentID(group[0].SourceID),
				infralogger.Error(itemErr),
			)
			continue
		}
		if outcome.bodyChanged {
			result.Applied++
		}
	}

	observability.SetSuccess(span)
	return result, nil
}

// acceptPushed normalizes a pushed link and checks it belongs to this site
// and passes link validation.
func (p *Processor) acceptPushed(link domain.PendingLink) (domain.PendingLink, error) {
	link.SourceSite = strings.ToLower(strings.TrimSpace(link.SourceSite))
	link.TargetSite = strings.ToLower(strings.TrimSpace(link.TargetSite))
	link.SourceID = strings.TrimSpace(link.SourceID)
	link.TargetID = strings.TrimSpace(link.TargetID)
	link.Keyword = strings.TrimSpace(link.Keyword)
	link.TargetURL = strings.TrimSpace(link.TargetURL)
	link.Priority = domain.NormalizePriority(string(link.Priority))

	if err := link.Validate(); err != nil {
		return link, err
	}
	if link.SourceSite != string(p.cfg.Role) {
		return link, fmt.Errorf("source_site %q is not this site (%s)", link.SourceSite, p.cfg.Role)
	}
	for _, kind := range []*domain.ContentKind{&link.SourceKind, &link.TargetKind} {
		if *kind == "" {
			continue
		}
		parsed, err := domain.ParseContentKind(string(*kind))
		if err != nil {
			return link, err
		}
		*kind = parsed
	}

	link.ID = 0
	link.Status = domain.StatusPending
	link.BatchID = nil
	link.ComputeFingerprint()
	return link, nil
}

type itemOutcome struct {
	bodyChanged    bool
	drifted        int
	injected       int
	alreadyPresent int
	unmatched      int
}

// processItem runs drift detection on the item's active links, then injects
// its approved links and persists the body when it changed.
func (p *Processor) processItem(
	ctx context.Context, sourceID string, links []domain.PendingLink, injectReason string,
) (*itemOutcome, error) {
	ctx, span := p.tracer.ItemSpan(ctx, "lifecycle", sourceID, len(links))
	defer span.End()

	item, err := p.site.GetItem(ctx, sourceID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("load item: %w", err)
	}

	outcome := &itemOutcome{}
	var active, approved []domain.PendingLink
	for _, l := range links {
		switch l.Status {
		case domain.StatusActive:
			active = append(active, l)
		case domain.StatusApproved:
			approved = append(approved, l)
		case domain.StatusPending, domain.StatusUserDeleted, domain.StatusManualOverride:
		}
	}

	if len(active) > 0 {
		drifted, driftErr := p.detectDrift(ctx, item, active)
		if driftErr != nil {
			return nil, driftErr
		}
		outcome.drifted = drifted
	}

	if len(approved) == 0 || p.excluded(item) {
		return outcome, nil
	}

	req := injector.Request{
		SourceID:   item.ID,
		SourceKind: item.Kind,
		SourceURL:  item.URL,
		Body:       item.Body,
	}
	for _, l := range approved {
		req.Suggestions = append(req.Suggestions, injector.Suggestion{
			ID:         l.ID,
			Keyword:    l.Keyword,
			TargetURL:  l.TargetURL,
			TargetKind: l.TargetKind,
			Priority:   l.Priority,
		})
	}

	res := p.injector.Inject(req)
	if res.Changed {
		if err = p.site.UpdateBody(ctx, item.ID, res.Content); err != nil {
			observability.RecordError(span, err)
			return nil, fmt.Errorf("save body: %w", err)
		}
		outcome.bodyChanged = true
	}

	var injected, present []int64
	for _, o := range res.Outcomes {
		switch o.Outcome {
		case injector.OutcomeInjected:
			injected = append(injected, o.SuggestionID)
		case injector.OutcomeAlreadyPresent:
			present = append(present, o.SuggestionID)
		case injector.OutcomeNoMatch, injector.OutcomeSkipped, injector.OutcomeCapped:
			outcome.unmatched++
		}
	}

	fromApproved := []domain.LinkStatus{domain.StatusApproved}
	n, err := p.links.Transition(ctx, injected, fromApproved, domain.StatusActive, injectReason)
	if err != nil {
		return nil, fmt.Errorf("activate injected links: %w", err)
	}
	outcome.injected = int(n)

	n, err = p.links.Transition(ctx, present, fromApproved, domain.StatusActive, domain.ReasonAlreadyLinked)
	if err != nil {
		return nil, fmt.Errorf("activate present links: %w", err)
	}
	outcome.alreadyPresent = int(n)

	p.metrics.RecordTransitions(string(domain.StatusActive), int64(outcome.injected+outcome.alreadyPresent))
	observability.SetSuccess(span)
	return outcome, nil
}

// detectDrift moves active links whose keyword or target URL is gone from the
// body to user_deleted.
func (p *Processor) detectDrift(ctx context.Context, item *database.SiteItem, active []domain.PendingLink) (int, error) {
	doc, err := p.parser.Parse(item.Body)
	if err != nil {
		return 0, fmt.Errorf("parse body for drift check: %w", err)
	}
	plain := doc.PlainText()

	var gone []int64
	for _, l := range active {
		if !StillLinked(item.Body, plain, l.Keyword, l.TargetURL) {
			gone = append(gone, l.ID)
			p.log.Info("Link removed by author",
				infralogger.LinkID(l.ID),
				infralogger.ContentID(item.ID),
				infralogger.String("keyword", l.Keyword),
			)
		}
	}

	n, err := p.links.Transition(ctx, gone,
		[]domain.LinkStatus{domain.StatusActive}, domain.StatusUserDeleted, domain.ReasonDrift)
	if err != nil {
		return 0, fmt.Errorf("mark drifted links: %w", err)
	}
	p.metrics.RecordTransitions(string(domain.StatusUserDeleted), n)
	return int(n), nil
}

// StillLinked reports whether an injected link survives in a body: the keyword
// must still be in the visible text and the target URL, raw or HTML-escaped,
// in the markup.
func StillLinked(rawHTML, plainText, keyword, targetURL string) bool {
	if !htmldoc.ContainsFold(plainText, keyword) {
		return false
	}
	return strings.Contains(rawHTML, targetURL) || strings.Contains(rawHTML, html.EscapeString(targetURL))
}

// groupBySource splits rows into runs of equal SourceID. Rows must already be
// ordered by source.
func groupBySource(rows []domain.PendingLink) [][]domain.PendingLink {
	var groups [][]domain.PendingLink
	for i := 0; i < len(rows); {
		j := i + 1
		for j < len(rows) && rows[j].SourceID == rows[i].SourceID {
			j++
		}
		groups = append(groups, rows[i:j])
		i = j
	}
	return groups
}

func (p *Processor) excluded(item *database.SiteItem) bool {
	if slices.Contains(p.cfg.ExcludedKinds, item.Kind) {
		return true
	}
	if len(p.cfg.ExcludedCategories) == 0 {
		return false
	}
	for _, path := range item.CategoryPaths {
		if p.categoryExcluded(path) {
			return true
		}
	}
	return false
}

func (p *Processor) categoryExcluded(path string) bool {
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '>' })
	for _, excluded := range p.cfg.ExcludedCategories {
		excluded = strings.TrimSpace(excluded)
		if excluded == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(path), excluded) {
			return true
		}
		for _, seg := range segments {
			if strings.EqualFold(strings.TrimSpace(seg), excluded) {
				return true
			}
		}
	}
	return false
}
