// Package health scans site content for anchors and checks each link.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	infrahttp "github.com/jonesrussell/north-cloud/linksync/infrastructure/http"
	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/database"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
	"github.com/jonesrussell/north-cloud/linksync/internal/htmldoc"
	"github.com/jonesrussell/north-cloud/linksync/internal/observability"
)

const maxDrainBytes = 256 << 10

// ItemSource lists host-site items to scan.
type ItemSource interface {
	ListPublishedItems(ctx context.Context, kinds []domain.ContentKind) ([]database.SiteItem, error)
}

// Resolver maps internal URLs to site content.
type Resolver interface {
	ResolveURL(ctx context.Context, candidates []string) (*database.LinkTarget, error)
	ResolveTermSlug(ctx context.Context, slug string) (*database.LinkTarget, error)
}

// Store persists link health rows.
type Store interface {
	ReplaceForSource(ctx context.Context, sourceID string, kind domain.ContentKind, rows []domain.LinkHealthRecord) error
	ListPending(ctx context.Context, limit int) ([]domain.LinkHealthRecord, error)
	SaveResult(ctx context.Context, row *domain.LinkHealthRecord) error
	Stats(ctx context.Context) (domain.HealthStats, error)
}

// Config holds checker settings.
type Config struct {
	SiteURL string
	// SiteHost is the lowercase host without "www.".
	SiteHost    string
	BatchSize   int
	Timeout     time.Duration
	ExternalRPS float64
	UserAgent   string
	// Concurrency bounds in-flight requests; values below 1 mean sequential.
	Concurrency int
}

// Checker scans and checks links.
type Checker struct {
	cfg      Config
	site     ItemSource
	resolver Resolver
	store    Store
	parser   htmldoc.Parser
	client   *http.Client
	limiter  *rate.Limiter
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	log      infralogger.Logger
	now      func() time.Time
}

// NewChecker creates a link health checker.
func NewChecker(
	cfg Config, site ItemSource, resolver Resolver, store Store, parser htmldoc.Parser,
	metrics *observability.Metrics, log infralogger.Logger,
) *Checker {
	limit := rate.Inf
	if cfg.ExternalRPS > 0 {
		limit = rate.Limit(cfg.ExternalRPS)
	}
	return &Checker{
		cfg:      cfg,
		site:     site,
		resolver: resolver,
		store:    store,
		parser:   parser,
		client: infrahttp.NewClient(&infrahttp.ClientConfig{
			Timeout:       cfg.Timeout,
			CheckRedirect: traceRedirects,
		}),
		limiter: rate.NewLimiter(limit, 1),
		metrics: metrics,
		tracer:  observability.NewTracer(),
		log:     log,
		now:     time.Now,
	}
}

// CheckResult summarizes a check batch.
type CheckResult struct {
	Checked   int `json:"checked"`
	OK        int `json:"ok"`
	Broken    int `json:"broken"`
	Redirects int `json:"redirects"`
}

// CheckPending checks up to batchSize unchecked rows. A batch size of 0 uses the configured default.
func (c *Checker) CheckPending(ctx context.Context, batchSize int) (*CheckResult, error) {
	if batchSize <= 0 {
		batchSize = c.cfg.BatchSize
	}

	ctx, span := c.tracer.PassSpan(ctx, "health_check")
	defer span.End()

	rows, err := c.store.ListPending(ctx, batchSize)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("list pending checks: %w", err)
	}

	var (
		mu     sync.Mutex
		result = &CheckResult{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.cfg.Concurrency, 1))

	for i := range rows {
		row := &rows[i]
		if row.LinkType == domain.LinkExternal {
			// One token per external request, taken in row order.
			if err = c.limiter.Wait(gctx); err != nil {
				break
			}
		}

		g.Go(func() error {
			c.check(gctx, row)
			if saveErr := c.store.SaveResult(gctx, row); saveErr != nil {
				c.log.Error("Failed to save link check", infralogger.Int64("row_id", row.ID), infralogger.Error(saveErr))
				return nil
			}

			outcome := "ok"
			mu.Lock()
			result.Checked++
			switch {
			case row.IsBroken():
				result.Broken++
				outcome = "broken"
			case row.IsOK():
				result.OK++
			}
			if row.IsRedirect() {
				result.Redirects++
			}
			mu.Unlock()

			c.metrics.RecordCheck(string(row.LinkType), outcome)
			return nil
		})
	}

	if waitErr := g.Wait(); err == nil {
		err = waitErr
	}
	if err != nil {
		observability.RecordError(span, err)
		return result, err
	}

	observability.SetSuccess(span)
	c.log.Info("Link check batch finished",
		infralogger.Int("checked", result.Checked),
		infralogger.Int("broken", result.Broken),
	)
	return result, nil
}

// Stats returns predicate counts over all rows.
func (c *Checker) Stats(ctx context.Context) (domain.HealthStats, error) {
	return c.store.Stats(ctx)
}

func (c *Checker) check(ctx context.Context, row *domain.LinkHealthRecord) {
	p := c.fetch(ctx, row.LinkURL)

	now := c.now().UTC()
	row.LastChecked = &now
	row.StatusCode = p.statusCode
	row.StatusText = p.statusText
	row.RedirectCount = p.redirects
	row.RedirectURL = p.location
	row.FinalURL = p.finalURL
	row.ResponseTimeMS = p.elapsed.Milliseconds()
	row.ErrorMessage = ""
	if p.err != nil {
		row.ErrorMessage = p.err.Error()
	}

	row.TargetContentID = nil
	row.TargetIsNoindex = false
	if row.LinkType == domain.LinkInternal {
		c.resolveTarget(ctx, row)
	}
}

func (c *Checker) resolveTarget(ctx context.Context, row *domain.LinkHealthRecord) {
	target, err := c.resolver.ResolveURL(ctx, urlCandidates(row.LinkURL, row.FinalURL))
	if err == nil && target == nil {
		if slug := lastSegment(row.LinkURL); slug != "" {
			target, err = c.resolver.ResolveTermSlug(ctx, slug)
		}
	}
	if err != nil {
		c.log.Warn("Failed to resolve internal link target",
			infralogger.String("url", row.LinkURL),
			infralogger.Error(err),
		)
		return
	}
	if target == nil {
		return
	}
	id := target.ID
	row.TargetContentID = &id
	row.TargetIsNoindex = !target.Published || target.Noindex
}

type fetchResult struct {
	statusCode int
	statusText string
	redirects  int
	location   string
	finalURL   string
	elapsed    time.Duration
	err        error
}

// fetch sends HEAD and falls back to GET when HEAD fails or returns >= 400,
// since many servers mishandle HEAD. Each request gets the full timeout.
func (c *Checker) fetch(ctx context.Context, rawURL string) fetchResult {
	res := c.request(ctx, http.MethodHead, rawURL)
	if res.err != nil || res.statusCode >= http.StatusBadRequest {
		res = c.request(ctx, http.MethodGet, rawURL)
	}
	return res
}

func (c *Checker) request(ctx context.Context, method, rawURL string) fetchResult {
	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = infrahttp.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	trace := &redirectTrace{}
	req, err := http.NewRequestWithContext(withTrace(ctx, trace), method, rawURL, http.NoBody)
	if err != nil {
		return fetchResult{err: fmt.Errorf("build request: %w", err)}
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return fetchResult{
			redirects: trace.count,
			location:  trace.first,
			elapsed:   elapsed,
			err:       err,
		}
	}
	defer resp.Body.Close()
	if method == http.MethodGet {
		_, _ = io.CopyN(io.Discard, resp.Body, maxDrainBytes)
	}

	return fetchResult{
		statusCode: resp.StatusCode,
		statusText: statusText(resp),
		redirects:  trace.count,
		location:   trace.first,
		finalURL:   resp.Request.URL.String(),
		elapsed:    elapsed,
	}
}

func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode)))
}

func urlCandidates(urls ...string) []string {
	seen := map[string]bool{}
	var out []string
	for _, u := range urls {
		if u == "" {
			continue
		}
		trimmed := strings.TrimRight(u, "/")
		for _, c := range []string{u, trimmed, trimmed + "/"} {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

func lastSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return seg
}
