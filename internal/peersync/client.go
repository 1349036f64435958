// Package peersync exchanges content inventories and approved links with the
// peer site.
package peersync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	infraerrors "github.com/jonesrussell/north-cloud/linksync/infrastructure/errors"
	infrahttp "github.com/jonesrussell/north-cloud/linksync/infrastructure/http"
	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/linksync/internal/config"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
	"github.com/jonesrussell/north-cloud/linksync/internal/observability"
)

const (
	// InventoryPath is served by every linksync instance.
	InventoryPath = "/api/v1/inventory"
	// ApplyLinksPath receives approved links sourced on the serving site.
	ApplyLinksPath = "/api/v1/apply-links"
	// APIKeyHeader carries the shared secret.
	APIKeyHeader = "X-API-Key"

	maxAttempts      = 2
	retryDelay       = 500 * time.Millisecond
	maxInventorySize = 64 << 20
	maxReplySize     = 4 << 20
)

// Inventory is the payload of the inventory endpoint.
type Inventory struct {
	Success  bool                   `json:"success"`
	SiteRole domain.SiteRole        `json:"site_role"`
	SiteURL  string                 `json:"site_url"`
	Count    int                    `json:"count"`
	Items    []domain.ContentRecord `json:"items"`
}

// Store receives the peer's records. ReplaceOrigin reports how many rows it stored.
type Store interface {
	ReplaceOrigin(ctx context.Context, origin string, records []domain.ContentRecord) (int, error)
}

// Result reports a successful sync.
type Result struct {
	Count    int             `json:"count"`
	PeerRole domain.SiteRole `json:"peer_role"`
}

// Client pulls the peer inventory.
type Client struct {
	cfg       config.SyncConfig
	localRole domain.SiteRole
	http      *http.Client
	store     Store
	cache     FailureCache
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	log       infralogger.Logger
}

// NewClient creates a sync client. cache may be nil to disable failure caching.
func NewClient(
	cfg config.SyncConfig, localRole domain.SiteRole, store Store, cache FailureCache,
	metrics *observability.Metrics, log infralogger.Logger,
) *Client {
	return &Client{
		cfg:       cfg,
		localRole: localRole,
		http:      infrahttp.NewClient(&infrahttp.ClientConfig{Timeout: cfg.Timeout}),
		store:     store,
		cache:     cache,
		metrics:   metrics,
		tracer:    observability.NewTracer(),
		log:       log,
	}
}

// Sync fetches the peer inventory and replaces the peer's origin. On failure
// the stored peer data is left untouched and the error is cached.
func (c *Client) Sync(ctx context.Context) (*Result, error) {
	if !c.cfg.PeerConfigured() {
		return nil, ErrPeerNotConfigured
	}

	ctx, span := c.tracer.PassSpan(ctx, "peer_sync")
	defer span.End()

	if c.cache != nil {
		cached, err := c.cache.Get(ctx)
		if err != nil {
			c.log.Warn("Failed to read peer failure cache", infralogger.Error(err))
		} else if cached != nil {
			c.metrics.RecordPeerSync("cached_failure")
			return nil, cached
		}
	}

	result, err := c.sync(ctx)
	if err != nil {
		observability.RecordError(span, err)
		c.metrics.RecordPeerSync("error")
		c.remember(ctx, err)
		return nil, err
	}

	observability.SetSuccess(span)
	c.metrics.RecordPeerSync("success")
	return result, nil
}

// Test runs a sync that bypasses the failure cache, for operator diagnostics.
func (c *Client) Test(ctx context.Context) (*Result, error) {
	if !c.cfg.PeerConfigured() {
		return nil, ErrPeerNotConfigured
	}
	return c.sync(ctx)
}

func (c *Client) sync(ctx context.Context) (*Result, error) {
	inv, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	if !inv.SiteRole.Valid() {
		return nil, &PeerError{Message: fmt.Sprintf("peer reported unknown site role %q", inv.SiteRole)}
	}
	if inv.SiteRole == c.localRole {
		return nil, &PeerError{
			Message: fmt.Sprintf("peer reported role %q, the same as this site", inv.SiteRole),
			Hint:    "sync.peer_url points at an instance with the same site.role",
		}
	}

	origin := string(inv.SiteRole)
	for i := range inv.Items {
		inv.Items[i].Origin = origin
	}
	stored, err := c.store.ReplaceOrigin(ctx, origin, inv.Items)
	if err != nil {
		return nil, fmt.Errorf("store peer content: %w", err)
	}
	if dropped := len(inv.Items) - stored; dropped > 0 {
		c.log.Warn("Peer inventory contained duplicate items",
			infralogger.String("peer_role", origin),
			infralogger.Int("received", len(inv.Items)),
			infralogger.Int("dropped", dropped),
		)
	}

	c.metrics.SetContentRecords(origin, stored)
	c.log.Info("Peer content synced",
		infralogger.String("peer_role", origin),
		infralogger.Int("count", stored),
	)
	return &Result{Count: stored, PeerRole: inv.SiteRole}, nil
}

func (c *Client) fetch(ctx context.Context) (*Inventory, error) {
	var inv Inventory
	if err := c.exchange(ctx, http.MethodGet, InventoryPath, nil, &inv, maxInventorySize); err != nil {
		return nil, err
	}
	return &inv, nil
}

// exchange sends one authenticated request to the peer, retrying transient
// network errors, and decodes the JSON reply into out. A nil payload sends no body.
func (c *Client) exchange(ctx context.Context, method, path string, payload []byte, out any, limit int64) error {
	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = infrahttp.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := strings.TrimRight(c.cfg.PeerURL, "/") + path

	retryCfg := retry.Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: retryDelay,
		IsRetryable: func(err error) bool {
			var perr *PeerError
			return !errors.As(err, &perr) && retry.IsTransient(err)
		},
	}
	err := retry.Retry(ctx, retryCfg, func() error {
		var body io.Reader = http.NoBody
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, reqErr := http.NewRequestWithContext(ctx, method, endpoint, body)
		if reqErr != nil {
			return &PeerError{Message: fmt.Sprintf("build request: %v", reqErr), Hint: "check sync.peer_url"}
		}
		req.Header.Set(APIKeyHeader, c.cfg.PeerKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, doErr := c.http.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()

		if httpErr := infraerrors.ParseHTTPError(resp); httpErr != nil {
			var he *infraerrors.HTTPError
			msg := httpErr.Error()
			if errors.As(httpErr, &he) && he.Message != "" {
				msg = he.Message
			}
			return &PeerError{StatusCode: resp.StatusCode, Message: msg, Hint: hintFor(resp.StatusCode)}
		}

		if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, limit)).Decode(out); decodeErr != nil {
			return &PeerError{Message: fmt.Sprintf("invalid JSON from %s: %v", path, decodeErr)}
		}
		return nil
	})
	if err != nil {
		var perr *PeerError
		if errors.As(err, &perr) {
			return perr
		}
		return &PeerError{Message: err.Error(), Hint: "peer unreachable, check sync.peer_url and network"}
	}
	return nil
}

func (c *Client) remember(ctx context.Context, err error) {
	if c.cache == nil {
		return
	}
	var perr *PeerError
	if !errors.As(err, &perr) {
		perr = &PeerError{Message: err.Error()}
	}
	if setErr := c.cache.Set(ctx, perr, c.cfg.FailureCacheTTL); setErr != nil {
		c.log.Warn("Failed to cache peer failure", infralogger.Error(setErr))
	}
}
