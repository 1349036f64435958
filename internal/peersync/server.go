package peersync

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
	"github.com/jonesrussell/north-cloud/linksync/internal/observability"
)

// ErrInvalidPush is wrapped by Receive when the pushed payload is unusable.
var ErrInvalidPush = errors.New("invalid sync payload")

// Catalog is the content store as seen by the peer endpoints.
type Catalog interface {
	Store
	ListByOrigin(ctx context.Context, origin string) ([]domain.ContentRecord, error)
}

// PushRequest is the body of a peer push. Items is a pointer so a missing
// field can be told apart from an empty inventory.
type PushRequest struct {
	SiteID string                  `json:"site_id"`
	Items  *[]domain.ContentRecord `json:"items"`
}

// Server answers inventory reads and peer pushes.
type Server struct {
	role    domain.SiteRole
	siteURL string
	store   Catalog
	metrics *observability.Metrics
	log     infralogger.Logger
}

// NewServer creates the server half of peer sync.
func NewServer(role domain.SiteRole, siteURL string, store Catalog, metrics *observability.Metrics, log infralogger.Logger) *Server {
	return &Server{role: role, siteURL: siteURL, store: store, metrics: metrics, log: log}
}

// Inventory returns every local record.
func (s *Server) Inventory(ctx context.Context) (*Inventory, error) {
	items, err := s.store.ListByOrigin(ctx, domain.OriginLocal)
	if err != nil {
		return nil, fmt.Errorf("list local content: %w", err)
	}
	return &Inventory{
		Success:  true,
		SiteRole: s.role,
		SiteURL:  s.siteURL,
		Count:    len(items),
		Items:    items,
	}, nil
}

// Receive replaces the pushed origin with the pushed items. The origin must
// name the peer's role; the local origin cannot be overwritten remotely.
func (s *Server) Receive(ctx context.Context, req PushRequest) (int, error) {
	if req.SiteID == "" {
		return 0, fmt.Errorf("%w: site_id is required", ErrInvalidPush)
	}
	if req.Items == nil {
		return 0, fmt.Errorf("%w: items is required", ErrInvalidPush)
	}
	role := domain.SiteRole(req.SiteID)
	if !role.Valid() {
		return 0, fmt.Errorf("%w: unknown site_id %q", ErrInvalidPush, req.SiteID)
	}
	if role == s.role {
		return 0, fmt.Errorf("%w: site_id %q is this site", ErrInvalidPush, req.SiteID)
	}

	items := *req.Items
	for i := range items {
		items[i].Origin = req.SiteID
	}
	stored, err := s.store.ReplaceOrigin(ctx, req.SiteID, items)
	if err != nil {
		return 0, fmt.Errorf("store pushed content: %w", err)
	}

	s.metrics.SetContentRecords(req.SiteID, stored)
	s.metrics.RecordPeerSync("push_received")
	s.log.Info("Peer push stored",
		infralogger.String("origin", req.SiteID),
		infralogger.Int("received", len(items)),
		infralogger.Int("count", stored),
	)
	return stored, nil
}

// KeyMatches compares a presented shared secret in constant time. An empty
// configured key never matches.
func KeyMatches(configured, presented string) bool {
	if configured == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}
