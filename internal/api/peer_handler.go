package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
	"github.com/jonesrussell/north-cloud/linksync/internal/export"
	"github.com/jonesrussell/north-cloud/linksync/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/linksync/internal/peersync"
)

// PeerServer serves this site's inventory and stores inventories pushed by the peer.
type PeerServer interface {
	Inventory(ctx context.Context) (*peersync.Inventory, error)
	Receive(ctx context.Context, req peersync.PushRequest) (int, error)
}

// LinkApplier stores and injects links pushed by the peer.
type LinkApplier interface {
	ApplyLinks(ctx context.Context, links []domain.PendingLink) (*lifecycle.ApplyResult, error)
}

// SnapshotWriter streams a content analysis snapshot.
type SnapshotWriter interface {
	WriteSnapshot(w io.Writer, scope export.Scope) error
}

// PeerHandler serves the shared-secret endpoints used by the other site.
type PeerHandler struct {
	peer     PeerServer
	applier  LinkApplier
	snapshot SnapshotWriter
	log      infralogger.Logger
}

// NewPeerHandler creates the handler for peer-authenticated endpoints.
func NewPeerHandler(peer PeerServer, applier LinkApplier, snapshot SnapshotWriter, log infralogger.Logger) *PeerHandler {
	return &PeerHandler{peer: peer, applier: applier, snapshot: snapshot, log: log}
}

// Inventory handles GET /api/v1/inventory.
func (h *PeerHandler) Inventory(c *gin.Context) {
	inv, err := h.peer.Inventory(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to build inventory", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to load inventory"})
		return
	}
	c.JSON(http.StatusOK, inv)
}

// Sync handles POST /api/v1/sync.
func (h *PeerHandler) Sync(c *gin.Context) {
	var req peersync.PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid JSON body: " + err.Error()})
		return
	}

	count, err := h.peer.Receive(c.Request.Context(), req)
	if errors.Is(err, peersync.ErrInvalidPush) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err != nil {
		h.log.Error("Failed to store peer push", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to store items"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}

// ApplyLinks handles POST /api/v1/apply-links.
func (h *PeerHandler) ApplyLinks(c *gin.Context) {
	var req peersync.ApplyLinksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid JSON body: " + err.Error()})
		return
	}

	res, err := h.applier.ApplyLinks(c.Request.Context(), req.Links)
	if err != nil {
		h.log.Error("Failed to apply links", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"applied":      res.Applied,
		"accepted":     res.Accepted,
		"rejected":     res.Rejected,
		"fingerprints": res.Fingerprints,
	})
}

// FullDump handles GET /api/v1/full-dump?scope=local|merged.
func (h *PeerHandler) FullDump(c *gin.Context) {
	scope, err := export.ParseScope(c.Query("scope"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	// Headers are only committed on the first body write, so an early
	// ErrNoSnapshot can still become a 503.
	c.Header("Content-Type", "application/json; charset=utf-8")
	err = h.snapshot.WriteSnapshot(c.Writer, scope)
	switch {
	case errors.Is(err, export.ErrNoSnapshot):
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error()})
	case err != nil && !c.Writer.Written():
		h.log.Error("Failed to read snapshot", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to read snapshot"})
	case err != nil:
		h.log.Warn("Snapshot stream interrupted", infralogger.Error(err))
	}
}
