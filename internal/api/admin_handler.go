package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/database"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
	"github.com/jonesrussell/north-cloud/linksync/internal/jobs"
	"github.com/jonesrussell/north-cloud/linksync/internal/peersync"
	"github.com/jonesrussell/north-cloud/linksync/internal/suggestion"
)

const (
	maxImportBody      = 16 << 20
	defaultHealthLimit = 100
	maxHealthLimit     = 500
	operatorReason     = "operator"
)

// SuggestionImporter validates and stores a suggestion batch.
type SuggestionImporter interface {
	Import(ctx context.Context, payload []byte) (*suggestion.Result, error)
}

// LinkStore lists pending links and moves them between statuses.
type LinkStore interface {
	List(ctx context.Context, filter database.LinkFilter) ([]domain.PendingLink, int, error)
	GetByID(ctx context.Context, id int64) (*domain.PendingLink, error)
	Transition(ctx context.Context, ids []int64, from []domain.LinkStatus, to domain.LinkStatus, reason string) (int64, error)
	Events(ctx context.Context, linkID int64) ([]domain.LinkEvent, error)
}

// HealthStore reads link health rows and their aggregate counts.
type HealthStore interface {
	Stats(ctx context.Context) (domain.HealthStats, error)
	ListBroken(ctx context.Context, limit int) ([]domain.LinkHealthRecord, error)
	ListPending(ctx context.Context, limit int) ([]domain.LinkHealthRecord, error)
}

// JobRunner runs, queues and reports on background jobs.
type JobRunner interface {
	RunNow(ctx context.Context, name string) (jobs.State, error)
	Enqueue(name string) error
	States() []jobs.State
}

// PeerTester checks connectivity and authentication with the peer site.
type PeerTester interface {
	Test(ctx context.Context) (*peersync.Result, error)
}

// AdminHandler serves the operator API.
type AdminHandler struct {
	importer SuggestionImporter
	links    LinkStore
	health   HealthStore
	jobs     JobRunner
	peer     PeerTester
	log      infralogger.Logger
}

// NewAdminHandler creates the operator API handler.
func NewAdminHandler(
	importer SuggestionImporter, links LinkStore, health HealthStore, runner JobRunner, peer PeerTester,
	log infralogger.Logger,
) *AdminHandler {
	return &AdminHandler{importer: importer, links: links, health: health, jobs: runner, peer: peer, log: log}
}

// ImportSuggestions handles POST /admin/suggestions/import. The body is the
// raw suggestion batch, fenced or not.
func (h *AdminHandler) ImportSuggestions(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	res, err := h.importer.Import(c.Request.Context(), payload)
	if errors.Is(err, suggestion.ErrInvalidBatch) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Error("Suggestion import failed", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to import suggestions"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListLinks handles GET /admin/links.
func (h *AdminHandler) ListLinks(c *gin.Context) {
	filter := database.LinkFilter{SourceID: c.Query("source_id"), SourceSite: c.Query("source_site")}

	if s := c.Query("status"); s != "" {
		status, err := domain.ParseLinkStatus(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Statuses = []domain.LinkStatus{status}
	}

	var ok bool
	if filter.Limit, ok = intQuery(c, "limit", 0); !ok {
		return
	}
	if filter.Offset, ok = intQuery(c, "offset", 0); !ok {
		return
	}

	links, total, err := h.links.List(c.Request.Context(), filter)
	if err != nil {
		h.log.Error("Failed to list links", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list links"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": links, "count": total})
}

type statusRequest struct {
	Status string `binding:"required" json:"status"`
}

// SetLinkStatus handles POST /admin/links/:id/status.
func (h *AdminHandler) SetLinkStatus(c *gin.Context) {
	id, ok := linkID(c)
	if !ok {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	to, err := domain.ParseLinkStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	link, err := h.links.GetByID(ctx, id)
	if err != nil {
		h.linkError(c, err)
		return
	}
	if err = domain.ValidateTransition(link.Status, to); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	moved, err := h.links.Transition(ctx, []int64{id}, []domain.LinkStatus{link.Status}, to, operatorReason)
	if err != nil {
		h.linkError(c, err)
		return
	}
	if moved == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "link status changed concurrently, reload and retry"})
		return
	}

	h.log.Info("Link status set by operator",
		infralogger.LinkID(id),
		infralogger.String("from", string(link.Status)),
		infralogger.String("to", string(to)),
	)
	link.Status = to
	c.JSON(http.StatusOK, link)
}

// LinkEvents handles GET /admin/links/:id/events.
func (h *AdminHandler) LinkEvents(c *gin.Context) {
	id, ok := linkID(c)
	if !ok {
		return
	}
	events, err := h.links.Events(c.Request.Context(), id)
	if err != nil {
		h.linkError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"link_id": id, "events": events})
}

// HealthStats handles GET /admin/health/stats.
func (h *AdminHandler) HealthStats(c *gin.Context) {
	stats, err := h.health.Stats(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to compute health stats", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute health stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HealthLinks handles GET /admin/health/links. broken=false lists rows
// still waiting for a check. limit is capped at maxHealthLimit.
func (h *AdminHandler) HealthLinks(c *gin.Context) {
	limit, ok := intQuery(c, "limit", defaultHealthLimit)
	if !ok {
		return
	}
	if limit == 0 {
		limit = defaultHealthLimit
	}
	limit = min(limit, maxHealthLimit)

	list := h.health.ListBroken
	if c.DefaultQuery("broken", "true") == "false" {
		list = h.health.ListPending
	}

	rows, err := list(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("Failed to list health rows", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list links"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": rows, "count": len(rows)})
}

// RunJob handles POST /admin/jobs/:name/run.
func (h *AdminHandler) RunJob(c *gin.Context) {
	state, err := h.jobs.RunNow(c.Request.Context(), c.Param("name"))
	if errors.Is(err, jobs.ErrUnknownJob) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	switch state.Outcome {
	case jobs.OutcomeFailed:
		status = http.StatusBadGateway
	case jobs.OutcomeSkipped:
		status = http.StatusConflict
	case jobs.OutcomeSuccess:
	}
	c.JSON(status, state)
}

// EnqueueJob handles POST /admin/jobs/:name/enqueue.
func (h *AdminHandler) EnqueueJob(c *gin.Context) {
	name := c.Param("name")
	if err := h.jobs.Enqueue(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": name})
}

// ListJobs handles GET /admin/jobs.
func (h *AdminHandler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.jobs.States()})
}

// TestPeer handles POST /admin/peer/test. The first error is returned as is
// so the operator sees the peer's status and hint.
func (h *AdminHandler) TestPeer(c *gin.Context) {
	res, err := h.peer.Test(c.Request.Context())
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "count": res.Count, "peer_role": res.PeerRole})
		return
	}

	if errors.Is(err, peersync.ErrPeerNotConfigured) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	var peerErr *peersync.PeerError
	if errors.As(err, &peerErr) {
		c.JSON(http.StatusBadGateway, gin.H{
			"success":     false,
			"error":       peerErr.Error(),
			"status_code": peerErr.StatusCode,
			"hint":        peerErr.Hint,
		})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
}

func (h *AdminHandler) linkError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrLinkNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
	case errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error("Link operation failed", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Link operation failed"})
	}
}

func linkID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid link ID format"})
		return 0, false
	}
	return id, true
}

func intQuery(c *gin.Context, key string, fallback int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + key})
		return 0, false
	}
	return n, true
}
