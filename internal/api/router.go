// Package api wires the linksync HTTP surface: shared-secret peer endpoints,
// the JWT-guarded operator API and /metrics.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	infragin "github.com/jonesrussell/north-cloud/linksync/infrastructure/gin"
	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/infrastructure/metrics"
	"github.com/jonesrussell/north-cloud/linksync/internal/config"
)

// RouteConfig carries the secrets and registry the routes need.
type RouteConfig struct {
	LocalKey  string
	JWTSecret string
	Gatherer  prometheus.Gatherer
	// HTTPMetrics is optional.
	HTTPMetrics *metrics.HTTPMetrics
}

// SetupRoutes registers every route. Health routes come from the server builder.
func SetupRoutes(router *gin.Engine, rc RouteConfig, peer *PeerHandler, admin *AdminHandler) {
	if rc.HTTPMetrics != nil {
		router.Use(rc.HTTPMetrics.Middleware())
	}
	if rc.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(rc.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")

	v1.GET("/inventory", sharedSecret(rc.LocalKey, http.StatusForbidden), peer.Inventory)
	v1.POST("/sync", sharedSecret(rc.LocalKey, http.StatusForbidden), peer.Sync)
	v1.POST("/apply-links", sharedSecret(rc.LocalKey, http.StatusForbidden), peer.ApplyLinks)
	v1.GET("/full-dump", sharedSecret(rc.LocalKey, http.StatusUnauthorized), peer.FullDump)

	adminGroup := infragin.ProtectedGroup(v1, "/admin", rc.JWTSecret)
	adminGroup.POST("/suggestions/import", admin.ImportSuggestions)

	links := adminGroup.Group("/links")
	links.GET("", admin.ListLinks)
	links.POST("/:id/status", admin.SetLinkStatus)
	links.GET("/:id/events", admin.LinkEvents)

	health := adminGroup.Group("/health")
	health.GET("/stats", admin.HealthStats)
	health.GET("/links", admin.HealthLinks)

	jobGroup := adminGroup.Group("/jobs")
	jobGroup.GET("", admin.ListJobs)
	jobGroup.POST("/:name/run", admin.RunJob)
	jobGroup.POST("/:name/enqueue", admin.EnqueueJob)

	adminGroup.POST("/peer/test", admin.TestPeer)
}

// NewServer builds the HTTP server.
func NewServer(
	cfg *config.Config,
	rc RouteConfig,
	peer *PeerHandler,
	admin *AdminHandler,
	log infralogger.Logger,
	pingDB func() error,
	pingRedis func() error,
) *infragin.Server {
	builder := infragin.NewServerBuilder("linksync-"+string(cfg.Site.Role), cfg.Server.Port).
		WithLogger(log).
		WithDebug(cfg.Debug).
		WithVersion(cfg.Version).
		WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout).
		WithDatabaseHealthCheck(pingDB).
		WithRoutes(func(router *gin.Engine) {
			SetupRoutes(router, rc, peer, admin)
		})

	if pingRedis != nil {
		builder = builder.WithRedisHealthCheck(pingRedis)
	}
	return builder.Build()
}
