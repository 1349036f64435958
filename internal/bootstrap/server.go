package bootstrap

import (
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	infracontext "github.com/jonesrussell/north-cloud/linksync/infrastructure/context"
	infragin "github.com/jonesrussell/north-cloud/linksync/infrastructure/gin"
	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/infrastructure/metrics"
	"github.com/jonesrussell/north-cloud/linksync/internal/api"
	"github.com/jonesrussell/north-cloud/linksync/internal/config"
	"github.com/jonesrussell/north-cloud/linksync/internal/observability"
)

// SetupHTTPServer creates the HTTP server over svc.
func SetupHTTPServer(
	cfg *config.Config, svc *Services, db *sqlx.DB, rdb *redis.Client, log infralogger.Logger,
) *infragin.Server {
	peerHandler := api.NewPeerHandler(svc.PeerServer, svc.Lifecycle, svc.Exporter, log)
	adminHandler := api.NewAdminHandler(svc.Importer, svc.Repos.Links, svc.Repos.Health, svc.Dispatcher, svc.PeerClient, log)

	pingDB := func() error {
		ctx, cancel := infracontext.WithPingTimeout()
		defer cancel()
		return db.PingContext(ctx)
	}

	var pingRedis func() error
	if rdb != nil {
		pingRedis = func() error {
			ctx, cancel := infracontext.WithPingTimeout()
			defer cancel()
			return rdb.Ping(ctx).Err()
		}
	}

	return api.NewServer(cfg, api.RouteConfig{
		LocalKey:    cfg.Sync.LocalKey,
		JWTSecret:   cfg.Auth.JWTSecret,
		Gatherer:    svc.Registry,
		HTTPMetrics: metrics.NewHTTPMetrics(svc.Registry, observability.MetricsNamespace),
	}, peerHandler, adminHandler, log, pingDB, pingRedis)
}
