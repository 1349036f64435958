package bootstrap

import (
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/config"
	"github.com/jonesrussell/north-cloud/linksync/internal/database"
	"github.com/jonesrussell/north-cloud/linksync/internal/export"
	"github.com/jonesrussell/north-cloud/linksync/internal/health"
	"github.com/jonesrussell/north-cloud/linksync/internal/htmldoc"
	"github.com/jonesrussell/north-cloud/linksync/internal/indexer"
	"github.com/jonesrussell/north-cloud/linksync/internal/injector"
	"github.com/jonesrussell/north-cloud/linksync/internal/jobs"
	"github.com/jonesrussell/north-cloud/linksync/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/linksync/internal/observability"
	"github.com/jonesrussell/north-cloud/linksync/internal/peersync"
	"github.com/jonesrussell/north-cloud/linksync/internal/suggestion"
)

// Repositories groups the Postgres repositories.
type Repositories struct {
	Content *database.ContentRepository
	Links   *database.LinkRepository
	Health  *database.HealthRepository
	Export  *database.ExportRepository
	Site    *database.SiteRepository
}

// Services holds every wired component.
type Services struct {
	Repos      Repositories
	Registry   *prometheus.Registry
	Metrics    *observability.Metrics
	Indexer    *indexer.Indexer
	PeerClient *peersync.Client
	PeerServer *peersync.Server
	Importer   *suggestion.Importer
	Lifecycle  *lifecycle.Processor
	Health     *health.Checker
	Exporter   *export.Exporter
	Dispatcher *jobs.Dispatcher
}

// SetupServices builds the component graph. rdb may be nil.
func SetupServices(cfg *config.Config, db *sqlx.DB, rdb *redis.Client, log infralogger.Logger) (*Services, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	repos := Repositories{
		Content: database.NewContentRepository(db),
		Links:   database.NewLinkRepository(db),
		Health:  database.NewHealthRepository(db),
		Export:  database.NewExportRepository(db),
		Site:    database.NewSiteRepository(db),
	}
	parser := htmldoc.NewParser()
	role := cfg.Site.Role

	var (
		failures peersync.FailureCache = peersync.NewMemoryFailureCache()
		locker   jobs.Locker           = jobs.NewLocalLocker()
	)
	if rdb != nil {
		failures = peersync.NewRedisFailureCache(rdb)
		locker = jobs.NewRedisLocker(rdb, 0, func(name string, err error) {
			log.Warn("Failed to release job lock", infralogger.Job(name), infralogger.Error(err))
		})
	}

	svc := &Services{
		Repos:      repos,
		Registry:   registry,
		Metrics:    metrics,
		Indexer:    indexer.New(repos.Site, repos.Content, parser, role, metrics, log.With(infralogger.String("component", "indexer"))),
		PeerClient: peersync.NewClient(cfg.Sync, role, repos.Content, failures, metrics, log.With(infralogger.String("component", "peersync"))),
		PeerServer: peersync.NewServer(role, cfg.Site.URL, repos.Content, metrics, log.With(infralogger.String("component", "peersync"))),
		Importer:   suggestion.NewImporter(repos.Content, repos.Links, role, metrics, log.With(infralogger.String("component", "importer"))),
	}

	svc.Lifecycle = lifecycle.NewProcessor(
		lifecycle.Config{
			Role:               role,
			ApprovalURL:        cfg.Scheduler.ApprovalURL,
			ApprovalKey:        cfg.Scheduler.ApprovalKey,
			ApprovalTimeout:    cfg.Scheduler.ApprovalTimeout,
			ExcludedKinds:      cfg.ExcludedKinds(),
			ExcludedCategories: cfg.Links.ExcludedCategories,
		},
		repos.Links, repos.Site,
		injector.New(parser, injector.OptionsFromConfig(cfg), metrics),
		parser, svc.PeerClient, metrics, log.With(infralogger.String("component", "lifecycle")),
	)

	svc.Health = health.NewChecker(
		health.Config{
			SiteURL:     cfg.Site.URL,
			SiteHost:    cfg.SiteHost(),
			BatchSize:   cfg.Health.BatchSize,
			Timeout:     cfg.Health.Timeout,
			ExternalRPS: cfg.Health.ExternalRPS,
			UserAgent:   cfg.Health.UserAgent,
			Concurrency: cfg.Health.Concurrency,
		},
		repos.Site, repos.Site, repos.Health, parser, metrics, log.With(infralogger.String("component", "health")),
	)

	svc.Exporter = export.New(
		export.Config{Dir: cfg.Export.Dir, PageSize: cfg.Export.PageSize, LocalRole: role},
		repos.Export, repos.Content, log.With(infralogger.String("component", "export")),
	)

	svc.Dispatcher = jobs.NewDispatcher(locker, metrics, log.With(infralogger.String("component", "jobs")))
	jobs.RegisterDefaults(svc.Dispatcher, jobs.Components{
		Indexer:         svc.Indexer,
		Peer:            svc.PeerClient,
		Lifecycle:       svc.Lifecycle,
		Health:          svc.Health,
		Exporter:        svc.Exporter,
		ScanKinds:       cfg.ScanKinds(),
		HealthBatchSize: cfg.Health.BatchSize,
	})
	if err := jobs.ApplySchedules(svc.Dispatcher, cfg.Scheduler.Schedules); err != nil {
		return nil, err
	}

	return svc, nil
}
