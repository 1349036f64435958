// Package config defines the immutable linksync configuration. It is loaded
// once at startup and passed by pointer to every component constructor.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	infraconfig "github.com/jonesrussell/north-cloud/linksync/infrastructure/config"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

const (
	defaultServerPort        = 8095
	defaultServerTimeout     = 30 * time.Second
	defaultDatabasePort      = 5432
	defaultMaxOpenConns      = 25
	defaultMaxIdleConns      = 5
	defaultConnMaxLifetime   = 5 * time.Minute
	defaultRedisAddress      = "localhost:6379"
	defaultPeerTimeout       = 20 * time.Second
	defaultFailureCacheTTL   = 2 * time.Minute
	defaultDensity           = 3.0
	defaultHealthBatchSize   = 50
	defaultHealthTimeout     = 15 * time.Second
	defaultExternalRPS       = 2.0
	defaultHealthConcurrency = 4
	defaultExportPageSize    = 200
	defaultExportDir         = "./var/export"
	defaultTickSpec          = "@every 1m"
	defaultLifecycleSpec     = "@hourly"
	defaultApprovalTimeout   = 15 * time.Second
	defaultHealthUserAgent   = "linksync-health/1.0"
	defaultServiceVersionTag = "dev"
)

var defaultExcludedTags = []string{"script", "style", "code", "pre", "h1", "h2", "h3", "button"}

type Config struct {
	Debug     bool            `env:"APP_DEBUG" yaml:"debug"`
	Version   string          `yaml:"version"`
	Site      SiteConfig      `yaml:"site"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Sync      SyncConfig      `yaml:"sync"`
	Links     LinksConfig     `yaml:"links"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Health    HealthConfig    `yaml:"health"`
	Export    ExportConfig    `yaml:"export"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig describes the site this instance serves.
type SiteConfig struct {
	Role domain.SiteRole `env:"SITE_ROLE" yaml:"role"`
	URL  string          `env:"SITE_URL"  yaml:"url"`
}

type ServerConfig struct {
	Port         int           `env:"SERVER_PORT" yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// PprofPort serves /debug/pprof on localhost when non-zero.
	PprofPort int `env:"PPROF_PORT" yaml:"pprof_port"`
}

type DatabaseConfig struct {
	Host            string        `env:"DB_HOST"     yaml:"host"`
	Port            int           `env:"DB_PORT"     yaml:"port"`
	User            string        `env:"DB_USER"     yaml:"user"`
	Password        string        `env:"DB_PASSWORD" yaml:"password"`
	DBName          string        `env:"DB_NAME"     yaml:"dbname"`
	SSLMode         string        `env:"DB_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig is optional; without it job locks are process-local and peer
// failures are cached in memory for this process only.
type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED"  yaml:"enabled"`
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
}

type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

// SyncConfig holds the shared-secret peer settings.
type SyncConfig struct {
	// LocalKey authenticates peers calling this instance.
	LocalKey string `env:"SYNC_LOCAL_KEY" yaml:"local_key"`
	// PeerURL and PeerKey address the other site's instance.
	PeerURL         string        `env:"SYNC_PEER_URL" yaml:"peer_url"`
	PeerKey         string        `env:"SYNC_PEER_KEY" yaml:"peer_key"`
	Timeout         time.Duration `yaml:"timeout"`
	FailureCacheTTL time.Duration `yaml:"failure_cache_ttl"`
}

// PeerConfigured reports whether both peer URL and key are set.
func (s SyncConfig) PeerConfigured() bool {
	return s.PeerURL != "" && s.PeerKey != ""
}

// LinksConfig shapes injected anchors.
type LinksConfig struct {
	// DensityPer1000Words caps generated links per item. 0 disables the cap.
	DensityPer1000Words float64  `env:"LINKS_DENSITY" yaml:"density_per_1000_words"`
	Nofollow            bool     `yaml:"nofollow"`
	NewTab              bool     `yaml:"new_tab"`
	PreventSelfLinks    *bool    `yaml:"prevent_self_links"`
	ExcludedTags        []string `yaml:"excluded_tags"`
	ExcludedKinds       []string `yaml:"excluded_kinds"`
	// ExcludedCategories names categories whose items never receive links.
	// Empty excludes nothing.
	ExcludedCategories []string `yaml:"excluded_categories"`
}

// SelfLinksPrevented defaults to true.
func (l LinksConfig) SelfLinksPrevented() bool {
	return l.PreventSelfLinks == nil || *l.PreventSelfLinks
}

// SchedulerConfig holds cron specs per job and the optional approval channel.
type SchedulerConfig struct {
	Enabled         bool              `env:"SCHEDULER_ENABLED" yaml:"enabled"`
	Tick            string            `yaml:"tick"`
	Schedules       map[string]string `yaml:"schedules"`
	ApprovalURL     string            `env:"APPROVAL_URL" yaml:"approval_url"`
	ApprovalKey     string            `env:"APPROVAL_KEY" yaml:"approval_key"`
	ApprovalTimeout time.Duration     `yaml:"approval_timeout"`
}

type HealthConfig struct {
	BatchSize   int           `yaml:"batch_size"`
	Timeout     time.Duration `yaml:"timeout"`
	ExternalRPS float64       `yaml:"external_rps"`
	UserAgent   string        `yaml:"user_agent"`
	Concurrency int           `yaml:"concurrency"`
	ScanKinds   []string      `yaml:"scan_kinds"`
}

type ExportConfig struct {
	Dir      string `env:"EXPORT_DIR" yaml:"dir"`
	PageSize int    `yaml:"page_size"`
}

type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" yaml:"level"`
}

// Load reads path, applies defaults and validates.
func Load(path string) (*Config, error) {
	cfg, err := infraconfig.LoadWithDefaults(path, setDefaults)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("invalid config: %w", validateErr)
	}

	return cfg, nil
}

// Validate checks required settings. Peer settings are optional: the sync
// client reports ErrPeerNotConfigured at call time instead.
func (c *Config) Validate() error {
	if !c.Site.Role.Valid() {
		return &infraconfig.ValidationError{Field: "site.role", Message: "must be shop or blog"}
	}
	if err := infraconfig.ValidateRequired("site.url", c.Site.URL); err != nil {
		return err
	}
	if err := infraconfig.ValidateHTTPURL("site.url", c.Site.URL); err != nil {
		return err
	}
	if err := infraconfig.ValidatePort("server.port", c.Server.Port); err != nil {
		return err
	}
	if err := infraconfig.ValidateRequired("database.host", c.Database.Host); err != nil {
		return err
	}
	if err := infraconfig.ValidateRequired("database.user", c.Database.User); err != nil {
		return err
	}
	if err := infraconfig.ValidateRequired("database.dbname", c.Database.DBName); err != nil {
		return err
	}
	if err := infraconfig.ValidateHTTPURL("sync.peer_url", c.Sync.PeerURL); err != nil {
		return err
	}
	if err := infraconfig.ValidateHTTPURL("scheduler.approval_url", c.Scheduler.ApprovalURL); err != nil {
		return err
	}
	if c.Links.DensityPer1000Words < 0 {
		return errors.New("links.density_per_1000_words must not be negative")
	}
	for _, k := range append(append([]string{}, c.Links.ExcludedKinds...), c.Health.ScanKinds...) {
		if _, err := domain.ParseContentKind(k); err != nil {
			return &infraconfig.ValidationError{Field: "content kinds", Message: err.Error()}
		}
	}
	return nil
}

// SiteHost returns the host of Site.URL without a leading "www.".
func (c *Config) SiteHost() string {
	u, err := url.Parse(c.Site.URL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// ScanKinds returns the parsed health scan kinds; every kind when unset.
func (c *Config) ScanKinds() []domain.ContentKind {
	return parseKinds(c.Health.ScanKinds, domain.AllKinds)
}

// ExcludedKinds returns the kinds never used as injection sources.
func (c *Config) ExcludedKinds() []domain.ContentKind {
	return parseKinds(c.Links.ExcludedKinds, nil)
}

func parseKinds(names []string, fallback []domain.ContentKind) []domain.ContentKind {
	if len(names) == 0 {
		return fallback
	}
	kinds := make([]domain.ContentKind, 0, len(names))
	for _, n := range names {
		if k, err := domain.ParseContentKind(n); err == nil {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func setDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = defaultServiceVersionTag
	}
	setServerDefaults(&cfg.Server)
	setDatabaseDefaults(&cfg.Database)
	if cfg.Redis.Address == "" {
		cfg.Redis.Address = defaultRedisAddress
	}
	if cfg.Sync.Timeout == 0 {
		cfg.Sync.Timeout = defaultPeerTimeout
	}
	if cfg.Sync.FailureCacheTTL == 0 {
		cfg.Sync.FailureCacheTTL = defaultFailureCacheTTL
	}
	if cfg.Links.DensityPer1000Words == 0 {
		cfg.Links.DensityPer1000Words = defaultDensity
	}
	if len(cfg.Links.ExcludedTags) == 0 {
		cfg.Links.ExcludedTags = defaultExcludedTags
	}
	if cfg.Links.ExcludedCategories == nil {
		cfg.Links.ExcludedCategories = []string{}
	}
	setSchedulerDefaults(&cfg.Scheduler)
	if cfg.Health.BatchSize == 0 {
		cfg.Health.BatchSize = defaultHealthBatchSize
	}
	if cfg.Health.Timeout == 0 {
		cfg.Health.Timeout = defaultHealthTimeout
	}
	if cfg.Health.ExternalRPS == 0 {
		cfg.Health.ExternalRPS = defaultExternalRPS
	}
	if cfg.Health.Concurrency == 0 {
		cfg.Health.Concurrency = defaultHealthConcurrency
	}
	if cfg.Health.UserAgent == "" {
		cfg.Health.UserAgent = defaultHealthUserAgent
	}
	if cfg.Export.Dir == "" {
		cfg.Export.Dir = defaultExportDir
	}
	if cfg.Export.PageSize == 0 {
		cfg.Export.PageSize = defaultExportPageSize
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func setServerDefaults(s *ServerConfig) {
	if s.Port == 0 {
		s.Port = defaultServerPort
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = defaultServerTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 4 * defaultServerTimeout
	}
}

func setDatabaseDefaults(d *DatabaseConfig) {
	if d.Port == 0 {
		d.Port = defaultDatabasePort
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.MaxOpenConns == 0 {
		d.MaxOpenConns = defaultMaxOpenConns
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = defaultMaxIdleConns
	}
	if d.ConnMaxLifetime == 0 {
		d.ConnMaxLifetime = defaultConnMaxLifetime
	}
}

func setSchedulerDefaults(s *SchedulerConfig) {
	if s.Tick == "" {
		s.Tick = defaultTickSpec
	}
	if s.ApprovalTimeout == 0 {
		s.ApprovalTimeout = defaultApprovalTimeout
	}
	if s.Schedules == nil {
		s.Schedules = map[string]string{}
	}
	if _, ok := s.Schedules["lifecycle"]; !ok {
		s.Schedules["lifecycle"] = defaultLifecycleSpec
	}
}
