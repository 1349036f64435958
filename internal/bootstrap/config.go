package bootstrap

import (
	"fmt"

	infraconfig "github.com/jonesrussell/north-cloud/linksync/infrastructure/config"
	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/config"
)

// DefaultConfigPath is used when neither --config nor CONFIG_PATH is set.
const DefaultConfigPath = "config.yml"

// LoadConfig loads and validates configuration. An empty path falls back to
// CONFIG_PATH, then DefaultConfigPath.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = infraconfig.GetConfigPath(DefaultConfigPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// CreateLogger creates the service logger tagged with the site role.
func CreateLogger(cfg *config.Config) (infralogger.Logger, error) {
	log, err := infralogger.New(infralogger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(
		infralogger.String("service", "linksync"),
		infralogger.String("site_role", string(cfg.Site.Role)),
	), nil
}
