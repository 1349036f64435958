package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "none.env"))
	return path
}

const minimal = `
site:
  role: shop
  url: "https://www.shop.example.com"
database:
  host: localhost
  user: linksync
  dbname: linksync
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.Site.Role != domain.RoleShop {
		t.Errorf("Site.Role = %q, want shop", cfg.Site.Role)
	}
	if cfg.Server.Port != defaultServerPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, defaultServerPort)
	}
	if cfg.Sync.Timeout != defaultPeerTimeout {
		t.Errorf("Sync.Timeout = %v, want %v", cfg.Sync.Timeout, defaultPeerTimeout)
	}
	if cfg.Scheduler.Schedules["lifecycle"] != "@hourly" {
		t.Errorf("lifecycle schedule = %q, want @hourly", cfg.Scheduler.Schedules["lifecycle"])
	}
	if !cfg.Links.SelfLinksPrevented() {
		t.Error("SelfLinksPrevented() = false, want true by default")
	}
	if cfg.Sync.PeerConfigured() {
		t.Error("PeerConfigured() = true with no peer settings")
	}
	if got := cfg.SiteHost(); got != "shop.example.com" {
		t.Errorf("SiteHost() = %q, want shop.example.com", got)
	}
	if len(cfg.ScanKinds()) != len(domain.AllKinds) {
		t.Errorf("ScanKinds() = %v, want all kinds", cfg.ScanKinds())
	}
	if cfg.Links.ExcludedCategories == nil || len(cfg.Links.ExcludedCategories) != 0 {
		t.Errorf("Links.ExcludedCategories = %v, want empty", cfg.Links.ExcludedCategories)
	}
}

func TestLoad_ExcludedCategories(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal+"links:\n  excluded_categories: [Legal, \"Shop/Clearance\"]\n"))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	want := []string{"Legal", "Shop/Clearance"}
	if len(cfg.Links.ExcludedCategories) != len(want) {
		t.Fatalf("Links.ExcludedCategories = %v, want %v", cfg.Links.ExcludedCategories, want)
	}
	for i := range want {
		if cfg.Links.ExcludedCategories[i] != want[i] {
			t.Errorf("Links.ExcludedCategories[%d] = %q, want %q", i, cfg.Links.ExcludedCategories[i], want[i])
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, minimal)
	t.Setenv("SITE_ROLE", "blog")
	t.Setenv("SYNC_PEER_URL", "https://shop.example.com")
	t.Setenv("SYNC_PEER_KEY", "s3cret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Site.Role != domain.RoleBlog {
		t.Errorf("Site.Role = %q, want blog", cfg.Site.Role)
	}
	if !cfg.Sync.PeerConfigured() {
		t.Error("PeerConfigured() = false after env override")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad role", mutate: func(c *Config) { c.Site.Role = "forum" }, wantErr: true},
		{name: "relative site url", mutate: func(c *Config) { c.Site.URL = "/shop" }, wantErr: true},
		{name: "bad peer url", mutate: func(c *Config) { c.Sync.PeerURL = "shop.example.com" }, wantErr: true},
		{name: "negative density", mutate: func(c *Config) { c.Links.DensityPer1000Words = -1 }, wantErr: true},
		{name: "unknown kind", mutate: func(c *Config) { c.Health.ScanKinds = []string{"attachment"} }, wantErr: true},
		{name: "missing db", mutate: func(c *Config) { c.Database.Host = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Site:     SiteConfig{Role: domain.RoleShop, URL: "https://shop.example.com"},
				Database: DatabaseConfig{Host: "db", User: "u", DBName: "d"},
			}
			setDefaults(cfg)
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{Sync: SyncConfig{Timeout: 5 * time.Second}}
	setDefaults(cfg)
	if cfg.Sync.Timeout != 5*time.Second {
		t.Errorf("Sync.Timeout = %v, want 5s", cfg.Sync.Timeout)
	}
}
