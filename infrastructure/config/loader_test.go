package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/linksync/infrastructure/config"
)

type sample struct {
	Name    string        `env:"SAMPLE_NAME"    yaml:"name"`
	Port    int           `env:"SAMPLE_PORT"    yaml:"port"`
	Timeout time.Duration `env:"SAMPLE_TIMEOUT" yaml:"timeout"`
	Tags    []string      `env:"SAMPLE_TAGS"    yaml:"tags"`
	Nested  struct {
		Enabled bool `env:"SAMPLE_ENABLED" yaml:"enabled"`
	} `yaml:"nested"`
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadWithDefaults_EnvWins(t *testing.T) {
	path := writeFile(t, "name: shop\nport: 8080\n")
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SAMPLE_PORT", "9090")
	t.Setenv("SAMPLE_TIMEOUT", "3s")
	t.Setenv("SAMPLE_TAGS", "a, b")
	t.Setenv("SAMPLE_ENABLED", "yes")

	cfg, err := config.LoadWithDefaults(path, func(s *sample) {
		if s.Port == 0 {
			s.Port = 1
		}
		if s.Timeout == 0 {
			s.Timeout = time.Minute
		}
	})
	if err != nil {
		t.Fatalf("LoadWithDefaults() error = %v", err)
	}

	if cfg.Name != "shop" {
		t.Errorf("Name = %q, want shop", cfg.Name)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", cfg.Timeout)
	}
	if len(cfg.Tags) != 2 || cfg.Tags[1] != "b" {
		t.Errorf("Tags = %v, want [a b]", cfg.Tags)
	}
	if !cfg.Nested.Enabled {
		t.Error("Nested.Enabled = false, want true")
	}
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SAMPLE_NAME", "blog")

	cfg, err := config.Load[sample](filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Name != "blog" {
		t.Errorf("Name = %q, want blog", cfg.Name)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	path := writeFile(t, "name: [unterminated\n")

	if _, err := config.Load[sample](path); err == nil {
		t.Fatal("Load() error = nil, want parse error")
	}
}

func TestValidateHTTPURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value   string
		wantErr bool
	}{
		{"", false},
		{"https://shop.example.com", false},
		{"ftp://shop.example.com", true},
		{"/relative", true},
	}
	for _, tt := range tests {
		err := config.ValidateHTTPURL("sync.peer_url", tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateHTTPURL(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
		var vErr *config.ValidationError
		if err != nil && !errors.As(err, &vErr) {
			t.Errorf("ValidateHTTPURL(%q) error type = %T", tt.value, err)
		}
	}
}
