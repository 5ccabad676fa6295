package internal

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pkgconfig "github.com/starford/luzzle/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Attachments.MaxSizeMB != 50 {
		t.Errorf("attachment max size = %d MB", cfg.Attachments.MaxSizeMB)
	}
}

func TestConfig_DatabaseAndLockPaths(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Storage.Root = "/srv/pieces"
	if got, want := cfg.DatabasePath(), filepath.Join("/srv/pieces", ".luzzle", "luzzle.db"); got != want {
		t.Errorf("DatabasePath = %q, want %q", got, want)
	}
	if got, want := cfg.LockPath(), filepath.Join("/srv/pieces", ".luzzle", "sync.lock"); got != want {
		t.Errorf("LockPath = %q, want %q", got, want)
	}
	cfg.SQLite.Path = "/tmp/x.db"
	if cfg.DatabasePath() != "/tmp/x.db" {
		t.Errorf("explicit sqlite path ignored: %q", cfg.DatabasePath())
	}
}

func TestConfig_RangeValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no root", func(c *Config) { c.Storage.Root = "" }},
		{"bad port", func(c *Config) { c.App.HTTP.Port = 70000 }},
		{"negative concurrency", func(c *Config) { c.Sync.Concurrency = -1 }},
		{"negative attachment size", func(c *Config) { c.Attachments.MaxSizeMB = -1 }},
		{"negative log backups", func(c *Config) { c.App.LogFile.MaxBackups = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfig_LoadYAML(t *testing.T) {
	t.Setenv("LUZZLE_TEST_TOKEN", "s3cret")
	p := filepath.Join(t.TempDir(), "config.yaml")
	src := `app:
  log_level: debug
  http:
    port: 9090
storage:
  root: /srv/pieces
auth:
  mode: token
  token: ${LUZZLE_TEST_TOKEN}
sync:
  concurrency: 4
`
	if err := os.WriteFile(p, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(p, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.LogLevel != slog.LevelDebug || cfg.App.HTTP.Port != 9090 {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Auth.Token != "s3cret" || !cfg.Auth.AuthEnabled() {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Sync.Concurrency != 4 || cfg.Storage.Root != "/srv/pieces" {
		t.Errorf("sync = %+v, storage = %+v", cfg.Sync, cfg.Storage)
	}
	if cfg.App.LogFile.MaxBackups != 3 {
		t.Errorf("defaults lost: %+v", cfg.App.LogFile)
	}
	if len(cfg.Attachments.ResolverOptions()) != 1 {
		t.Errorf("resolver options = %d, want max size only", len(cfg.Attachments.ResolverOptions()))
	}
}

func TestNewLogger_WritesLogFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "logs", "luzzle.log")
	cfg := NewDefaultConfig().App
	cfg.LogFile.Path = p
	logger, closer := NewLogger(cfg, io.Discard)
	logger.Info("hello", slog.String("k", "v"))
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) || !strings.Contains(string(data), `"k":"v"`) {
		t.Errorf("log file = %q", data)
	}
}
