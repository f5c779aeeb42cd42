package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"royalty/internal/config"
)

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unset %s: %v", key, err)
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	unsetEnv(t, "ROYALTY_STORE_DSN")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "royalty")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.SQLitePath() != filepath.Join(wantData, "royalty.db") {
		t.Fatalf("unexpected sqlite path: %q", cfg.SQLitePath())
	}
	if cfg.API.Bind != "127.0.0.1:7491" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Fatalf("expected sqlite driver by default, got %q", cfg.Store.Driver)
	}
	if cfg.UnitTimeout().Seconds() != 30 {
		t.Fatalf("unexpected unit timeout: %v", cfg.UnitTimeout())
	}
	if cfg.FailureDelay().Milliseconds() != 500 {
		t.Fatalf("unexpected failure delay: %v", cfg.FailureDelay())
	}
	if cfg.Sync.DefaultStartYear != 2011 || cfg.Sync.DefaultStartMonth != 1 {
		t.Fatalf("unexpected default start: %d/%d", cfg.Sync.DefaultStartYear, cfg.Sync.DefaultStartMonth)
	}
	if cfg.Inbox.Enabled {
		t.Fatal("expected inbox disabled by default")
	}
}

func TestLoadCustomConfigOverridesValues(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	unsetEnv(t, "ROYALTY_STORE_DSN")

	configPath := filepath.Join(tempHome, "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"data_dir": "~/custom-data",
		},
		"store": map[string]any{
			"driver": "PostgreSQL",
			"dsn":    "postgres://royalty@localhost/royalty?sslmode=disable",
		},
		"sync": map[string]any{
			"unit_timeout_seconds": 5,
			"default_start_year":   2020,
			"default_start_month":  6,
		},
		"events": map[string]any{
			"kafka_brokers": []string{" broker:9092 ", ""},
		},
		"logging": map[string]any{
			"format": "JSON",
			"level":  "DEBUG",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "custom-data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Store.Driver != "postgres" {
		t.Fatalf("expected driver alias to normalize, got %q", cfg.Store.Driver)
	}
	if cfg.Sync.UnitTimeoutSeconds != 5 || cfg.Sync.DefaultStartMonth != 6 {
		t.Fatalf("unexpected sync section: %+v", cfg.Sync)
	}
	if len(cfg.Events.KafkaBrokers) != 1 || cfg.Events.KafkaBrokers[0] != "broker:9092" {
		t.Fatalf("unexpected kafka brokers: %v", cfg.Events.KafkaBrokers)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
}

func TestLoadReadsDotEnvBesideConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	unsetEnv(t, "ROYALTY_PORTAL_COOKIE")
	unsetEnv(t, "ROYALTY_STORE_DSN")

	configPath := filepath.Join(tempHome, "config.toml")
	if err := os.WriteFile(configPath, []byte("[portal]\nuser_agent = \"test\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tempHome, ".env"), []byte("ROYALTY_PORTAL_COOKIE=session=abc\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Portal.Cookie != "session=abc" {
		t.Fatalf("expected cookie from .env, got %q", cfg.Portal.Cookie)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"store.driver":              func(c *config.Config) { c.Store.Driver = "oracle" },
		"store.dsn":                 func(c *config.Config) { c.Store.Driver = "mysql"; c.Store.DSN = "" },
		"sync.default_start_month":  func(c *config.Config) { c.Sync.DefaultStartMonth = 13 },
		"sync.unit_timeout_seconds": func(c *config.Config) { c.Sync.UnitTimeoutSeconds = -1 },
		"portal.base_url":           func(c *config.Config) { c.Portal.BaseURL = "not a url" },
		"events.mqtt_broker":        func(c *config.Config) { c.Events.MQTTBroker = "localhost" },
		"logging.level":             func(c *config.Config) { c.Logging.Level = "loud" },
	}
	for key, mutate := range cases {
		t.Run(key, func(t *testing.T) {
			cfg := config.Default()
			mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error for %s", key)
			}
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("expected error to mention %s, got %v", key, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	unsetEnv(t, "ROYALTY_STORE_DSN")

	path := filepath.Join(tempHome, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Portal.BaseURL != config.Default().Portal.BaseURL {
		t.Fatalf("unexpected base url: %q", cfg.Portal.BaseURL)
	}
}

func TestEnsureDirectoriesCreatesInboxWhenEnabled(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.ExportDir = filepath.Join(base, "exports")
	cfg.Paths.InboxDir = filepath.Join(base, "inbox")
	cfg.Inbox.Enabled = true

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.ExportDir, cfg.Paths.InboxDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

func TestRedactedMasksSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.Portal.Cookie = "session=abc"
	cfg.API.Token = "secret"
	cases := map[string]string{
		"postgres://royalty:pw@localhost/royalty?sslmode=disable": "postgres://royalty:<redacted>@localhost/royalty?sslmode=disable",
		"royalty:pw@tcp(127.0.0.1:3306)/royalty":                  "royalty:<redacted>@tcp(127.0.0.1:3306)/royalty",
		"postgres://localhost/royalty":                            "postgres://localhost/royalty",
		"":                                                        "",
	}
	for dsn, want := range cases {
		cfg.Store.DSN = dsn
		got := cfg.Redacted()
		if got.Store.DSN != want {
			t.Fatalf("redact %q: got %q want %q", dsn, got.Store.DSN, want)
		}
		if got.Portal.Cookie != "<redacted>" || got.API.Token != "<redacted>" {
			t.Fatalf("expected secrets masked, got %+v %+v", got.Portal, got.API)
		}
	}
	if cfg.Portal.Cookie != "session=abc" {
		t.Fatal("Redacted must not modify the receiver")
	}
}
