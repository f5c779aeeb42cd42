package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	InboxDir  string `toml:"inbox_dir"`
	ExportDir string `toml:"export_dir"`
}

// API contains the HTTP API bind address and optional bearer token.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Store selects the record store backend.
type Store struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// Portal contains settings for the publisher portal that monthly settlements are fetched from.
type Portal struct {
	BaseURL               string `toml:"base_url"`
	Cookie                string `toml:"cookie"`
	UserAgent             string `toml:"user_agent"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Sync contains timing for the sync controller.
type Sync struct {
	UnitTimeoutSeconds int `toml:"unit_timeout_seconds"`
	FailureDelayMillis int `toml:"failure_delay_millis"`
	DefaultStartYear   int `toml:"default_start_year"`
	DefaultStartMonth  int `toml:"default_start_month"`
}

// Events configures optional sinks that receive sync controller messages.
type Events struct {
	KafkaBrokers          []string `toml:"kafka_brokers"`
	KafkaTopic            string   `toml:"kafka_topic"`
	MQTTBroker            string   `toml:"mqtt_broker"`
	MQTTTopic             string   `toml:"mqtt_topic"`
	NtfyTopic             string   `toml:"ntfy_topic"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
}

// Inbox configures the watched upload directory.
type Inbox struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for royalty.
//
// Configuration sections by subsystem:
//   - Paths: data, log, inbox and export directories
//   - API: HTTP API bind address and token
//   - Store: record store driver and DSN
//   - Portal: publisher portal connection used by sync sessions
//   - Sync: per-unit timeout and failure delay
//   - Events: Kafka, MQTT and ntfy sinks
//   - Inbox: watched upload directory
//   - Logging: log format, level, and retention
type Config struct {
	Paths   Paths   `toml:"paths"`
	API     API     `toml:"api"`
	Store   Store   `toml:"store"`
	Portal  Portal  `toml:"portal"`
	Sync    Sync    `toml:"sync"`
	Events  Events  `toml:"events"`
	Inbox   Inbox   `toml:"inbox"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(resolvedPath), ".env")); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads KEY=VALUE pairs next to the config file. Variables already
// present in the environment are left untouched.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("royalty.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.ExportDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Inbox.Enabled {
		if err := os.MkdirAll(c.Paths.InboxDir, 0o755); err != nil {
			return fmt.Errorf("create inbox directory %q: %w", c.Paths.InboxDir, err)
		}
	}
	return nil
}

// SQLitePath returns the database file used when the store driver is sqlite.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.Paths.DataDir, "royalty.db")
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "royalty.sock")
}

// LockPath returns the daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "royaltyd.lock")
}

// PIDPath returns the file the daemon writes its process id to.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "royaltyd.pid")
}

// UnitTimeout is the upper bound on waiting for one month's session report.
func (c *Config) UnitTimeout() time.Duration {
	return time.Duration(c.Sync.UnitTimeoutSeconds) * time.Second
}

// FailureDelay is the pause after a failed unit before the next unit starts.
func (c *Config) FailureDelay() time.Duration {
	return time.Duration(c.Sync.FailureDelayMillis) * time.Millisecond
}

// PortalTimeout bounds a single portal HTTP request.
func (c *Config) PortalTimeout() time.Duration {
	return time.Duration(c.Portal.RequestTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

const redactedValue = "<redacted>"

// Redacted returns a copy safe to print: the portal cookie and API token are
// masked and any password in the store DSN is replaced.
func (c Config) Redacted() Config {
	out := c
	out.Events.KafkaBrokers = append([]string(nil), c.Events.KafkaBrokers...)
	if out.Portal.Cookie != "" {
		out.Portal.Cookie = redactedValue
	}
	if out.API.Token != "" {
		out.API.Token = redactedValue
	}
	out.Store.DSN = redactDSN(out.Store.DSN)
	return out
}

// redactDSN masks the password in URL DSNs (postgres://u:p@h/db) and
// go-sql-driver DSNs (u:p@tcp(h)/db).
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	creds := dsn[:at]
	start := strings.Index(creds, "://") + 1
	if start > 0 {
		start += 2
	}
	colon := strings.Index(creds[start:], ":")
	if colon < 0 {
		return dsn
	}
	return creds[:start+colon+1] + redactedValue + dsn[at:]
}
