package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeStore()
	c.normalizePortal()
	c.normalizeSync()
	c.normalizeEvents()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.InboxDir) == "" {
		c.Paths.InboxDir = defaultInboxDir
	}
	if c.Paths.InboxDir, err = expandPath(c.Paths.InboxDir); err != nil {
		return fmt.Errorf("paths.inbox_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ExportDir) == "" {
		c.Paths.ExportDir = defaultExportDir
	}
	if c.Paths.ExportDir, err = expandPath(c.Paths.ExportDir); err != nil {
		return fmt.Errorf("paths.export_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("ROYALTY_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeStore() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case "", "sqlite", "sqlite3":
		c.Store.Driver = "sqlite"
	case "postgresql", "pg":
		c.Store.Driver = "postgres"
	}
	c.Store.DSN = strings.TrimSpace(c.Store.DSN)
	if c.Store.DSN == "" {
		if value, ok := os.LookupEnv("ROYALTY_STORE_DSN"); ok {
			c.Store.DSN = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizePortal() {
	c.Portal.BaseURL = strings.TrimRight(strings.TrimSpace(c.Portal.BaseURL), "/")
	if c.Portal.BaseURL == "" {
		c.Portal.BaseURL = defaultPortalBaseURL
	}
	c.Portal.UserAgent = strings.TrimSpace(c.Portal.UserAgent)
	if c.Portal.UserAgent == "" {
		c.Portal.UserAgent = defaultPortalUserAgent
	}
	c.Portal.Cookie = strings.TrimSpace(c.Portal.Cookie)
	if c.Portal.Cookie == "" {
		if value, ok := os.LookupEnv("ROYALTY_PORTAL_COOKIE"); ok {
			c.Portal.Cookie = strings.TrimSpace(value)
		}
	}
	if c.Portal.RequestTimeoutSeconds <= 0 {
		c.Portal.RequestTimeoutSeconds = defaultPortalRequestTimeout
	}
}

func (c *Config) normalizeSync() {
	if c.Sync.UnitTimeoutSeconds == 0 {
		c.Sync.UnitTimeoutSeconds = defaultUnitTimeoutSeconds
	}
	if c.Sync.DefaultStartYear == 0 {
		c.Sync.DefaultStartYear = defaultStartYear
	}
	if c.Sync.DefaultStartMonth == 0 {
		c.Sync.DefaultStartMonth = defaultStartMonth
	}
}

func (c *Config) normalizeEvents() {
	brokers := make([]string, 0, len(c.Events.KafkaBrokers))
	for _, broker := range c.Events.KafkaBrokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	c.Events.KafkaBrokers = brokers
	c.Events.KafkaTopic = strings.TrimSpace(c.Events.KafkaTopic)
	if c.Events.KafkaTopic == "" {
		c.Events.KafkaTopic = defaultKafkaTopic
	}
	c.Events.MQTTBroker = strings.TrimSpace(c.Events.MQTTBroker)
	c.Events.MQTTTopic = strings.TrimSpace(c.Events.MQTTTopic)
	if c.Events.MQTTTopic == "" {
		c.Events.MQTTTopic = defaultMQTTTopic
	}
	c.Events.NtfyTopic = strings.TrimSpace(c.Events.NtfyTopic)
	if c.Events.RequestTimeoutSeconds <= 0 {
		c.Events.RequestTimeoutSeconds = defaultEventsRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
