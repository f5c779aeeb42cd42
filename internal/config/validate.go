package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validatePortal(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateAPI() error {
	if c.API.Bind == "" {
		return errors.New("api.bind must be set")
	}
	if !strings.Contains(c.API.Bind, ":") {
		return fmt.Errorf("api.bind %q must be host:port", c.API.Bind)
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "sqlite":
		return nil
	case "postgres", "mysql":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q. Set ROYALTY_STORE_DSN or edit the config file", c.Store.Driver)
		}
		return nil
	default:
		return fmt.Errorf("store.driver %q is not supported (sqlite, postgres, mysql)", c.Store.Driver)
	}
}

func (c *Config) validatePortal() error {
	parsed, err := url.Parse(c.Portal.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("portal.base_url %q must be an absolute URL", c.Portal.BaseURL)
	}
	return nil
}

func (c *Config) validateSync() error {
	if err := ensurePositiveMap(map[string]int{
		"sync.unit_timeout_seconds":      c.Sync.UnitTimeoutSeconds,
		"portal.request_timeout_seconds": c.Portal.RequestTimeoutSeconds,
		"events.request_timeout_seconds": c.Events.RequestTimeoutSeconds,
		"sync.default_start_year":        c.Sync.DefaultStartYear,
	}); err != nil {
		return err
	}
	if c.Sync.FailureDelayMillis < 0 {
		return errors.New("sync.failure_delay_millis must not be negative")
	}
	if c.Sync.DefaultStartMonth < 1 || c.Sync.DefaultStartMonth > 12 {
		return errors.New("sync.default_start_month must be between 1 and 12")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if len(c.Events.KafkaBrokers) > 0 && c.Events.KafkaTopic == "" {
		return errors.New("events.kafka_topic must be set when events.kafka_brokers is configured")
	}
	if c.Events.MQTTBroker != "" {
		parsed, err := url.Parse(c.Events.MQTTBroker)
		if err != nil || parsed.Scheme == "" {
			return fmt.Errorf("events.mqtt_broker %q must include a scheme such as tcp://", c.Events.MQTTBroker)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
