package config

const (
	defaultConfigPath            = "~/.config/royalty/config.toml"
	defaultDataDir               = "~/.local/share/royalty"
	defaultLogDir                = "~/.local/share/royalty/logs"
	defaultInboxDir              = "~/.local/share/royalty/inbox"
	defaultExportDir             = "~/royalty-exports"
	defaultAPIBind               = "127.0.0.1:7491"
	defaultStoreDriver           = "sqlite"
	defaultPortalBaseURL         = "https://librarym.munpia.com"
	defaultPortalUserAgent       = "royalty/dev"
	defaultPortalRequestTimeout  = 20
	defaultUnitTimeoutSeconds    = 30
	defaultFailureDelayMillis    = 500
	defaultStartYear             = 2011
	defaultStartMonth            = 1
	defaultEventsRequestTimeout  = 10
	defaultMQTTTopic             = "royalty/sync"
	defaultKafkaTopic            = "royalty.sync"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	defaultNtfyServer            = "https://ntfy.sh"
	defaultPortalMonthlyEndpoint = "/manage/calculate"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			InboxDir:  defaultInboxDir,
			ExportDir: defaultExportDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Store: Store{
			Driver: defaultStoreDriver,
		},
		Portal: Portal{
			BaseURL:               defaultPortalBaseURL,
			UserAgent:             defaultPortalUserAgent,
			RequestTimeoutSeconds: defaultPortalRequestTimeout,
		},
		Sync: Sync{
			UnitTimeoutSeconds: defaultUnitTimeoutSeconds,
			FailureDelayMillis: defaultFailureDelayMillis,
			DefaultStartYear:   defaultStartYear,
			DefaultStartMonth:  defaultStartMonth,
		},
		Events: Events{
			KafkaTopic:            defaultKafkaTopic,
			MQTTTopic:             defaultMQTTTopic,
			RequestTimeoutSeconds: defaultEventsRequestTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

// PortalMonthlyEndpoint is the path of the monthly settlement page below Portal.BaseURL.
func PortalMonthlyEndpoint() string {
	return defaultPortalMonthlyEndpoint
}

// NtfyServer returns the ntfy base URL used for notifications.
func NtfyServer() string {
	return defaultNtfyServer
}
