package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"royalty/internal/config"
	"royalty/internal/daemon"
	"royalty/internal/daemonctl"
	"royalty/internal/ipc"
	"royalty/internal/ledger"
	"royalty/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel   string
	SocketPath string
}

// Run starts the royalty daemon runtime loop. It returns when the process
// receives SIGINT/SIGTERM or a client requests a stop over IPC.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	now := time.Now()
	if _, err := logging.RotateStale(cfg.Paths.LogDir, now); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to rotate log file: %v\n", err)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Paths.LogDir, now)
	logConfigSnapshot(logger, cfg)

	pidPath := cfg.PIDPath()
	if err := daemonctl.WritePID(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := ledger.Open(cfg, logger)
	if err != nil {
		logger.Error("open ledger store", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, store, logger, daemon.WithShutdown(cancel))
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check api.bind and the lock file in paths.data_dir"),
			logging.String(logging.FieldImpact, "sync and uploads are unavailable until `royalty start`"),
		)
	}

	<-signalCtx.Done()
	logger.Info("royalty daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("store_driver", cfg.Store.Driver),
		logging.String("api_bind", cfg.API.Bind),
		logging.Bool("api_token_present", cfg.API.Token != ""),
		logging.String("portal_base_url", cfg.Portal.BaseURL),
		logging.Bool("portal_cookie_present", cfg.Portal.Cookie != ""),
		logging.Int("kafka_brokers", len(cfg.Events.KafkaBrokers)),
		logging.Bool("mqtt_enabled", cfg.Events.MQTTBroker != ""),
		logging.Bool("ntfy_enabled", cfg.Events.NtfyTopic != ""),
		logging.Bool("inbox_enabled", cfg.Inbox.Enabled),
	)
}
