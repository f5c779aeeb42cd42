package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"royalty/internal/api"
	"royalty/internal/config"
	"royalty/internal/events"
	"royalty/internal/inbox"
	"royalty/internal/ledger"
	"royalty/internal/logging"
	"royalty/internal/notifications"
	"royalty/internal/portal"
	"royalty/internal/services"
	"royalty/internal/syncer"
)

// Daemon owns the sync controller and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *ledger.Store
	sessions   syncer.Sessions
	controller *syncer.Controller
	sinks      []events.Sink
	metrics    *metrics
	api        *apiServer
	shutdown   context.CancelFunc

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	mu        sync.Mutex
	cancel    context.CancelFunc
	inboxDone chan struct{}
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithSessions replaces the portal session manager.
func WithSessions(sessions syncer.Sessions) Option {
	return func(d *Daemon) { d.sessions = sessions }
}

// WithShutdown registers a function that ends the hosting process. Shutdown
// calls it after stopping the daemon.
func WithShutdown(fn context.CancelFunc) Option {
	return func(d *Daemon) { d.shutdown = fn }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *ledger.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.sessions == nil {
		d.sessions = portal.NewManager(cfg, logger)
	}

	d.metrics = newMetrics()
	store.SetWriteObserver(d.metrics.observeWrite)
	d.sinks = events.BuildSinks(cfg, logger)

	controllerOpts := syncer.OptionsFromConfig(cfg)
	controllerOpts.Sinks = d.sinks
	controllerOpts.Metrics = syncer.NewMetrics(d.metrics.registry)
	d.controller = syncer.NewController(store, d.sessions, logger, controllerOpts)

	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and starts the HTTP API and inbox watcher.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another royalty daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}
	d.cancel = cancel

	if d.cfg.Inbox.Enabled {
		watcher := inbox.New(d.cfg, d.store, d.logger, inbox.WithResultHandler(d.metrics.observeImport))
		done := make(chan struct{})
		d.inboxDone = done
		go func() {
			defer close(done)
			if err := watcher.Run(runCtx); err != nil {
				logging.WarnWithContext(d.logger, "inbox watcher stopped", "inbox_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "dropped spreadsheets are not imported"),
					logging.String(logging.FieldErrorHint, "check paths.inbox_dir exists and is writable"),
				)
			}
		}()
	}

	d.running.Store(true)
	d.logger.Info("royalty daemon started",
		logging.String("lock", d.lockPath),
		logging.String("store", d.store.Driver()),
		logging.Bool("inbox", d.cfg.Inbox.Enabled),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

const sinkDrainTimeout = 10 * time.Second

// Stop cancels any active sync, stops background services, and releases the
// daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if result := d.controller.Cancel(); result.Status == syncer.CancelStatusCancelled {
		d.logger.Info("active sync cancelled for shutdown")
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if d.inboxDone != nil {
		<-d.inboxDone
		d.inboxDone = nil
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "next daemon start may report another instance"),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("royalty daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Shutdown stops the daemon and asks the hosting process to exit.
func (d *Daemon) Shutdown() {
	d.Stop()
	if d.shutdown != nil {
		d.shutdown()
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	// Let the last run's final message reach the sinks before closing them.
	ctx, cancel := context.WithTimeout(context.Background(), sinkDrainTimeout)
	if err := d.controller.Wait(ctx); err != nil {
		logging.WarnWithContext(d.logger, "event sinks not drained before close", "sink_drain_timeout",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the last sync message may not reach every sink"),
		)
	}
	cancel()
	sinkErr := events.CloseSinks(d.sinks)
	return errors.Join(sinkErr, d.store.Close())
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddress returns the address the HTTP API listens on, or "" when it is
// not serving.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// StartSync begins a sync run. observer may be nil when the caller only
// polls status.
func (d *Daemon) StartSync(ctx context.Context, req syncer.StartRequest, observer events.Observer) (syncer.StartResult, error) {
	return d.controller.Start(ctx, req, observer)
}

// CancelSync stops the active run.
func (d *Daemon) CancelSync() syncer.CancelResult {
	return d.controller.Cancel()
}

// SyncStatus returns the controller snapshot.
func (d *Daemon) SyncStatus() syncer.Status {
	return d.controller.Status()
}

// SaveManual validates and stores a manual upload.
func (d *Daemon) SaveManual(ctx context.Context, req api.ManualUploadRequest) (api.ManualUploadResponse, error) {
	if err := api.ValidateManualUpload(req); err != nil {
		return api.ManualUploadResponse{}, err
	}
	ctx = services.WithPartition(ctx, string(ledger.Manual))
	resp, err := api.SaveManualUpload(ctx, d.store, req, d.logger)
	if err != nil {
		return resp, err
	}
	d.logger.Info("manual upload saved",
		logging.Period(resp.PeriodKey),
		logging.Int("saved", resp.SavedCount),
		logging.Int("skipped", resp.Skipped),
		logging.String(logging.FieldEventType, "manual_upload_saved"),
	)
	notifier := notifications.NewService(d.cfg)
	if err := notifier.Publish(ctx, notifications.EventManualUpload, notifications.Payload{
		"settlementMonth": resp.PeriodKey,
		"savedCount":      resp.SavedCount,
	}); err != nil {
		d.logger.Debug("manual upload notification failed", logging.Error(err))
	}
	return resp, nil
}

// DBStatus reports record count and total of a partition.
func (d *Daemon) DBStatus(ctx context.Context, partition ledger.Partition, withSums bool) (api.DBStatusResponse, error) {
	return api.DBStatus(ctx, d.store, partition, withSums)
}

// MonthlySums reports per-month totals of a partition for one year.
func (d *Daemon) MonthlySums(ctx context.Context, partition ledger.Partition, year int) (api.MonthlySumsResponse, error) {
	return api.MonthlySums(ctx, d.store, partition, year)
}

// ListRecords lists stored records, optionally for one period.
func (d *Daemon) ListRecords(ctx context.Context, partition ledger.Partition, periodKey string) (api.RecordListResponse, error) {
	return api.ListRecords(ctx, d.store, partition, periodKey)
}

// ListPeriods lists stored periods.
func (d *Daemon) ListPeriods(ctx context.Context, partition ledger.Partition) (api.PeriodListResponse, error) {
	return api.ListPeriods(ctx, d.store, partition)
}

// ClearPartition removes every record in a partition.
func (d *Daemon) ClearPartition(ctx context.Context, partition ledger.Partition) (api.ClearResponse, error) {
	resp, err := api.ClearPartition(ctx, d.store, partition)
	if err != nil {
		return resp, err
	}
	d.logger.Info("partition cleared",
		logging.Partition(string(partition)),
		logging.Int64("deleted", resp.Deleted),
		logging.String(logging.FieldEventType, "partition_cleared"),
	)
	return resp, nil
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (ledger.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg.Events.NtfyTopic == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StoreDriver:  d.store.Driver(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		InboxEnabled: d.cfg.Inbox.Enabled,
		Sync:         d.controller.Status(),
	}
	for _, partition := range ledger.Partitions {
		resp, err := api.DBStatus(ctx, d.store, partition, false)
		if err != nil {
			d.logger.Debug("partition status unavailable",
				logging.Partition(string(partition)),
				logging.Error(err),
			)
			continue
		}
		status.Partitions = append(status.Partitions, resp)
	}
	return status
}
