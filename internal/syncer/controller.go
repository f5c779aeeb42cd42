package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"royalty/internal/config"
	"royalty/internal/events"
	"royalty/internal/ledger"
	"royalty/internal/logging"
	"royalty/internal/portal"
	"royalty/internal/services"
)

// State is the controller's run state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Run results recorded in RunSummary.Result.
const (
	ResultCompleted = "completed"
	ResultCancelled = "cancelled"
	ResultError     = "error"
)

// Cancel statuses.
const (
	CancelStatusCancelled  = "cancelled"
	CancelStatusNotSyncing = "not_syncing"
)

// Sessions opens and closes portal sessions. Reports from every session
// arrive on one channel tagged with the session id.
type Sessions interface {
	Open(ctx context.Context, unit string) (uint64, error)
	Close(id uint64)
	Reports() <-chan portal.Report
}

// Store is the part of the record store the controller writes to.
type Store interface {
	ReplacePeriod(ctx context.Context, partition ledger.Partition, periodKey string, records []ledger.Record) (ledger.ReplaceResult, error)
	SumAmount(ctx context.Context, partition ledger.Partition) (int64, error)
}

// StartRequest names the first month to sync. Zero values fall back to the
// configured defaults.
type StartRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// StartResult describes a run that was accepted.
type StartResult struct {
	RunID string `json:"runId"`
	Units int    `json:"units"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// CancelResult is the reply to a cancel request.
type CancelResult struct {
	Status string `json:"status"`
}

// RunSummary describes a finished run.
type RunSummary struct {
	RunID        string    `json:"runId"`
	Result       string    `json:"result"`
	Reason       string    `json:"reason,omitempty"`
	TotalSum     int64     `json:"totalSum"`
	Units        int       `json:"units"`
	Processed    int       `json:"processed"`
	FailedMonths []string  `json:"failedMonths"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
}

// Status is a snapshot of the controller.
type Status struct {
	State        State       `json:"state"`
	RunID        string      `json:"runId,omitempty"`
	StartedAt    *time.Time  `json:"startedAt,omitempty"`
	CurrentMonth string      `json:"currentMonth,omitempty"`
	Units        int         `json:"units"`
	Processed    int         `json:"processed"`
	Remaining    int         `json:"remaining"`
	FailedMonths []string    `json:"failedMonths,omitempty"`
	LastRun      *RunSummary `json:"lastRun,omitempty"`
}

// Options tunes a Controller.
type Options struct {
	UnitTimeout    time.Duration
	FailureDelay   time.Duration
	DeliverTimeout time.Duration
	DefaultYear    int
	DefaultMonth   int
	Clock          func() time.Time
	Sinks          []events.Sink
	Metrics        *Metrics
}

// OptionsFromConfig derives Options from the sync and events sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		UnitTimeout:    cfg.UnitTimeout(),
		FailureDelay:   cfg.FailureDelay(),
		DeliverTimeout: time.Duration(cfg.Events.RequestTimeoutSeconds) * time.Second,
		DefaultYear:    cfg.Sync.DefaultStartYear,
		DefaultMonth:   cfg.Sync.DefaultStartMonth,
	}
}

type run struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	settled   chan struct{}
	done      chan struct{}
	observer  *events.Fanout
	logger    *slog.Logger
	startedAt time.Time
	units     int

	// guarded by Controller.mu
	queue     []string
	current   string
	processed int
	failed    []string
	cancelled bool
	reason    error
}

// Controller owns sync state. It is safe for concurrent use.
type Controller struct {
	store    Store
	sessions Sessions
	logger   *slog.Logger
	opts     Options

	mu     sync.Mutex
	active *run
	latest *run
	last   *RunSummary
}

// NewController builds an idle controller.
func NewController(store Store, sessions Sessions, logger *slog.Logger, opts Options) *Controller {
	if opts.UnitTimeout <= 0 {
		opts.UnitTimeout = 30 * time.Second
	}
	if opts.FailureDelay < 0 {
		opts.FailureDelay = 0
	}
	if opts.DeliverTimeout <= 0 {
		opts.DeliverTimeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Controller{
		store:    store,
		sessions: sessions,
		logger:   logging.NewComponentLogger(logger, "syncer"),
		opts:     opts,
	}
}

// Start begins a run from req through the current month. It fails with
// ErrAlreadySyncing while a run is active and with ErrNoWorkToDo when the
// start month lies in the future. observer may be nil.
func (c *Controller) Start(ctx context.Context, req StartRequest, observer events.Observer) (StartResult, error) {
	year, month := req.Year, req.Month
	if year == 0 {
		year = c.opts.DefaultYear
	}
	if month == 0 {
		month = c.opts.DefaultMonth
	}
	if year < 1900 || year > 9999 || month < 1 || month > 12 {
		return StartResult{}, services.Wrap(services.ErrValidation, "syncer", "start", fmt.Sprintf("invalid start month %04d-%02d", year, month), nil)
	}

	c.mu.Lock()
	if c.active != nil {
		id := c.active.id
		c.mu.Unlock()
		return StartResult{}, services.Wrap(services.ErrAlreadySyncing, "syncer", "start", "run "+id+" is in progress", nil)
	}
	now := c.opts.Clock()
	queue := BuildQueue(year, month, now)
	if len(queue) == 0 {
		c.mu.Unlock()
		return StartResult{}, services.Wrap(services.ErrNoWorkToDo, "syncer", "start",
			fmt.Sprintf("start month %04d-%02d is after %s", year, month, now.Format("2006-01")), nil)
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(services.WithRunID(context.WithoutCancel(ctx), id))
	logger := c.logger.With(logging.RunID(id))
	r := &run{
		id:        id,
		ctx:       runCtx,
		cancel:    cancel,
		settled:   make(chan struct{}),
		done:      make(chan struct{}),
		observer:  events.NewFanout(observer, c.opts.Sinks, c.opts.DeliverTimeout, logger),
		logger:    logger,
		startedAt: now,
		units:     len(queue),
		queue:     queue,
	}
	c.active = r
	c.latest = r
	c.mu.Unlock()

	c.opts.Metrics.runStarted()
	logger.Info("sync started",
		logging.String("from", DisplayUnit(queue[0])),
		logging.String("to", DisplayUnit(queue[len(queue)-1])),
		logging.Int("units", len(queue)),
	)
	go c.loop(r)

	return StartResult{
		RunID: id,
		Units: len(queue),
		From:  DisplayUnit(queue[0]),
		To:    DisplayUnit(queue[len(queue)-1]),
	}, nil
}

// Cancel stops the active run and returns once the controller is idle. The
// open session is closed and the queue is dropped. Observers receive
// syncCancelled after Cancel returns.
func (c *Controller) Cancel() CancelResult {
	c.mu.Lock()
	r := c.active
	if r == nil {
		c.mu.Unlock()
		return CancelResult{Status: CancelStatusNotSyncing}
	}
	r.cancelled = true
	c.mu.Unlock()

	r.cancel()
	<-r.settled
	return CancelResult{Status: CancelStatusCancelled}
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := Status{State: StateIdle}
	if c.last != nil {
		last := *c.last
		last.FailedMonths = append([]string(nil), c.last.FailedMonths...)
		status.LastRun = &last
	}
	r := c.active
	if r == nil {
		return status
	}
	started := r.startedAt
	status.State = StateRunning
	status.RunID = r.id
	status.StartedAt = &started
	status.CurrentMonth = DisplayUnit(r.current)
	status.Units = r.units
	status.Processed = r.processed
	status.Remaining = len(r.queue)
	status.FailedMonths = append([]string(nil), r.failed...)
	return status
}

// Wait blocks until the most recent run has delivered its final message and
// flushed its sinks, or ctx ends.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	r := c.latest
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) loop(r *run) {
	defer close(r.done)
	defer r.cancel()
	c.drain(r)
	c.finish(r)
}

func (c *Controller) drain(r *run) {
	for {
		unit, ok := c.next(r)
		if !ok {
			return
		}
		month := DisplayUnit(unit)
		if err := c.deliver(r, events.Progress(month, nil)); err != nil {
			c.observerLost(r, err)
			return
		}

		err := c.processUnit(r, unit)
		if c.stopped(r) {
			return
		}
		if err == nil {
			c.markProcessed(r, "")
			continue
		}

		c.markProcessed(r, month)
		c.opts.Metrics.unit(OutcomeFailed)
		logging.WarnWithContext(r.logger, "sync unit failed", "sync_unit_failed",
			logging.Period(PeriodKey(unit)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the portal cookie and re-run sync for this month"),
			logging.String(logging.FieldImpact, "month is reported in failedMonths"),
		)
		if err := c.deliver(r, events.Progress(month, err)); err != nil {
			c.observerLost(r, err)
			return
		}

		select {
		case <-r.ctx.Done():
			return
		case <-time.After(c.opts.FailureDelay):
		}
	}
}

// processUnit runs one session to completion. The session is closed on every
// path before it returns.
func (c *Controller) processUnit(r *run, unit string) error {
	periodKey := PeriodKey(unit)
	ctx := services.WithPeriod(r.ctx, periodKey)

	id, err := c.sessions.Open(ctx, unit)
	if err != nil {
		if errors.Is(err, services.ErrSessionOpenFailed) {
			return err
		}
		return services.Wrap(services.ErrSessionOpenFailed, "syncer", "open session", unit, err)
	}
	defer c.sessions.Close(id)

	timer := time.NewTimer(c.opts.UnitTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return services.Wrap(services.ErrSessionTimeout, "syncer", "await report",
				fmt.Sprintf("no data for %s within %s", DisplayUnit(unit), c.opts.UnitTimeout), nil)
		case report := <-c.sessions.Reports():
			if report.SessionID != id {
				c.opts.Metrics.unit(OutcomeDiscarded)
				r.logger.Debug("stale session report discarded",
					logging.Int64("session_id", int64(report.SessionID)),
					logging.Int64("active_session_id", int64(id)),
				)
				c.sessions.Close(report.SessionID)
				continue
			}
			if c.stopped(r) {
				c.opts.Metrics.unit(OutcomeDiscarded)
				return context.Canceled
			}
			if report.Err != nil {
				return services.Wrap(services.ErrTransient, "syncer", "session report", DisplayUnit(unit), report.Err)
			}
			return c.save(ctx, r, periodKey, report)
		}
	}
}

func (c *Controller) save(ctx context.Context, r *run, periodKey string, report portal.Report) error {
	records := make([]ledger.Record, 0, len(report.NovelData))
	for _, item := range report.NovelData {
		records = append(records, ledger.Record{PeriodKey: periodKey, Title: item.Title, Amount: item.Amount})
	}
	result, err := c.store.ReplacePeriod(ctx, ledger.Synced, periodKey, records)
	if err != nil {
		return err
	}
	c.opts.Metrics.unit(OutcomeSaved)
	r.logger.Info("sync unit saved",
		logging.Period(periodKey),
		logging.Int64("deleted", result.Deleted),
		logging.Int("saved", result.SavedCount),
		logging.Int("skipped", result.Skipped),
	)
	return nil
}

func (c *Controller) finish(r *run) {
	c.mu.Lock()
	cancelled := r.cancelled
	reason := r.reason
	summary := &RunSummary{
		RunID:        r.id,
		Units:        r.units,
		Processed:    r.processed,
		FailedMonths: append([]string{}, r.failed...),
		StartedAt:    r.startedAt,
	}
	c.mu.Unlock()

	// The run context is cancelled by now on the cancel path; final messages
	// use a detached context so they still go out.
	ctx := context.WithoutCancel(r.ctx)
	var final events.Message
	switch {
	case cancelled:
		summary.Result = ResultCancelled
		summary.Reason = "sync cancelled"
		if reason != nil {
			summary.Reason = reason.Error()
		}
		final = events.Cancelled(summary.Reason)
	default:
		total, err := c.store.SumAmount(ctx, ledger.Synced)
		if err != nil {
			summary.Result = ResultError
			summary.Reason = err.Error()
			final = events.Failed("final total could not be computed: " + err.Error())
			break
		}
		summary.Result = ResultCompleted
		summary.TotalSum = total
		final = events.Complete(total, summary.FailedMonths)
	}
	summary.FinishedAt = c.opts.Clock()

	c.mu.Lock()
	c.last = summary
	c.active = nil
	c.mu.Unlock()
	close(r.settled)
	c.opts.Metrics.runFinished(summary.Result, summary.FinishedAt.Sub(summary.StartedAt))

	_ = c.deliverCtx(ctx, r, final)
	r.observer.Close()

	switch summary.Result {
	case ResultCancelled:
		r.logger.Info("sync cancelled", logging.Int("processed", summary.Processed), logging.String("reason", summary.Reason))
	case ResultError:
		logging.ErrorWithContext(r.logger, "sync total failed", "sync_total_failed",
			logging.String("reason", summary.Reason),
			logging.String(logging.FieldErrorHint, "check store connectivity"),
		)
	default:
		r.logger.Info("sync complete",
			logging.Int64("total_sum", summary.TotalSum),
			logging.Int("units", summary.Units),
			logging.Any("failed_months", summary.FailedMonths),
		)
	}
}

// next pops the front unit unless the run has been stopped.
func (c *Controller) next(r *run) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.cancelled || r.ctx.Err() != nil || len(r.queue) == 0 {
		r.current = ""
		return "", false
	}
	unit := r.queue[0]
	r.queue = r.queue[1:]
	r.current = unit
	return unit, true
}

func (c *Controller) markProcessed(r *run, failedMonth string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r.processed++
	if failedMonth != "" {
		r.failed = append(r.failed, failedMonth)
	}
}

func (c *Controller) stopped(r *run) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return r.cancelled || r.ctx.Err() != nil
}

// observerLost cancels the run after a failed delivery.
func (c *Controller) observerLost(r *run, err error) {
	reason := services.Wrap(services.ErrObserverUnreachable, "syncer", "deliver", "cancelling run", err)
	c.mu.Lock()
	if r.cancelled {
		c.mu.Unlock()
		return
	}
	r.cancelled = true
	r.reason = reason
	c.mu.Unlock()
	r.cancel()

	logging.WarnWithContext(r.logger, "observer unreachable", "sync_observer_lost",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "reconnect and start the sync again"),
		logging.String(logging.FieldImpact, "run cancelled"),
	)
}

func (c *Controller) deliver(r *run, msg events.Message) error {
	if c.stopped(r) {
		return nil
	}
	return c.deliverCtx(r.ctx, r, msg)
}

func (c *Controller) deliverCtx(ctx context.Context, r *run, msg events.Message) error {
	msg.RunID = r.id
	msg.Time = c.opts.Clock().UTC()
	ctx, cancel := context.WithTimeout(ctx, c.opts.DeliverTimeout)
	defer cancel()
	return r.observer.Deliver(ctx, msg)
}
