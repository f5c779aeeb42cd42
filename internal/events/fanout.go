package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"royalty/internal/logging"
)

// Sink is a best-effort destination for messages.
type Sink interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// sinkQueueSize bounds the messages buffered per sink.
const sinkQueueSize = 64

type queued struct {
	ctx context.Context
	msg Message
}

// Fanout delivers to the primary observer inline and to every sink from a
// per-sink worker, so a slow broker never holds up the caller.
type Fanout struct {
	primary Observer
	sinks   []Sink
	queues  []chan queued
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
	once    sync.Once
}

// NewFanout wraps primary. A nil primary behaves like Discard. Each sink
// publish is bounded by timeout when it is positive. Close must be called to
// stop the sink workers.
func NewFanout(primary Observer, sinks []Sink, timeout time.Duration, logger *slog.Logger) *Fanout {
	if primary == nil {
		primary = Discard
	}
	f := &Fanout{
		primary: primary,
		sinks:   sinks,
		queues:  make([]chan queued, len(sinks)),
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "events"),
	}
	for i, sink := range sinks {
		queue := make(chan queued, sinkQueueSize)
		f.queues[i] = queue
		f.wg.Add(1)
		go f.work(sink, queue)
	}
	return f
}

// Deliver queues msg for every sink, then hands it to the primary observer,
// whose error is returned. A sink whose queue is full drops msg.
func (f *Fanout) Deliver(ctx context.Context, msg Message) error {
	if msg.Time.IsZero() {
		msg.Time = time.Now().UTC()
	}
	for i, queue := range f.queues {
		select {
		case queue <- queued{ctx: context.WithoutCancel(ctx), msg: msg}:
		default:
			logging.WarnWithContext(f.logger, "event sink queue full", "event_sink_dropped",
				logging.String("sink", f.sinks[i].Name()),
				logging.String("message_type", string(msg.Type)),
				logging.String(logging.FieldErrorHint, "check the sink broker is reachable"),
				logging.String(logging.FieldImpact, "message was not delivered to this sink"),
			)
		}
	}
	return f.primary.Deliver(ctx, msg)
}

// Close stops accepting messages and waits for queued sink publishes to
// finish. It does not close the sinks themselves.
func (f *Fanout) Close() {
	f.once.Do(func() {
		for _, queue := range f.queues {
			close(queue)
		}
	})
	f.wg.Wait()
}

func (f *Fanout) work(sink Sink, queue <-chan queued) {
	defer f.wg.Done()
	for item := range queue {
		f.publish(item.ctx, sink, item.msg)
	}
}

func (f *Fanout) publish(ctx context.Context, sink Sink, msg Message) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	if err := sink.Publish(ctx, msg); err != nil {
		logging.WarnWithContext(f.logger, "event sink publish failed", "event_sink_failed",
			logging.String("sink", sink.Name()),
			logging.String("message_type", string(msg.Type)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the sink broker address and credentials"),
			logging.String(logging.FieldImpact, "message was not delivered to this sink"),
		)
	}
}

// CloseSinks closes every sink and joins their errors.
func CloseSinks(sinks []Sink) error {
	var errs []error
	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
