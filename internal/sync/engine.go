package sync

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	otelScope      = "chatmirror/sync"
	spanSyncPass   = "sync.pass"
	metricPasses   = "chatmirror.sync.passes"
	metricChannels = "chatmirror.sync.channels"
	metricErrors   = "chatmirror.sync.errors"
)

// Engine orchestrates the sync lifecycle: a polling loop that periodically
// reconverges every channel, plus the live event-feed listener for targeted
// updates between polls. Create one with [NewEngine] and start it with
// [Engine.Run].
type Engine struct {
	reconciler   *Reconciler
	feed         EventFeed
	pollInterval time.Duration
	onError      ErrorFunc
	log          *slog.Logger

	// OTel instruments — always non-nil (no-op when telemetry is disabled).
	tracer      trace.Tracer
	cntPasses   metric.Int64Counter
	cntChannels metric.Int64Counter
	cntErrors   metric.Int64Counter
}

// NewEngine creates an Engine. If feed is nil the engine runs polling-only.
// onError may be nil.
func NewEngine(reconciler *Reconciler, feed EventFeed, pollInterval time.Duration, onError ErrorFunc, logger *slog.Logger) *Engine {
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Engine{
		reconciler:   reconciler,
		feed:         feed,
		pollInterval: pollInterval,
		onError:      onError,
		log:          logger,

		tracer:      otel.Tracer(otelScope),
		cntPasses:   mustCounter(metricPasses, "Number of full sync passes completed"),
		cntChannels: mustCounter(metricChannels, "Number of channels reconciled during sync passes"),
		cntErrors:   mustCounter(metricErrors, "Number of sync errors"),
	}
}

// pass runs one full reconcile pass: converge the channel list, then each
// known channel's messages. Individual channel failures are reported and the
// pass continues, to maximise progress.
func (e *Engine) pass(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, spanSyncPass)
	defer span.End()

	if err := e.reconciler.SyncChannels(ctx); err != nil {
		e.fail(ctx, span, err)
		return err
	}

	ids, err := e.reconciler.cache.ChannelIDs(ctx)
	if err != nil {
		e.fail(ctx, span, err)
		return err
	}

	var firstErr error
	for _, id := range ids {
		if err := e.reconciler.SyncMessages(ctx, id); err != nil {
			e.fail(ctx, span, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		e.cntChannels.Add(ctx, 1)
	}

	e.cntPasses.Add(ctx, 1)
	span.SetAttributes(attribute.Int("sync.channels", len(ids)))
	return firstErr
}

func (e *Engine) fail(ctx context.Context, span trace.Span, err error) {
	e.cntErrors.Add(ctx, 1)
	span.RecordError(err)
	if e.onError != nil {
		e.onError(err)
	}
}

// RunOnce performs a single sync pass and returns.
func (e *Engine) RunOnce(ctx context.Context) error {
	return e.pass(ctx)
}

// Run starts the polling loop and, when a feed is configured, the event
// listener. It blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e.feed != nil {
		listener := NewListener(e.reconciler, e.feed, e.onError, e.log)
		go func() {
			if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
				e.log.Error("event feed subscription ended unexpectedly", "error", err)
			}
		}()
	}

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	// Immediate first pass so the cache is warm before the first tick.
	if err := e.pass(ctx); err != nil {
		e.log.Error("initial sync pass failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			e.log.Info("sync engine shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := e.pass(ctx); err != nil {
				e.log.Error("sync pass failed", "error", err)
			}
		}
	}
}
