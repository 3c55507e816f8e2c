package sync

import (
	"context"
	"log/slog"

	"chatmirror/internal/model"
)

// ErrorFunc receives reconciler errors for user-facing surfacing. May be nil.
type ErrorFunc func(error)

// Listener routes live event-feed notifications to Reconciler calls:
// channel add/delete events re-run the full channel reconciliation (the feed
// carries no channel payload, only an id), update events re-sync the named
// channel's messages.
//
// Events are handled concurrently — each spawns an independent reconciler
// call and nothing coalesces overlapping triggers for the same channel. The
// cache tolerates the redundant upserts.
type Listener struct {
	reconciler *Reconciler
	feed       EventFeed
	onError    ErrorFunc
	log        *slog.Logger
}

// NewListener creates a Listener. onError may be nil, in which case errors
// are only logged.
func NewListener(reconciler *Reconciler, feed EventFeed, onError ErrorFunc, logger *slog.Logger) *Listener {
	return &Listener{reconciler: reconciler, feed: feed, onError: onError, log: logger}
}

// Run subscribes to the feed and dispatches events until ctx is cancelled or
// the subscription fails.
func (l *Listener) Run(ctx context.Context) error {
	return l.feed.Subscribe(ctx, func(ev model.Event) {
		l.log.Debug("feed event", "type", ev.Type.String(), "resource", ev.ResourceID)
		go l.handle(ctx, ev)
	})
}

func (l *Listener) handle(ctx context.Context, ev model.Event) {
	var err error
	switch ev.Type {
	case model.EventAdd, model.EventDelete:
		err = l.reconciler.SyncChannels(ctx)
	case model.EventUpdate:
		err = l.reconciler.SyncMessages(ctx, ev.ResourceID)
	default:
		return
	}
	if err != nil {
		l.log.Error("feed-triggered sync failed", "type", ev.Type.String(), "resource", ev.ResourceID, "error", err)
		l.report(err)
	}
}

func (l *Listener) report(err error) {
	if l.onError != nil {
		l.onError(err)
	}
}
