// Package observe turns persistent-store commits into ordered diff batches.
//
// An observer holds a snapshot of one standing query. After every store
// commit it re-materializes the query, diffs the result against the snapshot,
// and hands any non-empty [Batch] to its consumer callback. Callbacks run on
// the store's dispatch goroutine: batches arrive in commit order and two
// batches never interleave, for this observer or across observers.
package observe

import (
	"context"
	"fmt"
	"log/slog"

	"chatmirror/internal/model"
)

// ChannelSource materializes the channel-list query. Implemented by
// store.Store.
type ChannelSource interface {
	Channels(ctx context.Context) ([]model.Channel, error)
}

// MessageSource materializes the conversation query. Implemented by
// store.Store.
type MessageSource interface {
	Messages(ctx context.Context, channelID string) ([]model.Message, error)
}

// Observer watches one standing query and publishes diff batches. Create one
// with [NewChannelObserver] or [NewMessageObserver], call [Observer.Start],
// then register it with the store's Subscribe.
type Observer struct {
	materialize func() ([]row, error)
	onDiff      func(Batch)
	log         *slog.Logger

	// prev is only touched from Start and from the store's dispatch
	// goroutine, so it needs no locking.
	prev    []row
	started bool
}

// NewChannelObserver observes the channel list. onDiff receives every
// non-empty batch.
func NewChannelObserver(src ChannelSource, onDiff func(Batch), logger *slog.Logger) *Observer {
	return &Observer{
		materialize: func() ([]row, error) {
			channels, err := src.Channels(context.Background())
			if err != nil {
				return nil, err
			}
			rows := make([]row, len(channels))
			for i := range channels {
				rows[i] = row{id: channels[i].ID, hash: channels[i].ContentHash()}
			}
			return rows, nil
		},
		onDiff: onDiff,
		log:    logger,
	}
}

// NewMessageObserver observes one channel's conversation. Messages are
// immutable in the store, so in practice its batches contain inserts and
// deletes only.
func NewMessageObserver(src MessageSource, channelID string, onDiff func(Batch), logger *slog.Logger) *Observer {
	return &Observer{
		materialize: func() ([]row, error) {
			msgs, err := src.Messages(context.Background(), channelID)
			if err != nil {
				return nil, err
			}
			rows := make([]row, len(msgs))
			for i := range msgs {
				rows[i] = row{id: msgs[i].ID, hash: msgs[i].Text}
			}
			return rows, nil
		},
		onDiff: onDiff,
		log:    logger,
	}
}

// Start materializes the initial snapshot. No batch is emitted for it — the
// consumer renders the initial list itself and receives deltas from then on.
func (o *Observer) Start() error {
	rows, err := o.materialize()
	if err != nil {
		return fmt.Errorf("materializing initial snapshot: %w", err)
	}
	o.prev = rows
	o.started = true
	return nil
}

// StoreDidCommit implements store.Observer. A query failure keeps the
// previous snapshot: the consumer's view stays consistent with the last
// batch it applied, and the next successful commit re-converges.
func (o *Observer) StoreDidCommit() {
	if !o.started {
		return
	}
	rows, err := o.materialize()
	if err != nil {
		o.log.Error("re-materializing observed query", "error", err)
		return
	}
	batch := diff(o.prev, rows)
	o.prev = rows
	if len(batch.Ops) == 0 {
		return
	}
	o.onDiff(batch)
}
