package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chatmirror/internal/store"
)

// One sentinel per reconciler operation. Callers match with errors.Is; the
// presentation layer keys its retry prompts off these.
var (
	ErrLoadChannels  = errors.New("loading channels failed")
	ErrLoadMessages  = errors.New("loading messages failed")
	ErrSendMessage   = errors.New("sending message failed")
	ErrCreateChannel = errors.New("creating channel failed")
	ErrDeleteChannel = errors.New("deleting channel failed")
)

// Reconciler brings the local cache into agreement with the remote chat
// service. It never mutates local state speculatively: every operation calls
// the remote first and only mirrors the result locally on success, so a
// remote failure needs no local rollback.
//
// All operations are idempotent against the cache. Overlapping calls for the
// same channel are safe — the store deduplicates by id — so callers need not
// coalesce triggers.
type Reconciler struct {
	chat  ChatService
	cache Cache
	log   *slog.Logger
}

// NewReconciler creates a Reconciler wired to the remote service and the
// local cache.
func NewReconciler(chat ChatService, cache Cache, logger *slog.Logger) *Reconciler {
	return &Reconciler{chat: chat, cache: cache, log: logger}
}

// SyncChannels fetches the authoritative channel list and converges the
// cache on it: every remote channel is upserted, every local channel absent
// from the remote list is deleted. On fetch failure nothing is touched
// locally and the error wraps [ErrLoadChannels].
//
// The prune reads the local id set outside the write transaction. A channel
// created between that read and the write could in principle be deleted
// erroneously; the window is accepted, the next sync re-converges.
func (r *Reconciler) SyncChannels(ctx context.Context) error {
	channels, err := r.chat.LoadChannels(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoadChannels, err)
	}

	remote := make(map[string]bool, len(channels))
	for _, ch := range channels {
		remote[ch.ID] = true
	}

	localIDs, err := r.cache.ChannelIDs(ctx)
	if err != nil {
		r.log.Error("reading local channel ids for prune", "error", err)
		localIDs = nil // upserts still proceed; prune retries next sync
	}

	var stale []string
	for _, id := range localIDs {
		if !remote[id] {
			stale = append(stale, id)
		}
	}

	r.cache.RunWrite(ctx, func(tx *store.WriteTx) error {
		for _, id := range stale {
			if err := tx.DeleteChannel(id); err != nil {
				return err
			}
		}
		for _, ch := range channels {
			if err := tx.UpsertChannel(ch); err != nil {
				return err
			}
		}
		return nil
	})

	r.log.Debug("channels synced", "remote", len(channels), "pruned", len(stale))
	return nil
}

// SyncMessages fetches the authoritative message list for one channel and
// stores every message not yet present, in payload order. Messages are never
// overwritten, and messages whose channel is gone locally are dropped
// silently. On fetch failure the error wraps [ErrLoadMessages] and nothing
// is touched locally.
func (r *Reconciler) SyncMessages(ctx context.Context, channelID string) error {
	messages, err := r.chat.LoadMessages(ctx, channelID)
	if err != nil {
		return fmt.Errorf("%w: channel %s: %v", ErrLoadMessages, channelID, err)
	}

	var stored int
	r.cache.RunWrite(ctx, func(tx *store.WriteTx) error {
		for _, m := range messages {
			m.ChannelID = channelID
			inserted, err := tx.UpsertMessage(m)
			if err != nil {
				return err
			}
			if inserted {
				stored++
			}
		}
		return nil
	})

	r.log.Debug("messages synced", "channel", channelID, "fetched", len(messages), "stored", stored)
	return nil
}

// SendMessage submits a new message and, once the server confirms it,
// mirrors the confirmed message into the cache exactly as SyncMessages would
// store a single message. On failure the error wraps [ErrSendMessage] and no
// local row is created.
func (r *Reconciler) SendMessage(ctx context.Context, text, channelID, userID, userName string) error {
	msg, err := r.chat.SendMessage(ctx, text, channelID, userID, userName)
	if err != nil {
		return fmt.Errorf("%w: channel %s: %v", ErrSendMessage, channelID, err)
	}

	r.cache.RunWrite(ctx, func(tx *store.WriteTx) error {
		msg.ChannelID = channelID
		_, err := tx.UpsertMessage(msg)
		return err
	})
	return nil
}

// CreateChannel submits a channel creation and mirrors the server's channel
// locally on success. On failure the error wraps [ErrCreateChannel].
func (r *Reconciler) CreateChannel(ctx context.Context, name string) error {
	ch, err := r.chat.CreateChannel(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrCreateChannel, name, err)
	}

	r.cache.RunWrite(ctx, func(tx *store.WriteTx) error {
		return tx.UpsertChannel(ch)
	})
	return nil
}

// DeleteChannel submits a channel deletion and removes the local row (and
// its messages) on success. On failure the error wraps [ErrDeleteChannel].
func (r *Reconciler) DeleteChannel(ctx context.Context, id string) error {
	if err := r.chat.DeleteChannel(ctx, id); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeleteChannel, id, err)
	}

	r.cache.RunWrite(ctx, func(tx *store.WriteTx) error {
		return tx.DeleteChannel(id)
	})
	return nil
}
