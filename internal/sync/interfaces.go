// Package sync implements the reconciliation engine that keeps the local
// channel/message cache in agreement with the remote chat service.
//
// The package contains three main components:
//
//   - [Reconciler] pulls authoritative channel and message lists and applies
//     idempotent upserts and deletions to the store.
//   - [Listener] translates live event-feed notifications into targeted
//     Reconciler calls.
//   - [Engine] runs the polling loop and the feed subscription.
package sync

import (
	"context"

	"chatmirror/internal/model"
	"chatmirror/internal/store"
)

// ChatService provides remote access to channels and messages.
// Implemented by [chatserver.Client].
type ChatService interface {
	LoadChannels(ctx context.Context) ([]model.Channel, error)
	LoadMessages(ctx context.Context, channelID string) ([]model.Message, error)
	SendMessage(ctx context.Context, text, channelID, userID, userName string) (model.Message, error)
	CreateChannel(ctx context.Context, name string) (model.Channel, error)
	DeleteChannel(ctx context.Context, id string) error
}

// EventFeed is a live subscription to server-side change notifications.
// Subscribe blocks until ctx is cancelled or the stream fails, invoking
// callback once per event. Implemented by [chatserver.Client].
type EventFeed interface {
	Subscribe(ctx context.Context, callback func(model.Event)) error
}

// Cache is the local persistence surface the reconciler writes through.
// Implemented by [store.Store].
type Cache interface {
	RunWrite(ctx context.Context, fn func(tx *store.WriteTx) error)
	ChannelIDs(ctx context.Context) ([]string, error)
}
