// Package model defines shared types used across the sync engine, the
// persistent store, and the chat server adapter.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Channel is the normalised representation of a chat channel shared between
// the chat server adapter, the persistent store, and the sync engine.
type Channel struct {
	// ID is the server-assigned stable identifier. Never changes once set.
	ID string

	// Name is the channel's display name and the channel list sort key.
	Name string

	// LogoURL points at the channel's avatar image. May be empty. The store
	// keeps the first value it sees and never overwrites it on upsert.
	LogoURL string

	// LastMessage is a denormalised copy of the most recently stored
	// message's text, kept in sync by the store at message-insert time.
	LastMessage string

	// LastActivity is a denormalised copy of the most recently stored
	// message's date. Zero when the channel has no messages.
	LastActivity time.Time
}

// ContentHash returns a deterministic SHA-256 hex digest of the fields that
// matter for change detection in the channel list: name, last message, and
// last activity. ID is excluded — it identifies the row, it never changes.
func (c *Channel) ContentHash() string {
	h := sha256.New()
	h.Write([]byte(c.Name))
	h.Write([]byte("|"))
	h.Write([]byte(c.LastMessage))
	h.Write([]byte("|"))
	if !c.LastActivity.IsZero() {
		h.Write([]byte(c.LastActivity.UTC().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Message is a single chat message. Messages are immutable once stored:
// the store discards any later arrival carrying an already-known ID.
type Message struct {
	// ID is the server-assigned identifier, unique across all channels.
	ID string

	// ChannelID references the owning channel.
	ChannelID string

	// Text is the message body.
	Text string

	// UserID identifies the author.
	UserID string

	// UserName is the author's display name at send time.
	UserName string

	// Date is when the message was sent. Sole sort key within a channel.
	Date time.Time
}

// Outgoing reports whether the message was authored by the local user.
func (m *Message) Outgoing(localUserID string) bool {
	return m.UserID == localUserID
}

// EventType classifies a change notification from the server event feed.
type EventType int

const (
	// EventAdd signals a channel was created.
	EventAdd EventType = iota
	// EventUpdate signals a channel's messages changed.
	EventUpdate
	// EventDelete signals a channel was removed.
	EventDelete
)

// String returns the wire-format label for the event type.
func (t EventType) String() string {
	switch t {
	case EventAdd:
		return "add"
	case EventUpdate:
		return "update"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseEventType maps a wire-format label to an EventType. The second return
// value is false for labels the feed is not known to emit.
func ParseEventType(s string) (EventType, bool) {
	switch s {
	case "add":
		return EventAdd, true
	case "update":
		return EventUpdate, true
	case "delete":
		return EventDelete, true
	default:
		return 0, false
	}
}

// Event is a single change notification from the server event feed.
type Event struct {
	Type EventType

	// ResourceID is the channel the event refers to.
	ResourceID string
}

// Profile holds the locally edited user profile persisted as a JSON blob.
// Nil fields mean "keep the previous value" when saving.
type Profile struct {
	Name   *string `json:"name,omitempty"`
	Bio    *string `json:"bio,omitempty"`
	Avatar []byte  `json:"avatar,omitempty"`
}

// Merge returns a profile where nil fields of p are filled in from prev.
// Mirrors the save path's field-level fallback to the previous profile.
func (p Profile) Merge(prev Profile) Profile {
	out := p
	if out.Name == nil {
		out.Name = prev.Name
	}
	if out.Bio == nil {
		out.Bio = prev.Bio
	}
	if out.Avatar == nil {
		out.Avatar = prev.Avatar
	}
	return out
}
