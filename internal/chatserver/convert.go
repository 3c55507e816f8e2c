package chatserver

import (
	"time"

	"chatmirror/internal/model"
)

// wireChannel is the JSON structure for a channel as the server sends it.
type wireChannel struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	LogoURL      string `json:"logoURL,omitempty"`
	LastMessage  string `json:"lastMessage,omitempty"`
	LastActivity string `json:"lastActivity,omitempty"` // RFC 3339
}

// wireMessage is the JSON structure for a message as the server sends it.
type wireMessage struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	UserID   string `json:"userID"`
	UserName string `json:"userName"`
	Date     string `json:"date"` // RFC 3339
}

// wireEvent is one event-feed notification.
type wireEvent struct {
	EventType  string `json:"eventType"` // "add", "update", or "delete"
	ResourceID string `json:"resourceID"`
}

func channelToModel(w wireChannel) model.Channel {
	ch := model.Channel{
		ID:          w.ID,
		Name:        w.Name,
		LogoURL:     w.LogoURL,
		LastMessage: w.LastMessage,
	}
	if w.LastActivity != "" {
		if t, err := time.Parse(time.RFC3339, w.LastActivity); err == nil {
			ch.LastActivity = t.UTC()
		}
	}
	return ch
}

func messageToModel(w wireMessage) model.Message {
	m := model.Message{
		ID:       w.ID,
		Text:     w.Text,
		UserID:   w.UserID,
		UserName: w.UserName,
	}
	if t, err := time.Parse(time.RFC3339, w.Date); err == nil {
		m.Date = t.UTC()
	}
	return m
}

// eventToModel converts a feed notification; ok is false for event types the
// client does not know, which are skipped rather than surfaced as errors.
func eventToModel(w wireEvent) (model.Event, bool) {
	t, ok := model.ParseEventType(w.EventType)
	if !ok {
		return model.Event{}, false
	}
	return model.Event{Type: t, ResourceID: w.ResourceID}, true
}
