package chatserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chatmirror/internal/model"
)

// reconnectDelay is how long Subscribe waits before redialling a dropped
// event stream.
const reconnectDelay = 2 * time.Second

// Subscribe opens the server's SSE event stream and invokes callback once
// per change notification. It blocks until ctx is cancelled, transparently
// reconnecting when the stream drops. Implements sync.EventFeed.
func (c *Client) Subscribe(ctx context.Context, callback func(model.Event)) error {
	for {
		err := c.streamEvents(ctx, callback)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Error("event stream dropped, reconnecting", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// streamEvents runs one stream connection until it fails or ctx is
// cancelled.
func (c *Client) streamEvents(ctx context.Context, callback func(model.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		return fmt.Errorf("creating event stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("opening event stream: %w", err)
	}
	defer drain(resp.Body)

	if err := statusError(resp); err != nil {
		return err
	}

	// text/event-stream framing: events are blocks of "field: value" lines
	// separated by a blank line. Only "data" lines carry the payload here.
	scanner := bufio.NewScanner(resp.Body)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if data.Len() > 0 {
				c.dispatchEvent(data.String(), callback)
				data.Reset()
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue // comment / keep-alive
		}
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			data.WriteString(strings.TrimPrefix(payload, " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return fmt.Errorf("event stream closed by server")
}

// dispatchEvent decodes one data payload and forwards it. Malformed or
// unknown events are logged and skipped — the stream keeps going.
func (c *Client) dispatchEvent(payload string, callback func(model.Event)) {
	var w wireEvent
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		c.log.Debug("skipping malformed feed event", "error", err)
		return
	}
	ev, ok := eventToModel(w)
	if !ok {
		c.log.Debug("skipping unknown feed event type", "type", w.EventType)
		return
	}
	callback(ev)
}
