package chatserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatmirror/internal/model"
)

// requestTimeout bounds each REST request so a hung server cannot stall a
// sync pass. The event stream is exempt — it stays open indefinitely.
const requestTimeout = 30 * time.Second

// Client talks to the chat server's REST API and event stream. It implements
// sync.ChatService and sync.EventFeed. Create one with [NewClient].
type Client struct {
	baseURL string
	hc      *http.Client // REST, with a request timeout
	stream  *http.Client // SSE, no timeout
	log     *slog.Logger
}

// NewClient creates a Client for the server at baseURL. If hc is nil, a
// client with [requestTimeout] is used for the REST paths. The event stream
// always uses a copy of the client with the timeout stripped, since a
// healthy stream outlives any request deadline.
func NewClient(baseURL string, hc *http.Client, logger *slog.Logger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: requestTimeout}
	}
	stream := *hc
	stream.Timeout = 0
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      hc,
		stream:  &stream,
		log:     logger,
	}
}

// LoadChannels fetches the authoritative channel list.
func (c *Client) LoadChannels(ctx context.Context) ([]model.Channel, error) {
	var wire []wireChannel
	err := Retry(ctx, defaultMaxAttempts, func() error {
		return c.getJSON(ctx, "/channels", &wire)
	})
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}

	channels := make([]model.Channel, 0, len(wire))
	for _, w := range wire {
		channels = append(channels, channelToModel(w))
	}
	return channels, nil
}

// LoadMessages fetches the full message list for one channel.
func (c *Client) LoadMessages(ctx context.Context, channelID string) ([]model.Message, error) {
	var wire []wireMessage
	path := "/channels/" + url.PathEscape(channelID) + "/messages"
	err := Retry(ctx, defaultMaxAttempts, func() error {
		return c.getJSON(ctx, path, &wire)
	})
	if err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", channelID, err)
	}

	messages := make([]model.Message, 0, len(wire))
	for _, w := range wire {
		m := messageToModel(w)
		m.ChannelID = channelID
		messages = append(messages, m)
	}
	return messages, nil
}

// SendMessage submits a message and returns the server's confirmed copy,
// including the server-assigned id and timestamp.
func (c *Client) SendMessage(ctx context.Context, text, channelID, userID, userName string) (model.Message, error) {
	body := map[string]string{
		"text":     text,
		"userID":   userID,
		"userName": userName,
	}

	var wire wireMessage
	path := "/channels/" + url.PathEscape(channelID) + "/messages"
	// Message sends are not retried: a retry after an ambiguous failure
	// could post the message twice server-side.
	if err := c.postJSON(ctx, path, body, &wire); err != nil {
		return model.Message{}, fmt.Errorf("send message to %s: %w", channelID, err)
	}

	m := messageToModel(wire)
	m.ChannelID = channelID
	return m, nil
}

// CreateChannel submits a channel creation and returns the server's channel.
func (c *Client) CreateChannel(ctx context.Context, name string) (model.Channel, error) {
	var wire wireChannel
	if err := c.postJSON(ctx, "/channels", map[string]string{"name": name}, &wire); err != nil {
		return model.Channel{}, fmt.Errorf("create channel %q: %w", name, err)
	}
	return channelToModel(wire), nil
}

// DeleteChannel submits a channel deletion.
func (c *Client) DeleteChannel(ctx context.Context, id string) error {
	path := "/channels/" + url.PathEscape(id)
	err := Retry(ctx, defaultMaxAttempts, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
		if err != nil {
			return permanent(err)
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer drain(resp.Body)
		return statusError(resp)
	})
	if err != nil {
		return fmt.Errorf("delete channel %s: %w", id, err)
	}
	return nil
}

// --- transport helpers -------------------------------------------------------

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp.Body)

	if err := statusError(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return permanent(fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp.Body)

	if err := statusError(resp); err != nil {
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		return err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// statusError maps an HTTP response to an error: nil for 2xx, permanent for
// 4xx (retrying will not change a rejection), retryable for everything else.
func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return permanent(fmt.Errorf("server rejected request: %s", resp.Status))
	default:
		return fmt.Errorf("server returned %s", resp.Status)
	}
}

// drain discards the remaining body so the connection can be reused.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
