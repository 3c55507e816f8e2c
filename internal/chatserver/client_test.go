package chatserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

var testLogger = slog.Default()

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.Client(), testLogger)
}

func TestNewClient_SplitsRESTAndStreamTimeouts(t *testing.T) {
	c := NewClient("http://chat.example.com", nil, testLogger)
	if c.hc.Timeout == 0 {
		t.Error("default REST client has no request timeout")
	}
	if c.stream.Timeout != 0 {
		t.Errorf("stream client timeout = %v, want none", c.stream.Timeout)
	}

	// A caller-supplied timeout applies to REST only.
	c = NewClient("http://chat.example.com", &http.Client{Timeout: 5 * time.Second}, testLogger)
	if c.hc.Timeout != 5*time.Second {
		t.Errorf("REST timeout = %v, want the caller's 5s", c.hc.Timeout)
	}
	if c.stream.Timeout != 0 {
		t.Errorf("stream client timeout = %v, want none", c.stream.Timeout)
	}
}

func TestLoadChannels_DecodesWirePayload(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels" || r.Method != http.MethodGet {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`[
			{"id":"a","name":"Alpha","logoURL":"https://x/a.png","lastMessage":"hi","lastActivity":"2026-05-01T10:00:00Z"},
			{"id":"b","name":"Bravo"}
		]`))
	}))

	channels, err := c.LoadChannels(context.Background())
	if err != nil {
		t.Fatalf("LoadChannels: %v", err)
	}
	if len(channels) != 2 {
		t.Fatalf("got %d channels, want 2", len(channels))
	}
	a := channels[0]
	if a.ID != "a" || a.Name != "Alpha" || a.LogoURL != "https://x/a.png" || a.LastMessage != "hi" {
		t.Errorf("channel = %+v, want decoded wire fields", a)
	}
	want := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	if !a.LastActivity.Equal(want) {
		t.Errorf("LastActivity = %v, want %v", a.LastActivity, want)
	}
	if !channels[1].LastActivity.IsZero() {
		t.Errorf("missing lastActivity should decode to zero time, got %v", channels[1].LastActivity)
	}
}

func TestLoadChannels_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"a","name":"Alpha"}]`))
	}))

	channels, err := c.LoadChannels(context.Background())
	if err != nil {
		t.Fatalf("LoadChannels after retries: %v", err)
	}
	if len(channels) != 1 {
		t.Errorf("got %d channels, want 1", len(channels))
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("server saw %d requests, want 3", n)
	}
}

func TestLoadChannels_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))

	if _, err := c.LoadChannels(context.Background()); err == nil {
		t.Fatal("expected error for 403 response")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server saw %d requests, want exactly 1 (no retry on 4xx)", n)
	}
}

func TestLoadMessages_SetsChannelID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/room-1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"id":"m1","text":"hi","userID":"u1","userName":"Alice","date":"2026-05-01T10:00:00Z"}]`))
	}))

	msgs, err := c.LoadMessages(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.ChannelID != "room-1" {
		t.Errorf("ChannelID = %q, want the requested channel", m.ChannelID)
	}
	if m.ID != "m1" || m.Text != "hi" || m.UserID != "u1" || m.UserName != "Alice" {
		t.Errorf("message = %+v, want decoded wire fields", m)
	}
}

func TestSendMessage_PostsAndReturnsConfirmedCopy(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/channels/room-1/messages" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		if body["text"] != "hello" || body["userID"] != "u1" || body["userName"] != "Alice" {
			t.Errorf("request body = %v", body)
		}
		_, _ = w.Write([]byte(`{"id":"srv-9","text":"hello","userID":"u1","userName":"Alice","date":"2026-05-01T10:00:00Z"}`))
	}))

	m, err := c.SendMessage(context.Background(), "hello", "room-1", "u1", "Alice")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if m.ID != "srv-9" || m.ChannelID != "room-1" {
		t.Errorf("message = %+v, want server-assigned id and channel set", m)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server saw %d requests, want 1", n)
	}
}

func TestSendMessage_FailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	if _, err := c.SendMessage(context.Background(), "hello", "room-1", "u1", "Alice"); err == nil {
		t.Fatal("expected error for failed send")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server saw %d requests, want exactly 1 (sends are never retried)", n)
	}
}

func TestCreateChannel_ReturnsServerChannel(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/channels" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"srv-ch-1","name":"General"}`))
	}))

	ch, err := c.CreateChannel(context.Background(), "General")
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	if ch.ID != "srv-ch-1" || ch.Name != "General" {
		t.Errorf("channel = %+v, want the server's copy", ch)
	}
}

func TestDeleteChannel_SendsDelete(t *testing.T) {
	var gotMethod, gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := c.DeleteChannel(context.Background(), "room-1"); err != nil {
		t.Fatalf("DeleteChannel: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/channels/room-1" {
		t.Errorf("request = %s %s, want DELETE /channels/room-1", gotMethod, gotPath)
	}
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	var calls int
	err := Retry(context.Background(), 3, func() error {
		calls++
		return permanent(context.DeadlineExceeded)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("fn ran %d times, want 1", calls)
	}
}

func TestRetry_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	err := Retry(ctx, 3, func() error {
		calls++
		return nil
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if calls != 0 {
		t.Errorf("fn ran %d times after cancellation, want 0", calls)
	}
}

func TestBackoffDelay_GrowsAndStaysBounded(t *testing.T) {
	for attempt := 0; attempt < 6; attempt++ {
		d := backoffDelay(attempt)
		if d < baseDelay/2 {
			t.Errorf("attempt %d: delay %v below minimum %v", attempt, d, baseDelay/2)
		}
		if d > maxDelay {
			t.Errorf("attempt %d: delay %v exceeds cap %v", attempt, d, maxDelay)
		}
	}
}
