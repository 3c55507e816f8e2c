package sync

import (
	"context"
	"fmt"
	"sync"

	"chatmirror/internal/model"
)

// --- Mock chat service --------------------------------------------------------

// mockChat is an in-memory ChatService. Any of the fail* flags makes the
// corresponding operation return an error without touching mock state.
type mockChat struct {
	mu       sync.Mutex
	channels []model.Channel
	messages map[string][]model.Message // channelID → messages
	nextID   int

	failLoadChannels bool
	failLoadMessages bool
	failSend         bool
	failCreate       bool
	failDelete       bool

	loadChannelCalls int
	loadMessageCalls map[string]int
}

func newMockChat(channels ...model.Channel) *mockChat {
	return &mockChat{
		channels:         channels,
		messages:         make(map[string][]model.Message),
		loadMessageCalls: make(map[string]int),
		nextID:           100,
	}
}

func (m *mockChat) setChannels(channels ...model.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = channels
}

func (m *mockChat) setMessages(channelID string, msgs ...model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[channelID] = msgs
}

func (m *mockChat) LoadChannels(_ context.Context) ([]model.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadChannelCalls++
	if m.failLoadChannels {
		return nil, fmt.Errorf("server unavailable")
	}
	out := make([]model.Channel, len(m.channels))
	copy(out, m.channels)
	return out, nil
}

func (m *mockChat) LoadMessages(_ context.Context, channelID string) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadMessageCalls[channelID]++
	if m.failLoadMessages {
		return nil, fmt.Errorf("server unavailable")
	}
	out := make([]model.Message, len(m.messages[channelID]))
	copy(out, m.messages[channelID])
	return out, nil
}

func (m *mockChat) SendMessage(_ context.Context, text, channelID, userID, userName string) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend {
		return model.Message{}, fmt.Errorf("server rejected message")
	}
	m.nextID++
	msg := model.Message{
		ID:        fmt.Sprintf("srv-%d", m.nextID),
		ChannelID: channelID,
		Text:      text,
		UserID:    userID,
		UserName:  userName,
	}
	m.messages[channelID] = append(m.messages[channelID], msg)
	return msg, nil
}

func (m *mockChat) CreateChannel(_ context.Context, name string) (model.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return model.Channel{}, fmt.Errorf("server rejected channel")
	}
	m.nextID++
	ch := model.Channel{ID: fmt.Sprintf("srv-ch-%d", m.nextID), Name: name}
	m.channels = append(m.channels, ch)
	return ch, nil
}

func (m *mockChat) DeleteChannel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete {
		return fmt.Errorf("server rejected delete")
	}
	kept := m.channels[:0]
	for _, ch := range m.channels {
		if ch.ID != id {
			kept = append(kept, ch)
		}
	}
	m.channels = kept
	delete(m.messages, id)
	return nil
}

// --- Mock event feed ----------------------------------------------------------

// mockFeed delivers a scripted event sequence to the subscriber, then blocks
// until ctx is cancelled.
type mockFeed struct {
	events []model.Event
}

func (f *mockFeed) Subscribe(ctx context.Context, callback func(model.Event)) error {
	for _, ev := range f.events {
		callback(ev)
	}
	<-ctx.Done()
	return ctx.Err()
}
