// Package store manages the SQLite database that caches the remote chat
// service's channels and messages locally.
//
// Only this package may open or query the database. All other packages
// receive a [*Store] and call its methods. Writes go through [Store.RunWrite],
// which serializes transactions and fans out a commit notification to
// subscribed observers on a single dispatch goroutine, so observers always
// see commits one at a time and in commit order.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"chatmirror/internal/model"
	"chatmirror/internal/query"
)

const schema = `
CREATE TABLE IF NOT EXISTS channels (
    id            TEXT PRIMARY KEY,
    name          TEXT    NOT NULL DEFAULT '',
    logo_url      TEXT    NOT NULL DEFAULT '',
    last_message  TEXT    NOT NULL DEFAULT '',
    last_activity INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
    id         TEXT PRIMARY KEY,
    channel_id TEXT    NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
    text       TEXT    NOT NULL DEFAULT '',
    user_id    TEXT    NOT NULL DEFAULT '',
    user_name  TEXT    NOT NULL DEFAULT '',
    date       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_messages_channel_date ON messages (channel_id, date);
`

// Observer receives commit notifications. StoreDidCommit is invoked on the
// store's dispatch goroutine, once per committed write transaction, in commit
// order. Implementations must not call RunWrite from the callback.
type Observer interface {
	StoreDidCommit()
}

// Store is the SQLite-backed channel/message cache.
type Store struct {
	db  *sql.DB
	log *slog.Logger

	// writeMu serializes write transactions. Concurrent RunWrite calls
	// queue here rather than interleave.
	writeMu sync.Mutex

	mu        sync.Mutex
	cond      *sync.Cond
	observers []Observer
	pending   int
	closed    bool

	dispatchDone chan struct{}
}

// DefaultDBPath returns the default path for the cache database:
// ~/.local/share/chatmirror/cache.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "chatmirror", "cache.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema,
// and starts the commit dispatch goroutine. WAL mode keeps readers
// non-blocking while a write transaction is open.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	s := &Store{
		db:           db,
		log:          logger,
		dispatchDone: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.dispatchLoop()
	return s, nil
}

// Close stops the dispatch goroutine after draining queued notifications and
// releases the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	<-s.dispatchDone
	return s.db.Close()
}

// Subscribe registers an observer for commit notifications. Observers added
// after a commit was queued may or may not see that commit; they always see
// every commit that happens after Subscribe returns.
func (s *Store) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// RunWrite executes fn inside a write transaction. Transactions are strictly
// serialized: a second caller blocks until the first commit is durable and
// its notification queued. If fn returns an error the transaction is rolled
// back. If fn made no changes the transaction is discarded without notifying
// observers.
//
// Failures — begin, fn, or commit — are logged and swallowed. Durable state
// and the last notified read view stay as of the previous successful commit.
func (s *Store) RunWrite(ctx context.Context, fn func(tx *WriteTx) error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.log.Error("begin write transaction", "error", err)
		return
	}

	wtx := &WriteTx{tx: tx, log: s.log}
	if err := fn(wtx); err != nil {
		_ = tx.Rollback()
		s.log.Error("write transaction aborted", "error", err)
		return
	}
	if !wtx.dirty {
		_ = tx.Rollback()
		return
	}

	if err := tx.Commit(); err != nil {
		s.log.Error("commit failed, write lost", "error", err)
		return
	}

	s.mu.Lock()
	s.pending++
	s.cond.Signal()
	s.mu.Unlock()
}

// dispatchLoop delivers commit notifications to observers, one commit at a
// time. This is the single ordering domain for everything downstream of the
// store: diff batches produced by observers never interleave.
func (s *Store) dispatchLoop() {
	defer close(s.dispatchDone)
	for {
		s.mu.Lock()
		for s.pending == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.pending == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		s.pending--
		obs := make([]Observer, len(s.observers))
		copy(obs, s.observers)
		s.mu.Unlock()

		for _, o := range obs {
			o.StoreDidCommit()
		}
	}
}

// --- read side ---------------------------------------------------------------

// Channels returns all channels in channel-list order (name ascending,
// id as tiebreaker).
func (s *Store) Channels(ctx context.Context) ([]model.Channel, error) {
	q := query.Channels()
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []model.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// Messages returns the channel's messages in conversation order
// (date ascending, id as tiebreaker).
func (s *Store) Messages(ctx context.Context, channelID string) ([]model.Message, error) {
	q := query.Messages(channelID)
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages for %q: %w", channelID, err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ChannelIDs returns the set of locally stored channel ids. Used by the
// reconciler's prune step, which reads outside the write transaction.
func (s *Store) ChannelIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM channels`)
	if err != nil {
		return nil, fmt.Errorf("querying channel ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning channel id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- helpers -----------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so the scan helpers can be
// reused.
type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(sc scanner) (model.Channel, error) {
	var ch model.Channel
	var activity int64
	err := sc.Scan(&ch.ID, &ch.Name, &ch.LogoURL, &ch.LastMessage, &activity)
	if err != nil {
		return model.Channel{}, fmt.Errorf("scanning channel row: %w", err)
	}
	ch.LastActivity = timeFromNanos(activity)
	return ch, nil
}

func scanMessage(sc scanner) (model.Message, error) {
	var m model.Message
	var date int64
	err := sc.Scan(&m.ID, &m.ChannelID, &m.Text, &m.UserID, &m.UserName, &date)
	if err != nil {
		return model.Message{}, fmt.Errorf("scanning message row: %w", err)
	}
	m.Date = timeFromNanos(date)
	return m, nil
}
