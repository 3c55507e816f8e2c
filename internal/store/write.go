package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"chatmirror/internal/model"
)

// WriteTx is the handle passed to [Store.RunWrite] callbacks. All mutations
// on the store go through its methods; they run inside one SQL transaction
// and become visible atomically at commit.
type WriteTx struct {
	tx  *sql.Tx
	log *slog.Logger

	// dirty records whether any helper actually changed a row. A clean
	// transaction is discarded without a commit or an observer notification.
	dirty bool
}

// UpsertChannel inserts the channel or, when a row with the same id exists,
// overwrites its name, last message, and last activity. The id is never
// rewritten and logo_url keeps the value from the first insert.
func (w *WriteTx) UpsertChannel(ch model.Channel) error {
	const q = `
		INSERT INTO channels (id, name, logo_url, last_message, last_activity)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    name          = excluded.name,
		    last_message  = excluded.last_message,
		    last_activity = excluded.last_activity`

	_, err := w.tx.Exec(q, ch.ID, ch.Name, ch.LogoURL, ch.LastMessage, timeToNanos(ch.LastActivity))
	if err != nil {
		return fmt.Errorf("upserting channel %q: %w", ch.ID, err)
	}
	w.dirty = true
	return nil
}

// UpsertMessage stores the message if it is new. Messages are immutable once
// stored: an existing row with the same id anywhere in the store wins and the
// incoming message is discarded whole. A message whose channel is not present
// locally is silently dropped — a benign race with channel deletion, not an
// error.
//
// On insert the owning channel's last_message and last_activity are updated
// in the same transaction. Returns whether a row was inserted.
func (w *WriteTx) UpsertMessage(m model.Message) (bool, error) {
	var exists int
	err := w.tx.QueryRow(`SELECT COUNT(*) FROM channels WHERE id = ?`, m.ChannelID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("resolving channel %q: %w", m.ChannelID, err)
	}
	if exists == 0 {
		w.log.Debug("dropping message for unknown channel", "message_id", m.ID, "channel_id", m.ChannelID)
		return false, nil
	}

	err = w.tx.QueryRow(`SELECT COUNT(*) FROM messages WHERE id = ?`, m.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking message %q uniqueness: %w", m.ID, err)
	}
	if exists > 0 {
		return false, nil
	}

	_, err = w.tx.Exec(
		`INSERT INTO messages (id, channel_id, text, user_id, user_name, date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChannelID, m.Text, m.UserID, m.UserName, timeToNanos(m.Date),
	)
	if err != nil {
		return false, fmt.Errorf("inserting message %q: %w", m.ID, err)
	}

	_, err = w.tx.Exec(
		`UPDATE channels SET last_message = ?, last_activity = ? WHERE id = ?`,
		m.Text, timeToNanos(m.Date), m.ChannelID,
	)
	if err != nil {
		return false, fmt.Errorf("updating channel %q activity: %w", m.ChannelID, err)
	}

	w.dirty = true
	return true, nil
}

// DeleteChannel removes the channel and, via the foreign key cascade, all of
// its messages. Deleting an absent channel is a no-op.
func (w *WriteTx) DeleteChannel(id string) error {
	res, err := w.tx.Exec(`DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting channel %q: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		w.dirty = true
	}
	return nil
}

// Dates are stored as Unix nanoseconds so ORDER BY compares correctly;
// RFC 3339 text does not sort when fractional-second precision varies.
// The zero time maps to 0.

func timeToNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func timeFromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
