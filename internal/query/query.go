// Package query defines the two standing queries the channel list and the
// conversation view observe. Keeping them here, as data, means the store's
// read side and the diff observers materialize exactly the same row order.
package query

// Query is a declarative description of a standing query: SQL text plus
// bound arguments. Sort order is part of the contract — diff positions only
// make sense against a view that mirrors it.
type Query struct {
	SQL  string
	Args []any
}

const channelsSQL = `
	SELECT id, name, logo_url, last_message, last_activity
	FROM channels
	ORDER BY name ASC, id ASC`

const messagesSQL = `
	SELECT id, channel_id, text, user_id, user_name, date
	FROM messages
	WHERE channel_id = ?
	ORDER BY date ASC, id ASC`

// Channels is the channel-list query: every channel, name ascending, with id
// as a deterministic tiebreaker for equal names.
func Channels() Query {
	return Query{SQL: channelsSQL}
}

// Messages is the conversation query: the channel's full message set, date
// ascending. No pagination — the result is always materialized whole.
func Messages(channelID string) Query {
	return Query{SQL: messagesSQL, Args: []any{channelID}}
}
