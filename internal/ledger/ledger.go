// Package ledger keeps an append-only audit of dispatched command bursts.
// The fixture cannot acknowledge commands, so the ledger is the only record
// of what the hub actually emitted and when.
package ledger

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Ledger records dispatched bursts in SQLite.
type Ledger struct {
	db *sql.DB
}

// New creates a ledger over an open database.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Record appends one entry for a finished burst. Errors are logged, not
// returned: auditing must never interfere with the send path.
func (l *Ledger) Record(fixtureID, command string, count, sent, failed int) {
	_, err := l.db.Exec(`
		INSERT INTO command_ledger (id, fixture, command, count, sent, failed, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), fixtureID, command, count, sent, failed, time.Now().UTC().Unix())

	if err != nil {
		log.Error().Err(err).
			Str("fixture", fixtureID).
			Str("command", command).
			Msg("Failed to record command burst")
	}
}

// Cleanup deletes entries older than the retention window and returns the
// number of rows removed.
func (l *Ledger) Cleanup(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Unix()

	result, err := l.db.Exec(`
		DELETE FROM command_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// Entry is one recorded burst.
type Entry struct {
	ID        string
	Fixture   string
	Command   string
	Count     int
	Sent      int
	Failed    int
	Timestamp time.Time
}

// Recent returns the latest entries for a fixture, newest first.
func (l *Ledger) Recent(fixtureID string, limit int) ([]Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, fixture, command, count, sent, failed, timestamp
		FROM command_ledger
		WHERE fixture = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, fixtureID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.ID, &e.Fixture, &e.Command, &e.Count, &e.Sent, &e.Failed, &ts); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(ts, 0).UTC()
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
