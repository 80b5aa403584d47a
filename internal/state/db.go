// internal/state/db.go
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/colebrumley/radmon/internal/event"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no reading matches
var ErrNotFound = errors.New("reading not found")

// Reading is one stored channel value. Readings recorded from the same
// datum share a SampleID.
type Reading struct {
	ID         string    `json:"id"`
	SampleID   string    `json:"sample_id"`
	Origin     string    `json:"origin"`
	Channel    string    `json:"channel"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	CapturedAt time.Time `json:"captured_at"`
}

// ChannelInfo summarizes the readings stored for one origin/channel pair
type ChannelInfo struct {
	Origin  string    `json:"origin"`
	Channel string    `json:"channel"`
	Unit    string    `json:"unit"`
	Count   int64     `json:"count"`
	LastAt  time.Time `json:"last_at"`
}

// Query filters GetReadings. Zero fields are ignored.
type Query struct {
	Origin  string
	Channel string
	Since   time.Time
	Limit   int
}

// DB wraps the SQLite database holding reading history.
type DB struct {
	db *sql.DB
}

const stateSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS readings (
    id TEXT PRIMARY KEY,
    sample_id TEXT NOT NULL,
    origin TEXT NOT NULL,
    channel TEXT NOT NULL,
    value REAL NOT NULL,
    unit TEXT NOT NULL,
    captured_at INTEGER NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_readings_origin_channel ON readings(origin, channel);
CREATE INDEX IF NOT EXISTS idx_readings_captured ON readings(captured_at);
CREATE INDEX IF NOT EXISTS idx_readings_sample ON readings(sample_id);
`

// Open opens or creates a history database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Handlers from several triggers write concurrently; one connection
	// avoids SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if _, err := db.Exec(stateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count)
	if count == 0 {
		db.Exec("INSERT INTO schema_version (version) VALUES (1)")
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// RecordDatum stores every channel of d and returns the sample ID.
func (d *DB) RecordDatum(datum *event.Datum) (string, error) {
	sampleID := uuid.NewString()
	captured := datum.Timestamp().UnixMilli()

	tx, err := d.db.Begin()
	if err != nil {
		return "", fmt.Errorf("recording datum: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO readings (id, sample_id, origin, channel, value, unit, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("recording datum: %w", err)
	}
	defer stmt.Close()

	for _, name := range datum.ChannelNames() {
		v, _ := datum.Channel(name)
		if _, err := stmt.Exec(uuid.NewString(), sampleID, datum.Origin(), name, v.Value, v.Unit, captured); err != nil {
			return "", fmt.Errorf("recording channel %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("recording datum: %w", err)
	}
	return sampleID, nil
}

// GetReadings returns readings matching q, newest first.
func (d *DB) GetReadings(q Query) ([]Reading, error) {
	query := "SELECT id, sample_id, origin, channel, value, unit, captured_at FROM readings WHERE 1=1"
	var args []any

	if q.Origin != "" {
		query += " AND origin = ?"
		args = append(args, q.Origin)
	}
	if q.Channel != "" {
		query += " AND channel = ?"
		args = append(args, q.Channel)
	}
	if !q.Since.IsZero() {
		query += " AND captured_at >= ?"
		args = append(args, q.Since.UnixMilli())
	}

	query += " ORDER BY captured_at DESC, channel"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// Latest returns the most recent reading for an origin and channel.
// An empty origin matches any origin.
func (d *DB) Latest(origin, channel string) (Reading, error) {
	readings, err := d.GetReadings(Query{Origin: origin, Channel: channel, Limit: 1})
	if err != nil {
		return Reading{}, err
	}
	if len(readings) == 0 {
		return Reading{}, ErrNotFound
	}
	return readings[0], nil
}

// Channels lists every origin/channel pair with a reading count.
func (d *DB) Channels() ([]ChannelInfo, error) {
	rows, err := d.db.Query(`
		SELECT origin, channel, MAX(unit), COUNT(*), MAX(captured_at)
		FROM readings
		GROUP BY origin, channel
		ORDER BY origin, channel`)
	if err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	defer rows.Close()

	var infos []ChannelInfo
	for rows.Next() {
		var ci ChannelInfo
		var last int64
		if err := rows.Scan(&ci.Origin, &ci.Channel, &ci.Unit, &ci.Count, &last); err != nil {
			return nil, fmt.Errorf("scanning channel: %w", err)
		}
		ci.LastAt = time.UnixMilli(last).UTC()
		infos = append(infos, ci)
	}
	return infos, rows.Err()
}

// Cleanup removes readings captured more than retentionDays ago.
func (d *DB) Cleanup(retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result, err := d.db.Exec("DELETE FROM readings WHERE captured_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cleaning up readings: %w", err)
	}
	return result.RowsAffected()
}

func scanReading(rows *sql.Rows) (Reading, error) {
	var r Reading
	var captured int64
	if err := rows.Scan(&r.ID, &r.SampleID, &r.Origin, &r.Channel, &r.Value, &r.Unit, &captured); err != nil {
		return Reading{}, fmt.Errorf("scanning reading: %w", err)
	}
	r.CapturedAt = time.UnixMilli(captured).UTC()
	return r, nil
}
