package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Journal wraps the SQLite event journal and provides logging methods
type Journal struct {
	conn *sql.DB
	path string
}

// Open opens or creates the SQLite journal at the specified path
func Open(path string) (*Journal, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	j := &Journal{
		conn: conn,
		path: path,
	}

	if err := j.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return j, nil
}

// Close closes the journal
func (j *Journal) Close() error {
	if j.conn != nil {
		// Checkpoint the WAL to ensure all data is written to the main database file
		j.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return j.conn.Close()
	}
	return nil
}

// Flush forces a WAL checkpoint to write pending changes to the main database file
func (j *Journal) Flush() error {
	if j.conn != nil {
		// Use RESTART mode to force checkpoint even if there are active readers
		_, err := j.conn.Exec("PRAGMA wal_checkpoint(RESTART)")
		return err
	}
	return nil
}

// initSchema creates the journal tables if they don't exist
func (j *Journal) initSchema() error {
	schema := `
	-- Bridge lifecycle events
	CREATE TABLE IF NOT EXISTS bridge_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Peer connection events
	CREATE TABLE IF NOT EXISTS peer_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		peer_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Companion process lifecycle events
	CREATE TABLE IF NOT EXISTS companion_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Indexes for common queries
	CREATE INDEX IF NOT EXISTS idx_bridge_events_timestamp ON bridge_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_peer_events_timestamp ON peer_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_peer_events_peer ON peer_events(peer_id);
	CREATE INDEX IF NOT EXISTS idx_companion_events_timestamp ON companion_events(timestamp);
	`

	_, err := j.conn.Exec(schema)
	return err
}

// BridgeEvent represents a bridge lifecycle event
type BridgeEvent struct {
	ID        int64
	EventType string
	Details   string
	Timestamp time.Time
}

// LogBridgeEvent logs a bridge lifecycle event to the journal
func (j *Journal) LogBridgeEvent(eventType, details string) error {
	_, err := j.conn.Exec(
		`INSERT INTO bridge_events (event_type, details, timestamp)
		 VALUES (?, ?, ?)`,
		eventType, details, time.Now(),
	)
	return err
}

// PeerEvent represents a peer connection event
type PeerEvent struct {
	ID        int64
	PeerID    string
	EventType string
	Details   string
	Timestamp time.Time
}

// LogPeerEvent logs a peer connection event to the journal
func (j *Journal) LogPeerEvent(peerID, eventType, details string) error {
	// Retry briefly if database is locked (3 attempts, 5ms between)
	// This is best-effort - we don't want to block bridge shutdown
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		_, err := j.conn.Exec(
			`INSERT INTO peer_events (peer_id, event_type, details, timestamp)
			 VALUES (?, ?, ?, ?)`,
			peerID, eventType, details, time.Now(),
		)
		if err == nil {
			return nil
		}
		// Check if error is SQLITE_BUSY
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		return err
	}
	return fmt.Errorf("failed to log peer event after %d retries: database locked", maxRetries)
}

// CompanionEvent represents a companion process lifecycle event
type CompanionEvent struct {
	ID        int64
	EventType string
	Details   string
	Timestamp time.Time
}

// LogCompanionEvent logs a companion lifecycle event to the journal
func (j *Journal) LogCompanionEvent(eventType, details string) error {
	_, err := j.conn.Exec(
		`INSERT INTO companion_events (event_type, details, timestamp)
		 VALUES (?, ?, ?)`,
		eventType, details, time.Now(),
	)
	return err
}

// GetRecentBridgeEvents retrieves recent bridge events
func (j *Journal) GetRecentBridgeEvents(limit int) ([]BridgeEvent, error) {
	rows, err := j.conn.Query(
		`SELECT id, event_type, details, timestamp
		 FROM bridge_events
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []BridgeEvent
	for rows.Next() {
		var e BridgeEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetRecentPeerEvents retrieves recent peer events
func (j *Journal) GetRecentPeerEvents(limit int) ([]PeerEvent, error) {
	rows, err := j.conn.Query(
		`SELECT id, peer_id, event_type, details, timestamp
		 FROM peer_events
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []PeerEvent
	for rows.Next() {
		var e PeerEvent
		if err := rows.Scan(&e.ID, &e.PeerID, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetRecentCompanionEvents retrieves recent companion events
func (j *Journal) GetRecentCompanionEvents(limit int) ([]CompanionEvent, error) {
	rows, err := j.conn.Query(
		`SELECT id, event_type, details, timestamp
		 FROM companion_events
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []CompanionEvent
	for rows.Next() {
		var e CompanionEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
