package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"vigil/internal/events"
)

// Database handles SQLite database operations
type Database struct {
	db *sql.DB
}

// DetectionEventRecord represents a detection event stored in the database
type DetectionEventRecord struct {
	ID             string
	SessionID      string
	Detected       bool
	Confidence     float64
	Description    string
	WindowDuration float64
	BufferSize     int
	CreatedAt      time.Time
}

// New creates a new database connection
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Migrate runs database migrations
func (d *Database) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS detection_events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			detected INTEGER NOT NULL,
			confidence REAL NOT NULL,
			description TEXT,
			window_duration REAL,
			buffer_size INTEGER,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS app_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session_time ON detection_events(session_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_time ON detection_events(created_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// SaveDetectionEvent saves a detection event
func (d *Database) SaveDetectionEvent(event *DetectionEventRecord) error {
	query := `INSERT INTO detection_events
		(id, session_id, detected, confidence, description, window_duration, buffer_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`

	detected := 0
	if event.Detected {
		detected = 1
	}

	_, err := d.db.Exec(query, event.ID, event.SessionID, detected, event.Confidence,
		event.Description, event.WindowDuration, event.BufferSize, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save detection event: %w", err)
	}
	return nil
}

// GetDetectionEvent retrieves a detection event by ID
func (d *Database) GetDetectionEvent(id string) (*DetectionEventRecord, error) {
	query := `SELECT id, session_id, detected, confidence, description, window_duration, buffer_size, created_at
		FROM detection_events WHERE id = ?`

	var event DetectionEventRecord
	var detected int

	err := d.db.QueryRow(query, id).Scan(&event.ID, &event.SessionID, &detected,
		&event.Confidence, &event.Description, &event.WindowDuration, &event.BufferSize, &event.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get detection event: %w", err)
	}

	event.Detected = detected == 1
	return &event, nil
}

// ListDetectionEvents returns detection events with optional filtering
func (d *Database) ListDetectionEvents(sessionID string, since *time.Time, limit int) ([]*DetectionEventRecord, error) {
	query := `SELECT id, session_id, detected, confidence, description, window_duration, buffer_size, created_at
		FROM detection_events WHERE 1=1`
	args := []interface{}{}

	if sessionID != "" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}

	if since != nil {
		query += " AND created_at >= ?"
		args = append(args, *since)
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list detection events: %w", err)
	}
	defer rows.Close()

	var records []*DetectionEventRecord
	for rows.Next() {
		var event DetectionEventRecord
		var detected int

		if err := rows.Scan(&event.ID, &event.SessionID, &detected, &event.Confidence,
			&event.Description, &event.WindowDuration, &event.BufferSize, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan detection event: %w", err)
		}

		event.Detected = detected == 1
		records = append(records, &event)
	}
	return records, nil
}

// DeleteOldDetectionEvents deletes events older than the specified time
func (d *Database) DeleteOldDetectionEvents(before time.Time) (int64, error) {
	result, err := d.db.Exec("DELETE FROM detection_events WHERE created_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old detection events: %w", err)
	}
	return result.RowsAffected()
}

// SaveConfig saves a configuration value
func (d *Database) SaveConfig(key, value string) error {
	query := `INSERT INTO app_config (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`

	_, err := d.db.Exec(query, key, value)
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// GetConfig retrieves a configuration value
func (d *Database) GetConfig(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM app_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config: %w", err)
	}
	return value, nil
}

// Writer persists detection events published on the event bus
type Writer struct {
	db *Database
}

// NewWriter creates a store writer for the given database
func NewWriter(db *Database) *Writer {
	return &Writer{db: db}
}

// OnDetectionEvent implements events.DetectionEventHandler
func (w *Writer) OnDetectionEvent(event *events.DetectionEvent) {
	record := &DetectionEventRecord{
		ID:             event.ID,
		SessionID:      event.SessionID,
		Detected:       event.Detected,
		Confidence:     event.Confidence,
		Description:    event.Description,
		WindowDuration: event.WindowDuration,
		BufferSize:     event.BufferSize,
		CreatedAt:      event.CreatedAt,
	}
	if err := w.db.SaveDetectionEvent(record); err != nil {
		log.Printf("[Database] Failed to persist detection event %s: %v", event.ID, err)
	}
}

// Ensure Writer implements DetectionEventHandler
var _ events.DetectionEventHandler = (*Writer)(nil)
