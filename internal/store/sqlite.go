package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore keeps named blobs in a local SQLite file. Each slot is
// overwritten wholesale; there is no history.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// Writes come from one process; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS slots (
        name TEXT PRIMARY KEY,
        payload TEXT NOT NULL,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// SaveSlot overwrites the named slot.
func (s *SQLiteStore) SaveSlot(name string, payload []byte) error {
	stmt, err := s.db.Prepare(`INSERT INTO slots (name, payload, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare slot upsert: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.Exec(name, string(payload), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save slot %s: %w", name, err)
	}
	return nil
}

// LoadSlot returns the slot payload. A missing slot is reported with
// ok == false and a nil error.
func (s *SQLiteStore) LoadSlot(name string) ([]byte, bool, error) {
	slot, err := s.GetSlot(name)
	if err != nil {
		return nil, false, err
	}
	if slot == nil {
		return nil, false, nil
	}
	return slot.Payload, true, nil
}

func (s *SQLiteStore) GetSlot(name string) (*Slot, error) {
	var slot Slot
	var payload string
	err := s.db.QueryRow("SELECT name, payload, updated_at FROM slots WHERE name = ?", name).
		Scan(&slot.Name, &payload, &slot.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to query slot %s: %w", name, err)
	}
	slot.Payload = []byte(payload)
	return &slot, nil
}

// DeleteSlot removes a slot. Deleting a missing slot is not an error.
func (s *SQLiteStore) DeleteSlot(name string) error {
	if _, err := s.db.Exec("DELETE FROM slots WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete slot %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) ListSlots() ([]Slot, error) {
	rows, err := s.db.Query("SELECT name, updated_at FROM slots ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		var slot Slot
		if err := rows.Scan(&slot.Name, &slot.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan slot row: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}
