// Package store provides the durable offline sales queue.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/vendly/vendly-pos/backend/internal/errors"
	"github.com/vendly/vendly-pos/backend/internal/models"
)

// Storage persists the full queue entry set. Keeping the interface at
// load/save granularity lets the queue logic run against any medium:
// SQLite on the terminal, memory in tests.
type Storage interface {
	// Load returns all persisted entries in insertion order.
	Load() ([]models.QueueEntry, error)

	// Save atomically replaces the persisted entry set.
	// It must not return until the entries are durable.
	Save(entries []models.QueueEntry) error
}

// MemoryStorage is an in-memory Storage for tests and ephemeral terminals.
type MemoryStorage struct {
	mu      sync.Mutex
	entries []models.QueueEntry

	// FailSave, when set, makes Save return this error. Used by tests to
	// exercise persistence-failure rollback.
	FailSave error
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Load returns a copy of the stored entries.
func (s *MemoryStorage) Load() ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.QueueEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// Save replaces the stored entries.
func (s *MemoryStorage) Save(entries []models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSave != nil {
		return s.FailSave
	}

	s.entries = make([]models.QueueEntry, len(entries))
	copy(s.entries, entries)
	return nil
}

// tableNameRe restricts the storage key to a safe SQL identifier.
var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStorage persists the queue in a local SQLite table named after the
// configured storage key. Save rewrites the full set in one transaction so a
// crash mid-write never loses a sale or resurrects a synced one.
type SQLiteStorage struct {
	db    *sql.DB
	table string
}

// NewSQLiteStorage creates the backing table if needed.
func NewSQLiteStorage(db *sql.DB, storageKey string) (*SQLiteStorage, error) {
	if !tableNameRe.MatchString(storageKey) {
		return nil, errors.New(errors.ErrInvalid,
			fmt.Sprintf("storage key %q is not a valid table name", storageKey))
	}

	s := &SQLiteStorage{db: db, table: storageKey}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		items TEXT NOT NULL,
		customer_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0,
		sync_error TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0
	);`, s.table)

	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Wrap(errors.ErrMigration, "failed to create queue table", err)
	}

	return s, nil
}

// Load reads all entries in insertion order.
func (s *SQLiteStorage) Load() ([]models.QueueEntry, error) {
	query := fmt.Sprintf(`
	SELECT id, items, customer_id, created_at, synced, sync_error, retry_count
	FROM %s ORDER BY seq`, s.table)

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to load queue", err)
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		var entry models.QueueEntry
		var itemsJSON string
		if err := rows.Scan(&entry.ID, &itemsJSON, &entry.CustomerID,
			&entry.CreatedAt, &entry.Synced, &entry.SyncError, &entry.RetryCount); err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, "failed to scan queue entry", err)
		}
		if err := json.Unmarshal([]byte(itemsJSON), &entry.Items); err != nil {
			return nil, errors.Wrap(errors.ErrDatabase,
				fmt.Sprintf("corrupt items payload for entry %s", entry.ID), err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to read queue rows", err)
	}

	return entries, nil
}

// Save rewrites the persisted set in one transaction, preserving order via seq.
func (s *SQLiteStorage) Save(entries []models.QueueEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to clear queue table", err)
	}

	insert := fmt.Sprintf(`
	INSERT INTO %s (seq, id, items, customer_id, created_at, synced, sync_error, retry_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	stmt, err := tx.Prepare(insert)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to prepare insert", err)
	}
	defer stmt.Close()

	for i, entry := range entries {
		itemsJSON, err := json.Marshal(entry.Items)
		if err != nil {
			return errors.Wrap(errors.ErrDatabase,
				fmt.Sprintf("failed to marshal items for entry %s", entry.ID), err)
		}
		if _, err := stmt.Exec(i, entry.ID, string(itemsJSON), entry.CustomerID,
			entry.CreatedAt, entry.Synced, entry.SyncError, entry.RetryCount); err != nil {
			return errors.Wrap(errors.ErrDatabase,
				fmt.Sprintf("failed to insert entry %s", entry.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to commit queue write", err)
	}

	return nil
}
