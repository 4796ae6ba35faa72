package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of PlanStore.
//
// It stores plan manifests in a single-file database. Designed for:
//   - Development and local tooling with zero setup
//   - Single-host runners that reload plans across restarts
//   - Prototyping before migrating to a shared registry
//
// SQLiteStore uses WAL mode for concurrent reads and transactional writes.
//
// Features:
//   - Single file database (e.g. "./plans.db")
//   - Auto-migration on first use
//   - WAL mode for concurrent reads
//
// Schema:
//   - plan_manifests: one row per plan name, JSON manifest payload
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a new SQLite-backed plan store.
//
// The path parameter specifies the database file location:
//   - "./plans.db" - file in current directory
//   - "/var/lib/graphplan/plans.db" - absolute path
//   - ":memory:" - in-memory database (data lost on close)
//
// The store automatically:
//   - Creates the database file if it doesn't exist
//   - Creates the required table
//   - Enables WAL mode for concurrent reads
//   - Configures a busy timeout
//
// Example:
//
//	st, err := store.NewSQLiteStore("./plans.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	st := &SQLiteStore{
		db:   db,
		path: path,
	}

	if err := st.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return st, nil
}

// createTables creates the required database schema if it doesn't exist.
func (s *SQLiteStore) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS plan_manifests (
			name TEXT NOT NULL PRIMARY KEY,
			manifest TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create plan_manifests table: %w", err)
	}
	return nil
}

// SavePlan persists the manifest, overwriting any previous manifest saved
// under the same name.
func (s *SQLiteStore) SavePlan(ctx context.Context, manifest PlanManifest) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	query := `
		INSERT INTO plan_manifests (name, manifest)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET
			manifest = excluded.manifest,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, manifest.Name, string(data)); err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

// LoadPlan retrieves the manifest saved under name.
//
// Returns ErrNotFound if the name doesn't exist.
func (s *SQLiteStore) LoadPlan(ctx context.Context, name string) (PlanManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return PlanManifest{}, fmt.Errorf("store is closed")
	}

	var data string
	query := `SELECT manifest FROM plan_manifests WHERE name = ?`
	err := s.db.QueryRowContext(ctx, query, name).Scan(&data)
	if err == sql.ErrNoRows {
		return PlanManifest{}, fmt.Errorf("plan %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return PlanManifest{}, fmt.Errorf("failed to load plan: %w", err)
	}

	var manifest PlanManifest
	if err := json.Unmarshal([]byte(data), &manifest); err != nil {
		return PlanManifest{}, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return manifest, nil
}

// ListPlans returns the names of all saved plans in lexical order.
func (s *SQLiteStore) ListPlans(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM plan_manifests ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan plan name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plans: %w", err)
	}
	return names, nil
}

// DeletePlan removes the manifest saved under name.
//
// Returns ErrNotFound if the name doesn't exist.
func (s *SQLiteStore) DeletePlan(ctx context.Context, name string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM plan_manifests WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("plan %q: %w", name, ErrNotFound)
	}
	return nil
}

// Close closes the database connection. The store cannot be used afterwards.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
