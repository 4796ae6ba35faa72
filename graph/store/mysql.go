package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of PlanStore.
//
// It stores plan manifests in a relational database. Designed for:
//   - A shared plan registry across distributed runner workers
//   - Deployments where plans must survive process restarts
//   - Audit trails of what topology was in effect when
//
// MySQLStore uses connection pooling and upserts for reliability.
//
// Schema:
//   - plan_manifests: one row per plan name, JSON manifest payload
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a new MySQL-backed plan store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
//
// Example:
//
//	st, err := store.NewMySQLStore("user:pass@tcp(localhost:3306)/graphplan?parseTime=true")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	// Pool sizing for a registry that is read-heavy and write-light.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	st := &MySQLStore{db: db}

	if err := st.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return st, nil
}

// createTables creates the required database schema if it doesn't exist.
func (s *MySQLStore) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS plan_manifests (
			name VARCHAR(255) NOT NULL PRIMARY KEY,
			manifest JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create plan_manifests table: %w", err)
	}
	return nil
}

// SavePlan persists the manifest, overwriting any previous manifest saved
// under the same name.
func (s *MySQLStore) SavePlan(ctx context.Context, manifest PlanManifest) error {
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
		ON DUPLICATE KEY UPDATE manifest = VALUES(manifest)
	`
	if _, err := s.db.ExecContext(ctx, query, manifest.Name, string(data)); err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

// LoadPlan retrieves the manifest saved under name.
//
// Returns ErrNotFound if the name doesn't exist.
func (s *MySQLStore) LoadPlan(ctx context.Context, name string) (PlanManifest, error) {
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
func (s *MySQLStore) ListPlans(ctx context.Context) ([]string, error) {
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
func (s *MySQLStore) DeletePlan(ctx context.Context, name string) error {
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

// Close closes the database connection pool. The store cannot be used
// afterwards.
func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
