package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory implementation of PlanStore.
//
// It stores plan manifests in a map. Designed for:
//   - Testing and development
//   - Single-process tooling where persistence isn't required
//
// MemStore is thread-safe and supports concurrent access. Manifests are
// round-tripped through JSON on save and load so callers never share slices
// or maps with the store.
//
// Limitations:
//   - Data is lost when the process terminates
//   - Not suitable for distributed runners
//
// For persistence use SQLiteStore or MySQLStore.
type MemStore struct {
	mu    sync.RWMutex
	plans map[string][]byte // plan name -> JSON manifest
}

// NewMemStore creates a new in-memory plan store.
//
// Example:
//
//	st := store.NewMemStore()
//	err := plan.Save(ctx, st)
func NewMemStore() *MemStore {
	return &MemStore{
		plans: make(map[string][]byte),
	}
}

// SavePlan stores the manifest under its name, overwriting any previous
// manifest with that name.
func (m *MemStore) SavePlan(ctx context.Context, manifest PlanManifest) error {
	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.plans[manifest.Name] = data
	return nil
}

// LoadPlan retrieves the manifest saved under name.
//
// Returns ErrNotFound if no manifest exists with that name.
func (m *MemStore) LoadPlan(ctx context.Context, name string) (PlanManifest, error) {
	m.mu.RLock()
	data, ok := m.plans[name]
	m.mu.RUnlock()

	if !ok {
		return PlanManifest{}, fmt.Errorf("plan %q: %w", name, ErrNotFound)
	}

	var manifest PlanManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return PlanManifest{}, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return manifest, nil
}

// ListPlans returns the names of all saved plans in lexical order.
func (m *MemStore) ListPlans(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.plans))
	for name := range m.plans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeletePlan removes the manifest saved under name.
//
// Returns ErrNotFound if no manifest exists with that name.
func (m *MemStore) DeletePlan(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.plans[name]; !ok {
		return fmt.Errorf("plan %q: %w", name, ErrNotFound)
	}
	delete(m.plans, name)
	return nil
}

// Close is a no-op for MemStore.
func (m *MemStore) Close() error {
	return nil
}
