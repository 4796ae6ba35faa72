package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested plan name does not exist.
var ErrNotFound = errors.New("not found")

// Write kinds appearing in a node's writer descriptions.
const (
	// WriteChannels is a static write to a fixed channel list.
	WriteChannels = "channels"

	// WriteBranch is a branch writer stage that routes at run time.
	WriteBranch = "branch"
)

// WriteManifest describes one writer stage attached to a lowered node.
//
// Kind WriteChannels carries the fixed Channels list. Kind WriteBranch
// carries the branch's source, name, and the concrete destination universe
// materialized at compile time; the channels it writes follow the
// branch:<source>:<branch>:<destination> naming scheme.
type WriteManifest struct {
	Kind         string   `json:"kind"`
	Channels     []string `json:"channels,omitempty"`
	Source       string   `json:"source,omitempty"`
	Branch       string   `json:"branch,omitempty"`
	Destinations []string `json:"destinations,omitempty"`
}

// NodeManifest describes one lowered node: its trigger set, subscriptions,
// and writer stages. Actions are code, not data, and are never persisted.
type NodeManifest struct {
	Triggers   []string        `json:"triggers"`
	Subscribes []string        `json:"subscribes"`
	Writes     []WriteManifest `json:"writes,omitempty"`
}

// PlanManifest is the serializable topology of a compiled plan: the channel
// registry plus per-node trigger and writer sets. It is what external
// runners and tooling load to schedule a graph without holding the builder.
type PlanManifest struct {
	Name            string                  `json:"name"`
	Channels        map[string]string       `json:"channels"`
	Nodes           map[string]NodeManifest `json:"nodes"`
	InputChannel    string                  `json:"inputChannel"`
	OutputChannel   string                  `json:"outputChannel"`
	StreamChannels  []string                `json:"streamChannels,omitempty"`
	InterruptBefore []string                `json:"interruptBefore,omitempty"`
	InterruptAfter  []string                `json:"interruptAfter,omitempty"`
}

// PlanStore persists compiled-plan manifests keyed by plan name.
//
// It enables:
//   - Handing a plan's topology to an out-of-process runner
//   - Caching compiled plans across restarts
//   - Diffing a graph's topology between deployments
//
// Implementations can use:
//   - In-memory storage (for testing, see memory.go)
//   - SQLite (single file, zero setup, see sqlite.go)
//   - MySQL/MariaDB (shared registry for distributed workers, see mysql.go)
type PlanStore interface {
	// SavePlan persists a manifest. Saving under an existing name
	// overwrites the previous manifest.
	SavePlan(ctx context.Context, manifest PlanManifest) error

	// LoadPlan retrieves the manifest saved under name.
	//
	// Returns ErrNotFound if the name doesn't exist, or other persistence
	// errors.
	LoadPlan(ctx context.Context, name string) (PlanManifest, error)

	// ListPlans returns the names of all saved plans in lexical order.
	ListPlans(ctx context.Context) ([]string, error)

	// DeletePlan removes the manifest saved under name.
	//
	// Returns ErrNotFound if the name doesn't exist.
	DeletePlan(ctx context.Context, name string) error

	// Close releases any resources held by the store.
	Close() error
}
