// Package memory implements the durable Memory Store: an append-only
// ordered log keyed by (workflowId, agentName) plus a key/value side-store
// for arbitrary stage artifacts keyed by (workflowId, key). Two backends are
// provided — an embedded/external SQL store (store_sql.go) and a Redis store
// (store_redis.go) — both satisfying the Store interface so the rest of the
// module never branches on which one is configured.
package memory

import (
	"context"
	"time"
)

// EntryKind is the closed set of MemoryEntry kinds.
type EntryKind string

const (
	KindUserTurn   EntryKind = "UserTurn"
	KindAgentTurn  EntryKind = "AgentTurn"
	KindToolCall   EntryKind = "ToolCall"
	KindToolResult EntryKind = "ToolResult"
	KindSystem     EntryKind = "System"
)

// Entry is a single record in a (workflowId, agentName) log. Entries are
// never mutated after insertion.
type Entry struct {
	WorkflowID string
	AgentName  string
	Seq        uint64
	Kind       EntryKind
	Content    string
	CreatedAt  time.Time
}

// Store is the Memory Store contract. Implementations must serialize writes
// to the same (workflowId, agentName) pair and to the same (workflowId, key)
// artifact, and must assign Seq atomically with the insert so a caller can
// retry an Append idempotently after a storage fault.
type Store interface {
	// Append atomically assigns the next seq for (workflowId, agentName) and
	// inserts the entry, returning the assigned seq.
	Append(ctx context.Context, workflowID, agentName string, kind EntryKind, content string) (uint64, error)

	// Read returns the last lastN entries for (workflowId, agentName) in
	// ascending seq order. lastN <= 0 means all entries.
	Read(ctx context.Context, workflowID, agentName string, lastN int) ([]Entry, error)

	// ReadBudgeted behaves like Read but additionally trims from the oldest
	// end until the remaining entries' content fits within maxTokens, using
	// the package's token counter. It always keeps at least the most recent
	// entry, even if that entry alone exceeds maxTokens.
	ReadBudgeted(ctx context.Context, workflowID, agentName string, lastN, maxTokens int) ([]Entry, error)

	// PutArtifact writes a (workflowId, key) value, last-writer-wins, with
	// writes serialized per key.
	PutArtifact(ctx context.Context, workflowID, key, value string) error

	// GetArtifact reads a (workflowId, key) value. ok is false if absent.
	GetArtifact(ctx context.Context, workflowID, key string) (value string, ok bool, err error)

	// Snapshot returns a stable ordered view of every entry across every
	// agent in a workflow, tie-broken by (agentName, seq).
	Snapshot(ctx context.Context, workflowID string) ([]Entry, error)

	// Expire deletes entries and artifacts created before olderThan. It is
	// meant to be called periodically by a background sweep, not per-request.
	Expire(ctx context.Context, olderThan time.Time) error

	// Close releases the underlying connection/client.
	Close() error
}
