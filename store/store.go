// Package store defines the repository interface for an owner's memory set.
//
// The interface is injected into every component instead of living behind
// package-level state, so multiple engine instances can run against the same
// backend and tests can swap in isolated stores.
//
// Implementations:
//   - store/memstore: in-memory, vector queries served by chromem-go
//   - store/sqlitestore: durable SQLite (modernc.org/sqlite)
//
// All implementations are safe for concurrent use. Work for distinct owners
// never contends; within one owner, BumpTheme is atomic so concurrent
// extraction cannot lose increments.
package store

import (
	"context"
	"time"

	"github.com/mnemosyne-ai/mnemosyne/core"
)

// SemanticMatch pairs a memory with its similarity to a query embedding.
type SemanticMatch struct {
	Record     *core.MemoryRecord
	Similarity float64
}

// Store is the durable repository of an owner's memory.
// Memory records are never deleted by the engine; archival is an external
// concern.
type Store interface {
	// PutMemory persists a new memory record. The embedding length must
	// match the store's configured dimension (core.ErrValidation otherwise).
	PutMemory(ctx context.Context, rec *core.MemoryRecord) error

	// Memory fetches one record, or core.ErrNotFound.
	Memory(ctx context.Context, ownerID, id string) (*core.MemoryRecord, error)

	// Memories returns every record for an owner. An owner's set is assumed
	// to fit in a single pass (tens of thousands, not billions).
	Memories(ctx context.Context, ownerID string) ([]*core.MemoryRecord, error)

	// LinkMemories appends related-memory references to an existing record.
	// The only mutation allowed after creation.
	LinkMemories(ctx context.Context, ownerID, id string, relatedIDs []string) error

	// SemanticSearch returns up to limit records ranked by cosine similarity
	// to the query embedding, highest first. Exact scoring, no ANN.
	SemanticSearch(ctx context.Context, ownerID string, embedding []float32, limit int) ([]SemanticMatch, error)

	// PutEmotion appends one emotional data point.
	PutEmotion(ctx context.Context, pt *core.EmotionalDataPoint) error

	// Emotions returns an owner's emotional data points, oldest first.
	Emotions(ctx context.Context, ownerID string) ([]core.EmotionalDataPoint, error)

	// BumpTheme atomically increments a theme's frequency and refreshes its
	// last-mentioned time. Creates the theme at frequency 1 when new.
	BumpTheme(ctx context.Context, ownerID, theme string, at time.Time) error

	// ResetTheme zeroes a theme's frequency. Administrative use only; the
	// engine itself never calls it.
	ResetTheme(ctx context.Context, ownerID, theme string) error

	// Themes returns an owner's theme counters.
	Themes(ctx context.Context, ownerID string) ([]core.ThemeRecord, error)

	// AppendRecall appends one recall event to the audit trail.
	AppendRecall(ctx context.Context, ev *core.RecallEvent) error

	// Recalls returns an owner's recall events, oldest first.
	Recalls(ctx context.Context, ownerID string) ([]core.RecallEvent, error)

	// MarkRecallConsumed flags a recall event as consumed by the caller.
	MarkRecallConsumed(ctx context.Context, ownerID, eventID string) error

	// ReplaceClusters swaps an owner's entire cluster set. Last writer wins.
	ReplaceClusters(ctx context.Context, ownerID string, clusters []core.MemoryCluster) error

	// Clusters returns the owner's cluster set from the last clustering run.
	Clusters(ctx context.Context, ownerID string) ([]core.MemoryCluster, error)

	// ActivateCluster bumps a cluster's activation count and timestamp.
	ActivateCluster(ctx context.Context, ownerID, clusterID string) error

	// Close releases resources.
	Close() error
}
