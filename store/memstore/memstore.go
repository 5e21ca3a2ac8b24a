// Package memstore is the in-memory Store implementation.
//
// Records, emotions, themes, recalls, and clusters live in per-owner maps
// guarded by a mutex. Semantic queries are served by an embedded chromem-go
// collection per owner: exact brute-force cosine over the owner's bounded
// memory set, no approximate indexing.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/mnemosyne-ai/mnemosyne/core"
	"github.com/mnemosyne-ai/mnemosyne/store"
)

type ownerState struct {
	memories map[string]*core.MemoryRecord
	order    []string // insertion order of memory ids
	emotions []core.EmotionalDataPoint
	themes   map[string]*core.ThemeRecord
	recalls  []core.RecallEvent
	clusters []core.MemoryCluster
}

// Store keeps an owner's full memory set in process.
type Store struct {
	dims int

	mu     sync.RWMutex
	owners map[string]*ownerState

	db    *chromem.DB
	colMu sync.RWMutex
	cols  map[string]*chromem.Collection
}

// New creates an in-memory store for embeddings of the given dimension.
func New(dims int) *Store {
	return &Store{
		dims:   dims,
		owners: make(map[string]*ownerState),
		db:     chromem.NewDB(),
		cols:   make(map[string]*chromem.Collection),
	}
}

func (s *Store) owner(ownerID string) *ownerState {
	st, ok := s.owners[ownerID]
	if !ok {
		st = &ownerState{
			memories: make(map[string]*core.MemoryRecord),
			themes:   make(map[string]*core.ThemeRecord),
		}
		s.owners[ownerID] = st
	}
	return st
}

// collection returns the owner's chromem collection, creating it on first
// use. Double-checked so concurrent owners don't serialize on the write lock.
func (s *Store) collection(ownerID string) (*chromem.Collection, error) {
	s.colMu.RLock()
	col, ok := s.cols[ownerID]
	s.colMu.RUnlock()
	if ok {
		return col, nil
	}

	s.colMu.Lock()
	defer s.colMu.Unlock()
	if col, ok := s.cols[ownerID]; ok {
		return col, nil
	}

	col, err := s.db.CreateCollection("owner_"+ownerID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.cols[ownerID] = col
	return col, nil
}

// PutMemory persists a new memory record.
func (s *Store) PutMemory(ctx context.Context, rec *core.MemoryRecord) error {
	if len(rec.Embedding) != s.dims {
		return fmt.Errorf("%w: embedding has %d dimensions, store expects %d",
			core.ErrValidation, len(rec.Embedding), s.dims)
	}

	col, err := s.collection(rec.OwnerID)
	if err != nil {
		return err
	}
	err = col.AddDocument(ctx, chromem.Document{
		ID:        rec.ID,
		Content:   rec.Content,
		Embedding: rec.Embedding,
	})
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.owner(rec.OwnerID)
	st.memories[rec.ID] = rec
	st.order = append(st.order, rec.ID)
	return nil
}

// Memory fetches one record.
func (s *Store) Memory(ctx context.Context, ownerID, id string) (*core.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.owners[ownerID]
	if !ok {
		return nil, fmt.Errorf("%w: owner %s", core.ErrNotFound, ownerID)
	}
	rec, ok := st.memories[id]
	if !ok {
		return nil, fmt.Errorf("%w: memory %s", core.ErrNotFound, id)
	}
	return cloneRecord(rec), nil
}

// Memories returns every record for an owner in insertion order.
func (s *Store) Memories(ctx context.Context, ownerID string) ([]*core.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.owners[ownerID]
	if !ok {
		return nil, nil
	}
	out := make([]*core.MemoryRecord, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, cloneRecord(st.memories[id]))
	}
	return out, nil
}

// cloneRecord snapshots a record so callers cannot mutate store state
// through the returned pointer. Embeddings are immutable and stay shared.
func cloneRecord(rec *core.MemoryRecord) *core.MemoryRecord {
	out := *rec
	out.Tags = append([]string(nil), rec.Tags...)
	out.RelatedMemoryIDs = append([]string(nil), rec.RelatedMemoryIDs...)
	return &out
}

// LinkMemories appends related-memory references to an existing record.
func (s *Store) LinkMemories(ctx context.Context, ownerID, id string, relatedIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.owners[ownerID]
	if !ok {
		return fmt.Errorf("%w: owner %s", core.ErrNotFound, ownerID)
	}
	rec, ok := st.memories[id]
	if !ok {
		return fmt.Errorf("%w: memory %s", core.ErrNotFound, id)
	}
	for _, rid := range relatedIDs {
		if rid == id {
			continue
		}
		dup := false
		for _, existing := range rec.RelatedMemoryIDs {
			if existing == rid {
				dup = true
				break
			}
		}
		if !dup {
			rec.RelatedMemoryIDs = append(rec.RelatedMemoryIDs, rid)
		}
	}
	return nil
}

// SemanticSearch returns the closest records by cosine similarity.
func (s *Store) SemanticSearch(ctx context.Context, ownerID string, embedding []float32, limit int) ([]store.SemanticMatch, error) {
	if len(embedding) != s.dims {
		return nil, fmt.Errorf("%w: query embedding has %d dimensions, store expects %d",
			core.ErrValidation, len(embedding), s.dims)
	}

	s.mu.RLock()
	st, ok := s.owners[ownerID]
	count := 0
	if ok {
		count = len(st.memories)
	}
	s.mu.RUnlock()
	if count == 0 {
		return nil, nil
	}

	// chromem requires nResults <= collection size.
	if limit <= 0 || limit > count {
		limit = count
	}

	col, err := s.collection(ownerID)
	if err != nil {
		return nil, err
	}
	results, err := col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := make([]store.SemanticMatch, 0, len(results))
	for _, res := range results {
		rec, ok := st.memories[res.ID]
		if !ok {
			continue
		}
		matches = append(matches, store.SemanticMatch{
			Record:     cloneRecord(rec),
			Similarity: float64(res.Similarity),
		})
	}
	return matches, nil
}

// PutEmotion appends one emotional data point.
func (s *Store) PutEmotion(ctx context.Context, pt *core.EmotionalDataPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.owner(pt.OwnerID)
	st.emotions = append(st.emotions, *pt)
	return nil
}

// Emotions returns an owner's emotional data points, oldest first.
func (s *Store) Emotions(ctx context.Context, ownerID string) ([]core.EmotionalDataPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.owners[ownerID]
	if !ok {
		return nil, nil
	}
	out := make([]core.EmotionalDataPoint, len(st.emotions))
	copy(out, st.emotions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// BumpTheme atomically increments a theme counter.
func (s *Store) BumpTheme(ctx context.Context, ownerID, theme string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.owner(ownerID)
	tr, ok := st.themes[theme]
	if !ok {
		st.themes[theme] = &core.ThemeRecord{
			OwnerID:       ownerID,
			Theme:         theme,
			Frequency:     1,
			LastMentioned: at,
		}
		return nil
	}
	tr.Frequency++
	if at.After(tr.LastMentioned) {
		tr.LastMentioned = at
	}
	return nil
}

// ResetTheme zeroes a theme's frequency.
func (s *Store) ResetTheme(ctx context.Context, ownerID, theme string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.owners[ownerID]
	if !ok {
		return fmt.Errorf("%w: owner %s", core.ErrNotFound, ownerID)
	}
	tr, ok := st.themes[theme]
	if !ok {
		return fmt.Errorf("%w: theme %s", core.ErrNotFound, theme)
	}
	tr.Frequency = 0
	return nil
}

// Themes returns an owner's theme counters.
func (s *Store) Themes(ctx context.Context, ownerID string) ([]core.ThemeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.owners[ownerID]
	if !ok {
		return nil, nil
	}
	out := make([]core.ThemeRecord, 0, len(st.themes))
	for _, tr := range st.themes {
		out = append(out, *tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Theme < out[j].Theme })
	return out, nil
}

// AppendRecall appends one recall event.
func (s *Store) AppendRecall(ctx context.Context, ev *core.RecallEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.owner(ev.OwnerID)
	st.recalls = append(st.recalls, *ev)
	return nil
}

// Recalls returns an owner's recall events, oldest first.
func (s *Store) Recalls(ctx context.Context, ownerID string) ([]core.RecallEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.owners[ownerID]
	if !ok {
		return nil, nil
	}
	out := make([]core.RecallEvent, len(st.recalls))
	copy(out, st.recalls)
	return out, nil
}

// MarkRecallConsumed flags a recall event as consumed.
func (s *Store) MarkRecallConsumed(ctx context.Context, ownerID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.owners[ownerID]
	if !ok {
		return fmt.Errorf("%w: owner %s", core.ErrNotFound, ownerID)
	}
	for i := range st.recalls {
		if st.recalls[i].ID == eventID {
			st.recalls[i].Consumed = true
			return nil
		}
	}
	return fmt.Errorf("%w: recall event %s", core.ErrNotFound, eventID)
}

// ReplaceClusters swaps an owner's entire cluster set.
func (s *Store) ReplaceClusters(ctx context.Context, ownerID string, clusters []core.MemoryCluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.owner(ownerID)
	st.clusters = make([]core.MemoryCluster, len(clusters))
	copy(st.clusters, clusters)
	return nil
}

// Clusters returns the owner's cluster set from the last clustering run.
func (s *Store) Clusters(ctx context.Context, ownerID string) ([]core.MemoryCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.owners[ownerID]
	if !ok {
		return nil, nil
	}
	out := make([]core.MemoryCluster, len(st.clusters))
	copy(out, st.clusters)
	return out, nil
}

// ActivateCluster bumps a cluster's activation count and timestamp.
func (s *Store) ActivateCluster(ctx context.Context, ownerID, clusterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.owners[ownerID]
	if !ok {
		return fmt.Errorf("%w: owner %s", core.ErrNotFound, ownerID)
	}
	for i := range st.clusters {
		if st.clusters[i].ID == clusterID {
			st.clusters[i].ActivationCount++
			st.clusters[i].LastActivated = time.Now()
			return nil
		}
	}
	return fmt.Errorf("%w: cluster %s", core.ErrNotFound, clusterID)
}

// Close releases resources. Nothing to release in memory.
func (s *Store) Close() error {
	return nil
}
