// Package extract turns raw conversational turns into durable structured
// memory.
//
// Understanding is delegated to the NLU oracle; the extractor's own job is
// validation and persistence. Every numeric field is clamped into its legal
// range, candidates missing required fields are dropped, and an oracle
// failure persists nothing for the turn. Extraction never returns an error
// that could abort the calling conversational turn.
package extract

import (
	"context"
	"log"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mnemosyne-ai/mnemosyne/core"
	"github.com/mnemosyne-ai/mnemosyne/oracle"
	"github.com/mnemosyne-ai/mnemosyne/store"
)

// Config holds extraction tuning.
type Config struct {
	// MinConfidence drops oracle candidates below this certainty [0,1].
	// Confidence gates admission only; it is never stored as importance.
	MinConfidence float64

	// MaxMemoriesPerTurn caps how many records one turn may produce.
	MaxMemoriesPerTurn int

	// DefaultImportance is assigned when the oracle omits importance.
	DefaultImportance float64

	// SnippetLength bounds the context snippet kept on emotional data points.
	SnippetLength int
}

// DefaultConfig returns sensible extraction defaults.
var DefaultConfig = &Config{
	MinConfidence:      0.3,
	MaxMemoriesPerTurn: 5,
	DefaultImportance:  0.5,
	SnippetLength:      200,
}

// Extractor converts one conversational turn into memory records, one
// emotional data point, and theme updates.
type Extractor struct {
	store    store.Store
	nlu      oracle.Extractor
	embedder oracle.Embedder
	config   *Config
}

// New creates an extractor.
func New(st store.Store, nlu oracle.Extractor, embedder oracle.Embedder, config *Config) *Extractor {
	if config == nil {
		config = DefaultConfig
	}
	return &Extractor{store: st, nlu: nlu, embedder: embedder, config: config}
}

// Result is what one turn produced. All fields may be empty.
type Result struct {
	Memories []*core.MemoryRecord
	Themes   []string
	Emotion  *core.EmotionalDataPoint
}

// ExtractTurn processes one turn for an owner. It returns an empty Result on
// any oracle failure; partial persistence (some candidates stored, some
// skipped) is acceptable and logged.
func (e *Extractor) ExtractTurn(ctx context.Context, ownerID, conversationRef, text string) *Result {
	res := &Result{}
	if text == "" {
		return res
	}

	analysis, err := e.nlu.ExtractTurn(ctx, text, conversationRef)
	if err != nil {
		log.Printf("[EXTRACT] oracle failed for owner=%s: %v", ownerID, err)
		return res
	}
	if analysis == nil {
		return res
	}

	now := time.Now()

	// Candidates are untrusted: drop what is malformed, clamp what is kept.
	kept := 0
	for _, cand := range analysis.Memories {
		if kept >= e.config.MaxMemoriesPerTurn {
			break
		}
		rec, ok := e.validate(ownerID, conversationRef, cand, now)
		if !ok {
			continue
		}

		embedding, err := e.embedder.Embed(ctx, rec.Content)
		if err != nil {
			log.Printf("[EXTRACT] embed failed, skipping candidate: %v", err)
			continue
		}
		rec.Embedding = embedding

		if err := e.store.PutMemory(ctx, rec); err != nil {
			log.Printf("[EXTRACT] store failed, skipping candidate: %v", err)
			continue
		}
		res.Memories = append(res.Memories, rec)
		kept++
	}

	for _, theme := range analysis.Themes {
		if theme == "" {
			continue
		}
		if err := e.store.BumpTheme(ctx, ownerID, theme, now); err != nil {
			log.Printf("[EXTRACT] theme bump failed for %q: %v", theme, err)
			continue
		}
		res.Themes = append(res.Themes, theme)
	}

	pt := &core.EmotionalDataPoint{
		OwnerID:           ownerID,
		Valence:           core.ClampSigned(analysis.Emotion.Valence),
		Arousal:           core.Clamp01(analysis.Emotion.Arousal),
		DominantEmotion:   analysis.Emotion.Dominant,
		SecondaryEmotions: analysis.Emotion.Secondary,
		Intensity:         core.Clamp01(analysis.Emotion.Intensity),
		Timestamp:         now,
		ContextSnippet:    snippet(text, e.config.SnippetLength),
	}
	if err := e.store.PutEmotion(ctx, pt); err != nil {
		log.Printf("[EXTRACT] emotion persist failed: %v", err)
	} else {
		res.Emotion = pt
	}

	log.Printf("[EXTRACT] owner=%s stored %d memories, %d themes",
		ownerID, len(res.Memories), len(res.Themes))
	return res
}

// validate turns a raw candidate into a record, or rejects it.
func (e *Extractor) validate(ownerID, conversationRef string, cand oracle.MemoryCandidate, now time.Time) (*core.MemoryRecord, bool) {
	if cand.Content == "" {
		return nil, false
	}
	category := core.Category(cand.Category)
	if !category.Valid() {
		return nil, false
	}
	if core.Clamp01(cand.Confidence) < e.config.MinConfidence {
		return nil, false
	}

	importance := cand.Importance
	if importance == 0 {
		importance = e.config.DefaultImportance
	}

	// Tags are a set: the oracle may repeat a label, and a duplicate would
	// double-count in thematic overlap downstream.
	tags := make([]string, 0, len(cand.Tags))
	seen := make(map[string]bool, len(cand.Tags))
	for _, t := range cand.Tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}

	return &core.MemoryRecord{
		ID:               uuid.New().String(),
		OwnerID:          ownerID,
		ConversationRef:  conversationRef,
		Content:          cand.Content,
		Category:         category,
		EmotionalValence: core.ClampSigned(cand.Valence),
		Importance:       core.Clamp01(importance),
		Tags:             tags,
		CreatedAt:        now,
	}, true
}

// snippet truncates to at most max bytes without splitting a rune.
func snippet(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
