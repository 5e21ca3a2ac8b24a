// Package recall is the relevance ranker: given a query context it fuses
// five independent signals (semantic, temporal, emotional, thematic, phase)
// into a ranked, corroboration-boosted top-K recall.
//
// Signals are independent and independently fallible. A signal that cannot
// run (embedding oracle down, no emotional history) simply contributes
// nothing; recall degrades to partial results rather than failing the turn.
package recall

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mnemosyne-ai/mnemosyne/core"
	"github.com/mnemosyne-ai/mnemosyne/oracle"
	"github.com/mnemosyne-ai/mnemosyne/store"
)

// Config holds the ranker's tuning. The boost constants are inherited
// heuristics; they are named here so deployments can tune them.
type Config struct {
	// TopK is how many memories one recall returns.
	TopK int

	// SemanticThreshold is the minimum cosine similarity for the semantic
	// signal to admit a memory.
	SemanticThreshold float64

	// SemanticCandidates bounds the candidate set fetched from the store.
	SemanticCandidates int

	// TemporalScore is the fixed raw score of a temporal-rhythm hit.
	TemporalScore float64

	// TemporalWindowHours is the half-width of the hour-of-day window.
	TemporalWindowHours float64

	// PhaseScore is the fixed raw score of a phase-alignment hit.
	PhaseScore float64

	// SecondarySignalWeight discounts every contribution after the first.
	SecondarySignalWeight float64

	// CorroborationBoost multiplies the fused score when >=2 distinct
	// signal types agree on a memory.
	CorroborationBoost float64

	// DefaultArousal stands in when an owner has no emotional history near
	// a memory's creation time.
	DefaultArousal float64
}

// DefaultConfig returns the standard ranking constants.
var DefaultConfig = &Config{
	TopK:                  3,
	SemanticThreshold:     0.7,
	SemanticCandidates:    50,
	TemporalScore:         0.6,
	TemporalWindowHours:   2,
	PhaseScore:            0.7,
	SecondarySignalWeight: 0.5,
	CorroborationBoost:    1.5,
	DefaultArousal:        0.5,
}

// Ranker fuses relevance signals over an owner's memory set.
type Ranker struct {
	store    store.Store
	embedder oracle.Embedder
	config   *Config
}

// New creates a ranker.
func New(st store.Store, embedder oracle.Embedder, config *Config) *Ranker {
	if config == nil {
		config = DefaultConfig
	}
	return &Ranker{store: st, embedder: embedder, config: config}
}

type contribution struct {
	signal core.SignalType
	score  float64
}

// Recall returns the top-K memories most relevant to the query, highest
// fused score first. An empty store, or no signal hits, returns an empty
// slice. Every returned memory is logged as a RecallEvent.
func (r *Ranker) Recall(ctx context.Context, ownerID, query string, qc core.QueryContext) []core.RankedMemory {
	now := qc.Now
	if now.IsZero() {
		now = time.Now()
	}

	records, err := r.store.Memories(ctx, ownerID)
	if err != nil {
		log.Printf("[RECALL] loading memories failed for owner=%s: %v", ownerID, err)
		return nil
	}
	if len(records) == 0 {
		return nil
	}

	byID := make(map[string]*core.MemoryRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	contribs := make(map[string][]contribution)
	add := func(id string, sig core.SignalType, score float64) {
		contribs[id] = append(contribs[id], contribution{signal: sig, score: score})
	}

	r.semanticSignal(ctx, ownerID, query, now, add)
	r.temporalSignal(records, now, add)
	r.emotionalSignal(ctx, ownerID, records, qc, add)
	r.thematicSignal(records, qc.Themes, add)
	r.phaseSignal(records, qc.Phase, add)

	ranked := fuse(contribs, byID, r.config)
	if len(ranked) > r.config.TopK {
		ranked = ranked[:r.config.TopK]
	}

	r.logRecalls(ctx, ownerID, query, now, ranked)
	return ranked
}

// semanticSignal admits memories whose embedding is close to the query,
// damped by age so equally similar memories favor the recent one.
func (r *Ranker) semanticSignal(ctx context.Context, ownerID, query string, now time.Time, add func(string, core.SignalType, float64)) {
	if query == "" {
		return
	}
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("[RECALL] query embedding failed, semantic signal skipped: %v", err)
		return
	}
	matches, err := r.store.SemanticSearch(ctx, ownerID, embedding, r.config.SemanticCandidates)
	if err != nil {
		log.Printf("[RECALL] semantic search failed, signal skipped: %v", err)
		return
	}
	for _, m := range matches {
		if m.Similarity <= r.config.SemanticThreshold {
			continue
		}
		days := now.Sub(m.Record.CreatedAt).Hours() / 24
		add(m.Record.ID, core.SignalSemantic, m.Similarity*RecencyDamping(days))
	}
}

// temporalSignal admits memories created in the same weekly rhythm slot:
// same day-of-week, hour-of-day within the window (circular).
func (r *Ranker) temporalSignal(records []*core.MemoryRecord, now time.Time, add func(string, core.SignalType, float64)) {
	for _, rec := range records {
		if rec.CreatedAt.Weekday() != now.Weekday() {
			continue
		}
		if hourDistance(rec.CreatedAt.Hour(), now.Hour()) > r.config.TemporalWindowHours {
			continue
		}
		add(rec.ID, core.SignalTemporal, r.config.TemporalScore)
	}
}

// emotionalSignal scores memories by closeness in valence/arousal space to
// the current emotional estimate. A memory's arousal comes from the owner's
// emotional data point nearest its creation time.
func (r *Ranker) emotionalSignal(ctx context.Context, ownerID string, records []*core.MemoryRecord, qc core.QueryContext, add func(string, core.SignalType, float64)) {
	emotions, err := r.store.Emotions(ctx, ownerID)
	if err != nil {
		log.Printf("[RECALL] loading emotions failed, emotional signal skipped: %v", err)
		return
	}
	for _, rec := range records {
		arousal := arousalNear(emotions, rec.CreatedAt, r.config.DefaultArousal)
		distance := math.Abs(qc.Valence-rec.EmotionalValence) + math.Abs(qc.Arousal-arousal)
		add(rec.ID, core.SignalEmotional, 1/(1+distance))
	}
}

// thematicSignal scores by distinct theme overlap with the current
// conversation. Tags are a set, but records written before deduplication (or
// by other writers) may carry repeats; counting distinct labels keeps the
// raw score in (0,1].
func (r *Ranker) thematicSignal(records []*core.MemoryRecord, themes []string, add func(string, core.SignalType, float64)) {
	if len(themes) == 0 {
		return
	}
	current := make(map[string]bool, len(themes))
	for _, t := range themes {
		current[t] = true
	}
	for _, rec := range records {
		matched := make(map[string]bool)
		for _, tag := range rec.Tags {
			if current[tag] {
				matched[tag] = true
			}
		}
		if len(matched) >= 1 {
			add(rec.ID, core.SignalThematic, float64(len(matched))/float64(len(current)))
		}
	}
}

// phaseSignal admits memories tagged with the current phase label.
func (r *Ranker) phaseSignal(records []*core.MemoryRecord, phase string, add func(string, core.SignalType, float64)) {
	if phase == "" {
		return
	}
	tag := core.PhaseTag(phase)
	for _, rec := range records {
		if rec.HasTag(tag) {
			add(rec.ID, core.SignalPhase, r.config.PhaseScore)
		}
	}
}

// fuse groups contributions per memory, sums them with diminishing weight
// (first at full weight, the rest discounted), applies the corroboration
// multiplier when distinct signal types agree, and sorts descending.
func fuse(contribs map[string][]contribution, byID map[string]*core.MemoryRecord, cfg *Config) []core.RankedMemory {
	ranked := make([]core.RankedMemory, 0, len(contribs))
	for id, cs := range contribs {
		rec, ok := byID[id]
		if !ok {
			continue
		}

		sort.SliceStable(cs, func(i, j int) bool { return cs[i].score > cs[j].score })

		total := cs[0].score
		for _, c := range cs[1:] {
			total += cfg.SecondarySignalWeight * c.score
		}

		seen := make(map[core.SignalType]bool, len(cs))
		signals := make([]core.SignalType, 0, len(cs))
		for _, c := range cs {
			if !seen[c.signal] {
				seen[c.signal] = true
				signals = append(signals, c.signal)
			}
		}
		if len(signals) >= 2 {
			total *= cfg.CorroborationBoost
		}

		ranked = append(ranked, core.RankedMemory{Memory: rec, Score: total, Signals: signals})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].Memory.CreatedAt.Equal(ranked[j].Memory.CreatedAt) {
			return ranked[i].Memory.CreatedAt.After(ranked[j].Memory.CreatedAt)
		}
		return ranked[i].Memory.ID < ranked[j].Memory.ID
	})
	return ranked
}

func (r *Ranker) logRecalls(ctx context.Context, ownerID, query string, now time.Time, ranked []core.RankedMemory) {
	for _, rm := range ranked {
		ev := &core.RecallEvent{
			ID:             ulid.Make().String(),
			OwnerID:        ownerID,
			MemoryID:       rm.Memory.ID,
			QueryContext:   query,
			Signals:        rm.Signals,
			RelevanceScore: rm.Score,
			Timestamp:      now,
		}
		if err := r.store.AppendRecall(ctx, ev); err != nil {
			log.Printf("[RECALL] recording recall event failed: %v", err)
		}
	}
}

// RecencyDamping returns (1 / (1 + ln(d+1)))^0.5 for d days of age:
// monotonically non-increasing, always in (0,1], never reaching zero.
func RecencyDamping(days float64) float64 {
	if days < 0 {
		days = 0
	}
	return math.Sqrt(1 / (1 + math.Log(days+1)))
}

// arousalNear returns the arousal of the emotional data point closest in
// time to t, or fallback when the owner has none.
func arousalNear(points []core.EmotionalDataPoint, t time.Time, fallback float64) float64 {
	if len(points) == 0 {
		return fallback
	}
	best := points[0].Arousal
	bestDiff := absDuration(t.Sub(points[0].Timestamp))
	for _, pt := range points[1:] {
		if d := absDuration(t.Sub(pt.Timestamp)); d < bestDiff {
			bestDiff = d
			best = pt.Arousal
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// hourDistance is the circular distance between two hours of day.
func hourDistance(a, b int) float64 {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > 12 {
		d = 24 - d
	}
	return float64(d)
}
