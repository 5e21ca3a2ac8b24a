// Package core defines the domain types shared by every component of the
// memory engine: memory records, emotional data points, theme counters,
// recall events, and clusters.
//
// All bounded numeric fields (valence, arousal, importance, intensity,
// strength) are clamped at the boundary and stay within their stated ranges
// everywhere inside the engine.
package core

import (
	"strings"
	"time"
)

// Category is the closed set of memory categories.
type Category string

const (
	CategoryInsight Category = "insight"
	CategoryGoal    Category = "goal"
	CategoryValue   Category = "value"
	CategoryPattern Category = "pattern"
	CategoryEmotion Category = "emotion"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryInsight, CategoryGoal, CategoryValue, CategoryPattern, CategoryEmotion:
		return true
	}
	return false
}

// PhaseTagPrefix marks a tag as a phase association. A memory formed during
// the "exploration" phase carries the tag "phase:exploration".
const PhaseTagPrefix = "phase:"

// PhaseTag builds the tag for a phase label.
func PhaseTag(label string) string {
	return PhaseTagPrefix + label
}

// MemoryRecord is one durable unit of structured memory.
// Immutable after creation except RelatedMemoryIDs.
type MemoryRecord struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	ConversationRef  string    `json:"conversation_ref"`
	Content          string    `json:"content"`
	Category         Category  `json:"category"`
	Embedding        []float32 `json:"-"`
	EmotionalValence float64   `json:"emotional_valence"` // [-1,1]
	Importance       float64   `json:"importance"`        // [0,1]
	Tags             []string  `json:"tags,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	RelatedMemoryIDs []string  `json:"related_memory_ids,omitempty"`
}

// HasTag reports whether the record carries the given tag.
func (r *MemoryRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Phase returns the record's phase label, or "" when it has none.
func (r *MemoryRecord) Phase() string {
	for _, t := range r.Tags {
		if strings.HasPrefix(t, PhaseTagPrefix) {
			return strings.TrimPrefix(t, PhaseTagPrefix)
		}
	}
	return ""
}

// EmotionalDataPoint captures the emotional reading of one conversational turn.
type EmotionalDataPoint struct {
	OwnerID           string    `json:"owner_id"`
	Valence           float64   `json:"valence"` // [-1,1]
	Arousal           float64   `json:"arousal"` // [0,1]
	DominantEmotion   string    `json:"dominant_emotion"`
	SecondaryEmotions []string  `json:"secondary_emotions,omitempty"`
	Intensity         float64   `json:"intensity"` // [0,1]
	Timestamp         time.Time `json:"timestamp"`
	ContextSnippet    string    `json:"context_snippet,omitempty"`
}

// ThemeRecord counts how often a theme has come up for an owner.
// Frequency only increases, except via an explicit administrative reset.
type ThemeRecord struct {
	OwnerID       string    `json:"owner_id"`
	Theme         string    `json:"theme"`
	Frequency     int       `json:"frequency"`
	LastMentioned time.Time `json:"last_mentioned"`
}

// SignalType identifies one independent relevance signal.
type SignalType string

const (
	SignalSemantic  SignalType = "semantic"
	SignalTemporal  SignalType = "temporal"
	SignalEmotional SignalType = "emotional"
	SignalThematic  SignalType = "thematic"
	SignalPhase     SignalType = "phase"
)

// RecallEvent records that a memory was surfaced for a query.
// Events form an append-only audit trail.
type RecallEvent struct {
	ID             string       `json:"id"`
	OwnerID        string       `json:"owner_id"`
	MemoryID       string       `json:"memory_id"`
	QueryContext   string       `json:"query_context"`
	Signals        []SignalType `json:"signals"`
	RelevanceScore float64      `json:"relevance_score"` // >= 0
	Timestamp      time.Time    `json:"timestamp"`
	Consumed       bool         `json:"consumed"`
}

// MemoryCluster is a batch-computed grouping of memories that share a
// dominant theme. The whole cluster set for an owner is replaced on each
// clustering run.
type MemoryCluster struct {
	ID                string    `json:"id"`
	OwnerID           string    `json:"owner_id"`
	Themes            []string  `json:"themes"`
	EmotionalCentroid float64   `json:"emotional_centroid"` // mean member valence
	DominantPhase     string    `json:"dominant_phase,omitempty"`
	Strength          float64   `json:"strength"` // [0,1], saturating
	MemberIDs         []string  `json:"member_ids,omitempty"`
	LastActivated     time.Time `json:"last_activated"`
	ActivationCount   int       `json:"activation_count"`
}

// RankedMemory is one recall result with its fused score and the signals
// that produced it.
type RankedMemory struct {
	Memory  *MemoryRecord `json:"memory"`
	Score   float64       `json:"score"`
	Signals []SignalType  `json:"signals"`
}

// DormantConcept is a once-recurring theme that has gone quiet but re-tests
// as relevant to the present context.
type DormantConcept struct {
	Theme             string    `json:"theme"`
	Category          string    `json:"category"` // value|interest|skill|dream|insight|approach
	MentionCount      int       `json:"mention_count"`
	DaysDormant       int       `json:"days_dormant"`
	HistoricalValence float64   `json:"historical_valence"`
	Relevance         float64   `json:"relevance"`
	Bridge            string    `json:"bridge"`
	LastMentioned     time.Time `json:"last_mentioned"`
}

// ConceptBridge is a synthesized analogy between two maximally dissimilar
// themes, applied to a stated challenge.
type ConceptBridge struct {
	ThemeA           string  `json:"theme_a"`
	ThemeB           string  `json:"theme_b"`
	Distance         float64 `json:"distance"` // 1 - cosine similarity
	HiddenConnection string  `json:"hidden_connection"`
	Insight          string  `json:"insight"`
	Application      string  `json:"application"`
}

// QueryContext describes the present moment a recall query is made from.
type QueryContext struct {
	Valence float64   // current emotional valence estimate [-1,1]
	Arousal float64   // current arousal estimate [0,1]
	Phase   string    // current phase label, "" when unknown
	Themes  []string  // themes active in the current conversation
	Now     time.Time // zero value means time.Now()
}

// Clamp01 clamps v into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampSigned clamps v into [-1,1].
func ClampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
