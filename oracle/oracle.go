// Package oracle defines the engine's seams to external model services:
// embedding, NLU extraction, and generative synthesis.
//
// Oracle calls are the dominant latency source and are treated as suspending,
// fallible, and independently retryable. The engine validates and clamps
// every field an oracle returns rather than trusting it.
//
// Implementations:
//   - oracle/anthropic: Claude-backed Extractor and Synthesizer
//   - oracle/mock: deterministic embedder for tests and local runs
package oracle

import "context"

// Embedder converts text to a fixed-dimension vector.
// Self-similarity of identical input is ~1.0.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// TurnAnalysis is the structured payload an NLU oracle produces for one
// conversational turn. Every field is untrusted until sanitized.
type TurnAnalysis struct {
	Memories []MemoryCandidate `json:"memories"`
	Themes   []string          `json:"themes"`
	Emotion  EmotionalAnalysis `json:"emotional_analysis"`
}

// MemoryCandidate is one candidate memory from the NLU oracle.
// Confidence is the oracle's certainty in the extraction; it is distinct
// from Importance, the durable weight the memory keeps once stored.
type MemoryCandidate struct {
	Content    string   `json:"content"`
	Category   string   `json:"category"`
	Valence    float64  `json:"valence"`
	Importance float64  `json:"importance"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
}

// EmotionalAnalysis is the oracle's emotional reading of a turn.
type EmotionalAnalysis struct {
	Valence   float64  `json:"valence"`
	Arousal   float64  `json:"arousal"`
	Dominant  string   `json:"dominant_emotion"`
	Secondary []string `json:"secondary_emotions"`
	Intensity float64  `json:"intensity"`
}

// Extractor is the NLU oracle: raw turn text in, candidate memories, themes,
// and an emotional analysis out.
type Extractor interface {
	ExtractTurn(ctx context.Context, text string, contextHint string) (*TurnAnalysis, error)
}

// BridgeInsight is the generative oracle's synthesis for one distant theme
// pair.
type BridgeInsight struct {
	HiddenConnection string `json:"hidden_connection"`
	Insight          string `json:"insight"`
	Application      string `json:"application"`
}

// Synthesizer is the generative oracle used by the dormant detector and the
// bridge generator.
type Synthesizer interface {
	// ClassifyTheme assigns a dormant theme to one of the concept categories
	// (value, interest, skill, dream, insight, approach). Consumers default
	// to "interest" on anything else.
	ClassifyTheme(ctx context.Context, theme string) (string, error)

	// ScoreRelevance re-tests a dormant theme against the present
	// conversational context. Returns a relevance score in [0,1] and a
	// natural-language bridge explaining the connection.
	ScoreRelevance(ctx context.Context, theme string, currentContext string) (float64, string, error)

	// SynthesizeBridge produces the hidden connection between two distant
	// themes and its application to the stated challenge.
	SynthesizeBridge(ctx context.Context, themeA, themeB, challenge string) (*BridgeInsight, error)
}
