// Package dormant finds themes that were once recurring but have gone
// quiet, and re-tests them for relevance to the present conversation.
package dormant

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/mnemosyne-ai/mnemosyne/core"
	"github.com/mnemosyne-ai/mnemosyne/oracle"
	"github.com/mnemosyne-ai/mnemosyne/store"
)

// Config holds the detector's thresholds.
type Config struct {
	// MinFrequency is how often a theme must have recurred to qualify.
	MinFrequency int

	// DormantAfterDays is the quiet period that makes a theme dormant.
	DormantAfterDays int

	// RelevanceThreshold keeps only themes the oracle re-tests above it.
	RelevanceThreshold float64

	// DefaultCategory stands in when classification is ambiguous or invalid.
	DefaultCategory string

	// DefaultValence stands in when a theme has no emotional history.
	DefaultValence float64
}

// DefaultConfig returns the standard dormancy thresholds.
var DefaultConfig = &Config{
	MinFrequency:       3,
	DormantAfterDays:   60,
	RelevanceThreshold: 0.7,
	DefaultCategory:    "interest",
	DefaultValence:     0.5,
}

// conceptCategories is the closed set a dormant theme classifies into.
var conceptCategories = map[string]bool{
	"value":    true,
	"interest": true,
	"skill":    true,
	"dream":    true,
	"insight":  true,
	"approach": true,
}

// Detector identifies dormant concepts for an owner.
type Detector struct {
	store  store.Store
	synth  oracle.Synthesizer
	config *Config
}

// New creates a detector.
func New(st store.Store, synth oracle.Synthesizer, config *Config) *Detector {
	if config == nil {
		config = DefaultConfig
	}
	return &Detector{store: st, synth: synth, config: config}
}

// Detect returns the dormant themes still relevant to the current context.
// The result is an unordered filtered set: every entry cleared the same
// threshold, so no further ranking applies. Re-running against unchanged
// data yields the same set.
func (d *Detector) Detect(ctx context.Context, ownerID, currentContext string) []core.DormantConcept {
	themes, err := d.store.Themes(ctx, ownerID)
	if err != nil {
		log.Printf("[DORMANT] loading themes failed for owner=%s: %v", ownerID, err)
		return nil
	}

	var candidates []core.ThemeRecord
	now := time.Now()
	for _, tr := range themes {
		if tr.Frequency < d.config.MinFrequency {
			continue
		}
		if daysSince(tr.LastMentioned, now) <= d.config.DormantAfterDays {
			continue
		}
		candidates = append(candidates, tr)
	}
	if len(candidates) == 0 {
		return nil
	}

	// Deterministic iteration keeps the operation idempotent on unchanged
	// data even when the store returns themes in arbitrary order.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Theme < candidates[j].Theme })

	emotions, err := d.store.Emotions(ctx, ownerID)
	if err != nil {
		log.Printf("[DORMANT] loading emotions failed, defaulting valence: %v", err)
		emotions = nil
	}

	var out []core.DormantConcept
	for _, tr := range candidates {
		relevance, bridge, err := d.synth.ScoreRelevance(ctx, tr.Theme, currentContext)
		if err != nil {
			log.Printf("[DORMANT] relevance re-test failed for %q, skipping: %v", tr.Theme, err)
			continue
		}
		relevance = core.Clamp01(relevance)
		if relevance <= d.config.RelevanceThreshold {
			continue
		}

		out = append(out, core.DormantConcept{
			Theme:             tr.Theme,
			Category:          d.classify(ctx, tr.Theme),
			MentionCount:      tr.Frequency,
			DaysDormant:       daysSince(tr.LastMentioned, now),
			HistoricalValence: historicalValence(emotions, tr.Theme, d.config.DefaultValence),
			Relevance:         relevance,
			Bridge:            bridge,
			LastMentioned:     tr.LastMentioned,
		})
	}

	log.Printf("[DORMANT] owner=%s: %d dormant themes, %d still relevant",
		ownerID, len(candidates), len(out))
	return out
}

// classify asks the oracle for a concept category, defaulting on anything
// outside the closed set.
func (d *Detector) classify(ctx context.Context, theme string) string {
	category, err := d.synth.ClassifyTheme(ctx, theme)
	if err != nil {
		log.Printf("[DORMANT] classification failed for %q, defaulting: %v", theme, err)
		return d.config.DefaultCategory
	}
	category = strings.ToLower(strings.TrimSpace(category))
	if !conceptCategories[category] {
		return d.config.DefaultCategory
	}
	return category
}

// historicalValence averages the valence of emotional data points whose
// context snippet mentions the theme.
func historicalValence(points []core.EmotionalDataPoint, theme string, fallback float64) float64 {
	needle := strings.ToLower(theme)
	var sum float64
	n := 0
	for _, pt := range points {
		if strings.Contains(strings.ToLower(pt.ContextSnippet), needle) {
			sum += pt.Valence
			n++
		}
	}
	if n == 0 {
		return fallback
	}
	return sum / float64(n)
}

func daysSince(t, now time.Time) int {
	return int(now.Sub(t).Hours() / 24)
}
