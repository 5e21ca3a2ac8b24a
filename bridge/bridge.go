// Package bridge finds maximally dissimilar theme pairs in an owner's
// history and synthesizes analogical insight between them, applied to a
// stated challenge.
package bridge

import (
	"context"
	"log"
	"sort"

	"github.com/mnemosyne-ai/mnemosyne/core"
	"github.com/mnemosyne-ai/mnemosyne/oracle"
	"github.com/mnemosyne-ai/mnemosyne/store"
)

// Config holds the generator's bounds.
type Config struct {
	// TopThemes caps the candidate set; pairwise distance is O(n^2) so the
	// cap keeps cost tractable.
	TopThemes int

	// DistanceThreshold is the minimum 1-cosine distance for a pair to
	// count as cross-domain.
	DistanceThreshold float64

	// MaxBridges is how many of the most distant pairs get synthesized.
	MaxBridges int
}

// DefaultConfig returns the standard bridge-generation bounds.
var DefaultConfig = &Config{
	TopThemes:         20,
	DistanceThreshold: 0.7,
	MaxBridges:        3,
}

// Generator produces cross-domain concept bridges.
type Generator struct {
	store    store.Store
	embedder oracle.Embedder
	synth    oracle.Synthesizer
	config   *Config
}

// New creates a generator.
func New(st store.Store, embedder oracle.Embedder, synth oracle.Synthesizer, config *Config) *Generator {
	if config == nil {
		config = DefaultConfig
	}
	return &Generator{store: st, embedder: embedder, synth: synth, config: config}
}

type themePair struct {
	a, b     string
	distance float64
}

// Generate returns up to MaxBridges concept bridges for the challenge.
// Fewer than two themes is the insufficient-data path: an empty slice, not
// an error. Per-pair oracle failures skip the pair.
func (g *Generator) Generate(ctx context.Context, ownerID, challenge string) []core.ConceptBridge {
	themes, err := g.store.Themes(ctx, ownerID)
	if err != nil {
		log.Printf("[BRIDGE] loading themes failed for owner=%s: %v", ownerID, err)
		return nil
	}

	labels := topThemes(themes, g.config.TopThemes)
	if len(labels) < 2 {
		return nil
	}

	embeddings := make(map[string][]float32, len(labels))
	for _, label := range labels {
		emb, err := g.embedder.Embed(ctx, label)
		if err != nil {
			log.Printf("[BRIDGE] embedding %q failed, dropped from pairing: %v", label, err)
			continue
		}
		embeddings[label] = emb
	}
	if len(embeddings) < 2 {
		return nil
	}

	pairs := distantPairs(labels, embeddings, g.config.DistanceThreshold)
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].distance > pairs[j].distance })
	if len(pairs) > g.config.MaxBridges {
		pairs = pairs[:g.config.MaxBridges]
	}

	var out []core.ConceptBridge
	for _, p := range pairs {
		insight, err := g.synth.SynthesizeBridge(ctx, p.a, p.b, challenge)
		if err != nil {
			log.Printf("[BRIDGE] synthesis failed for (%s, %s), skipping pair: %v", p.a, p.b, err)
			continue
		}
		if insight == nil || insight.Insight == "" {
			continue
		}
		out = append(out, core.ConceptBridge{
			ThemeA:           p.a,
			ThemeB:           p.b,
			Distance:         p.distance,
			HiddenConnection: insight.HiddenConnection,
			Insight:          insight.Insight,
			Application:      insight.Application,
		})
	}

	log.Printf("[BRIDGE] owner=%s: %d distant pairs, %d bridges", ownerID, len(pairs), len(out))
	return out
}

// distantPairs computes pairwise distance over the capped candidate set and
// keeps the cross-domain pairs.
func distantPairs(labels []string, embeddings map[string][]float32, threshold float64) []themePair {
	var pairs []themePair
	for i := 0; i < len(labels); i++ {
		ea, ok := embeddings[labels[i]]
		if !ok {
			continue
		}
		for j := i + 1; j < len(labels); j++ {
			eb, ok := embeddings[labels[j]]
			if !ok {
				continue
			}
			distance := 1 - oracle.Cosine(ea, eb)
			if distance > threshold {
				pairs = append(pairs, themePair{a: labels[i], b: labels[j], distance: distance})
			}
		}
	}
	return pairs
}

func topThemes(themes []core.ThemeRecord, n int) []string {
	active := make([]core.ThemeRecord, 0, len(themes))
	for _, t := range themes {
		if t.Frequency > 0 {
			active = append(active, t)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Frequency != active[j].Frequency {
			return active[i].Frequency > active[j].Frequency
		}
		return active[i].Theme < active[j].Theme
	})
	if len(active) > n {
		active = active[:n]
	}
	out := make([]string, len(active))
	for i, t := range active {
		out[i] = t.Theme
	}
	return out
}
