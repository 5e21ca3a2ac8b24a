// Package cluster periodically regroups an owner's full memory set into
// thematic clusters with aggregate emotional and phase attributes.
//
// Clustering is a batch job independent of per-turn latency. Each run
// replaces the owner's entire cluster set, since membership can shift
// non-locally as memories accumulate; re-running is safe (last writer wins).
package cluster

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mnemosyne-ai/mnemosyne/core"
	"github.com/mnemosyne-ai/mnemosyne/store"
)

// Config holds the clustering thresholds.
type Config struct {
	// TopThemes is how many of the owner's most frequent themes seed
	// clusters (a shallow hierarchy, not a taxonomy).
	TopThemes int

	// SaturationSize is the membership at which strength saturates to 1.0.
	SaturationSize int

	// EstablishedThreshold flags a cluster as an established pattern.
	EstablishedThreshold float64

	// EmergingWindowDays and EmergingMinMembers flag a young dense cluster
	// as an emerging pattern.
	EmergingWindowDays int
	EmergingMinMembers int
}

// DefaultConfig returns the standard clustering thresholds.
var DefaultConfig = &Config{
	TopThemes:            20,
	SaturationSize:       10,
	EstablishedThreshold: 0.7,
	EmergingWindowDays:   14,
	EmergingMinMembers:   3,
}

// Engine runs batch clustering over an owner's memory set.
type Engine struct {
	store  store.Store
	config *Config
}

// New creates a clustering engine.
func New(st store.Store, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig
	}
	return &Engine{store: st, config: config}
}

// Result is one clustering run's output.
type Result struct {
	Clusters []core.MemoryCluster

	// Flags are emergent-theme observations from simple threshold rules,
	// e.g. "established pattern: career".
	Flags []string
}

// Refresh recomputes and replaces the owner's cluster set.
func (e *Engine) Refresh(ctx context.Context, ownerID string) (*Result, error) {
	records, err := e.store.Memories(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load memories: %w", err)
	}
	themes, err := e.store.Themes(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load themes: %w", err)
	}

	top := topThemes(themes, e.config.TopThemes)
	if len(top) == 0 || len(records) == 0 {
		// Nothing to cluster; still replace so a shrunk theme table does
		// not leave stale clusters behind.
		if err := e.store.ReplaceClusters(ctx, ownerID, nil); err != nil {
			return nil, fmt.Errorf("replace clusters: %w", err)
		}
		return &Result{}, nil
	}

	rank := make(map[string]int, len(top)) // theme -> frequency rank, 0 best
	for i, t := range top {
		rank[t] = i
	}

	// Assign every memory to the cluster of its dominant theme: the
	// highest-frequency top theme present in its tags. Memories matching no
	// top theme stay unclustered.
	members := make(map[string][]*core.MemoryRecord)
	for _, rec := range records {
		dominant := ""
		best := len(top)
		for _, tag := range rec.Tags {
			if r, ok := rank[tag]; ok && r < best {
				best = r
				dominant = tag
			}
		}
		if dominant != "" {
			members[dominant] = append(members[dominant], rec)
		}
	}

	now := time.Now()
	result := &Result{}
	for _, theme := range top {
		recs := members[theme]
		if len(recs) == 0 {
			continue
		}
		c := e.build(ownerID, theme, recs, now)
		result.Clusters = append(result.Clusters, c)

		if c.Strength > e.config.EstablishedThreshold {
			result.Flags = append(result.Flags, "established pattern: "+theme)
		}
		if emerging(recs, now, e.config) {
			result.Flags = append(result.Flags, "emerging pattern: "+theme)
		}
	}

	sort.SliceStable(result.Clusters, func(i, j int) bool {
		return result.Clusters[i].Strength > result.Clusters[j].Strength
	})

	if err := e.store.ReplaceClusters(ctx, ownerID, result.Clusters); err != nil {
		return nil, fmt.Errorf("replace clusters: %w", err)
	}

	log.Printf("[CLUSTER] owner=%s: %d clusters from %d memories, flags=%v",
		ownerID, len(result.Clusters), len(records), result.Flags)
	return result, nil
}

// build derives a cluster's aggregate attributes from its members.
func (e *Engine) build(ownerID, theme string, recs []*core.MemoryRecord, now time.Time) core.MemoryCluster {
	var valenceSum float64
	phaseVotes := make(map[string]int)
	memberIDs := make([]string, 0, len(recs))
	for _, rec := range recs {
		valenceSum += rec.EmotionalValence
		if p := rec.Phase(); p != "" {
			phaseVotes[p]++
		}
		memberIDs = append(memberIDs, rec.ID)
	}

	dominantPhase := ""
	bestVotes := 0
	for phase, votes := range phaseVotes {
		if votes > bestVotes || (votes == bestVotes && phase < dominantPhase) {
			bestVotes = votes
			dominantPhase = phase
		}
	}

	// Saturating strength: membership ratio capped at 1.0 no matter how
	// large the cluster grows.
	strength := float64(len(recs)) / float64(e.config.SaturationSize)
	if strength > 1 {
		strength = 1
	}

	return core.MemoryCluster{
		ID:                uuid.New().String(),
		OwnerID:           ownerID,
		Themes:            []string{theme},
		EmotionalCentroid: valenceSum / float64(len(recs)),
		DominantPhase:     dominantPhase,
		Strength:          strength,
		MemberIDs:         memberIDs,
		LastActivated:     now,
	}
}

func emerging(recs []*core.MemoryRecord, now time.Time, cfg *Config) bool {
	if len(recs) < cfg.EmergingMinMembers {
		return false
	}
	cutoff := now.AddDate(0, 0, -cfg.EmergingWindowDays)
	for _, rec := range recs {
		if rec.CreatedAt.Before(cutoff) {
			return false
		}
	}
	return true
}

// topThemes returns up to n theme names by descending frequency. Themes at
// zero frequency (administratively reset) never seed clusters.
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
