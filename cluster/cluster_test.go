package cluster_test

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/mnemosyne-ai/mnemosyne/cluster"
	"github.com/mnemosyne-ai/mnemosyne/core"
	"github.com/mnemosyne-ai/mnemosyne/store/memstore"
)

const dims = 4

func seedMemory(t *testing.T, st *memstore.Store, owner, id string, valence float64, tags []string, createdAt time.Time) {
	t.Helper()
	err := st.PutMemory(context.Background(), &core.MemoryRecord{
		ID:               id,
		OwnerID:          owner,
		Content:          "memory " + id,
		Category:         core.CategoryPattern,
		Embedding:        []float32{1, 0, 0, 0},
		EmotionalValence: valence,
		Importance:       0.5,
		Tags:             tags,
		CreatedAt:        createdAt,
	})
	if err != nil {
		t.Fatalf("PutMemory(%s): %v", id, err)
	}
}

func seedTheme(t *testing.T, st *memstore.Store, owner, theme string, freq int, at time.Time) {
	t.Helper()
	for i := 0; i < freq; i++ {
		if err := st.BumpTheme(context.Background(), owner, theme, at); err != nil {
			t.Fatalf("BumpTheme(%s): %v", theme, err)
		}
	}
}

func TestRefresh_StrengthSaturates(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(dims)
	owner := "u1"
	now := time.Now()

	seedTheme(t, st, owner, "career", 50, now)
	for i := 0; i < 50; i++ {
		seedMemory(t, st, owner, fmt.Sprintf("m%d", i), 0.2, []string{"career"}, now.AddDate(0, 0, -i))
	}

	e := cluster.New(st, nil)
	res, err := e.Refresh(ctx, owner)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(res.Clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(res.Clusters))
	}

	c := res.Clusters[0]
	if c.Strength != 1.0 {
		t.Errorf("strength = %f, want saturated at 1.0", c.Strength)
	}
	if len(c.MemberIDs) != 50 {
		t.Errorf("members = %d, want 50", len(c.MemberIDs))
	}
	if c.ID == "" {
		t.Error("cluster missing id")
	}
}

func TestRefresh_CentroidAndDominantPhase(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(dims)
	owner := "u1"
	now := time.Now()

	seedTheme(t, st, owner, "running", 10, now)
	phase := core.PhaseTag("training")
	seedMemory(t, st, owner, "a", 0.8, []string{"running", phase}, now.AddDate(0, 0, -30))
	seedMemory(t, st, owner, "b", 0.4, []string{"running", phase}, now.AddDate(0, 0, -20))
	seedMemory(t, st, owner, "c", 0.0, []string{"running", core.PhaseTag("recovery")}, now.AddDate(0, 0, -10))

	e := cluster.New(st, nil)
	res, err := e.Refresh(ctx, owner)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(res.Clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(res.Clusters))
	}

	c := res.Clusters[0]
	if math.Abs(c.EmotionalCentroid-0.4) > 1e-9 {
		t.Errorf("centroid = %f, want 0.4", c.EmotionalCentroid)
	}
	if c.DominantPhase != "training" {
		t.Errorf("dominant phase = %s, want training", c.DominantPhase)
	}
	if c.Strength < 0 || c.Strength > 1 {
		t.Errorf("strength = %f, want in [0,1]", c.Strength)
	}
}

func TestRefresh_MemoriesAssignToDominantTheme(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(dims)
	owner := "u1"
	now := time.Now()

	// career is the more frequent theme, so a memory tagged with both
	// belongs to the career cluster.
	seedTheme(t, st, owner, "career", 8, now)
	seedTheme(t, st, owner, "running", 3, now)
	seedMemory(t, st, owner, "both", 0.1, []string{"running", "career"}, now)
	seedMemory(t, st, owner, "runs", 0.1, []string{"running"}, now)
	seedMemory(t, st, owner, "untagged", 0.1, []string{"cooking"}, now)

	e := cluster.New(st, nil)
	res, err := e.Refresh(ctx, owner)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	byTheme := make(map[string]core.MemoryCluster)
	for _, c := range res.Clusters {
		byTheme[c.Themes[0]] = c
	}
	career, ok := byTheme["career"]
	if !ok {
		t.Fatal("no career cluster")
	}
	if len(career.MemberIDs) != 1 || career.MemberIDs[0] != "both" {
		t.Errorf("career members = %v, want [both]", career.MemberIDs)
	}
	running, ok := byTheme["running"]
	if !ok {
		t.Fatal("no running cluster")
	}
	if len(running.MemberIDs) != 1 || running.MemberIDs[0] != "runs" {
		t.Errorf("running members = %v, want [runs]", running.MemberIDs)
	}
	for _, c := range res.Clusters {
		for _, id := range c.MemberIDs {
			if id == "untagged" {
				t.Error("memory with no top theme was clustered")
			}
		}
	}
}

func TestRefresh_Flags(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(dims)
	owner := "u1"
	now := time.Now()

	// Twelve members saturate strength past the established threshold, and
	// all are recent enough to count as emerging too.
	seedTheme(t, st, owner, "writing", 12, now)
	for i := 0; i < 12; i++ {
		seedMemory(t, st, owner, fmt.Sprintf("w%d", i), 0.3, []string{"writing"}, now.AddDate(0, 0, -(i%7)))
	}

	e := cluster.New(st, nil)
	res, err := e.Refresh(ctx, owner)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	want := map[string]bool{
		"established pattern: writing": false,
		"emerging pattern: writing":    false,
	}
	for _, f := range res.Flags {
		if _, ok := want[f]; ok {
			want[f] = true
		}
	}
	for f, seen := range want {
		if !seen {
			t.Errorf("missing flag %q in %v", f, res.Flags)
		}
	}
}

func TestRefresh_ReplacesPreviousRun(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(dims)
	owner := "u1"
	now := time.Now()

	seedTheme(t, st, owner, "career", 5, now)
	seedMemory(t, st, owner, "m1", 0.1, []string{"career"}, now)

	e := cluster.New(st, nil)
	if _, err := e.Refresh(ctx, owner); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	firstRun, _ := st.Clusters(ctx, owner)
	if len(firstRun) != 1 {
		t.Fatalf("first run stored %d clusters, want 1", len(firstRun))
	}

	seedTheme(t, st, owner, "music", 9, now)
	seedMemory(t, st, owner, "m2", 0.1, []string{"music"}, now)

	if _, err := e.Refresh(ctx, owner); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	secondRun, _ := st.Clusters(ctx, owner)
	if len(secondRun) != 2 {
		t.Fatalf("second run stored %d clusters, want 2 (replaced, not appended)", len(secondRun))
	}
	for _, c := range secondRun {
		for _, old := range firstRun {
			if c.ID == old.ID {
				t.Error("stale cluster id survived replacement")
			}
		}
	}
}

func TestRefresh_EmptyOwnerClearsClusters(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(dims)
	owner := "u1"

	// Pre-existing clusters from an earlier state must not survive a run
	// over an owner whose theme table has emptied.
	err := st.ReplaceClusters(ctx, owner, []core.MemoryCluster{{ID: "stale", OwnerID: owner}})
	if err != nil {
		t.Fatalf("ReplaceClusters: %v", err)
	}

	e := cluster.New(st, nil)
	res, err := e.Refresh(ctx, owner)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(res.Clusters) != 0 {
		t.Fatalf("empty owner produced %d clusters", len(res.Clusters))
	}
	stored, _ := st.Clusters(ctx, owner)
	if len(stored) != 0 {
		t.Errorf("stale clusters survived: %+v", stored)
	}
}
