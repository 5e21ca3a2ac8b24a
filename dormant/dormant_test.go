package dormant_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mnemosyne-ai/mnemosyne/core"
	"github.com/mnemosyne-ai/mnemosyne/dormant"
	"github.com/mnemosyne-ai/mnemosyne/oracle"
	"github.com/mnemosyne-ai/mnemosyne/store/memstore"
)

// fakeSynth answers classification and relevance from canned tables.
type fakeSynth struct {
	categories map[string]string
	relevance  map[string]float64
	bridges    map[string]string
	err        error
}

func (f *fakeSynth) ClassifyTheme(ctx context.Context, theme string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.categories[theme], nil
}

func (f *fakeSynth) ScoreRelevance(ctx context.Context, theme, currentContext string) (float64, string, error) {
	if f.err != nil {
		return 0, "", f.err
	}
	return f.relevance[theme], f.bridges[theme], nil
}

func (f *fakeSynth) SynthesizeBridge(ctx context.Context, themeA, themeB, challenge string) (*oracle.BridgeInsight, error) {
	return nil, errors.New("not used here")
}

func bump(t *testing.T, st *memstore.Store, owner, theme string, times int, at time.Time) {
	t.Helper()
	for i := 0; i < times; i++ {
		if err := st.BumpTheme(context.Background(), owner, theme, at); err != nil {
			t.Fatalf("BumpTheme(%s): %v", theme, err)
		}
	}
}

func TestDetect_SurfacesQuietRecurringTheme(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(4)
	owner := "u1"
	now := time.Now()

	// Recurred four times, quiet for ninety days.
	bump(t, st, owner, "photography", 4, now.AddDate(0, 0, -90))
	// Recurring but recent.
	bump(t, st, owner, "career", 5, now.AddDate(0, 0, -2))
	// Old but mentioned only twice.
	bump(t, st, owner, "sailing", 2, now.AddDate(0, 0, -120))

	synth := &fakeSynth{
		categories: map[string]string{"photography": "skill"},
		relevance:  map[string]float64{"photography": 0.85},
		bridges:    map[string]string{"photography": "framing a shot is framing a problem"},
	}
	d := dormant.New(st, synth, nil)

	got := d.Detect(ctx, owner, "I feel stuck presenting my work")
	if len(got) != 1 {
		t.Fatalf("detected %d concepts, want 1", len(got))
	}

	c := got[0]
	if c.Theme != "photography" {
		t.Errorf("theme = %s, want photography", c.Theme)
	}
	if c.Category != "skill" {
		t.Errorf("category = %s, want skill", c.Category)
	}
	if c.MentionCount != 4 {
		t.Errorf("mention count = %d, want 4", c.MentionCount)
	}
	if c.DaysDormant < 89 || c.DaysDormant > 91 {
		t.Errorf("days dormant = %d, want ~90", c.DaysDormant)
	}
	if c.Relevance != 0.85 {
		t.Errorf("relevance = %f, want 0.85", c.Relevance)
	}
	if c.Bridge == "" {
		t.Error("concept missing its bridge sentence")
	}
}

func TestDetect_RelevanceThresholdFilters(t *testing.T) {
	st := memstore.New(4)
	owner := "u1"
	now := time.Now()
	bump(t, st, owner, "chess", 6, now.AddDate(0, 0, -100))

	synth := &fakeSynth{
		categories: map[string]string{"chess": "interest"},
		relevance:  map[string]float64{"chess": 0.4},
	}
	d := dormant.New(st, synth, nil)

	if got := d.Detect(context.Background(), owner, "unrelated context"); len(got) != 0 {
		t.Fatalf("low-relevance theme surfaced: %+v", got)
	}
}

func TestDetect_InvalidClassificationDefaults(t *testing.T) {
	st := memstore.New(4)
	owner := "u1"
	now := time.Now()
	bump(t, st, owner, "origami", 3, now.AddDate(0, 0, -70))

	synth := &fakeSynth{
		categories: map[string]string{"origami": "papercraft"}, // outside the closed set
		relevance:  map[string]float64{"origami": 0.9},
	}
	d := dormant.New(st, synth, nil)

	got := d.Detect(context.Background(), owner, "context")
	if len(got) != 1 {
		t.Fatalf("detected %d concepts, want 1", len(got))
	}
	if got[0].Category != "interest" {
		t.Errorf("category = %s, want default interest", got[0].Category)
	}
}

func TestDetect_Idempotent(t *testing.T) {
	st := memstore.New(4)
	owner := "u1"
	now := time.Now()
	bump(t, st, owner, "woodworking", 4, now.AddDate(0, 0, -80))
	bump(t, st, owner, "astronomy", 5, now.AddDate(0, 0, -200))

	synth := &fakeSynth{
		categories: map[string]string{"woodworking": "skill", "astronomy": "dream"},
		relevance:  map[string]float64{"woodworking": 0.8, "astronomy": 0.75},
	}
	d := dormant.New(st, synth, nil)

	first := d.Detect(context.Background(), owner, "same context")
	second := d.Detect(context.Background(), owner, "same context")
	if len(first) != len(second) {
		t.Fatalf("runs disagree on size: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Theme != second[i].Theme || first[i].Category != second[i].Category {
			t.Errorf("run mismatch at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestDetect_HistoricalValenceFromEmotionalTrail(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(4)
	owner := "u1"
	now := time.Now()
	bump(t, st, owner, "painting", 3, now.AddDate(0, 0, -100))

	for _, v := range []float64{0.6, 0.8} {
		err := st.PutEmotion(ctx, &core.EmotionalDataPoint{
			OwnerID:        owner,
			Valence:        v,
			Arousal:        0.5,
			Timestamp:      now.AddDate(0, 0, -110),
			ContextSnippet: "spent the weekend painting landscapes",
		})
		if err != nil {
			t.Fatalf("PutEmotion: %v", err)
		}
	}
	// Unrelated point must not pull the average.
	_ = st.PutEmotion(ctx, &core.EmotionalDataPoint{
		OwnerID: owner, Valence: -0.9, Arousal: 0.5,
		Timestamp: now.AddDate(0, 0, -50), ContextSnippet: "rough day at work",
	})

	synth := &fakeSynth{
		categories: map[string]string{"painting": "interest"},
		relevance:  map[string]float64{"painting": 0.8},
	}
	d := dormant.New(st, synth, nil)

	got := d.Detect(ctx, owner, "context")
	if len(got) != 1 {
		t.Fatalf("detected %d concepts, want 1", len(got))
	}
	if v := got[0].HistoricalValence; v < 0.69 || v > 0.71 {
		t.Errorf("historical valence = %f, want mean 0.7", v)
	}
}

func TestDetect_OracleFailureSkipsTheme(t *testing.T) {
	st := memstore.New(4)
	owner := "u1"
	now := time.Now()
	bump(t, st, owner, "gardening", 4, now.AddDate(0, 0, -90))

	d := dormant.New(st, &fakeSynth{err: errors.New("oracle down")}, nil)
	if got := d.Detect(context.Background(), owner, "context"); len(got) != 0 {
		t.Fatalf("oracle failure still surfaced concepts: %+v", got)
	}
}
