package mock_test

import (
	"context"
	"math"
	"testing"

	"github.com/mnemosyne-ai/mnemosyne/oracle"
	"github.com/mnemosyne-ai/mnemosyne/oracle/mock"
)

func TestEmbed_Deterministic(t *testing.T) {
	ctx := context.Background()
	m := mock.New(128)

	a, err := m.Embed(ctx, "trail running with friends")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := m.Embed(ctx, "trail running with friends")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if len(a) != 128 {
		t.Fatalf("embedding has %d dims, want 128", len(a))
	}
	if sim := oracle.Cosine(a, b); math.Abs(sim-1.0) > 1e-6 {
		t.Errorf("self-similarity = %f, want 1.0", sim)
	}
}

func TestEmbed_SharedTokensAreCloser(t *testing.T) {
	ctx := context.Background()
	m := mock.New(128)

	base, _ := m.Embed(ctx, "running a marathon in october")
	related, _ := m.Embed(ctx, "running a marathon next year")
	unrelated, _ := m.Embed(ctx, "kubernetes deployment pipeline")

	simRelated := oracle.Cosine(base, related)
	simUnrelated := oracle.Cosine(base, unrelated)
	if simRelated <= simUnrelated {
		t.Errorf("shared-token similarity %f not above disjoint similarity %f", simRelated, simUnrelated)
	}
}

func TestEmbed_Normalized(t *testing.T) {
	m := mock.New(64)
	vec, err := m.Embed(context.Background(), "anything at all")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-4 {
		t.Errorf("vector norm = %f, want 1.0", math.Sqrt(norm))
	}
}

func TestNew_DefaultDimensions(t *testing.T) {
	if d := mock.New(0).Dimensions(); d != 384 {
		t.Errorf("default dims = %d, want 384", d)
	}
}
