package oracle_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/mnemosyne-ai/mnemosyne/oracle"
	"github.com/mnemosyne-ai/mnemosyne/oracle/mock"
)

func TestCosine_IdenticalVectors(t *testing.T) {
	v := []float32{0.3, -0.5, 0.8, 0.1}
	if sim := oracle.Cosine(v, v); math.Abs(sim-1.0) > 1e-6 {
		t.Errorf("self-similarity = %f, want 1.0", sim)
	}
}

func TestCosine_OrthogonalVectors(t *testing.T) {
	a := []float32{1, 0, 0, 0}
	b := []float32{0, 1, 0, 0}
	if sim := oracle.Cosine(a, b); math.Abs(sim) > 1e-6 {
		t.Errorf("orthogonal similarity = %f, want 0", sim)
	}
}

func TestCosine_DegenerateInputs(t *testing.T) {
	if sim := oracle.Cosine(nil, nil); sim != 0 {
		t.Errorf("empty vectors = %f, want 0", sim)
	}
	if sim := oracle.Cosine([]float32{1, 2}, []float32{1, 2, 3}); sim != 0 {
		t.Errorf("mismatched dims = %f, want 0", sim)
	}
	if sim := oracle.Cosine([]float32{0, 0}, []float32{1, 1}); sim != 0 {
		t.Errorf("zero-norm vector = %f, want 0", sim)
	}
}

// countingEmbedder tracks how often the wrapped embedder actually runs.
type countingEmbedder struct {
	inner *mock.Embedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }

func TestCachedEmbedder_HitsSkipInner(t *testing.T) {
	ctx := context.Background()
	counter := &countingEmbedder{inner: mock.New(64)}

	cached, err := oracle.NewCachedEmbedder(counter, 128)
	if err != nil {
		t.Fatalf("NewCachedEmbedder: %v", err)
	}
	defer cached.Close()

	first, err := cached.Embed(ctx, "running a marathon")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	// ristretto admits entries asynchronously; poll until a repeat lookup
	// stops reaching the inner embedder.
	hit := false
	for deadline := time.Now().Add(2 * time.Second); time.Now().Before(deadline); {
		before := counter.calls
		second, err := cached.Embed(ctx, "running a marathon")
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		if oracle.Cosine(first, second) < 0.999999 {
			t.Fatalf("cached embedding differs from original")
		}
		if counter.calls == before {
			hit = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !hit {
		t.Error("repeated Embed never served from cache")
	}

	if cached.Dimensions() != 64 {
		t.Errorf("Dimensions = %d, want 64", cached.Dimensions())
	}
}
