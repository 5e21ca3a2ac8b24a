// Package engine is the facade the surrounding conversation system talks
// to. It wires the extractor, ranker, dormant detector, clustering engine,
// and bridge generator over one injected store, and enforces the engine's
// failure policy: no operation ever surfaces an error into a conversational
// turn; everything degrades to an empty or partial result.
package engine

import (
	"context"
	"log"

	"github.com/mnemosyne-ai/mnemosyne/bridge"
	"github.com/mnemosyne-ai/mnemosyne/cluster"
	"github.com/mnemosyne-ai/mnemosyne/core"
	"github.com/mnemosyne-ai/mnemosyne/dormant"
	"github.com/mnemosyne-ai/mnemosyne/extract"
	"github.com/mnemosyne-ai/mnemosyne/oracle"
	"github.com/mnemosyne-ai/mnemosyne/recall"
	"github.com/mnemosyne-ai/mnemosyne/store"
)

// Engine exposes the memory operations to the conversation system. The
// conversation system owns prompt assembly, turn sequencing, and response
// delivery; the engine owns memory formation and retrieval.
type Engine struct {
	store store.Store

	extractor *extract.Extractor
	ranker    *recall.Ranker
	detector  *dormant.Detector
	clusters  *cluster.Engine
	bridges   *bridge.Generator
}

// Option configures the engine.
type Option func(*options)

type options struct {
	extractConfig *extract.Config
	recallConfig  *recall.Config
	dormantConfig *dormant.Config
	clusterConfig *cluster.Config
	bridgeConfig  *bridge.Config
}

// WithExtractConfig overrides extraction tuning.
func WithExtractConfig(cfg *extract.Config) Option {
	return func(o *options) { o.extractConfig = cfg }
}

// WithRecallConfig overrides ranking constants.
func WithRecallConfig(cfg *recall.Config) Option {
	return func(o *options) { o.recallConfig = cfg }
}

// WithDormantConfig overrides dormancy thresholds.
func WithDormantConfig(cfg *dormant.Config) Option {
	return func(o *options) { o.dormantConfig = cfg }
}

// WithClusterConfig overrides clustering thresholds.
func WithClusterConfig(cfg *cluster.Config) Option {
	return func(o *options) { o.clusterConfig = cfg }
}

// WithBridgeConfig overrides bridge-generation bounds.
func WithBridgeConfig(cfg *bridge.Config) Option {
	return func(o *options) { o.bridgeConfig = cfg }
}

// New creates an engine over the given store and oracles.
func New(st store.Store, embedder oracle.Embedder, nlu oracle.Extractor, synth oracle.Synthesizer, opts ...Option) *Engine {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		store:     st,
		extractor: extract.New(st, nlu, embedder, o.extractConfig),
		ranker:    recall.New(st, embedder, o.recallConfig),
		detector:  dormant.New(st, synth, o.dormantConfig),
		clusters:  cluster.New(st, o.clusterConfig),
		bridges:   bridge.New(st, embedder, synth, o.bridgeConfig),
	}
}

// Extract processes one conversational turn synchronously. When it returns,
// everything the turn produced is durably committed, so a recall issued
// afterwards will see it.
func (e *Engine) Extract(ctx context.Context, ownerID, conversationRef, text string) *extract.Result {
	// Memory formation is a side effect worth completing even if the
	// surrounding request is cancelled and its response discarded.
	return e.extractor.ExtractTurn(context.WithoutCancel(ctx), ownerID, conversationRef, text)
}

// ExtractAsync starts extraction and returns a task the caller can await or
// detach. Waiting until the task completes guarantees the turn's memories
// are visible to subsequent recalls.
func (e *Engine) ExtractAsync(ctx context.Context, ownerID, conversationRef, text string) *ExtractTask {
	task := &ExtractTask{done: make(chan struct{})}
	detached := context.WithoutCancel(ctx)
	go func() {
		defer close(task.done)
		task.result = e.extractor.ExtractTurn(detached, ownerID, conversationRef, text)
	}()
	return task
}

// Recall returns the top-K memories relevant to the present moment.
// Pure read side: cancelling ctx abandons it safely.
func (e *Engine) Recall(ctx context.Context, ownerID, queryText string, qc core.QueryContext) []core.RankedMemory {
	return e.ranker.Recall(ctx, ownerID, queryText, qc)
}

// DormantConcepts returns once-recurring themes that have gone quiet but
// re-test as relevant to the current context.
func (e *Engine) DormantConcepts(ctx context.Context, ownerID, currentContext string) []core.DormantConcept {
	return e.detector.Detect(ctx, ownerID, currentContext)
}

// Bridge synthesizes analogies between the owner's most dissimilar themes,
// applied to the stated challenge.
func (e *Engine) Bridge(ctx context.Context, ownerID, challengeText string) []core.ConceptBridge {
	return e.bridges.Generate(ctx, ownerID, challengeText)
}

// Clusters returns the owner's cluster set from the last clustering run.
func (e *Engine) Clusters(ctx context.Context, ownerID string) []core.MemoryCluster {
	clusters, err := e.store.Clusters(ctx, ownerID)
	if err != nil {
		log.Printf("[ENGINE] loading clusters failed for owner=%s: %v", ownerID, err)
		return nil
	}
	return clusters
}

// RefreshClusters recomputes the owner's cluster set. Periodic batch work;
// the caller owns the schedule. Safe to re-run, last writer wins.
func (e *Engine) RefreshClusters(ctx context.Context, ownerID string) *cluster.Result {
	result, err := e.clusters.Refresh(ctx, ownerID)
	if err != nil {
		log.Printf("[ENGINE] clustering failed for owner=%s: %v", ownerID, err)
		return &cluster.Result{}
	}
	return result
}

// ExtractTask is an in-flight extraction the caller can await or detach.
type ExtractTask struct {
	done   chan struct{}
	result *extract.Result
}

// Wait blocks until extraction commits or ctx is cancelled. Cancellation
// abandons only the wait: the extraction itself keeps running to
// completion.
func (t *ExtractTask) Wait(ctx context.Context) (*extract.Result, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done reports without blocking whether extraction has committed.
func (t *ExtractTask) Done() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
