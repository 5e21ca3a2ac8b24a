// Package anthropic implements the NLU extraction and generative synthesis
// oracles on the Claude API.
//
// Every response is treated as untrusted: the JSON is parsed into typed
// payloads and classified as core.ErrOracleMalformed on any schema
// violation, so consumers can degrade instead of propagating bad data.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/mnemosyne-ai/mnemosyne/core"
	"github.com/mnemosyne-ai/mnemosyne/oracle"
	"github.com/mnemosyne-ai/mnemosyne/retry"
)

// Config holds oracle tuning.
type Config struct {
	// Model is the Claude model to use.
	Model string

	// MaxTokens is the per-call response cap.
	MaxTokens int64

	// Retry controls backoff for transient API failures.
	Retry retry.Config
}

// DefaultConfig returns sensible oracle defaults.
var DefaultConfig = &Config{
	Model:     "claude-sonnet-4-20250514",
	MaxTokens: 1024,
	Retry: retry.Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		ShouldRetry:  shouldRetry,
	},
}

// shouldRetry classifies API failures. Client errors other than rate
// limiting will fail the same way on every attempt; everything else
// (timeouts, 429, 5xx, transport errors) is worth retrying.
func shouldRetry(err error) bool {
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusTooManyRequests:
			return true
		case apierr.StatusCode == http.StatusRequestTimeout:
			return true
		case apierr.StatusCode >= 500:
			return true
		default:
			return false
		}
	}
	return true
}

// Oracle is a Claude-backed Extractor and Synthesizer.
type Oracle struct {
	client *sdk.Client
	config *Config
}

var (
	_ oracle.Extractor   = (*Oracle)(nil)
	_ oracle.Synthesizer = (*Oracle)(nil)
)

// New creates an oracle on the given Anthropic client.
func New(client *sdk.Client, config *Config) *Oracle {
	if config == nil {
		config = DefaultConfig
	}
	return &Oracle{client: client, config: config}
}

// ExtractTurn asks Claude for candidate memories, themes, and an emotional
// analysis of one conversational turn.
func (o *Oracle) ExtractTurn(ctx context.Context, text string, contextHint string) (*oracle.TurnAnalysis, error) {
	user := "Turn:\n" + text
	if contextHint != "" {
		user += "\n\nConversation context: " + contextHint
	}

	raw, err := o.complete(ctx, extractSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var analysis oracle.TurnAnalysis
	if err := decodeJSON(raw, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// ClassifyTheme assigns a theme to one concept category.
func (o *Oracle) ClassifyTheme(ctx context.Context, theme string) (string, error) {
	raw, err := o.complete(ctx, classifySystemPrompt, theme)
	if err != nil {
		return "", err
	}
	// Consumers validate against the closed category set and default.
	return strings.ToLower(strings.TrimSpace(raw)), nil
}

// ScoreRelevance re-tests a dormant theme against the present context.
func (o *Oracle) ScoreRelevance(ctx context.Context, theme string, currentContext string) (float64, string, error) {
	user := fmt.Sprintf("Dormant theme: %s\n\nCurrent conversation:\n%s", theme, currentContext)
	raw, err := o.complete(ctx, relevanceSystemPrompt, user)
	if err != nil {
		return 0, "", err
	}

	var payload struct {
		Score  float64 `json:"score"`
		Bridge string  `json:"bridge"`
	}
	if err := decodeJSON(raw, &payload); err != nil {
		return 0, "", err
	}
	return payload.Score, payload.Bridge, nil
}

// SynthesizeBridge produces the hidden connection between two distant
// themes applied to a challenge.
func (o *Oracle) SynthesizeBridge(ctx context.Context, themeA, themeB, challenge string) (*oracle.BridgeInsight, error) {
	user := fmt.Sprintf("Domain A: %s\nDomain B: %s\n\nChallenge:\n%s", themeA, themeB, challenge)
	raw, err := o.complete(ctx, bridgeSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var insight oracle.BridgeInsight
	if err := decodeJSON(raw, &insight); err != nil {
		return nil, err
	}
	return &insight, nil
}

// complete runs one Claude call with retry and returns the response text.
func (o *Oracle) complete(ctx context.Context, system, user string) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(o.config.Model),
		MaxTokens: o.config.MaxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(user)),
		},
		System: []sdk.TextBlockParam{
			{Text: system},
		},
	}

	var resp *sdk.Message
	err := retry.Do(ctx, o.config.Retry, func() error {
		var err error
		resp, err = o.client.Messages.New(ctx, params)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: claude: %v", core.ErrOracleUnavailable, err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty response", core.ErrOracleMalformed)
	}
	return text, nil
}

// decodeJSON parses an oracle response, tolerating markdown code fences.
func decodeJSON(raw string, v interface{}) error {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v", core.ErrOracleMalformed, err)
	}
	return nil
}

const extractSystemPrompt = `You analyze one turn of a personal conversation and extract durable memory.

Respond with ONLY a JSON object, no prose, in this exact shape:
{
  "memories": [
    {
      "content": "one-sentence summary of something worth remembering",
      "category": "insight|goal|value|pattern|emotion",
      "valence": -1.0 to 1.0,
      "importance": 0.0 to 1.0,
      "confidence": 0.0 to 1.0,
      "tags": ["short", "theme", "labels"]
    }
  ],
  "themes": ["themes touched in this turn"],
  "emotional_analysis": {
    "valence": -1.0 to 1.0,
    "arousal": 0.0 to 1.0,
    "dominant_emotion": "one word",
    "secondary_emotions": ["ordered", "list"],
    "intensity": 0.0 to 1.0
  }
}

Extract zero memories when the turn contains nothing durable. Keep themes
short and reusable across conversations (e.g. "career", "running", "family").`

const classifySystemPrompt = `Classify the given life theme into exactly one of:
value, interest, skill, dream, insight, approach.

Respond with only the single category word.`

const relevanceSystemPrompt = `A theme from this person's past has been quiet for months. Judge how
relevant it is to their current conversation.

Respond with ONLY a JSON object:
{
  "score": 0.0 to 1.0,
  "bridge": "one sentence explaining how the old theme connects to the present"
}`

const bridgeSystemPrompt = `You connect two deliberately unrelated domains from one person's life.

Respond with ONLY a JSON object:
{
  "hidden_connection": "the non-obvious structural link between the domains",
  "insight": "a novel insight that link suggests",
  "application": "how to apply it to the stated challenge"
}`
