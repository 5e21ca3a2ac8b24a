package anthropic

import (
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/mnemosyne-ai/mnemosyne/core"
	"github.com/mnemosyne-ai/mnemosyne/oracle"
)

func TestDecodeJSON_PlainObject(t *testing.T) {
	var analysis oracle.TurnAnalysis
	raw := `{"memories":[{"content":"c","category":"goal","valence":0.5,"importance":0.7,"confidence":0.9,"tags":["running"]}],"themes":["running"],"emotional_analysis":{"valence":0.4,"arousal":0.6,"dominant_emotion":"excited","intensity":0.5}}`
	if err := decodeJSON(raw, &analysis); err != nil {
		t.Fatalf("decodeJSON: %v", err)
	}
	if len(analysis.Memories) != 1 || analysis.Memories[0].Category != "goal" {
		t.Errorf("memories = %+v", analysis.Memories)
	}
	if analysis.Emotion.Dominant != "excited" {
		t.Errorf("dominant = %s, want excited", analysis.Emotion.Dominant)
	}
}

func TestDecodeJSON_StripsCodeFences(t *testing.T) {
	var payload struct {
		Score  float64 `json:"score"`
		Bridge string  `json:"bridge"`
	}
	raw := "```json\n{\"score\": 0.8, \"bridge\": \"old theme, new light\"}\n```"
	if err := decodeJSON(raw, &payload); err != nil {
		t.Fatalf("decodeJSON: %v", err)
	}
	if payload.Score != 0.8 || payload.Bridge == "" {
		t.Errorf("payload = %+v", payload)
	}

	raw = "```\n{\"score\": 0.3, \"bridge\": \"b\"}\n```"
	if err := decodeJSON(raw, &payload); err != nil {
		t.Fatalf("decodeJSON bare fence: %v", err)
	}
	if payload.Score != 0.3 {
		t.Errorf("score = %f, want 0.3", payload.Score)
	}
}

func TestDecodeJSON_MalformedIsClassified(t *testing.T) {
	var payload struct{}
	err := decodeJSON("the model rambled instead of answering", &payload)
	if !errors.Is(err, core.ErrOracleMalformed) {
		t.Fatalf("err = %v, want ErrOracleMalformed", err)
	}
}

func TestShouldRetry_Classification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"bad request", &sdk.Error{StatusCode: 400}, false},
		{"unauthorized", &sdk.Error{StatusCode: 401}, false},
		{"not found", &sdk.Error{StatusCode: 404}, false},
		{"request timeout", &sdk.Error{StatusCode: 408}, true},
		{"rate limited", &sdk.Error{StatusCode: 429}, true},
		{"server error", &sdk.Error{StatusCode: 500}, true},
		{"overloaded", &sdk.Error{StatusCode: 529}, true},
		{"transport error", errors.New("connection reset"), true},
	}
	for _, c := range cases {
		if got := shouldRetry(c.err); got != c.want {
			t.Errorf("%s: shouldRetry = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestDefaultConfig_WiresRetryClassifier(t *testing.T) {
	if DefaultConfig.Retry.ShouldRetry == nil {
		t.Fatal("default retry config has no error classifier")
	}
	if DefaultConfig.Retry.ShouldRetry(&sdk.Error{StatusCode: 400}) {
		t.Error("default classifier retries a client error")
	}
}

func TestNew_DefaultsConfig(t *testing.T) {
	o := New(nil, nil)
	if o.config != DefaultConfig {
		t.Error("nil config did not fall back to DefaultConfig")
	}
	if DefaultConfig.MaxTokens <= 0 || DefaultConfig.Model == "" {
		t.Errorf("suspicious defaults: %+v", DefaultConfig)
	}
}
