package pricing

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"toolbridge/internal/convo"
)

// DefaultModel is the table entry used for models without their own pricing.
const DefaultModel = "*"

// ModelPricing defines per-token cost for a model, expressed per 1M tokens.
type ModelPricing struct {
	PromptPer1M     float64 `json:"prompt_per_1m" yaml:"prompt_per_1m"`
	CompletionPer1M float64 `json:"completion_per_1m" yaml:"completion_per_1m"`
}

// Table maps model identifiers to pricing. Lookups on unknown models fall
// back to the DefaultModel entry. The table is immutable after construction.
type Table struct {
	entries map[string]ModelPricing
}

func New(entries map[string]ModelPricing) *Table {
	merged := Defaults()
	for k, v := range entries {
		merged[normalizeModel(k)] = v
	}
	return &Table{entries: merged}
}

// NewFromEnv builds a Table from MODEL_PRICING_JSON (inline JSON map) and
// MODEL_PRICING_FILE (YAML file); the file wins over the inline blob.
func NewFromEnv() (*Table, error) {
	entries := map[string]ModelPricing{}
	if raw := strings.TrimSpace(os.Getenv("MODEL_PRICING_JSON")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil, fmt.Errorf("invalid MODEL_PRICING_JSON: %w", err)
		}
	}
	if path := strings.TrimSpace(os.Getenv("MODEL_PRICING_FILE")); path != "" {
		fromFile, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			entries[k] = v
		}
	}
	return New(entries), nil
}

// LoadFile reads a YAML map of model -> pricing.
func LoadFile(path string) (map[string]ModelPricing, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}
	var entries map[string]ModelPricing
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("invalid pricing file %s: %w", path, err)
	}
	return entries, nil
}

// Defaults returns common model pricing (as of 2025-2026).
func Defaults() map[string]ModelPricing {
	return map[string]ModelPricing{
		"gpt-4o":                   {PromptPer1M: 2.5, CompletionPer1M: 10.0},
		"gpt-4o-mini":              {PromptPer1M: 0.15, CompletionPer1M: 0.6},
		"gpt-4-turbo":              {PromptPer1M: 10.0, CompletionPer1M: 30.0},
		"claude-sonnet-4-20250514": {PromptPer1M: 3.0, CompletionPer1M: 15.0},
		"claude-3-5-sonnet":        {PromptPer1M: 3.0, CompletionPer1M: 15.0},
		"claude-3-haiku":           {PromptPer1M: 0.25, CompletionPer1M: 1.25},
		DefaultModel:               {PromptPer1M: 3.0, CompletionPer1M: 15.0},
	}
}

// Lookup returns the pricing for a model, falling back to the default entry.
func (t *Table) Lookup(model string) ModelPricing {
	if p, ok := t.entries[normalizeModel(model)]; ok {
		return p
	}
	return t.entries[DefaultModel]
}

// Cost computes the USD cost of one request's aggregated usage.
func (t *Table) Cost(model string, usage convo.Usage) float64 {
	p := t.Lookup(model)
	return float64(usage.PromptTokens)/1_000_000*p.PromptPer1M +
		float64(usage.CompletionTokens)/1_000_000*p.CompletionPer1M
}

func normalizeModel(model string) string {
	return strings.ToLower(strings.TrimSpace(model))
}
