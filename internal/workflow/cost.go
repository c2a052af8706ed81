package workflow

import "encoding/json"

// ModelPricing is a per-1000-token rate pair for one named model.
type ModelPricing struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// defaultPricing is the fallback used when a result's model name isn't in
// the configured pricing table (spec §4.3: "unknown models fall back to a
// configured default").
var defaultPricing = ModelPricing{PromptPer1K: 0.01, CompletionPer1K: 0.03}

// PricingTable maps a model name to its rate; Cost looks up modelName
// here, falling back to defaultPricing.
type PricingTable map[string]ModelPricing

func (t PricingTable) rateFor(modelName string) ModelPricing {
	if p, ok := t[modelName]; ok {
		return p
	}
	return defaultPricing
}

// usageTokens is what ExtractUsage returns: prompt/completion token counts
// plus the model name, if the backend result exposed one.
type usageTokens struct {
	PromptTokens     int64
	CompletionTokens int64
	ModelName        string
}

type openAIUsage struct {
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

type anthropicUsage struct {
	Model string `json:"model"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// extractUsage inspects a tool/prompt result's raw JSON for OpenAI-style
// (usage.prompt_tokens/completion_tokens) or Anthropic-style
// (usage.input_tokens/output_tokens) token usage metadata. Absence of
// both shapes is not an error: most tool calls carry no usage at all.
func extractUsage(raw []byte) usageTokens {
	var oa openAIUsage
	if err := json.Unmarshal(raw, &oa); err == nil && (oa.Usage.PromptTokens > 0 || oa.Usage.CompletionTokens > 0) {
		return usageTokens{PromptTokens: oa.Usage.PromptTokens, CompletionTokens: oa.Usage.CompletionTokens, ModelName: oa.Model}
	}
	var an anthropicUsage
	if err := json.Unmarshal(raw, &an); err == nil && (an.Usage.InputTokens > 0 || an.Usage.OutputTokens > 0) {
		return usageTokens{PromptTokens: an.Usage.InputTokens, CompletionTokens: an.Usage.OutputTokens, ModelName: an.Model}
	}
	return usageTokens{}
}

// cost tabulates a dollar-equivalent cost in credits from token counts and
// the pricing table, defaulting unknown models per spec.
func (t PricingTable) cost(u usageTokens) float64 {
	if u.PromptTokens == 0 && u.CompletionTokens == 0 {
		return 0
	}
	rate := t.rateFor(u.ModelName)
	return float64(u.PromptTokens)/1000*rate.PromptPer1K + float64(u.CompletionTokens)/1000*rate.CompletionPer1K
}
