package llm

// Price is the USD cost per 1K tokens.
type Price struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// Pricing maps provider -> model -> price. A "default" model entry applies to
// models that are not listed.
type Pricing map[string]map[string]Price

var DefaultPricing = Pricing{
	"openai": {
		"gpt-4o":             {PromptPer1K: 0.0025, CompletionPer1K: 0.01},
		"gpt-4o-mini":        {PromptPer1K: 0.00015, CompletionPer1K: 0.0006},
		"gpt-4-1106-preview": {PromptPer1K: 0.01, CompletionPer1K: 0.03},
		"gpt-4-turbo":        {PromptPer1K: 0.01, CompletionPer1K: 0.03},
		"default":            {PromptPer1K: 0.0025, CompletionPer1K: 0.01},
	},
	"anthropic": {
		"claude-3-5-haiku-latest": {PromptPer1K: 0.0008, CompletionPer1K: 0.004},
		"default":                 {PromptPer1K: 0.003, CompletionPer1K: 0.015},
	},
	"google": {
		"gemini-2.0-flash": {PromptPer1K: 0.0001, CompletionPer1K: 0.0004},
		"default":          {PromptPer1K: 0.00125, CompletionPer1K: 0.005},
	},
	"mock": {
		"default": {},
	},
}

// EstimateCost returns the estimated USD cost of a call, and false when no
// price is known for the provider.
func EstimateCost(pricing Pricing, provider, model string, usage Usage) (float64, bool) {
	entry, ok := pricing.lookup(provider, model)
	if !ok {
		return 0, false
	}
	promptCost := (float64(usage.PromptTokens) / 1000.0) * entry.PromptPer1K
	completionCost := (float64(usage.CompletionTokens) / 1000.0) * entry.CompletionPer1K
	return promptCost + completionCost, true
}

func (p Pricing) lookup(provider, model string) (Price, bool) {
	if p == nil {
		return Price{}, false
	}
	models, ok := p[provider]
	if !ok {
		return Price{}, false
	}
	if entry, ok := models[model]; ok {
		return entry, true
	}
	entry, ok := models["default"]
	return entry, ok
}
