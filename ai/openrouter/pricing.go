package openrouter

// ModelPricing is USD per million tokens.
type ModelPricing struct {
	PromptPrice     float64
	CompletionPrice float64
}

// Prices for the models a judgment is likely to run on. Unknown models
// cost nothing in the logs rather than guessing.
var modelPricing = map[string]ModelPricing{
	"openai/gpt-4o":                    {PromptPrice: 2.50, CompletionPrice: 10.00},
	"openai/gpt-4o-mini":               {PromptPrice: 0.15, CompletionPrice: 0.60},
	"anthropic/claude-3.5-sonnet":      {PromptPrice: 3.00, CompletionPrice: 15.00},
	"anthropic/claude-3-haiku":         {PromptPrice: 0.25, CompletionPrice: 1.25},
	"meta-llama/llama-3.1-8b-instruct": {PromptPrice: 0.05, CompletionPrice: 0.05},
}

// Pricing returns the table entry for model.
func Pricing(model string) (ModelPricing, bool) {
	p, ok := modelPricing[model]
	return p, ok
}

// CalculateCost estimates a request's cost in USD.
func CalculateCost(model string, promptTokens, completionTokens int) float64 {
	p, ok := modelPricing[model]
	if !ok {
		return 0
	}
	return float64(promptTokens)/1e6*p.PromptPrice + float64(completionTokens)/1e6*p.CompletionPrice
}
