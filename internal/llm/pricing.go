package llm

type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// USD per million tokens for the models the platform lets agents run on.
var pricingTable = map[string]ModelPricing{
	"gpt-4o":                         {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini":                    {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4.1":                        {InputPerMillion: 2.00, OutputPerMillion: 8.00},
	"gpt-4.1-mini":                   {InputPerMillion: 0.40, OutputPerMillion: 1.60},
	"o4-mini":                        {InputPerMillion: 1.10, OutputPerMillion: 4.40},
	"meta-llama/llama-3.3-70b":       {InputPerMillion: 0.59, OutputPerMillion: 0.79},
	"moonshot-v1-32k":                {InputPerMillion: 1.70, OutputPerMillion: 1.70},
	"mistralai/mixtral-8x22b":        {InputPerMillion: 0.90, OutputPerMillion: 0.90},
	"deepseek/deepseek-chat-v3":      {InputPerMillion: 0.27, OutputPerMillion: 1.10},
	"qwen/qwen-2.5-72b":              {InputPerMillion: 0.35, OutputPerMillion: 0.40},
}

// Cost prices a completed call. Unknown models fail closed: the caller must
// treat the cycle as a provider error rather than booking zero spend.
func Cost(model string, usage Usage) (float64, error) {
	pricing, ok := pricingTable[model]
	if !ok {
		return 0, ErrUnknownModelPricing{Model: model}
	}
	cost := float64(usage.PromptTokens)/1e6*pricing.InputPerMillion +
		float64(usage.CompletionTokens)/1e6*pricing.OutputPerMillion
	return cost, nil
}
