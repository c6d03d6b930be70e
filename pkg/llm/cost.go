package llm

import (
	"strconv"

	"github.com/zen-systems/nodeflow/pkg/adapter"
	"github.com/zen-systems/nodeflow/pkg/artifact"
	"github.com/zen-systems/nodeflow/pkg/config"
)

// EstimateCost prices usage with the per-1k rates configured for
// adapter/model. ok is false when no pricing applies.
func EstimateCost(pricing config.PricingConfig, adapterName, model string, usage adapter.Usage) (adapter.Cost, bool) {
	entry, ok := pricing.Lookup(adapterName, model)
	if !ok {
		return adapter.Cost{Currency: "USD"}, false
	}

	promptCost := (float64(usage.PromptTokens) / 1000.0) * entry.PromptPer1K
	completionCost := (float64(usage.CompletionTokens) / 1000.0) * entry.CompletionPer1K
	return adapter.Cost{
		Currency:     "USD",
		Amount:       promptCost + completionCost,
		IsEstimate:   true,
		PricingModel: "per_1k_tokens",
	}, true
}

// Report reads the usage and cost a node recorded on an artifact.
// Missing or malformed values count as zero.
func Report(a *artifact.Artifact) (adapter.Usage, adapter.Cost) {
	usage := adapter.Usage{
		PromptTokens:     atoi(a.Meta(artifact.MetaPromptTokens)),
		CompletionTokens: atoi(a.Meta(artifact.MetaCompletionTokens)),
	}.Normalize()

	cost := adapter.Cost{Currency: "USD"}
	if raw := a.Meta(artifact.MetaCostUSD); raw != "" {
		if amount, err := strconv.ParseFloat(raw, 64); err == nil {
			cost.Amount = amount
			cost.IsEstimate = true
			cost.PricingModel = "per_1k_tokens"
		}
	}
	return usage, cost
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
