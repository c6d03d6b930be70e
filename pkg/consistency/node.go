package consistency

import (
	"context"
	"fmt"

	"github.com/zen-systems/nodeflow/pkg/adapter"
	"github.com/zen-systems/nodeflow/pkg/llm"
	"github.com/zen-systems/nodeflow/pkg/node"
	"go.uber.org/zap"
)

// NodeName is the self-consistency node type name.
const NodeName = "self_consistency_node"

// SelfConsistencyNode samples an LLM node several times and returns the
// consensus answer.
type SelfConsistencyNode struct {
	cfg     Config
	gen     *llm.Node
	sampler *Sampler[llm.Input]
	desc    node.Descriptor
	logger  *zap.Logger
}

// NewNode builds the node. llmOpts are passed to the inner LLM node; opts
// configure the sampler. cfg.Sampling.MaxParallel is applied first, so a
// WithMaxParallel in opts overrides it.
func NewNode(cfg NodeConfig, adapters map[string]adapter.Adapter, llmOpts []llm.Option, opts ...Option) (*SelfConsistencyNode, error) {
	if err := cfg.Sampling.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", NodeName, err)
	}
	gen, err := llm.New(cfg.LLM, adapters, llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", NodeName, err)
	}

	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	sampleOpts := append([]Option{WithMaxParallel(cfg.Sampling.MaxParallel)}, opts...)

	inner := gen.Descriptor()
	return &SelfConsistencyNode{
		cfg:     cfg.Sampling,
		gen:     gen,
		sampler: NewSampler[llm.Input](gen, sampleOpts...),
		desc: node.Descriptor{
			Name:        NodeName,
			DisplayName: "SelfConsistency",
			Category:    "LLM",
			Input:       inner.Input,
			Output:      node.Schema{"text": "string"},
			FixedOutput: true,
		},
		logger: o.logger,
	}, nil
}

// Descriptor returns the node descriptor.
func (n *SelfConsistencyNode) Descriptor() node.Descriptor {
	d := n.desc
	d.Input = d.Input.Clone()
	d.Output = d.Output.Clone()
	return d
}

// Sample runs the sampler and reports the summed usage and cost of all
// samples on the outcome.
func (n *SelfConsistencyNode) Sample(ctx context.Context, in llm.Input) (*Outcome, error) {
	outcome, err := n.sampler.Sample(ctx, in, n.cfg.Samples, n.cfg.SimilarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", NodeName, err)
	}

	outcome.Cost = adapter.Cost{Currency: "USD"}
	for _, s := range outcome.Samples {
		usage, cost := llm.Report(s)
		outcome.Usage = outcome.Usage.Add(usage)
		outcome.Cost.Amount += cost.Amount
		if cost.IsEstimate {
			outcome.Cost.IsEstimate = true
			outcome.Cost.PricingModel = cost.PricingModel
		}
	}

	target := n.gen.Target()
	n.logger.Info("self-consistency selected",
		zap.String("adapter", target.Adapter),
		zap.String("model", target.Model),
		zap.Bool("found", outcome.Found),
		zap.Int("samples", len(outcome.Samples)),
		zap.Int("clusters", len(outcome.Clusters)),
		zap.Int("total_tokens", outcome.Usage.TotalTokens),
	)
	return outcome, nil
}

// Run returns the consensus text, or NoConsistentAnswer when no samples were
// configured.
func (n *SelfConsistencyNode) Run(ctx context.Context, in llm.Input) (llm.Output, error) {
	outcome, err := n.Sample(ctx, in)
	if err != nil {
		return llm.Output{}, err
	}
	return llm.Output{Text: outcome.Text}, nil
}
