// Package llm provides the generation node: it renders a prompt from the
// input fields, calls a provider adapter and returns the produced text.
package llm

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/zen-systems/nodeflow/pkg/adapter"
	"github.com/zen-systems/nodeflow/pkg/artifact"
	"github.com/zen-systems/nodeflow/pkg/config"
	"github.com/zen-systems/nodeflow/pkg/node"
	"github.com/zen-systems/nodeflow/pkg/template"
	"go.uber.org/zap"
)

// Name is the node type name.
const Name = "llm_node"

// Input is the field map a node receives.
type Input map[string]any

// Output is the generated text.
type Output struct {
	Text string `json:"text"`
}

// Node generates text with one adapter/model pair.
type Node struct {
	cfg     Config
	target  config.RouteTarget
	impl    adapter.Adapter
	desc    node.Descriptor
	logger  *zap.Logger
	aliases *config.ModelAliases
}

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithAliases resolves the configured model through aliases.
func WithAliases(aliases *config.ModelAliases) Option {
	return func(n *Node) {
		n.aliases = aliases
	}
}

// New builds a node from cfg, picking its adapter from adapters.
func New(cfg Config, adapters map[string]adapter.Adapter, opts ...Option) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &Node{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(n)
	}

	n.target = n.aliases.Resolve(cfg.Adapter, cfg.Model)
	if n.target.Adapter == "" {
		return nil, fmt.Errorf("%s: adapter is required", Name)
	}
	impl, ok := adapters[n.target.Adapter]
	if !ok {
		return nil, fmt.Errorf("%s: adapter %s not available", Name, n.target.Adapter)
	}
	if n.target.Model == "" {
		if models := impl.Models(); len(models) > 0 {
			n.target.Model = models[0]
		}
	}
	if err := n.aliases.Validate(n.target); err != nil {
		return nil, fmt.Errorf("%s: %w", Name, err)
	}
	n.impl = impl

	input, err := inputSchema(cfg.UserMessage)
	if err != nil {
		return nil, fmt.Errorf("%s: user_message: %w", Name, err)
	}
	n.desc = node.Descriptor{
		Name:        Name,
		DisplayName: "LLM",
		Category:    "LLM",
		Input:       input,
		Output:      node.Schema{"text": "string"},
		FixedOutput: true,
	}
	return n, nil
}

func inputSchema(userMessage string) (node.Schema, error) {
	fields, err := template.Fields(userMessage)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return node.Schema{"input": "string"}, nil
	}
	schema := make(node.Schema, len(fields))
	for _, f := range fields {
		schema[f] = "string"
	}
	return schema, nil
}

// Descriptor returns the node descriptor.
func (n *Node) Descriptor() node.Descriptor {
	d := n.desc
	d.Input = d.Input.Clone()
	d.Output = d.Output.Clone()
	return d
}

// Target returns the resolved adapter and model.
func (n *Node) Target() config.RouteTarget {
	return n.target
}

// Generate renders the prompt, calls the adapter and returns the artifact
// with retries, token usage and estimated cost recorded in its metadata.
func (n *Node) Generate(ctx context.Context, in Input) (*artifact.Artifact, error) {
	prompt, err := template.RenderOrFirstString(n.cfg.UserMessage, in, Name)
	if err != nil {
		return nil, err
	}

	req := adapter.Request{
		Model:       n.target.Model,
		System:      n.cfg.SystemMessage,
		Prompt:      prompt,
		Temperature: n.cfg.Temperature,
		MaxTokens:   n.cfg.MaxTokens,
	}

	start := time.Now()
	resp, retries, err := callWithRetry(ctx, n.impl, req, n.cfg.retry())
	if err != nil {
		n.logger.Debug("generation failed",
			zap.String("adapter", n.target.Adapter),
			zap.String("model", n.target.Model),
			zap.Int("retries", retries),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s/%s: %w", n.target.Adapter, n.target.Model, err)
	}
	if resp == nil || resp.Artifact == nil {
		return nil, fmt.Errorf("%s/%s: adapter returned no artifact", n.target.Adapter, n.target.Model)
	}

	var usage adapter.Usage
	if resp.Usage != nil {
		usage = resp.Usage.Normalize()
	}

	art := resp.Artifact.
		WithMetadata(artifact.MetaRetries, strconv.Itoa(retries)).
		WithMetadata(artifact.MetaPromptTokens, strconv.Itoa(usage.PromptTokens)).
		WithMetadata(artifact.MetaCompletionTokens, strconv.Itoa(usage.CompletionTokens))
	if cost, ok := EstimateCost(n.cfg.Pricing, n.target.Adapter, n.target.Model, usage); ok {
		art = art.WithMetadata(artifact.MetaCostUSD, strconv.FormatFloat(cost.Amount, 'f', -1, 64))
	}

	n.logger.Debug("generation complete",
		zap.String("adapter", n.target.Adapter),
		zap.String("model", n.target.Model),
		zap.Int("retries", retries),
		zap.Int("total_tokens", usage.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return art, nil
}

// Run generates once and returns the text.
func (n *Node) Run(ctx context.Context, in Input) (Output, error) {
	art, err := n.Generate(ctx, in)
	if err != nil {
		return Output{}, err
	}
	return Output{Text: art.Content}, nil
}
