package youtube

import (
	"context"
	"errors"
	"fmt"

	"github.com/zen-systems/nodeflow/pkg/node"
	"github.com/zen-systems/nodeflow/pkg/template"
	"go.uber.org/zap"
)

// NodeName is the transcript node type name.
const NodeName = "youtube_transcript_node"

// TranscriptFetcher fetches the transcript of a video URL.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, videoURL string) (string, error)
}

// NodeConfig configures a TranscriptNode.
type NodeConfig struct {
	VideoURLTemplate string             `yaml:"video_url_template" json:"video_url_template"`
	OutputSchema     node.Schema        `yaml:"output_schema" json:"output_schema"`
	HasFixedOutput   bool               `yaml:"has_fixed_output" json:"has_fixed_output"`
	Languages        []string           `yaml:"languages,omitempty" json:"languages,omitempty"`
	FailurePolicy    node.FailurePolicy `yaml:"failure_policy,omitempty" json:"failure_policy,omitempty"`
}

// DefaultNodeConfig returns a config with a fixed {transcript: string}
// output, English captions and failures suppressed.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		OutputSchema:   node.Schema{"transcript": "string"},
		HasFixedOutput: true,
		Languages:      []string{"en"},
		FailurePolicy:  node.PolicySuppress,
	}
}

// Input is the field map the URL template is rendered against.
type Input map[string]any

// Output is the fetched transcript.
type Output struct {
	Transcript string `json:"transcript"`
}

// Outcome is the result of Fetch: a transcript, or the failure that
// prevented one.
type Outcome struct {
	VideoURL   string        `json:"video_url,omitempty"`
	Transcript string        `json:"transcript"`
	Failure    *node.Failure `json:"-"`
}

// OK reports whether a transcript was fetched.
func (o Outcome) OK() bool {
	return o.Failure == nil
}

// TranscriptNode renders a video URL from its input and returns the video's
// caption transcript.
type TranscriptNode struct {
	cfg     NodeConfig
	fetcher TranscriptFetcher
	desc    node.Descriptor
	logger  *zap.Logger
}

// NodeOption configures a TranscriptNode.
type NodeOption func(*TranscriptNode)

// WithFetcher replaces the default fetcher.
func WithFetcher(f TranscriptFetcher) NodeOption {
	return func(n *TranscriptNode) {
		if f != nil {
			n.fetcher = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) NodeOption {
	return func(n *TranscriptNode) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewTranscriptNode builds the node. Without WithFetcher it uses a Fetcher
// for cfg.Languages.
func NewTranscriptNode(cfg NodeConfig, opts ...NodeOption) (*TranscriptNode, error) {
	if !cfg.FailurePolicy.Valid() {
		return nil, fmt.Errorf("%s: unknown failure_policy %q", NodeName, cfg.FailurePolicy)
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = node.PolicySuppress
	}
	if len(cfg.OutputSchema) == 0 {
		cfg.OutputSchema = node.Schema{"transcript": "string"}
	}

	fields, err := template.Fields(cfg.VideoURLTemplate)
	if err != nil {
		return nil, fmt.Errorf("%s: video_url_template: %w", NodeName, err)
	}
	input := node.Schema{}
	for _, f := range fields {
		input[f] = "string"
	}
	if len(input) == 0 {
		input["video_url"] = "string"
	}

	n := &TranscriptNode{
		cfg:    cfg,
		logger: zap.NewNop(),
		desc: node.Descriptor{
			Name:        NodeName,
			DisplayName: "YouTubeTranscript",
			Category:    "YouTube",
			Logo:        "/images/youtube.png",
			Input:       input,
			Output:      cfg.OutputSchema.Clone(),
			FixedOutput: cfg.HasFixedOutput,
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.fetcher == nil {
		n.fetcher = NewFetcher(WithLanguages(cfg.Languages...))
	}
	return n, nil
}

// Descriptor returns the node descriptor.
func (n *TranscriptNode) Descriptor() node.Descriptor {
	d := n.desc
	d.Input = d.Input.Clone()
	d.Output = d.Output.Clone()
	return d
}

// Fetch renders the URL and fetches the transcript. Every failure is
// returned tagged in the outcome; Fetch itself never fails.
func (n *TranscriptNode) Fetch(ctx context.Context, in Input) Outcome {
	videoURL, err := template.RenderOrFirstString(n.cfg.VideoURLTemplate, in, NodeName)
	if err != nil {
		return Outcome{Failure: &node.Failure{Reason: node.ReasonTemplate, Err: err}}
	}

	transcript, err := n.fetcher.FetchTranscript(ctx, videoURL)
	if err != nil {
		return Outcome{VideoURL: videoURL, Failure: &node.Failure{Reason: classify(err), Err: err}}
	}
	return Outcome{VideoURL: videoURL, Transcript: transcript}
}

// Run fetches the transcript and applies the failure policy.
func (n *TranscriptNode) Run(ctx context.Context, in Input) (Output, error) {
	return n.Apply(n.Fetch(ctx, in))
}

// Apply turns an outcome into the node output according to the failure
// policy: with suppress, a failure is logged and yields an empty transcript.
func (n *TranscriptNode) Apply(outcome Outcome) (Output, error) {
	if outcome.OK() {
		return Output{Transcript: outcome.Transcript}, nil
	}

	if n.cfg.FailurePolicy == node.PolicyPropagate {
		return Output{}, fmt.Errorf("%s: %w", NodeName, outcome.Failure)
	}
	n.logger.Error("failed to get transcript",
		zap.String("node", NodeName),
		zap.String("video_url", outcome.VideoURL),
		zap.String("reason", string(outcome.Failure.Reason)),
		zap.Error(outcome.Failure.Err),
	)
	return Output{Transcript: ""}, nil
}

func classify(err error) node.Reason {
	switch {
	case errors.Is(err, ErrInvalidURL):
		return node.ReasonInvalidURL
	case errors.Is(err, ErrVideoUnavailable):
		return node.ReasonVideoUnavailable
	case errors.Is(err, ErrCaptionsDisabled):
		return node.ReasonCaptionsDisabled
	case errors.Is(err, ErrNoTranscript):
		return node.ReasonNoTranscript
	case IsRateLimited(err):
		return node.ReasonRateLimited
	case errors.Is(err, ErrMalformedResponse):
		return node.ReasonParse
	default:
		return node.ReasonNetwork
	}
}
