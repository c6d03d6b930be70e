// Package consistency implements self-consistency sampling: run the same
// generation several times, group similar answers and keep the majority.
package consistency

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/zen-systems/nodeflow/pkg/adapter"
	"github.com/zen-systems/nodeflow/pkg/artifact"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NoConsistentAnswer is returned as the text when no sample was produced.
const NoConsistentAnswer = "No consistent answer found."

// Generator produces one result for a request. It must be safe for
// concurrent use.
type Generator[Req any] interface {
	Generate(ctx context.Context, req Req) (*artifact.Artifact, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc[Req any] func(ctx context.Context, req Req) (*artifact.Artifact, error)

// Generate calls f.
func (f GeneratorFunc[Req]) Generate(ctx context.Context, req Req) (*artifact.Artifact, error) {
	return f(ctx, req)
}

// Outcome is the result of one sampling run.
type Outcome struct {
	Text  string `json:"text"`
	Found bool   `json:"found"`

	// Samples are in issue order.
	Samples  []*artifact.Artifact `json:"samples,omitempty"`
	Clusters []Cluster            `json:"clusters,omitempty"`

	// WinnerIndex is the position of the winning cluster, -1 when not found.
	WinnerIndex int `json:"winner_index"`

	Usage adapter.Usage `json:"usage"`
	Cost  adapter.Cost  `json:"cost"`
}

// Winner returns the winning cluster, or false for the sentinel outcome.
func (o *Outcome) Winner() (Cluster, bool) {
	if o == nil || !o.Found || o.WinnerIndex < 0 || o.WinnerIndex >= len(o.Clusters) {
		return Cluster{}, false
	}
	return o.Clusters[o.WinnerIndex], true
}

type sampleIndexKey struct{}

// SampleIndex returns the issue index of the sample being generated under
// ctx, or -1 outside a sampling run.
func SampleIndex(ctx context.Context) int {
	if i, ok := ctx.Value(sampleIndexKey{}).(int); ok {
		return i
	}
	return -1
}

func withSampleIndex(ctx context.Context, i int) context.Context {
	return context.WithValue(ctx, sampleIndexKey{}, i)
}

// Sampler fans one request out to a generator and picks the consensus answer.
type Sampler[Req any] struct {
	gen         Generator[Req]
	sim         SimilarityFunc
	maxParallel int
	logger      *zap.Logger
}

// Option configures a Sampler.
type Option func(*options)

type options struct {
	sim         SimilarityFunc
	maxParallel int
	logger      *zap.Logger
}

// WithSimilarity replaces the default similarity metric.
func WithSimilarity(sim SimilarityFunc) Option {
	return func(o *options) {
		if sim != nil {
			o.sim = sim
		}
	}
}

// WithMaxParallel caps the number of in-flight generations. Zero or less
// means unbounded.
func WithMaxParallel(n int) Option {
	return func(o *options) {
		o.maxParallel = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewSampler creates a sampler over gen.
func NewSampler[Req any](gen Generator[Req], opts ...Option) *Sampler[Req] {
	o := options{sim: Similarity, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Sampler[Req]{
		gen:         gen,
		sim:         o.sim,
		maxParallel: o.maxParallel,
		logger:      o.logger,
	}
}

// Sample issues samples concurrent generations of req, clusters the texts at
// threshold and returns the anchor of the largest cluster.
//
// The first failing generation cancels the rest and its error is returned.
// With samples == 0 the outcome carries NoConsistentAnswer and Found == false.
func (s *Sampler[Req]) Sample(ctx context.Context, req Req, samples int, threshold float64) (*Outcome, error) {
	if samples < 0 {
		return nil, fmt.Errorf("samples must be >= 0, got %d", samples)
	}
	if !(threshold >= 0 && threshold <= 1) {
		return nil, fmt.Errorf("similarity threshold must be in [0, 1], got %g", threshold)
	}
	if s.gen == nil {
		return nil, fmt.Errorf("sampler has no generator")
	}

	start := time.Now()
	results := make([]*artifact.Artifact, samples)

	g, gctx := errgroup.WithContext(ctx)
	if s.maxParallel > 0 {
		g.SetLimit(s.maxParallel)
	}
	for i := 0; i < samples; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.gen.Generate(withSampleIndex(gctx, i), req)
			if err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			if res == nil {
				return fmt.Errorf("sample %d: generator returned no result", i)
			}
			results[i] = res.WithMetadata(artifact.MetaSampleIndex, strconv.Itoa(i))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("sampling aborted", zap.Int("samples", samples), zap.Error(err))
		return nil, err
	}

	texts := make([]string, samples)
	for i, res := range results {
		texts[i] = res.Content
	}
	clusters := ClusterTexts(texts, threshold, s.sim)

	outcome := &Outcome{
		Text:        NoConsistentAnswer,
		Samples:     results,
		Clusters:    clusters,
		WinnerIndex: winnerIndex(clusters),
	}
	if outcome.WinnerIndex >= 0 {
		outcome.Text = clusters[outcome.WinnerIndex].Anchor()
		outcome.Found = true
	}

	winner, _ := outcome.Winner()
	s.logger.Debug("sampling complete",
		zap.Int("samples", samples),
		zap.Float64("threshold", threshold),
		zap.Int("clusters", len(clusters)),
		zap.Int("winner_size", winner.Size()),
		zap.Duration("duration", time.Since(start)),
	)
	return outcome, nil
}
