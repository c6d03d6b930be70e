package consistency

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zen-systems/nodeflow/pkg/adapter"
	"github.com/zen-systems/nodeflow/pkg/artifact"
	"github.com/zen-systems/nodeflow/pkg/config"
	"github.com/zen-systems/nodeflow/pkg/llm"
)

func newTestNode(t *testing.T, mock *adapter.MockAdapter, sampling Config) *SelfConsistencyNode {
	t.Helper()
	cfg := DefaultNodeConfig()
	cfg.LLM.Adapter = "mock"
	cfg.LLM.Model = "mock-1"
	cfg.LLM.UserMessage = "Q: {{ .question }}"
	cfg.LLM.Pricing = config.PricingConfig{"mock": {"default": {PromptPer1K: 1, CompletionPer1K: 1}}}
	cfg.Sampling = sampling

	n, err := NewNode(cfg, map[string]adapter.Adapter{"mock": mock}, nil)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return n
}

func TestNodeRunReturnsConsensus(t *testing.T) {
	mock := adapter.NewMockAdapterWithResponses(map[string]string{"Q: 6*7?": "42"}, "")
	mock.Usage = &adapter.Usage{PromptTokens: 100, CompletionTokens: 100}
	n := newTestNode(t, mock, Config{Samples: 3, SimilarityThreshold: 0.8})

	out, err := n.Run(context.Background(), llm.Input{"question": "6*7?"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Text != "42" {
		t.Errorf("expected 42, got %q", out.Text)
	}
	if got := len(mock.Requests()); got != 3 {
		t.Errorf("expected 3 adapter calls, got %d", got)
	}
}

func TestNodeSampleAggregatesUsage(t *testing.T) {
	mock := adapter.NewMockAdapterWithResponses(map[string]string{"Q: x": "y"}, "")
	mock.Usage = &adapter.Usage{PromptTokens: 100, CompletionTokens: 50}
	n := newTestNode(t, mock, Config{Samples: 4, SimilarityThreshold: 0.8})

	outcome, err := n.Sample(context.Background(), llm.Input{"question": "x"})
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if outcome.Usage.TotalTokens != 600 {
		t.Errorf("expected 600 total tokens, got %d", outcome.Usage.TotalTokens)
	}
	if math.Abs(outcome.Cost.Amount-0.6) > 1e-9 || !outcome.Cost.IsEstimate {
		t.Errorf("unexpected cost %+v", outcome.Cost)
	}
}

func TestNodeZeroSamples(t *testing.T) {
	mock := adapter.NewMockAdapter()
	n := newTestNode(t, mock, Config{Samples: 0, SimilarityThreshold: 0.8})

	out, err := n.Run(context.Background(), llm.Input{"question": "anything"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Text != NoConsistentAnswer {
		t.Errorf("expected sentinel, got %q", out.Text)
	}
	if len(mock.Requests()) != 0 {
		t.Error("no adapter calls expected")
	}
}

func TestNodePropagatesAdapterError(t *testing.T) {
	mock := adapter.NewMockAdapter()
	mock.Err = errors.New("provider down")
	n := newTestNode(t, mock, Config{Samples: 3, SimilarityThreshold: 0.8})

	if _, err := n.Run(context.Background(), llm.Input{"question": "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNodeDescriptor(t *testing.T) {
	n := newTestNode(t, adapter.NewMockAdapter(), DefaultConfig())
	d := n.Descriptor()
	if d.Name != NodeName || d.DisplayName != "SelfConsistency" || d.Category != "LLM" {
		t.Errorf("unexpected descriptor %+v", d)
	}
	if d.Input["question"] != "string" || d.Output["text"] != "string" {
		t.Errorf("unexpected schemas in %+v", d)
	}
}

func TestNewNodeValidatesSampling(t *testing.T) {
	cfg := DefaultNodeConfig()
	cfg.LLM.Adapter = "mock"
	cfg.Sampling.SimilarityThreshold = 2
	if _, err := NewNode(cfg, map[string]adapter.Adapter{"mock": adapter.NewMockAdapter()}, nil); err == nil {
		t.Fatal("expected validation error")
	}
}

// peakAdapter records the highest number of concurrent Generate calls.
type peakAdapter struct {
	inFlight, peak atomic.Int32
}

func (a *peakAdapter) Name() string     { return "peak" }
func (a *peakAdapter) Models() []string { return []string{"peak-1"} }

func (a *peakAdapter) Generate(_ context.Context, req adapter.Request) (*adapter.Response, error) {
	n := a.inFlight.Add(1)
	defer a.inFlight.Add(-1)
	for {
		p := a.peak.Load()
		if n <= p || a.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return &adapter.Response{Artifact: artifact.New("same", a.Name(), req.Model, req.Prompt)}, nil
}

func TestNewNodeCallerMaxParallelWins(t *testing.T) {
	impl := &peakAdapter{}
	cfg := DefaultNodeConfig()
	cfg.LLM.Adapter = "peak"
	cfg.LLM.Model = "peak-1"
	cfg.Sampling = Config{Samples: 4, SimilarityThreshold: 0.8}

	n, err := NewNode(cfg, map[string]adapter.Adapter{"peak": impl}, nil, WithMaxParallel(1))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	if _, err := n.Run(context.Background(), llm.Input{"q": "hi"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := impl.peak.Load(); got != 1 {
		t.Errorf("expected 1 call in flight, saw %d", got)
	}
}

func TestNewNodeLeavesCallerOptionsUntouched(t *testing.T) {
	opts := make([]Option, 1, 2)
	opts[0] = WithLogger(nil)

	cfg := DefaultNodeConfig()
	cfg.LLM.Adapter = "mock"
	cfg.Sampling.MaxParallel = 3
	if _, err := NewNode(cfg, map[string]adapter.Adapter{"mock": adapter.NewMockAdapter()}, nil, opts...); err != nil {
		t.Fatalf("new node: %v", err)
	}
	if opts[:2][1] != nil {
		t.Error("NewNode wrote into the caller's option slice")
	}
}
