package llm

import (
	"context"
	"testing"
	"time"

	"github.com/zen-systems/nodeflow/pkg/adapter"
)

func TestComputeBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 200 * time.Millisecond},
		{attempt: 1, want: 400 * time.Millisecond},
		{attempt: 3, want: 1600 * time.Millisecond},
		{attempt: 4, want: 2000 * time.Millisecond},
		{attempt: 10, want: 2000 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := computeBackoff(200, 2000, tt.attempt); got != tt.want {
			t.Errorf("computeBackoff(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestSleepWithContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepWithContext(ctx, time.Hour); err == nil {
		t.Fatal("expected context error")
	}
}

func TestEstimateCostWithoutPricing(t *testing.T) {
	cost, ok := EstimateCost(nil, "openai", "gpt-4o", usageOf(100, 100))
	if ok || cost.Amount != 0 || cost.Currency != "USD" {
		t.Errorf("unexpected cost %+v ok=%v", cost, ok)
	}
}

func usageOf(prompt, completion int) adapter.Usage {
	return adapter.Usage{PromptTokens: prompt, CompletionTokens: completion}.Normalize()
}
