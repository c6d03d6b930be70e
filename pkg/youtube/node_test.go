package youtube

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/zen-systems/nodeflow/pkg/node"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubFetcher struct {
	transcript string
	err        error
	urls       []string
}

func (s *stubFetcher) FetchTranscript(_ context.Context, videoURL string) (string, error) {
	s.urls = append(s.urls, videoURL)
	if _, err := ExtractVideoID(videoURL); err != nil {
		return "", err
	}
	return s.transcript, s.err
}

func TestTranscriptNodeRendersTemplate(t *testing.T) {
	stub := &stubFetcher{transcript: "hello world"}
	cfg := DefaultNodeConfig()
	cfg.VideoURLTemplate = "https://youtu.be/{{ .video_id }}"

	n, err := NewTranscriptNode(cfg, WithFetcher(stub))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	out, err := n.Run(context.Background(), Input{"video_id": "dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Transcript != "hello world" {
		t.Errorf("unexpected transcript %q", out.Transcript)
	}
	if len(stub.urls) != 1 || stub.urls[0] != "https://youtu.be/dQw4w9WgXcQ" {
		t.Errorf("unexpected urls %v", stub.urls)
	}
}

func TestTranscriptNodeBlankTemplateUsesFirstString(t *testing.T) {
	stub := &stubFetcher{transcript: "ok"}
	n, err := NewTranscriptNode(DefaultNodeConfig(), WithFetcher(stub))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	if _, err := n.Run(context.Background(), Input{"url": "https://youtu.be/dQw4w9WgXcQ"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if stub.urls[0] != "https://youtu.be/dQw4w9WgXcQ" {
		t.Errorf("unexpected url %q", stub.urls[0])
	}
	if d := n.Descriptor(); d.Input["video_url"] != "string" {
		t.Errorf("expected video_url input, got %v", d.Input)
	}
}

func TestTranscriptNodeSuppressesFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	stub := &stubFetcher{}

	n, err := NewTranscriptNode(DefaultNodeConfig(), WithFetcher(stub), WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	out, err := n.Run(context.Background(), Input{"url": "not a youtube url"})
	if err != nil {
		t.Fatalf("expected suppressed error, got %v", err)
	}
	if out.Transcript != "" {
		t.Errorf("expected empty transcript, got %q", out.Transcript)
	}

	entries := logs.FilterMessage("failed to get transcript").All()
	if len(entries) != 1 {
		t.Fatalf("expected one error log, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["reason"]; got != string(node.ReasonInvalidURL) {
		t.Errorf("unexpected reason %v", got)
	}
}

func TestTranscriptNodeFetchTagsFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		in   Input
		want node.Reason
	}{
		{name: "template", in: Input{"n": 1}, want: node.ReasonTemplate},
		{name: "invalid url", in: Input{"url": "https://example.com"}, want: node.ReasonInvalidURL},
		{name: "captions disabled", err: fmt.Errorf("video x: %w", ErrCaptionsDisabled), want: node.ReasonCaptionsDisabled},
		{name: "unavailable", err: ErrVideoUnavailable, want: node.ReasonVideoUnavailable},
		{name: "no transcript", err: ErrNoTranscript, want: node.ReasonNoTranscript},
		{name: "rate limited", err: ErrRateLimited, want: node.ReasonRateLimited},
		{name: "parse", err: ErrMalformedResponse, want: node.ReasonParse},
		{name: "network", err: &StatusError{URL: "u", Code: 503}, want: node.ReasonNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubFetcher{err: tt.err}
			n, err := NewTranscriptNode(DefaultNodeConfig(), WithFetcher(stub))
			if err != nil {
				t.Fatalf("new node: %v", err)
			}
			in := tt.in
			if in == nil {
				in = Input{"url": "https://youtu.be/dQw4w9WgXcQ"}
			}
			outcome := n.Fetch(context.Background(), in)
			if outcome.OK() {
				t.Fatal("expected failure")
			}
			if outcome.Failure.Reason != tt.want {
				t.Errorf("reason = %s, want %s", outcome.Failure.Reason, tt.want)
			}
		})
	}
}

func TestTranscriptNodePropagatePolicy(t *testing.T) {
	cfg := DefaultNodeConfig()
	cfg.FailurePolicy = node.PolicyPropagate
	n, err := NewTranscriptNode(cfg, WithFetcher(&stubFetcher{err: ErrCaptionsDisabled}))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	_, err = n.Run(context.Background(), Input{"url": "https://youtu.be/dQw4w9WgXcQ"})
	var failure *node.Failure
	if !errors.As(err, &failure) || failure.Reason != node.ReasonCaptionsDisabled {
		t.Fatalf("expected tagged failure, got %v", err)
	}
	if !errors.Is(err, ErrCaptionsDisabled) {
		t.Error("failure should wrap the fetch error")
	}
}

func TestTranscriptNodeDescriptor(t *testing.T) {
	n, err := NewTranscriptNode(DefaultNodeConfig(), WithFetcher(&stubFetcher{}))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	d := n.Descriptor()
	if d.Name != NodeName || d.DisplayName != "YouTubeTranscript" || d.Category != "YouTube" || d.Logo != "/images/youtube.png" {
		t.Errorf("unexpected descriptor %+v", d)
	}
	if !d.FixedOutput || d.Output["transcript"] != "string" {
		t.Errorf("unexpected output schema %+v", d)
	}
}

func TestNewTranscriptNodeRejectsUnknownPolicy(t *testing.T) {
	cfg := DefaultNodeConfig()
	cfg.FailurePolicy = "ignore"
	if _, err := NewTranscriptNode(cfg); err == nil {
		t.Fatal("expected error")
	}
}

func TestTranscriptNodeEndToEnd(t *testing.T) {
	yt := newFakeYouTube(t, watchPage("en"))
	cfg := DefaultNodeConfig()
	cfg.VideoURLTemplate = "https://www.youtube.com/watch?v={{ .id }}"

	n, err := NewTranscriptNode(cfg, WithFetcher(yt.fetcher()))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	out, err := n.Run(context.Background(), Input{"id": "dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Transcript == "" {
		t.Error("expected a transcript")
	}
}
