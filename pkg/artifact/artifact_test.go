package artifact

import "testing"

func TestWithMetadataDoesNotMutateOriginal(t *testing.T) {
	a := New("answer", "mock", "mock-1", "question")
	b := a.WithMetadata(MetaSampleIndex, "2")

	if a.Meta(MetaSampleIndex) != "" {
		t.Fatalf("original artifact was mutated: %v", a.Metadata)
	}
	if b.Meta(MetaSampleIndex) != "2" {
		t.Fatalf("expected sample index on copy, got %q", b.Meta(MetaSampleIndex))
	}
	if a.ID != b.ID || a.Hash != b.Hash {
		t.Fatalf("copy should keep identity: %s/%s vs %s/%s", a.ID, a.Hash, b.ID, b.Hash)
	}
}

func TestContentHashIgnoresOrigin(t *testing.T) {
	a := New("same text", "openai", "gpt", "p1")
	b := New("same text", "anthropic", "claude", "p2")
	if a.Hash != b.Hash {
		t.Fatalf("expected equal hashes for equal content")
	}
	if a.ID == b.ID {
		t.Fatalf("expected distinct IDs")
	}
}
