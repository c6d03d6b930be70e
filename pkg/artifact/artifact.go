package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Metadata keys set by the generation node.
const (
	MetaSampleIndex      = "sample_index"
	MetaRetries          = "retries"
	MetaPromptTokens     = "prompt_tokens"
	MetaCompletionTokens = "completion_tokens"
	MetaCostUSD          = "cost_usd"
)

// Artifact is one immutable generation result: the produced text plus the
// metadata the generating node attached to it.
type Artifact struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Adapter   string            `json:"adapter"`
	Model     string            `json:"model"`
	Prompt    string            `json:"prompt,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Hash      string            `json:"hash"`
}

// New creates a new Artifact with computed content hash.
func New(content, adapter, model, prompt string) *Artifact {
	a := &Artifact{
		ID:        uuid.NewString(),
		Content:   content,
		Adapter:   adapter,
		Model:     model,
		Prompt:    prompt,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now().UTC(),
	}
	a.Hash = ContentHash(content)
	return a
}

// WithMetadata returns a copy of the artifact with key set to value.
// The receiver is left untouched.
func (a *Artifact) WithMetadata(key, value string) *Artifact {
	cp := *a
	cp.Metadata = make(map[string]string, len(a.Metadata)+1)
	maps.Copy(cp.Metadata, a.Metadata)
	cp.Metadata[key] = value
	return &cp
}

// Meta returns a metadata value or "" when absent.
func (a *Artifact) Meta(key string) string {
	if a == nil || a.Metadata == nil {
		return ""
	}
	return a.Metadata[key]
}

// ContentHash is the short hex digest used to spot identical outputs.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}
