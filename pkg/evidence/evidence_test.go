package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/zen-systems/nodeflow/pkg/artifact"
	"github.com/zen-systems/nodeflow/pkg/consistency"
)

func TestEvidenceWriter(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir, "run-123")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	run := RunRecord{
		ID:           "run-123",
		Timestamp:    time.Now().UTC(),
		ManifestFile: "node.yaml",
		NodeType:     "llm_node",
		InputHash:    HashInput(map[string]any{"q": "x"}),
	}
	if err := writer.WriteRun(run); err != nil {
		t.Fatalf("write run: %v", err)
	}

	record := NodeRecord{
		Name:    "answer",
		Type:    "llm_node",
		Adapter: "mock",
		Model:   "mock-1",
		Output:  "ok",
	}
	if err := writer.WriteNode(record); err != nil {
		t.Fatalf("write node: %v", err)
	}

	if _, err := os.Stat(filepath.Join(writer.RunDir(), "run.json")); err != nil {
		t.Fatalf("missing run.json: %v", err)
	}
	if _, err := os.Stat(filepath.Join(writer.RunDir(), "nodes", "answer.json")); err != nil {
		t.Fatalf("missing node file: %v", err)
	}

	if runtime.GOOS != "windows" {
		assertPerm(t, writer.RunDir(), 0700)
		assertPerm(t, filepath.Join(writer.RunDir(), "nodes"), 0700)
		assertPerm(t, filepath.Join(writer.RunDir(), "blobs"), 0700)
		assertPerm(t, filepath.Join(writer.RunDir(), "run.json"), 0600)
		assertPerm(t, filepath.Join(writer.RunDir(), "nodes", "answer.json"), 0600)
	}
}

func TestNewWriterRequiresArguments(t *testing.T) {
	if _, err := NewWriter("", "run"); err == nil {
		t.Error("expected error for empty base dir")
	}
	if _, err := NewWriter(t.TempDir(), ""); err == nil {
		t.Error("expected error for empty run id")
	}
}

func TestWriteNodeSelection(t *testing.T) {
	gen := consistency.GeneratorFunc[string](func(ctx context.Context, _ string) (*artifact.Artifact, error) {
		texts := []string{"Paris.", "Paris.", "Lyon."}
		return artifact.New(texts[consistency.SampleIndex(ctx)], "mock", "mock-1", "q"), nil
	})
	outcome, err := consistency.NewSampler[string](gen).Sample(context.Background(), "q", 3, 0.8)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}

	writer, err := NewWriter(t.TempDir(), "run-sel")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	record := NodeRecord{
		Name:      "capital",
		Type:      consistency.NodeName,
		Output:    outcome.Text,
		Selection: NewSelection(outcome, 3, 0.8),
	}
	if err := writer.WriteNode(record); err != nil {
		t.Fatalf("write node: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(writer.RunDir(), "nodes", "capital.json"))
	if err != nil {
		t.Fatalf("read node: %v", err)
	}
	var got NodeRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode node: %v", err)
	}
	sel := got.Selection
	if sel == nil || !sel.Found || sel.WinnerIndex != 0 || sel.WinnerSize != 2 {
		t.Fatalf("unexpected selection %+v", sel)
	}
	if len(sel.Clusters) != 2 || len(sel.Generations) != 3 {
		t.Fatalf("expected 2 clusters and 3 generations, got %+v", sel)
	}
	if sel.Generations[2].Metadata[artifact.MetaSampleIndex] != "2" {
		t.Errorf("sample index metadata missing: %+v", sel.Generations[2])
	}
}

func TestWriteBlob(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir, "run1")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	content := []byte("hello")
	sum := sha256.Sum256(content)
	expectedSha := hex.EncodeToString(sum[:])

	ref, sha, err := writer.WriteBlob("transcript", content)
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}
	if sha != expectedSha {
		t.Fatalf("sha mismatch: %s", sha)
	}

	blobPath := filepath.Join(writer.RunDir(), ref)
	data, err := os.ReadFile(blobPath)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(data) != string(content) {
		t.Fatalf("content mismatch: %q", string(data))
	}
	if runtime.GOOS != "windows" {
		assertPerm(t, blobPath, 0600)
	}

	ref2, sha2, err := writer.WriteBlob("transcript", content)
	if err != nil {
		t.Fatalf("write blob again: %v", err)
	}
	if ref2 != ref || sha2 != sha {
		t.Fatalf("expected same ref and sha")
	}
}

func TestWriteBlobKindSanitization(t *testing.T) {
	writer, err := NewWriter(t.TempDir(), "run2")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	ref, _, err := writer.WriteBlob("Transcript 123/../", []byte("x"))
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}
	if !strings.HasPrefix(ref, "blobs/transcript123-") {
		t.Fatalf("unexpected ref: %s", ref)
	}
	if strings.Count(ref, "/") != 1 {
		t.Fatalf("unexpected path separators in ref: %s", ref)
	}
}

func TestWriteBlobKindFallback(t *testing.T) {
	writer, err := NewWriter(t.TempDir(), "run3")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	ref, _, err := writer.WriteBlob("!!!", []byte("y"))
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}
	if !strings.HasPrefix(ref, "blobs/blob-") {
		t.Fatalf("expected blob kind fallback in ref: %s", ref)
	}
}

func assertPerm(t *testing.T, path string, expected os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if info.Mode().Perm() != expected {
		t.Fatalf("expected %s mode %o, got %o", path, expected, info.Mode().Perm())
	}
}
