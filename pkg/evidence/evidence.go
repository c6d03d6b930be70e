// Package evidence writes an on-disk record of a node run: run metadata, the
// node's result with every sample and cluster, and content-addressed blobs.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zen-systems/nodeflow/pkg/adapter"
	"github.com/zen-systems/nodeflow/pkg/artifact"
	"github.com/zen-systems/nodeflow/pkg/consistency"
)

// RunRecord captures run-level metadata.
type RunRecord struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	ManifestFile string            `json:"manifest_file,omitempty"`
	NodeType     string            `json:"node_type"`
	InputHash    string            `json:"input_hash"`
	ToolVersions map[string]string `json:"tool_versions,omitempty"`
}

// NodeRecord captures the result of one node execution.
type NodeRecord struct {
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	Adapter        string         `json:"adapter,omitempty"`
	Model          string         `json:"model,omitempty"`
	Input          map[string]any `json:"input,omitempty"`
	Output         string         `json:"output,omitempty"`
	OutputHash     string         `json:"output_hash,omitempty"`
	OutputRef      string         `json:"output_ref,omitempty"`
	Selection      *Selection     `json:"selection,omitempty"`
	Usage          *adapter.Usage `json:"usage,omitempty"`
	Cost           *adapter.Cost  `json:"cost,omitempty"`
	Failure        string         `json:"failure,omitempty"`
	FailureReason  string         `json:"failure_reason,omitempty"`
	DurationMillis int64          `json:"duration_ms"`
}

// Selection records how a self-consistency node reached its answer.
type Selection struct {
	Samples     int             `json:"samples"`
	Threshold   float64         `json:"similarity_threshold"`
	Found       bool            `json:"found"`
	WinnerIndex int             `json:"winner_index"`
	WinnerSize  int             `json:"winner_size"`
	Clusters    []ClusterRecord `json:"clusters"`
	Generations []SampleRecord  `json:"generations"`
}

// ClusterRecord captures one cluster by sample index.
type ClusterRecord struct {
	Anchor  string `json:"anchor"`
	Indices []int  `json:"indices"`
}

// SampleRecord captures one generation.
type SampleRecord struct {
	Index    int               `json:"index"`
	ID       string            `json:"id"`
	Hash     string            `json:"hash"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewSelection converts a sampling outcome into its record.
func NewSelection(outcome *consistency.Outcome, samples int, threshold float64) *Selection {
	sel := &Selection{
		Samples:     samples,
		Threshold:   threshold,
		Found:       outcome.Found,
		WinnerIndex: outcome.WinnerIndex,
	}
	if winner, ok := outcome.Winner(); ok {
		sel.WinnerSize = winner.Size()
	}
	for _, c := range outcome.Clusters {
		sel.Clusters = append(sel.Clusters, ClusterRecord{Anchor: c.Anchor(), Indices: c.Indices})
	}
	for i, s := range outcome.Samples {
		sel.Generations = append(sel.Generations, sampleRecord(i, s))
	}
	return sel
}

func sampleRecord(i int, a *artifact.Artifact) SampleRecord {
	return SampleRecord{
		Index:    i,
		ID:       a.ID,
		Hash:     a.Hash,
		Content:  a.Content,
		Metadata: a.Metadata,
	}
}

// Writer writes evidence bundles to disk.
type Writer struct {
	baseDir string
	runDir  string
}

// NewWriter creates a new evidence writer rooted at baseDir/runID.
func NewWriter(baseDir, runID string) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	runDir := filepath.Join(baseDir, runID)
	for _, dir := range []string{runDir, filepath.Join(runDir, "nodes"), filepath.Join(runDir, "blobs")} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
		if err := os.Chmod(dir, 0700); err != nil {
			return nil, err
		}
	}

	return &Writer{baseDir: baseDir, runDir: runDir}, nil
}

// RunDir returns the run directory path.
func (w *Writer) RunDir() string {
	return w.runDir
}

// WriteRun writes run metadata to run.json.
func (w *Writer) WriteRun(record RunRecord) error {
	return writeJSON(filepath.Join(w.runDir, "run.json"), record)
}

// WriteNode writes a node record to nodes/<name>.json.
func (w *Writer) WriteNode(record NodeRecord) error {
	name := sanitize(record.Name)
	if name == "" {
		return fmt.Errorf("node name is required")
	}
	return writeJSON(filepath.Join(w.runDir, "nodes", name+".json"), record)
}

// WriteBlob stores content under blobs/<kind>-<sha256>.txt and returns the
// run-relative reference and the digest. Writing the same content twice
// yields the same reference.
func (w *Writer) WriteBlob(kind string, content []byte) (string, string, error) {
	sum := sha256.Sum256(content)
	sha := hex.EncodeToString(sum[:])

	kind = sanitize(kind)
	if kind == "" {
		kind = "blob"
	}
	ref := "blobs/" + kind + "-" + sha + ".txt"
	path := filepath.Join(w.runDir, filepath.FromSlash(ref))
	if _, err := os.Stat(path); err == nil {
		return ref, sha, nil
	}
	if err := os.WriteFile(path, content, 0600); err != nil {
		return "", "", err
	}
	return ref, sha, nil
}

// HashInput returns the sha256 of the JSON encoding of input.
func HashInput(input map[string]any) string {
	data, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sanitize(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
