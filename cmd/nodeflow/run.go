package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/zen-systems/nodeflow/pkg/adapter"
	"github.com/zen-systems/nodeflow/pkg/config"
	"github.com/zen-systems/nodeflow/pkg/consistency"
	"github.com/zen-systems/nodeflow/pkg/evidence"
	"github.com/zen-systems/nodeflow/pkg/llm"
	"github.com/zen-systems/nodeflow/pkg/manifest"
	"github.com/zen-systems/nodeflow/pkg/youtube"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// runtimeDeps carries what nodes need from the application.
type runtimeDeps struct {
	adapters map[string]adapter.Adapter
	aliases  *config.ModelAliases
	defaults config.RouteTarget
	retry    config.RetryConfig
	pricing  config.PricingConfig
	logger   *zap.Logger
	fetcher  youtube.TranscriptFetcher
}

func newRuntimeDeps() (*runtimeDeps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	adapters, err := createAdapters(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapters: %w", err)
	}
	return &runtimeDeps{
		adapters: adapters,
		aliases:  aliases,
		defaults: cfg.Default,
		retry:    cfg.Retry,
		pricing:  cfg.Pricing,
		logger:   logger,
	}, nil
}

func (d *runtimeDeps) completeLLM(cfg llm.Config) llm.Config {
	if cfg.Adapter == "" && cfg.Model == "" {
		cfg.Adapter = d.defaults.Adapter
		cfg.Model = d.defaults.Model
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = d.retry.MaxRetries
	}
	if cfg.BaseBackoffMs == 0 {
		cfg.BaseBackoffMs = d.retry.BaseBackoffMs
	}
	if cfg.MaxBackoffMs == 0 {
		cfg.MaxBackoffMs = d.retry.MaxBackoffMs
	}
	if cfg.Pricing == nil {
		cfg.Pricing = d.pricing
	}
	return cfg
}

func (d *runtimeDeps) llmOptions(name string) []llm.Option {
	return []llm.Option{
		llm.WithAliases(d.aliases),
		llm.WithLogger(d.logger.With(zap.String("node", name))),
	}
}

func (d *runtimeDeps) transcriptOptions(name string) []youtube.NodeOption {
	opts := []youtube.NodeOption{youtube.WithLogger(d.logger.With(zap.String("node", name)))}
	if d.fetcher != nil {
		opts = append(opts, youtube.WithFetcher(d.fetcher))
	}
	return opts
}

// runManifest builds the node a manifest declares, runs it on input and
// returns its output together with the evidence record.
func runManifest(ctx context.Context, m *manifest.Manifest, input map[string]any, deps *runtimeDeps) (out any, record evidence.NodeRecord, err error) {
	record = evidence.NodeRecord{Name: m.Name, Type: m.Type, Input: input}
	start := time.Now()
	defer func() { record.DurationMillis = time.Since(start).Milliseconds() }()

	switch m.Type {
	case llm.Name:
		cfg, err := m.LLMConfig()
		if err != nil {
			return nil, record, err
		}
		n, err := llm.New(deps.completeLLM(cfg), deps.adapters, deps.llmOptions(m.Name)...)
		if err != nil {
			return nil, record, err
		}
		target := n.Target()
		record.Adapter, record.Model = target.Adapter, target.Model

		art, err := n.Generate(ctx, input)
		if err != nil {
			return nil, record, err
		}
		usage, cost := llm.Report(art)
		record.Output, record.OutputHash = art.Content, art.Hash
		record.Usage, record.Cost = &usage, &cost
		return llm.Output{Text: art.Content}, record, nil

	case consistency.NodeName:
		cfg, err := m.ConsistencyConfig()
		if err != nil {
			return nil, record, err
		}
		cfg.LLM = deps.completeLLM(cfg.LLM)
		n, err := consistency.NewNode(cfg, deps.adapters, deps.llmOptions(m.Name), consistency.WithLogger(deps.logger.With(zap.String("node", m.Name))))
		if err != nil {
			return nil, record, err
		}

		outcome, err := n.Sample(ctx, input)
		if err != nil {
			return nil, record, err
		}
		record.Adapter, record.Model = cfg.LLM.Adapter, cfg.LLM.Model
		if len(outcome.Samples) > 0 {
			record.Adapter, record.Model = outcome.Samples[0].Adapter, outcome.Samples[0].Model
		}
		record.Output = outcome.Text
		record.Selection = evidence.NewSelection(outcome, cfg.Sampling.Samples, cfg.Sampling.SimilarityThreshold)
		record.Usage, record.Cost = &outcome.Usage, &outcome.Cost
		return llm.Output{Text: outcome.Text}, record, nil

	case youtube.NodeName:
		cfg, err := m.TranscriptConfig()
		if err != nil {
			return nil, record, err
		}
		n, err := youtube.NewTranscriptNode(cfg, deps.transcriptOptions(m.Name)...)
		if err != nil {
			return nil, record, err
		}

		outcome := n.Fetch(ctx, input)
		if !outcome.OK() {
			record.Failure = outcome.Failure.Error()
			record.FailureReason = string(outcome.Failure.Reason)
		}
		transcript, err := n.Apply(outcome)
		if err != nil {
			return nil, record, err
		}
		record.Output = transcript.Transcript
		return transcript, record, nil

	default:
		return nil, record, fmt.Errorf("node %s: unknown type %q", m.Name, m.Type)
	}
}

func sampleCmd() *cobra.Command {
	var (
		adapterFlag  string
		modelFlag    string
		systemFlag   string
		temperature  float64
		samples      int
		threshold    float64
		maxParallel  int
		showClusters bool
		outFlag      string
		timeoutFlag  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sample [prompt]",
		Short: "Answer a prompt by self-consistency sampling",
		Long: `Sends the prompt to the model --samples times, groups similar answers and
prints the anchor of the largest group.

Answers join a group when their similarity to the group's first answer is at
least --threshold.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := consistency.DefaultNodeConfig()
			cfg.LLM.Adapter = adapterFlag
			cfg.LLM.Model = modelFlag
			cfg.LLM.SystemMessage = systemFlag
			if cmd.Flags().Changed("temperature") {
				cfg.LLM.Temperature = &temperature
			}
			cfg.Sampling = consistency.Config{Samples: samples, SimilarityThreshold: threshold, MaxParallel: maxParallel}

			m := &manifest.Manifest{Name: "sample", Type: consistency.NodeName}
			if err := encodeConfig(m, cfg); err != nil {
				return err
			}
			return execute(cmd.Context(), m, map[string]any{"prompt": args[0]}, outFlag, timeoutFlag, func(out any, record evidence.NodeRecord) error {
				fmt.Println(out.(llm.Output).Text)
				if showClusters && record.Selection != nil {
					return printClusters(record.Selection)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&adapterFlag, "adapter", "", "adapter (anthropic, openai, google, deepseek, mock)")
	cmd.Flags().StringVar(&modelFlag, "model", "", "model or alias")
	cmd.Flags().StringVar(&systemFlag, "system", "", "system message")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.7, "sampling temperature")
	cmd.Flags().IntVarP(&samples, "samples", "n", 5, "number of generations")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.8, "similarity threshold in [0, 1]")
	cmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "maximum concurrent generations (0 = all at once)")
	cmd.Flags().BoolVar(&showClusters, "show-clusters", false, "print the clusters to stderr")
	cmd.Flags().StringVar(&outFlag, "out", "", "evidence output base directory")
	cmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "overall timeout (0 disables)")

	return cmd
}

func transcriptCmd() *cobra.Command {
	var (
		languages   []string
		strict      bool
		outFlag     string
		timeoutFlag time.Duration
	)

	cmd := &cobra.Command{
		Use:   "transcript [url]",
		Short: "Print the caption transcript of a YouTube video",
		Long: `Fetches the captions of a YouTube video and prints them as one line.

Failures print an empty transcript unless --strict is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := map[string]any{"languages": languages}
			if strict {
				cfg["failure_policy"] = "propagate"
			}
			m := &manifest.Manifest{Name: "transcript", Type: youtube.NodeName, Config: cfg}
			return execute(cmd.Context(), m, map[string]any{"video_url": args[0]}, outFlag, timeoutFlag, func(out any, _ evidence.NodeRecord) error {
				fmt.Println(out.(youtube.Output).Transcript)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&languages, "lang", []string{"en"}, "preferred caption languages, most preferred first")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail instead of printing an empty transcript")
	cmd.Flags().StringVar(&outFlag, "out", "", "evidence output base directory")
	cmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "overall timeout (0 disables)")

	return cmd
}

func runCmd() *cobra.Command {
	var (
		manifestFile string
		inputFlag    string
		fieldFlags   []string
		outFlag      string
		timeoutFlag  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the node declared in a manifest",
		Long: `Runs a node manifest (YAML or TOML) and prints its output as JSON.

Input fields come from the manifest's input section, then --input (a JSON
object, or - for stdin), then --field key=value flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if manifestFile == "" {
				return fmt.Errorf("manifest file is required")
			}
			m, err := manifest.Load(manifestFile)
			if err != nil {
				return err
			}
			if err := m.Validate(); err != nil {
				return err
			}

			input, err := buildInput(m.Input, inputFlag, fieldFlags, os.Stdin)
			if err != nil {
				return err
			}
			return execute(cmd.Context(), m, input, outFlag, timeoutFlag, func(out any, _ evidence.NodeRecord) error {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}, withManifestFile(manifestFile))
		},
	}

	cmd.Flags().StringVarP(&manifestFile, "file", "f", "", "node manifest path (required)")
	cmd.Flags().StringVarP(&inputFlag, "input", "i", "", "input fields as a JSON object, - reads stdin")
	cmd.Flags().StringArrayVar(&fieldFlags, "field", nil, "input field as key=value (repeatable)")
	cmd.Flags().StringVar(&outFlag, "out", "", "evidence output base directory")
	cmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "overall timeout (0 disables)")

	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [manifest]",
		Short: "Validate a node manifest",
		Long:  "Validates a node manifest without running it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			if err := m.Validate(); err != nil {
				return err
			}
			fmt.Printf("Manifest is valid: %s (%s)\n", m.Name, m.Type)
			return nil
		},
	}
}

type executeOptions struct {
	manifestFile string
}

type executeOption func(*executeOptions)

func withManifestFile(path string) executeOption {
	return func(o *executeOptions) { o.manifestFile = path }
}

func execute(ctx context.Context, m *manifest.Manifest, input map[string]any, outDir string, timeout time.Duration, print func(any, evidence.NodeRecord) error, opts ...executeOption) error {
	var o executeOptions
	for _, opt := range opts {
		opt(&o)
	}

	deps, err := newRuntimeDeps()
	if err != nil {
		return err
	}
	defer func() { _ = deps.logger.Sync() }()

	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, record, runErr := runManifest(ctx, m, input, deps)
	if outDir != "" {
		runID := uuid.NewString()
		if err := writeEvidence(outDir, runID, o.manifestFile, m, input, record, runErr); err != nil {
			deps.logger.Error("failed to write evidence", zap.String("run_id", runID), zap.Error(err))
		} else {
			fmt.Fprintf(os.Stderr, "Evidence: %s\n", outDir+string(os.PathSeparator)+runID)
		}
	}
	if runErr != nil {
		return runErr
	}
	return print(out, record)
}

func writeEvidence(baseDir, runID, manifestFile string, m *manifest.Manifest, input map[string]any, record evidence.NodeRecord, runErr error) error {
	w, err := evidence.NewWriter(baseDir, runID)
	if err != nil {
		return err
	}
	if err := w.WriteRun(evidence.RunRecord{
		ID:           runID,
		Timestamp:    time.Now().UTC(),
		ManifestFile: manifestFile,
		NodeType:     m.Type,
		InputHash:    evidence.HashInput(input),
		ToolVersions: toolVersions(),
	}); err != nil {
		return err
	}

	if runErr != nil && record.Failure == "" {
		record.Failure = runErr.Error()
	}
	if m.Type == youtube.NodeName && record.Output != "" {
		ref, sha, err := w.WriteBlob("transcript", []byte(record.Output))
		if err != nil {
			return err
		}
		record.Output, record.OutputRef, record.OutputHash = "", ref, sha
	}
	return w.WriteNode(record)
}

// trackedModules are the dependencies whose versions go into run records.
var trackedModules = map[string]string{
	"github.com/openai/openai-go":            "openai-go",
	"github.com/anthropics/anthropic-sdk-go": "anthropic-sdk-go",
	"google.golang.org/genai":                "genai",
	"github.com/pmezard/go-difflib":          "go-difflib",
}

// toolVersions reports the Go runtime, this binary and the provider SDKs.
func toolVersions() map[string]string {
	versions := map[string]string{"go": runtime.Version()}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return versions
	}
	if info.Main.Version != "" {
		versions["nodeflow"] = info.Main.Version
	}
	for _, dep := range info.Deps {
		if name, ok := trackedModules[dep.Path]; ok {
			versions[name] = dep.Version
		}
	}
	return versions
}

// encodeConfig stores a typed node config in the manifest's key space.
func encodeConfig(m *manifest.Manifest, cfg any) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return yaml.Unmarshal(data, &m.Config)
}

// buildInput layers manifest defaults, a JSON object and key=value fields.
func buildInput(defaults map[string]any, inputFlag string, fields []string, stdin io.Reader) (map[string]any, error) {
	input := make(map[string]any, len(defaults))
	for k, v := range defaults {
		input[k] = v
	}

	if inputFlag != "" {
		raw := []byte(inputFlag)
		if inputFlag == "-" {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return nil, fmt.Errorf("failed to read stdin: %w", err)
			}
			raw = data
		}
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("input must be a JSON object: %w", err)
		}
		for k, v := range obj {
			input[k] = v
		}
	}

	for _, f := range fields {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --field %q, want key=value", f)
		}
		input[key] = value
	}
	return input, nil
}

func printClusters(sel *evidence.Selection) error {
	w := tabwriter.NewWriter(os.Stderr, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CLUSTER\tSIZE\tSAMPLES\tANCHOR")
	for i, c := range sel.Clusters {
		marker := ""
		if i == sel.WinnerIndex {
			marker = "*"
		}
		fmt.Fprintf(w, "%d%s\t%d\t%v\t%q\n", i, marker, len(c.Indices), c.Indices, truncate(c.Anchor, 60))
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
