package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/diligence-engine/internal/benchmarks"
	"github.com/jonathan/diligence-engine/internal/config"
	"github.com/jonathan/diligence-engine/internal/extraction"
	"github.com/jonathan/diligence-engine/internal/llm"
	"github.com/jonathan/diligence-engine/internal/observability"
	"github.com/jonathan/diligence-engine/internal/pipeline"
	"github.com/jonathan/diligence-engine/internal/stages"
	"github.com/jonathan/diligence-engine/internal/telemetry"
	"github.com/jonathan/diligence-engine/internal/types"
)

var (
	assessInputPath  string
	assessConfigPath string
	assessQuick      bool
	assessStrict     bool
	assessSkip       []string
	assessVerbose    bool
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Run a due-diligence assessment",
	Long:  `Run the full assessment pipeline against an input JSON file describing the technology, its claims, and supporting document excerpts.`,
	RunE:  runAssess,
}

func init() {
	assessCmd.Flags().StringVar(&assessInputPath, "input", "", "Path to the assessment input JSON (required)")
	assessCmd.Flags().StringVar(&assessConfigPath, "config", "", "Path to a JSON config file")
	assessCmd.Flags().BoolVar(&assessQuick, "quick", false, "Run the reduced quick-screen pipeline")
	assessCmd.Flags().BoolVar(&assessStrict, "strict", false, "Flag implausible cost aggregates instead of correcting them")
	assessCmd.Flags().StringSliceVar(&assessSkip, "skip", nil, "Stage ids to skip")
	assessCmd.Flags().BoolVar(&assessVerbose, "verbose", false, "Print detailed progress and run stats")
	assessCmd.MarkFlagRequired("input") //nolint:errcheck
	rootCmd.AddCommand(assessCmd)
}

func runAssess(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := resolveConfig(assessConfigPath)
	if err != nil {
		return err
	}
	if assessStrict {
		cfg.CorrectionMode = string(benchmarks.ModeStrict)
	}
	if len(assessSkip) > 0 {
		cfg.SkipStageIDs = assessSkip
	}
	if assessVerbose {
		cfg.Verbose = true
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	input, err := loadInput(assessInputPath)
	if err != nil {
		return err
	}
	if err := config.ValidateInput(input); err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger, cleanup := observability.SetupLogger(cfg.LogFile, level)
	defer cleanup() //nolint:errcheck

	client, err := llm.NewClient(ctx, llm.DefaultConfig(), cfg.APIKey)
	if err != nil {
		return fmt.Errorf("generation client: %w", err)
	}
	defer client.Close() //nolint:errcheck

	runID := uuid.NewString()
	recorder := observability.NewRecorder(runID, input.AssessmentID)
	extractor := extraction.NewExtractor(extraction.DefaultTable())
	extractor.OnAttempt = recorder.Extraction

	env := &stages.Env{
		Client:     client,
		Benchmarks: benchmarks.MustDefault(),
		Extractor:  extractor,
		Recorder:   recorder,
		Logger:     logger.With("assessment", input.AssessmentID),
		GenRetries: cfg.GenRetries,
		Mode:       benchmarks.CorrectionMode(cfg.CorrectionMode),
	}

	stageList := stages.DefaultStages()
	if assessQuick || cfg.QuickScreen {
		stageList = stages.QuickScreenStages()
	}
	runner := pipeline.NewRunner(env, pipeline.Options{
		Stages:          stageList,
		PreChecks:       stages.DefaultPreChecks(),
		SkipStageIDs:    cfg.SkipStageIDs,
		ContinueOnError: cfg.ContinuePastFailures(),
		MaxRetries:      cfg.MaxRetries,
		RunID:           runID,
	})

	result := runner.Run(ctx, input, func(progress float64, message string) {
		fmt.Printf("[%5.1f%%] %s\n", progress, message)
	})

	printer := observability.NewPrinter(os.Stdout)
	printer.PrintResult(result)
	if cfg.Verbose {
		record := recorder.Snapshot()
		printer.PrintStageStats(record)
		printer.PrintSanityTally(record.Sanity)
		printer.PrintFragments(result.Fragments)
	}

	if cfg.TelemetryDSN != "" {
		store, err := telemetry.Connect(ctx, cfg.TelemetryDSN)
		if err != nil {
			logger.Warn("telemetry store unavailable, run record not persisted", "error", err)
		} else {
			defer store.Close()
			if err := store.SaveRun(ctx, recorder.Snapshot(), result); err != nil {
				logger.Warn("failed to persist run record", "error", err)
			}
		}
	}

	if result.Status == types.StatusFailed {
		return fmt.Errorf("assessment failed: %d stage error(s)", len(result.Errors))
	}
	return nil
}

// loadInput reads and decodes the assessment input file.
func loadInput(path string) (*types.PipelineInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file %s: %w", path, err)
	}
	var input types.PipelineInput
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("failed to parse input JSON: %w", err)
	}
	if input.AssessmentID == "" {
		input.AssessmentID = uuid.NewString()
	}
	return &input, nil
}
