// Package stages defines the due-diligence pipeline stages. Each stage wraps
// one generation call (or a small batch of them) in the correction-retry loop,
// pulls metrics out of the result tree, and sanity-checks them against the
// benchmark catalog before producing its output.
package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonathan/diligence-engine/internal/benchmarks"
	"github.com/jonathan/diligence-engine/internal/extraction"
	"github.com/jonathan/diligence-engine/internal/genloop"
	"github.com/jonathan/diligence-engine/internal/llm"
	"github.com/jonathan/diligence-engine/internal/observability"
	"github.com/jonathan/diligence-engine/internal/prompts"
	"github.com/jonathan/diligence-engine/internal/schemas"
	"github.com/jonathan/diligence-engine/internal/types"
)

// ProgressFunc reports stage-local progress in [0, 100] with a short message.
type ProgressFunc func(progress float64, message string)

// Env bundles the collaborators every stage needs. Constructed once per run
// and shared across stages; all fields are read-only from a stage's point of
// view.
type Env struct {
	Client     llm.Client
	Benchmarks *benchmarks.Catalog
	Extractor  *extraction.Extractor
	Recorder   *observability.Recorder
	Logger     *slog.Logger

	// GenRetries bounds corrective re-calls within one generation.
	GenRetries int
	// Mode gates whether implausible cost aggregates are rewritten.
	Mode benchmarks.CorrectionMode
}

// Handler runs one stage. Prior holds the completed outputs of earlier stages.
type Handler func(ctx context.Context, env *Env, input *types.PipelineInput, prior types.OutputView, report ProgressFunc) (*types.StageOutput, error)

// Descriptor pairs a stable stage id with its handler and progress weight.
type Descriptor struct {
	ID      string
	Title   string
	Weight  float64
	Handler Handler
}

// metricField names one sub-metric checked when validating a stage bundle.
type metricField struct {
	MetricID string
	Required bool
}

// parseTree strips markdown fences and decodes the generator text into a tree.
func parseTree(text string) (*types.Value, error) {
	return types.ParseValue([]byte(llm.CleanJSONBlock(text)))
}

// bundleValidator builds the genloop validator for a stage: schema conformance
// first, then extraction of the named metrics and benchmark scoring of the
// resulting bundle. Schema findings and benchmark findings land in the same
// annotation set so the corrective prompt sees both.
func bundleValidator(env *Env, stageID, domain string, fields []metricField) genloop.ValidateFunc[*types.Value] {
	return func(v *types.Value) *types.BundleValidation {
		bundle := make([]benchmarks.BundleField, 0, len(fields))
		for _, field := range fields {
			var value *float64
			if num, ok := env.Extractor.ExtractFloat(stageID, field.MetricID, v); ok {
				value = &num
			}
			bundle = append(bundle, benchmarks.BundleField{
				Name:     field.MetricID,
				Value:    value,
				Required: field.Required,
			})
		}
		validation := env.Benchmarks.ValidateBundle(domain, bundle)

		if schemas.Has(stageID) {
			raw, err := json.Marshal(v)
			if err == nil {
				if err := schemas.Annotate(stageID, string(raw), validation); err != nil {
					env.Logger.Warn("schema check unavailable", "stage", stageID, "error", err)
				}
			}
		}

		benchmarks.Rescore(validation)
		return validation
	}
}

// generateTree runs the correction-retry loop for a stage prompt and folds the
// outcome into a StageOutput. Degraded results carry the leftover annotations
// as warnings on the output rather than failing the stage.
func generateTree(ctx context.Context, env *Env, stageID, prompt string, opts llm.Options, validate genloop.ValidateFunc[*types.Value]) (*types.StageOutput, error) {
	result, err := genloop.GenerateValidated(ctx, env.Client, opts, prompt, parseTree, validate, env.GenRetries)
	if err != nil {
		return nil, err
	}

	if result.Degraded {
		env.Logger.Warn("stage output degraded after retries",
			"stage", stageID,
			"attempts", result.Attempts,
			"score", result.Validation.Score)
	}

	output := &types.StageOutput{
		StageID: stageID,
		Status:  types.StageStatusComplete,
		Content: result.Value,
		Tokens:  result.Tokens,
	}
	recordStage(env, stageID, output, result.Attempts)
	return output, nil
}

// recordStage reports final stage stats to the debug sink, when one is wired.
func recordStage(env *Env, stageID string, output *types.StageOutput, attempts int) {
	if env.Recorder == nil {
		return
	}
	env.Recorder.StageFinished(stageID, observability.StageStats{
		Status:       output.Status,
		InputTokens:  output.Tokens.Input,
		OutputTokens: output.Tokens.Output,
		Attempts:     attempts,
	})
}

// checkMetrics sanity-checks extracted metrics individually, tallying the
// outcomes and replacing hard-rejected values in the tree with the benchmark
// median so later stages never see an unflagged implausible number.
func checkMetrics(env *Env, stageID, domain string, output *types.StageOutput, metricIDs []string) []string {
	var notes []string
	for _, metricID := range metricIDs {
		res := env.Extractor.Extract(stageID, metricID, output.Content)
		if !res.Success {
			continue
		}
		value, ok := res.Value.AsFloat()
		if !ok {
			continue
		}
		check := env.Benchmarks.ValidateValue(metricID, value, domain)
		if env.Recorder != nil {
			env.Recorder.Sanity(check.Action)
		}
		switch check.Action {
		case types.ActionWarn:
			env.Logger.Warn("metric outside plausible range", "stage", stageID, "metric", metricID, "value", value)
			notes = append(notes, check.Message)
		case types.ActionReject:
			env.Logger.Warn("metric rejected, substituting median", "stage", stageID, "metric", metricID, "value", value)
			if check.SuggestedValue != nil {
				// Overwrite the node the value was read from, so a re-extraction
				// along the same path sees the median, wherever it was nested.
				if res.Raw != nil {
					*res.Raw = *types.NumberValue(*check.SuggestedValue)
				} else if output.Content.Kind == types.KindObject {
					output.Content.Obj[metricID] = types.NumberValue(*check.SuggestedValue)
				}
			}
			notes = append(notes, check.Message)
		}
	}
	return notes
}

// fragment builds one report section from the stage's extracted summary.
func fragment(env *Env, stageID, title string, output *types.StageOutput, notes []string) types.ReportFragment {
	body, _ := output.Content.Field("summary").AsString()
	if len(notes) > 0 {
		body += "\n\nValidation notes:\n- " + strings.Join(notes, "\n- ")
	}
	return types.ReportFragment{Title: title, Body: body, StageID: stageID}
}

// priorSummaries concatenates the summaries of earlier stages for prompt
// context, in the order given.
func priorSummaries(prior types.OutputView, stageIDs ...string) string {
	var sb strings.Builder
	for _, stageID := range stageIDs {
		content := prior.Content(stageID)
		if content.IsNull() {
			continue
		}
		summary, ok := content.Field("summary").AsString()
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("[%s] %s\n", stageID, summary))
	}
	return sb.String()
}

// excerptBlock renders uploaded document excerpts for prompt context.
func excerptBlock(input *types.PipelineInput) string {
	if len(input.Excerpts) == 0 {
		return "(none provided)"
	}
	var sb strings.Builder
	for _, excerpt := range input.Excerpts {
		sb.WriteString(fmt.Sprintf("--- %s ---\n%s\n", excerpt.Filename, excerpt.Text))
	}
	return sb.String()
}

// stagePrompt loads and fills the stage's prompt template.
func stagePrompt(stageID string, data map[string]string) (string, error) {
	template, err := prompts.Stage(stageID)
	if err != nil {
		return "", fmt.Errorf("loading prompt for stage %s: %w", stageID, err)
	}
	return prompts.Format(template, data), nil
}
