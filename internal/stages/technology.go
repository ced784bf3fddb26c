package stages

import (
	"context"

	"github.com/jonathan/diligence-engine/internal/extraction"
	"github.com/jonathan/diligence-engine/internal/llm"
	"github.com/jonathan/diligence-engine/internal/types"
)

var technologyMetrics = []metricField{
	{MetricID: "trl", Required: true},
	{MetricID: "efficiency_pct"},
	{MetricID: "cycle_life"},
	{MetricID: "degradation_rate_pct"},
}

// TechnologyStage assesses the core technology: readiness level, efficiency,
// and longevity figures, all screened against domain benchmarks.
func TechnologyStage(ctx context.Context, env *Env, input *types.PipelineInput, prior types.OutputView, report ProgressFunc) (*types.StageOutput, error) {
	stageID := extraction.StageTechnology
	report(5, "assessing technology maturity")

	prompt, err := stagePrompt(stageID, map[string]string{
		"Name":        input.Name,
		"Domain":      input.Domain,
		"Description": input.Description,
		"Excerpts":    excerptBlock(input),
	})
	if err != nil {
		return nil, err
	}

	opts := llm.DefaultOptions()
	opts.JSONResponse = true

	validate := bundleValidator(env, stageID, input.Domain, technologyMetrics)
	output, err := generateTree(ctx, env, stageID, prompt, opts, validate)
	if err != nil {
		return nil, err
	}
	report(80, "screening technology metrics")

	metricIDs := make([]string, len(technologyMetrics))
	for i, field := range technologyMetrics {
		metricIDs[i] = field.MetricID
	}
	notes := checkMetrics(env, stageID, input.Domain, output, metricIDs)

	output.Fragments = []types.ReportFragment{
		fragment(env, stageID, "Technology Assessment", output, notes),
	}
	report(100, "technology assessment complete")
	return output, nil
}
