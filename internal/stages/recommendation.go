package stages

import (
	"context"

	"github.com/jonathan/diligence-engine/internal/extraction"
	"github.com/jonathan/diligence-engine/internal/llm"
	"github.com/jonathan/diligence-engine/internal/types"
)

// RecommendationStage is the terminal stage: it weighs the full analysis and
// issues the rating the aggregator lifts into the final result.
func RecommendationStage(ctx context.Context, env *Env, input *types.PipelineInput, prior types.OutputView, report ProgressFunc) (*types.StageOutput, error) {
	stageID := extraction.StageRecommendation
	report(5, "drafting recommendation")

	prompt, err := stagePrompt(stageID, map[string]string{
		"Name":   input.Name,
		"Domain": input.Domain,
		"Prior": priorSummaries(prior,
			extraction.StageTechnology,
			extraction.StageMarket,
			extraction.StageCosts,
			extraction.StageClaims,
			extraction.StageRisks),
	})
	if err != nil {
		return nil, err
	}

	opts := llm.DefaultOptions()
	opts.Tier = llm.TierAdvanced
	opts.JSONResponse = true

	validate := bundleValidator(env, stageID, input.Domain, []metricField{
		{MetricID: "confidence_pct"},
	})
	output, err := generateTree(ctx, env, stageID, prompt, opts, validate)
	if err != nil {
		return nil, err
	}

	output.Fragments = []types.ReportFragment{
		fragment(env, stageID, "Investment Recommendation", output, nil),
	}
	report(100, "recommendation complete")
	return output, nil
}
