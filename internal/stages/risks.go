package stages

import (
	"context"

	"github.com/jonathan/diligence-engine/internal/extraction"
	"github.com/jonathan/diligence-engine/internal/llm"
	"github.com/jonathan/diligence-engine/internal/types"
)

// RisksStage identifies material risks across the full analysis so far.
func RisksStage(ctx context.Context, env *Env, input *types.PipelineInput, prior types.OutputView, report ProgressFunc) (*types.StageOutput, error) {
	stageID := extraction.StageRisks
	report(5, "assessing risk profile")

	prompt, err := stagePrompt(stageID, map[string]string{
		"Name":   input.Name,
		"Domain": input.Domain,
		"Prior": priorSummaries(prior,
			extraction.StageTechnology,
			extraction.StageMarket,
			extraction.StageCosts,
			extraction.StageClaims),
	})
	if err != nil {
		return nil, err
	}

	opts := llm.DefaultOptions()
	opts.JSONResponse = true

	validate := bundleValidator(env, stageID, input.Domain, nil)
	output, err := generateTree(ctx, env, stageID, prompt, opts, validate)
	if err != nil {
		return nil, err
	}

	output.Fragments = []types.ReportFragment{
		fragment(env, stageID, "Risk Assessment", output, nil),
	}
	report(100, "risk assessment complete")
	return output, nil
}
