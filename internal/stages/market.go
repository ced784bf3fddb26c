package stages

import (
	"context"

	"github.com/jonathan/diligence-engine/internal/extraction"
	"github.com/jonathan/diligence-engine/internal/llm"
	"github.com/jonathan/diligence-engine/internal/types"
)

var marketMetrics = []metricField{
	{MetricID: "market_size_usd_b", Required: true},
	{MetricID: "cagr_pct"},
}

// MarketStage sizes the addressable market, informed by the technology
// assessment.
func MarketStage(ctx context.Context, env *Env, input *types.PipelineInput, prior types.OutputView, report ProgressFunc) (*types.StageOutput, error) {
	stageID := extraction.StageMarket
	report(5, "sizing addressable market")

	prompt, err := stagePrompt(stageID, map[string]string{
		"Name":        input.Name,
		"Domain":      input.Domain,
		"Description": input.Description,
		"Prior":       priorSummaries(prior, extraction.StageTechnology),
	})
	if err != nil {
		return nil, err
	}

	opts := llm.DefaultOptions()
	opts.JSONResponse = true

	validate := bundleValidator(env, stageID, input.Domain, marketMetrics)
	output, err := generateTree(ctx, env, stageID, prompt, opts, validate)
	if err != nil {
		return nil, err
	}
	report(80, "screening market figures")

	notes := checkMetrics(env, stageID, input.Domain, output, []string{"market_size_usd_b", "cagr_pct"})

	output.Fragments = []types.ReportFragment{
		fragment(env, stageID, "Market Analysis", output, notes),
	}
	report(100, "market analysis complete")
	return output, nil
}
