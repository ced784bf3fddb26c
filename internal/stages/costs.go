package stages

import (
	"context"

	"github.com/jonathan/diligence-engine/internal/benchmarks"
	"github.com/jonathan/diligence-engine/internal/extraction"
	"github.com/jonathan/diligence-engine/internal/llm"
	"github.com/jonathan/diligence-engine/internal/types"
)

var costMetrics = []metricField{
	{MetricID: "capex_per_kw", Required: true},
	{MetricID: "lcoe_per_mwh"},
	{MetricID: "payback_years"},
	{MetricID: "total_capex_usd_m"},
}

// usdMillion converts the model's USD-million figures to plain USD for
// capacity normalization.
const usdMillion = 1e6

// CostsStage builds the cost model and applies correction-factor
// normalization when the capacity-normalized capex lands outside the
// benchmark tolerance band.
func CostsStage(ctx context.Context, env *Env, input *types.PipelineInput, prior types.OutputView, report ProgressFunc) (*types.StageOutput, error) {
	stageID := extraction.StageCosts
	report(5, "building cost model")

	prompt, err := stagePrompt(stageID, map[string]string{
		"Name":        input.Name,
		"Domain":      input.Domain,
		"Description": input.Description,
		"Prior":       priorSummaries(prior, extraction.StageTechnology, extraction.StageMarket),
	})
	if err != nil {
		return nil, err
	}

	opts := llm.DefaultOptions()
	opts.JSONResponse = true

	validate := bundleValidator(env, stageID, input.Domain, costMetrics)
	output, err := generateTree(ctx, env, stageID, prompt, opts, validate)
	if err != nil {
		return nil, err
	}
	report(70, "normalizing cost breakdown")

	notes := normalizeCapex(env, input.Domain, output)
	notes = append(notes, checkMetrics(env, stageID, input.Domain, output,
		[]string{"capex_per_kw", "lcoe_per_mwh", "payback_years"})...)

	output.Fragments = []types.ReportFragment{
		fragment(env, stageID, "Cost Model", output, notes),
	}
	report(100, "cost model complete")
	return output, nil
}

// normalizeCapex pulls the capex breakdown out of the tree, runs the
// correction-factor check, and writes any corrected figures back so
// downstream stages read the same numbers the report shows.
func normalizeCapex(env *Env, domain string, output *types.StageOutput) []string {
	capex := output.Content.Field("capex")
	if capex.IsNull() {
		return nil
	}
	capacityKW, ok := output.Content.Field("capacity_kw").AsFloat()
	if !ok {
		return nil
	}
	rng, ok := env.Benchmarks.Lookup(domain, "capex_per_kw")
	if !ok {
		return nil
	}

	breakdown := breakdownFromTree(capex)
	result := benchmarks.NormalizeCosts(breakdown, capacityKW, rng, benchmarks.DefaultTolerance, env.Mode)
	env.Logger.Info("capex normalization",
		"domain", domain,
		"applied", result.Applied,
		"factor", result.Factor,
		"message", result.Message)

	if !result.Applied {
		if result.Factor != 0 {
			// Strict mode: flagged but untouched.
			return []string{result.Message}
		}
		return nil
	}

	writeBreakdown(capex, breakdown)
	if output.Content.Kind == types.KindObject {
		output.Content.Obj["capex_per_kw"] = types.NumberValue(breakdown.Total / capacityKW)
	}
	return []string{result.Message}
}

// breakdownFromTree reads a capex object into the additive cost structure.
// The model reports USD millions; the breakdown holds plain USD so the
// capacity-normalized total compares directly against $/kW benchmarks.
func breakdownFromTree(capex *types.Value) *benchmarks.CostBreakdown {
	breakdown := &benchmarks.CostBreakdown{}
	if total, ok := capex.Field("total_usd_m").AsFloat(); ok {
		breakdown.Total = total * usdMillion
	}

	for _, item := range capex.Field("line_items").Items() {
		name, _ := item.Field("name").AsString()
		amount, _ := item.Field("amount_usd_m").AsFloat()
		breakdown.Items = append(breakdown.Items, benchmarks.LineItem{Name: name, Amount: amount * usdMillion})
	}

	subtotals := capex.Field("subtotals").Items()
	if len(subtotals) > 0 {
		breakdown.Subtotals = make(map[string]float64, len(subtotals))
		for _, sub := range subtotals {
			name, _ := sub.Field("name").AsString()
			amount, _ := sub.Field("amount_usd_m").AsFloat()
			breakdown.Subtotals[name] = amount * usdMillion
		}
	}
	return breakdown
}

// writeBreakdown pushes corrected amounts back into the capex tree, in USD
// millions to match the rest of the document.
func writeBreakdown(capex *types.Value, breakdown *benchmarks.CostBreakdown) {
	if capex.Kind != types.KindObject {
		return
	}
	capex.Obj["total_usd_m"] = types.NumberValue(breakdown.Total / usdMillion)

	for i, item := range capex.Field("line_items").Items() {
		if i >= len(breakdown.Items) || item.Kind != types.KindObject {
			continue
		}
		item.Obj["amount_usd_m"] = types.NumberValue(breakdown.Items[i].Amount / usdMillion)
	}

	for _, sub := range capex.Field("subtotals").Items() {
		if sub.Kind != types.KindObject {
			continue
		}
		name, _ := sub.Field("name").AsString()
		if amount, ok := breakdown.Subtotals[name]; ok {
			sub.Obj["amount_usd_m"] = types.NumberValue(amount / usdMillion)
		}
	}
}
