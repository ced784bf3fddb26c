package stages

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/diligence-engine/internal/benchmarks"
	"github.com/jonathan/diligence-engine/internal/extraction"
	"github.com/jonathan/diligence-engine/internal/llm"
	"github.com/jonathan/diligence-engine/internal/observability"
	"github.com/jonathan/diligence-engine/internal/types"
)

func newEnv(t *testing.T, client llm.Client) *Env {
	t.Helper()
	return &Env{
		Client:     client,
		Benchmarks: benchmarks.MustDefault(),
		Extractor:  extraction.NewExtractor(extraction.DefaultTable()),
		Recorder:   observability.NewRecorder("run-1", "assess-1"),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		GenRetries: 1,
	}
}

func storageInput() *types.PipelineInput {
	return &types.PipelineInput{
		AssessmentID: "assess-1",
		Name:         "Voltaic Grid Storage",
		Description:  "Iron-air long-duration storage targeting 100-hour discharge at grid scale.",
		Domain:       "energy-storage",
	}
}

func noProgress(float64, string) {}

func emptyView() types.OutputView {
	return types.NewOutputView(map[string]*types.StageOutput{})
}

func TestParseTreeStripsFences(t *testing.T) {
	v, err := parseTree("```json\n{\"summary\": \"ok\", \"trl\": 6}\n```")
	require.NoError(t, err)
	trl, ok := v.Field("trl").AsFloat()
	require.True(t, ok)
	assert.Equal(t, 6.0, trl)

	_, err = parseTree("not json")
	assert.Error(t, err)
}

func TestTechnologyStageHappyPath(t *testing.T) {
	client := llm.NewFakeClient(`{
		"summary": "Mature iron-air chemistry with strong lab validation.",
		"trl": 6,
		"efficiency_pct": 85,
		"cycle_life": 12000,
		"degradation_rate_pct": 2
	}`)
	env := newEnv(t, client)

	output, err := TechnologyStage(context.Background(), env, storageInput(), emptyView(), noProgress)

	require.NoError(t, err)
	assert.True(t, output.Complete())
	assert.Equal(t, 1, client.CallCount())
	require.Len(t, output.Fragments, 1)
	assert.Equal(t, "Technology Assessment", output.Fragments[0].Title)
	assert.Contains(t, output.Fragments[0].Body, "iron-air")
}

func TestTechnologyStageCorrectiveRetryOnMissingMetric(t *testing.T) {
	client := llm.NewFakeClient(
		`{"summary": "First pass forgot the readiness level."}`,
		`{"summary": "Second pass.", "trl": 5, "efficiency_pct": 80}`,
	)
	env := newEnv(t, client)

	output, err := TechnologyStage(context.Background(), env, storageInput(), emptyView(), noProgress)

	require.NoError(t, err)
	assert.True(t, output.Complete())
	require.Equal(t, 2, client.CallCount())
	assert.Contains(t, client.Calls[1], "trl")
	assert.Contains(t, client.Calls[1], "previous response had problems")
}

func TestTechnologyStageRejectedMetricReplacedWithMedian(t *testing.T) {
	client := llm.NewFakeClient(`{
		"summary": "Implausibly short cycle life.",
		"trl": 6,
		"efficiency_pct": 85,
		"cycle_life": 50
	}`)
	env := newEnv(t, client)
	env.GenRetries = 0

	output, err := TechnologyStage(context.Background(), env, storageInput(), emptyView(), noProgress)

	require.NoError(t, err)
	cycleLife, ok := output.Content.Field("cycle_life").AsFloat()
	require.True(t, ok)
	assert.Equal(t, 25050.0, cycleLife, "rejected value is replaced with the benchmark median")
	assert.Contains(t, output.Fragments[0].Body, "rejected")

	tally := env.Recorder.Snapshot().Sanity
	assert.Equal(t, 1, tally.Reject)
}

func TestTechnologyStageNestedRejectedMetricReplacedAtSource(t *testing.T) {
	// The implausible value lives at cycle_life.value, the first candidate
	// path; the median must land on that node, not on a new top-level key,
	// or re-extraction would keep finding the rejected number.
	client := llm.NewFakeClient(`{
		"summary": "Nested metric shape.",
		"trl": 6,
		"efficiency_pct": 85,
		"cycle_life": {"value": 50, "unit": "cycles"}
	}`)
	env := newEnv(t, client)
	env.GenRetries = 0

	output, err := TechnologyStage(context.Background(), env, storageInput(), emptyView(), noProgress)

	require.NoError(t, err)
	nested, ok := output.Content.Field("cycle_life").Field("value").AsFloat()
	require.True(t, ok)
	assert.Equal(t, 25050.0, nested)

	reextracted, ok := env.Extractor.ExtractFloat(extraction.StageTechnology, "cycle_life", output.Content)
	require.True(t, ok)
	assert.Equal(t, 25050.0, reextracted)
}

func TestCostsStageNormalizesImplausibleCapex(t *testing.T) {
	// 20M USD over 1000 kW is 20000 USD/kW, far above the energy-storage
	// tolerance band; expect a uniform scale toward the 1200 USD/kW median.
	client := llm.NewFakeClient(`{
		"summary": "High capex concept plant.",
		"capex": {
			"total_usd_m": 20,
			"line_items": [
				{"name": "cells", "amount_usd_m": 12},
				{"name": "balance of plant", "amount_usd_m": 8}
			]
		},
		"capacity_kw": 1000,
		"capex_per_kw": 20000,
		"lcoe_per_mwh": 90,
		"payback_years": 8
	}`)
	env := newEnv(t, client)
	env.GenRetries = 0
	env.Mode = benchmarks.ModeLenient

	output, err := CostsStage(context.Background(), env, storageInput(), emptyView(), noProgress)

	require.NoError(t, err)
	total, ok := output.Content.Field("capex").Field("total_usd_m").AsFloat()
	require.True(t, ok)
	assert.InDelta(t, 1.2, total, 1e-9)

	perKW, ok := output.Content.Field("capex_per_kw").AsFloat()
	require.True(t, ok)
	assert.InDelta(t, 1200, perKW, 1e-6)

	// Proportions between line items survive the correction.
	first, _ := output.Content.Field("capex").Field("line_items").Index(0).Field("amount_usd_m").AsFloat()
	second, _ := output.Content.Field("capex").Field("line_items").Index(1).Field("amount_usd_m").AsFloat()
	assert.InDelta(t, 12.0/8.0, first/second, 1e-9)
}

func TestCostsStageTotalOnlyBreakdown(t *testing.T) {
	// Generators often return a bare total with no line items or subtotals;
	// the stage must handle that shape without touching the numbers.
	client := llm.NewFakeClient(`{
		"summary": "Early estimate, total only.",
		"capex": {"total_usd_m": 20},
		"capacity_kw": 1000,
		"capex_per_kw": 1500,
		"lcoe_per_mwh": 90
	}`)
	env := newEnv(t, client)
	env.GenRetries = 0
	env.Mode = benchmarks.ModeLenient

	output, err := CostsStage(context.Background(), env, storageInput(), emptyView(), noProgress)

	require.NoError(t, err)
	assert.True(t, output.Complete())
	total, ok := output.Content.Field("capex").Field("total_usd_m").AsFloat()
	require.True(t, ok)
	assert.Equal(t, 20.0, total)
}

func TestCostsStageStrictModeFlagsWithoutRewriting(t *testing.T) {
	client := llm.NewFakeClient(`{
		"summary": "High capex concept plant.",
		"capex": {
			"total_usd_m": 20,
			"line_items": [{"name": "cells", "amount_usd_m": 20}]
		},
		"capacity_kw": 1000,
		"capex_per_kw": 20000
	}`)
	env := newEnv(t, client)
	env.GenRetries = 0
	env.Mode = benchmarks.ModeStrict

	output, err := CostsStage(context.Background(), env, storageInput(), emptyView(), noProgress)

	require.NoError(t, err)
	total, _ := output.Content.Field("capex").Field("total_usd_m").AsFloat()
	assert.Equal(t, 20.0, total, "strict mode leaves the breakdown untouched")
	assert.Contains(t, output.Fragments[0].Body, "strict mode")
}

func TestCostsStageInconsistentBreakdownSkipsCorrection(t *testing.T) {
	client := llm.NewFakeClient(`{
		"summary": "Sum of parts disagrees with the stated total.",
		"capex": {
			"total_usd_m": 20,
			"line_items": [{"name": "cells", "amount_usd_m": 5}]
		},
		"capacity_kw": 1000,
		"capex_per_kw": 20000
	}`)
	env := newEnv(t, client)
	env.GenRetries = 0
	env.Mode = benchmarks.ModeLenient

	output, err := CostsStage(context.Background(), env, storageInput(), emptyView(), noProgress)

	require.NoError(t, err)
	total, _ := output.Content.Field("capex").Field("total_usd_m").AsFloat()
	assert.Equal(t, 20.0, total, "inconsistent breakdowns are never corrected")
}

func TestClaimsStageVerdictsAndRatio(t *testing.T) {
	input := storageInput()
	input.Claims = []types.Claim{
		{Text: "Cycle life exceeds 10000 cycles", Confidence: 0.9},
		{Text: "Round-trip efficiency above 99 percent", Confidence: 0.4},
		{Text: "Cheapest storage on the market", Confidence: 0.3},
		{Text: "Deployed at two pilot sites", Confidence: 0.8},
	}

	client := llm.NewFakeClient()
	client.Handler = func(prompt string, opts llm.Options) (*llm.Response, error) {
		verdict := "supported"
		if strings.Contains(prompt, "99 percent") || strings.Contains(prompt, "Cheapest") {
			verdict = "unsupported"
		}
		text := fmt.Sprintf(`{"claims": [{"text": "echoed", "verdict": %q, "reasoning": "r"}]}`, verdict)
		return &llm.Response{Text: text, Usage: llm.Usage{Input: 10, Output: 5}}, nil
	}
	env := newEnv(t, client)

	output, err := ClaimsStage(context.Background(), env, input, emptyView(), noProgress)

	require.NoError(t, err)
	assert.True(t, output.Complete())
	assert.Equal(t, 4, client.CallCount(), "one generation call per claim")

	ratio, ok := output.Content.Field("supported_ratio").AsFloat()
	require.True(t, ok)
	assert.InDelta(t, 0.5, ratio, 1e-9)

	// Verdict entries carry the original claim text, in submission order.
	entries := output.Content.Field("claims")
	first, _ := entries.Index(0).Field("text").AsString()
	assert.Equal(t, "Cycle life exceeds 10000 cycles", first)
}

func TestClaimsStageNoClaims(t *testing.T) {
	client := llm.NewFakeClient()
	env := newEnv(t, client)

	output, err := ClaimsStage(context.Background(), env, storageInput(), emptyView(), noProgress)

	require.NoError(t, err)
	assert.True(t, output.Complete())
	assert.Equal(t, 0, client.CallCount())
}

func TestRecommendationStageRejectsUnknownRating(t *testing.T) {
	client := llm.NewFakeClient(
		`{"rating": "maybe", "summary": "on the fence"}`,
		`{"rating": "hold", "summary": "wait for the pilot data", "confidence_pct": 60}`,
	)
	env := newEnv(t, client)

	output, err := RecommendationStage(context.Background(), env, storageInput(), emptyView(), noProgress)

	require.NoError(t, err)
	require.Equal(t, 2, client.CallCount())
	assert.Contains(t, client.Calls[1], "rating")

	rating, ok := output.Content.Field("rating").AsString()
	require.True(t, ok)
	assert.Equal(t, "hold", rating)
}

func TestRisksStageReadsPriorSummaries(t *testing.T) {
	client := llm.NewFakeClient(`{
		"summary": "Execution risk dominates.",
		"overall_risk": "medium",
		"risks": [{"description": "unproven supply chain", "severity": "high", "category": "supply-chain"}]
	}`)
	env := newEnv(t, client)

	prior := types.NewOutputView(map[string]*types.StageOutput{
		extraction.StageTechnology: {
			StageID: extraction.StageTechnology,
			Status:  types.StageStatusComplete,
			Content: types.ObjectValue(map[string]*types.Value{
				"summary": types.StringValue("TRL 6 iron-air system"),
			}),
		},
	})

	output, err := RisksStage(context.Background(), env, storageInput(), prior, noProgress)

	require.NoError(t, err)
	assert.True(t, output.Complete())
	require.Equal(t, 1, client.CallCount())
	assert.Contains(t, client.Calls[0], "TRL 6 iron-air system")
}

func TestDefaultPreChecks(t *testing.T) {
	env := newEnv(t, llm.NewFakeClient())
	checks := DefaultPreChecks()

	t.Run("valid input passes", func(t *testing.T) {
		for _, check := range checks {
			assert.NoError(t, check.Run(env, storageInput()), check.Name)
		}
	})

	t.Run("thin description rejected", func(t *testing.T) {
		input := storageInput()
		input.Description = "storage"
		var failed bool
		for _, check := range checks {
			if check.Run(env, input) != nil {
				failed = true
			}
		}
		assert.True(t, failed)
	})

	t.Run("bad claim confidence rejected", func(t *testing.T) {
		input := storageInput()
		input.Claims = []types.Claim{{Text: "x", Confidence: 1.5}}
		var failed bool
		for _, check := range checks {
			if check.Run(env, input) != nil {
				failed = true
			}
		}
		assert.True(t, failed)
	})
}

func TestRegistryOrder(t *testing.T) {
	var ids []string
	for _, stage := range DefaultStages() {
		ids = append(ids, stage.ID)
	}
	assert.Equal(t, []string{
		extraction.StageTechnology,
		extraction.StageMarket,
		extraction.StageCosts,
		extraction.StageClaims,
		extraction.StageRisks,
		extraction.StageRecommendation,
	}, ids)

	quick := QuickScreenStages()
	assert.Less(t, len(quick), len(DefaultStages()))
	assert.Equal(t, extraction.StageRecommendation, quick[len(quick)-1].ID)
}
