package extraction

import (
	"github.com/jonathan/diligence-engine/internal/types"
)

// Stage ids used across the pipeline and the path table.
const (
	StageTechnology     = "technology"
	StageMarket         = "market"
	StageCosts          = "costs"
	StageClaims         = "claims"
	StageRisks          = "risks"
	StageRecommendation = "recommendation"
)

// PositiveNumber accepts strictly positive numeric values.
func PositiveNumber(v *types.Value) bool {
	f, ok := v.AsFloat()
	return ok && f > 0
}

// NumberInRange accepts numeric values within [min, max].
func NumberInRange(min, max float64) func(*types.Value) bool {
	return func(v *types.Value) bool {
		f, ok := v.AsFloat()
		return ok && f >= min && f <= max
	}
}

// NonEmptyString accepts non-blank strings.
func NonEmptyString(v *types.Value) bool {
	s, ok := v.AsString()
	return ok && s != ""
}

// OneOf accepts strings from a fixed vocabulary (case-sensitive match after
// the usual string coercion).
func OneOf(allowed ...string) func(*types.Value) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return func(v *types.Value) bool {
		s, ok := v.AsString()
		if !ok {
			return false
		}
		_, found := set[s]
		return found
	}
}

// FractionToPercent converts ratio-style values (0.21) to percentages (21).
// Values above 1 are assumed to already be percentages.
func FractionToPercent(v *types.Value) *types.Value {
	f, ok := v.AsFloat()
	if !ok {
		return v
	}
	if f > 0 && f <= 1 {
		return types.NumberValue(f * 100)
	}
	return types.NumberValue(f)
}

// DefaultTable is the extraction path table for the standard stage set.
// Generators vary where they put each metric between runs, so every metric
// lists the shapes seen in practice, most specific first.
func DefaultTable() Table {
	return Table{
		StageTechnology: {
			"trl": {
				Unit: "level",
				Paths: []Path{
					{Key("trl"), Key("value")},
					{Key("trl")},
					{Key("technology_readiness_level")},
					{Key("maturity"), Key("trl")},
				},
				Validate:   NumberInRange(1, 9),
				DeepSearch: true,
				Default:    types.Null(),
			},
			"efficiency_pct": {
				Unit: "%",
				Paths: []Path{
					{Key("efficiency"), Key("value")},
					{Key("efficiency_pct")},
					{Key("efficiency")},
					{Key("metrics"), ByID("efficiency"), Key("value")},
				},
				Validate:   NumberInRange(0, 100),
				Transform:  FractionToPercent,
				DeepSearch: true,
			},
			"cycle_life": {
				Unit: "cycles",
				Paths: []Path{
					{Key("cycle_life"), Key("value")},
					{Key("cycle_life")},
					{Key("metrics"), ByID("cycle_life"), Key("value")},
					{Key("metrics"), ByName("cycle life"), Key("value")},
				},
				Validate:   PositiveNumber,
				DeepSearch: true,
			},
			"degradation_rate_pct": {
				Unit: "%/yr",
				Paths: []Path{
					{Key("degradation_rate"), Key("value")},
					{Key("degradation_rate_pct")},
					{Key("degradation"), Key("annual_pct")},
				},
				Validate:   NumberInRange(0, 100),
				DeepSearch: true,
			},
		},
		StageMarket: {
			"market_size_usd_b": {
				Unit: "USD billions",
				Paths: []Path{
					{Key("market_size"), Key("value")},
					{Key("market_size_usd_b")},
					{Key("tam"), Key("value")},
					{Key("tam_usd_b")},
				},
				Validate:   PositiveNumber,
				DeepSearch: true,
			},
			"cagr_pct": {
				Unit: "%",
				Paths: []Path{
					{Key("cagr"), Key("value")},
					{Key("cagr_pct")},
					{Key("growth_rate"), Key("value")},
				},
				Validate:   NumberInRange(-50, 200),
				Transform:  FractionToPercent,
				DeepSearch: true,
			},
		},
		StageCosts: {
			"capex_per_kw": {
				Unit: "USD/kW",
				Paths: []Path{
					{Key("capex_per_kw")},
					{Key("capex"), Key("per_kw")},
					{Key("line_items"), ByID("capex"), Key("per_kw")},
				},
				Validate:   PositiveNumber,
				DeepSearch: true,
			},
			"lcoe_per_mwh": {
				Unit: "USD/MWh",
				Paths: []Path{
					{Key("lcoe"), Key("value")},
					{Key("lcoe_per_mwh")},
					{Key("levelized_cost"), Key("value")},
				},
				Validate:   PositiveNumber,
				DeepSearch: true,
			},
			"total_capex_usd_m": {
				Unit: "USD millions",
				Paths: []Path{
					{Key("total_capex"), Key("value")},
					{Key("total_capex_usd_m")},
					{Key("totals"), Key("capex")},
				},
				Validate:   PositiveNumber,
				DeepSearch: true,
			},
			"payback_years": {
				Unit: "years",
				Paths: []Path{
					{Key("payback"), Key("years")},
					{Key("payback_years")},
				},
				Validate:   NumberInRange(0, 100),
				DeepSearch: true,
			},
		},
		StageClaims: {
			"supported_ratio": {
				Unit: "ratio",
				Paths: []Path{
					{Key("summary"), Key("supported_ratio")},
					{Key("supported_ratio")},
				},
				Validate: NumberInRange(0, 1),
			},
		},
		StageRisks: {
			"overall_risk": {
				Paths: []Path{
					{Key("overall_risk")},
					{Key("overall"), Key("level")},
				},
				Validate:   OneOf("low", "medium", "high"),
				DeepSearch: true,
				Default:    types.StringValue("medium"),
			},
			"risk_count": {
				Unit: "count",
				Paths: []Path{
					{Key("risk_count")},
					{Key("summary"), Key("count")},
				},
				Validate: NumberInRange(0, 1000),
			},
		},
		StageRecommendation: {
			"rating": {
				Paths: []Path{
					{Key("rating")},
					{Key("recommendation"), Key("rating")},
					{Key("verdict")},
				},
				Validate:   OneOf("strong-buy", "buy", "hold", "avoid"),
				DeepSearch: true,
			},
			"summary": {
				Paths: []Path{
					{Key("summary")},
					{Key("recommendation"), Key("summary")},
					{Key("executive_summary")},
				},
				Validate:   NonEmptyString,
				DeepSearch: true,
			},
			"confidence_pct": {
				Unit: "%",
				Paths: []Path{
					{Key("confidence"), Key("value")},
					{Key("confidence_pct")},
					{Key("confidence")},
				},
				Validate:  NumberInRange(0, 100),
				Transform: FractionToPercent,
			},
		},
	}
}
