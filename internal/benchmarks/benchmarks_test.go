package benchmarks

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/diligence-engine/internal/types"
)

func TestDefaultCatalogLoads(t *testing.T) {
	catalog, err := Default()
	require.NoError(t, err)
	assert.True(t, catalog.KnownDomain("solar-pv"))
	assert.True(t, catalog.KnownDomain(GenericDomain))
}

func TestParseRejectsMissingGeneric(t *testing.T) {
	_, err := Parse([]byte("domains:\n  solar-pv:\n    trl: {min: 1, max: 9, median: 5, fail_action: warn}\n"))
	assert.Error(t, err)
}

func TestParseRejectsBadFailAction(t *testing.T) {
	_, err := Parse([]byte("domains:\n  generic:\n    trl: {min: 1, max: 9, median: 5, fail_action: explode}\n"))
	assert.Error(t, err)
}

func TestResolveDomainAliases(t *testing.T) {
	catalog := MustDefault()

	tests := []struct {
		name     string
		domain   string
		expected string
	}{
		{"alias", "electrolyzer", "hydrogen"},
		{"alias with spaces and caps", "Fuel-Cell", "hydrogen"},
		{"direct", "solar-pv", "solar-pv"},
		{"spaces to dashes", "energy storage", "energy-storage"},
		{"unknown resolves to itself", "fusion", "fusion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, catalog.ResolveDomain(tt.domain))
		})
	}
}

func TestLookupFallsBackToGeneric(t *testing.T) {
	catalog := MustDefault()

	// trl is only defined in the generic table.
	rng, ok := catalog.Lookup("solar-pv", "trl")
	require.True(t, ok)
	assert.Equal(t, 1.0, rng.Min)
	assert.Equal(t, 9.0, rng.Max)

	_, ok = catalog.Lookup("solar-pv", "no_such_metric")
	assert.False(t, ok)
}

func TestValidateValue(t *testing.T) {
	catalog := MustDefault()

	tests := []struct {
		name     string
		metric   string
		value    float64
		domain   string
		expected string
	}{
		{"in range passes", "efficiency_pct", 21, "solar-pv", types.ActionPass},
		{"out of range rejects", "efficiency_pct", 63, "solar-pv", types.ActionReject},
		{"warn action warns", "lcoe_per_mwh", 500, "solar-pv", types.ActionWarn},
		{"unknown metric passes", "unheard_of", 1e9, "solar-pv", types.ActionPass},
		{"unknown domain falls back to generic", "trl", 12, "fusion", types.ActionReject},
		{"alias resolution", "efficiency_pct", 65, "electrolyzer", types.ActionPass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := catalog.ValidateValue(tt.metric, tt.value, tt.domain)
			assert.Equal(t, tt.expected, result.Action)
			assert.Equal(t, tt.value, result.Value)
			assert.NotEmpty(t, result.Message)
		})
	}
}

func TestValidateValueRejectSuggestsMedian(t *testing.T) {
	catalog := MustDefault()

	result := catalog.ValidateValue("cycle_life", 50, "energy-storage")

	require.Equal(t, types.ActionReject, result.Action)
	require.NotNil(t, result.SuggestedValue)
	assert.Equal(t, 25050.0, *result.SuggestedValue)
}

func TestValidateValuePassLiesInRange(t *testing.T) {
	catalog := MustDefault()
	rng, ok := catalog.Lookup("energy-storage", "cycle_life")
	require.True(t, ok)

	for _, value := range []float64{rng.Min, rng.Median, rng.Max, 5000} {
		result := catalog.ValidateValue("cycle_life", value, "energy-storage")
		assert.Equal(t, types.ActionPass, result.Action, "value %g", value)
		assert.True(t, rng.Contains(value))
	}
}

func ptr(f float64) *float64 { return &f }

func TestValidateBundle(t *testing.T) {
	catalog := MustDefault()

	tests := []struct {
		name          string
		fields        []BundleField
		expectValid   bool
		expectScore   int
		expectMissing int
		expectInvalid int
	}{
		{
			name: "all fields good",
			fields: []BundleField{
				{Name: "efficiency_pct", Value: ptr(21), Required: true},
				{Name: "capex_per_kw", Value: ptr(1100), Required: true},
			},
			expectValid: true,
			expectScore: 100,
		},
		{
			name: "missing required",
			fields: []BundleField{
				{Name: "efficiency_pct", Value: nil, Required: true},
				{Name: "capex_per_kw", Value: ptr(1100), Required: true},
			},
			expectValid:   false,
			expectScore:   80,
			expectMissing: 1,
		},
		{
			name: "missing optional is free",
			fields: []BundleField{
				{Name: "efficiency_pct", Value: ptr(21), Required: true},
				{Name: "degradation_rate_pct", Value: nil},
			},
			expectValid: true,
			expectScore: 100,
		},
		{
			name: "invalid value",
			fields: []BundleField{
				{Name: "efficiency_pct", Value: ptr(63), Required: true},
				{Name: "capex_per_kw", Value: ptr(1100), Required: true},
			},
			expectValid:   false,
			expectScore:   85,
			expectInvalid: 1,
		},
		{
			name: "warnings alone keep bundle valid",
			fields: []BundleField{
				{Name: "efficiency_pct", Value: ptr(21), Required: true},
				{Name: "lcoe_per_mwh", Value: ptr(500), Required: true},
			},
			expectValid: true,
			expectScore: 95,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := catalog.ValidateBundle("solar-pv", tt.fields)
			assert.Equal(t, tt.expectValid, result.IsValid)
			assert.Equal(t, tt.expectScore, result.Score)
			assert.Len(t, result.MissingRequired, tt.expectMissing)
			assert.Len(t, result.InvalidValues, tt.expectInvalid)
		})
	}
}

func TestValidateBundleScoreFloor(t *testing.T) {
	catalog := MustDefault()

	fields := make([]BundleField, 0, 6)
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		fields = append(fields, BundleField{Name: name, Required: true})
	}

	result := catalog.ValidateBundle("solar-pv", fields)
	assert.Equal(t, 0, result.Score)
	assert.False(t, result.IsValid)
}

func TestNormalizeCostsPreservesProportions(t *testing.T) {
	rng := Range{Min: 600, Max: 2500, Median: 1100, Unit: "USD/kW"}
	breakdown := &CostBreakdown{
		Items: []LineItem{
			{Name: "modules", Amount: 6_000_000},
			{Name: "inverters", Amount: 2_000_000},
			{Name: "balance of system", Amount: 2_000_000},
		},
		Subtotals: map[string]float64{"hardware": 8_000_000},
		Total:     10_000_000,
	}
	// 10M over 1000 kW = 10000 USD/kW, far above the band.
	ratioBefore := breakdown.Items[0].Amount / breakdown.Items[1].Amount

	result := NormalizeCosts(breakdown, 1000, rng, DefaultTolerance, ModeLenient)

	require.True(t, result.Applied)
	assert.InDelta(t, 1100.0/10000.0, result.Factor, 1e-9)

	// Proportions preserved exactly.
	assert.InDelta(t, ratioBefore, breakdown.Items[0].Amount/breakdown.Items[1].Amount, 1e-9)
	// Sum of scaled items equals scaled sum.
	assert.InDelta(t, breakdown.Total, breakdown.Sum(), 1e-6)
	// Subtotal levels scaled by the same factor.
	assert.InDelta(t, 8_000_000*result.Factor, breakdown.Subtotals["hardware"], 1e-6)
	// Post-scale normalized aggregate lands inside the benchmark range.
	normalized := breakdown.Total / 1000
	assert.True(t, rng.Contains(normalized), "normalized %g", normalized)
}

func TestNormalizeCostsWithinToleranceUntouched(t *testing.T) {
	rng := Range{Min: 600, Max: 2500, Median: 1100}
	breakdown := &CostBreakdown{
		Items: []LineItem{{Name: "modules", Amount: 3_000_000}},
		Total: 3_000_000,
	}
	// 3000 USD/kW is outside [600,2500] but inside the 1.5x tolerance band.
	result := NormalizeCosts(breakdown, 1000, rng, DefaultTolerance, ModeLenient)

	assert.False(t, result.Applied)
	assert.Equal(t, 3_000_000.0, breakdown.Total)
}

func TestNormalizeCostsSkipsInconsistentBreakdown(t *testing.T) {
	rng := Range{Min: 600, Max: 2500, Median: 1100}
	breakdown := &CostBreakdown{
		Items: []LineItem{{Name: "modules", Amount: 1_000_000}},
		Total: 10_000_000, // parts do not sum to total
	}

	result := NormalizeCosts(breakdown, 1000, rng, DefaultTolerance, ModeLenient)

	assert.False(t, result.Applied)
	assert.Contains(t, result.Message, "inconsistent")
	assert.Equal(t, 10_000_000.0, breakdown.Total)
}

func TestNormalizeCostsStrictModeFlagsOnly(t *testing.T) {
	rng := Range{Min: 600, Max: 2500, Median: 1100}
	breakdown := &CostBreakdown{
		Items: []LineItem{{Name: "modules", Amount: 10_000_000}},
		Total: 10_000_000,
	}

	result := NormalizeCosts(breakdown, 1000, rng, DefaultTolerance, ModeStrict)

	assert.False(t, result.Applied)
	assert.NotZero(t, result.Factor)
	assert.Equal(t, 10_000_000.0, breakdown.Total)
	assert.Contains(t, result.Message, "strict")
}

func TestNormalizeCostsScalingIdentity(t *testing.T) {
	// sum(L_i * f) == f * sum(L_i) within floating-point tolerance.
	items := []LineItem{{Amount: 1.1}, {Amount: 2.7}, {Amount: 3.14159}, {Amount: 0.001}}
	var sum float64
	for _, item := range items {
		sum += item.Amount
	}
	factor := 0.3721

	var scaledSum float64
	for _, item := range items {
		scaledSum += item.Amount * factor
	}
	assert.True(t, math.Abs(scaledSum-factor*sum) < 1e-12)
}
