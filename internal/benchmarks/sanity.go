package benchmarks

import (
	"fmt"

	"github.com/jonathan/diligence-engine/internal/types"
)

// ValidateValue classifies a metric value against the domain's benchmark
// range. Metrics without a defined range (in the domain or the generic
// fallback) always pass; the catalog has no opinion on them.
func (c *Catalog) ValidateValue(metricID string, value float64, domain string) types.SanityCheckResult {
	rng, ok := c.Lookup(domain, metricID)
	if !ok {
		return types.SanityCheckResult{
			MetricID: metricID,
			Value:    value,
			Action:   types.ActionPass,
			Message:  fmt.Sprintf("no benchmark range defined for %s in domain %s", metricID, domain),
		}
	}

	if rng.Contains(value) {
		return types.SanityCheckResult{
			MetricID: metricID,
			Value:    value,
			Action:   types.ActionPass,
			Message:  fmt.Sprintf("%s=%g within [%g, %g] %s", metricID, value, rng.Min, rng.Max, rng.Unit),
		}
	}

	if rng.FailAction == FailWarn {
		return types.SanityCheckResult{
			MetricID: metricID,
			Value:    value,
			Action:   types.ActionWarn,
			Message:  fmt.Sprintf("%s=%g outside plausible range [%g, %g] %s (%s, %d)", metricID, value, rng.Min, rng.Max, rng.Unit, rng.Source, rng.Year),
		}
	}

	suggested := rng.Median
	return types.SanityCheckResult{
		MetricID:       metricID,
		Value:          value,
		Action:         types.ActionReject,
		Message:        fmt.Sprintf("%s=%g rejected, outside [%g, %g] %s (%s, %d); using median %g", metricID, value, rng.Min, rng.Max, rng.Unit, rng.Source, rng.Year, rng.Median),
		SuggestedValue: &suggested,
	}
}

// BundleField is one named sub-metric in a structured bundle. A nil Value
// means the generator omitted the field.
type BundleField struct {
	Name     string
	Value    *float64
	Required bool
}

// Point penalties deducted from the starting bundle score.
const (
	startingScore   = 100
	missingPenalty  = 20
	invalidPenalty  = 15
	warningPenalty  = 5
	minPassingScore = 60
)

// ValidateBundle scores a structured collection of named sub-metrics. Each
// missing required field, rejected value, and warned value deducts a fixed
// penalty from 100. The bundle is valid only with zero missing-required, zero
// invalid values, and a score of at least 60.
func (c *Catalog) ValidateBundle(domain string, fields []BundleField) *types.BundleValidation {
	result := &types.BundleValidation{Score: startingScore}

	for _, field := range fields {
		if field.Value == nil {
			if field.Required {
				result.MissingRequired = append(result.MissingRequired, field.Name)
				result.Score -= missingPenalty
			}
			continue
		}

		check := c.ValidateValue(field.Name, *field.Value, domain)
		switch check.Action {
		case types.ActionReject:
			result.InvalidValues = append(result.InvalidValues, types.InvalidValue{
				Field:  field.Name,
				Reason: check.Message,
			})
			result.Score -= invalidPenalty
		case types.ActionWarn:
			result.Warnings = append(result.Warnings, check.Message)
			result.Score -= warningPenalty
		}
	}

	Rescore(result)
	return result
}

// Rescore recomputes a bundle's score and validity from its annotations.
// Callers that merge findings from other validators into the same bundle
// (schema checks, for one) use this to keep the score consistent with the
// annotation lists.
func Rescore(v *types.BundleValidation) {
	v.Score = startingScore -
		missingPenalty*len(v.MissingRequired) -
		invalidPenalty*len(v.InvalidValues) -
		warningPenalty*len(v.Warnings)
	if v.Score < 0 {
		v.Score = 0
	}
	v.IsValid = len(v.MissingRequired) == 0 &&
		len(v.InvalidValues) == 0 &&
		v.Score >= minPassingScore
}
