package benchmarks

import (
	"fmt"
	"math"
)

// CorrectionMode gates whether implausible cost aggregates are rewritten or
// only flagged.
type CorrectionMode string

const (
	// ModeLenient applies the correction factor to the breakdown.
	ModeLenient CorrectionMode = "lenient"
	// ModeStrict computes the factor but leaves the breakdown untouched,
	// flagging the aggregate instead. An unusual-but-correct project should
	// not be silently overwritten.
	ModeStrict CorrectionMode = "strict"
)

// DefaultTolerance widens the acceptance band around the benchmark range
// before a correction is considered.
const DefaultTolerance = 1.5

// LineItem is one additive component of a cost breakdown.
type LineItem struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// CostBreakdown is an additive cost structure: line items summing to Total,
// with optional intermediate subtotal levels.
type CostBreakdown struct {
	Items     []LineItem         `json:"items"`
	Subtotals map[string]float64 `json:"subtotals,omitempty"`
	Total     float64            `json:"total"`
}

// Sum returns the sum of the line items.
func (b *CostBreakdown) Sum() float64 {
	var sum float64
	for _, item := range b.Items {
		sum += item.Amount
	}
	return sum
}

// consistencyTolerance is the relative slack allowed between the stated total
// and the sum of parts before the breakdown is considered inconsistent.
const consistencyTolerance = 0.01

// Consistent reports whether the stated total matches the sum of parts.
func (b *CostBreakdown) Consistent() bool {
	sum := b.Sum()
	if b.Total == 0 {
		return sum == 0
	}
	return math.Abs(sum-b.Total)/math.Abs(b.Total) <= consistencyTolerance
}

// CorrectionResult reports the outcome of NormalizeCosts.
type CorrectionResult struct {
	Applied    bool    `json:"applied"`
	Factor     float64 `json:"factor"`
	Normalized float64 `json:"normalized"`
	Message    string  `json:"message"`
}

// NormalizeCosts checks the breakdown's capacity-normalized total against the
// benchmark range and, when it falls outside [min/tolerance, max*tolerance],
// scales every line item, subtotal, and the total by median/normalized so
// internal proportions are preserved while the aggregate moves to the domain
// median. The correction is a last resort: it runs only after the
// sum-of-parts check passes, and only in lenient mode; strict mode flags
// without touching the numbers.
func NormalizeCosts(b *CostBreakdown, capacityKW float64, rng Range, tolerance float64, mode CorrectionMode) CorrectionResult {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	if capacityKW <= 0 {
		return CorrectionResult{Message: "no sizing denominator; correction skipped"}
	}
	if !b.Consistent() {
		return CorrectionResult{
			Message: fmt.Sprintf("breakdown inconsistent: line items sum to %g, stated total %g; correction skipped", b.Sum(), b.Total),
		}
	}

	normalized := b.Total / capacityKW
	lower := rng.Min / tolerance
	upper := rng.Max * tolerance
	if normalized >= lower && normalized <= upper {
		return CorrectionResult{
			Normalized: normalized,
			Message:    fmt.Sprintf("normalized total %g %s within tolerance band [%g, %g]", normalized, rng.Unit, lower, upper),
		}
	}

	factor := rng.Median / normalized
	if mode == ModeStrict {
		return CorrectionResult{
			Factor:     factor,
			Normalized: normalized,
			Message:    fmt.Sprintf("normalized total %g %s outside tolerance band [%g, %g]; strict mode, flagged but not corrected", normalized, rng.Unit, lower, upper),
		}
	}

	for i := range b.Items {
		b.Items[i].Amount *= factor
	}
	for key := range b.Subtotals {
		b.Subtotals[key] *= factor
	}
	b.Total *= factor

	return CorrectionResult{
		Applied:    true,
		Factor:     factor,
		Normalized: b.Total / capacityKW,
		Message:    fmt.Sprintf("normalized total %g %s outside tolerance band [%g, %g]; scaled by %g toward median %g", normalized, rng.Unit, lower, upper, factor, rng.Median),
	}
}
