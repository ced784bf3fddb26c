package types

import "time"

// Pipeline status values.
const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
	StatusFailed   = "failed"
)

// StageError records a stage that exhausted its retries.
type StageError struct {
	StageID string `json:"stage_id"`
	Error   string `json:"error"`
}

// RunMetadata summarizes a pipeline run.
type RunMetadata struct {
	RunID                string    `json:"run_id"`
	StartedAt            time.Time `json:"started_at"`
	FinishedAt           time.Time `json:"finished_at"`
	ComponentsRun        int       `json:"components_run"`
	ComponentsSuccessful int       `json:"components_successful"`
	ComponentsFailed     int       `json:"components_failed"`
}

// PipelineResult is the aggregate of a full pipeline run.
type PipelineResult struct {
	Status    string           `json:"status"`
	Fragments []ReportFragment `json:"fragments"`
	Rating    string           `json:"rating,omitempty"`
	Summary   string           `json:"summary,omitempty"`
	Errors    []StageError     `json:"errors,omitempty"`
	Metadata  RunMetadata      `json:"metadata"`
}

// Sanity check actions.
const (
	ActionPass   = "pass"
	ActionWarn   = "warn"
	ActionReject = "reject"
)

// SanityCheckResult classifies one metric value against its benchmark range.
type SanityCheckResult struct {
	MetricID       string   `json:"metric_id"`
	Value          float64  `json:"value"`
	Action         string   `json:"action"`
	Message        string   `json:"message"`
	SuggestedValue *float64 `json:"suggested_value,omitempty"`
}

// InvalidValue describes a bundle field that failed validation, with the
// reason. Fed back to the generator verbatim in corrective prompts.
type InvalidValue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// BundleValidation is the outcome of validating a structured collection of
// named sub-metrics against required fields and benchmark ranges.
type BundleValidation struct {
	IsValid         bool           `json:"is_valid"`
	Score           int            `json:"score"`
	MissingRequired []string       `json:"missing_required,omitempty"`
	InvalidValues   []InvalidValue `json:"invalid_values,omitempty"`
	Warnings        []string       `json:"warnings,omitempty"`
}

// Clean reports whether the validation found nothing to complain about.
func (b *BundleValidation) Clean() bool {
	return b == nil || (len(b.MissingRequired) == 0 && len(b.InvalidValues) == 0 && len(b.Warnings) == 0)
}
