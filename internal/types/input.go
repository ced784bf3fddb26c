package types

// Claim is a single technology or market claim extracted from the submitted
// materials, carried into the pipeline for verification.
type Claim struct {
	Text       string  `json:"text" validate:"required"`
	Source     string  `json:"source,omitempty"`
	Confidence float64 `json:"confidence,omitempty" validate:"gte=0,lte=1"`
}

// DocumentExcerpt is an excerpt from an uploaded supporting document.
type DocumentExcerpt struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

// PipelineInput carries everything a pipeline run needs about the assessment
// under review. It is immutable for the duration of a run.
type PipelineInput struct {
	AssessmentID string            `json:"assessment_id" validate:"required"`
	Name         string            `json:"name" validate:"required"`
	Description  string            `json:"description" validate:"required"`
	Domain       string            `json:"domain" validate:"required"`
	Claims       []Claim           `json:"claims,omitempty" validate:"dive"`
	Excerpts     []DocumentExcerpt `json:"excerpts,omitempty"`
}
