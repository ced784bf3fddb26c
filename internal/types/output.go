package types

import "time"

// Stage status values.
const (
	StageStatusComplete = "complete"
	StageStatusError    = "error"
)

// TokenUsage counts generator tokens consumed by a stage.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Add accumulates another usage count.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Input += other.Input
	u.Output += other.Output
}

// ReportFragment is one rendered section of the final report, produced by a
// stage. The core never renders fragments to a file format; it only orders
// them.
type ReportFragment struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	StageID string `json:"stage_id"`
}

// StageOutput is the result of one pipeline stage. Status "complete" implies
// Content is non-null.
type StageOutput struct {
	StageID   string           `json:"stage_id"`
	Status    string           `json:"status"`
	Content   *Value           `json:"content"`
	Fragments []ReportFragment `json:"fragments,omitempty"`
	Error     string           `json:"error,omitempty"`
	Duration  time.Duration    `json:"duration"`
	Tokens    TokenUsage       `json:"tokens"`
}

// Complete reports whether the stage finished with usable content.
func (o *StageOutput) Complete() bool {
	return o != nil && o.Status == StageStatusComplete && !o.Content.IsNull()
}

// OutputView is a read-only view over completed stage outputs, handed to
// stage factories so later stages can read earlier results without being able
// to mutate the orchestrator's map.
type OutputView struct {
	outputs map[string]*StageOutput
}

// NewOutputView wraps the given map. The orchestrator retains ownership; the
// view never writes.
func NewOutputView(outputs map[string]*StageOutput) OutputView {
	return OutputView{outputs: outputs}
}

// Get returns the output for a stage id, or nil if the stage has not
// completed.
func (v OutputView) Get(stageID string) *StageOutput {
	return v.outputs[stageID]
}

// Content returns the content tree for a stage id, or nil.
func (v OutputView) Content(stageID string) *Value {
	if out := v.outputs[stageID]; out != nil {
		return out.Content
	}
	return nil
}
