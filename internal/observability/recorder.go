// Package observability provides the per-run debug recorder, structured
// logging setup, and formatted output utilities for verbose CLI mode.
package observability

import (
	"sync"
	"time"

	"github.com/jonathan/diligence-engine/internal/extraction"
	"github.com/jonathan/diligence-engine/internal/types"
)

// EventRecord is one pipeline event captured for the debug sink.
type EventRecord struct {
	Type     string    `json:"type"`
	StageID  string    `json:"stage_id,omitempty"`
	Message  string    `json:"message,omitempty"`
	Progress float64   `json:"progress,omitempty"`
	At       time.Time `json:"at"`
}

// StageStats holds per-stage timing and token counts.
type StageStats struct {
	Status       string `json:"status"`
	DurationMS   int64  `json:"duration_ms"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Attempts     int    `json:"attempts"`
}

// SanityTally counts sanity-check outcomes across the run.
type SanityTally struct {
	Pass   int `json:"pass"`
	Warn   int `json:"warn"`
	Reject int `json:"reject"`
}

// RunRecord is the serializable debug record for one pipeline run. The core
// performs no I/O with it; persistence belongs to the telemetry collaborator.
type RunRecord struct {
	RunID        string                `json:"run_id"`
	AssessmentID string                `json:"assessment_id"`
	StartedAt    time.Time             `json:"started_at"`
	FinishedAt   time.Time             `json:"finished_at"`
	Events       []EventRecord         `json:"events"`
	Stages       map[string]StageStats `json:"stages"`
	Extractions  []extraction.Attempt  `json:"extractions"`
	Sanity       SanityTally           `json:"sanity"`
}

// Recorder accumulates a RunRecord. One recorder is constructed per run and
// passed into the orchestrator explicitly; there is no process-wide registry.
type Recorder struct {
	mu     sync.Mutex
	record RunRecord
}

// NewRecorder starts a record for the given run.
func NewRecorder(runID, assessmentID string) *Recorder {
	return &Recorder{
		record: RunRecord{
			RunID:        runID,
			AssessmentID: assessmentID,
			StartedAt:    time.Now(),
			Stages:       make(map[string]StageStats),
		},
	}
}

// Event captures one pipeline event.
func (r *Recorder) Event(eventType, stageID, message string, progress float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record.Events = append(r.record.Events, EventRecord{
		Type:     eventType,
		StageID:  stageID,
		Message:  message,
		Progress: progress,
		At:       time.Now(),
	})
}

// StageFinished captures final stats for a stage.
func (r *Recorder) StageFinished(stageID string, stats StageStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record.Stages[stageID] = stats
}

// StageDuration stamps a stage's wall time without disturbing stats the
// stage already reported.
func (r *Recorder) StageDuration(stageID string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := r.record.Stages[stageID]
	stats.DurationMS = d.Milliseconds()
	r.record.Stages[stageID] = stats
}

// Extraction captures one extraction attempt.
func (r *Recorder) Extraction(attempt extraction.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record.Extractions = append(r.record.Extractions, attempt)
}

// Sanity tallies one sanity-check outcome.
func (r *Recorder) Sanity(action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch action {
	case types.ActionPass:
		r.record.Sanity.Pass++
	case types.ActionWarn:
		r.record.Sanity.Warn++
	case types.ActionReject:
		r.record.Sanity.Reject++
	}
}

// Finish stamps the end time.
func (r *Recorder) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record.FinishedAt = time.Now()
}

// Snapshot returns a copy of the record safe to serialize.
func (r *Recorder) Snapshot() RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.record
	out.Events = append([]EventRecord(nil), r.record.Events...)
	out.Extractions = append([]extraction.Attempt(nil), r.record.Extractions...)
	out.Stages = make(map[string]StageStats, len(r.record.Stages))
	for stageID, stats := range r.record.Stages {
		out.Stages[stageID] = stats
	}
	return out
}
