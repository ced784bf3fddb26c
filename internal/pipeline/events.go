package pipeline

import (
	"time"

	"github.com/jonathan/diligence-engine/internal/types"
)

// EventType discriminates pipeline events.
type EventType string

const (
	EventStart           EventType = "start"
	EventStageStart      EventType = "stage_start"
	EventStageProgress   EventType = "stage_progress"
	EventStageComplete   EventType = "stage_complete"
	EventStageError      EventType = "stage_error"
	EventOverallProgress EventType = "overall_progress"
	EventComplete        EventType = "complete"
	EventError           EventType = "error"
)

// Event is one discrete pipeline occurrence. Progress values are intended to
// be monotonic but not strictly enforced; consumers should tolerate repeats.
type Event struct {
	Type     EventType             `json:"type"`
	StageID  string                `json:"stage_id,omitempty"`
	Message  string                `json:"message,omitempty"`
	Progress float64               `json:"progress,omitempty"`
	Error    string                `json:"error,omitempty"`
	Result   *types.PipelineResult `json:"result,omitempty"`
	At       time.Time             `json:"at"`
}

// Observer receives every pipeline event. The plain and streaming run
// variants are the same state machine; only the observer differs.
type Observer func(Event)

// ProgressSink is the reduced consumer interface: overall progress 0..100
// with a short message.
type ProgressSink func(progress float64, message string)

// progressObserver adapts a ProgressSink into an Observer, forwarding only
// the progress-bearing events.
func progressObserver(sink ProgressSink) Observer {
	if sink == nil {
		return func(Event) {}
	}
	return func(event Event) {
		switch event.Type {
		case EventStageProgress, EventOverallProgress, EventComplete:
			sink(event.Progress, event.Message)
		case EventError:
			sink(event.Progress, event.Error)
		}
	}
}
