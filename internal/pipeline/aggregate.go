package pipeline

import (
	"time"

	"github.com/jonathan/diligence-engine/internal/extraction"
	"github.com/jonathan/diligence-engine/internal/stages"
	"github.com/jonathan/diligence-engine/internal/types"
)

// Aggregate folds stage outputs and errors into the final result. Report
// fragments keep stage-declaration order; the top-line rating and summary are
// lifted from the terminal recommendation stage via the extractor, so an
// oddly-shaped recommendation tree degrades to an empty rating rather than an
// error.
func Aggregate(env *stages.Env, order []string, outputs map[string]*types.StageOutput, stageErrors []types.StageError, aborted bool, runID string, startedAt time.Time) *types.PipelineResult {
	result := &types.PipelineResult{
		Errors: stageErrors,
		Metadata: types.RunMetadata{
			RunID:                runID,
			StartedAt:            startedAt,
			FinishedAt:           time.Now(),
			ComponentsSuccessful: len(outputs),
			ComponentsFailed:     len(stageErrors),
			ComponentsRun:        len(outputs) + len(stageErrors),
		},
	}

	for _, stageID := range order {
		output := outputs[stageID]
		if output == nil {
			continue
		}
		result.Fragments = append(result.Fragments, output.Fragments...)
	}

	if terminal := outputs[extraction.StageRecommendation]; terminal.Complete() {
		if rating, ok := env.Extractor.ExtractString(extraction.StageRecommendation, "rating", terminal.Content); ok {
			result.Rating = rating
		}
		if summary, ok := env.Extractor.ExtractString(extraction.StageRecommendation, "summary", terminal.Content); ok {
			result.Summary = summary
		}
	}

	switch {
	case aborted || len(outputs) == 0:
		result.Status = types.StatusFailed
	case len(stageErrors) == 0:
		result.Status = types.StatusComplete
	default:
		result.Status = types.StatusPartial
	}
	return result
}
