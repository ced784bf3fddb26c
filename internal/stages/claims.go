package stages

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/diligence-engine/internal/extraction"
	"github.com/jonathan/diligence-engine/internal/genloop"
	"github.com/jonathan/diligence-engine/internal/llm"
	"github.com/jonathan/diligence-engine/internal/types"
)

// claimBatchSize bounds concurrent verification calls; the external generator
// is rate limited, so batches are awaited before the next one starts.
const claimBatchSize = 3

var claimVerdicts = map[string]bool{
	"supported":   true,
	"unsupported": true,
	"uncertain":   true,
}

// ClaimsStage verifies each submitted claim with its own generation call,
// processed in fixed-size concurrent batches.
func ClaimsStage(ctx context.Context, env *Env, input *types.PipelineInput, prior types.OutputView, report ProgressFunc) (*types.StageOutput, error) {
	stageID := extraction.StageClaims

	if len(input.Claims) == 0 {
		report(100, "no claims submitted")
		return &types.StageOutput{
			StageID: stageID,
			Status:  types.StageStatusComplete,
			Content: types.ObjectValue(map[string]*types.Value{
				"summary":         types.StringValue("No claims were submitted for verification."),
				"claims":          types.ArrayValue(),
				"supported_ratio": types.NumberValue(0),
			}),
			Fragments: []types.ReportFragment{
				{Title: "Claim Verification", Body: "No claims were submitted for verification.", StageID: stageID},
			},
		}, nil
	}

	verdicts := make([]*types.Value, len(input.Claims))
	var mu sync.Mutex
	var tokens types.TokenUsage
	var attempts int

	for start := 0; start < len(input.Claims); start += claimBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+claimBatchSize, len(input.Claims))
		report(float64(start)/float64(len(input.Claims))*90,
			fmt.Sprintf("verifying claims %d-%d of %d", start+1, end, len(input.Claims)))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				verdict, usage, tries, err := verifyClaim(gctx, env, input, input.Claims[i])
				if err != nil {
					return err
				}
				mu.Lock()
				verdicts[i] = verdict
				tokens.Add(usage)
				attempts += tries
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	report(95, "tallying verdicts")

	supported := 0
	for _, verdict := range verdicts {
		if text, ok := verdict.Field("verdict").AsString(); ok && text == "supported" {
			supported++
		}
	}
	ratio := float64(supported) / float64(len(verdicts))

	output := &types.StageOutput{
		StageID: stageID,
		Status:  types.StageStatusComplete,
		Content: types.ObjectValue(map[string]*types.Value{
			"summary": types.StringValue(fmt.Sprintf(
				"%d of %d claims are supported by the submitted materials.", supported, len(verdicts))),
			"claims":          types.ArrayValue(verdicts...),
			"supported_ratio": types.NumberValue(ratio),
		}),
		Tokens: tokens,
	}
	output.Fragments = []types.ReportFragment{
		fragment(env, stageID, "Claim Verification", output, nil),
	}
	recordStage(env, stageID, output, attempts)
	report(100, "claim verification complete")
	return output, nil
}

// verifyClaim runs the correction loop for one claim and returns its verdict
// entry.
func verifyClaim(ctx context.Context, env *Env, input *types.PipelineInput, claim types.Claim) (*types.Value, types.TokenUsage, int, error) {
	prompt, err := stagePrompt(extraction.StageClaims, map[string]string{
		"Name":     input.Name,
		"Domain":   input.Domain,
		"Excerpts": excerptBlock(input),
		"Claims":   fmt.Sprintf("1. %s", claim.Text),
	})
	if err != nil {
		return nil, types.TokenUsage{}, 0, err
	}

	opts := llm.DefaultOptions()
	opts.Tier = llm.TierLite
	opts.JSONResponse = true

	result, err := genloop.GenerateValidated(ctx, env.Client, opts, prompt, parseTree, validateClaimEntry, env.GenRetries)
	if err != nil {
		return nil, types.TokenUsage{}, 0, err
	}

	entry := result.Value.Field("claims").Index(0)
	if entry.IsNull() {
		entry = types.ObjectValue(map[string]*types.Value{
			"text":    types.StringValue(claim.Text),
			"verdict": types.StringValue("uncertain"),
		})
	} else if entry.Kind == types.KindObject {
		// Carry the claim verbatim; models sometimes paraphrase.
		entry.Obj["text"] = types.StringValue(claim.Text)
	}
	return entry, result.Tokens, result.Attempts, nil
}

// validateClaimEntry accepts a response whose first claim entry carries a
// recognized verdict.
func validateClaimEntry(v *types.Value) *types.BundleValidation {
	validation := &types.BundleValidation{IsValid: true, Score: 100}
	entry := v.Field("claims").Index(0)
	if entry.IsNull() {
		validation.IsValid = false
		validation.Score = 60
		validation.MissingRequired = append(validation.MissingRequired, "claims[0]")
		return validation
	}
	verdict, ok := entry.Field("verdict").AsString()
	if !ok || !claimVerdicts[verdict] {
		validation.IsValid = false
		validation.Score = 70
		validation.InvalidValues = append(validation.InvalidValues, types.InvalidValue{
			Field:  "claims[0].verdict",
			Reason: fmt.Sprintf("verdict %q is not one of supported, unsupported, uncertain", verdict),
		})
	}
	return validation
}
