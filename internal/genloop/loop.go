// Package genloop wraps one external generation call with parsing, schema
// validation, and a bounded number of corrective re-calls.
package genloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/diligence-engine/internal/llm"
	"github.com/jonathan/diligence-engine/internal/types"
)

// State is one node of the correction loop's finite-state machine. The loop
// is an explicit FSM rather than recursion so the retry bound and terminal
// states stay auditable.
type State int

const (
	StateGenerating State = iota
	StateValidating
	StateRetrying
	StateDone
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateGenerating:
		return "generating"
	case StateValidating:
		return "validating"
	case StateRetrying:
		return "retrying"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseFunc converts raw generator text into a typed value.
type ParseFunc[T any] func(text string) (T, error)

// ValidateFunc checks a parsed value. A nil return (or a clean validation)
// accepts the value; annotations drive the corrective prompt.
type ValidateFunc[T any] func(value T) *types.BundleValidation

// Result carries the loop outcome.
type Result[T any] struct {
	Value T
	// Validation holds the final attempt's annotations. Non-nil and invalid
	// when the loop exhausted retries and degraded.
	Validation *types.BundleValidation
	// Degraded is set when retries ran out and the last parsed output was
	// returned despite failing validation.
	Degraded bool
	// Attempts counts generator calls made (at most maxRetries+1).
	Attempts int
	Tokens   types.TokenUsage
}

// GenerateValidated runs the bounded feedback cycle: generate, parse,
// validate, and on validation failure re-generate with a corrective prompt
// enumerating the specific problems. At most maxRetries+1 generator calls are
// made, strictly sequentially. Exhausting retries returns the last parsed
// output annotated as degraded; only a parse failure on the final attempt is
// a hard error.
func GenerateValidated[T any](ctx context.Context, client llm.Client, opts llm.Options, prompt string, parse ParseFunc[T], validate ValidateFunc[T], maxRetries int) (*Result[T], error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	result := &Result[T]{}
	state := StateGenerating
	attempt := 0
	currentPrompt := prompt
	var parseFailure error

	for {
		switch state {
		case StateGenerating:
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			resp, err := client.Generate(ctx, currentPrompt, opts)
			if err != nil {
				return nil, &GenerationError{Attempt: attempt, Cause: err}
			}
			result.Attempts++
			result.Tokens.Add(types.TokenUsage{Input: resp.Usage.Input, Output: resp.Usage.Output})

			value, err := parse(resp.Text)
			if err != nil {
				if attempt >= maxRetries {
					state = StateFailed
					parseFailure = err
					continue
				}
				parseFailure = err
				state = StateRetrying
				continue
			}
			parseFailure = nil
			result.Value = value
			state = StateValidating

		case StateValidating:
			validation := validate(result.Value)
			result.Validation = validation
			if validation == nil || validation.IsValid {
				state = StateDone
				continue
			}
			if attempt >= maxRetries {
				result.Degraded = true
				state = StateDone
				continue
			}
			state = StateRetrying

		case StateRetrying:
			attempt++
			if parseFailure != nil {
				currentPrompt = buildParseCorrection(parseFailure, prompt)
			} else {
				currentPrompt = BuildCorrectivePrompt(result.Validation, prompt)
			}
			state = StateGenerating

		case StateDone:
			return result, nil

		case StateFailed:
			return nil, &ParseError{Attempt: attempt, Cause: parseFailure}
		}
	}
}

// BuildCorrectivePrompt enumerates the failed validation's missing fields,
// invalid values, and warnings, then repeats the original request. The
// corrective text goes ahead of the original prompt so the model reads the
// diagnosis first.
func BuildCorrectivePrompt(validation *types.BundleValidation, original string) string {
	var sb strings.Builder
	sb.WriteString("Your previous response had problems that must be fixed.\n\n")

	if len(validation.MissingRequired) > 0 {
		sb.WriteString("Missing required fields:\n")
		for _, field := range validation.MissingRequired {
			sb.WriteString(fmt.Sprintf("- %s\n", field))
		}
		sb.WriteString("\n")
	}

	if len(validation.InvalidValues) > 0 {
		sb.WriteString("Invalid values:\n")
		for _, invalid := range validation.InvalidValues {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", invalid.Field, invalid.Reason))
		}
		sb.WriteString("\n")
	}

	if len(validation.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, warning := range validation.Warnings {
			sb.WriteString(fmt.Sprintf("- %s\n", warning))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Correct these issues and respond again. Original request follows.\n\n")
	sb.WriteString(original)
	return sb.String()
}

func buildParseCorrection(parseErr error, original string) string {
	var sb strings.Builder
	sb.WriteString("Your previous response could not be parsed: ")
	sb.WriteString(parseErr.Error())
	sb.WriteString("\nRespond with valid JSON only, no prose. Original request follows.\n\n")
	sb.WriteString(original)
	return sb.String()
}
