package genloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/diligence-engine/internal/llm"
	"github.com/jonathan/diligence-engine/internal/types"
)

type payload struct {
	TRL float64 `json:"trl"`
}

func parsePayload(text string) (payload, error) {
	var p payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return payload{}, err
	}
	return p, nil
}

func validateTRL(p payload) *types.BundleValidation {
	v := &types.BundleValidation{Score: 100, IsValid: true}
	if p.TRL < 1 || p.TRL > 9 {
		v.IsValid = false
		v.Score = 85
		v.InvalidValues = []types.InvalidValue{{Field: "trl", Reason: fmt.Sprintf("trl=%g outside [1, 9]", p.TRL)}}
	}
	return v
}

func TestFirstAttemptValid(t *testing.T) {
	client := llm.NewFakeClient(`{"trl": 7}`)

	result, err := GenerateValidated(context.Background(), client, llm.DefaultOptions(), "assess", parsePayload, validateTRL, 2)

	require.NoError(t, err)
	assert.Equal(t, 7.0, result.Value.TRL)
	assert.Equal(t, 1, result.Attempts)
	assert.False(t, result.Degraded)
	assert.Equal(t, 1, client.CallCount())
}

func TestCorrectiveRetrySucceeds(t *testing.T) {
	client := llm.NewFakeClient(`{"trl": 42}`, `{"trl": 6}`)

	result, err := GenerateValidated(context.Background(), client, llm.DefaultOptions(), "assess the tech", parsePayload, validateTRL, 2)

	require.NoError(t, err)
	assert.Equal(t, 6.0, result.Value.TRL)
	assert.Equal(t, 2, result.Attempts)
	assert.False(t, result.Degraded)

	// Retry prompt enumerates the problem and carries the original request.
	require.Len(t, client.Calls, 2)
	assert.Equal(t, "assess the tech", client.Calls[0])
	assert.Contains(t, client.Calls[1], "outside [1, 9]")
	assert.Contains(t, client.Calls[1], "assess the tech")
}

func TestExhaustionDegradesNotFails(t *testing.T) {
	client := llm.NewFakeClient(`{"trl": 42}`, `{"trl": 43}`)

	result, err := GenerateValidated(context.Background(), client, llm.DefaultOptions(), "assess", parsePayload, validateTRL, 1)

	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Equal(t, 43.0, result.Value.TRL)
	assert.Equal(t, 2, result.Attempts)
	require.NotNil(t, result.Validation)
	assert.False(t, result.Validation.IsValid)
	assert.NotEmpty(t, result.Validation.InvalidValues)
}

func TestCallBudget(t *testing.T) {
	// At most maxRetries+1 generator calls, and the loop returns on the
	// first attempt that validates.
	for _, maxRetries := range []int{0, 1, 3} {
		client := llm.NewFakeClient()
		for i := 0; i <= maxRetries+2; i++ {
			client.QueueResponse(`{"trl": 42}`)
		}

		result, err := GenerateValidated(context.Background(), client, llm.DefaultOptions(), "p", parsePayload, validateTRL, maxRetries)
		require.NoError(t, err)
		assert.Equal(t, maxRetries+1, client.CallCount(), "maxRetries=%d", maxRetries)
		assert.Equal(t, maxRetries+1, result.Attempts)
	}
}

func TestParseFailureRetriesThenSucceeds(t *testing.T) {
	client := llm.NewFakeClient("this is not json", `{"trl": 5}`)

	result, err := GenerateValidated(context.Background(), client, llm.DefaultOptions(), "assess", parsePayload, validateTRL, 1)

	require.NoError(t, err)
	assert.Equal(t, 5.0, result.Value.TRL)
	assert.Contains(t, client.Calls[1], "could not be parsed")
}

func TestParseFailureOnFinalAttemptIsHardError(t *testing.T) {
	client := llm.NewFakeClient(`{"trl": 42}`, "garbage")

	_, err := GenerateValidated(context.Background(), client, llm.DefaultOptions(), "assess", parsePayload, validateTRL, 1)

	require.Error(t, err)
	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestGeneratorCallFailurePropagates(t *testing.T) {
	client := llm.NewFakeClient()
	client.QueueError(errors.New("network down"))

	_, err := GenerateValidated(context.Background(), client, llm.DefaultOptions(), "assess", parsePayload, validateTRL, 3)

	require.Error(t, err)
	var genErr *GenerationError
	assert.True(t, errors.As(err, &genErr))
	assert.Equal(t, 1, client.CallCount())
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := llm.NewFakeClient(`{"trl": 7}`)

	_, err := GenerateValidated(ctx, client, llm.DefaultOptions(), "assess", parsePayload, validateTRL, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildCorrectivePromptSections(t *testing.T) {
	validation := &types.BundleValidation{
		MissingRequired: []string{"capex_per_kw"},
		InvalidValues:   []types.InvalidValue{{Field: "trl", Reason: "outside range"}},
		Warnings:        []string{"lcoe looks high"},
	}

	prompt := BuildCorrectivePrompt(validation, "ORIGINAL")

	assert.Contains(t, prompt, "capex_per_kw")
	assert.Contains(t, prompt, "trl: outside range")
	assert.Contains(t, prompt, "lcoe looks high")
	// Corrective diagnosis precedes the original request.
	assert.Less(t, strings.Index(prompt, "capex_per_kw"), strings.Index(prompt, "ORIGINAL"))
}
