package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain json untouched", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fence with language id", "```javascript\n{\"a\": 1}\n```", `{"a": 1}`},
		{"leading whitespace", "  \n```json\n{}\n```", `{}`},
		{"fence on same line as content", "```{\"a\": 1}```", `{"a": 1}`},
		{"unfenced prose", "not json at all", "not json at all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONBlock(tt.in))
		})
	}
}

func TestConfigGetModel(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "gemini-2.0-flash-lite", cfg.GetModel(TierLite))
	assert.Equal(t, "gemini-2.0-flash", cfg.GetModel(TierStandard))

	// Unknown tiers fall back to standard.
	assert.Equal(t, "gemini-2.0-flash", cfg.GetModel(ModelTier("experimental")))

	var nilCfg *Config
	assert.Equal(t, "", nilCfg.GetModel(TierStandard))
}

func TestFakeClientQueue(t *testing.T) {
	client := NewFakeClient("first", "second")

	resp, err := client.Generate(context.Background(), "p1", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)

	client.QueueError(errors.New("boom"))

	resp, err = client.Generate(context.Background(), "p2", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Text)

	_, err = client.Generate(context.Background(), "p3", DefaultOptions())
	assert.Error(t, err)

	_, err = client.Generate(context.Background(), "p4", DefaultOptions())
	assert.Error(t, err)

	assert.Equal(t, 4, client.CallCount())
	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, client.Calls)
}

func TestFakeClientCleansJSONResponses(t *testing.T) {
	client := NewFakeClient("```json\n{\"ok\": true}\n```")
	opts := DefaultOptions()
	opts.JSONResponse = true

	resp, err := client.Generate(context.Background(), "p", opts)
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, resp.Text)
}

func TestFakeClientHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewFakeClient("unused")
	_, err := client.Generate(ctx, "p", DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, client.CallCount())
}
