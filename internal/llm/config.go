package llm

// Provider identifies an LLM backend.
type Provider string

const (
	// ProviderGemini is the Google Gemini backend.
	ProviderGemini Provider = "gemini"
)

// ModelTier selects a capability/cost tradeoff for a generation call.
type ModelTier string

const (
	// TierLite is for cheap, simple calls (claim checks, short summaries).
	TierLite ModelTier = "lite"
	// TierStandard is the default tier for stage analysis.
	TierStandard ModelTier = "standard"
	// TierAdvanced is for stages that need deeper reasoning (cost modelling,
	// final recommendation).
	TierAdvanced ModelTier = "advanced"
)

// Config holds provider selection and per-tier model names.
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
}

// DefaultConfig returns the default Gemini model mapping.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.0-flash-lite",
			TierStandard: "gemini-2.0-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
	}
}

// GetModel returns the model name for a tier, falling back to the standard
// tier if the requested one is not configured.
func (c *Config) GetModel(tier ModelTier) string {
	if c == nil || c.Models == nil {
		return ""
	}
	if model, ok := c.Models[tier]; ok {
		return model
	}
	return c.Models[TierStandard]
}
