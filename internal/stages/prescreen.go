package stages

import (
	"fmt"
	"strings"

	"github.com/jonathan/diligence-engine/internal/types"
)

// PreCheck is a fast synchronous plausibility screen that runs before the
// stage loop. Pre-checks never call the generator; a failure aborts the run
// before any tokens are spent.
type PreCheck struct {
	Name string
	Run  func(env *Env, input *types.PipelineInput) error
}

// minDescriptionLen guards against inputs too thin to analyse.
const minDescriptionLen = 40

// DefaultPreChecks returns the standard screen: input shape, description
// substance, claim confidence sanity, and domain recognizability.
func DefaultPreChecks() []PreCheck {
	return []PreCheck{
		{
			Name: "description",
			Run: func(env *Env, input *types.PipelineInput) error {
				if len(strings.TrimSpace(input.Description)) < minDescriptionLen {
					return fmt.Errorf("description too short to assess (%d chars, need %d)",
						len(strings.TrimSpace(input.Description)), minDescriptionLen)
				}
				return nil
			},
		},
		{
			Name: "claims",
			Run: func(env *Env, input *types.PipelineInput) error {
				for i, claim := range input.Claims {
					if strings.TrimSpace(claim.Text) == "" {
						return fmt.Errorf("claim %d has empty text", i+1)
					}
					if claim.Confidence < 0 || claim.Confidence > 1 {
						return fmt.Errorf("claim %d confidence %g outside [0, 1]", i+1, claim.Confidence)
					}
				}
				return nil
			},
		},
		{
			Name: "domain",
			Run: func(env *Env, input *types.PipelineInput) error {
				if !env.Benchmarks.KnownDomain(input.Domain) {
					env.Logger.Warn("unrecognized domain, benchmarks fall back to generic ranges",
						"domain", input.Domain)
				}
				return nil
			},
		},
	}
}
