package stages

import "github.com/jonathan/diligence-engine/internal/extraction"

// DefaultStages returns the full due-diligence pipeline in its fixed
// dependency order. Later stages read earlier outputs, so the order is part
// of the contract. Weights shape the progress bands, not execution.
func DefaultStages() []Descriptor {
	return []Descriptor{
		{ID: extraction.StageTechnology, Title: "Technology Assessment", Weight: 20, Handler: TechnologyStage},
		{ID: extraction.StageMarket, Title: "Market Analysis", Weight: 15, Handler: MarketStage},
		{ID: extraction.StageCosts, Title: "Cost Model", Weight: 20, Handler: CostsStage},
		{ID: extraction.StageClaims, Title: "Claim Verification", Weight: 20, Handler: ClaimsStage},
		{ID: extraction.StageRisks, Title: "Risk Assessment", Weight: 10, Handler: RisksStage},
		{ID: extraction.StageRecommendation, Title: "Investment Recommendation", Weight: 15, Handler: RecommendationStage},
	}
}

// QuickScreenStages returns the reduced pipeline for a fast, cheap screen:
// technology maturity and a recommendation, skipping the expensive middle.
// It runs on the identical orchestrator core with reweighted bands.
func QuickScreenStages() []Descriptor {
	return []Descriptor{
		{ID: extraction.StageTechnology, Title: "Technology Assessment", Weight: 50, Handler: TechnologyStage},
		{ID: extraction.StageRecommendation, Title: "Investment Recommendation", Weight: 50, Handler: RecommendationStage},
	}
}
