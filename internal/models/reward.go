package models

// MaxRewardTotal is the upper bound of RewardScore.Total.
const MaxRewardTotal = 20.0

// Reward dimensions produced by the validator.
const (
	DimensionNonEmpty      = "non_empty"
	DimensionSyntax        = "syntax"
	DimensionCompiles      = "compiles"           // go build in a scratch module
	DimensionIdiomatic     = "idiomatic"          // absence of leftover Java constructs
	DimensionPublicSurface = "public_surface"     // preserved public method/field names
	DimensionContext       = "context_similarity" // identifiers shared with retrieved snippets
	DimensionGuidance      = "guidance_compliance"
)

// RewardScore is the bounded composite quality signal for one translation.
type RewardScore struct {
	DimensionScores map[string]float64 `json:"dimension_scores"`
	Total           float64            `json:"total"`
	MaxTotal        float64            `json:"max_total"`
	Notes           []string           `json:"notes,omitempty"` // Validator findings (e.g. leftover constructs)
}
