package cache

import "strings"

// Per million tokens.
const (
	proInputRate    = 1.25
	proOutputRate   = 5.00
	flashInputRate  = 0.10
	flashOutputRate = 0.40
)

// Rates returns the (input, output) price per million tokens for a model. Any
// model id containing "pro" is billed at the pro tier, everything else at the
// flash tier.
func Rates(modelId string) (float64, float64) {
	if strings.Contains(strings.ToLower(modelId), "pro") {
		return proInputRate, proOutputRate
	}
	return flashInputRate, flashOutputRate
}

// EstimateCost prices token counts with the rate of the model that consumed
// them. It is never stored, so historical rows keep their own model's rate.
func EstimateCost(modelId string, promptTokens, responseTokens int64) float64 {
	in, out := Rates(modelId)
	return float64(promptTokens)/1e6*in + float64(responseTokens)/1e6*out
}
