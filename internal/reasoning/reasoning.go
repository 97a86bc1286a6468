// Package reasoning implements the reasoning-model detection and
// token-budget boost of spec.md §4.2 "Reasoning-model handling": a model
// ID matched by any of a known set of patterns gets its effective
// max_tokens boosted and its per-request timeout extended.
package reasoning

import (
	"regexp"
	"time"
)

// patterns match the known reasoning-model families: o-series, DeepSeek-r1,
// QwQ, Gemini-thinking variants, and Gemini-3-Pro.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^o[0-9](-mini)?$`),
	regexp.MustCompile(`(?i)^o[0-9]-`),
	regexp.MustCompile(`(?i)deepseek-r1`),
	regexp.MustCompile(`(?i)qwq`),
	regexp.MustCompile(`(?i)gemini.*thinking`),
	regexp.MustCompile(`(?i)gemini-3-pro`),
}

// IsReasoningModel reports whether modelID belongs to a known
// reasoning-model family.
func IsReasoningModel(modelID string) bool {
	for _, p := range patterns {
		if p.MatchString(modelID) {
			return true
		}
	}
	return false
}

// BoostMaxTokens applies clamp(4*requested, 4096, 16384) when requested is
// positive, else returns the default 8192 budget reasoning models need to
// leave room for hidden reasoning tokens before any visible content.
func BoostMaxTokens(requested int) int {
	if requested <= 0 {
		requested = 2048
	}
	boosted := requested * 4
	if boosted < 4096 {
		boosted = 4096
	}
	if boosted > 16384 {
		boosted = 16384
	}
	return boosted
}

// ExtendTimeout lengthens a base per-request timeout for reasoning models,
// which routinely spend tens of seconds in hidden reasoning before the
// first visible token.
func ExtendTimeout(base time.Duration) time.Duration {
	extended := base * 2
	const floor = 180 * time.Second
	if extended < floor {
		return floor
	}
	return extended
}

// ReasoningPrefix labels reasoning content promoted to the visible
// response when the backend returned empty content but non-empty
// reasoning_content.
const ReasoningPrefix = "_[reasoning trace — model returned no final answer]_\n\n"
