package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

// delimiter cannot appear in model IDs or prompts (ASCII record separator),
// so joining model, prompt, and the canonical options encoding with it
// cannot produce a collision between, say, ("a", "b|c") and ("a|b", "c").
const delimiter = "\x1e"

// Key computes the content-addressed cache key of spec.md §4.5: a
// cryptographic digest over model, prompt, and the canonical textual
// encoding of options, joined by a delimiter that cannot appear in either.
func Key(modelID, prompt string, opts model.Options) string {
	temp := "nil"
	if opts.Temperature != nil {
		temp = fmt.Sprintf("%g", *opts.Temperature)
	}
	maxTok := "nil"
	if opts.MaxTokens != nil {
		maxTok = fmt.Sprintf("%d", *opts.MaxTokens)
	}
	canonical := fmt.Sprintf("system=%s&temperature=%s&max_tokens=%s", opts.SystemPrompt, temp, maxTok)

	joined := modelID + delimiter + prompt + delimiter + canonical
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
