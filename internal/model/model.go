// Package model holds the data types shared across every backend and
// orchestration layer: the catalog entry, the per-call options, and the
// normalized response shape every Backend returns.
package model

// Info describes one model as exposed by a Backend. ID is globally
// unique within the process once MultiBackend has prefixed it with its
// provider_key.
type Info struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	ProviderKey string `json:"provider_key"`
}

// Options carries the optional per-query parameters a caller may set.
type Options struct {
	SystemPrompt string
	Temperature  *float64 // 0..2
	MaxTokens    *int     // > 0
}

// Usage reports token accounting for one completed query.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the normalized shape every Backend.Query call returns.
// Invariant: LatencyMs == 0 iff the response was served from the
// ResponseCache.
type Response struct {
	Model            string
	Content          string
	ReasoningContent string
	Usage            *Usage
	LatencyMs        int64
	FinishReason     string
	Warning          string
	FallbackFrom     string
}
