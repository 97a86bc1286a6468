// Package subscription implements the fourth backend kind of spec.md
// §4.2.4: one that authenticates with a user's monthly subscription via
// cached OAuth refresh tokens instead of a pay-per-token API key. Reads
// and refreshes three well-known on-disk token files, one per family, and
// dispatches each query through that family's corresponding wire shape.
//
// Grounded on the teacher's internal/auth/apikey.go hashing/generation
// idiom and internal/config.Loader's mutex-guarded "load, mutate,
// atomically swap" pattern, applied here to OAuth token refresh instead
// of API-key metadata.
package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JustHereToHelp/HydraMCP/internal/errs"
	"github.com/JustHereToHelp/HydraMCP/internal/fetch"
	"github.com/JustHereToHelp/HydraMCP/internal/model"
	"github.com/JustHereToHelp/HydraMCP/internal/reasoning"
	"github.com/JustHereToHelp/HydraMCP/internal/retry"
)

// FamilyFiles names the on-disk token cache path for each family.
type FamilyFiles struct {
	ClaudePro      string
	ChatGPTPlus    string
	GeminiAdvanced string
}

// Config configures the subscription Backend.
type Config struct {
	ProviderKey string
	Files       FamilyFiles
	Client      *http.Client
	Timeout     time.Duration
}

// Backend dispatches to whichever subscription family owns the requested
// model ID, refreshing that family's OAuth token first if needed.
type Backend struct {
	providerKey string
	client      *http.Client
	timeout     time.Duration

	stores      map[Family]*tokenStore
	catalog     map[Family][]model.Info
	modelFamily map[string]Family
}

func New(cfg Config) (*Backend, error) {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	catalog, modelFamily, err := loadCatalog(cfg.ProviderKey)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		providerKey: cfg.ProviderKey,
		client:      client,
		timeout:     timeout,
		catalog:     catalog,
		modelFamily: modelFamily,
		stores: map[Family]*tokenStore{
			FamilyClaudePro: {
				path:          cfg.Files.ClaudePro,
				tokenEndpoint: "https://console.anthropic.com/v1/oauth/token",
				clientID:      "hydramcp-claude-pro",
				client:        client,
			},
			FamilyChatGPTPlus: {
				path:          cfg.Files.ChatGPTPlus,
				tokenEndpoint: "https://auth.openai.com/oauth/token",
				clientID:      "hydramcp-chatgpt-plus",
				client:        client,
			},
			FamilyGeminiAdvanced: {
				path:          cfg.Files.GeminiAdvanced,
				tokenEndpoint: "https://oauth2.googleapis.com/token",
				clientID:      "hydramcp-gemini-advanced",
				client:        client,
			},
		},
	}
	return b, nil
}

func (b *Backend) Name() string { return b.providerKey }

func (b *Backend) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for family, store := range b.stores {
		if len(b.catalog[family]) == 0 {
			continue
		}
		if _, err := store.AccessToken(ctx); err == nil {
			return true
		}
	}
	return false
}

func (b *Backend) ListModels(ctx context.Context) ([]model.Info, error) {
	var out []model.Info
	for _, entries := range b.catalog {
		out = append(out, entries...)
	}
	return out, nil
}

func (b *Backend) Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error) {
	family, ok := b.modelFamily[modelID]
	if !ok {
		return nil, &errs.RoutingError{Model: modelID, Tried: []string{b.providerKey}, Cause: fmt.Errorf("no subscription family serves model %q", modelID)}
	}

	timeout := b.timeout
	if reasoning.IsReasoningModel(modelID) {
		timeout = reasoning.ExtendTimeout(timeout)
	}

	var result *model.Response
	err := fetch.WithTimeout(ctx, modelID, timeout, func(ctx context.Context) error {
		return retry.Do(ctx, retry.Default(), func(ctx context.Context) error {
			access, err := b.stores[family].AccessToken(ctx)
			if err != nil {
				return err
			}
			r, err := b.dispatch(ctx, family, access, modelID, prompt, opts)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// dispatch sends the request using the wire shape the family's native
// consumer product actually speaks: messages-shape for Claude Pro,
// chat-completions-shape for ChatGPT Plus, generate-content-shape for
// Gemini Advanced — the same three shapes §4.2.1-4.2.3 already define,
// here carrying a bearer OAuth access token instead of an API key.
func (b *Backend) dispatch(ctx context.Context, family Family, access, modelID, prompt string, opts model.Options) (*model.Response, error) {
	switch family {
	case FamilyClaudePro:
		return b.dispatchMessagesShape(ctx, access, modelID, prompt, opts)
	case FamilyChatGPTPlus:
		return b.dispatchChatCompletionsShape(ctx, access, modelID, prompt, opts)
	case FamilyGeminiAdvanced:
		return b.dispatchGenerateContentShape(ctx, access, modelID, prompt, opts)
	default:
		return nil, fmt.Errorf("unknown subscription family %q", family)
	}
}

func (b *Backend) effectiveMaxTokens(modelID string, opts model.Options) int {
	maxTokens := 1024
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	if reasoning.IsReasoningModel(modelID) {
		maxTokens = reasoning.BoostMaxTokens(maxTokens)
	}
	return maxTokens
}

func (b *Backend) dispatchMessagesShape(ctx context.Context, access, modelID, prompt string, opts model.Options) (*model.Response, error) {
	body := struct {
		Model       string   `json:"model"`
		System      string   `json:"system,omitempty"`
		MaxTokens   int      `json:"max_tokens"`
		Temperature *float64 `json:"temperature,omitempty"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}{
		Model:       modelID,
		System:      opts.SystemPrompt,
		MaxTokens:   b.effectiveMaxTokens(modelID, opts),
		Temperature: opts.Temperature,
	}
	body.Messages = append(body.Messages, struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{Role: "user", Content: prompt})

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal claude-pro request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.claude.ai/v1/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build claude-pro request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+access)

	start := time.Now()
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, &errs.TransportError{Model: modelID, Cause: err}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read claude-pro response: %w", err)
	}
	latency := time.Since(start)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &errs.AuthError{Model: modelID, Cause: fmt.Errorf("http %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errs.BackendError{Model: modelID, Code: resp.StatusCode, Body: string(respBody)}
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal claude-pro response: %w", err)
	}

	var content string
	for _, c := range parsed.Content {
		if c.Type == "text" {
			content += c.Text
		}
	}
	if len(strings.TrimSpace(content)) < 10 {
		return nil, &errs.EmptyResponseError{Model: modelID}
	}

	return &model.Response{
		Model:   modelID,
		Content: content,
		Usage: &model.Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
		LatencyMs:    latency.Milliseconds(),
		FinishReason: parsed.StopReason,
	}, nil
}

func (b *Backend) dispatchChatCompletionsShape(ctx context.Context, access, modelID, prompt string, opts model.Options) (*model.Response, error) {
	type chatMsg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	var messages []chatMsg
	if opts.SystemPrompt != "" {
		messages = append(messages, chatMsg{Role: "system", Content: opts.SystemPrompt})
	}
	messages = append(messages, chatMsg{Role: "user", Content: prompt})

	maxTokens := b.effectiveMaxTokens(modelID, opts)
	body := struct {
		Model       string    `json:"model"`
		Messages    []chatMsg `json:"messages"`
		Temperature *float64  `json:"temperature,omitempty"`
		MaxTokens   int       `json:"max_tokens,omitempty"`
	}{
		Model:       modelID,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   maxTokens,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chatgpt-plus request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://chatgpt.com/backend-api/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build chatgpt-plus request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+access)

	start := time.Now()
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, &errs.TransportError{Model: modelID, Cause: err}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chatgpt-plus response: %w", err)
	}
	latency := time.Since(start)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &errs.AuthError{Model: modelID, Cause: fmt.Errorf("http %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errs.BackendError{Model: modelID, Code: resp.StatusCode, Body: string(respBody)}
	}

	var parsed struct {
		Choices []struct {
			Message      chatMsg `json:"message"`
			FinishReason string  `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal chatgpt-plus response: %w", err)
	}

	var content, finishReason string
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
		finishReason = parsed.Choices[0].FinishReason
	}
	if len(strings.TrimSpace(content)) < 10 {
		return nil, &errs.EmptyResponseError{Model: modelID}
	}

	return &model.Response{
		Model:   modelID,
		Content: content,
		Usage: &model.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
		LatencyMs:    latency.Milliseconds(),
		FinishReason: finishReason,
	}, nil
}

func (b *Backend) dispatchGenerateContentShape(ctx context.Context, access, modelID, prompt string, opts model.Options) (*model.Response, error) {
	type part struct {
		Text string `json:"text"`
	}
	type contentBlock struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}
	body := struct {
		Contents          []contentBlock `json:"contents"`
		SystemInstruction *contentBlock  `json:"systemInstruction,omitempty"`
		GenerationConfig  struct {
			MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
			Temperature     *float64 `json:"temperature,omitempty"`
		} `json:"generationConfig"`
	}{
		Contents: []contentBlock{{Role: "user", Parts: []part{{Text: prompt}}}},
	}
	body.GenerationConfig.MaxOutputTokens = b.effectiveMaxTokens(modelID, opts)
	body.GenerationConfig.Temperature = opts.Temperature
	if opts.SystemPrompt != "" {
		body.SystemInstruction = &contentBlock{Parts: []part{{Text: opts.SystemPrompt}}}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini-advanced request: %w", err)
	}

	url := fmt.Sprintf("https://alkalimakersuite-pa.clients6.google.com/v1/models/%s:generateContent", modelID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build gemini-advanced request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+access)

	start := time.Now()
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, &errs.TransportError{Model: modelID, Cause: err}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gemini-advanced response: %w", err)
	}
	latency := time.Since(start)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &errs.AuthError{Model: modelID, Cause: fmt.Errorf("http %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errs.BackendError{Model: modelID, Code: resp.StatusCode, Body: string(respBody)}
	}

	var parsed struct {
		Candidates []struct {
			Content      contentBlock `json:"content"`
			FinishReason string       `json:"finishReason"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
			TotalTokenCount      int `json:"totalTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal gemini-advanced response: %w", err)
	}

	var content, finishReason string
	if len(parsed.Candidates) > 0 {
		finishReason = strings.ToLower(parsed.Candidates[0].FinishReason)
		for _, p := range parsed.Candidates[0].Content.Parts {
			content += p.Text
		}
	}
	if len(strings.TrimSpace(content)) < 10 {
		return nil, &errs.EmptyResponseError{Model: modelID}
	}

	return &model.Response{
		Model:   modelID,
		Content: content,
		Usage: &model.Usage{
			PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
			CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
		},
		LatencyMs:    latency.Milliseconds(),
		FinishReason: finishReason,
	}, nil
}
