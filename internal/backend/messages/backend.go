// Package messages implements the Anthropic-family messages wire shape of
// spec.md §4.2.2: a separate system field, mandatory max_tokens, a
// response that is an array of typed content blocks, and usage reported
// as input_tokens/output_tokens.
//
// Grounded on the teacher's internal/router/adapters/anthropic.go.
package messages

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

const apiVersion = "2023-06-01"

// Backend talks to the Anthropic Messages API.
type Backend struct {
	providerKey string
	baseURL     string
	apiKey      string
	client      *http.Client
	timeout     time.Duration
	staticModels []model.Info
}

type Config struct {
	ProviderKey string
	BaseURL     string
	APIKey      string
	Client      *http.Client
	Timeout     time.Duration
	// StaticModels bypasses ListModels' endpoint call — Anthropic's
	// public catalog endpoint requires the same key, but a fixed list is
	// simpler to keep current for an orchestrator that only cares about
	// routing, not full catalog metadata.
	StaticModels []model.Info
}

func New(cfg Config) *Backend {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Backend{
		providerKey:  cfg.ProviderKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		client:       client,
		timeout:      timeout,
		staticModels: cfg.StaticModels,
	}
}

func (b *Backend) Name() string { return b.providerKey }

func (b *Backend) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := b.ListModels(ctx)
	return err == nil
}

func (b *Backend) ListModels(ctx context.Context) ([]model.Info, error) {
	if len(b.staticModels) > 0 {
		return b.staticModels, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build list-models request: %w", err)
	}
	b.applyHeaders(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &errs.TransportError{Model: b.providerKey, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read list-models response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errs.BackendError{Model: b.providerKey, Code: resp.StatusCode, Body: string(body)}
	}

	var parsed struct {
		Data []struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal model list: %w", err)
	}
	out := make([]model.Info, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		name := m.DisplayName
		if name == "" {
			name = m.ID
		}
		out = append(out, model.Info{ID: m.ID, DisplayName: name, ProviderKey: b.providerKey})
	}
	return out, nil
}

func (b *Backend) Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error) {
	timeout := b.timeout
	if reasoning.IsReasoningModel(modelID) {
		timeout = reasoning.ExtendTimeout(timeout)
	}

	var result *model.Response
	err := fetch.WithTimeout(ctx, modelID, timeout, func(ctx context.Context) error {
		return retry.Do(ctx, retry.Default(), func(ctx context.Context) error {
			r, err := b.doQuery(ctx, modelID, prompt, opts)
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

func (b *Backend) doQuery(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error) {
	maxTokens := 1024
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	if reasoning.IsReasoningModel(modelID) {
		maxTokens = reasoning.BoostMaxTokens(maxTokens)
	}

	body := messagesRequest{
		Model:       modelID,
		System:      opts.SystemPrompt,
		MaxTokens:   maxTokens, // mandatory for this wire shape
		Temperature: opts.Temperature,
		Messages: []messageBlock{
			{Role: "user", Content: prompt},
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal messages request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build messages request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	b.applyHeaders(httpReq)

	start := time.Now()
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, &errs.TransportError{Model: modelID, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read messages response: %w", err)
	}
	latency := time.Since(start)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &errs.AuthError{Model: modelID, Cause: fmt.Errorf("http %d: %s", resp.StatusCode, respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errs.BackendError{Model: modelID, Code: resp.StatusCode, Body: string(respBody)}
	}

	var parsed messagesResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal messages response: %w", err)
	}

	var content, reasoningContent string
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			content += block.Text
		case "thinking":
			reasoningContent += block.Thinking
		}
	}

	if len(strings.TrimSpace(content)) < 10 {
		if strings.TrimSpace(reasoningContent) == "" {
			return nil, &errs.EmptyResponseError{Model: modelID}
		}
		content = reasoning.ReasoningPrefix + reasoningContent
	}

	return &model.Response{
		Model:            modelID,
		Content:          content,
		ReasoningContent: reasoningContent,
		Usage: &model.Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
		LatencyMs:    latency.Milliseconds(),
		FinishReason: mapStopReason(parsed.StopReason),
	}, nil
}

func (b *Backend) applyHeaders(req *http.Request) {
	req.Header.Set("x-api-key", b.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
}

func mapStopReason(reason string) string {
	switch reason {
	case "end_turn":
		return "stop"
	case "max_tokens":
		return "length"
	case "stop_sequence":
		return "stop"
	default:
		return reason
	}
}

type messageBlock struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string         `json:"model"`
	System      string         `json:"system,omitempty"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature *float64       `json:"temperature,omitempty"`
	Messages    []messageBlock `json:"messages"`
}

type contentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

type messagesResponse struct {
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
