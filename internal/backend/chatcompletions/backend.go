// Package chatcompletions implements the chat-completions wire shape of
// spec.md §4.2.1: an OpenAI-compatible POST to /chat/completions with a
// bearer token, and a variant for a local model server whose native
// endpoint reports token counts as "eval counts" instead of a usage block.
//
// Grounded on the teacher's internal/router/adapters/openai.go: same
// request/response body shapes, same bearer-header convention, same
// "AEGIS canonical is OpenAI format, so this is mostly passthrough" idiom.
package chatcompletions

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

// Backend talks to an OpenAI-compatible chat-completions endpoint.
type Backend struct {
	providerKey string
	baseURL     string
	apiKey      string
	client      *http.Client
	timeout     time.Duration
	// native, when true, targets a local model server's native /api/*
	// endpoints (Ollama) instead of the OpenAI-compatible surface, so
	// usage is read from eval_count/prompt_eval_count fields.
	native bool
	// staticModels, when non-empty, is returned by ListModels instead of
	// querying the backend's catalog endpoint (used when a server has no
	// enumerable catalog).
	staticModels []model.Info
}

// Config configures one Backend instance.
type Config struct {
	ProviderKey string
	BaseURL     string
	APIKey      string
	Client      *http.Client
	Timeout     time.Duration
	Native      bool
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
		providerKey: cfg.ProviderKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		client:      client,
		timeout:     timeout,
		native:      cfg.Native,
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

	path := "/models"
	if b.native {
		path = "/api/tags"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build list-models request: %w", err)
	}
	b.applyAuthHeaders(req)

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

	if b.native {
		var parsed struct {
			Models []struct {
				Name string `json:"name"`
			} `json:"models"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("unmarshal ollama tags: %w", err)
		}
		out := make([]model.Info, 0, len(parsed.Models))
		for _, m := range parsed.Models {
			out = append(out, model.Info{ID: m.Name, DisplayName: m.Name, ProviderKey: b.providerKey})
		}
		return out, nil
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal model list: %w", err)
	}
	out := make([]model.Info, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		out = append(out, model.Info{ID: m.ID, DisplayName: m.ID, ProviderKey: b.providerKey})
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
	messages := []chatMessage{}
	if opts.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: opts.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	maxTokens := 1024
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	isReasoning := reasoning.IsReasoningModel(modelID)
	if isReasoning {
		maxTokens = reasoning.BoostMaxTokens(maxTokens)
	}

	if b.native {
		return b.doNativeQuery(ctx, modelID, messages, opts, maxTokens)
	}

	body := chatRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   &maxTokens,
	}
	if isReasoning {
		body.MaxCompletionTokens = &maxTokens
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	b.applyAuthHeaders(httpReq)

	start := time.Now()
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, &errs.TransportError{Model: modelID, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}
	latency := time.Since(start)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &errs.AuthError{Model: modelID, Cause: fmt.Errorf("http %d: %s", resp.StatusCode, respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errs.BackendError{Model: modelID, Code: resp.StatusCode, Body: string(respBody)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal chat response: %w", err)
	}

	var content, reasoningContent, finishReason string
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
		reasoningContent = parsed.Choices[0].Message.ReasoningContent
		finishReason = parsed.Choices[0].FinishReason
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
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
		LatencyMs:    latency.Milliseconds(),
		FinishReason: finishReason,
	}, nil
}

// doNativeQuery targets a local model server's native chat endpoint
// (Ollama's /api/chat), whose response reports prompt/completion token
// counts as prompt_eval_count/eval_count rather than a usage block.
func (b *Backend) doNativeQuery(ctx context.Context, modelID string, messages []chatMessage, opts model.Options, maxTokens int) (*model.Response, error) {
	body := nativeChatRequest{
		Model:    modelID,
		Messages: messages,
		Stream:   false,
		Options: nativeOptions{
			NumPredict: maxTokens,
		},
	}
	if opts.Temperature != nil {
		body.Options.Temperature = opts.Temperature
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal native chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build native chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, &errs.TransportError{Model: modelID, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read native chat response: %w", err)
	}
	latency := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return nil, &errs.BackendError{Model: modelID, Code: resp.StatusCode, Body: string(respBody)}
	}

	var parsed nativeChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal native chat response: %w", err)
	}

	if strings.TrimSpace(parsed.Message.Content) == "" {
		return nil, &errs.EmptyResponseError{Model: modelID}
	}

	return &model.Response{
		Model:   modelID,
		Content: parsed.Message.Content,
		Usage: &model.Usage{
			PromptTokens:     parsed.PromptEvalCount,
			CompletionTokens: parsed.EvalCount,
			TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
		},
		LatencyMs:    latency.Milliseconds(),
		FinishReason: parsed.DoneReason,
	}, nil
}

func (b *Backend) applyAuthHeaders(req *http.Request) {
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
}

type chatMessage struct {
	Role             string `json:"role"`
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

type chatRequest struct {
	Model                string        `json:"model"`
	Messages             []chatMessage `json:"messages"`
	Temperature          *float64      `json:"temperature,omitempty"`
	MaxTokens            *int          `json:"max_tokens,omitempty"`
	MaxCompletionTokens  *int          `json:"max_completion_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type nativeOptions struct {
	NumPredict  int      `json:"num_predict,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type nativeChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  nativeOptions `json:"options"`
}

type nativeChatResponse struct {
	Message         chatMessage `json:"message"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}
