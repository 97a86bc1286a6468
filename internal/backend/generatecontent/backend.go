// Package generatecontent implements the Gemini-family generate-content
// wire shape of spec.md §4.2.3: the model ID goes in the URL path, the API
// key is a query parameter, the system instruction is a structured field,
// and content is split into "parts". ListModels paginates and filters to
// generative Gemini variants.
//
// No teacher analog exists for this wire shape — built directly from
// spec.md's description, in the same stdlib net/http + encoding/json
// idiom the teacher's adapters use.
package generatecontent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JustHereToHelp/HydraMCP/internal/errs"
	"github.com/JustHereToHelp/HydraMCP/internal/fetch"
	"github.com/JustHereToHelp/HydraMCP/internal/model"
	"github.com/JustHereToHelp/HydraMCP/internal/reasoning"
	"github.com/JustHereToHelp/HydraMCP/internal/retry"
)

// Backend talks to the Gemini generateContent API.
type Backend struct {
	providerKey string
	baseURL     string
	apiKey      string
	client      *http.Client
	timeout     time.Duration
}

type Config struct {
	ProviderKey string
	BaseURL     string
	APIKey      string
	Client      *http.Client
	Timeout     time.Duration
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
	}
}

func (b *Backend) Name() string { return b.providerKey }

func (b *Backend) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := b.ListModels(ctx)
	return err == nil
}

// ListModels paginates through /models, filtering to models whose
// supportedGenerationMethods include generateContent and whose name
// matches the "gemini" family.
func (b *Backend) ListModels(ctx context.Context) ([]model.Info, error) {
	var out []model.Info
	pageToken := ""
	for {
		reqURL := b.baseURL + "/models?key=" + url.QueryEscape(b.apiKey) + "&pageSize=100"
		if pageToken != "" {
			reqURL += "&pageToken=" + url.QueryEscape(pageToken)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build list-models request: %w", err)
		}

		resp, err := b.client.Do(req)
		if err != nil {
			return nil, &errs.TransportError{Model: b.providerKey, Cause: err}
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read list-models response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &errs.BackendError{Model: b.providerKey, Code: resp.StatusCode, Body: string(body)}
		}

		var parsed listModelsResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("unmarshal model list: %w", err)
		}
		for _, m := range parsed.Models {
			if !isGenerativeGemini(m) {
				continue
			}
			id := strings.TrimPrefix(m.Name, "models/")
			display := m.DisplayName
			if display == "" {
				display = id
			}
			out = append(out, model.Info{ID: id, DisplayName: display, ProviderKey: b.providerKey})
		}

		if parsed.NextPageToken == "" {
			break
		}
		pageToken = parsed.NextPageToken
	}
	return out, nil
}

func isGenerativeGemini(m geminiModel) bool {
	if !strings.Contains(strings.ToLower(m.Name), "gemini") {
		return false
	}
	for _, method := range m.SupportedGenerationMethods {
		if method == "generateContent" {
			return true
		}
	}
	return false
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

	body := generateContentRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: prompt}}},
		},
		GenerationConfig: generationConfig{
			MaxOutputTokens: maxTokens,
			Temperature:     opts.Temperature,
		},
	}
	if opts.SystemPrompt != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: opts.SystemPrompt}}}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal generate-content request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s", b.baseURL, url.PathEscape(modelID), url.QueryEscape(b.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build generate-content request: %w", err)
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
		return nil, fmt.Errorf("read generate-content response: %w", err)
	}
	latency := time.Since(start)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &errs.AuthError{Model: modelID, Cause: fmt.Errorf("http %d: %s", resp.StatusCode, respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errs.BackendError{Model: modelID, Code: resp.StatusCode, Body: string(respBody)}
	}

	var parsed generateContentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal generate-content response: %w", err)
	}

	var contentText, reasoningText, finishReason string
	if len(parsed.Candidates) > 0 {
		cand := parsed.Candidates[0]
		finishReason = strings.ToLower(cand.FinishReason)
		for _, p := range cand.Content.Parts {
			if p.Thought {
				reasoningText += p.Text
			} else {
				contentText += p.Text
			}
		}
	}

	if len(strings.TrimSpace(contentText)) < 10 {
		if strings.TrimSpace(reasoningText) == "" {
			return nil, &errs.EmptyResponseError{Model: modelID}
		}
		contentText = reasoning.ReasoningPrefix + reasoningText
	}

	return &model.Response{
		Model:            modelID,
		Content:          contentText,
		ReasoningContent: reasoningText,
		Usage: &model.Usage{
			PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
			CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
		},
		LatencyMs:    latency.Milliseconds(),
		FinishReason: finishReason,
	}, nil
}

type part struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type generateContentRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

type geminiModel struct {
	Name                       string   `json:"name"`
	DisplayName                string   `json:"displayName"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

type listModelsResponse struct {
	Models        []geminiModel `json:"models"`
	NextPageToken string        `json:"nextPageToken"`
}
