package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/JustHereToHelp/HydraMCP/internal/distill"
	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

// maxFileChars bounds server-side file reads per spec.md §4.9.
const maxFileChars = 800_000

// binarySniffWindow is the prefix scanned for a null byte to heuristically
// reject binary files.
const binarySniffWindow = 8192

// largeContextPreference orders large-context model candidates by
// context-size suitability, defaulting to Gemini-family flash variants.
var largeContextPreference = []string{
	"gemini-2.5-flash",
	"gemini-3-pro",
	"claude-opus-4-6",
	"gpt-5.2",
}

// AnalyzeFileInput is the validated shape of the analyze_file tool's input.
type AnalyzeFileInput struct {
	FilePath          string `json:"file_path"`
	Prompt            string `json:"prompt"`
	Model             string `json:"model,omitempty"`
	MaxTokens         int    `json:"max_tokens,omitempty"`
	MaxResponseTokens int    `json:"max_response_tokens,omitempty"`
	Format            string `json:"format,omitempty"`
	IncludeRaw        bool   `json:"include_raw,omitempty"`
}

// SmartReadInput is the validated shape of the smart_read tool's input.
type SmartReadInput struct {
	FilePath          string `json:"file_path"`
	Query             string `json:"query"`
	Model             string `json:"model,omitempty"`
	MaxTokens         int    `json:"max_tokens,omitempty"`
	MaxResponseTokens int    `json:"max_response_tokens,omitempty"`
	Format            string `json:"format,omitempty"`
	IncludeRaw        bool   `json:"include_raw,omitempty"`
}

func readAndValidateFile(path string) (string, error) {
	if path == "" {
		return "", validationError("file_path", "required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", validationError("file_path", fmt.Sprintf("does not exist or is unreadable: %v", err))
	}
	if info.IsDir() {
		return "", validationError("file_path", "is a directory")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", validationError("file_path", fmt.Sprintf("could not be read: %v", err))
	}

	sniff := data
	if len(sniff) > binarySniffWindow {
		sniff = sniff[:binarySniffWindow]
	}
	if bytes.IndexByte(sniff, 0) != -1 {
		return "", validationError("file_path", "appears to be a binary file")
	}

	if len(data) > maxFileChars {
		return "", validationError("file_path", fmt.Sprintf("exceeds the %d character limit", maxFileChars))
	}

	return string(data), nil
}

func pickLargeContextModel(requested string, available []model.Info) (string, bool) {
	if requested != "" {
		return requested, true
	}
	return model.SelectByPreference(available, largeContextPreference)
}

// AnalyzeFile reads a file server-side and asks a large-context model for
// prose analysis.
func AnalyzeFile(ctx context.Context, b Backend, in AnalyzeFileInput) Output {
	if in.Prompt == "" {
		return errorOutput(validationError("prompt", "required"))
	}
	content, err := readAndValidateFile(in.FilePath)
	if err != nil {
		return errorOutput(err)
	}

	available, _ := b.ListModels(ctx)
	chosen, ok := pickLargeContextModel(in.Model, available)
	if !ok {
		return errorOutput(validationError("model", "no large-context model available"))
	}

	prompt := buildFilePrompt(in.FilePath, content, in.Prompt, false)
	return runFileQuery(ctx, b, chosen, prompt, in.MaxTokens, in.MaxResponseTokens, in.Format, in.IncludeRaw, len(content))
}

// SmartRead reads a file server-side and asks a large-context model for
// verbatim extraction with line-range annotations.
func SmartRead(ctx context.Context, b Backend, in SmartReadInput) Output {
	if in.Query == "" {
		return errorOutput(validationError("query", "required"))
	}
	content, err := readAndValidateFile(in.FilePath)
	if err != nil {
		return errorOutput(err)
	}

	available, _ := b.ListModels(ctx)
	chosen, ok := pickLargeContextModel(in.Model, available)
	if !ok {
		return errorOutput(validationError("model", "no large-context model available"))
	}

	prompt := buildFilePrompt(in.FilePath, content, in.Query, true)
	return runFileQuery(ctx, b, chosen, prompt, in.MaxTokens, in.MaxResponseTokens, in.Format, in.IncludeRaw, len(content))
}

func buildFilePrompt(path, content, instruction string, verbatim bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\nSize: %d characters\n\n", path, len(content))
	if verbatim {
		b.WriteString("Extract verbatim the requested content, annotated with line ranges.\n\n")
	} else {
		b.WriteString("Analyze the following file.\n\n")
	}
	b.WriteString(instruction)
	b.WriteString("\n\n```\n")
	b.WriteString(content)
	b.WriteString("\n```\n")
	return b.String()
}

func runFileQuery(ctx context.Context, b Backend, modelID, prompt string, maxTokens, maxResponseTokens int, format string, includeRaw bool, fileChars int) Output {
	maxTok := defaultInt(maxTokens, 4096)
	tok := maxTok
	resp, err := b.Query(ctx, modelID, prompt, model.Options{MaxTokens: &tok})
	if err != nil {
		return errorOutput(err)
	}

	raw := *resp
	d := distill.Result{Response: resp}
	if maxResponseTokens > 0 {
		available, _ := b.ListModels(ctx)
		d = distill.Distill(ctx, b, resp, maxResponseTokens, modelID, available)
	}

	contextSaved := 0
	if d.Response.Usage != nil {
		estimate := (fileChars + 3) / 4
		contextSaved = estimate - d.Response.Usage.CompletionTokens
	}

	return Output{Text: renderFileResult(format, includeRaw, d, raw, contextSaved)}
}

func renderFileResult(format string, includeRaw bool, d distill.Result, raw model.Response, contextSaved int) string {
	resp := d.Response
	format = defaultStr(format, "brief")

	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n%s\n\n", resp.Model, resp.Content)
	fmt.Fprintf(&b, "*Latency: %dms · Context saved: ~%d tokens*\n", resp.LatencyMs, contextSaved)

	if format == "detailed" && resp.Usage != nil {
		fmt.Fprintf(&b, "\n| prompt tokens | completion tokens | total tokens |\n|---|---|---|\n| %d | %d | %d |\n",
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	}

	if d.Distilled {
		fmt.Fprintf(&b, "\n**Distilled** by %s: %d -> %d tokens\n", d.DistillerModel, d.SourceTokens, d.DistilledTokens)
	}
	if includeRaw && d.Distilled {
		b.WriteString("\n<details><summary>Raw pre-distillation response</summary>\n\n")
		b.WriteString(raw.Content)
		b.WriteString("\n\n</details>\n")
	}

	return b.String()
}
