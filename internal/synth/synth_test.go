package synth

import (
	"context"
	"strings"
	"testing"

	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

type fakeQuerier struct {
	gotModel  string
	gotPrompt string
	resp      *model.Response
	err       error
}

func (f *fakeQuerier) Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error) {
	f.gotModel = modelID
	f.gotPrompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestSelectSynthesizer_PrefersUserChoice(t *testing.T) {
	got, ok := SelectSynthesizer("claude-opus-4-6", nil, []string{"gpt-5.2"})
	if !ok || got != "claude-opus-4-6" {
		t.Errorf("expected user choice honored, got %q, %v", got, ok)
	}
}

func TestSelectSynthesizer_AutoSelectsOutsideSourceModels(t *testing.T) {
	available := []model.Info{{ID: "gpt-5.2"}, {ID: "claude-opus-4-6"}, {ID: "gemini-3-pro"}}
	got, ok := SelectSynthesizer("", available, []string{"gpt-5.2", "claude-opus-4-6"})
	if !ok {
		t.Fatal("expected a synthesizer to be found")
	}
	if got != "gemini-3-pro" {
		t.Errorf("expected gemini-3-pro (first not in source list), got %q", got)
	}
}

func TestBuildPrompt_LabelsEachCandidateBySourceModel(t *testing.T) {
	prompt := BuildPrompt("what is x?", []Candidate{
		{ModelID: "gpt-5.2", Content: "x is five"},
		{ModelID: "claude-opus-4-6", Content: "x is also five"},
	})
	if !strings.Contains(prompt, "what is x?") {
		t.Error("expected original question in prompt")
	}
	if !strings.Contains(prompt, "gpt-5.2") || !strings.Contains(prompt, "claude-opus-4-6") {
		t.Error("expected both source models labeled in prompt")
	}
}

func TestSynthesize_DispatchesToChosenModel(t *testing.T) {
	q := &fakeQuerier{resp: &model.Response{Content: "unified answer"}}
	resp, err := Synthesize(context.Background(), q, "gemini-3-pro", "what is x?", []Candidate{
		{ModelID: "gpt-5.2", Content: "x is five"},
	}, model.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "unified answer" {
		t.Errorf("expected synthesizer response returned, got %q", resp.Content)
	}
	if q.gotModel != "gemini-3-pro" {
		t.Errorf("expected dispatch to gemini-3-pro, got %q", q.gotModel)
	}
}
