// Package judge implements the agreement-judge subprotocol of spec.md
// §4.10: given an ordered list of candidate responses, ask a judge model
// to partition them into semantic agreement groups, with a deterministic
// keyword-Jaccard fallback when the judge call itself fails.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JustHereToHelp/HydraMCP/internal/jsonx"
	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

const systemPrompt = "You are an agreement judge. You will be given a numbered list of responses to the same question. Partition their indices into groups of responses that substantively agree with each other. Respond with JSON only, of the exact shape {\"groups\": [[0,1],[2]], \"reasoning\": \"...\"}, where every index 0..N-1 appears in exactly one group."

// judgeMaxTokens bounds the judge's own response; it only needs to emit a
// short JSON object.
const judgeMaxTokens = 512

// Querier is the nested-query capability the judge needs, satisfied by
// SmartBackend so the judge's call benefits from the same caching and
// circuit breaking as any worker query.
type Querier interface {
	Query(ctx context.Context, modelID, prompt string, opts model.Options) (*model.Response, error)
}

// Verdict is the settled outcome of a judge call: Groups partitions the
// input indices; FellBackToHeuristic reports whether the judge call
// itself failed and the keyword-Jaccard fallback ran instead.
type Verdict struct {
	Groups               [][]int
	Reasoning            string
	FellBackToHeuristic  bool
}

type judgeResponse struct {
	Groups    [][]int `json:"groups"`
	Reasoning string  `json:"reasoning"`
}

// Judge asks judgeModel to partition responses into agreement groups. On
// any failure (dispatch error, unparseable/invalid JSON), it falls back
// to a deterministic keyword-Jaccard heuristic comparing every response
// against responses[0] as pivot.
func Judge(ctx context.Context, q Querier, judgeModel string, responses []string) Verdict {
	prompt := buildPrompt(responses)
	temp := 0.0
	maxTok := judgeMaxTokens

	resp, err := q.Query(ctx, judgeModel, prompt, model.Options{
		SystemPrompt: systemPrompt,
		Temperature:  &temp,
		MaxTokens:    &maxTok,
	})
	if err == nil {
		if v, ok := parseVerdict(resp.Content, len(responses)); ok {
			return v
		}
	}

	return heuristicVerdict(responses)
}

func buildPrompt(responses []string) string {
	var b strings.Builder
	for i, r := range responses {
		fmt.Fprintf(&b, "Response %d:\n%s\n\n", i, r)
	}
	return b.String()
}

func parseVerdict(content string, n int) (Verdict, bool) {
	raw, ok := jsonx.ExtractBalancedBraces(content)
	if !ok {
		return Verdict{}, false
	}

	var jr judgeResponse
	if err := json.Unmarshal([]byte(raw), &jr); err != nil {
		return Verdict{}, false
	}
	if !validGrouping(jr.Groups, n) {
		return Verdict{}, false
	}

	return Verdict{Groups: jr.Groups, Reasoning: jr.Reasoning}, true
}

// validGrouping reports whether groups is a partition of exactly
// 0..n-1, with every index appearing in exactly one group.
func validGrouping(groups [][]int, n int) bool {
	if n == 0 {
		return false
	}
	seen := make(map[int]bool, n)
	for _, g := range groups {
		for _, idx := range g {
			if idx < 0 || idx >= n || seen[idx] {
				return false
			}
			seen[idx] = true
		}
	}
	return len(seen) == n
}

// LargestGroup returns the indices of the largest agreement group, or nil
// if there are none.
func LargestGroup(v Verdict) []int {
	var largest []int
	for _, g := range v.Groups {
		if len(g) > len(largest) {
			largest = g
		}
	}
	return largest
}

// heuristicVerdict compares every response against responses[0] as pivot
// using a keyword-Jaccard similarity over words longer than 4 letters,
// declaring agreement above 0.3.
func heuristicVerdict(responses []string) Verdict {
	if len(responses) == 0 {
		return Verdict{FellBackToHeuristic: true}
	}

	pivotWords := keywordSet(responses[0])
	agreeing := []int{0}
	var dissenting []int

	for i := 1; i < len(responses); i++ {
		if jaccard(pivotWords, keywordSet(responses[i])) > 0.3 {
			agreeing = append(agreeing, i)
		} else {
			dissenting = append(dissenting, i)
		}
	}

	groups := [][]int{agreeing}
	for _, d := range dissenting {
		groups = append(groups, []int{d})
	}

	return Verdict{
		Groups:              groups,
		Reasoning:           "keyword-Jaccard fallback: judge call failed or returned invalid JSON",
		FellBackToHeuristic: true,
	}
}

func keywordSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()[]{}")
		if len(w) > 4 {
			set[w] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
