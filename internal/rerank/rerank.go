// Package rerank provides a second-pass LLM relevance scoring over
// vector search candidates, falling back to the original cosine
// ordering whenever the chat backend is unavailable or returns an
// unparseable response (spec.md §6's `--rerank` flag; §8 scenario 6).
package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/memorybank/internal/index"
	"github.com/ternarybob/memorybank/internal/llmclient"
	"github.com/ternarybob/memorybank/internal/logger"
)

const systemPrompt = "You are a relevance judge. Given a search query and a list of text snippets, " +
	"rate each snippet's relevance to the query on a scale of 0 to 10.\n" +
	"0 = completely irrelevant, 10 = perfectly relevant.\n" +
	"Respond ONLY with JSON: {\"scores\": [<int>, ...]}\n" +
	"The scores array must have exactly one integer per snippet, in order."

const snippetTruncateLen = 300

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

func buildUserPrompt(query string, candidates []index.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nSnippets:\n", query)
	for i, c := range candidates {
		snippet := c.Text
		if len(snippet) > snippetTruncateLen {
			snippet = snippet[:snippetTruncateLen]
		}
		snippet = strings.ReplaceAll(snippet, "\n", " ")
		fmt.Fprintf(&b, "[%d] %s\n", i, snippet)
	}
	return b.String()
}

// parseScores decodes and normalizes the chat response's 0-10 scores
// to 0.0-1.0, clamping out-of-range values.
func parseScores(raw string, expectedCount int) ([]float64, error) {
	var resp scoreResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	if resp.Scores == nil {
		return nil, fmt.Errorf("response has no \"scores\" key")
	}
	if len(resp.Scores) != expectedCount {
		return nil, fmt.Errorf("expected %d scores, got %d", expectedCount, len(resp.Scores))
	}

	out := make([]float64, len(resp.Scores))
	for i, s := range resp.Scores {
		if s < 0 {
			s = 0
		} else if s > 10 {
			s = 10
		}
		out[i] = s / 10.0
	}
	return out, nil
}

// Rerank scores candidates against query with one chat call and
// returns the top topK by LLM relevance. On any failure — the chat
// backend being unreachable, returning malformed JSON, or returning
// the wrong number of scores — it logs a warning and falls back to
// the original vector-ranked order, truncated to topK.
func Rerank(ctx context.Context, query string, candidates []index.Result, client llmclient.Client, topK int) []index.Result {
	if len(candidates) == 0 {
		return nil
	}

	fallback := candidates
	if len(fallback) > topK {
		fallback = fallback[:topK]
	}

	userPrompt := buildUserPrompt(query, candidates)
	response, err := client.Chat(ctx, systemPrompt, userPrompt, llmclient.ChatOptions{Temperature: 0, JSONMode: true})
	if err != nil {
		logger.GetLogger().Warn().Err(err).Msg("reranker failed, falling back to vector scores")
		return fallback
	}

	scores, err := parseScores(response, len(candidates))
	if err != nil {
		logger.GetLogger().Warn().Err(err).Msg("reranker returned unparseable scores, falling back to vector scores")
		return fallback
	}

	reranked := make([]index.Result, len(candidates))
	for i, c := range candidates {
		reranked[i] = c
		reranked[i].Score = scores[i]
	}
	sort.SliceStable(reranked, func(i, j int) bool { return reranked[i].Score > reranked[j].Score })

	if len(reranked) > topK {
		reranked = reranked[:topK]
	}
	return reranked
}
