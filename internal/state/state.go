// Package state generates and persists a project's ProjectState: an
// LLM-summarized snapshot of decisions, constraints, and open tasks,
// sampled from chunk history per spec §4.13.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/memorybank/internal/llmclient"
	"github.com/ternarybob/memorybank/internal/logger"
	"github.com/ternarybob/memorybank/internal/storage"
)

// sampleCharBudget bounds how much chunk text is fed to the summarizer.
const sampleCharBudget = 8000

const systemPrompt = `You are maintaining a running summary of a software project's working memory.
Given a chronological sample of terminal session excerpts, respond with JSON ONLY, no prose,
matching exactly this shape:
{"summary": "...", "decisions": [{"id": "...", "statement": "...", "rationale": "..."}], "constraints": ["..."], "tasks": [{"id": "...", "status": "..."}]}
Do not include markdown fences. Do not include any text outside the JSON object.`

// Generate samples chunk history, calls the chat client, and returns a
// freshly stamped ProjectState (not yet persisted).
func Generate(ctx context.Context, s *storage.Storage, client llmclient.Client) (*storage.ProjectState, error) {
	chunks, err := s.AllChunks()
	if err != nil {
		return nil, err
	}

	sample, sourceSessions := sampleChunks(chunks, sampleCharBudget)
	text := renderSample(sample)

	raw, err := client.Chat(ctx, systemPrompt, text, llmclient.ChatOptions{
		Temperature: 0.0,
		Seed:        42,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("state: chat: %w", err)
	}

	result := parseModelResponse(raw)
	result.SourceSessions = sourceSessions
	return &result, nil
}

// GenerateAndPersist generates a fresh ProjectState and writes it
// atomically to state/state.json.
func GenerateAndPersist(ctx context.Context, s *storage.Storage, client llmclient.Client, now float64) (*storage.ProjectState, error) {
	result, err := Generate(ctx, s, client)
	if err != nil {
		return nil, err
	}
	result.UpdatedAt = now
	if err := s.WriteState(result); err != nil {
		return nil, err
	}
	return result, nil
}

// NeedsRegeneration reports whether state.json is missing or stale
// relative to the newest chunks.jsonl, per spec §4.12 step 6.
func NeedsRegeneration(s *storage.Storage) (bool, error) {
	existing, err := s.ReadState()
	if err != nil {
		return false, err
	}
	if existing == nil {
		return true, nil
	}
	latest, err := s.LatestChunksMtime()
	if err != nil {
		return false, err
	}
	return float64(latest.Unix()) > existing.UpdatedAt, nil
}

// sampleChunks always includes the first and last chunks (by ts_end),
// then greedily adds the highest-quality remaining chunks until
// charBudget is exhausted. The sample is returned in chronological
// order along with the distinct set of session IDs it touches.
func sampleChunks(chunks []storage.Chunk, charBudget int) ([]storage.Chunk, []string) {
	if len(chunks) == 0 {
		return nil, nil
	}

	ordered := make([]storage.Chunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].TsEnd < ordered[j].TsEnd })

	picked := map[string]bool{}
	var selected []storage.Chunk
	budget := charBudget

	// forceAdd always includes the chunk (used for the mandatory first/
	// last chunks), greedyAdd respects the remaining budget.
	forceAdd := func(c storage.Chunk) {
		if picked[c.ChunkID] {
			return
		}
		picked[c.ChunkID] = true
		selected = append(selected, c)
		budget -= len(c.Text)
	}
	greedyAdd := func(c storage.Chunk) bool {
		if picked[c.ChunkID] || len(c.Text) > budget {
			return false
		}
		picked[c.ChunkID] = true
		selected = append(selected, c)
		budget -= len(c.Text)
		return true
	}

	forceAdd(ordered[0])
	if len(ordered) > 1 {
		forceAdd(ordered[len(ordered)-1])
	}

	byQuality := make([]storage.Chunk, len(ordered))
	copy(byQuality, ordered)
	sort.SliceStable(byQuality, func(i, j int) bool { return byQuality[i].QualityScore > byQuality[j].QualityScore })

	for _, c := range byQuality {
		if budget <= 0 {
			break
		}
		greedyAdd(c)
	}

	sort.SliceStable(selected, func(i, j int) bool { return selected[i].TsEnd < selected[j].TsEnd })

	sessionSet := map[string]bool{}
	var sessions []string
	for _, c := range selected {
		if !sessionSet[c.SessionID] {
			sessionSet[c.SessionID] = true
			sessions = append(sessions, c.SessionID)
		}
	}

	return selected, sessions
}

func renderSample(chunks []storage.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n\n")
}

type modelResponse struct {
	Summary     string             `json:"summary"`
	Decisions   []storage.Decision `json:"decisions"`
	Constraints []string           `json:"constraints"`
	Tasks       []storage.TaskRef  `json:"tasks"`
}

// parseModelResponse decodes the chat client's reply, coercing a
// non-object response to {summary: str(response)} per spec §4.13.
func parseModelResponse(raw string) storage.ProjectState {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var parsed modelResponse
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		logger.GetLogger().Warn().Err(err).Msg("state: model response was not valid JSON; coercing")
		return storage.ProjectState{Summary: raw}
	}

	return storage.ProjectState{
		Summary:     parsed.Summary,
		Decisions:   parsed.Decisions,
		Constraints: parsed.Constraints,
		Tasks:       parsed.Tasks,
	}
}
