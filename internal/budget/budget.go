// Package budget implements the priority-based section allocator of
// spec §4.9: given a list of named sections and a token envelope, it
// truncates lower-priority sections first while keeping protected ones
// and well-formed XML elements intact.
package budget

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
)

// charsPerToken and the safety margin mirror the estimator used
// throughout the project (see internal/chunker.TokenEstimate) but add a
// 10% safety margin per spec §4.9 step 1.
const (
	charsPerToken = 4.0
	safetyMargin  = 1.1
)

// activeTasksMaxFraction and plansMaxFraction are built-in maxima applied
// regardless of priority.
const (
	activeTasksMaxFraction = 0.15
	plansMaxFraction       = 0.15
)

// Section is one named block of content competing for the token budget.
type Section struct {
	Name        string
	Content     string
	Priority    int // lower = higher priority
	IsProtected bool
	MaxTokens   *int
	IsXML       bool // when true, truncate by dropping trailing XML elements
}

// EstimateTokens applies the budgeter's own estimator (distinct from
// chunker.TokenEstimate's plain len/4, since this one carries the 10%
// safety margin spec §4.9 step 1 requires).
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / charsPerToken * safetyMargin))
}

// Enforce applies the spec §4.9 algorithm and returns sections in their
// original order, content truncated as needed to fit budget tokens.
func Enforce(sections []Section, budgetTokens int) []Section {
	total := 0
	for _, s := range sections {
		total += EstimateTokens(s.Content)
	}
	if total <= budgetTokens {
		return sections
	}

	out := make([]Section, len(sections))
	copy(out, sections)

	protectedTokens := 0
	for _, s := range out {
		if s.IsProtected {
			protectedTokens += EstimateTokens(s.Content)
		}
	}
	if protectedTokens > budgetTokens {
		fmt.Fprintf(os.Stderr, "memorybank: protected sections (%d tokens) exceed budget (%d tokens); emitting unclamped\n", protectedTokens, budgetTokens)
	}

	available := budgetTokens - protectedTokens
	if available < 0 {
		available = 0
	}

	// Built-in per-section maxima, clamped further by any explicit MaxTokens.
	capFor := func(s Section) *int {
		var limit int
		switch s.Name {
		case "active_tasks":
			limit = int(math.Floor(float64(budgetTokens) * activeTasksMaxFraction))
		case "plans":
			limit = int(math.Floor(float64(budgetTokens) * plansMaxFraction))
		default:
			if s.MaxTokens != nil {
				c := *s.MaxTokens
				return &c
			}
			return nil
		}
		if s.MaxTokens != nil && *s.MaxTokens < limit {
			limit = *s.MaxTokens
		}
		return &limit
	}

	// Indices of non-protected sections in ascending priority order
	// (lower priority number = allocated first).
	order := make([]int, 0, len(out))
	for i, s := range out {
		if !s.IsProtected {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return out[order[a]].Priority < out[order[b]].Priority
	})

	for _, i := range order {
		s := out[i]
		needed := EstimateTokens(s.Content)
		if limit := capFor(s); limit != nil && needed > *limit {
			needed = *limit
		}

		if needed <= available {
			out[i].Content = truncateToTokens(s, needed)
			available -= needed
			continue
		}
		if available > 0 {
			out[i].Content = truncateToTokens(s, available)
			available = 0
			continue
		}
		out[i].Content = truncateToTokens(s, 0)
	}

	return out
}

// truncateToTokens truncates s.Content to at most maxTokens worth of
// content, using element-aware truncation for XML sections and prefix
// truncation otherwise. If maxTokens already fits, content is
// unchanged (this also handles built-in-max clamping of otherwise
// short sections).
func truncateToTokens(s Section, maxTokens int) string {
	if EstimateTokens(s.Content) <= maxTokens {
		return s.Content
	}
	if s.IsXML {
		return truncateXMLElements(s.Content, maxTokens)
	}
	maxChars := int(float64(maxTokens) * charsPerToken / safetyMargin)
	if maxChars <= 0 {
		return ""
	}
	if maxChars >= len(s.Content) {
		return s.Content
	}
	return s.Content[:maxChars]
}

var xmlElementRe = regexp.MustCompile(`(?s)<([A-Za-z0-9_]+)[^>]*>.*?</([A-Za-z0-9_]+)>|<[A-Za-z0-9_]+[^>]*/>`)

// truncateXMLElements drops trailing top-level XML elements (identified
// by their close tag) one at a time until the section fits within
// maxTokens, preserving well-formedness.
func truncateXMLElements(content string, maxTokens int) string {
	matches := xmlElementRe.FindAllStringIndex(content, -1)
	if len(matches) == 0 {
		maxChars := int(float64(maxTokens) * charsPerToken / safetyMargin)
		if maxChars < 0 {
			maxChars = 0
		}
		if maxChars >= len(content) {
			return content
		}
		return content[:maxChars]
	}

	end := len(content)
	for EstimateTokens(content[:end]) > maxTokens && len(matches) > 0 {
		last := matches[len(matches)-1]
		end = last[0]
		matches = matches[:len(matches)-1]
	}
	return strings.TrimRight(content[:end], "\n ")
}
