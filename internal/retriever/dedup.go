// Package retriever implements the pluggable retrieval strategies of
// spec §4.8: RecencyRetriever, ContextualRetriever, and a two-phase
// dedup pass shared by both.
package retriever

import (
	"regexp"
	"strings"

	"github.com/ternarybob/memorybank/internal/storage"
)

const defaultNearDuplicateThreshold = 0.70

// lcsCompareLimit bounds how many leading characters of each chunk are
// compared for near-duplicate detection; the LCS-ratio computation is
// quadratic and chunk text can run to several thousand characters, so
// comparing only a representative prefix keeps dedup practical over a
// few hundred excerpts.
const lcsCompareLimit = 300

var whitespaceRun = regexp.MustCompile(`\s+`)

func normalizeForHash(text string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), " ")
}

// higherRanked reports whether a ranks above b by (quality_score, ts_end).
func higherRanked(a, b storage.Chunk) bool {
	if a.QualityScore != b.QualityScore {
		return a.QualityScore > b.QualityScore
	}
	return a.TsEnd > b.TsEnd
}

// Dedup removes exact (whitespace-collapsed, case-insensitive) and
// near-duplicate chunks, preferring the higher-ranked survivor and
// preserving the original list order among survivors. Idempotent:
// Dedup(Dedup(x)) == Dedup(x).
func Dedup(chunks []storage.Chunk, nearThreshold float64) []storage.Chunk {
	if nearThreshold <= 0 {
		nearThreshold = defaultNearDuplicateThreshold
	}

	// Phase 1: exact dedup by normalized text hash.
	bestByHash := make(map[string]storage.Chunk, len(chunks))
	order := make([]string, 0, len(chunks))
	for _, c := range chunks {
		key := normalizeForHash(c.Text)
		if existing, ok := bestByHash[key]; !ok {
			bestByHash[key] = c
			order = append(order, key)
		} else if higherRanked(c, existing) {
			bestByHash[key] = c
		}
	}
	survivors := make([]storage.Chunk, 0, len(order))
	for _, key := range order {
		survivors = append(survivors, bestByHash[key])
	}

	// Phase 2: near-duplicate dedup via pairwise LCS-based similarity.
	removed := make([]bool, len(survivors))
	for i := 0; i < len(survivors); i++ {
		if removed[i] {
			continue
		}
		for j := i + 1; j < len(survivors); j++ {
			if removed[j] {
				continue
			}
			if lcsRatio(survivors[i].Text, survivors[j].Text) >= nearThreshold {
				if higherRanked(survivors[j], survivors[i]) {
					removed[i] = true
					break
				}
				removed[j] = true
			}
		}
	}

	out := make([]storage.Chunk, 0, len(survivors))
	for i, c := range survivors {
		if !removed[i] {
			out = append(out, c)
		}
	}
	return out
}

// lcsRatio computes a SequenceMatcher-style similarity ratio
// (2*|LCS| / (|a|+|b|)) over a bounded prefix of each string.
func lcsRatio(a, b string) float64 {
	if len(a) > lcsCompareLimit {
		a = a[:lcsCompareLimit]
	}
	if len(b) > lcsCompareLimit {
		b = b[:lcsCompareLimit]
	}
	la, lb := len(a), len(b)
	if la == 0 && lb == 0 {
		return 1.0
	}
	if la == 0 || lb == 0 {
		return 0.0
	}

	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
		for k := range cur {
			cur[k] = 0
		}
	}
	lcsLen := prev[lb]
	return 2 * float64(lcsLen) / float64(la+lb)
}
