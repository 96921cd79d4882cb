// Package graph classifies each session's episode type and error status
// (spec §4.6), driving mode-aware retrieval.
package graph

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ternarybob/memorybank/internal/storage"
)

const relatedWindowSeconds = 600

// episodePatterns are scored in declaration order; ties go to the
// earliest-declared type.
var episodePatterns = []struct {
	episode string
	re      *regexp.Regexp
}{
	{"test", regexp.MustCompile(`(?i)\bpytest\b|\bPASSED\b|\bFAILED\b`)},
	{"build", regexp.MustCompile(`(?i)\bcompile\b|\bbuild\b`)},
	{"deploy", regexp.MustCompile(`(?i)\bkubectl\b|\bdeploy\b`)},
	{"debug", regexp.MustCompile(`(?i)\bTraceback\b|\bpdb\b`)},
	{"refactor", regexp.MustCompile(`(?i)\brefactor\b|\brename\b`)},
	{"explore", regexp.MustCompile(`(?i)\bhow does\b|\bexplain\b`)},
	{"config", regexp.MustCompile(`(?i)\bconfig\b|\byaml\b|\binstall\b`)},
	{"docs", regexp.MustCompile(`(?i)\bREADME\b|\bdocumentation\b`)},
	{"review", regexp.MustCompile(`(?i)\bPR\b|\breview\b|\bLGTM\b`)},
}

var errorPattern = regexp.MustCompile(`(?i)Traceback|FAILED|ERROR:|Exception:|panic:|FATAL|segmentation fault|core dumped`)

// externalAICLINames are argv[0] basenames treated as the external AI
// CLI whose sessions get content-based classification.
var externalAICLINames = map[string]bool{
	"claude": true,
}

var twoWordTable = map[[2]string]string{
	{"cargo", "build"}:   "build",
	{"npm", "test"}:      "test",
	{"npm", "run"}:       "build",
	{"go", "build"}:      "build",
	{"go", "test"}:       "test",
	{"docker", "build"}:  "build",
	{"git", "rebase"}:    "refactor",
	{"terraform", "apply"}: "deploy",
}

var deployCommands = map[string]bool{
	"kubectl": true, "terraform": true, "ansible": true,
	"ansible-playbook": true, "deploy": true,
}

var singleWordTable = map[string]string{
	"make": "build", "pytest": "test", "gdb": "debug",
	"docker": "build", "rustc": "build",
}

// Classify determines episode_type for a session given its command and
// chunks.
func Classify(command []string, chunks []storage.Chunk) string {
	if len(command) == 0 {
		return "build"
	}
	argv0 := filepath.Base(command[0])

	if externalAICLINames[argv0] && len(chunks) > 0 {
		return classifyByContent(chunks)
	}

	if len(command) >= 2 {
		key := [2]string{filepath.Base(command[0]), command[1]}
		if ep, ok := twoWordTable[key]; ok {
			return ep
		}
	}

	if len(command) >= 3 && command[0] == "python" && command[1] == "-m" {
		if command[2] == "pdb" {
			return "debug"
		}
		if command[2] == "pytest" {
			return "test"
		}
	}

	if deployCommands[argv0] {
		return "deploy"
	}

	if ep, ok := singleWordTable[argv0]; ok {
		return ep
	}

	for _, arg := range command {
		if strings.Contains(strings.ToLower(arg), "test") {
			return "test"
		}
	}

	return "build"
}

func classifyByContent(chunks []storage.Chunk) string {
	counts := make(map[string]int, len(episodePatterns))
	for _, c := range chunks {
		for _, p := range episodePatterns {
			counts[p.episode] += len(p.re.FindAllString(c.Text, -1))
		}
	}

	best := ""
	bestCount := 0
	for _, p := range episodePatterns { // iterate in declaration order for tie-break
		if counts[p.episode] > bestCount {
			bestCount = counts[p.episode]
			best = p.episode
		}
	}
	if best == "" {
		return "refactor"
	}
	return best
}

// HasError reports whether a session has failed, via exit code or any
// chunk matching the error regex.
func HasError(exitCode *int, chunks []storage.Chunk) bool {
	if exitCode != nil && *exitCode != 0 {
		return true
	}
	for _, c := range chunks {
		if errorPattern.MatchString(c.Text) {
			return true
		}
	}
	return false
}

// ErrorSummary joins up to 3 fragments: an "Exit code N" tag (if
// applicable) followed by unique error-matching lines in order of
// first occurrence.
func ErrorSummary(exitCode *int, chunks []storage.Chunk) string {
	var fragments []string
	if exitCode != nil && *exitCode != 0 {
		fragments = append(fragments, fmt.Sprintf("Exit code %d", *exitCode))
	}

	seen := map[string]bool{}
	for _, c := range chunks {
		if len(fragments) >= 3 {
			break
		}
		for _, line := range strings.Split(c.Text, "\n") {
			if len(fragments) >= 3 {
				break
			}
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || seen[trimmed] {
				continue
			}
			if errorPattern.MatchString(trimmed) {
				fragments = append(fragments, trimmed)
				seen[trimmed] = true
			}
		}
	}
	return strings.Join(fragments, "; ")
}

// RelatedSessions returns every other session within a 600-second
// temporal window of target.
func RelatedSessions(target *storage.Session, others []*storage.Session) []string {
	tStart := target.StartedAt
	tEnd := tStart
	if target.EndedAt != nil {
		tEnd = *target.EndedAt
	}

	var related []string
	for _, o := range others {
		if o.SessionID == target.SessionID {
			continue
		}
		mStart := o.StartedAt
		mEnd := mStart
		if o.EndedAt != nil {
			mEnd = *o.EndedAt
		}
		gap := minAbs3(
			absF(tStart-mEnd),
			absF(mStart-tEnd),
			absF(tStart-mStart),
		)
		if gap <= relatedWindowSeconds {
			related = append(related, o.SessionID)
		}
	}
	return related
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func minAbs3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// BuildNode assembles a full SessionNode for one session.
func BuildNode(sess *storage.Session, chunks []storage.Chunk, others []*storage.Session) storage.SessionNode {
	return storage.SessionNode{
		SessionID:       sess.SessionID,
		EpisodeType:     Classify(sess.Command, chunks),
		HasError:        HasError(sess.ExitCode, chunks),
		ErrorSummary:    ErrorSummary(sess.ExitCode, chunks),
		RelatedSessions: RelatedSessions(sess, others),
	}
}
