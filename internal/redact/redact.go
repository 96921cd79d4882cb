// Package redact masks secrets in captured event text before
// persistence, via a fixed table of (regex, label) pairs plus any
// user-supplied extra patterns.
package redact

import "regexp"

// Pattern pairs a compiled regex with the label used in its
// replacement. When the regex has a capture group, only group 1 is
// replaced; otherwise the whole match is replaced.
type Pattern struct {
	Label string
	Re    *regexp.Regexp
}

var builtins = []Pattern{
	{Label: "AWS_KEY", Re: regexp.MustCompile(`\b(AKIA[0-9A-Z]{16})\b`)},
	{Label: "AWS_SECRET", Re: regexp.MustCompile(`(?i)aws_secret_access_key\s*[:=]\s*['"]?([A-Za-z0-9/+=]{40})['"]?`)},
	{Label: "JWT", Re: regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`)},
	{Label: "STRIPE_KEY", Re: regexp.MustCompile(`\b(sk_live_[A-Za-z0-9]{16,}|rk_live_[A-Za-z0-9]{16,})\b`)},
	{Label: "SECRET", Re: regexp.MustCompile(`(?i)(?:api[_-]?key|token|client_secret)\s*[:=]\s*['"]?([A-Za-z0-9._\-/+=]{8,})['"]?`)},
	{Label: "URL_PASSWORD", Re: regexp.MustCompile(`://[^:/@\s]+:([^@\s]+)@`)},
	{Label: "PASSWORD", Re: regexp.MustCompile(`(?i)(?:password|passwd|pwd)\s*[:=]\s*['"]?([^\s'"]{3,})['"]?`)},
}

// Redactor applies the built-in patterns plus any extras configured by
// the caller.
type Redactor struct {
	Enabled  bool
	patterns []Pattern
}

// New builds a Redactor. extras are appended after the built-ins so
// user patterns can further narrow already-redacted text.
func New(enabled bool, extras ...Pattern) *Redactor {
	patterns := make([]Pattern, 0, len(builtins)+len(extras))
	patterns = append(patterns, builtins...)
	patterns = append(patterns, extras...)
	return &Redactor{Enabled: enabled, patterns: patterns}
}

// Redact replaces every match of every configured pattern in text.
// Patterns with a capture group replace only that group's span;
// patterns with none replace the whole match.
func (r *Redactor) Redact(text string) string {
	if !r.Enabled {
		return text
	}
	for _, p := range r.patterns {
		text = replacePattern(text, p)
	}
	return text
}

func replacePattern(text string, p Pattern) string {
	groups := p.Re.NumSubexp()
	if groups == 0 {
		return p.Re.ReplaceAllString(text, "[REDACTED:"+p.Label+"]")
	}

	// Replace only group 1's span (the secret value itself), leaving
	// surrounding context (key name, scheme, "@") intact.
	matches := p.Re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var out []byte
	last := 0
	for _, m := range matches {
		start, end := m[2], m[3]
		if start < 0 {
			continue
		}
		out = append(out, text[last:start]...)
		out = append(out, []byte("[REDACTED:"+p.Label+"]")...)
		last = end
	}
	out = append(out, text[last:]...)
	return string(out)
}
