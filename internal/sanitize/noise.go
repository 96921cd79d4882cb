package sanitize

import "regexp"

// noiseRanges are Unicode blocks of terminal decoration that carry no
// semantic content: box-drawing, block elements, braille, dingbats,
// arrows, stars. Expect drift as the external AI CLI's spinner/progress
// glyphs evolve (spec §9).
var noiseRanges = []struct{ lo, hi rune }{
	{0x2500, 0x257F}, // box drawing
	{0x2580, 0x259F}, // block elements
	{0x2800, 0x28FF}, // braille patterns
	{0x2700, 0x27BF}, // dingbats
	{0x2190, 0x21FF}, // arrows
	{0x2B00, 0x2BFF}, // misc symbols and arrows / stars
}

// noisePhrasePatterns are curated terminal-UI phrases: spinners,
// "press Esc" prompts, token/file counters, shell-prompt fragments.
var noisePhrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)esc to cancel`),
	regexp.MustCompile(`(?i)press (ctrl-c|esc) to (cancel|interrupt|exit)`),
	regexp.MustCompile(`(?i)\d+ tokens? used`),
	regexp.MustCompile(`(?i)\d+ files? (changed|read|modified)`),
	regexp.MustCompile(`(?i)^\s*[-\\|/]\s*$`), // spinner frames
	regexp.MustCompile(`(?i)thinking\.\.\.`),
	regexp.MustCompile(`(?i)\(esc\)`),
}

var (
	runsOfSpace   = regexp.MustCompile(`[ \t]{3,}`)
	runsOfNewline = regexp.MustCompile(`\n{3,}`)
)

// StripNoise removes decorative Unicode ranges, curated UI phrases, and
// collapses excessive whitespace. Applied after ANSI stripping, once
// the whole text is available (events, then again on emitted chunks,
// since UI patterns can span event boundaries).
func StripNoise(text string) string {
	out := make([]rune, 0, len(text))
	for _, r := range text {
		if isNoiseRune(r) {
			continue
		}
		out = append(out, r)
	}
	s := string(out)

	for _, pat := range noisePhrasePatterns {
		s = pat.ReplaceAllString(s, "")
	}

	s = runsOfSpace.ReplaceAllString(s, " ")
	s = runsOfNewline.ReplaceAllString(s, "\n\n")
	return s
}

func isNoiseRune(r rune) bool {
	for _, rng := range noiseRanges {
		if r >= rng.lo && r <= rng.hi {
			return true
		}
	}
	return false
}
