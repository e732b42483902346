// Package extract pulls structured payloads and clean prose out of raw
// model output, which routinely arrives wrapped in code fences, preambles,
// or leaked planning text.
package extract

import (
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?m)^```(?:json)?\\s*$")

// JSONText returns the most plausible JSON span inside raw text. Code
// fences are stripped first; then the span from the earliest opening
// bracket to its matching closer is taken. Text without any bracket is
// returned trimmed as is, so callers surface the parse error with the
// original content attached.
func JSONText(raw string) string {
	s := fenceRe.ReplaceAllString(raw, "")
	s = strings.TrimSpace(s)

	objStart := strings.IndexByte(s, '{')
	arrStart := strings.IndexByte(s, '[')

	start, open, close := -1, byte('{'), byte('}')
	switch {
	case objStart == -1 && arrStart == -1:
		return s
	case objStart == -1:
		start, open, close = arrStart, '[', ']'
	case arrStart == -1 || objStart < arrStart:
		start = objStart
	default:
		start, open, close = arrStart, '[', ']'
	}

	end := matchingBracket(s, start, open, close)
	if end == -1 {
		return strings.TrimSpace(s[start:])
	}
	return s[start : end+1]
}

// matchingBracket finds the index of the bracket closing s[start], honoring
// string literals and escapes. Returns -1 if the span never closes.
func matchingBracket(s string, start int, open, close byte) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// CleanOptions controls paragraph cleaning.
type CleanOptions struct {
	// MinWords..MaxWords is the accepted word band for a candidate.
	MinWords int
	MaxWords int
	// Markers are lowercase phrases that disqualify a candidate as leaked
	// model planning rather than article prose.
	Markers []string
}

// DefaultCleanOptions returns the standard cleaning configuration.
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{
		MinWords: 40,
		MaxWords: 140,
		Markers: []string{
			"we need", "let's", "lets", "count", "ensure word count",
			"i will", "draft", "plan", "outline", "analysis", "approach",
			"step", "goal", "objective", "strategy",
		},
	}
}

// CleanParagraph extracts one publishable paragraph from raw model output.
// Candidates are quoted spans and individual lines; the first one inside
// the word band without planning markers wins. When nothing qualifies, the
// raw text is reassembled from its clean sentences. Output is always
// whitespace-normalized, and cleaning already-clean text is a no-op.
func CleanParagraph(raw string, opts CleanOptions) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}

	for _, cand := range candidates(text) {
		if acceptable(cand, opts) {
			return normalizeSpace(cand)
		}
	}

	// Fallback: keep only sentences free of planning markers.
	var kept []string
	for _, sent := range splitSentences(text) {
		if !hasMarker(sent, opts.Markers) {
			kept = append(kept, sent)
		}
	}
	if len(kept) > 0 {
		return normalizeSpace(strings.Join(kept, " "))
	}
	return normalizeSpace(text)
}

// candidates yields quoted spans first, then lines, deduplicated in order.
func candidates(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, span := range quotedSpans(text) {
		add(span)
	}
	for _, line := range strings.Split(text, "\n") {
		add(line)
	}
	return out
}

func quotedSpans(text string) []string {
	var spans []string
	start := -1
	for i, r := range text {
		if r != '"' {
			continue
		}
		if start == -1 {
			start = i + 1
		} else {
			spans = append(spans, text[start:i])
			start = -1
		}
	}
	return spans
}

func acceptable(cand string, opts CleanOptions) bool {
	words := len(strings.Fields(cand))
	if words < opts.MinWords || words > opts.MaxWords {
		return false
	}
	// A candidate ending in a colon is a lead-in, not a paragraph.
	if strings.HasSuffix(strings.TrimSpace(cand), ":") {
		return false
	}
	return !hasMarker(cand, opts.Markers)
}

func hasMarker(s string, markers []string) bool {
	lower := strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// splitSentences breaks text after '.', '!' or '?' followed by whitespace.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				if s := strings.TrimSpace(cur.String()); s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

var spaceRe = regexp.MustCompile(`\s+`)

func normalizeSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// BoldKeyword wraps every case-insensitive occurrence of keyword in
// Markdown bold markers, preserving the original casing.
func BoldKeyword(text, keyword string) string {
	if keyword == "" {
		return text
	}
	re, err := regexp.Compile("(?i)(" + regexp.QuoteMeta(keyword) + ")")
	if err != nil {
		return text
	}
	return re.ReplaceAllString(text, "**$1**")
}
