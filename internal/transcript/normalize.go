// Package transcript turns recognition output into the final text artifact:
// best-alternative extraction, spoken-punctuation normalization, output
// naming, and the exactly-once write.
package transcript

import (
	"strings"
)

// Placeholder marks a recording that was processed but contained no
// recognizable speech. It is valid normalizer input and passes through
// unchanged, so downstream readers can tell "nothing said" from "never ran".
const Placeholder = "[no speech detected]"

// escapeWord suppresses conversion of the single punctuation word or phrase
// that follows it, and is itself dropped when it does so.
const escapeWord = "literal"

var punctWords = map[string]string{
	"period":    ".",
	"comma":     ",",
	"colon":     ":",
	"semicolon": ";",
}

var punctPhrases = map[[2]string]string{
	{"question", "mark"}:     "?",
	{"exclamation", "mark"}:  "!",
	{"exclamation", "point"}: "!",
}

// Normalize converts spoken punctuation words into symbols attached to the
// preceding word, honors the "literal" escape, and re-flows whitespace.
// Converted output re-normalizes to itself, since symbols never re-match
// as words. Escaped output does not: the escape exists to emit bare
// punctuation words, and a second pass converts them like any others.
func Normalize(raw string) string {
	tokens := strings.Fields(raw)
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		if strings.EqualFold(tokens[i], escapeWord) && i+1 < len(tokens) {
			if _, n := matchPunct(tokens, i+1); n > 0 {
				// Escape fires: drop it, keep the next word verbatim.
				// A phrase's second word is no punctuation on its own, so
				// consuming one token covers phrases too.
				out = append(out, tokens[i+1])
				i++
				continue
			}
		}
		if sym, n := matchPunct(tokens, i); n > 0 {
			if len(out) == 0 {
				out = append(out, sym)
			} else {
				out[len(out)-1] += sym
			}
			i += n - 1
			continue
		}
		out = append(out, tokens[i])
	}
	s := respace(strings.Join(out, " "))
	if s == "" {
		return Placeholder
	}
	return s
}

// matchPunct reports the symbol for the punctuation word or two-word phrase
// starting at tokens[i] and how many tokens it consumes. Phrases win over
// single words.
func matchPunct(tokens []string, i int) (string, int) {
	if i+1 < len(tokens) {
		key := [2]string{strings.ToLower(tokens[i]), strings.ToLower(tokens[i+1])}
		if sym, ok := punctPhrases[key]; ok {
			return sym, 2
		}
	}
	if sym, ok := punctWords[strings.ToLower(tokens[i])]; ok {
		return sym, 1
	}
	return "", 0
}

func isPunctSym(r rune) bool {
	switch r {
	case '.', ',', ':', ';', '?', '!':
		return true
	}
	return false
}

func isClosing(r rune) bool {
	switch r {
	case ')', ']', '}', '"', '\'', '»', '’', '”':
		return true
	}
	return false
}

// respace removes spaces before punctuation symbols, guarantees one space
// after a symbol unless the next rune is whitespace, a closing bracket or
// quote, another symbol, or the end, and collapses space runs.
func respace(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == ' ' {
			j := i
			for j < len(runes) && runes[j] == ' ' {
				j++
			}
			if j < len(runes) && !isPunctSym(runes[j]) {
				b.WriteRune(' ')
			}
			i = j - 1
			continue
		}
		b.WriteRune(r)
		if isPunctSym(r) && i+1 < len(runes) {
			next := runes[i+1]
			if next != ' ' && !isPunctSym(next) && !isClosing(next) {
				b.WriteRune(' ')
			}
		}
	}
	return strings.Trim(b.String(), " ")
}
