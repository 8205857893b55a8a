package speech

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// abbreviations never end a sentence. Lowercase, without the final period.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true, "sr": true, "jr": true,
	"e.g": true, "i.e": true, "etc": true, "vs": true, "cf": true, "no": true,
	"st": true, "jl": true, "yth": true, "bpk": true, "sdr": true, "ir": true,
	"dll": true, "dsb": true, "dst": true, "tsb": true, "hlm": true, "tgl": true,
	"u.s": true, "u.k": true, "a.n": true, "s.d": true,
}

// Sentences splits plain text at sentence ends. Abbreviations, decimals
// and terminators not followed by whitespace do not end a sentence.
func Sentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		end := i + 1
		for end < len(runes) && (isTerminator(runes[end]) || isCloser(runes[end])) {
			end++
		}
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			i = end - 1
			continue
		}
		if runes[i] == '.' && isAbbreviation(runes[start:i]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
		i = end - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// Chunk packs the sentences of text into pieces of at most max bytes.
// Sentences longer than max are split between words, and words longer
// than max between runes.
func Chunk(text string, max int) []string {
	if max <= 0 {
		return nil
	}
	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	add := func(piece string) {
		if cur.Len() > 0 && cur.Len()+1+len(piece) > max {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(piece)
	}

	for _, s := range Sentences(text) {
		if len(s) <= max {
			add(s)
			continue
		}
		for _, w := range strings.Fields(s) {
			for len(w) > max {
				cut := max
				for cut > 0 && !utf8.RuneStart(w[cut]) {
					cut--
				}
				if cut == 0 {
					_, cut = utf8.DecodeRuneInString(w)
				}
				flush()
				chunks = append(chunks, w[:cut])
				w = w[cut:]
			}
			add(w)
		}
	}
	flush()
	return chunks
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func isCloser(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == ']' || r == '”' || r == '’'
}

// isAbbreviation reports whether the word before a period is a known
// abbreviation or a single letter.
func isAbbreviation(before []rune) bool {
	i := len(before)
	for i > 0 && !unicode.IsSpace(before[i-1]) && before[i-1] != '(' {
		i--
	}
	word := strings.ToLower(string(before[i:]))
	return abbreviations[word] || utf8.RuneCountInString(word) == 1
}
