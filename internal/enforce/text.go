package enforce

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// span is a half-open [Start,End) byte range into the original text. Offsets
// must slice the source exactly; nothing in here may rewrite the input.
type span struct {
	Start int
	End   int
}

func (s span) of(text string) string { return text[s.Start:s.End] }

// segmentSentences splits text into sentence-level spans. A sentence ends at
// '.', '!' or '?' followed by whitespace or end of text, or at a newline.
// Decimal points ("3.5") do not terminate because the next byte is a digit.
func segmentSentences(text string) []span {
	var out []span
	start := 0

	flush := func(end int) {
		s, e := trimSpan(text, start, end)
		if e > s {
			out = append(out, span{Start: s, End: e})
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '.', '!', '?':
			if i+1 >= len(text) || isSpaceByte(text[i+1]) {
				flush(i + 1)
				start = i + 1
			}
		case '\n':
			flush(i)
			start = i + 1
		}
	}
	flush(len(text))
	return out
}

func trimSpan(text string, start, end int) (int, int) {
	for start < end && isSpaceByte(text[start]) {
		start++
	}
	for end > start && isSpaceByte(text[end-1]) {
		end--
	}
	return start, end
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "from": true, "are": true, "was": true, "were": true,
	"will": true, "has": true, "have": true, "had": true, "its": true,
	"our": true, "their": true, "which": true, "would": true, "been": true,
	"not": true, "but": true, "all": true, "can": true, "may": true,
}

// tokenize lowercases and splits on non-alphanumeric runes, dropping
// stopwords and short non-numeric tokens.
func tokenize(s string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		tok := b.String()
		b.Reset()
		if stopwords[tok] {
			return
		}
		if len(tok) < 3 && !containsDigit(tok) {
			return
		}
		tokens = append(tokens, tok)
	}
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func containsDigit(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			return true
		}
	}
	return false
}

// lexicalScore is the set cosine of the two token lists. Deterministic for
// identical inputs, which the mapping contract requires.
func lexicalScore(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}
	overlap := 0
	for t := range setA {
		if setB[t] {
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}
	return float64(overlap) / math.Sqrt(float64(len(setA))*float64(len(setB)))
}

func cosine32(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type numberKind int

const (
	numberPlain numberKind = iota
	numberMoney
	numberPercent
)

type numberToken struct {
	Kind  numberKind
	Value float64
}

// extractNumbers pulls numeric assertions out of text: plain counts, money
// ("$40,000", "40k"), and percentages. Comma thousands separators and k/m
// word multipliers are normalized the way amounts vary in funder text.
func extractNumbers(text string) []numberToken {
	var out []numberToken
	i := 0
	for i < len(text) {
		c := text[i]
		if c < '0' || c > '9' {
			i++
			continue
		}

		start := i
		for i < len(text) && (text[i] >= '0' && text[i] <= '9' || text[i] == ',' || text[i] == '.') {
			i++
		}
		raw := strings.TrimRight(text[start:i], ".,")
		clean := strings.ReplaceAll(raw, ",", "")
		val, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			continue
		}

		kind := numberPlain
		if start > 0 {
			switch text[start-1] {
			case '$':
				kind = numberMoney
			}
			if start >= 2 && strings.HasSuffix(strings.ToLower(text[:start]), "usd ") {
				kind = numberMoney
			}
		}

		rest := strings.ToLower(text[i:])
		switch {
		case strings.HasPrefix(rest, "%") || strings.HasPrefix(rest, " percent") || strings.HasPrefix(rest, " per cent"):
			kind = numberPercent
		case strings.HasPrefix(rest, "k ") || rest == "k" || strings.HasPrefix(rest, "k."):
			val *= 1_000
		case strings.HasPrefix(rest, " million") || strings.HasPrefix(rest, "m "):
			val *= 1_000_000
		case strings.HasPrefix(rest, " billion"):
			val *= 1_000_000_000
		case strings.HasPrefix(rest, " thousand"):
			val *= 1_000
		}

		out = append(out, numberToken{Kind: kind, Value: val})
	}
	return out
}

var monthNames = []string{
	"january", "february", "march", "april", "may", "june", "july",
	"august", "september", "october", "november", "december",
}

func containsDate(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range monthNames {
		if strings.Contains(lower, m) {
			return true
		}
	}
	// A bare 4-digit year also anchors a date assertion.
	for i := 0; i+4 <= len(lower); i++ {
		if (i == 0 || !isDigitByte(lower[i-1])) &&
			(lower[i] == '1' && i+1 < len(lower) && lower[i+1] == '9' || lower[i] == '2' && i+1 < len(lower) && lower[i+1] == '0') &&
			isDigitRun(lower[i:], 4) &&
			(i+4 == len(lower) || !isDigitByte(lower[i+4])) {
			return true
		}
	}
	return false
}

func isDigitByte(c byte) bool { return c >= '0' && c <= '9' }

func isDigitRun(s string, n int) bool {
	if len(s) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if !isDigitByte(s[i]) {
			return false
		}
	}
	return true
}

// containsNamedEntity reports whether a sentence asserts something about a
// multi-word proper noun (two consecutive capitalized words past the
// sentence-initial position).
func containsNamedEntity(sentence string) bool {
	words := strings.Fields(sentence)
	for i := 1; i+1 < len(words); i++ {
		if isCapitalizedWord(words[i]) && isCapitalizedWord(words[i+1]) {
			return true
		}
	}
	return false
}

func isCapitalizedWord(w string) bool {
	w = strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(w) < 2 {
		return false
	}
	r := []rune(w)
	return unicode.IsUpper(r[0]) && unicode.IsLower(r[1])
}
