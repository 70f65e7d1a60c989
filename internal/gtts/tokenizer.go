package gtts

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxPartRunes is the longest text the batchexecute endpoint accepts in one call
const maxPartRunes = 100

// punctuation that always ends a token and is dropped
const splitPunctuation = "¡()[]¿…‥،;—。，、：\n"

// tone marks end a token but are kept, the engine uses them for intonation
const toneMarks = "?!？！"

var (
	// a word broken over two lines with a hyphen
	hyphenatedLineBreak = regexp.MustCompile(`-\r?\n`)

	// abbreviations that are spoken the same without their period
	abbreviationPeriod = regexp.MustCompile(`(?i)\b(dr|jr|mr|mrs|ms|msgr|prof|sr|st)\.`)

	wordSubstitutions = strings.NewReplacer("Esq.", "Esquire")
)

// Tokenize cuts text into the parts sent upstream: pre-processed, split on
// punctuation, then minimized so no part is longer than maxPartRunes. Parts
// that hold only punctuation or spaces are dropped.
func Tokenize(text string) []string {
	var parts []string
	for _, token := range splitOnPunctuation(preprocess(text)) {
		parts = append(parts, minimize(token, maxPartRunes)...)
	}
	return parts
}

// preprocess rejoins hyphenated line breaks, so the halves are not split
// apart, and removes periods that would otherwise end a sentence early.
func preprocess(text string) string {
	text = hyphenatedLineBreak.ReplaceAllString(text, "")
	text = wordSubstitutions.Replace(text)
	return abbreviationPeriod.ReplaceAllString(text, "$1")
}

// splitOnPunctuation drops the punctuation it splits on, except tone marks.
// Periods and commas only split when followed by a space (not "3.14" or
// "1,000"), colons only when not between digits (not "10:30").
func splitOnPunctuation(text string) []string {
	runes := []rune(text)
	var (
		tokens []string
		start  int
	)

	emit := func(end int) {
		token := strings.TrimSpace(string(runes[start:end]))
		if !isPunctuationOnly(token) {
			tokens = append(tokens, token)
		}
	}

	for i, r := range runes {
		split := false
		switch {
		case strings.ContainsRune(toneMarks, r):
			emit(i + 1)
			start = i + 1
			continue
		case strings.ContainsRune(splitPunctuation, r):
			split = true
		case r == '.' || r == ',':
			split = i == len(runes)-1 || unicode.IsSpace(runes[i+1])
		case r == ':':
			split = !(i > 0 && i < len(runes)-1 && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]))
		}
		if split {
			emit(i)
			start = i + 1
		}
	}
	emit(len(runes))
	return tokens
}

func isPunctuationOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSpace(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return true
}

// minimize splits a token at the last space before limit runes, or hard
// at limit when the token has no space.
func minimize(token string, limit int) []string {
	var parts []string
	for utf8.RuneCountInString(token) > limit {
		runes := []rune(token)
		cut := limit
		for i := limit; i > 0; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		if head := strings.TrimSpace(string(runes[:cut])); head != "" {
			parts = append(parts, head)
		}
		token = strings.TrimSpace(string(runes[cut:]))
	}
	if token != "" {
		parts = append(parts, token)
	}
	return parts
}
