package board

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// DefaultIgnoreWords are leaderboard headers that OCR otherwise reads as names.
var DefaultIgnoreWords = []string{
	"rank", "score", "damage", "total", "guild", "boss", "level", "lv", "name", "point",
}

const (
	DefaultMinDigits    = 4
	DefaultRowTolerance = 30
)

// Class is the role a text block can play during pairing.
type Class int

const (
	Ignored Class = iota
	Numeric
	Label
)

func (c Class) String() string {
	switch c {
	case Numeric:
		return "numeric"
	case Label:
		return "label"
	default:
		return "ignored"
	}
}

// Number is the typed result of ParseNumber.
type Number struct {
	Value  int64
	Digits int
}

// ParseNumber strips thousands separators ("," and ".") and reports whether
// what is left is a plain run of decimal digits. Thai digits are accepted
// because the leaderboards are rendered in Thai as well as Latin script.
func ParseNumber(text string) (Number, bool) {
	s := norm.NFKC.String(strings.TrimSpace(text))
	s = strings.NewReplacer(",", "", ".", "").Replace(s)
	if s == "" {
		return Number{}, false
	}
	var b strings.Builder
	b.Grow(len(s))
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= '๐' && r <= '๙':
			b.WriteRune('0' + (r - '๐'))
		default:
			return Number{}, false
		}
		digits++
	}
	v, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return Number{}, false
	}
	return Number{Value: v, Digits: digits}, true
}

// WordSet is a set of lowercase words.
type WordSet map[string]struct{}

// NewWordSet lowercases and trims every word; blanks are dropped.
func NewWordSet(words ...string) WordSet {
	ws := make(WordSet, len(words))
	for _, w := range words {
		ws.Add(w)
	}
	return ws
}

func (ws WordSet) Add(w string) {
	w = lower(strings.TrimSpace(w))
	if w != "" {
		ws[w] = struct{}{}
	}
}

func (ws WordSet) Has(w string) bool {
	_, ok := ws[lower(strings.TrimSpace(w))]
	return ok
}

// Rules decide how a block is classified.
type Rules struct {
	MinDigits int
	Ignore    WordSet
}

func (r Rules) minDigits() int {
	if r.MinDigits <= 0 {
		return DefaultMinDigits
	}
	return r.MinDigits
}

// Classify returns the role of text under r.
func (r Rules) Classify(text string) Class {
	text = strings.TrimSpace(text)
	if n, ok := ParseNumber(text); ok && n.Digits >= r.minDigits() {
		return Numeric
	}
	if utf8.RuneCountInString(text) < 2 {
		return Ignored
	}
	if r.Ignore.Has(text) {
		return Ignored
	}
	if isDigits(strings.ReplaceAll(text, ",", "")) {
		return Ignored
	}
	return Label
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9') && !(r >= '๐' && r <= '๙') {
			return false
		}
	}
	return true
}

func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}
