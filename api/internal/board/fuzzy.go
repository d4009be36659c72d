package board

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Scorer rates the similarity of two strings from 0 to 100.
type Scorer interface {
	Score(a, b string) int
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(a, b string) int

func (f ScorerFunc) Score(a, b string) int { return f(a, b) }

var (
	RatioScorer     Scorer = ScorerFunc(Ratio)
	TokenSortScorer Scorer = ScorerFunc(TokenSortRatio)
	WeightedScorer  Scorer = ScorerFunc(WeightedRatio)
)

// ScorerByName resolves ratio, token_sort or weighted.
func ScorerByName(name string) (Scorer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ratio":
		return RatioScorer, nil
	case "token_sort":
		return TokenSortScorer, nil
	case "weighted":
		return WeightedScorer, nil
	default:
		return nil, fmt.Errorf("unknown scorer %q", name)
	}
}

// Process folds case, applies NFKC and replaces everything that is not a
// letter, digit or combining mark with a single space.
func Process(s string) string {
	s = cases.Fold().String(norm.NFKC.String(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Ratio is the normalized edit-distance similarity of the processed strings.
func Ratio(a, b string) int {
	return rawRatio(Process(a), Process(b))
}

// TokenSortRatio compares the processed strings with their words sorted.
func TokenSortRatio(a, b string) int {
	return rawRatio(sortTokens(Process(a)), sortTokens(Process(b)))
}

// WeightedRatio is the best of Ratio, TokenSortRatio and, when one name is at
// least 1.5 times longer than the other, PartialRatio scaled by 0.9 (0.6 past
// an 8x length gap). "[GM] Alice" scores 90 against "Alice".
func WeightedRatio(a, b string) int {
	pa, pb := Process(a), Process(b)
	best := max(rawRatio(pa, pb), rawRatio(sortTokens(pa), sortTokens(pb)))
	la, lb := utf8.RuneCountInString(pa), utf8.RuneCountInString(pb)
	if la == 0 || lb == 0 {
		return 0
	}
	gap := float64(max(la, lb)) / float64(min(la, lb))
	if gap < 1.5 {
		return best
	}
	scale := 0.9
	if gap > 8 {
		scale = 0.6
	}
	partial := int(math.Round(scale * float64(rawPartial(pa, pb))))
	return max(best, partial)
}

// PartialRatio is the best ratio of the shorter processed string against every
// window of the same length in the longer one.
func PartialRatio(a, b string) int {
	return rawPartial(Process(a), Process(b))
}

func rawPartial(a, b string) int {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}
	s := string(short)
	best := 0
	for i := 0; i+len(short) <= len(long); i++ {
		if r := rawRatio(s, string(long[i:i+len(short)])); r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

func rawRatio(a, b string) int {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(d)/float64(max(la, lb)))))
}

func sortTokens(s string) string {
	f := strings.Fields(s)
	sort.Strings(f)
	return strings.Join(f, " ")
}
