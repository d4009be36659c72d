package board

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Policy selects which same-row label a number is paired with.
type Policy int

const (
	// FirstMatch takes the first eligible label in reading order.
	FirstMatch Policy = iota
	// NearestMatch takes the eligible label closest to the number horizontally.
	NearestMatch
)

func (p Policy) String() string {
	if p == NearestMatch {
		return "nearest"
	}
	return "first"
}

// ParsePolicy accepts "first" or "nearest" (empty means first).
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return FirstMatch, nil
	case "nearest":
		return NearestMatch, nil
	default:
		return FirstMatch, fmt.Errorf("unknown pairing policy %q", s)
	}
}

type PairerConfig struct {
	RowTolerance float64
	MinDigits    int
	Policy       Policy
}

// Pairer pairs numeric blocks with a name label left of them on the same row.
type Pairer struct {
	tolerance float64
	policy    Policy
	rules     Rules
}

func NewPairer(cfg PairerConfig, ignore WordSet) *Pairer {
	tol := cfg.RowTolerance
	if tol <= 0 {
		tol = DefaultRowTolerance
	}
	if ignore == nil {
		ignore = NewWordSet()
	}
	return &Pairer{
		tolerance: tol,
		policy:    cfg.Policy,
		rules:     Rules{MinDigits: cfg.MinDigits, Ignore: ignore},
	}
}

// Rules returns the classification rules the pairer applies.
func (p *Pairer) Rules() Rules { return p.rules }

// Pair returns the pairs found among blocks of one image. Every block is
// used by at most one pair; numbers without a label are dropped.
func (p *Pairer) Pair(image string, blocks []TextBlock) []Pair {
	sorted := make([]TextBlock, len(blocks))
	copy(sorted, blocks)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].YCenter < sorted[b].YCenter })

	classes := make([]Class, len(sorted))
	for i, b := range sorted {
		classes[i] = p.rules.Classify(b.Text)
	}

	used := make([]bool, len(sorted))
	var pairs []Pair
	for i, num := range sorted {
		if used[i] || classes[i] != Numeric {
			continue
		}
		j := p.findLabel(sorted, classes, used, i)
		if j < 0 {
			continue
		}
		n, _ := ParseNumber(num.Text)
		used[i], used[j] = true, true
		pairs = append(pairs, Pair{
			Label: strings.TrimSpace(sorted[j].Text),
			Value: n.Value,
			Image: image,
		})
	}
	return pairs
}

func (p *Pairer) findLabel(blocks []TextBlock, classes []Class, used []bool, i int) int {
	num := blocks[i]
	best := -1
	bestDX, bestDY := math.Inf(1), math.Inf(1)
	for j, cand := range blocks {
		if j == i || used[j] || classes[j] != Label {
			continue
		}
		dy := math.Abs(num.YCenter - cand.YCenter)
		if dy >= p.tolerance || cand.X >= num.X {
			continue
		}
		if p.policy == FirstMatch {
			return j
		}
		dx := num.X - cand.X
		if dx < bestDX || (dx == bestDX && dy < bestDY) {
			best, bestDX, bestDY = j, dx, dy
		}
	}
	return best
}
