package tesseract

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"guild-roster/api/internal/ocr"
)

// LineKey identifies the Tesseract line a word belongs to.
type LineKey struct {
	Block, Par, Line int
}

// Word is one word box in original image coordinates.
type Word struct {
	Text           string
	X0, Y0, X1, Y1 float64
	Confidence     float64
	Line           LineKey
}

// MergeWords joins neighbouring words of one line into phrases, the way
// EasyOCR reports text. A number is never merged with a word, so a name and
// its score stay apart even when they sit close together. Numbers only join
// as thousands groups ("12" "500"); two full numbers stay separate.
func MergeWords(words []Word, gap float64) []ocr.Detection {
	lines := make(map[LineKey][]Word)
	var keys []LineKey
	for _, w := range words {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		if _, ok := lines[w.Line]; !ok {
			keys = append(keys, w.Line)
		}
		lines[w.Line] = append(lines[w.Line], w)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Block != b.Block {
			return a.Block < b.Block
		}
		if a.Par != b.Par {
			return a.Par < b.Par
		}
		return a.Line < b.Line
	})

	var out []ocr.Detection
	for _, k := range keys {
		ws := lines[k]
		sort.SliceStable(ws, func(i, j int) bool { return ws[i].X0 < ws[j].X0 })
		cur := phrase{}
		for _, w := range ws {
			if cur.n > 0 && cur.accepts(w, gap) {
				cur.add(w)
				continue
			}
			if cur.n > 0 {
				out = append(out, cur.detection())
			}
			cur = phrase{}
			cur.add(w)
		}
		if cur.n > 0 {
			out = append(out, cur.detection())
		}
	}
	return out
}

type phrase struct {
	parts          []string
	x0, y0, x1, y1 float64
	confSum        float64
	n              int
	numeric        bool
	// grouping: every part so far reads as a thousands group chain.
	grouping bool
}

func (p *phrase) add(w Word) {
	if p.n == 0 {
		p.x0, p.y0, p.x1, p.y1 = w.X0, w.Y0, w.X1, w.Y1
		p.numeric = isNumberish(w.Text)
		n := digitCount(w.Text)
		p.grouping = n >= 1 && n <= 3
	} else {
		p.x0, p.y0 = math.Min(p.x0, w.X0), math.Min(p.y0, w.Y0)
		p.x1, p.y1 = math.Max(p.x1, w.X1), math.Max(p.y1, w.Y1)
	}
	p.parts = append(p.parts, strings.TrimSpace(w.Text))
	p.confSum += w.Confidence
	p.n++
}

func (p *phrase) accepts(w Word, gap float64) bool {
	if isNumberish(w.Text) != p.numeric {
		return false
	}
	if p.numeric && !(p.grouping && digitCount(w.Text) == 3) {
		return false
	}
	h := math.Max(p.y1-p.y0, w.Y1-w.Y0)
	return w.X0-p.x1 <= gap*h
}

func (p *phrase) detection() ocr.Detection {
	sep := " "
	if p.numeric {
		sep = ""
	}
	return ocr.Detection{
		Quad:       ocr.Rect(p.x0, p.y0, p.x1, p.y1),
		Text:       strings.Join(p.parts, sep),
		Confidence: p.confSum / float64(p.n),
	}
}

func isNumberish(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != ',' && r != '.' {
			return false
		}
	}
	return true
}

// digitCount is the length of s when it is only digits, else -1.
func digitCount(s string) int {
	s = strings.TrimSpace(s)
	n := 0
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return -1
		}
		n++
	}
	return n
}
