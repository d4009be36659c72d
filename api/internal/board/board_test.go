package board

import (
	"reflect"
	"testing"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		digits int
		ok     bool
	}{
		{"15000", 15000, 5, true},
		{"15,000", 15000, 5, true},
		{"1.234.567", 1234567, 7, true},
		{" 8000 ", 8000, 4, true},
		{"1 234 567", 0, 0, false},
		{"12\u00a0500", 0, 0, false},
		{"3 15000", 0, 0, false},
		{"๑๒๓๔", 1234, 4, true},
		{"１２３４", 1234, 4, true},
		{"12a4", 0, 0, false},
		{"", 0, 0, false},
		{",.", 0, 0, false},
		{"-500", 0, 0, false},
		{"99999999999999999999", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, ok := ParseNumber(tt.in)
			if ok != tt.ok {
				t.Fatalf("ParseNumber(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && (n.Value != tt.want || n.Digits != tt.digits) {
				t.Errorf("ParseNumber(%q) = %+v, want value %d digits %d", tt.in, n, tt.want, tt.digits)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	rules := Rules{MinDigits: 4, Ignore: NewWordSet(append(DefaultIgnoreWords, "MeAndBro")...)}
	tests := []struct {
		text string
		want Class
	}{
		{"15000", Numeric},
		{"12,345", Numeric},
		{"123", Ignored},
		{"1,23", Ignored},
		{"Alice", Label},
		{"A", Ignored},
		{"Rank", Ignored},
		{"meandbro", Ignored},
		{"MEANDBRO", Ignored},
		{"Lv", Ignored},
		{"Bob 2", Label},
		{"สมชาย", Label},
		{"3 15000", Label},
	}
	for _, tt := range tests {
		if got := rules.Classify(tt.text); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestPairSameRow(t *testing.T) {
	p := NewPairer(PairerConfig{}, NewWordSet(DefaultIgnoreWords...))
	blocks := []TextBlock{
		{Text: "15000", X: 200, YCenter: 52},
		{Text: "Alice", X: 10, YCenter: 50},
	}
	got := p.Pair("img-1", blocks)
	want := []Pair{{Label: "Alice", Value: 15000, Image: "img-1"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Pair() = %+v, want %+v", got, want)
	}
}

func TestPairSkipsSpaceSeparatedDigits(t *testing.T) {
	p := NewPairer(PairerConfig{}, NewWordSet(DefaultIgnoreWords...))
	blocks := []TextBlock{
		{Text: "Alice", X: 10, YCenter: 50},
		{Text: "3 15000", X: 200, YCenter: 50},
	}
	if got := p.Pair("img-1", blocks); len(got) != 0 {
		t.Fatalf("Pair() = %+v, want no pairs", got)
	}
}

func TestPairRequiresLabelLeftAndWithinTolerance(t *testing.T) {
	p := NewPairer(PairerConfig{RowTolerance: 30}, NewWordSet(DefaultIgnoreWords...))
	tests := []struct {
		name   string
		blocks []TextBlock
	}{
		{"label right of number", []TextBlock{{Text: "9000", X: 10, YCenter: 50}, {Text: "Alice", X: 100, YCenter: 50}}},
		{"label same x", []TextBlock{{Text: "9000", X: 10, YCenter: 50}, {Text: "Alice", X: 10, YCenter: 50}}},
		{"exactly at tolerance", []TextBlock{{Text: "9000", X: 100, YCenter: 80}, {Text: "Alice", X: 10, YCenter: 50}}},
		{"short number", []TextBlock{{Text: "900", X: 100, YCenter: 50}, {Text: "Alice", X: 10, YCenter: 50}}},
		{"ignored header", []TextBlock{{Text: "9000", X: 100, YCenter: 50}, {Text: "Score", X: 10, YCenter: 50}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Pair("img", tt.blocks); len(got) != 0 {
				t.Fatalf("Pair() = %+v, want no pairs", got)
			}
		})
	}
}

func TestPairConsumesEachBlockOnce(t *testing.T) {
	p := NewPairer(PairerConfig{}, nil)
	blocks := []TextBlock{
		{Text: "Alice", X: 10, YCenter: 50},
		{Text: "15000", X: 200, YCenter: 50},
		{Text: "16000", X: 300, YCenter: 55},
		{Text: "Bob", X: 10, YCenter: 100},
		{Text: "7000", X: 200, YCenter: 101},
	}
	got := p.Pair("img", blocks)
	want := []Pair{
		{Label: "Alice", Value: 15000, Image: "img"},
		{Label: "Bob", Value: 7000, Image: "img"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Pair() = %+v, want %+v", got, want)
	}
}

func TestPairFirstVersusNearest(t *testing.T) {
	// Two labels left of the number on the same row: "Guild Tag" sits far
	// left and comes first in reading order, "Carol" sits right next to
	// the number.
	blocks := []TextBlock{
		{Text: "Guild Tag", X: 5, YCenter: 49},
		{Text: "Carol", X: 150, YCenter: 50},
		{Text: "12000", X: 300, YCenter: 51},
	}

	first := NewPairer(PairerConfig{Policy: FirstMatch}, nil).Pair("img", blocks)
	if len(first) != 1 || first[0].Label != "Guild Tag" {
		t.Fatalf("FirstMatch paired %+v, want label %q", first, "Guild Tag")
	}

	nearest := NewPairer(PairerConfig{Policy: NearestMatch}, nil).Pair("img", blocks)
	if len(nearest) != 1 || nearest[0].Label != "Carol" {
		t.Fatalf("NearestMatch paired %+v, want label %q", nearest, "Carol")
	}
}

func TestPairDoesNotMutateInput(t *testing.T) {
	blocks := []TextBlock{
		{Text: "15000", X: 200, YCenter: 90},
		{Text: "Alice", X: 10, YCenter: 10},
	}
	orig := append([]TextBlock(nil), blocks...)
	NewPairer(PairerConfig{}, nil).Pair("img", blocks)
	if !reflect.DeepEqual(blocks, orig) {
		t.Fatalf("input reordered: %+v", blocks)
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy("Nearest"); err != nil || p != NearestMatch {
		t.Fatalf("ParsePolicy(Nearest) = %v, %v", p, err)
	}
	if p, err := ParsePolicy(""); err != nil || p != FirstMatch {
		t.Fatalf("ParsePolicy(\"\") = %v, %v", p, err)
	}
	if _, err := ParsePolicy("best"); err == nil {
		t.Fatal("ParsePolicy(best) should fail")
	}
}
