package board

import (
	"reflect"
	"testing"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b    string
		atLeast int
		below   int
	}{
		{a: "Johnn", b: "John", atLeast: 70},
		{a: "Johnn", b: "Totally Different", below: 70},
		{a: "Alice", b: "alice", atLeast: 100},
		{a: "Bobb", b: "Alice", below: 70},
		{a: "Al!ce", b: "Al ce", atLeast: 100},
	}
	for _, tt := range tests {
		got := Ratio(tt.a, tt.b)
		if tt.atLeast > 0 && got < tt.atLeast {
			t.Errorf("Ratio(%q, %q) = %d, want >= %d", tt.a, tt.b, got, tt.atLeast)
		}
		if tt.below > 0 && got >= tt.below {
			t.Errorf("Ratio(%q, %q) = %d, want < %d", tt.a, tt.b, got, tt.below)
		}
	}
}

func TestRatioEmpty(t *testing.T) {
	if got := Ratio("", "Alice"); got != 0 {
		t.Fatalf("Ratio(empty) = %d, want 0", got)
	}
	if got := Ratio("!!", "??"); got != 0 {
		t.Fatalf("Ratio(punctuation only) = %d, want 0", got)
	}
}

func TestTokenSortRatio(t *testing.T) {
	if got := TokenSortRatio("Smith John", "John Smith"); got != 100 {
		t.Fatalf("TokenSortRatio = %d, want 100", got)
	}
	if got := WeightedRatio("Smith John", "John Smith"); got != 100 {
		t.Fatalf("WeightedRatio = %d, want 100", got)
	}
}

func TestWeightedRatioPartial(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"[GM] Alice", "Alice", 90},
		{"Alice", "[GM] Alice", 90},
		{"Alice", "Alicia", 67},
		{"Bob", "Alice", 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			if got := WeightedRatio(tt.a, tt.b); got != tt.want {
				t.Fatalf("WeightedRatio = %d, want %d", got, tt.want)
			}
		})
	}
	if got := Ratio("[GM] Alice", "Alice"); got >= DefaultThreshold {
		t.Fatalf("Ratio = %d, expected below threshold", got)
	}
	if got := PartialRatio("[GM] Alice", "Alice"); got != 100 {
		t.Fatalf("PartialRatio = %d, want 100", got)
	}
}

func TestScorerByName(t *testing.T) {
	for _, name := range []string{"", "ratio", "token_sort", "weighted"} {
		if _, err := ScorerByName(name); err != nil {
			t.Errorf("ScorerByName(%q) error = %v", name, err)
		}
	}
	if _, err := ScorerByName("jaro"); err == nil {
		t.Error("ScorerByName(jaro) should fail")
	}
}

func TestReconcile(t *testing.T) {
	r := NewReconciler(ReconcilerConfig{Threshold: DefaultThreshold, GuildName: "MeAndBro"})
	names := []string{"Alice", "Johnathan"}

	t.Run("matched", func(t *testing.T) {
		got, ok := r.Reconcile(Pair{Label: "Alice", Value: 15000}, names)
		if !ok || got.Kind != Matched || got.Entity != "Alice" || got.Score != 100 {
			t.Fatalf("Reconcile() = %+v, %v", got, ok)
		}
	})
	t.Run("unmatched keeps raw label", func(t *testing.T) {
		got, ok := r.Reconcile(Pair{Label: "Bobb", Value: 8000}, names)
		want := MatchResult{Kind: Unmatched, RawLabel: "Bobb"}
		if !ok || got != want {
			t.Fatalf("Reconcile() = %+v, %v, want %+v", got, ok, want)
		}
	})
	t.Run("empty roster", func(t *testing.T) {
		got, ok := r.Reconcile(Pair{Label: "Alice", Value: 1}, nil)
		if !ok || got.Kind != Unmatched || got.RawLabel != "Alice" {
			t.Fatalf("Reconcile() = %+v, %v", got, ok)
		}
	})
	t.Run("guild name discarded", func(t *testing.T) {
		if _, ok := r.Reconcile(Pair{Label: "MEANDBRO", Value: 1}, names); ok {
			t.Fatal("guild name should be discarded")
		}
		if _, ok := r.Reconcile(Pair{Label: " meandbro ", Value: 1}, nil); ok {
			t.Fatal("guild name should be discarded with empty roster")
		}
	})
	t.Run("first best name wins ties", func(t *testing.T) {
		got, _ := r.Reconcile(Pair{Label: "Ann"}, []string{"Ann", "ann"})
		if got.Entity != "Ann" {
			t.Fatalf("Entity = %q, want Ann", got.Entity)
		}
	})
}

func TestReconcileThreshold(t *testing.T) {
	strict := NewReconciler(ReconcilerConfig{Threshold: 90})
	if got, _ := strict.Reconcile(Pair{Label: "Johnn"}, []string{"John"}); got.Kind != Unmatched {
		t.Fatalf("threshold 90: got %+v, want unmatched", got)
	}
	loose := NewReconciler(ReconcilerConfig{Threshold: 70})
	if got, _ := loose.Reconcile(Pair{Label: "Johnn"}, []string{"John"}); got.Kind != Matched {
		t.Fatalf("threshold 70: got %+v, want matched", got)
	}
}

func TestReconcileThresholdRange(t *testing.T) {
	zero := NewReconciler(ReconcilerConfig{Threshold: 0})
	got, ok := zero.Reconcile(Pair{Label: "Bobb"}, []string{"Alice"})
	if !ok || got.Kind != Matched || got.Entity != "Alice" {
		t.Fatalf("threshold 0: got %+v, want matched Alice", got)
	}
	for _, th := range []int{-1, 101} {
		r := NewReconciler(ReconcilerConfig{Threshold: th})
		if got, _ := r.Reconcile(Pair{Label: "Bobb"}, []string{"Alice"}); got.Kind != Unmatched {
			t.Errorf("threshold %d: got %+v, want default threshold to apply", th, got)
		}
		if got, _ := r.Reconcile(Pair{Label: "Johnn"}, []string{"John"}); got.Kind != Matched {
			t.Errorf("threshold %d: Johnn unmatched under default threshold", th)
		}
	}
}

func TestSuggest(t *testing.T) {
	r := NewReconciler(ReconcilerConfig{Threshold: DefaultThreshold})
	got := r.Suggest("Bobby", []string{"Alice", "Bob", "Bobbie", "Rob"}, 2)
	want := []string{"Bobbie", "Bob"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Suggest() = %v, want %v", got, want)
	}
}

func TestAggregate(t *testing.T) {
	results := []Result{
		{Pair{Label: "Alice", Value: 100, Image: "a"}, MatchResult{Kind: Matched, Entity: "Alice", Score: 100}},
		{Pair{Label: "Bobb", Value: 8000, Image: "a"}, MatchResult{Kind: Unmatched, RawLabel: "Bobb"}},
		{Pair{Label: "Zed", Value: 1, Image: "a"}, MatchResult{Kind: Unmatched, RawLabel: "Zed"}},
		{Pair{Label: "Alicee", Value: 200, Image: "b"}, MatchResult{Kind: Matched, Entity: "Alice", Score: 91}},
		{Pair{Label: "Bobb", Value: 9000, Image: "b"}, MatchResult{Kind: Unmatched, RawLabel: "Bobb"}},
		{Pair{Label: "B0bb", Value: 9100, Image: "b"}, MatchResult{Kind: Unmatched, RawLabel: "B0bb"}},
	}
	out := Aggregate(results)

	if want := map[string]int64{"Alice": 200}; !reflect.DeepEqual(out.Updates, want) {
		t.Errorf("Updates = %v, want %v", out.Updates, want)
	}
	if want := []string{"Alice"}; !reflect.DeepEqual(out.Order, want) {
		t.Errorf("Order = %v, want %v", out.Order, want)
	}
	want := []Candidate{
		{RawLabel: "Bobb", Value: 9000, Image: "b"},
		{RawLabel: "Zed", Value: 1, Image: "a"},
		{RawLabel: "B0bb", Value: 9100, Image: "b"},
	}
	if !reflect.DeepEqual(out.Pending, want) {
		t.Errorf("Pending = %+v, want %+v", out.Pending, want)
	}
}

func TestAggregateIdempotentUpdates(t *testing.T) {
	res := Result{Pair{Label: "Alice", Value: 15000}, MatchResult{Kind: Matched, Entity: "Alice", Score: 100}}
	once := Aggregate([]Result{res})
	twice := Aggregate([]Result{res, res})
	if !reflect.DeepEqual(once.Updates, twice.Updates) {
		t.Fatalf("updates differ: once %v, twice %v", once.Updates, twice.Updates)
	}
}

func TestEndToEndMatchedAndUnmatched(t *testing.T) {
	names := []string{"Alice"}
	pairer := NewPairer(PairerConfig{}, NewWordSet(DefaultIgnoreWords...))
	rec := NewReconciler(ReconcilerConfig{Threshold: DefaultThreshold})

	run := func(blocks []TextBlock) Outcome {
		var results []Result
		for _, p := range pairer.Pair("img", blocks) {
			if m, ok := rec.Reconcile(p, names); ok {
				results = append(results, Result{Pair: p, Match: m})
			}
		}
		return Aggregate(results)
	}

	alice := run([]TextBlock{{Text: "Alice", X: 10, YCenter: 50}, {Text: "15000", X: 200, YCenter: 52}})
	if alice.Updates["Alice"] != 15000 || len(alice.Pending) != 0 {
		t.Fatalf("alice outcome = %+v", alice)
	}

	bobb := run([]TextBlock{{Text: "Bobb", X: 10, YCenter: 50}, {Text: "8000", X: 150, YCenter: 48}})
	want := []Candidate{{RawLabel: "Bobb", Value: 8000, Image: "img"}}
	if len(bobb.Updates) != 0 || !reflect.DeepEqual(bobb.Pending, want) {
		t.Fatalf("bobb outcome = %+v", bobb)
	}
}
