package board

import (
	"sort"
	"strings"
)

const DefaultThreshold = 70

// MatchKind tags a MatchResult.
type MatchKind int

const (
	Unmatched MatchKind = iota
	Matched
)

func (k MatchKind) String() string {
	if k == Matched {
		return "matched"
	}
	return "unmatched"
}

// MatchResult is Matched{Entity, Score} or Unmatched{RawLabel}.
type MatchResult struct {
	Kind     MatchKind
	Entity   string
	Score    int
	RawLabel string
}

// ReconcilerConfig configures a Reconciler. Threshold is used as given when
// it is within 0..100; 0 accepts the best name whatever its score. Values
// outside the range fall back to DefaultThreshold.
type ReconcilerConfig struct {
	Threshold int
	GuildName string
	Scorer    Scorer
}

// Reconciler matches pair labels against roster names. It holds no roster
// state; callers pass a snapshot of names on every call.
type Reconciler struct {
	threshold  int
	guildLower string
	scorer     Scorer
}

func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	r := &Reconciler{
		threshold:  cfg.Threshold,
		guildLower: lower(strings.TrimSpace(cfg.GuildName)),
		scorer:     cfg.Scorer,
	}
	if r.threshold < 0 || r.threshold > 100 {
		r.threshold = DefaultThreshold
	}
	if r.scorer == nil {
		r.scorer = RatioScorer
	}
	return r
}

// Reconcile classifies p against names. The second result is false when the
// pair is discarded because its label is the guild (report title) name.
func (r *Reconciler) Reconcile(p Pair, names []string) (MatchResult, bool) {
	label := strings.TrimSpace(p.Label)
	if len(names) > 0 {
		best, score := r.best(label, names)
		if score >= r.threshold {
			return MatchResult{Kind: Matched, Entity: best, Score: score}, true
		}
	}
	if r.guildLower != "" && lower(label) == r.guildLower {
		return MatchResult{}, false
	}
	return MatchResult{Kind: Unmatched, RawLabel: p.Label}, true
}

func (r *Reconciler) best(label string, names []string) (string, int) {
	bestName, bestScore := "", -1
	for _, n := range names {
		if s := r.scorer.Score(label, n); s > bestScore {
			bestName, bestScore = n, s
		}
	}
	return bestName, bestScore
}

// Suggest returns up to n roster names ordered by descending score. Names
// scoring zero are left out.
func (r *Reconciler) Suggest(label string, names []string, n int) []string {
	type scored struct {
		name  string
		score int
	}
	all := make([]scored, 0, len(names))
	for _, name := range names {
		if s := r.scorer.Score(label, name); s > 0 {
			all = append(all, scored{name, s})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if len(all) > n {
		all = all[:n]
	}
	if len(all) == 0 {
		return nil
	}
	out := make([]string, len(all))
	for i, s := range all {
		out[i] = s.name
	}
	return out
}
