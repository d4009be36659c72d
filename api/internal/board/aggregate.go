package board

// Result is a pair together with its reconciliation outcome.
type Result struct {
	Pair  Pair
	Match MatchResult
}

// Outcome is what one scan batch produces: direct roster updates and
// candidates that need a human decision.
type Outcome struct {
	Updates map[string]int64
	// Order lists the keys of Updates in first-seen order.
	Order   []string
	Pending []Candidate
}

// Aggregate merges results from every image of a batch, in order. Later
// values win both for matched entities and for repeated raw labels.
func Aggregate(results []Result) Outcome {
	out := Outcome{Updates: make(map[string]int64)}
	pendingAt := make(map[string]int)
	for _, res := range results {
		switch res.Match.Kind {
		case Matched:
			name := res.Match.Entity
			if _, seen := out.Updates[name]; !seen {
				out.Order = append(out.Order, name)
			}
			out.Updates[name] = res.Pair.Value
		default:
			raw := res.Match.RawLabel
			if i, seen := pendingAt[raw]; seen {
				out.Pending[i].Value = res.Pair.Value
				out.Pending[i].Image = res.Pair.Image
				continue
			}
			pendingAt[raw] = len(out.Pending)
			out.Pending = append(out.Pending, Candidate{
				RawLabel: raw,
				Value:    res.Pair.Value,
				Image:    res.Pair.Image,
			})
		}
	}
	return out
}
