package roster

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"guild-roster/api/internal/board"
)

// ErrStaleTarget marks a map decision whose entity left the roster between
// the scan and the decision.
var ErrStaleTarget = errors.New("roster: target entity no longer exists")

type Action int

const (
	CreateNew Action = iota + 1
	MapToExisting
)

func (a Action) String() string {
	switch a {
	case CreateNew:
		return "new"
	case MapToExisting:
		return "map"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ParseAction accepts "new" or "map".
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "new", "create":
		return CreateNew, nil
	case "map", "existing":
		return MapToExisting, nil
	default:
		return 0, &ValidationError{Field: "action", Msg: fmt.Sprintf("unknown action %q", s)}
	}
}

// Decision resolves the pending candidate at Index. Name is the new entity
// name for CreateNew and the target entity for MapToExisting. Value, when
// set, replaces the scanned number.
type Decision struct {
	Index  int
	Action Action
	Name   string
	Value  *int64
}

type ApplyResult struct {
	Created int      `json:"created"`
	Mapped  int      `json:"mapped"`
	Stale   []string `json:"stale,omitempty"`
}

// StaleErr wraps ErrStaleTarget with the stale names, or returns nil.
func (r ApplyResult) StaleErr() error {
	if len(r.Stale) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrStaleTarget, strings.Join(r.Stale, ", "))
}

// Ledger holds the candidates of the last scan batch until they are applied
// or discarded. A new Stage replaces the previous generation.
type Ledger struct {
	mu      sync.Mutex
	batch   string
	column  string
	pending []board.Candidate
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Stage replaces the pending set with candidates of batch scanned into column.
func (l *Ledger) Stage(batch, column string, candidates []board.Candidate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batch = batch
	l.column = column
	l.pending = append([]board.Candidate(nil), candidates...)
}

// Pending returns the target column and a copy of the pending candidates.
func (l *Ledger) Pending() (string, []board.Candidate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.column, append([]board.Candidate(nil), l.pending...)
}

// Batch returns the id of the batch the pending candidates came from.
func (l *Ledger) Batch() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.batch
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Discard drops every pending candidate without touching any roster.
func (l *Ledger) Discard() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batch, l.pending = "", nil
}

// Apply resolves pending candidates of batch into r as one unit. Decision
// indexes refer to that batch, so a batch other than the staged one is a
// ValidationError; an empty batch means whatever is staged. Candidates
// without a decision are skipped. On a validation error nothing is applied
// and the ledger is kept; otherwise the ledger is cleared.
func (l *Ledger) Apply(r *Roster, batch string, decisions []Decision) (ApplyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if batch != "" && batch != l.batch {
		msg := fmt.Sprintf("batch %s is not pending", batch)
		if l.batch != "" {
			msg += fmt.Sprintf(" (pending candidates belong to batch %s)", l.batch)
		}
		return ApplyResult{}, &ValidationError{Field: "batch_id", Msg: msg}
	}
	if err := l.validate(r, decisions); err != nil {
		return ApplyResult{}, err
	}

	var res ApplyResult
	err := r.Update(func(work *Roster) error {
		for _, d := range decisions {
			c := l.pending[d.Index]
			value := c.Value
			if d.Value != nil {
				value = *d.Value
			}
			name := strings.TrimSpace(d.Name)
			switch d.Action {
			case CreateNew:
				if _, exists := work.byName[name]; exists {
					if err := work.set(name, l.column, value); err != nil {
						return err
					}
					res.Mapped++
					continue
				}
				if err := work.add(name, map[string]int64{l.column: value}); err != nil {
					return err
				}
				res.Created++
			case MapToExisting:
				err := work.set(name, l.column, value)
				if errors.Is(err, ErrNotFound) {
					res.Stale = append(res.Stale, name)
					continue
				}
				if err != nil {
					return err
				}
				res.Mapped++
			}
		}
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}
	l.batch, l.pending = "", nil
	return res, nil
}

func (l *Ledger) validate(r *Roster, decisions []Decision) error {
	if len(decisions) > 0 && !r.HasColumn(l.column) {
		return &ValidationError{Field: "column", Msg: fmt.Sprintf("unknown column %q", l.column)}
	}
	seen := make(map[int]bool, len(decisions))
	for _, d := range decisions {
		if d.Index < 0 || d.Index >= len(l.pending) {
			return &ValidationError{Field: "index", Msg: fmt.Sprintf("no pending candidate %d", d.Index)}
		}
		if seen[d.Index] {
			return &ValidationError{Field: "index", Msg: fmt.Sprintf("candidate %d decided twice", d.Index)}
		}
		seen[d.Index] = true
		switch d.Action {
		case CreateNew, MapToExisting:
		default:
			return &ValidationError{Field: "action", Msg: fmt.Sprintf("candidate %d: %v", d.Index, d.Action)}
		}
		if strings.TrimSpace(d.Name) == "" {
			return &ValidationError{Field: "name", Msg: fmt.Sprintf("candidate %d: name must not be empty", d.Index)}
		}
		if d.Value != nil && *d.Value < 0 {
			return &ValidationError{Field: "value", Msg: fmt.Sprintf("candidate %d: negative value", d.Index)}
		}
	}
	return nil
}
