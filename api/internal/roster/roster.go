// Package roster keeps the table of known guild members and their per-column
// scores, and the ledger of scanned names waiting for a human decision.
package roster

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// DefaultNameHeader is the header of the member-name column in persisted sheets.
const DefaultNameHeader = "ชื่อสมาชิก"

// DefaultColumns are the boss columns of the guild's weekly sheet.
var DefaultColumns = []string{"ลูดี้", "ไอลีน", "ราเชล", "เดลโลน", "เจฟ", "สไปร์ค", "คริส"}

var ErrNotFound = errors.New("roster: entity not found")

// ValidationError rejects input before anything is mutated.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "roster: " + e.Msg
	}
	return fmt.Sprintf("roster: %s: %s", e.Field, e.Msg)
}

// Entity is one member row. Values is aligned with Roster.Columns.
type Entity struct {
	Name   string  `json:"name" yaml:"name"`
	Values []int64 `json:"values" yaml:"values"`
}

// Total sums every column of e.
func (e Entity) Total() int64 {
	var t int64
	for _, v := range e.Values {
		t += v
	}
	return t
}

// Roster is safe for concurrent use. Names are unique and compared exactly.
type Roster struct {
	mu       sync.RWMutex
	columns  []string
	colIdx   map[string]int
	entities []Entity
	byName   map[string]int
}

// New returns an empty roster over the given ordered columns.
func New(columns []string) (*Roster, error) {
	if len(columns) == 0 {
		return nil, &ValidationError{Field: "columns", Msg: "at least one column is required"}
	}
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, &ValidationError{Field: "columns", Msg: "blank column name"}
		}
		if _, dup := idx[c]; dup {
			return nil, &ValidationError{Field: "columns", Msg: fmt.Sprintf("duplicate column %q", c)}
		}
		idx[c] = i
	}
	cols := make([]string, len(columns))
	for c, i := range idx {
		cols[i] = c
	}
	return &Roster{
		columns: cols,
		colIdx:  idx,
		byName:  make(map[string]int),
	}, nil
}

// MustNew is New for static column sets.
func MustNew(columns []string) *Roster {
	r, err := New(columns)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Roster) Columns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.columns...)
}

// HasColumn reports whether column belongs to the roster's column set.
func (r *Roster) HasColumn(column string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.colIdx[column]
	return ok
}

func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

// Names returns entity names in insertion order.
func (r *Roster) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.entities))
	for i, e := range r.entities {
		out[i] = e.Name
	}
	return out
}

func (r *Roster) Get(name string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byName[name]
	if !ok {
		return Entity{}, false
	}
	return cloneEntity(r.entities[i]), true
}

func (r *Roster) Value(name, column string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byName[name]
	if !ok {
		return 0, false
	}
	c, ok := r.colIdx[column]
	if !ok {
		return 0, false
	}
	return r.entities[i].Values[c], true
}

// Add appends a new entity. Columns not present in values are 0.
func (r *Roster) Add(name string, values map[string]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(name, values)
}

func (r *Roster) add(name string, values map[string]int64) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Field: "name", Msg: "must not be empty"}
	}
	if _, exists := r.byName[name]; exists {
		return &ValidationError{Field: "name", Msg: fmt.Sprintf("%q already exists", name)}
	}
	row := make([]int64, len(r.columns))
	for col, v := range values {
		c, ok := r.colIdx[col]
		if !ok {
			return &ValidationError{Field: "column", Msg: fmt.Sprintf("unknown column %q", col)}
		}
		row[c] = v
	}
	r.byName[name] = len(r.entities)
	r.entities = append(r.entities, Entity{Name: name, Values: row})
	return nil
}

// Set overwrites one cell.
func (r *Roster) Set(name, column string, v int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set(name, column, v)
}

func (r *Roster) set(name, column string, v int64) error {
	c, ok := r.colIdx[column]
	if !ok {
		return &ValidationError{Field: "column", Msg: fmt.Sprintf("unknown column %q", column)}
	}
	i, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	r.entities[i].Values[c] = v
	return nil
}

// ApplyUpdates writes every update into column in one step. Names that are
// not in the roster are returned and skipped.
func (r *Roster) ApplyUpdates(column string, updates map[string]int64, order []string) (applied int, missing []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.colIdx[column]; !ok {
		return 0, nil, &ValidationError{Field: "column", Msg: fmt.Sprintf("unknown column %q", column)}
	}
	keys := order
	if len(keys) != len(updates) {
		keys = make([]string, 0, len(updates))
		for k := range updates {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	for _, name := range keys {
		v, ok := updates[name]
		if !ok {
			continue
		}
		if err := r.set(name, column, v); err != nil {
			if errors.Is(err, ErrNotFound) {
				missing = append(missing, name)
				continue
			}
			return applied, missing, err
		}
		applied++
	}
	return applied, missing, nil
}

// Entities returns a deep copy of all rows.
func (r *Roster) Entities() []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entity, len(r.entities))
	for i, e := range r.entities {
		out[i] = cloneEntity(e)
	}
	return out
}

// Clone returns an independent copy.
func (r *Roster) Clone() *Roster {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cloneLocked()
}

func (r *Roster) cloneLocked() *Roster {
	c := &Roster{
		columns:  append([]string(nil), r.columns...),
		colIdx:   make(map[string]int, len(r.colIdx)),
		entities: make([]Entity, len(r.entities)),
		byName:   make(map[string]int, len(r.byName)),
	}
	for k, v := range r.colIdx {
		c.colIdx[k] = v
	}
	for k, v := range r.byName {
		c.byName[k] = v
	}
	for i, e := range r.entities {
		c.entities[i] = cloneEntity(e)
	}
	return c
}

// Update runs fn against a copy of r and commits the copy only if fn
// succeeds. Readers see either the old or the new table, never a mix.
// fn must only touch the roster it is given.
func (r *Roster) Update(fn func(*Roster) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	work := r.cloneLocked()
	if err := fn(work); err != nil {
		return err
	}
	work.mu.Lock()
	r.columns, r.colIdx = work.columns, work.colIdx
	r.entities, r.byName = work.entities, work.byName
	work.mu.Unlock()
	return nil
}

// Replace swaps the whole content of r for that of src.
func (r *Roster) Replace(src *Roster) {
	c := src.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.columns, r.colIdx = c.columns, c.colIdx
	r.entities, r.byName = c.entities, c.byName
}

// Filter returns rows whose name contains substr, ignoring case. An empty
// substr matches everything.
func (r *Roster) Filter(substr string) []Entity {
	needle := fold(strings.TrimSpace(substr))
	var out []Entity
	for _, e := range r.Entities() {
		if needle == "" || strings.Contains(fold(e.Name), needle) {
			out = append(out, e)
		}
	}
	return out
}

// WithZeros returns rows with at least one column still at 0.
func (r *Roster) WithZeros() []Entity {
	var out []Entity
	for _, e := range r.Entities() {
		for _, v := range e.Values {
			if v == 0 {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func cloneEntity(e Entity) Entity {
	return Entity{Name: e.Name, Values: append([]int64(nil), e.Values...)}
}

func fold(s string) string {
	return cases.Fold().String(s)
}
