package roster

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// Store persists rosters as named sheets (one sheet per week or event).
// Loading a sheet that does not exist yet returns an empty roster.
type Store interface {
	Load(ctx context.Context, sheet string) (*Roster, error)
	Save(ctx context.Context, sheet string, r *Roster) error
}

// Lister is implemented by stores that can enumerate their sheets.
type Lister interface {
	Sheets(ctx context.Context) ([]string, error)
}

// Layout describes the tabular shape rosters are persisted in.
type Layout struct {
	NameHeader string
	Columns    []string
}

func (l Layout) nameHeader() string {
	if l.NameHeader == "" {
		return DefaultNameHeader
	}
	return l.NameHeader
}

// Header is the first row written for a sheet.
func (l Layout) Header() []string {
	return append([]string{l.nameHeader()}, l.Columns...)
}

// Rows renders r as table rows in header order.
func (l Layout) Rows(r *Roster) [][]string {
	cols := r.Columns()
	at := make(map[string]int, len(cols))
	for i, c := range cols {
		at[c] = i
	}
	ents := r.Entities()
	out := make([][]string, 0, len(ents))
	for _, e := range ents {
		row := make([]string, 0, len(l.Columns)+1)
		row = append(row, e.Name)
		for _, c := range l.Columns {
			var v int64
			if i, ok := at[c]; ok {
				v = e.Values[i]
			}
			row = append(row, strconv.FormatInt(v, 10))
		}
		out = append(out, row)
	}
	return out
}

// FromRecords builds a roster from a header row and data rows. Columns
// missing from the header are 0; unparsable cells are 0; blank or repeated
// names are skipped with a warning.
func (l Layout) FromRecords(header []string, rows [][]string, log *slog.Logger) (*Roster, error) {
	if log == nil {
		log = slog.Default()
	}
	r, err := New(l.Columns)
	if err != nil {
		return nil, err
	}
	if len(header) == 0 {
		return r, nil
	}
	nameAt := -1
	colAt := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == l.nameHeader() {
			nameAt = i
			continue
		}
		colAt[h] = i
	}
	if nameAt < 0 {
		log.Warn("roster sheet has no name column", "header", l.nameHeader())
		return r, nil
	}
	for n, row := range rows {
		if nameAt >= len(row) || strings.TrimSpace(row[nameAt]) == "" {
			continue
		}
		name := strings.TrimSpace(row[nameAt])
		values := make(map[string]int64, len(l.Columns))
		for _, c := range l.Columns {
			if i, ok := colAt[c]; ok && i < len(row) {
				values[c] = ParseCell(row[i])
			}
		}
		if err := r.Add(name, values); err != nil {
			log.Warn("skip roster row", "row", n+2, "name", name, "err", err)
		}
	}
	return r, nil
}

// ParseCell reads a persisted cell. Sheets hand back numbers as "15000",
// "15,000" or "15000.0"; anything else is 0.
func ParseCell(s string) int64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64 {
		return 0
	}
	return int64(math.Round(f))
}
