package scan

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"guild-roster/api/internal/roster"
)

// Session is the working state of one reviewer: the roster being filled,
// the scan target and the candidates waiting for a decision.
type Session struct {
	ID     string
	Roster *roster.Roster
	Ledger *roster.Ledger

	mu      sync.Mutex
	column  string
	guild   string
	sheet   string
	touched time.Time
}

func (s *Session) Column() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.column
}

// SetColumn selects the column new scans are written into.
func (s *Session) SetColumn(column string) error {
	column = strings.TrimSpace(column)
	if !s.Roster.HasColumn(column) {
		return &roster.ValidationError{Field: "column", Msg: fmt.Sprintf("unknown column %q", column)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.column = column
	return nil
}

func (s *Session) Guild() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guild
}

// SetGuild sets the guild name that is ignored when it shows up as a label.
func (s *Session) SetGuild(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guild = strings.TrimSpace(name)
}

func (s *Session) Sheet() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sheet
}

// LoadSheet replaces the roster with the named sheet from st and drops any
// pending candidates, which referred to the old roster.
func (s *Session) LoadSheet(ctx context.Context, st roster.Store, sheet string) error {
	r, err := st.Load(ctx, sheet)
	if err != nil {
		return fmt.Errorf("load sheet %s: %w", sheet, err)
	}
	s.Roster.Replace(r)
	s.Ledger.Discard()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheet = sheet
	if cols := r.Columns(); !r.HasColumn(s.column) && len(cols) > 0 {
		s.column = cols[0]
	}
	return nil
}

// SaveSheet writes the roster back to the current sheet.
func (s *Session) SaveSheet(ctx context.Context, st roster.Store) error {
	sheet := s.Sheet()
	if sheet == "" {
		return &roster.ValidationError{Field: "sheet", Msg: "no sheet selected"}
	}
	if err := st.Save(ctx, sheet, s.Roster); err != nil {
		return fmt.Errorf("save sheet %s: %w", sheet, err)
	}
	return nil
}

// Confirm applies reviewer decisions to the pending candidates of batch.
func (s *Session) Confirm(batch string, decisions []roster.Decision) (roster.ApplyResult, error) {
	s.touch()
	return s.Ledger.Apply(s.Roster, batch, decisions)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.touched = time.Now()
	s.mu.Unlock()
}

func (s *Session) lastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// Defaults seed every new session.
type Defaults struct {
	Columns []string
	Column  string
	Guild   string
	Sheet   string
}

// Sessions keeps sessions by id.
type Sessions struct {
	defaults Defaults
	mu       sync.Mutex
	m        map[string]*Session
}

func NewSessions(d Defaults) (*Sessions, error) {
	if len(d.Columns) == 0 {
		d.Columns = roster.DefaultColumns
	}
	if _, err := roster.New(d.Columns); err != nil {
		return nil, err
	}
	if d.Column == "" {
		d.Column = d.Columns[0]
	}
	return &Sessions{defaults: d, m: make(map[string]*Session)}, nil
}

func (ss *Sessions) newSession(id string) *Session {
	return &Session{
		ID:      id,
		Roster:  roster.MustNew(ss.defaults.Columns),
		Ledger:  roster.NewLedger(),
		column:  ss.defaults.Column,
		guild:   ss.defaults.Guild,
		sheet:   ss.defaults.Sheet,
		touched: time.Now(),
	}
}

// Create starts a session with a fresh id.
func (ss *Sessions) Create() *Session {
	s := ss.newSession(uuid.NewString())
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.m[s.ID] = s
	return s
}

func (ss *Sessions) Get(id string) (*Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s, ok := ss.m[id]
	return s, ok
}

// GetOrCreate returns the session for id, creating it on first use. The
// second result is true when the session is new.
func (ss *Sessions) GetOrCreate(id string) (*Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if s, ok := ss.m[id]; ok {
		return s, false
	}
	s := ss.newSession(id)
	ss.m[id] = s
	return s, true
}

func (ss *Sessions) Delete(id string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.m, id)
}

// Expire drops sessions idle for longer than ttl and returns how many.
func (ss *Sessions) Expire(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	ss.mu.Lock()
	defer ss.mu.Unlock()
	n := 0
	for id, s := range ss.m {
		if s.lastUsed().Before(cutoff) {
			delete(ss.m, id)
			n++
		}
	}
	return n
}
