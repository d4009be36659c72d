// Package sheets persists rosters in a Google Sheets spreadsheet, one
// worksheet per roster sheet.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"guild-roster/api/internal/roster"
)

type Store struct {
	svc           *gsheets.Service
	spreadsheetID string
	layout        roster.Layout
	log           *slog.Logger
}

// New builds a Store. Pass option.WithCredentialsFile or
// option.WithCredentialsJSON for a service account.
func New(ctx context.Context, spreadsheetID string, layout roster.Layout, log *slog.Logger, opts ...option.ClientOption) (*Store, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, fmt.Errorf("sheets: spreadsheet id is empty")
	}
	if log == nil {
		log = slog.Default()
	}
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets.NewService: %w", err)
	}
	return &Store{svc: svc, spreadsheetID: spreadsheetID, layout: layout, log: log}, nil
}

// quoteRange renders an A1 range for a worksheet title.
func quoteRange(title, cells string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'!" + cells
}

func (s *Store) titles(ctx context.Context) (map[string]bool, error) {
	ss, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet: %w", err)
	}
	out := make(map[string]bool, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			out[sh.Properties.Title] = true
		}
	}
	return out, nil
}

// Sheets lists worksheet titles in spreadsheet order.
func (s *Store) Sheets(ctx context.Context) ([]string, error) {
	ss, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet: %w", err)
	}
	out := make([]string, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			out = append(out, sh.Properties.Title)
		}
	}
	return out, nil
}

// ensure creates the worksheet with a header row when it is missing.
func (s *Store) ensure(ctx context.Context, sheet string) (created bool, err error) {
	have, err := s.titles(ctx)
	if err != nil {
		return false, err
	}
	if have[sheet] {
		return false, nil
	}
	req := &gsheets.BatchUpdateSpreadsheetRequest{Requests: []*gsheets.Request{{
		AddSheet: &gsheets.AddSheetRequest{Properties: &gsheets.SheetProperties{Title: sheet}},
	}}}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return false, fmt.Errorf("add worksheet %s: %w", sheet, err)
	}
	header := &gsheets.ValueRange{Values: [][]interface{}{toRow(s.layout.Header())}}
	if _, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, quoteRange(sheet, "A1"), header).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return true, fmt.Errorf("write header %s: %w", sheet, err)
	}
	s.log.Info("worksheet created", "sheet", sheet)
	return true, nil
}

func (s *Store) Load(ctx context.Context, sheet string) (*roster.Roster, error) {
	created, err := s.ensure(ctx, sheet)
	if err != nil {
		return nil, err
	}
	if created {
		return roster.New(s.layout.Columns)
	}
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, quoteRange(sheet, "A:ZZ")).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read worksheet %s: %w", sheet, err)
	}
	rows := toStrings(resp.Values)
	if len(rows) == 0 {
		return roster.New(s.layout.Columns)
	}
	return s.layout.FromRecords(rows[0], rows[1:], s.log)
}

// Save clears the worksheet and writes the header and all members. Cells are
// written RAW so names stay text ("0123", "=x") and values go as numbers.
func (s *Store) Save(ctx context.Context, sheet string, r *roster.Roster) error {
	if _, err := s.ensure(ctx, sheet); err != nil {
		return err
	}
	if _, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, quoteRange(sheet, "A:ZZ"), &gsheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear worksheet %s: %w", sheet, err)
	}
	values := [][]interface{}{toRow(s.layout.Header())}
	for _, row := range s.layout.Rows(r) {
		values = append(values, memberRow(row))
	}
	if _, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, quoteRange(sheet, "A1"), &gsheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write worksheet %s: %w", sheet, err)
	}
	return nil
}

var (
	_ roster.Store  = (*Store)(nil)
	_ roster.Lister = (*Store)(nil)
)

func toRow(cells []string) []interface{} {
	out := make([]interface{}, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}

// memberRow keeps the name as text and sends the column values as int64.
func memberRow(cells []string) []interface{} {
	out := toRow(cells)
	for i := 1; i < len(cells); i++ {
		out[i] = roster.ParseCell(cells[i])
	}
	return out
}

// toStrings flattens API cells; numbers come back as float64.
func toStrings(values [][]interface{}) [][]string {
	out := make([][]string, 0, len(values))
	for _, row := range values {
		r := make([]string, len(row))
		for i, c := range row {
			switch v := c.(type) {
			case string:
				r[i] = v
			case float64:
				r[i] = fmt.Sprintf("%.0f", v)
			case nil:
			default:
				r[i] = fmt.Sprint(v)
			}
		}
		out = append(out, r)
	}
	return out
}
