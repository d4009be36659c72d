package roster

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps each sheet as <Dir>/<sheet>.csv.
type FileStore struct {
	Dir    string
	Layout Layout
	Log    *slog.Logger
}

func NewFileStore(dir string, layout Layout, log *slog.Logger) *FileStore {
	if log == nil {
		log = slog.Default()
	}
	return &FileStore{Dir: dir, Layout: layout, Log: log}
}

func (s *FileStore) path(sheet string) (string, error) {
	sheet = strings.TrimSpace(sheet)
	if sheet == "" || strings.ContainsAny(sheet, `/\`) || sheet == "." || sheet == ".." {
		return "", &ValidationError{Field: "sheet", Msg: fmt.Sprintf("invalid sheet name %q", sheet)}
	}
	return filepath.Join(s.Dir, sheet+".csv"), nil
}

func (s *FileStore) Load(ctx context.Context, sheet string) (*Roster, error) {
	p, err := s.path(sheet)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return New(s.Layout.Columns)
	}
	if err != nil {
		return nil, fmt.Errorf("open sheet %s: %w", sheet, err)
	}
	defer f.Close()
	return ReadCSV(f, s.Layout, s.Log)
}

// Save writes to a temp file and renames it over the sheet.
func (s *FileStore) Save(ctx context.Context, sheet string, r *Roster) error {
	p, err := s.path(sheet)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create roster dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.Dir, "."+sheet+"-*.csv")
	if err != nil {
		return fmt.Errorf("create temp sheet: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := WriteCSV(tmp, s.Layout, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp sheet: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("save sheet %s: %w", sheet, err)
	}
	return nil
}

// Sheets lists the sheets in Dir, sorted by name.
func (s *FileStore) Sheets(ctx context.Context) ([]string, error) {
	ents, err := os.ReadDir(s.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	var out []string
	for _, e := range ents {
		if name, ok := strings.CutSuffix(e.Name(), ".csv"); ok && !e.IsDir() {
			out = append(out, name)
		}
	}
	return out, nil
}

var _ Lister = (*FileStore)(nil)

// ReadCSV loads a roster from CSV with a header row.
func ReadCSV(rd io.Reader, layout Layout, log *slog.Logger) (*Roster, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return New(layout.Columns)
	}
	return layout.FromRecords(records[0], records[1:], log)
}

// WriteCSV writes r with layout's header.
func WriteCSV(w io.Writer, layout Layout, r *Roster) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(layout.Header()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(layout.Rows(r)); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
