package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"

	"guild-roster/api/internal/roster"
)

// fakeAPI serves the handful of Sheets REST calls the store makes.
type fakeAPI struct {
	mu      sync.Mutex
	titles  []string
	values  [][]interface{}
	calls   []string
	written [][]interface{}
	input   string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := r.URL.Path
	f.calls = append(f.calls, r.Method+" "+p)
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(p, ":batchUpdate"):
		f.titles = append(f.titles, "new")
		_, _ = io.WriteString(w, `{}`)
	case strings.HasSuffix(p, ":clear"):
		_, _ = io.WriteString(w, `{}`)
	case strings.Contains(p, "/values/") && r.Method == http.MethodPut:
		var vr struct {
			Values [][]interface{} `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.written = vr.Values
		f.input = r.URL.Query().Get("valueInputOption")
		_, _ = io.WriteString(w, `{}`)
	case strings.Contains(p, "/values/"):
		_ = json.NewEncoder(w).Encode(map[string]any{"values": f.values})
	default:
		sheets := []map[string]any{}
		for _, t := range f.titles {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
	}
}

func newStore(t *testing.T, f *fakeAPI) *Store {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	st, err := New(context.Background(), "sheet-id", roster.Layout{Columns: []string{"A", "B"}}, nil,
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()), option.WithoutAuthentication())
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestLoadExistingWorksheet(t *testing.T) {
	f := &fakeAPI{
		titles: []string{"w1"},
		values: [][]interface{}{
			{roster.DefaultNameHeader, "A"},
			{"Alice", float64(15000)},
			{"Bob", "1,200"},
			{"", "5"},
		},
	}
	r, err := newStore(t, f).Load(context.Background(), "w1")
	if err != nil {
		t.Fatal(err)
	}
	want := []roster.Entity{{Name: "Alice", Values: []int64{15000, 0}}, {Name: "Bob", Values: []int64{1200, 0}}}
	if !reflect.DeepEqual(r.Entities(), want) {
		t.Fatalf("entities = %+v", r.Entities())
	}
}

func TestLoadCreatesMissingWorksheet(t *testing.T) {
	f := &fakeAPI{titles: []string{"other"}}
	r, err := newStore(t, f).Load(context.Background(), "new")
	if err != nil {
		t.Fatal(err)
	}
	if r.Len() != 0 {
		t.Fatalf("new worksheet has %d members", r.Len())
	}
	if len(f.written) != 1 || f.written[0][0] != roster.DefaultNameHeader {
		t.Fatalf("header not written: %v", f.written)
	}
}

func TestSave(t *testing.T) {
	f := &fakeAPI{titles: []string{"w1"}}
	r := roster.MustNew([]string{"A", "B"})
	_ = r.Add("Alice", map[string]int64{"B": 7})
	_ = r.Add("0123", map[string]int64{"A": 15000})
	_ = r.Add("=1+1", nil)
	st := newStore(t, f)
	if err := st.Save(context.Background(), "w1", r); err != nil {
		t.Fatal(err)
	}
	if f.input != "RAW" {
		t.Fatalf("valueInputOption = %q, want RAW", f.input)
	}
	want := [][]interface{}{
		{roster.DefaultNameHeader, "A", "B"},
		{"Alice", float64(0), float64(7)},
		{"0123", float64(15000), float64(0)},
		{"=1+1", float64(0), float64(0)},
	}
	if !reflect.DeepEqual(f.written, want) {
		t.Fatalf("written = %#v", f.written)
	}
	cleared := false
	for _, c := range f.calls {
		if strings.HasSuffix(c, ":clear") {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("worksheet not cleared: %v", f.calls)
	}

	f.values = f.written
	got, err := st.Load(context.Background(), "w1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Entities(), r.Entities()) {
		t.Fatalf("reloaded %+v, want %+v", got.Entities(), r.Entities())
	}
}

func TestQuoteRange(t *testing.T) {
	if got := quoteRange("Bob's week", "A1"); got != "'Bob''s week'!A1" {
		t.Fatalf("quoteRange = %q", got)
	}
}
