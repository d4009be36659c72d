package config

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Match.Threshold != 70 || cfg.Pair.RowTolerance != 30 || cfg.Pair.MinDigits != 4 {
		t.Errorf("matching defaults = %+v %+v", cfg.Match, cfg.Pair)
	}
	if len(cfg.Roster.Columns) != 7 || cfg.Roster.NameHeader != "ชื่อสมาชิก" {
		t.Errorf("roster defaults = %+v", cfg.Roster)
	}
	if cfg.Scan.Workers != 4 || cfg.OCR.Retry.Delay != 500*time.Millisecond {
		t.Errorf("scan defaults = %+v %+v", cfg.Scan, cfg.OCR.Retry)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
roster:
  columns: [Boss1, Boss2]
  guild: MeAndBro
match:
  threshold: 80
pair:
  policy: nearest
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GUILD_SCAN_WORKERS", "8")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-token")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg.Roster.Columns, []string{"Boss1", "Boss2"}) || cfg.Roster.Guild != "MeAndBro" {
		t.Errorf("roster = %+v", cfg.Roster)
	}
	if cfg.Match.Threshold != 80 || cfg.Pair.Policy != "nearest" {
		t.Errorf("match %+v pair %+v", cfg.Match, cfg.Pair)
	}
	if cfg.Scan.Workers != 8 {
		t.Errorf("workers = %d", cfg.Scan.Workers)
	}
	if cfg.Telegram.Token != "tg-token" || cfg.OCR.Gemini.APIKey != "g-key" {
		t.Errorf("legacy env not bound: %+v %+v", cfg.Telegram, cfg.OCR.Gemini)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing explicit config file accepted")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{Roster: RosterConfig{Columns: []string{"A"}, Store: "file"}, Match: MatchConfig{Threshold: 70}}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"no columns", func(c *Config) { c.Roster.Columns = nil }, "roster.columns"},
		{"threshold", func(c *Config) { c.Match.Threshold = 101 }, "threshold"},
		{"store", func(c *Config) { c.Roster.Store = "s3" }, "roster.store"},
		{"postgres dsn", func(c *Config) { c.Roster.Store = "postgres" }, "DATABASE_URL"},
		{"sheets id", func(c *Config) { c.Roster.Store = "sheets" }, "spreadsheet_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestManagerReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("match:\n  threshold: 70\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	changed := make(chan int, 4)
	m.OnChange(func(c *Config) { changed <- c.Match.Threshold })
	m.Watch()

	if err := os.WriteFile(path, []byte("match:\n  threshold: 85\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case v := <-changed:
			if v == 85 {
				if m.Get().Match.Threshold != 85 {
					t.Fatalf("Get() = %d", m.Get().Match.Threshold)
				}
				return
			}
		case <-deadline:
			t.Fatal("config change not observed")
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(LogConfig{Format: "json", Level: "warn"}, &buf).Info("hidden")
	NewLogger(LogConfig{Format: "json", Level: "warn"}, &buf).Warn("shown", "k", 1)
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("log output = %q", out)
	}
}
