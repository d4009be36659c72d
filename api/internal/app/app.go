// Package app wires config into engines, stores and the scan service shared
// by the binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/option"

	"guild-roster/api/internal/board"
	"guild-roster/api/internal/config"
	"guild-roster/api/internal/ocr"
	"guild-roster/api/internal/ocr/gemini"
	"guild-roster/api/internal/ocr/openai"
	"guild-roster/api/internal/ocr/tesseract"
	"guild-roster/api/internal/ocr/yandex"
	"guild-roster/api/internal/roster"
	"guild-roster/api/internal/scan"
	"guild-roster/api/internal/sheets"
	"guild-roster/api/internal/store"
)

// Deps is everything a binary needs to serve scans.
type Deps struct {
	Log      *slog.Logger
	DB       *sql.DB
	Engines  *ocr.Manager
	Store    roster.Store
	Service  *scan.Service
	Sessions *scan.Sessions
	// Cache is nil without a database.
	Cache *store.DetectionRepo
}

// Build opens the database when one is configured, registers the OCR engines
// and picks the roster store.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Deps, error) {
	d := &Deps{Log: log}

	if dsn := store.ResolveDSN(cfg.Database.URL); dsn != "" {
		db, err := store.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("db connected", "dsn", store.SafeDSNSummary(dsn))
		d.DB = db
	}

	engines, err := Engines(cfg, log)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Engines = engines

	st, err := OpenStore(ctx, cfg, d.DB, log)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Store = st

	scfg, err := ScanConfig(cfg)
	if err != nil {
		d.Close()
		return nil, err
	}
	opts := []scan.Option{scan.WithLogger(log)}
	if d.DB != nil {
		d.Cache = store.NewDetectionRepo(d.DB, cfg.Scan.CacheTTL)
		opts = append(opts, scan.WithCache(d.Cache))
	}
	d.Service = scan.NewService(engines.Default(), scfg, opts...)

	d.Sessions, err = scan.NewSessions(SessionDefaults(cfg))
	if err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Reload applies matching settings from a reloaded config.
func (d *Deps) Reload(cfg *config.Config) {
	scfg, err := ScanConfig(cfg)
	if err != nil {
		d.Log.Warn("config reload ignored", "err", err)
		return
	}
	d.Service.Reconfigure(scfg)
	d.Log.Info("scan settings updated", "threshold", scfg.Threshold, "policy", scfg.Pairer.Policy)
}

// Sweep drops sessions idle for longer than sessionTTL and cached detections
// older than cacheTTL. A zero TTL skips that part.
func (d *Deps) Sweep(ctx context.Context, sessionTTL, cacheTTL time.Duration) {
	if sessionTTL > 0 {
		if n := d.Sessions.Expire(sessionTTL); n > 0 {
			d.Log.Info("sessions expired", "count", n)
		}
	}
	if d.Cache != nil && cacheTTL > 0 {
		n, err := d.Cache.Prune(ctx, cacheTTL)
		if err != nil {
			d.Log.Warn("detection cache prune failed", "err", err)
		} else if n > 0 {
			d.Log.Info("detection cache pruned", "rows", n)
		}
	}
}

// RunJanitor calls Sweep every interval until ctx is done.
func (d *Deps) RunJanitor(ctx context.Context, interval, sessionTTL, cacheTTL time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.Sweep(ctx, sessionTTL, cacheTTL)
		}
	}
}

func (d *Deps) Close() {
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

// Engines registers every engine with credentials and makes ocr.engine the
// default.
func Engines(cfg *config.Config, log *slog.Logger) (*ocr.Manager, error) {
	rc := ocr.RetryConfig{
		Attempts: cfg.OCR.Retry.Attempts,
		Delay:    cfg.OCR.Retry.Delay,
		MaxDelay: cfg.OCR.Retry.MaxDelay,
		Log:      log,
	}
	var all []ocr.Engine
	if cfg.OCR.Tesseract.Enabled {
		all = append(all, tesseract.New(tesseract.Config{
			Languages: cfg.OCR.Tesseract.Languages,
			MergeGap:  cfg.OCR.Tesseract.MergeGap,
			MinHeight: cfg.OCR.Tesseract.MinHeight,
		}))
	}
	if cfg.OCR.Gemini.APIKey != "" {
		all = append(all, gemini.New(cfg.OCR.Gemini.APIKey, cfg.OCR.Gemini.Model))
	}
	if cfg.OCR.OpenAI.APIKey != "" {
		all = append(all, openai.New(cfg.OCR.OpenAI.APIKey, cfg.OCR.OpenAI.Model))
	}
	if cfg.OCR.Yandex.OAuthToken != "" && cfg.OCR.Yandex.FolderID != "" {
		all = append(all, yandex.New(cfg.OCR.Yandex.OAuthToken, cfg.OCR.Yandex.FolderID,
			yandex.WithLanguages(cfg.OCR.Yandex.Languages...)))
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no ocr engine configured: enable tesseract or set an API key")
	}

	want := strings.ToLower(strings.TrimSpace(cfg.OCR.Engine))
	def := -1
	wrapped := make([]ocr.Engine, len(all))
	for i, e := range all {
		wrapped[i] = ocr.WithRetry(e, rc)
		if e.Name() == want {
			def = i
		}
	}
	if def < 0 {
		return nil, fmt.Errorf("ocr.engine %q is not available", cfg.OCR.Engine)
	}
	m := ocr.NewManager(wrapped[def], wrapped...)
	log.Info("ocr engines", "default", want, "available", m.Names())
	return m, nil
}

func Layout(cfg *config.Config) roster.Layout {
	return roster.Layout{NameHeader: cfg.Roster.NameHeader, Columns: cfg.Roster.Columns}
}

// OpenStore returns the roster store named by roster.store. db may be nil
// unless the store is postgres.
func OpenStore(ctx context.Context, cfg *config.Config, db *sql.DB, log *slog.Logger) (roster.Store, error) {
	switch cfg.Roster.Store {
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("roster.store=postgres needs a database")
		}
		return store.NewRosterRepo(db, cfg.Roster.Columns, log), nil
	case "sheets":
		var opts []option.ClientOption
		if cfg.Roster.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Roster.CredentialsFile))
		}
		return sheets.New(ctx, cfg.Roster.SpreadsheetID, Layout(cfg), log, opts...)
	default:
		return roster.NewFileStore(cfg.Roster.Dir, Layout(cfg), log), nil
	}
}

func ScanConfig(cfg *config.Config) (scan.Config, error) {
	policy, err := board.ParsePolicy(cfg.Pair.Policy)
	if err != nil {
		return scan.Config{}, err
	}
	scorer, err := board.ScorerByName(cfg.Match.Scorer)
	if err != nil {
		return scan.Config{}, err
	}
	return scan.Config{
		Workers: cfg.Scan.Workers,
		Pairer: board.PairerConfig{
			RowTolerance: cfg.Pair.RowTolerance,
			MinDigits:    cfg.Pair.MinDigits,
			Policy:       policy,
		},
		IgnoreWords: cfg.Pair.IgnoreWords,
		Threshold:   cfg.Match.Threshold,
		Scorer:      scorer,
		Suggestions: cfg.Match.Suggestions,
	}, nil
}

func SessionDefaults(cfg *config.Config) scan.Defaults {
	return scan.Defaults{
		Columns: cfg.Roster.Columns,
		Guild:   cfg.Roster.Guild,
		Sheet:   cfg.Roster.Sheet,
	}
}
