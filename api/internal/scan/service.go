// Package scan runs leaderboard screenshots through OCR, pairing and
// reconciliation, and stages the outcome on a session.
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"guild-roster/api/internal/board"
	"guild-roster/api/internal/ocr"
	"guild-roster/api/internal/roster"
	"guild-roster/api/internal/util"
)

// DetectionCache stores OCR output by image hash and engine.
type DetectionCache interface {
	GetDetections(ctx context.Context, imageHash, engine string) ([]ocr.Detection, bool, error)
	PutDetections(ctx context.Context, imageHash, engine string, dets []ocr.Detection) error
}

type Config struct {
	Workers     int
	Pairer      board.PairerConfig
	IgnoreWords []string
	// Threshold is the match score (0..100) passed to the reconciler as is;
	// config supplies board.DefaultThreshold.
	Threshold   int
	Scorer      board.Scorer
	// Suggestions is how many near roster names each candidate carries.
	Suggestions int
}

type Service struct {
	engine ocr.Engine
	cache  DetectionCache
	log    *slog.Logger

	mu  sync.RWMutex
	cfg Config
}

type Option func(*Service)

func WithCache(c DetectionCache) Option  { return func(s *Service) { s.cache = c } }
func WithLogger(l *slog.Logger) Option   { return func(s *Service) { s.log = l } }

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.IgnoreWords == nil {
		c.IgnoreWords = board.DefaultIgnoreWords
	}
	if c.Suggestions < 0 {
		c.Suggestions = 0
	}
	return c
}

func NewService(engine ocr.Engine, cfg Config, opts ...Option) *Service {
	s := &Service{engine: engine, cfg: cfg.withDefaults(), log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Reconfigure swaps matching settings; batches already running keep the
// settings they started with.
func (s *Service) Reconfigure(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.withDefaults()
}

func (s *Service) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Batch is one scan request: every image is read into Column.
type Batch struct {
	Images []ocr.Image
	// Column overrides the session column when set.
	Column string
	// Engine overrides the service engine when set.
	Engine ocr.Engine
}

// ImageReport is what happened to one image.
type ImageReport struct {
	ID         string `json:"id" yaml:"id"`
	Detections int    `json:"detections" yaml:"detections"`
	Pairs      int    `json:"pairs" yaml:"pairs"`
	Unpaired   int    `json:"unpaired" yaml:"unpaired"`
	Matched    int    `json:"matched" yaml:"matched"`
	Unmatched  int    `json:"unmatched" yaml:"unmatched"`
	Discarded  int    `json:"discarded" yaml:"discarded"`
	Cached     bool   `json:"cached,omitempty" yaml:"cached,omitempty"`
	Err        error  `json:"-" yaml:"-"`
}

func (r ImageReport) errText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func (r ImageReport) MarshalJSON() ([]byte, error) {
	type plain ImageReport
	return json.Marshal(struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain(r), r.errText()})
}

func (r ImageReport) MarshalYAML() (any, error) {
	type plain ImageReport
	return struct {
		plain `yaml:",inline"`
		Error string `yaml:"error,omitempty"`
	}{plain(r), r.errText()}, nil
}

// Report summarizes a batch.
type Report struct {
	BatchID  string            `json:"batch_id" yaml:"batch_id"`
	Column   string            `json:"column" yaml:"column"`
	Engine   string            `json:"engine" yaml:"engine"`
	Images   []ImageReport     `json:"images" yaml:"images"`
	Updates  map[string]int64  `json:"updates" yaml:"updates"`
	Order    []string          `json:"order" yaml:"order"`
	Applied  int               `json:"applied" yaml:"applied"`
	Missing  []string          `json:"missing,omitempty" yaml:"missing,omitempty"`
	Pending  []board.Candidate `json:"pending" yaml:"pending"`
	Duration time.Duration     `json:"duration" yaml:"duration"`
}

// Failed counts images whose OCR call failed.
func (r *Report) Failed() int {
	n := 0
	for _, im := range r.Images {
		if im.Err != nil {
			n++
		}
	}
	return n
}

type imageResult struct {
	report  ImageReport
	results []board.Result
}

// RunBatch reads every image concurrently, then merges the per-image results
// in submission order: matched values are written to the roster at once and
// unmatched names replace the session's pending candidates. A failing image
// is reported and does not stop the others.
func (s *Service) RunBatch(ctx context.Context, sess *Session, b Batch) (*Report, error) {
	start := time.Now()
	column := b.Column
	if column == "" {
		column = sess.Column()
	}
	if !sess.Roster.HasColumn(column) {
		return nil, &roster.ValidationError{Field: "column", Msg: fmt.Sprintf("unknown column %q", column)}
	}
	engine := b.Engine
	if engine == nil {
		engine = s.engine
	}
	if engine == nil {
		return nil, fmt.Errorf("scan: no ocr engine configured")
	}
	sess.touch()
	cfg := s.config()

	guild := sess.Guild()
	ignore := board.NewWordSet(cfg.IgnoreWords...)
	ignore.Add(guild)
	pairer := board.NewPairer(cfg.Pairer, ignore)
	rec := board.NewReconciler(board.ReconcilerConfig{
		Threshold: cfg.Threshold,
		GuildName: guild,
		Scorer:    cfg.Scorer,
	})
	names := sess.Roster.Names()

	per := make([]imageResult, len(b.Images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, img := range b.Images {
		if img.ID == "" {
			img.ID = fmt.Sprintf("image-%d", i+1)
		}
		g.Go(func() error {
			per[i] = s.processImage(gctx, engine, pairer, rec, names, img)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rep := &Report{
		BatchID: uuid.NewString(),
		Column:  column,
		Engine:  engine.Name(),
		Images:  make([]ImageReport, len(per)),
	}
	var all []board.Result
	for i, r := range per {
		rep.Images[i] = r.report
		all = append(all, r.results...)
	}
	out := board.Aggregate(all)
	rep.Updates, rep.Order = out.Updates, out.Order

	applied, missing, err := sess.Roster.ApplyUpdates(column, out.Updates, out.Order)
	if err != nil {
		return nil, err
	}
	rep.Applied, rep.Missing = applied, missing

	if cfg.Suggestions > 0 {
		current := sess.Roster.Names()
		for i := range out.Pending {
			out.Pending[i].Suggestions = rec.Suggest(out.Pending[i].RawLabel, current, cfg.Suggestions)
		}
	}
	sess.Ledger.Stage(rep.BatchID, column, out.Pending)
	rep.Pending = out.Pending
	rep.Duration = time.Since(start)

	s.log.Info("scan batch done",
		"batch", rep.BatchID, "session", sess.ID, "column", column, "engine", rep.Engine,
		"images", len(b.Images), "failed", rep.Failed(), "applied", applied,
		"missing", len(missing), "pending", len(out.Pending), "took", rep.Duration)
	return rep, nil
}

func (s *Service) processImage(ctx context.Context, engine ocr.Engine, pairer *board.Pairer, rec *board.Reconciler, names []string, img ocr.Image) imageResult {
	res := imageResult{report: ImageReport{ID: img.ID}}
	dets, cached, err := s.detect(ctx, engine, img)
	if err != nil {
		res.report.Err = err
		s.log.Warn("ocr failed", "image", img.ID, "engine", engine.Name(), "err", err)
		return res
	}
	res.report.Detections = len(dets)
	res.report.Cached = cached

	blocks := Blocks(dets)
	pairs := pairer.Pair(img.ID, blocks)
	res.report.Pairs = len(pairs)
	rules := pairer.Rules()
	for _, bl := range blocks {
		if rules.Classify(bl.Text) == board.Numeric {
			res.report.Unpaired++
		}
	}
	res.report.Unpaired -= len(pairs)

	for _, p := range pairs {
		m, ok := rec.Reconcile(p, names)
		if !ok {
			res.report.Discarded++
			continue
		}
		if m.Kind == board.Matched {
			res.report.Matched++
		} else {
			res.report.Unmatched++
		}
		res.results = append(res.results, board.Result{Pair: p, Match: m})
	}
	s.log.Debug("image scanned", "image", img.ID, "detections", len(dets), "pairs", len(pairs),
		"matched", res.report.Matched, "unmatched", res.report.Unmatched)
	return res
}

func (s *Service) detect(ctx context.Context, engine ocr.Engine, img ocr.Image) ([]ocr.Detection, bool, error) {
	if s.cache == nil {
		dets, err := engine.Detect(ctx, img)
		return dets, false, err
	}
	hash := util.SHA256Hex(img.Data)
	if dets, ok, err := s.cache.GetDetections(ctx, hash, engine.Name()); err != nil {
		s.log.Warn("detection cache read failed", "image", img.ID, "err", err)
	} else if ok {
		return dets, true, nil
	}
	dets, err := engine.Detect(ctx, img)
	if err != nil {
		return nil, false, err
	}
	if err := s.cache.PutDetections(ctx, hash, engine.Name(), dets); err != nil {
		s.log.Warn("detection cache write failed", "image", img.ID, "err", err)
	}
	return dets, false, nil
}

// Blocks converts engine detections into pairing input.
func Blocks(dets []ocr.Detection) []board.TextBlock {
	out := make([]board.TextBlock, 0, len(dets))
	for _, d := range dets {
		out = append(out, board.TextBlock{
			Text:       d.Text,
			X:          d.Left(),
			YCenter:    d.CenterY(),
			Confidence: d.Confidence,
		})
	}
	return out
}
