package ocr

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

// PermanentError marks a failure that retrying cannot fix (bad image, bad
// credentials).
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so WithRetry gives up at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// RetryConfig controls WithRetry. Zero values take the defaults.
type RetryConfig struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
	Log      *slog.Logger
}

type retrying struct {
	Engine
	cfg RetryConfig
}

// WithRetry retries transient Detect failures with exponential backoff.
func WithRetry(e Engine, cfg RetryConfig) Engine {
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &retrying{Engine: e, cfg: cfg}
}

func (r *retrying) Detect(ctx context.Context, img Image) ([]Detection, error) {
	return retry.DoWithData(
		func() ([]Detection, error) {
			return r.Engine.Detect(ctx, img)
		},
		retry.Context(ctx),
		retry.Attempts(r.cfg.Attempts),
		retry.Delay(r.cfg.Delay),
		retry.MaxDelay(r.cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var p *PermanentError
			return !errors.As(err, &p)
		}),
		retry.OnRetry(func(n uint, err error) {
			r.cfg.Log.Warn("ocr retry", "engine", r.Engine.Name(), "image", img.ID, "attempt", n+1, "err", err)
		}),
	)
}
