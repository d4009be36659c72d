package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"guild-roster/api/internal/ocr"
)

// DetectionRepo caches OCR output by (image_hash, engine), so a screenshot
// sent twice is read once.
type DetectionRepo struct {
	DB *sql.DB
	// MaxAge ignores older rows when > 0.
	MaxAge time.Duration
}

func NewDetectionRepo(db *sql.DB, maxAge time.Duration) *DetectionRepo {
	return &DetectionRepo{DB: db, MaxAge: maxAge}
}

func (r *DetectionRepo) GetDetections(ctx context.Context, imageHash, engine string) ([]ocr.Detection, bool, error) {
	const q = `select result, created_at from ocr_detections where image_hash = $1 and engine = $2`
	var (
		js []byte
		ts time.Time
	)
	err := r.DB.QueryRowContext(ctx, q, imageHash, engine).Scan(&js, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if r.MaxAge > 0 && time.Since(ts) > r.MaxAge {
		return nil, false, nil
	}
	var dets []ocr.Detection
	if err := json.Unmarshal(js, &dets); err != nil {
		// a broken row is treated as a miss and overwritten on the next put
		return nil, false, nil
	}
	return dets, true, nil
}

func (r *DetectionRepo) PutDetections(ctx context.Context, imageHash, engine string, dets []ocr.Detection) error {
	if dets == nil {
		dets = []ocr.Detection{}
	}
	js, err := json.Marshal(dets)
	if err != nil {
		return err
	}
	const q = `
insert into ocr_detections (image_hash, engine, result)
values ($1, $2, $3)
on conflict (image_hash, engine) do update
set result = excluded.result,
    created_at = now()`
	_, err = r.DB.ExecContext(ctx, q, imageHash, engine, js)
	return err
}

// Prune deletes cache rows older than age.
func (r *DetectionRepo) Prune(ctx context.Context, age time.Duration) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `delete from ocr_detections where created_at < $1`, time.Now().Add(-age))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
