// Package tesseract runs the local Tesseract engine through gosseract and
// groups its word boxes into phrase boxes.
package tesseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"guild-roster/api/internal/ocr"
)

// Config tunes recognition. Zero values take the defaults.
type Config struct {
	Languages []string
	// MergeGap is the largest horizontal gap, in box heights, between two
	// words of one phrase.
	MergeGap float64
	// MinHeight upscales smaller screenshots before recognition.
	MinHeight int
}

func (c Config) withDefaults() Config {
	if len(c.Languages) == 0 {
		c.Languages = []string{"tha", "eng"}
	}
	if c.MergeGap <= 0 {
		c.MergeGap = 0.8
	}
	if c.MinHeight <= 0 {
		c.MinHeight = 1200
	}
	return c
}

type Engine struct {
	cfg           Config
	clientFactory func() *gosseract.Client
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults(), clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Detect(ctx context.Context, img ocr.Image) ([]ocr.Detection, error) {
	prepared, err := Preprocess(img.Data, e.cfg.MinHeight)
	if err != nil {
		return nil, ocr.Permanent(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := e.clientFactory()
	defer c.Close()
	if err := c.SetLanguage(e.cfg.Languages...); err != nil {
		return nil, ocr.Permanent(fmt.Errorf("set languages: %w", err))
	}
	if err := c.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		return nil, fmt.Errorf("set page seg mode: %w", err)
	}
	if err := c.SetImageFromBytes(prepared.PNG); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("recognize words: %w", err)
	}

	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, Word{
			Text:       b.Word,
			X0:         float64(b.Box.Min.X) / prepared.Scale,
			Y0:         float64(b.Box.Min.Y) / prepared.Scale,
			X1:         float64(b.Box.Max.X) / prepared.Scale,
			Y1:         float64(b.Box.Max.Y) / prepared.Scale,
			Confidence: b.Confidence / 100.0,
			Line:       LineKey{Block: b.BlockNum, Par: b.ParNum, Line: b.LineNum},
		})
	}
	return MergeWords(words, e.cfg.MergeGap), nil
}
