package yandex

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"guild-roster/api/internal/ocr"
	"guild-roster/api/internal/util"
)

const defaultEndpoint = "https://ocr.api.cloud.yandex.net/ocr/v1/recognizeText"

type Engine struct {
	iamc     TokenSource
	folderID string
	langs    []string
	model    string
	endpoint string
	httpc    *http.Client
}

// TokenSource hands out IAM tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Option func(*Engine)

func WithLanguages(langs ...string) Option { return func(e *Engine) { e.langs = langs } }
func WithModel(m string) Option            { return func(e *Engine) { e.model = m } }
func WithEndpoint(u string) Option         { return func(e *Engine) { e.endpoint = u } }
func WithHTTPClient(c *http.Client) Option { return func(e *Engine) { e.httpc = c } }
func WithTokenSource(ts TokenSource) Option {
	return func(e *Engine) { e.iamc = ts }
}

func New(oauth2Token, folderID string, opts ...Option) *Engine {
	e := &Engine{
		iamc:     NewIamClient(oauth2Token),
		folderID: folderID,
		langs:    []string{"th", "en"},
		model:    "page",
		endpoint: defaultEndpoint,
		httpc:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Name() string { return "yandex" }

type request struct {
	Content       string   `json:"content"`
	MimeType      string   `json:"mimeType,omitempty"`      // "JPEG" | "PNG" | "PDF"
	LanguageCodes []string `json:"languageCodes,omitempty"` // ["th","en"]
	Model         string   `json:"model,omitempty"`         // "page"
}

type vertex struct {
	X string `json:"x"`
	Y string `json:"y"`
}

type line struct {
	Text        string `json:"text"`
	BoundingBox struct {
		Vertices []vertex `json:"vertices"`
	} `json:"boundingBox"`
	Words []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"words"`
}

type response struct {
	Result *struct {
		TextAnnotation *struct {
			Blocks []struct {
				Lines []line `json:"lines,omitempty"`
			} `json:"blocks,omitempty"`
		} `json:"textAnnotation,omitempty"`
	} `json:"result,omitempty"`
}

func (e *Engine) Detect(ctx context.Context, img ocr.Image) ([]ocr.Detection, error) {
	mime := util.SniffMimeForOCR(img.Data)
	if mime == "" {
		return nil, ocr.Permanent(fmt.Errorf("yandex ocr: unsupported image format %s", util.SniffMimeHTTP(img.Data)))
	}
	reqBody := request{
		Content:       base64.StdEncoding.EncodeToString(img.Data),
		MimeType:      mime,
		LanguageCodes: e.langs,
		Model:         e.model,
	}
	payload, _ := json.Marshal(reqBody)

	resp, err := e.post(ctx, payload, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// one retry with a fresh IAM token
		resp.Body.Close()
		resp, err = e.post(ctx, payload, true)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
	}
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("yandex ocr %d: %s", resp.StatusCode, util.Truncate(strings.TrimSpace(string(x)), 512))
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusForbidden {
			return nil, ocr.Permanent(err)
		}
		return nil, err
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("yandex ocr: decode: %w", err)
	}
	return out.detections(), nil
}

func (e *Engine) post(ctx context.Context, payload []byte, refresh bool) (*http.Response, error) {
	if refresh {
		if r, ok := e.iamc.(interface{ Invalidate() }); ok {
			r.Invalidate()
		}
	}
	iamToken, err := e.iamc.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+iamToken)
	req.Header.Set("x-folder-id", e.folderID)
	req.Header.Set("x-data-logging-enabled", "false")
	return e.httpc.Do(req)
}

func (r *response) detections() []ocr.Detection {
	if r == nil || r.Result == nil || r.Result.TextAnnotation == nil {
		return nil
	}
	var out []ocr.Detection
	for _, b := range r.Result.TextAnnotation.Blocks {
		for _, l := range b.Lines {
			text := strings.TrimSpace(l.Text)
			if text == "" || len(l.BoundingBox.Vertices) == 0 {
				continue
			}
			x0, y0 := math.Inf(1), math.Inf(1)
			x1, y1 := math.Inf(-1), math.Inf(-1)
			for _, v := range l.BoundingBox.Vertices {
				x, _ := strconv.ParseFloat(v.X, 64)
				y, _ := strconv.ParseFloat(v.Y, 64)
				x0, x1 = math.Min(x0, x), math.Max(x1, x)
				y0, y1 = math.Min(y0, y), math.Max(y1, y)
			}
			out = append(out, ocr.Detection{
				Quad:       ocr.Rect(x0, y0, x1, y1),
				Text:       text,
				Confidence: l.confidence(),
			})
		}
	}
	return out
}

// confidence averages word confidences; lines without any report 1.
func (l line) confidence() float64 {
	var sum float64
	n := 0
	for _, w := range l.Words {
		if w.Confidence > 0 {
			sum += w.Confidence
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}
