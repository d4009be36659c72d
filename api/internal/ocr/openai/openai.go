package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"guild-roster/api/internal/ocr"
	"guild-roster/api/internal/util"
)

const (
	DefaultModel    = "gpt-4o-mini"
	defaultEndpoint = "https://api.openai.com/v1/chat/completions"
)

type Engine struct {
	APIKey   string
	Model    string
	Endpoint string
	httpc    *http.Client
}

func New(key, model string) *Engine {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &Engine{
		APIKey:   strings.TrimSpace(key),
		Model:    model,
		Endpoint: defaultEndpoint,
		httpc:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *Engine) Name() string { return "openai" }

func (e *Engine) Detect(ctx context.Context, img ocr.Image) ([]ocr.Detection, error) {
	if e.APIKey == "" {
		return nil, ocr.Permanent(errors.New("OPENAI_API_KEY not set"))
	}
	mime := util.PickMIME(img.MIME, "", img.Data)
	if !isOpenAIImageMIME(mime) {
		return nil, ocr.Permanent(fmt.Errorf("openai detect: unsupported image type %s", mime))
	}
	dataURL := util.MakeDataURL(mime, base64.StdEncoding.EncodeToString(img.Data))

	body := map[string]any{
		"model": e.Model,
		"messages": []any{
			map[string]any{"role": "system", "content": ocr.VisionPrompt},
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "text", "text": `Read this leaderboard screenshot. Answer as {"items": [...]}.`},
					map[string]any{"type": "image_url", "image_url": map[string]any{"url": dataURL, "detail": "high"}},
				},
			},
		},
		"temperature":     0,
		"response_format": map[string]any{"type": "json_object"},
	}
	payload, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("openai detect %d: %s", resp.StatusCode, util.Truncate(strings.TrimSpace(string(x)), 512))
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return nil, ocr.Permanent(err)
		}
		return nil, err
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	if len(raw.Choices) == 0 {
		return nil, fmt.Errorf("openai detect: empty response")
	}
	dets, err := ocr.ParseVisionJSON(raw.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("openai detect: %w", err)
	}
	return dets, nil
}

func isOpenAIImageMIME(m string) bool {
	switch strings.ToLower(strings.TrimSpace(m)) {
	case "image/jpeg", "image/jpg", "image/png", "image/webp", "image/gif":
		return true
	}
	return false
}
