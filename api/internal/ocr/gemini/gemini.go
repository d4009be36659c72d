package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"guild-roster/api/internal/ocr"
	"guild-roster/api/internal/util"
)

const DefaultModel = "gemini-2.0-flash"

type Engine struct {
	APIKey string
	Model  string
}

func New(apiKey, model string) *Engine {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  model,
	}
}

func (e *Engine) Name() string { return "gemini" }

func (e *Engine) Detect(ctx context.Context, img ocr.Image) ([]ocr.Detection, error) {
	if e.APIKey == "" {
		return nil, ocr.Permanent(errors.New("GEMINI_API_KEY is empty"))
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ocr.VisionPrompt)},
	}

	mime := util.PickMIME(img.MIME, "", img.Data)
	resp, err := m.GenerateContent(ctx,
		genai.Text("Read this leaderboard screenshot."),
		&genai.Blob{MIMEType: mime, Data: img.Data},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini detect: %w", err)
	}
	txt := firstText(resp)
	if txt == "" {
		return nil, fmt.Errorf("gemini detect: empty response")
	}
	dets, err := ocr.ParseVisionJSON(txt)
	if err != nil {
		return nil, fmt.Errorf("gemini detect: %w", err)
	}
	return dets, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			return s
		}
	}
	return ""
}

func ptrFloat32(f float32) *float32 { return &f }
