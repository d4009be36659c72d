package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"

	"guild-roster/api/internal/ocr"
)

func TestFirstText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("  ")}}},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text(`[{"text":"A",`), genai.Text(`"box":[1,2,3,4]}]`)}}},
		},
	}
	if got := firstText(resp); got != `[{"text":"A","box":[1,2,3,4]}]` {
		t.Fatalf("firstText = %q", got)
	}
	if got := firstText(nil); got != "" {
		t.Fatalf("firstText(nil) = %q", got)
	}
}

func TestDetectWithoutKeyIsPermanent(t *testing.T) {
	_, err := New("", "").Detect(context.Background(), ocr.Image{})
	var p *ocr.PermanentError
	if !errors.As(err, &p) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewDefaultsModel(t *testing.T) {
	if e := New("k", " "); e.Model != DefaultModel {
		t.Fatalf("Model = %q", e.Model)
	}
}
