package ocr

import (
	"encoding/json"
	"fmt"
	"strings"

	"guild-roster/api/internal/util"
)

// VisionPrompt asks a multimodal model for EasyOCR-style output.
const VisionPrompt = `You are an OCR engine for game leaderboard screenshots.
Return every separate piece of text you can read, including player names in any script
(Thai, Latin, CJK), numbers and headers. Do not merge a name with its score.
Coordinates are pixels of the original image, origin top-left.
Reply with JSON only, no prose:
[{"text": string, "box": [x0, y0, x1, y1], "confidence": number between 0 and 1}]`

type visionItem struct {
	Text       string    `json:"text"`
	Box        []float64 `json:"box"`
	Confidence *float64  `json:"confidence"`
}

// ParseVisionJSON decodes the VisionPrompt reply. Code fences and an object
// wrapper ({"items": [...]}) are tolerated.
func ParseVisionJSON(s string) ([]Detection, error) {
	s = util.StripCodeFences(s)
	if s == "" {
		return nil, nil
	}
	var items []visionItem
	if strings.HasPrefix(s, "{") {
		var wrap map[string]json.RawMessage
		if err := json.Unmarshal([]byte(s), &wrap); err != nil {
			return nil, fmt.Errorf("vision json: %w", err)
		}
		for _, raw := range wrap {
			if err := json.Unmarshal(raw, &items); err == nil {
				break
			}
		}
	} else if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, fmt.Errorf("vision json: %w", err)
	}

	out := make([]Detection, 0, len(items))
	for _, it := range items {
		text := strings.TrimSpace(it.Text)
		if text == "" || len(it.Box) != 4 {
			continue
		}
		x0, y0, x1, y1 := it.Box[0], it.Box[1], it.Box[2], it.Box[3]
		if x1 < x0 {
			x0, x1 = x1, x0
		}
		if y1 < y0 {
			y0, y1 = y1, y0
		}
		conf := 1.0
		if it.Confidence != nil {
			conf = *it.Confidence
		}
		out = append(out, Detection{Quad: Rect(x0, y0, x1, y1), Text: text, Confidence: conf})
	}
	return out, nil
}
