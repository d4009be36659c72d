package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os/exec"
	"strings"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"guild-roster/api/internal/ocr"
)

func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func TestEngineDetectLeaderboardRow(t *testing.T) {
	ensureTesseractAvailable(t)

	img := image.NewRGBA(image.Rect(0, 0, 240, 40))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13}
	d.Dot = fixed.P(10, 25)
	d.DrawString("Alice")
	d.Dot = fixed.P(170, 25)
	d.DrawString("15000")

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	e := New(Config{Languages: []string{"eng"}, MinHeight: 200})
	dets, err := e.Detect(context.Background(), ocr.Image{ID: "row", Data: buf.Bytes()})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	var texts []string
	for _, det := range dets {
		texts = append(texts, det.Text)
		if det.Quad[2].X > 241 || det.Quad[2].Y > 41 {
			t.Errorf("box not mapped back to original size: %+v", det.Quad)
		}
	}
	if !strings.Contains(strings.Join(texts, " "), "15000") {
		t.Fatalf("unexpected OCR output: %q", texts)
	}
}
