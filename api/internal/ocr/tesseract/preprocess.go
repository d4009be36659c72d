package tesseract

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Prepared is a recognition-ready PNG and the factor it was scaled by.
type Prepared struct {
	PNG   []byte
	Scale float64
}

// Preprocess decodes a JPEG, PNG or WebP screenshot, converts it to
// grayscale and upscales it when it is shorter than minHeight.
func Preprocess(data []byte, minHeight int) (Prepared, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Prepared{}, fmt.Errorf("decode image: %w", err)
	}
	gray := imaging.Grayscale(img)
	scale := 1.0
	if h := gray.Bounds().Dy(); h > 0 && h < minHeight {
		scale = float64(minHeight) / float64(h)
		gray = imaging.Resize(gray, 0, minHeight, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, gray, imaging.PNG); err != nil {
		return Prepared{}, fmt.Errorf("encode image: %w", err)
	}
	return Prepared{PNG: buf.Bytes(), Scale: scale}, nil
}
