// Package board turns OCR fragments from a leaderboard screenshot into
// (name, value) pairs and reconciles the names against a known roster.
package board

// TextBlock is one recognized fragment of a single image.
type TextBlock struct {
	Text       string
	X          float64 // left edge (top-left corner of the box)
	YCenter    float64 // vertical center of the left edge
	Confidence float64
}

// Pair links a name label to the number found on the same row.
type Pair struct {
	Label string
	Value int64
	Image string
}

// Candidate is an OCR-read name that did not match the roster confidently.
type Candidate struct {
	RawLabel string `json:"raw_label" yaml:"raw_label"`
	Value    int64  `json:"value" yaml:"value"`
	Image    string `json:"image" yaml:"image"`

	// Suggestions are the closest roster names below the match threshold,
	// best first. They only seed the review UI.
	Suggestions []string `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
}
