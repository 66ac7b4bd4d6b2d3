package types

import (
	"image"
	"time"
)

// Box represents a pixel-space bounding box inside an image
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect converts the box into an image.Rectangle
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Empty reports whether the box has no area
func (b Box) Empty() bool {
	return b.W <= 0 || b.H <= 0
}

// BoxFromRect converts an image.Rectangle into a Box
func BoxFromRect(r image.Rectangle) Box {
	return Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Proposal is a candidate plate region returned by a region proposer
type Proposal struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// Variant is one labeled, preprocessed rendition of an image or sub-region.
// Variants are immutable once produced.
type Variant struct {
	Label  string      `json:"label"`
	Pixels image.Image `json:"-"`
}

// RecognitionConfig governs how an OCR engine interprets a variant
type RecognitionConfig struct {
	// Mode is the assumed text layout (Tesseract page segmentation mode).
	Mode      int      `json:"mode"`
	Whitelist string   `json:"whitelist"`
	Languages []string `json:"languages,omitempty"`
}

// EngineOutput is the raw answer of an OCR engine for one variant
type EngineOutput struct {
	Text string
	// Confidences holds per-character (or per-word) confidences in [0,1].
	Confidences []float64
}

// RecognitionResult is the outcome of one recognition task
type RecognitionResult struct {
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	Source     string        `json:"source"`
	Latency    time.Duration `json:"latency"`
	// Seq is the submission order inside a request, used for tie-breaking.
	Seq   int    `json:"seq"`
	Error string `json:"error,omitempty"`
}

// Failed reports whether the engine call behind the result failed
func (r RecognitionResult) Failed() bool {
	return r.Error != ""
}

// FormattedPlate is the normalized form of a recognized plate
type FormattedPlate struct {
	RawText       string   `json:"raw_text"`
	CanonicalText string   `json:"canonical_text"`
	DisplayText   string   `json:"display_text"`
	Segments      []string `json:"segments,omitempty"`
	RegionCode    string   `json:"region_code"`
	IsValid       bool     `json:"is_valid"`
}

// FeedbackRecord is one persisted recognition outcome
type FeedbackRecord struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	ImageRef       string         `json:"image_ref,omitempty"`
	DetectedText   string         `json:"detected_text"`
	CorrectedText  *string        `json:"corrected_text"`
	Confidence     float64        `json:"confidence"`
	ProcessingTime time.Duration  `json:"processing_time"`
	Metadata       map[string]any `json:"metadata"`
	IsCorrect      bool           `json:"is_correct"`
}

// AccuracyStats summarizes the feedback ledger
type AccuracyStats struct {
	Total         int     `json:"total_entries"`
	Correct       int     `json:"correct_entries"`
	Accuracy      float64 `json:"accuracy"`
	AvgConfidence float64 `json:"average_confidence"`
}
