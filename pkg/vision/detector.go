// Package vision finds plate-like regions without any model: plates are
// small, wide rectangles packed with vertical character strokes, so windows
// of plate proportions with the highest horizontal gradient density win.
package vision

import (
	"context"
	"image"
	"sort"

	"github.com/menta2k/plate-analyzer/pkg/client"
	"github.com/menta2k/plate-analyzer/pkg/preprocess"
	"github.com/menta2k/plate-analyzer/pkg/types"
)

// PlateDetector scores sliding windows by edge density
type PlateDetector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for plate region detection
type DetectionConfig struct {
	// EdgeThreshold is the minimum mean edge strength of a window, in [0,1]
	EdgeThreshold float64
	// AspectRatios are the window width/height ratios tried
	AspectRatios []float64
	// WindowFractions are window widths as fractions of the image width
	WindowFractions []float64
	// StepDivisor sets the slide step to window width / StepDivisor
	StepDivisor int
	// OverlapThreshold suppresses windows overlapping a better one by more than this IoU
	OverlapThreshold float64
	MaxRegions       int
}

// New creates a new PlateDetector with default configuration
func New() *PlateDetector {
	return &PlateDetector{
		config: DetectionConfig{
			EdgeThreshold:    0.08,
			AspectRatios:     []float64{2.0, 3.0, 4.5},
			WindowFractions:  []float64{0.15, 0.25, 0.4},
			StepDivisor:      8,
			OverlapThreshold: 0.3,
			MaxRegions:       5,
		},
	}
}

// NewWithConfig creates a new PlateDetector with custom configuration
func NewWithConfig(config DetectionConfig) *PlateDetector {
	return &PlateDetector{config: config}
}

// Region represents a rectangular region of interest
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Center returns the center point of the region
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

func (r Region) rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Load is a no-op; the detector has no model
func (d *PlateDetector) Load(ctx context.Context) error { return nil }

// Detect implements client.RegionDetector. Confidence is the window score
// relative to the best window, so the strongest region always scores 1.
func (d *PlateDetector) Detect(ctx context.Context, img image.Image, threshold float64) ([]client.Detection, error) {
	regions, err := d.DetectRegions(img)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, nil
	}

	best := regions[0].Score
	b := img.Bounds()
	detections := make([]client.Detection, 0, len(regions))
	for _, r := range regions {
		conf := r.Score / best
		if conf < threshold {
			continue
		}
		detections = append(detections, client.Detection{
			Box:        types.Box{X: r.X + b.Min.X, Y: r.Y + b.Min.Y, W: r.Width, H: r.Height},
			Confidence: conf,
		})
	}
	return detections, nil
}

// DetectRegions returns plate-shaped regions sorted by descending score
func (d *PlateDetector) DetectRegions(img image.Image) ([]Region, error) {
	gray := preprocess.ToGray(img)
	width, height := gray.Bounds().Dx(), gray.Bounds().Dy()
	if width < 3 || height < 3 {
		return nil, nil
	}

	integral := d.calculateEdgeIntegral(gray)
	regions := d.findCandidateRegions(integral, width, height)
	return d.filterAndScoreRegions(regions), nil
}

// calculateEdgeIntegral builds a summed-area table of horizontal gradient
// strength normalized to [0,1].
func (d *PlateDetector) calculateEdgeIntegral(gray *image.Gray) []float64 {
	width, height := gray.Bounds().Dx(), gray.Bounds().Dy()
	stride := width + 1
	integral := make([]float64, stride*(height+1))

	for y := 0; y < height; y++ {
		var rowSum float64
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < width; x++ {
			var edge float64
			if x > 0 && x < width-1 {
				diff := int(row[x+1]) - int(row[x-1])
				if diff < 0 {
					diff = -diff
				}
				edge = float64(diff) / 255.0
			}
			rowSum += edge
			integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + rowSum
		}
	}
	return integral
}

func (d *PlateDetector) findCandidateRegions(integral []float64, width, height int) []Region {
	var regions []Region
	stride := width + 1
	divisor := d.config.StepDivisor
	if divisor <= 0 {
		divisor = 8
	}

	for _, fraction := range d.config.WindowFractions {
		windowWidth := int(float64(width) * fraction)
		if windowWidth < 10 {
			continue // Skip very small windows
		}
		for _, ratio := range d.config.AspectRatios {
			windowHeight := int(float64(windowWidth) / ratio)
			if windowHeight < 4 || windowHeight > height {
				continue
			}
			step := windowWidth / divisor
			if step < 1 {
				step = 1
			}

			for y := 0; y <= height-windowHeight; y += step {
				for x := 0; x <= width-windowWidth; x += step {
					score := calculateRegionScore(integral, stride, x, y, windowWidth, windowHeight)
					if score > d.config.EdgeThreshold {
						regions = append(regions, Region{X: x, Y: y, Width: windowWidth, Height: windowHeight, Score: score})
					}
				}
			}
		}
	}
	return regions
}

// calculateRegionScore returns the mean edge strength inside a window
func calculateRegionScore(integral []float64, stride, x, y, w, h int) float64 {
	sum := integral[(y+h)*stride+x+w] - integral[y*stride+x+w] - integral[(y+h)*stride+x] + integral[y*stride+x]
	return sum / float64(w*h)
}

// filterAndScoreRegions sorts by score and drops windows overlapping a better one
func (d *PlateDetector) filterAndScoreRegions(regions []Region) []Region {
	sort.SliceStable(regions, func(i, j int) bool { return regions[i].Score > regions[j].Score })

	var kept []Region
	for _, r := range regions {
		suppressed := false
		for _, k := range kept {
			if iou(r.rect(), k.rect()) > d.config.OverlapThreshold {
				suppressed = true
				break
			}
		}
		if suppressed {
			continue
		}
		kept = append(kept, r)
		if d.config.MaxRegions > 0 && len(kept) >= d.config.MaxRegions {
			break
		}
	}
	return kept
}

func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := inter.Dx() * inter.Dy()
	union := a.Dx()*a.Dy() + b.Dx()*b.Dy() - ia
	return float64(ia) / float64(union)
}
