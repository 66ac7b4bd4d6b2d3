package vision

import (
	"context"
	"image"
	"image/color"
	"testing"
)

var plateRect = image.Rect(150, 120, 270, 150)

// createTestImage draws a striped plate-like rectangle on a flat background
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := image.Pt(x, y)
			if p.In(plateRect) {
				if x%4 < 2 {
					img.Set(x, y, color.RGBA{0, 0, 0, 255}) // Character stroke
				} else {
					img.Set(x, y, color.RGBA{255, 255, 255, 255})
				}
			} else {
				img.Set(x, y, color.RGBA{120, 130, 140, 255}) // Flat background
			}
		}
	}

	return img
}

func TestNew(t *testing.T) {
	detector := New()
	if detector == nil {
		t.Error("New() returned nil")
	}

	if detector.config.EdgeThreshold != 0.08 {
		t.Errorf("Expected edge threshold 0.08, got %f", detector.config.EdgeThreshold)
	}
}

func TestNewWithConfig(t *testing.T) {
	cfg := DetectionConfig{
		EdgeThreshold:   0.2,
		AspectRatios:    []float64{3},
		WindowFractions: []float64{0.3},
		MaxRegions:      1,
	}

	detector := NewWithConfig(cfg)
	if detector.config.EdgeThreshold != 0.2 {
		t.Errorf("Expected edge threshold 0.2, got %f", detector.config.EdgeThreshold)
	}
}

func TestRegionCenter(t *testing.T) {
	region := Region{X: 10, Y: 20, Width: 100, Height: 80}

	centerX, centerY := region.Center()

	if centerX != 60 {
		t.Errorf("Expected center X 60, got %d", centerX)
	}
	if centerY != 60 {
		t.Errorf("Expected center Y 60, got %d", centerY)
	}
}

func TestRegionArea(t *testing.T) {
	region := Region{X: 10, Y: 20, Width: 100, Height: 80}

	if region.Area() != 8000 {
		t.Errorf("Expected area 8000, got %d", region.Area())
	}
}

func TestDetectRegionsFindsPlate(t *testing.T) {
	detector := New()
	img := createTestImage(400, 200)

	regions, err := detector.DetectRegions(img)
	if err != nil {
		t.Fatalf("DetectRegions failed: %v", err)
	}
	if len(regions) == 0 {
		t.Fatal("Expected to detect at least one region")
	}

	cx, cy := regions[0].Center()
	if !image.Pt(cx, cy).In(plateRect) {
		t.Errorf("Expected best region centered inside the plate, got %+v", regions[0])
	}

	for i, region := range regions {
		if region.Width <= 0 || region.Height <= 0 {
			t.Errorf("Region %d has invalid dimensions: %dx%d", i, region.Width, region.Height)
		}
		if i > 0 && region.Score > regions[i-1].Score {
			t.Errorf("Regions not sorted at %d", i)
		}
	}
}

func TestDetectFlatImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for i := range img.Pix {
		img.Pix[i] = 90
	}

	detections, err := New().Detect(context.Background(), img, 0.5)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(detections) != 0 {
		t.Errorf("Expected no detections on a flat image, got %d", len(detections))
	}
}

func TestDetectConfidence(t *testing.T) {
	detections, err := New().Detect(context.Background(), createTestImage(400, 200), 0.0)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(detections) == 0 {
		t.Fatal("Expected detections")
	}
	if detections[0].Confidence != 1 {
		t.Errorf("Expected best detection confidence 1, got %f", detections[0].Confidence)
	}
	for _, d := range detections {
		if d.Confidence < 0 || d.Confidence > 1 {
			t.Errorf("Confidence out of range: %f", d.Confidence)
		}
	}
}

func TestCalculateEdgeIntegral(t *testing.T) {
	detector := New()
	gray := image.NewGray(image.Rect(0, 0, 4, 2))
	copy(gray.Pix, []uint8{0, 255, 0, 255, 0, 0, 0, 0})

	integral := detector.calculateEdgeIntegral(gray)
	// only interior pixels of row 0 carry an edge: |0-0| at x=1, |255-255| at x=2
	total := integral[len(integral)-1]
	if total != 0 {
		t.Errorf("Expected zero edge sum, got %f", total)
	}

	copy(gray.Pix, []uint8{0, 0, 255, 255, 0, 0, 0, 0})
	integral = detector.calculateEdgeIntegral(gray)
	if total := integral[len(integral)-1]; total != 2 {
		t.Errorf("Expected edge sum 2, got %f", total)
	}
}

func BenchmarkDetectRegions(b *testing.B) {
	detector := New()
	img := createTestImage(800, 600)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		detector.DetectRegions(img)
	}
}
