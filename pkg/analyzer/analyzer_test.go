package analyzer

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Fill with a gradient pattern
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			b := uint8(128)
			img.Set(x, y, color.RGBA{r, g, b, 255})
		}
	}

	return img
}

func TestNew(t *testing.T) {
	analyzer := New()
	if analyzer == nil {
		t.Fatal("New() returned nil")
	}

	if analyzer.config.DefaultQuality != 85 {
		t.Errorf("Expected default quality 85, got %d", analyzer.config.DefaultQuality)
	}
}

func TestNewWithConfig(t *testing.T) {
	cfg := Config{
		DefaultQuality:   95,
		SupportedFormats: []string{"png"},
		MinImageSize:     200,
	}

	analyzer := NewWithConfig(cfg)
	if analyzer.config.DefaultQuality != 95 {
		t.Errorf("Expected quality 95, got %d", analyzer.config.DefaultQuality)
	}

	if analyzer.config.MinImageSize != 200 {
		t.Errorf("Expected min size 200, got %d", analyzer.config.MinImageSize)
	}
}

func TestGetImageInfo(t *testing.T) {
	analyzer := New()
	img := createTestImage(400, 300)

	info := analyzer.GetImageInfo(img)

	if info.Width != 400 {
		t.Errorf("Expected width 400, got %d", info.Width)
	}

	if info.Height != 300 {
		t.Errorf("Expected height 300, got %d", info.Height)
	}

	expectedRatio := float64(400) / float64(300)
	if info.AspectRatio != expectedRatio {
		t.Errorf("Expected aspect ratio %f, got %f", expectedRatio, info.AspectRatio)
	}

	if info.Area != 120000 {
		t.Errorf("Expected area 120000, got %d", info.Area)
	}
}

func TestValidateImage(t *testing.T) {
	analyzer := New()

	if err := analyzer.ValidateImage(createTestImage(200, 60)); err != nil {
		t.Errorf("Valid image should pass validation: %v", err)
	}

	if err := analyzer.ValidateImage(createTestImage(10, 10)); err == nil {
		t.Error("Small image should fail validation")
	}

	if err := analyzer.ValidateImage(nil); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("Expected ErrEmptyImage for nil image, got %v", err)
	}

	if err := analyzer.ValidateImage(image.NewGray(image.Rect(0, 0, 0, 10))); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("Expected ErrEmptyImage for zero width, got %v", err)
	}
}

func TestDecode(t *testing.T) {
	analyzer := New()

	var buf bytes.Buffer
	if err := png.Encode(&buf, createTestImage(64, 32)); err != nil {
		t.Fatal(err)
	}
	img, err := analyzer.Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 32 {
		t.Errorf("Expected 64x32, got %v", img.Bounds())
	}

	for _, data := range [][]byte{nil, []byte("not an image")} {
		if _, err := analyzer.Decode(data); !errors.Is(err, ErrDecode) {
			t.Errorf("Expected ErrDecode for %q, got %v", data, err)
		}
	}
}

func TestSaveAndLoadImage(t *testing.T) {
	analyzer := New()
	dir := t.TempDir()

	for _, ext := range []string{"png", "jpg", "webp"} {
		path := filepath.Join(dir, "plate."+ext)
		if err := analyzer.SaveImage(createTestImage(40, 20), path); err != nil {
			t.Fatalf("SaveImage(%s) failed: %v", ext, err)
		}
		img, err := analyzer.LoadImage(path)
		if err != nil {
			t.Fatalf("LoadImage(%s) failed: %v", ext, err)
		}
		if img.Bounds().Dx() != 40 {
			t.Errorf("Expected width 40 for %s, got %d", ext, img.Bounds().Dx())
		}
	}

	if err := analyzer.SaveImage(createTestImage(4, 4), filepath.Join(dir, "plate.gif")); err == nil {
		t.Error("Expected error for unsupported output format")
	}
}

func TestIsFormatSupported(t *testing.T) {
	analyzer := New()

	supportedFormats := []string{"jpg", "jpeg", "png", "webp", "JPG", "JPEG", "PNG"}
	for _, format := range supportedFormats {
		if !analyzer.isFormatSupported(format) {
			t.Errorf("Format %s should be supported", format)
		}
	}

	unsupportedFormats := []string{"gif", "bmp", "tiff"}
	for _, format := range unsupportedFormats {
		if analyzer.isFormatSupported(format) {
			t.Errorf("Format %s should not be supported", format)
		}
	}
}

func BenchmarkGetImageInfo(b *testing.B) {
	analyzer := New()
	img := createTestImage(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		analyzer.GetImageInfo(img)
	}
}

func BenchmarkValidateImage(b *testing.B) {
	analyzer := New()
	img := createTestImage(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		analyzer.ValidateImage(img)
	}
}
