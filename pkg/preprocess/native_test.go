package preprocess

import (
	"image"
	"image/color"
	"testing"
)

// createTestImage draws dark text-like bars on a light background
func createTestImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if y > height/4 && y < 3*height/4 && (x/8)%2 == 0 {
				img.Set(x, y, color.RGBA{20, 20, 20, 255})
			} else {
				img.Set(x, y, color.RGBA{220, 210, 200, 255})
			}
		}
	}
	return img
}

func TestNativeStepsPreserveInput(t *testing.T) {
	img := createTestImage(64, 32)
	before := append([]uint8(nil), img.Pix...)

	reg := Native()
	for _, name := range reg.Names() {
		out, err := reg[name](img)
		if err != nil {
			t.Fatalf("%s failed: %v", name, err)
		}
		if out == nil {
			t.Fatalf("%s returned nil image", name)
		}
		if out.Bounds().Dx() == 0 || out.Bounds().Dy() == 0 {
			t.Errorf("%s returned empty image", name)
		}
	}

	for i := range before {
		if before[i] != img.Pix[i] {
			t.Fatalf("input modified at byte %d", i)
		}
	}
}

func TestUpscaleDoublesSize(t *testing.T) {
	out, err := Native()[Upscale](createTestImage(40, 20))
	if err != nil {
		t.Fatalf("upscale failed: %v", err)
	}
	if out.Bounds().Dx() != 80 || out.Bounds().Dy() != 40 {
		t.Errorf("Expected 80x40, got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestOtsuBinarizes(t *testing.T) {
	out, err := Native()[Otsu](createTestImage(64, 32))
	if err != nil {
		t.Fatalf("otsu failed: %v", err)
	}
	gray, ok := out.(*image.Gray)
	if !ok {
		t.Fatalf("Expected *image.Gray, got %T", out)
	}
	for _, v := range gray.Pix {
		if v != 0 && v != 255 {
			t.Fatalf("Expected binary pixels, found %d", v)
		}
	}
	if gray.GrayAt(0, 0).Y != 255 {
		t.Errorf("Expected light background to become white")
	}
	if gray.GrayAt(0, 16).Y != 0 {
		t.Errorf("Expected dark bar to become black")
	}
}

func TestOtsuLevelSplitsModes(t *testing.T) {
	level := OtsuLevel(ToGray(createTestImage(64, 32)))
	if level < 20 || level >= 200 {
		t.Errorf("Expected level between the two modes, got %d", level)
	}
}

func TestEqualizeStretchesRange(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 16, 1))
	for x := 0; x < 16; x++ {
		img.SetGray(x, 0, color.Gray{Y: uint8(100 + x)})
	}
	out := equalizeHist(img)
	if out.GrayAt(0, 0).Y != 0 {
		t.Errorf("Expected darkest pixel to map to 0, got %d", out.GrayAt(0, 0).Y)
	}
	if out.GrayAt(15, 0).Y != 255 {
		t.Errorf("Expected brightest pixel to map to 255, got %d", out.GrayAt(15, 0).Y)
	}
}

func TestChainUnknownStep(t *testing.T) {
	_, err := Native().Chain(createTestImage(8, 8), []string{Grayscale, "warp"})
	if err == nil {
		t.Error("Expected error for unknown step")
	}
}

func TestMergeLaterWins(t *testing.T) {
	marker := image.NewGray(image.Rect(0, 0, 1, 1))
	override := Registry{Grayscale: func(image.Image) (image.Image, error) { return marker, nil }}

	merged := Merge(Native(), override)
	out, err := merged[Grayscale](createTestImage(4, 4))
	if err != nil {
		t.Fatalf("grayscale failed: %v", err)
	}
	if out != image.Image(marker) {
		t.Error("Expected override registry to win")
	}
	if _, ok := merged.Lookup(Otsu); !ok {
		t.Error("Expected native steps to survive the merge")
	}
}
