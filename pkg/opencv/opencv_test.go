package opencv

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/menta2k/plate-analyzer/pkg/preprocess"
)

func plateImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(200)
			if x > w/4 && x < 3*w/4 && y > h/3 && y < 2*h/3 && (x/6)%2 == 0 {
				v = 30
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestRegistryKeepsSize(t *testing.T) {
	reg := Registry()
	img := plateImage(120, 40)

	for _, name := range reg.Names() {
		out, err := reg.Chain(img, []string{name})
		if err != nil {
			t.Fatalf("%s failed: %v", name, err)
		}
		want := image.Pt(120, 40)
		if name == preprocess.Upscale {
			want = image.Pt(240, 80)
		}
		if out.Bounds().Size() != want {
			t.Errorf("%s: expected %v, got %v", name, want, out.Bounds().Size())
		}
	}
}

func TestRegistryCoversDefaultSteps(t *testing.T) {
	reg := Registry()
	for _, name := range []string{preprocess.Bilateral, preprocess.AdaptiveThreshold, preprocess.CLAHE} {
		if _, ok := reg.Lookup(name); !ok {
			t.Errorf("Expected step %s", name)
		}
	}
}

func TestOtsuIsBinary(t *testing.T) {
	out, err := Registry().Chain(plateImage(60, 30), []string{preprocess.Otsu})
	if err != nil {
		t.Fatalf("otsu failed: %v", err)
	}
	gray := preprocess.ToGray(out)
	for _, p := range gray.Pix {
		if p != 0 && p != 255 {
			t.Fatalf("Expected binary output, got %d", p)
		}
	}
}

func TestYOLOLoadMissingFiles(t *testing.T) {
	dir := t.TempDir()
	d := NewYOLODetector(filepath.Join(dir, "plate.weights"), filepath.Join(dir, "plate.cfg"))
	if err := d.Load(context.Background()); err == nil {
		t.Error("Expected error for missing model files")
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close on unloaded detector failed: %v", err)
	}
}

func TestContourDetectorBlank(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 200, 100))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	d := NewContourDetector()
	dets, err := d.Detect(context.Background(), img, 0.1)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("Expected no contours on a flat image, got %d", len(dets))
	}
}
