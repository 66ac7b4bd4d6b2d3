package tesseract

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/otiai10/gosseract/v2"

	"github.com/menta2k/plate-analyzer/pkg/types"
)

func TestWordConfidences(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		{Word: "KA01", Confidence: 90},
		{Word: " ", Confidence: 10},
		{Word: "AB1234", Confidence: 70},
	}
	got := wordConfidences(boxes)
	if len(got) != 2 {
		t.Fatalf("Expected 2 confidences, got %d", len(got))
	}
	if got[0] != 0.9 || got[1] != 0.7 {
		t.Errorf("Expected [0.9 0.7], got %v", got)
	}
}

func TestCleanText(t *testing.T) {
	if got := cleanText("  KA 01\n AB  1234 \n"); got != "KA 01 AB 1234" {
		t.Errorf("Expected collapsed whitespace, got %q", got)
	}
}

func TestNewEngineDefaultLanguage(t *testing.T) {
	e := NewEngine()
	if len(e.languages) != 1 || e.languages[0] != "eng" {
		t.Errorf("Expected default language eng, got %v", e.languages)
	}
	if e.Name() != "tesseract" {
		t.Errorf("Expected name tesseract, got %s", e.Name())
	}
}

// failingSetter rejects one variable and records the rest
type failingSetter struct {
	reject gosseract.SettableVariable
	set    []gosseract.SettableVariable
}

func (f *failingSetter) SetVariable(key gosseract.SettableVariable, value string) error {
	if key == f.reject {
		return errors.New("unknown variable")
	}
	f.set = append(f.set, key)
	return nil
}

func TestDisableDictionariesLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	setter := &failingSetter{reject: "load_system_dawg"}

	disableDictionaries(setter, log.New(&buf, "", 0))

	if len(setter.set) != 1 || setter.set[0] != "load_freq_dawg" {
		t.Errorf("Expected load_freq_dawg to still be set, got %v", setter.set)
	}
	if !strings.Contains(buf.String(), "load_system_dawg") || !strings.Contains(buf.String(), "unknown variable") {
		t.Errorf("Expected the failure to be logged, got %q", buf.String())
	}
}

func TestSetLoggerNil(t *testing.T) {
	e := NewEngine()
	e.SetLogger(nil)
	if e.logger == nil {
		t.Error("Expected default logger")
	}
}

// TestRecognizeBlankImage needs a Tesseract installation with eng data
func TestRecognizeBlankImage(t *testing.T) {
	if os.Getenv("PLATE_TESSERACT_TEST") == "" {
		t.Skip("set PLATE_TESSERACT_TEST to run against the local Tesseract")
	}
	img := image.NewGray(image.Rect(0, 0, 120, 40))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(0, 0, color.Gray{Y: 0})

	out, err := NewEngine().Recognize(context.Background(), img, types.RecognitionConfig{Mode: 7, Whitelist: PlateChars})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	for _, c := range out.Confidences {
		if c < 0 || c > 1 {
			t.Errorf("Confidence out of range: %f", c)
		}
	}
}
