// Package tesseract recognizes plate text with Tesseract through gosseract.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/menta2k/plate-analyzer/pkg/types"
)

// PlateChars is the default plate alphabet
const PlateChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Engine implements client.Engine. A gosseract client is not safe for
// concurrent use, so every call gets its own.
type Engine struct {
	clientFactory func() *gosseract.Client
	languages     []string
	logger        *log.Logger
}

// dictionaryOff lists the variables that keep Tesseract from correcting
// plates towards dictionary words
var dictionaryOff = []gosseract.SettableVariable{"load_system_dawg", "load_freq_dawg"}

type variableSetter interface {
	SetVariable(key gosseract.SettableVariable, value string) error
}

// NewEngine creates a Tesseract engine for the given languages (default eng)
func NewEngine(languages ...string) *Engine {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Engine{clientFactory: gosseract.NewClient, languages: languages, logger: log.Default()}
}

// SetLogger replaces the logger used for non-fatal client setup problems
func (e *Engine) SetLogger(l *log.Logger) {
	if l == nil {
		l = log.Default()
	}
	e.logger = l
}

// Name implements client.Engine
func (e *Engine) Name() string { return "tesseract" }

// Version returns the linked Tesseract version
func (e *Engine) Version() string {
	c := e.clientFactory()
	defer c.Close()
	return c.Version()
}

// Recognize implements client.Engine. cfg.Mode is the page segmentation mode.
func (e *Engine) Recognize(ctx context.Context, img image.Image, cfg types.RecognitionConfig) (types.EngineOutput, error) {
	if err := ctx.Err(); err != nil {
		return types.EngineOutput{}, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return types.EngineOutput{}, fmt.Errorf("encode image: %w", err)
	}

	c := e.clientFactory()
	defer c.Close()

	languages := e.languages
	if len(cfg.Languages) > 0 {
		languages = cfg.Languages
	}
	if err := c.SetLanguage(languages...); err != nil {
		return types.EngineOutput{}, fmt.Errorf("set languages: %w", err)
	}

	disableDictionaries(c, e.logger)

	if err := c.SetPageSegMode(gosseract.PageSegMode(cfg.Mode)); err != nil {
		return types.EngineOutput{}, fmt.Errorf("set page segmentation mode %d: %w", cfg.Mode, err)
	}
	if cfg.Whitelist != "" {
		if err := c.SetWhitelist(cfg.Whitelist); err != nil {
			return types.EngineOutput{}, fmt.Errorf("set whitelist: %w", err)
		}
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return types.EngineOutput{}, fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return types.EngineOutput{}, fmt.Errorf("recognize text: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		boxes = nil
	}
	return types.EngineOutput{
		Text:        cleanText(text),
		Confidences: wordConfidences(boxes),
	}, nil
}

// wordConfidences converts Tesseract's 0-100 word confidences to [0,1]
func wordConfidences(boxes []gosseract.BoundingBox) []float64 {
	out := make([]float64, 0, len(boxes))
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		out = append(out, b.Confidence/100.0)
	}
	return out
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// disableDictionaries turns off dictionary correction. Failures are logged
// and recognition goes on with the dictionaries loaded.
func disableDictionaries(c variableSetter, logger *log.Logger) {
	for _, key := range dictionaryOff {
		if err := c.SetVariable(key, "false"); err != nil {
			logger.Printf("[DISPATCH] tesseract: set %s: %v", key, err)
		}
	}
}
