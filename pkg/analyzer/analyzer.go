package analyzer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/chai2010/webp"
	_ "golang.org/x/image/webp"
)

var (
	// ErrDecode is returned when image bytes cannot be decoded
	ErrDecode = errors.New("failed to decode image")
	// ErrEmptyImage is returned for nil or zero-sized images
	ErrEmptyImage = errors.New("empty image")
)

// ImageAnalyzer decodes and validates input images
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	DefaultQuality   int
	SupportedFormats []string
	MinImageSize     int
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{
		config: Config{
			DefaultQuality:   85,
			SupportedFormats: []string{"jpg", "jpeg", "png", "webp"},
			MinImageSize:     16,
		},
	}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// Decode decodes encoded image bytes. Failures wrap ErrDecode.
func (a *ImageAnalyzer) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no data", ErrDecode)
	}
	return a.LoadImageFromReader(bytes.NewReader(data))
}

// LoadImage loads an image from file
func (a *ImageAnalyzer) LoadImage(filepath string) (image.Image, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer file.Close()

	return a.LoadImageFromReader(file)
}

// LoadImageFromReader loads an image from an io.Reader
func (a *ImageAnalyzer) LoadImageFromReader(reader io.Reader) (image.Image, error) {
	img, format, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if !a.isFormatSupported(format) {
		return nil, fmt.Errorf("%w: unsupported image format: %s", ErrDecode, format)
	}

	return img, nil
}

// SaveImage saves an image to file
func (a *ImageAnalyzer) SaveImage(img image.Image, filepath string) error {
	file, err := os.Create(filepath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath[strings.LastIndex(filepath, ".")+1:])

	switch ext {
	case "jpg", "jpeg":
		return jpeg.Encode(file, img, &jpeg.Options{Quality: a.config.DefaultQuality})
	case "png":
		return png.Encode(file, img)
	case "webp":
		return webp.Encode(file, img, &webp.Options{Quality: float32(a.config.DefaultQuality)})
	default:
		return fmt.Errorf("unsupported output format: %s", ext)
	}
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   width * height,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Area        int
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// ValidateImage checks if an image meets minimum requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	if img == nil {
		return ErrEmptyImage
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmptyImage, bounds.Dx(), bounds.Dy())
	}
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	return nil
}
