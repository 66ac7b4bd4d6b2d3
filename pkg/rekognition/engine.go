// Package rekognition recognizes plate text with Amazon Rekognition DetectText
package rekognition

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rektypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/menta2k/plate-analyzer/pkg/types"
)

const jpegQuality = 90

// API is the part of the Rekognition client the engine uses
type API interface {
	DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

// Engine implements client.Engine on top of DetectText
type Engine struct {
	api API
	// MinConfidence drops detections below this value (0-100, Rekognition scale)
	MinConfidence float32
}

// NewEngine wraps an existing Rekognition API client
func NewEngine(api API) *Engine {
	return &Engine{api: api}
}

// NewEngineFromRegion loads the default AWS configuration for region
func NewEngineFromRegion(ctx context.Context, region string) (*Engine, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewEngine(rekognition.NewFromConfig(cfg)), nil
}

// Name implements client.Engine
func (e *Engine) Name() string { return "rekognition" }

// Recognize implements client.Engine. Only LINE detections are used, so
// words are not counted twice.
func (e *Engine) Recognize(ctx context.Context, img image.Image, cfg types.RecognitionConfig) (types.EngineOutput, error) {
	if e.api == nil {
		return types.EngineOutput{}, fmt.Errorf("rekognition client not initialized")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return types.EngineOutput{}, fmt.Errorf("encode image: %w", err)
	}

	result, err := e.api.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &rektypes.Image{Bytes: buf.Bytes()},
	})
	if err != nil {
		return types.EngineOutput{}, fmt.Errorf("rekognition: %w", err)
	}

	var lines []string
	var confidences []float64
	for _, d := range result.TextDetections {
		if d.Type != rektypes.TextTypesLine || d.DetectedText == nil {
			continue
		}
		conf := aws.ToFloat32(d.Confidence)
		if conf < e.MinConfidence {
			continue
		}
		text := keepAllowed(*d.DetectedText, cfg.Whitelist)
		if text == "" {
			continue
		}
		lines = append(lines, text)
		confidences = append(confidences, float64(conf)/100.0)
	}

	return types.EngineOutput{
		Text:        strings.Join(lines, " "),
		Confidences: confidences,
	}, nil
}

// keepAllowed drops characters outside whitelist. Spaces survive.
func keepAllowed(text, whitelist string) string {
	text = strings.TrimSpace(text)
	if whitelist == "" {
		return text
	}
	return strings.Map(func(r rune) rune {
		if r == ' ' || strings.ContainsRune(whitelist, r) {
			return r
		}
		return -1
	}, strings.ToUpper(text))
}
