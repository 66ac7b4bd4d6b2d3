package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/plate-analyzer/internal/modeljson"
	"github.com/menta2k/plate-analyzer/pkg/processing"
	"github.com/menta2k/plate-analyzer/pkg/types"
)

// Plates are small; larger inputs only slow the model down
const (
	maxImageDim  = 512
	imageQuality = 90
)

// Client reads plates with a vision model served by Ollama
type Client struct {
	client    *api.Client
	model     string
	processor *processing.Processor
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL, model string) (*Client, error) {
	// Parse the provided URL
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	// Create base URL from the provided URL (removing path like /api/chat)
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	// Create client with the specified URL, ignoring environment
	client := api.NewClient(baseURL, http.DefaultClient)

	return &Client{client: client, model: model, processor: processing.NewProcessor()}, nil
}

// Name implements client.Engine
func (c *Client) Name() string { return "ollama:" + c.model }

// Recognize implements client.Engine
func (c *Client) Recognize(ctx context.Context, img image.Image, cfg types.RecognitionConfig) (types.EngineOutput, error) {
	// Add timeout if context doesn't have one (vision models on CPU are slow)
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 120*time.Second)
		defer cancel()
	}

	imgB64, err := c.processor.PrepareImageForModel(img, "jpg", maxImageDim, imageQuality)
	if err != nil {
		return types.EngineOutput{}, fmt.Errorf("failed to encode image: %v", err)
	}
	imgBytes, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil {
		return types.EngineOutput{}, fmt.Errorf("failed to decode base64 image: %v", err)
	}

	// Plate reading wants deterministic answers
	options := map[string]any{
		"temperature": 0.0,
	}
	modelLower := strings.ToLower(c.model)
	if strings.Contains(modelLower, "minicpm-v") || strings.Contains(modelLower, "minicpmv") {
		options["num_ctx"] = 4096
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: modeljson.Prompt(cfg),
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream:  &streamFalse,
		Options: options,
	}

	var responseContent string
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return types.EngineOutput{}, fmt.Errorf("ollama chat error: %v", err)
	}

	return modeljson.Parse(responseContent)
}
