package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/plate-analyzer/internal/modeljson"
	"github.com/menta2k/plate-analyzer/pkg/processing"
	"github.com/menta2k/plate-analyzer/pkg/types"
)

const (
	maxImageDim  = 512
	imageQuality = 90
)

// Client reads plates with a vision model behind a llama.cpp server
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	processor  *processing.Processor
}

// OpenAI-compatible message format
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // Can be string or []ContentPart
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// OpenAI-compatible chat completion request
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// OpenAI-compatible chat completion response
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

func NewClient(serverURL, model string) (*Client, error) {
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}

	return &Client{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		processor: processing.NewProcessor(),
	}, nil
}

// Name implements client.Engine
func (c *Client) Name() string { return "llamacpp" }

// Recognize implements client.Engine
func (c *Client) Recognize(ctx context.Context, img image.Image, cfg types.RecognitionConfig) (types.EngineOutput, error) {
	imgB64, err := c.processor.PrepareImageForModel(img, "jpg", maxImageDim, imageQuality)
	if err != nil {
		return types.EngineOutput{}, fmt.Errorf("failed to encode image: %v", err)
	}

	content := []ContentPart{
		{
			Type: "text",
			Text: modeljson.Prompt(cfg),
		},
		{
			Type: "image_url",
			ImageURL: &ImageURL{
				URL: "data:image/jpeg;base64," + imgB64,
			},
		},
	}

	req := ChatCompletionRequest{
		Model: c.model,
		Messages: []Message{
			{
				Role:    "user",
				Content: content,
			},
		},
		Temperature: 0,
		MaxTokens:   256,
		Stream:      false,
	}

	respBody, err := c.sendRequest(ctx, "/v1/chat/completions", req)
	if err != nil {
		return types.EngineOutput{}, fmt.Errorf("request failed: %v", err)
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return types.EngineOutput{}, fmt.Errorf("failed to parse response: %v", err)
	}

	if len(resp.Choices) == 0 {
		return types.EngineOutput{}, fmt.Errorf("no choices in response")
	}

	// Extract text content from the response (handle both string and array formats)
	var responseText string
	switch content := resp.Choices[0].Message.Content.(type) {
	case string:
		responseText = content
	case []interface{}:
		for _, item := range content {
			if partMap, ok := item.(map[string]interface{}); ok {
				if text, ok := partMap["text"].(string); ok && text != "" {
					responseText = text
					break
				}
			}
		}
	}

	if responseText == "" {
		return types.EngineOutput{}, fmt.Errorf("empty response from llama.cpp server")
	}

	return modeljson.Parse(responseText)
}

func (c *Client) sendRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
