package ollama

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/plate-analyzer/pkg/types"
)

func TestRecognize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("Expected /api/chat, got %s", r.URL.Path)
		}
		var req api.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			return
		}
		if req.Model != "llava" {
			t.Errorf("Expected model llava, got %s", req.Model)
		}
		if len(req.Messages) != 1 || len(req.Messages[0].Images) != 1 {
			t.Errorf("Expected one message with one image")
			return
		}
		if !strings.Contains(req.Messages[0].Content, "ABC0123") {
			t.Error("Expected whitelist in prompt")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.ChatResponse{
			Model:   "llava",
			Message: api.Message{Role: "assistant", Content: "```json\n{\"text\": \"KA01AB1234\", \"confidence\": 0.9}\n```"},
			Done:    true,
		})
	}))
	defer server.Close()

	c, err := NewClient(server.URL+"/api/chat", "llava")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.Name() != "ollama:llava" {
		t.Errorf("Expected name ollama:llava, got %s", c.Name())
	}

	out, err := c.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 40, 20)), types.RecognitionConfig{Whitelist: "ABC0123"})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if out.Text != "KA01AB1234" || out.Confidences[0] != 0.9 {
		t.Errorf("Expected KA01AB1234 at 0.9, got %q at %v", out.Text, out.Confidences)
	}
}

func TestRecognizeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer server.Close()

	c, _ := NewClient(server.URL, "missing")
	if _, err := c.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)), types.RecognitionConfig{}); err == nil {
		t.Error("Expected error from failing server")
	}
}

func TestNewClientRequiresModel(t *testing.T) {
	if _, err := NewClient("http://localhost:11434", ""); err == nil {
		t.Error("Expected error without model")
	}
}
