package modeljson

import (
	"strings"
	"testing"

	"github.com/menta2k/plate-analyzer/pkg/types"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"text":"AB12"}`, `{"text":"AB12"}`},
		{"fenced", "```json\n{\"text\":\"AB12\"}\n```", `{"text":"AB12"}`},
		{"comments", "{\n// plate\n\"text\":\"AB12\" /* read */\n}", "{\n\n\"text\":\"AB12\" \n}"},
		{"trailing comma", `{"text":"AB12",}`, `{"text":"AB12"}`},
		{"prose around", `Sure! {"text":"AB12"} Hope this helps`, `{"text":"AB12"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParse(t *testing.T) {
	out, err := Parse("```json\n{\"text\": \"KA01AB1234\", \"confidence\": 0.87,}\n```")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if out.Text != "KA01AB1234" {
		t.Errorf("Expected KA01AB1234, got %q", out.Text)
	}
	if len(out.Confidences) != 1 || out.Confidences[0] != 0.87 {
		t.Errorf("Expected confidence 0.87, got %v", out.Confidences)
	}
}

func TestParseNonJSON(t *testing.T) {
	out, err := Parse("MH12DE1234\nThe plate is clearly visible.")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if out.Text != "MH12DE1234" {
		t.Errorf("Expected first line as text, got %q", out.Text)
	}
	if out.Confidences[0] != fallbackConfidence {
		t.Errorf("Expected fallback confidence, got %v", out.Confidences)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse("   "); err == nil {
		t.Error("Expected error for empty response")
	}
	if _, err := Parse(`{"text": }`); err == nil {
		t.Error("Expected error for broken JSON")
	}
}

func TestPromptWhitelist(t *testing.T) {
	if Prompt(types.RecognitionConfig{}) != DefaultPrompt {
		t.Error("Expected default prompt without whitelist")
	}
	p := Prompt(types.RecognitionConfig{Whitelist: "ABC123"})
	if !strings.Contains(p, "ABC123") {
		t.Error("Expected whitelist in prompt")
	}
}
