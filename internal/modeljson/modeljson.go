// Package modeljson holds the plate reading prompt shared by the vision
// model engines and the parser for their loosely formatted JSON answers.
package modeljson

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/plate-analyzer/pkg/types"
)

// DefaultPrompt asks a vision model to transcribe one plate
const DefaultPrompt = `You are a licence plate reader.

Return JSON only:
{"text": "string", "confidence": 0.0}

HARD RULES
- "text" is the plate number exactly as printed, without spaces or punctuation.
- "confidence" is your certainty in [0,1].
- If no plate is readable, return {"text": "", "confidence": 0.0}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// fallbackConfidence is assigned to answers that were not valid JSON
const fallbackConfidence = 0.1

// Prompt returns DefaultPrompt narrowed to the configured alphabet
func Prompt(cfg types.RecognitionConfig) string {
	if cfg.Whitelist == "" {
		return DefaultPrompt
	}
	return DefaultPrompt + fmt.Sprintf("\n- Use only these characters: %s", cfg.Whitelist)
}

// Reading is the answer format requested by DefaultPrompt
type Reading struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// Parse converts a model answer into engine output. Answers that are not
// JSON are taken as the plate text itself with a low confidence.
func Parse(raw string) (types.EngineOutput, error) {
	raw = Sanitize(raw)
	if raw == "" {
		return types.EngineOutput{}, fmt.Errorf("empty model response")
	}

	if !strings.HasPrefix(raw, "{") {
		return types.EngineOutput{Text: firstLine(raw), Confidences: []float64{fallbackConfidence}}, nil
	}

	var r Reading
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return types.EngineOutput{}, fmt.Errorf("failed to parse model response: %w", err)
	}
	return types.EngineOutput{Text: r.Text, Confidences: []float64{r.Confidence}}, nil
}

// Sanitize removes code fences, comments, and trailing commas from JSON response
func Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
