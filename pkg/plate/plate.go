// Package plate normalizes recognized text into canonical plate numbers and
// judges their validity per region.
//
// Canonical text never contains separators. The display form joins the
// grammar segments with single spaces and is meant for people only.
package plate

import (
	"regexp"
	"strings"

	"github.com/menta2k/plate-analyzer/pkg/ranking"
	"github.com/menta2k/plate-analyzer/pkg/types"
)

// RegionIndia is the region code of Indian plates
const RegionIndia = "in"

// grammar is one way to split normalized text into plate segments
type grammar struct {
	name    string
	pattern *regexp.Regexp
}

// grammars lists the split patterns tried in order for each region
var grammars = map[string][]grammar{
	RegionIndia: {
		{"standard", regexp.MustCompile(`([A-Z]{2})(\d{1,2})([A-Z]{1,3})(\d{1,4})`)},
		{"single-series", regexp.MustCompile(`([A-Z]{2})(\d{1,2})([A-Z])(\d{1,4})`)},
		{"triple-series", regexp.MustCompile(`([A-Z]{2})(\d{1,2})([A-Z]{3})(\d{1,4})`)},
		{"bharat", regexp.MustCompile(`(\d{2})(BH)(\d{4})([A-Z]{1,2})`)},
	},
}

// validators are the anchored patterns a region accepts as valid
var validators = map[string][]*regexp.Regexp{
	RegionIndia: {
		regexp.MustCompile(`^[A-Z]{2}\d{1,2}[A-Z]{1,3}\d{1,4}$`),
		regexp.MustCompile(`^\d{2}BH\d{4}[A-Z]{1,2}$`),
	},
}

// Positional fallback bounds for regions with a grammar
const (
	fallbackMinLen = 8
	fallbackMaxLen = 11
)

// Generic validity bounds for regions without a grammar
const (
	genericMinLen = 4
	genericMaxLen = 10
)

// Parse normalizes text and splits it according to the region grammar
func Parse(text, region string) types.FormattedPlate {
	region = strings.ToLower(region)
	normalized := ranking.Normalize(text)
	p := types.FormattedPlate{
		RawText:       text,
		CanonicalText: normalized,
		RegionCode:    region,
	}

	if segments := split(normalized, region); len(segments) > 0 {
		p.Segments = segments
		p.CanonicalText = strings.Join(segments, "")
	}
	p.DisplayText = p.CanonicalText
	if len(p.Segments) > 0 {
		p.DisplayText = strings.Join(p.Segments, " ")
	}
	p.IsValid = IsValid(p.CanonicalText, region)
	return p
}

// Format returns the canonical text for a region
func Format(text, region string) string {
	return Parse(text, region).CanonicalText
}

// Display returns the canonical text with segment separators
func Display(text, region string) string {
	return Parse(text, region).DisplayText
}

// IsValid reports whether text is an acceptable plate for region
func IsValid(text, region string) bool {
	normalized := ranking.Normalize(text)
	if len(normalized) < genericMinLen {
		return false
	}

	if patterns, ok := validators[strings.ToLower(region)]; ok {
		for _, re := range patterns {
			if re.MatchString(normalized) {
				return true
			}
		}
		return false
	}

	if len(normalized) > genericMaxLen {
		return false
	}
	var letters, digits int
	for _, r := range normalized {
		if r >= '0' && r <= '9' {
			digits++
		} else {
			letters++
		}
	}
	return letters > 0 && digits > 0
}

func split(text, region string) []string {
	rules, ok := grammars[region]
	if !ok {
		return nil
	}
	for _, g := range rules {
		if m := g.pattern.FindStringSubmatch(text); m != nil {
			return append([]string(nil), m[1:]...)
		}
	}

	n := len(text)
	if n < fallbackMinLen || n > fallbackMaxLen {
		return nil
	}
	if n >= 10 {
		return []string{text[:2], text[2:4], text[4:6], text[6:]}
	}
	return []string{text[:2], text[2:4], text[4:5], text[5:]}
}
