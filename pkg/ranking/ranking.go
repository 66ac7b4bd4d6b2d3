// Package ranking turns the raw results of one request into a short,
// confidence ordered list of candidates.
package ranking

import (
	"errors"
	"sort"
	"strings"
	"unicode"

	"github.com/menta2k/plate-analyzer/pkg/types"
)

// ErrNoCandidate is returned when no result survives filtering
var ErrNoCandidate = errors.New("no text detected")

// Options controls filtering and truncation
type Options struct {
	MinLength int
	TopK      int
}

// DefaultOptions keeps the three best candidates of at least four characters
func DefaultOptions() Options {
	return Options{MinLength: 4, TopK: 3}
}

// Normalize keeps only ASCII letters and digits, uppercased
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r > unicode.MaxASCII {
			continue
		}
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Rank normalizes, filters, sorts and truncates results. Ties on
// confidence keep submission order (Seq), so the output depends only on
// the set of results and not on completion order. The input is not modified.
func Rank(results []types.RecognitionResult, opts Options) ([]types.RecognitionResult, error) {
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultOptions().MinLength
	}

	ranked := make([]types.RecognitionResult, 0, len(results))
	for _, r := range results {
		if r.Failed() {
			continue
		}
		r.Text = Normalize(r.Text)
		if len(r.Text) < opts.MinLength {
			continue
		}
		ranked = append(ranked, r)
	}
	if len(ranked) == 0 {
		return nil, ErrNoCandidate
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return ranked[i].Seq < ranked[j].Seq
	})

	if opts.TopK > 0 && len(ranked) > opts.TopK {
		ranked = ranked[:opts.TopK]
	}
	return ranked, nil
}
