package ranking

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/menta2k/plate-analyzer/pkg/types"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"mh 12 de 1234": "MH12DE1234",
		"KA-01/ab.1234": "KA01AB1234",
		"  \n":          "",
		"Ünï42x":        "N42X",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestRankSortsAndTruncates(t *testing.T) {
	results := []types.RecognitionResult{
		{Text: "AB12", Confidence: 0.4, Seq: 0},
		{Text: "ab 34 cd", Confidence: 0.9, Seq: 1},
		{Text: "X1", Confidence: 0.99, Seq: 2},
		{Text: "EF5678", Confidence: 0.7, Seq: 3},
		{Text: "GH9012", Confidence: 0.6, Seq: 4},
	}
	ranked, err := Rank(results, DefaultOptions())
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(ranked) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(ranked))
	}
	want := []string{"AB34CD", "EF5678", "GH9012"}
	for i, w := range want {
		if ranked[i].Text != w {
			t.Errorf("Position %d: expected %s, got %s", i, w, ranked[i].Text)
		}
	}
	if results[1].Text != "ab 34 cd" {
		t.Error("Expected input to stay unmodified")
	}
}

func TestRankTieBreakBySubmissionOrder(t *testing.T) {
	base := []types.RecognitionResult{
		{Text: "AAAA", Confidence: 0.5, Seq: 0},
		{Text: "BBBB", Confidence: 0.8, Seq: 1},
		{Text: "CCCC", Confidence: 0.5, Seq: 2},
		{Text: "DDDD", Confidence: 0.8, Seq: 3},
	}
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		shuffled := append([]types.RecognitionResult(nil), base...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		ranked, err := Rank(shuffled, Options{MinLength: 4, TopK: 10})
		if err != nil {
			t.Fatalf("Rank failed: %v", err)
		}
		got := ""
		for _, r := range ranked {
			got += r.Text[:1]
		}
		if got != "BDAC" {
			t.Fatalf("Expected order BDAC independent of arrival, got %s", got)
		}
		for i := 1; i < len(ranked); i++ {
			if ranked[i].Confidence > ranked[i-1].Confidence {
				t.Fatalf("Not sorted at %d", i)
			}
		}
	}
}

func TestRankNoCandidate(t *testing.T) {
	results := []types.RecognitionResult{
		{Text: "", Confidence: 0},
		{Text: "AB", Confidence: 0.9},
		{Text: "LONGTEXT", Confidence: 0.9, Error: "engine failed"},
	}
	if _, err := Rank(results, DefaultOptions()); !errors.Is(err, ErrNoCandidate) {
		t.Errorf("Expected ErrNoCandidate, got %v", err)
	}
	if _, err := Rank(nil, DefaultOptions()); !errors.Is(err, ErrNoCandidate) {
		t.Errorf("Expected ErrNoCandidate for empty input, got %v", err)
	}
}

func BenchmarkRank(b *testing.B) {
	results := make([]types.RecognitionResult, 44)
	for i := range results {
		results[i] = types.RecognitionResult{Text: "KA01AB1234", Confidence: float64(i%7) / 7, Seq: i}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Rank(results, DefaultOptions())
	}
}
