package scoring

import (
	"math"
	"testing"
)

func TestRankFor(t *testing.T) {
	tests := []struct {
		name     string
		total    float64
		expected string
	}{
		{"Perfect score", 100, "SSS"},
		{"SSS lower bound", 95, "SSS"},
		{"Just below SSS", 94.9, "SS"},
		{"SS lower bound", 88, "SS"},
		{"Just below SS", 87.9, "S"},
		{"S lower bound", 80, "S"},
		{"A lower bound", 70, "A"},
		{"B lower bound", 60, "B"},
		{"C lower bound", 50, "C"},
		{"Just below C", 49.9, "D"},
		{"D lower bound", 40, "D"},
		{"E lower bound", 30, "E"},
		{"Just below E", 29.9, "F"},
		{"Zero", 0, "F"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RankFor(tt.total); got != tt.expected {
				t.Errorf("RankFor(%v) = %s, expected %s", tt.total, got, tt.expected)
			}
		})
	}
}

func TestComputeDefaultWeights(t *testing.T) {
	in := Inputs{Grammar: 80, Vocabulary: 60, Keyword: 0.9, Structural: 0.5}

	result := Compute(in, DefaultWeights())

	// effectiveness = (0.9*0.5 + 0.5*0.5) * 100 = 70
	if !closeTo(result.Effectiveness, 70) {
		t.Errorf("Effectiveness = %v, expected 70", result.Effectiveness)
	}
	// total = (80 + 60 + 70) / 3 = 70
	if !closeTo(result.Total, 70) {
		t.Errorf("Total = %v, expected 70", result.Total)
	}
	if result.Rank != "A" {
		t.Errorf("Rank = %s, expected A", result.Rank)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	in := Inputs{Grammar: 73.2, Vocabulary: 41.7, Keyword: 0.63, Structural: 0.81}
	w := Weights{Lambda: 0.4, Grammar: 2, Vocabulary: 1, Effectiveness: 3}

	first := Compute(in, w)
	second := Compute(in, w)

	if first != second {
		t.Errorf("Compute is not deterministic: %+v vs %+v", first, second)
	}
}

func TestComputeLambdaBlend(t *testing.T) {
	in := Inputs{Keyword: 0.8, Structural: 0.2}

	tests := []struct {
		name     string
		lambda   float64
		expected float64
	}{
		{"Content only", 1, 80},
		{"Structural only", 0, 20},
		{"Even blend", 0.5, 50},
		{"Lambda above range is clamped", 2, 80},
		{"Lambda below range is clamped", -1, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := DefaultWeights()
			w.Lambda = tt.lambda
			result := Compute(in, w)
			if !closeTo(result.Effectiveness, tt.expected) {
				t.Errorf("Effectiveness = %v, expected %v", result.Effectiveness, tt.expected)
			}
		})
	}
}

func TestComputeClampsInputs(t *testing.T) {
	in := Inputs{Grammar: 150, Vocabulary: -20, Keyword: 1.5, Structural: -0.5}

	result := Compute(in, DefaultWeights())

	if result.Grammar != 100 {
		t.Errorf("Grammar = %v, expected clamp to 100", result.Grammar)
	}
	if result.Vocabulary != 0 {
		t.Errorf("Vocabulary = %v, expected clamp to 0", result.Vocabulary)
	}
	if result.Keyword != 1 {
		t.Errorf("Keyword = %v, expected clamp to 1", result.Keyword)
	}
	if result.Structural != 0 {
		t.Errorf("Structural = %v, expected clamp to 0", result.Structural)
	}
	if result.Total < 0 || result.Total > 100 {
		t.Errorf("Total = %v, expected within [0, 100]", result.Total)
	}
}

func TestComputeCustomWeights(t *testing.T) {
	in := Inputs{Grammar: 80, Vocabulary: 60, Keyword: 0.9, Structural: 0.5}
	w := Weights{Lambda: 0.5, Grammar: 2, Vocabulary: 1, Effectiveness: 1}

	result := Compute(in, w)

	// total = (80*2 + 60*1 + 70*1) / 4 = 72.5
	if !closeTo(result.Total, 72.5) {
		t.Errorf("Total = %v, expected 72.5", result.Total)
	}
}

func TestComputeZeroWeightsFallBackToEqual(t *testing.T) {
	in := Inputs{Grammar: 90, Vocabulary: 60, Keyword: 0.3, Structural: 0.3}
	w := Weights{Lambda: 0.5}

	result := Compute(in, w)

	// effectiveness = 30, total = (90 + 60 + 30) / 3 = 60
	if !closeTo(result.Total, 60) {
		t.Errorf("Total = %v, expected 60", result.Total)
	}
}

func TestGrammarScore(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		corrected string
		expected  float64
	}{
		{
			name:      "Identical sentences",
			raw:       "The cat sat on the mat",
			corrected: "The cat sat on the mat",
			expected:  100,
		},
		{
			name:      "Case differences are ignored",
			raw:       "the cat sat on the mat",
			corrected: "The Cat Sat On The Mat",
			expected:  100,
		},
		{
			name:      "One correction in five tokens",
			raw:       "the cat sit on mat",
			corrected: "the cat sits on mat",
			expected:  80,
		},
		{
			name:      "Both empty",
			raw:       "",
			corrected: "",
			expected:  0,
		},
		{
			name:      "Everything replaced",
			raw:       "alpha beta",
			corrected: "gamma delta",
			expected:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GrammarScore(tt.raw, tt.corrected); !closeTo(got, tt.expected) {
				t.Errorf("GrammarScore(%q, %q) = %v, expected %v", tt.raw, tt.corrected, got, tt.expected)
			}
		})
	}
}

func TestVocabularyScore(t *testing.T) {
	tests := []struct {
		name     string
		sentence string
		expected float64
	}{
		{
			name:     "Empty sentence",
			sentence: "",
			expected: 0,
		},
		{
			name:     "Eight distinct tokens earn full marks",
			sentence: "a girl in red walks her brown dog",
			expected: 100,
		},
		{
			name:     "Four distinct tokens are length damped",
			sentence: "red car drives fast",
			expected: 50,
		},
		{
			name:     "Repetition lowers variety",
			sentence: "the the the the the the the the",
			expected: 12.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VocabularyScore(tt.sentence); !closeTo(got, tt.expected) {
				t.Errorf("VocabularyScore(%q) = %v, expected %v", tt.sentence, got, tt.expected)
			}
		})
	}
}

func closeTo(got, expected float64) bool {
	return math.Abs(got-expected) < 1e-9
}
