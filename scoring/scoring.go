// Package scoring turns the numeric outputs of the interpretation pipeline
// into a multi-dimensional score and rank. Everything here is pure: the
// expensive work (image generation, similarity embedding) happens upstream
// and arrives as already-computed inputs.
package scoring

import (
	"math"
	"strings"
)

// Inputs are the component measurements for one generation.
type Inputs struct {
	Grammar    float64 // 0 to 100
	Vocabulary float64 // 0 to 100
	Keyword    float64 // 0 to 1, content similarity between sentences
	Structural float64 // 0 to 1, SSIM-like similarity between images
}

// Weights control how the components blend into the total. Lambda mixes
// content vs structural similarity into effectiveness; the remaining weights
// blend grammar, vocabulary and effectiveness into the total and are
// normalized before use.
type Weights struct {
	Lambda        float64
	Grammar       float64
	Vocabulary    float64
	Effectiveness float64
}

// DefaultWeights blends content and structural similarity evenly and gives
// the three components equal say in the total.
func DefaultWeights() Weights {
	return Weights{Lambda: 0.5, Grammar: 1, Vocabulary: 1, Effectiveness: 1}
}

// Result is the computed score for one generation.
type Result struct {
	Grammar       float64
	Vocabulary    float64
	Keyword       float64
	Structural    float64
	Effectiveness float64 // 0 to 100
	Total         float64 // 0 to 100
	Rank          string
}

// Compute derives the effectiveness blend, the weighted total and the rank
// from the inputs. Calling it twice with identical arguments yields identical
// results.
func Compute(in Inputs, w Weights) Result {
	lambda := clamp(w.Lambda, 0, 1)
	grammar := clamp(in.Grammar, 0, 100)
	vocabulary := clamp(in.Vocabulary, 0, 100)
	keyword := clamp(in.Keyword, 0, 1)
	structural := clamp(in.Structural, 0, 1)

	effectiveness := (keyword*lambda + structural*(1-lambda)) * 100

	wg, wv, we := w.Grammar, w.Vocabulary, w.Effectiveness
	sum := wg + wv + we
	if sum <= 0 {
		wg, wv, we, sum = 1, 1, 1, 3
	}
	total := clamp((grammar*wg+vocabulary*wv+effectiveness*we)/sum, 0, 100)

	return Result{
		Grammar:       grammar,
		Vocabulary:    vocabulary,
		Keyword:       keyword,
		Structural:    structural,
		Effectiveness: effectiveness,
		Total:         total,
		Rank:          RankFor(total),
	}
}

// RankFor maps a total to its ordinal bucket. Thresholds are inclusive lower
// bounds.
func RankFor(total float64) string {
	switch {
	case total >= 95:
		return "SSS"
	case total >= 88:
		return "SS"
	case total >= 80:
		return "S"
	case total >= 70:
		return "A"
	case total >= 60:
		return "B"
	case total >= 50:
		return "C"
	case total >= 40:
		return "D"
	case total >= 30:
		return "E"
	default:
		return "F"
	}
}

// GrammarScore rates the raw sentence against its AI-corrected form: the
// fewer corrections were needed, the higher the score. Identical sentences
// score 100.
func GrammarScore(raw, corrected string) float64 {
	rawTokens := tokenize(raw)
	correctedTokens := tokenize(corrected)
	if len(rawTokens) == 0 && len(correctedTokens) == 0 {
		return 0
	}

	distance := editDistance(rawTokens, correctedTokens)
	longest := len(rawTokens)
	if len(correctedTokens) > longest {
		longest = len(correctedTokens)
	}
	return clamp((1-float64(distance)/float64(longest))*100, 0, 100)
}

// VocabularyScore rates lexical variety of a sentence: the share of distinct
// tokens, damped for very short sentences.
func VocabularyScore(sentence string) float64 {
	tokens := tokenize(sentence)
	if len(tokens) == 0 {
		return 0
	}

	distinct := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		distinct[strings.ToLower(tok)] = struct{}{}
	}
	variety := float64(len(distinct)) / float64(len(tokens))

	// Sentences shorter than eight tokens cannot earn full marks.
	length := math.Min(float64(len(tokens))/8, 1)
	return clamp(variety*length*100, 0, 100)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('A' <= r && r <= 'Z') && !('0' <= r && r <= '9') && r != '\''
	})
}

// editDistance is the Levenshtein distance over token sequences.
func editDistance(a, b []string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if strings.EqualFold(a[i-1], b[j-1]) {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
