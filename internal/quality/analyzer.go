package quality

import (
	"math"
	"strings"
	"unicode"

	"github.com/minahq/mina/internal/textsim"
)

// Heuristic constants. These were tuned against live meeting traffic; the
// composite weights must sum to 1.0.
const (
	// DefaultDuplicateWindow is how many prior segments a new segment is
	// compared against for duplicate detection.
	DefaultDuplicateWindow = 5

	// DefaultDuplicateThreshold is the similarity ratio above which a prior
	// segment counts as a duplicate of the current one.
	DefaultDuplicateThreshold = 0.8

	// shortWordMaxLen bounds the "short word" repetition pattern: filler
	// artifacts like "a a a" or "the the the".
	shortWordMaxLen = 3

	// Estimated-WER components.
	werRepeatPenalty    = 0.2 // per immediate word repeat
	werRepeatPenaltyCap = 0.5
	werLengthPenalty    = 0.1 // segment suspiciously short or long
	werMinWords         = 3
	werMaxWords         = 50

	// Composite quality weights.
	weightConfidence  = 0.4
	weightWER         = 0.3
	weightDuplicates  = 0.2
	weightRepetitions = 0.1

	// repetitionSaturation is the repetition count at which the repetition
	// term of the composite bottoms out.
	repetitionSaturation = 5.0
)

// tokenize splits text into lowercase word tokens, trimming any leading and
// trailing punctuation from each token. Tokens that are pure punctuation are
// dropped.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// CountRepetitions scans text for transcription repetition artifacts and
// returns the total count across all three patterns plus the count of the
// immediate-repeat pattern alone (which feeds the WER estimate).
//
// The three patterns, matched case-insensitively and non-overlapping within
// each pattern:
//
//  1. a word immediately repeated once ("you you")
//  2. a word appearing three times in a row ("go go go")
//  3. a short word (1-3 characters) appearing three times in a row
//
// A triple of a short word intentionally counts under both pattern 2 and
// pattern 3, and its first two words also match pattern 1: the total is the
// sum of independent per-pattern counts.
func CountRepetitions(text string) (total, immediate int) {
	tokens := tokenize(text)

	// Pattern 1: immediate single repeat, advance past each match.
	for i := 0; i+1 < len(tokens); {
		if tokens[i] == tokens[i+1] {
			immediate++
			i += 2
		} else {
			i++
		}
	}

	// Patterns 2 and 3: triples, advance past each match per pattern.
	var triples, shortTriples int
	for i := 0; i+2 < len(tokens); {
		if tokens[i] == tokens[i+1] && tokens[i] == tokens[i+2] {
			triples++
			i += 3
		} else {
			i++
		}
	}
	for i := 0; i+2 < len(tokens); {
		if len(tokens[i]) <= shortWordMaxLen &&
			tokens[i] == tokens[i+1] && tokens[i] == tokens[i+2] {
			shortTriples++
			i += 3
		} else {
			i++
		}
	}

	return immediate + triples + shortTriples, immediate
}

// duplicateRatio compares text against the window of prior segment texts and
// returns the fraction that exceed threshold similarity. An empty window
// yields 0.
func duplicateRatio(text string, window []string, threshold float64) float64 {
	if len(window) == 0 {
		return 0
	}
	dups := 0
	for _, prior := range window {
		if textsim.Ratio(text, prior) > threshold {
			dups++
		}
	}
	return float64(dups) / float64(len(window))
}

// estimateWER derives a word error rate estimate from the provider confidence
// and observed artifacts. The result is capped at 1.0.
func estimateWER(confidence float64, immediateRepeats, wordCount int) float64 {
	wer := 1.0 - confidence
	wer += math.Min(werRepeatPenalty*float64(immediateRepeats), werRepeatPenaltyCap)
	if wordCount < werMinWords || wordCount > werMaxWords {
		wer += werLengthPenalty
	}
	return math.Min(wer, 1.0)
}

// compositeQuality blends the individual signals into a single [0, 1] score.
// An empty segment scores 0 regardless of the other signals.
func compositeQuality(text string, confidence, wer, dupRatio float64, repetitions int) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	q := weightConfidence*confidence +
		weightWER*(1.0-wer) +
		weightDuplicates*(1.0-dupRatio) +
		weightRepetitions*(1.0-math.Min(float64(repetitions)/repetitionSaturation, 1.0))
	return math.Max(0, math.Min(1, q))
}

// clampConfidence sanitizes caller-supplied confidence values. NaN and
// out-of-range inputs are coerced into [0, 1] rather than rejected.
func clampConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}
