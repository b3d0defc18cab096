// Package textsim provides the normalized string similarity primitives shared
// by the quality processor and the task deduplication engine.
//
// Similarity is expressed as a ratio in [0, 1]: identical strings score 1.0
// and completely unrelated strings score close to 0. The ratio is derived
// from the Levenshtein edit distance normalized by the longer input, which
// keeps the score stable across short and long inputs. Both the duplicate
// detection threshold (0.8) and the task clustering threshold (0.70) were
// tuned against this metric; callers compare against thresholds and must not
// depend on exact intermediate values.
package textsim

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// Ratio returns the normalized similarity of a and b in [0, 1].
// Comparison is case-insensitive. Two empty strings are identical (1.0);
// an empty string versus a non-empty one scores 0.
func Ratio(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		return 1.0
	}

	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1.0
	}

	dist := matchr.Levenshtein(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

// NormalizeTitle canonicalizes a task title for similarity comparison:
// lowercased, punctuation removed, runs of whitespace collapsed to a single
// space, leading and trailing whitespace trimmed.
//
// "Book the meeting-room!" and "book the meeting room" normalize identically.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))

	lastSpace := true // swallow leading whitespace
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// TitleRatio is [Ratio] applied to [NormalizeTitle]d inputs. It is the
// comparison used for task clustering, where punctuation and casing carry
// no signal.
func TitleRatio(a, b string) float64 {
	return Ratio(NormalizeTitle(a), NormalizeTitle(b))
}
