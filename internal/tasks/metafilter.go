package tasks

import "strings"

// MetaFilter decides whether a candidate is meta-commentary about the meeting
// or its tooling rather than a real action item. It receives the full
// transcript for context and returns true when the candidate should be
// dropped. Implementations must be conservative: when in doubt, keep.
type MetaFilter func(transcript string, c CandidateTask) bool

// metaMarkers are phrases that indicate the "task" is about running the
// meeting or the transcription itself. Matched case-insensitively against
// title and evidence quote.
var metaMarkers = []string{
	"this meeting",
	"the meeting itself",
	"the transcript",
	"this transcript",
	"the transcription",
	"the recording",
	"recording of this",
	"taking notes",
	"note-taking",
	"end the call",
	"join the call",
	"mute",
	"unmute",
	"screen share",
	"can everyone hear",
	"test the microphone",
}

// DefaultMetaFilter drops candidates whose title or evidence quote contains a
// known meta-commentary marker. Anything without a clear marker is kept.
func DefaultMetaFilter(transcript string, c CandidateTask) bool {
	title := strings.ToLower(c.Title)
	quote := strings.ToLower(c.EvidenceQuote)
	for _, marker := range metaMarkers {
		if strings.Contains(title, marker) || strings.Contains(quote, marker) {
			return true
		}
	}
	return false
}

// KeepAllFilter never drops a candidate. Useful for callers that run their
// own pre-filtering or want raw resolver output.
func KeepAllFilter(string, CandidateTask) bool { return false }
