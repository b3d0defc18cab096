// Package tasks implements action-item extraction and deduplication over
// finalized meeting transcripts.
//
// Extraction (the [Extractor]) asks an LLM for candidate tasks and degrades
// to an empty candidate list on any failure. Resolution (the [Resolver]) is a
// pure function over the candidate list: it filters meta-commentary, clusters
// near-duplicate titles, and keeps the strongest candidate per cluster.
package tasks

// Priority is a candidate task's urgency as judged by the extractor.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is one of the known priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// CandidateTask is a raw extracted action item, prior to deduplication.
type CandidateTask struct {
	// Title is the short action statement, e.g. "Send the quarterly report".
	Title string `json:"title"`
	// EvidenceQuote is the transcript excerpt the task was derived from.
	EvidenceQuote string `json:"evidence_quote"`
	// Owner is the responsible person if one was named, otherwise empty.
	Owner string `json:"owner"`
	// Priority is high, medium or low.
	Priority Priority `json:"priority"`
	// Due is a natural-language due hint ("by Friday"), otherwise empty.
	Due string `json:"due"`
	// ConfidenceScore in [0, 1] is the extractor's certainty that this is
	// a real actionable item.
	ConfidenceScore float64 `json:"confidence_score"`
}

// ResolvedTask is a candidate that survived deduplication.
type ResolvedTask struct {
	CandidateTask
}
