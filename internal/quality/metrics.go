// Package quality implements the live transcription quality processor.
//
// The processor keeps a small amount of rolling state per session (recent
// transcript texts, accumulated audio size, the metric timeline) and scores
// every incoming transcript segment without any ground-truth reference.
// Scores are heuristic by construction: the word error rate is an estimate
// derived from the provider's own confidence and observed repetition
// artifacts, not a measurement.
package quality

import (
	"errors"
	"time"
)

// ErrNoData is returned by [Processor.SessionReport] when the session has no
// recorded transcript metrics. A session that only received audio chunks is
// still "no data" for reporting purposes.
var ErrNoData = errors.New("quality: no transcript data recorded for session")

// Metrics is the quality assessment of a single transcript segment.
type Metrics struct {
	SessionID          string    `json:"session_id"`
	Timestamp          time.Time `json:"timestamp"`
	WERScore           float64   `json:"wer_score"`
	Confidence         float64   `json:"confidence"`
	DuplicateRatio     float64   `json:"duplicate_ratio"`
	RepetitivePatterns int       `json:"repetitive_patterns"`
	TextLength         int       `json:"text_length"`
	WordsPerMinute     float64   `json:"words_per_minute"`
	OverallQuality     float64   `json:"overall_quality"`
}

// Summary aggregates a session's metric timeline.
type Summary struct {
	TotalSegments    int     `json:"total_segments"`
	TotalWords       int     `json:"total_words"`
	TotalAudioBytes  int64   `json:"total_audio_bytes"`
	AvgQuality       float64 `json:"avg_quality"`
	AvgWER           float64 `json:"avg_wer"`
	AvgConfidence    float64 `json:"avg_confidence"`
	TotalRepetitions int     `json:"total_repetitions"`
	FullTranscript   string  `json:"full_transcript"`
}

// Report is the per-session quality report: the aggregate summary plus the
// full per-segment timeline in arrival order.
type Report struct {
	SessionID   string    `json:"session_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Summary     Summary   `json:"summary"`
	Timeline    []Metrics `json:"timeline"`
}
