package ingest

import (
	"github.com/minahq/mina/internal/quality"
	"github.com/minahq/mina/internal/tasks"
)

// Client frame types.
const (
	frameAudio      = "audio"
	frameTranscript = "transcript"
	frameFinalize   = "finalize"
	frameReport     = "report"
)

// Server frame types.
const (
	frameMetrics = "metrics"
	frameTasks   = "tasks"
	frameError   = "error"
)

// clientFrame is a single JSON message received from an ingest client.
type clientFrame struct {
	// Type selects the operation: audio, transcript, finalize, or report.
	Type string `json:"type"`

	// SessionID identifies the transcription session. Required for every
	// frame type.
	SessionID string `json:"session_id"`

	// Audio carries a base64-encoded audio chunk for audio frames.
	Audio string `json:"audio,omitempty"`

	// Text carries the transcribed segment for transcript frames.
	Text string `json:"text,omitempty"`

	// Confidence is the provider-reported transcription confidence for
	// transcript frames, in [0, 1]. A pointer so an omitted field can be
	// told apart from an explicit 0.0; omitted defaults to 1.0.
	Confidence *float64 `json:"confidence,omitempty"`
}

// serverFrame is a single JSON message sent back to an ingest client.
type serverFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`

	// Metrics carries per-segment quality metrics in response to a
	// transcript frame.
	Metrics *quality.Metrics `json:"metrics,omitempty"`

	// Report carries the session summary in response to a report or
	// finalize frame.
	Report *quality.Report `json:"report,omitempty"`

	// Tasks carries the deduplicated action items in response to a
	// finalize frame.
	Tasks []tasks.ResolvedTask `json:"tasks,omitempty"`

	// Error describes why a frame could not be processed.
	Error string `json:"error,omitempty"`
}

// errorFrame builds an error response for the given session.
func errorFrame(sessionID, msg string) serverFrame {
	return serverFrame{Type: frameError, SessionID: sessionID, Error: msg}
}
