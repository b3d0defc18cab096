package quality

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Tuning holds the heuristic parameters a deployment may override. The zero
// value is not valid; use [DefaultTuning].
type Tuning struct {
	// DuplicateWindow is the number of prior segments compared for
	// duplicate detection.
	DuplicateWindow int
	// DuplicateThreshold is the similarity ratio above which a prior
	// segment counts as a duplicate.
	DuplicateThreshold float64
}

// DefaultTuning returns the production defaults.
func DefaultTuning() Tuning {
	return Tuning{
		DuplicateWindow:    DefaultDuplicateWindow,
		DuplicateThreshold: DefaultDuplicateThreshold,
	}
}

// session is the rolling state for one transcription session. Access is
// guarded by the owning Processor's mutex.
type session struct {
	audioBytes  int64
	texts       []string // every transcript segment, arrival order
	timeline    []Metrics
	firstMetric time.Time
	lastSeen    time.Time
}

// Processor scores live transcript segments and maintains per-session quality
// timelines. Sessions are created lazily on first use and evicted explicitly
// via [Processor.EvictIdle]; there is no background goroutine.
//
// All methods are safe for concurrent use across sessions. Segment ordering
// within a session is the caller's responsibility (one writer per session).
type Processor struct {
	mu       sync.Mutex
	sessions map[string]*session
	tuning   Tuning
	now      func() time.Time
	log      *slog.Logger
}

// Option configures a [Processor].
type Option func(*Processor)

// WithTuning overrides the default heuristic parameters. Non-positive fields
// are left at their defaults.
func WithTuning(t Tuning) Option {
	return func(p *Processor) {
		if t.DuplicateWindow > 0 {
			p.tuning.DuplicateWindow = t.DuplicateWindow
		}
		if t.DuplicateThreshold > 0 {
			p.tuning.DuplicateThreshold = t.DuplicateThreshold
		}
	}
}

// WithClock replaces the wall clock, for tests that need deterministic
// timestamps and rate calculations.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(p *Processor) { p.log = log }
}

// NewProcessor creates a Processor with default tuning.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		sessions: make(map[string]*session),
		tuning:   DefaultTuning(),
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetTuning hot-applies new heuristic parameters, typically from a config
// reload. Only subsequent segments are affected; recorded metrics are never
// rewritten.
func (p *Processor) SetTuning(t Tuning) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t.DuplicateWindow > 0 {
		p.tuning.DuplicateWindow = t.DuplicateWindow
	}
	if t.DuplicateThreshold > 0 {
		p.tuning.DuplicateThreshold = t.DuplicateThreshold
	}
}

// session returns the state for sessionID, creating it on first use.
// Callers must hold p.mu.
func (p *Processor) session(sessionID string) *session {
	s, ok := p.sessions[sessionID]
	if !ok {
		s = &session{}
		p.sessions[sessionID] = s
	}
	s.lastSeen = p.now()
	return s
}

// StoreAudio accumulates an audio chunk for sessionID. Only the byte count is
// retained; audio content plays no role in quality scoring. Zero-length
// chunks are accepted and still refresh the session's idle timer.
func (p *Processor) StoreAudio(sessionID string, chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session(sessionID).audioBytes += int64(len(chunk))
}

// StoreTranscript records a transcript segment for sessionID, scores it
// against the session's recent history, and returns the resulting metrics.
// The segment itself becomes part of the history for subsequent calls.
//
// Malformed input never fails: confidence is clamped into [0, 1] and empty
// text is scored (as zero quality) rather than rejected.
func (p *Processor) StoreTranscript(sessionID, text string, confidence float64) Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.session(sessionID)
	now := p.now()
	confidence = clampConfidence(confidence)

	window := s.texts
	if len(window) > p.tuning.DuplicateWindow {
		window = window[len(window)-p.tuning.DuplicateWindow:]
	}

	repetitions, immediate := CountRepetitions(text)
	dupRatio := duplicateRatio(text, window, p.tuning.DuplicateThreshold)

	wordCount := len(strings.Fields(text))
	wer := estimateWER(confidence, immediate, wordCount)

	if s.firstMetric.IsZero() {
		s.firstMetric = now
	}
	elapsed := now.Sub(s.firstMetric).Seconds()
	wpm := 60.0 * float64(wordCount) / max(elapsed, 1.0)

	m := Metrics{
		SessionID:          sessionID,
		Timestamp:          now,
		WERScore:           wer,
		Confidence:         confidence,
		DuplicateRatio:     dupRatio,
		RepetitivePatterns: repetitions,
		TextLength:         len(text),
		WordsPerMinute:     wpm,
		OverallQuality:     compositeQuality(text, confidence, wer, dupRatio, repetitions),
	}

	s.texts = append(s.texts, text)
	s.timeline = append(s.timeline, m)

	if m.OverallQuality < 0.5 {
		p.log.Warn("low quality segment",
			"session_id", sessionID,
			"quality", m.OverallQuality,
			"wer", m.WERScore,
			"repetitions", m.RepetitivePatterns)
	}
	return m
}

// SessionReport builds the quality report for sessionID. It returns
// [ErrNoData] if the session is unknown or has no recorded transcript
// metrics.
func (p *Processor) SessionReport(sessionID string) (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reportLocked(sessionID)
}

func (p *Processor) reportLocked(sessionID string) (*Report, error) {
	s, ok := p.sessions[sessionID]
	if !ok || len(s.timeline) == 0 {
		return nil, ErrNoData
	}

	var sum Summary
	sum.TotalSegments = len(s.timeline)
	sum.TotalAudioBytes = s.audioBytes
	for _, m := range s.timeline {
		sum.AvgQuality += m.OverallQuality
		sum.AvgWER += m.WERScore
		sum.AvgConfidence += m.Confidence
		sum.TotalRepetitions += m.RepetitivePatterns
	}
	n := float64(len(s.timeline))
	sum.AvgQuality /= n
	sum.AvgWER /= n
	sum.AvgConfidence /= n

	sum.FullTranscript = strings.Join(s.texts, " ")
	sum.TotalWords = len(strings.Fields(sum.FullTranscript))

	timeline := make([]Metrics, len(s.timeline))
	copy(timeline, s.timeline)

	return &Report{
		SessionID:   sessionID,
		GeneratedAt: p.now(),
		Summary:     sum,
		Timeline:    timeline,
	}, nil
}

// SessionIDs returns the IDs of all live sessions in lexical order.
func (p *Processor) SessionIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ActiveSessions returns the number of live sessions.
func (p *Processor) ActiveSessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// EvictIdle removes every session that has been idle for at least ttl and
// returns the number evicted. Callers run this on a timer; sessions are never
// evicted implicitly.
func (p *Processor) EvictIdle(ttl time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-ttl)
	evicted := 0
	for id, s := range p.sessions {
		if s.lastSeen.Before(cutoff) || s.lastSeen.Equal(cutoff) {
			delete(p.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		p.log.Info("evicted idle sessions", "count", evicted, "ttl", ttl)
	}
	return evicted
}
