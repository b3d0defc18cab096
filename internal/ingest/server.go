// Package ingest exposes the live transcription pipeline over WebSocket.
//
// Clients connect to /ws and exchange JSON frames. Audio chunks and
// transcript segments stream in; per-segment quality metrics stream back
// immediately. A finalize frame closes out a session: the full transcript is
// run through task extraction and deduplication and the resulting action
// items are returned alongside the session quality report.
//
// The same mux serves /healthz, /readyz and Prometheus /metrics.
package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minahq/mina/internal/health"
	"github.com/minahq/mina/internal/insights"
	"github.com/minahq/mina/internal/observe"
	"github.com/minahq/mina/internal/quality"
)

// writeTimeout bounds a single outgoing frame write.
const writeTimeout = 10 * time.Second

// Server handles ingest WebSocket connections and the operational HTTP
// endpoints. Construct with [NewServer].
type Server struct {
	processor *quality.Processor
	engine    *insights.Engine
	metrics   *observe.Metrics
	log       *slog.Logger
	now       func() time.Time
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates an ingest server. engine may be nil, in which case
// finalize frames return only the quality report without task extraction.
func NewServer(processor *quality.Processor, engine *insights.Engine, opts ...Option) *Server {
	s := &Server{
		processor: processor,
		engine:    engine,
		log:       slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Routes returns the full HTTP mux: the WebSocket ingest endpoint, health
// probes, Prometheus metrics, and the JSON export trigger.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.HandleFunc("POST /export", s.handleExport)
	mux.Handle("GET /metrics", promhttp.Handler())

	hh := health.NewWithOptions(nil, health.WithSessionCount(s.processor.ActiveSessions))
	hh.Register(mux)
	return mux
}

// ── WebSocket ingest ───────────────────────────────────────────────────────────

// handleWS accepts a WebSocket connection and runs its read loop until the
// client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("ingest: websocket accept failed", "error", err)
		return
	}

	connID := uuid.NewString()
	ctx := r.Context()

	s.metrics.ActiveConnections.Add(ctx, 1)
	s.log.Info("ingest: client connected", "conn_id", connID)

	defer func() {
		s.metrics.ActiveConnections.Add(ctx, -1)
		conn.Close(websocket.StatusNormalClosure, "done")
		s.log.Info("ingest: client disconnected", "conn_id", connID)
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
				return
			}
			s.log.Debug("ingest: read ended", "conn_id", connID, "error", err)
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.writeFrame(ctx, conn, errorFrame("", "malformed frame: not valid JSON"))
			continue
		}

		resp, reply := s.handleFrame(ctx, frame)
		if reply {
			s.writeFrame(ctx, conn, resp)
		}
	}
}

// handleFrame processes one client frame and returns the response frame, if
// any. It never returns an error: malformed input produces an error frame and
// audio frames produce no reply at all.
func (s *Server) handleFrame(ctx context.Context, frame clientFrame) (serverFrame, bool) {
	if frame.SessionID == "" {
		return errorFrame("", "session_id is required"), true
	}

	switch frame.Type {
	case frameAudio:
		chunk, err := base64.StdEncoding.DecodeString(frame.Audio)
		if err != nil {
			return errorFrame(frame.SessionID, "audio is not valid base64"), true
		}
		s.processor.StoreAudio(frame.SessionID, chunk)
		return serverFrame{}, false

	case frameTranscript:
		// Absent confidence means the recognizer did not report one, not
		// zero confidence.
		confidence := 1.0
		if frame.Confidence != nil {
			confidence = *frame.Confidence
		}
		m := s.processor.StoreTranscript(frame.SessionID, frame.Text, confidence)
		s.metrics.RecordSegment(ctx, m.OverallQuality)
		return serverFrame{Type: frameMetrics, SessionID: frame.SessionID, Metrics: &m}, true

	case frameReport:
		report, err := s.processor.SessionReport(frame.SessionID)
		if err != nil {
			return errorFrame(frame.SessionID, err.Error()), true
		}
		return serverFrame{Type: frameReport, SessionID: frame.SessionID, Report: report}, true

	case frameFinalize:
		return s.finalize(ctx, frame.SessionID), true

	default:
		return errorFrame(frame.SessionID, "unknown frame type "+frame.Type), true
	}
}

// finalize builds the session report and, when an insights engine is
// configured, extracts and deduplicates action items from the full
// transcript.
func (s *Server) finalize(ctx context.Context, sessionID string) serverFrame {
	ctx, span := observe.StartSessionSpan(ctx, "ingest.finalize", sessionID)
	defer span.End()

	report, err := s.processor.SessionReport(sessionID)
	if err != nil {
		return errorFrame(sessionID, err.Error())
	}

	resp := serverFrame{Type: frameTasks, SessionID: sessionID, Report: report}
	if s.engine == nil {
		resp.Tasks = nil
		return resp
	}

	start := s.now()
	resolved, candidates := s.engine.Finalize(ctx, sessionID, report.Summary.FullTranscript)
	s.metrics.RecordExtraction(ctx, candidates, len(resolved), s.now().Sub(start).Seconds())

	resp.Tasks = resolved
	return resp
}

// writeFrame marshals frame and writes it as a text message, bounded by
// [writeTimeout].
func (s *Server) writeFrame(ctx context.Context, conn *websocket.Conn, frame serverFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.log.Error("ingest: marshal frame", "error", err)
		return
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		s.log.Debug("ingest: write failed", "error", err)
	}
}

// ── Operational HTTP endpoints ─────────────────────────────────────────────────

// handleSessions lists the IDs of sessions currently held by the processor.
func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": s.processor.SessionIDs(),
	})
}

// exportRequest is the body of POST /export.
type exportRequest struct {
	Path string `json:"path"`
}

// handleExport writes all session reports to a JSON file on the server's
// filesystem.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path is required"})
		return
	}

	if err := s.processor.ExportResults(req.Path); err != nil {
		s.log.Error("ingest: export failed", "path", req.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "path": req.Path})
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, context.Canceled) {
		slog.Debug("ingest: write response", "error", err)
	}
}
