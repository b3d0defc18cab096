package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/minahq/mina/internal/insights"
	"github.com/minahq/mina/internal/observe"
	"github.com/minahq/mina/internal/quality"
	"github.com/minahq/mina/internal/tasks"
	"github.com/minahq/mina/pkg/provider/llm"
	llmmock "github.com/minahq/mina/pkg/provider/llm/mock"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

const extractionJSON = `{"tasks": [
	{"title": "Send the notes", "evidence_quote": "I'll send the notes", "owner": "sam", "priority": "medium", "due": "", "confidence_score": 0.8}
]}`

// newTestServer builds a Server with an isolated metrics instance and, when
// provider is non-nil, a full insights engine in front of it.
func newTestServer(t *testing.T, provider *llmmock.Provider) *Server {
	t.Helper()

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	var engine *insights.Engine
	if provider != nil {
		engine = insights.NewEngine(tasks.NewExtractor(provider), tasks.NewResolver())
	}

	return NewServer(quality.NewProcessor(), engine, WithMetrics(m))
}

// conf builds the confidence pointer for a transcript frame.
func conf(v float64) *float64 { return &v }

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// roundTrip sends one frame over conn and reads the next server frame.
func roundTrip(t *testing.T, conn *websocket.Conn, frame clientFrame) serverFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	data, _ := json.Marshal(frame)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	_, resp, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var out serverFrame
	if err := json.Unmarshal(resp, &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return out
}

// ── Frame handling ─────────────────────────────────────────────────────────────

func TestHandleFrame_MissingSessionID(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	resp, reply := s.handleFrame(context.Background(), clientFrame{Type: frameTranscript, Text: "hi"})
	if !reply {
		t.Fatal("expected a reply frame")
	}
	if resp.Type != frameError || !strings.Contains(resp.Error, "session_id") {
		t.Errorf("response = %+v, want session_id error", resp)
	}
}

func TestHandleFrame_UnknownType(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	resp, reply := s.handleFrame(context.Background(), clientFrame{Type: "bogus", SessionID: "s1"})
	if !reply || resp.Type != frameError {
		t.Errorf("response = %+v, want error frame", resp)
	}
}

func TestHandleFrame_AudioHasNoReply(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	chunk := base64.StdEncoding.EncodeToString([]byte("pcm-bytes"))
	_, reply := s.handleFrame(context.Background(), clientFrame{
		Type: frameAudio, SessionID: "s1", Audio: chunk,
	})
	if reply {
		t.Error("audio frame should not produce a reply")
	}

	// The bytes must still land in the session.
	s.handleFrame(context.Background(), clientFrame{
		Type: frameTranscript, SessionID: "s1", Text: "hello there", Confidence: conf(0.9),
	})
	report, err := s.processor.SessionReport("s1")
	if err != nil {
		t.Fatalf("SessionReport: %v", err)
	}
	if report.Summary.TotalAudioBytes != int64(len("pcm-bytes")) {
		t.Errorf("TotalAudioBytes = %d, want %d", report.Summary.TotalAudioBytes, len("pcm-bytes"))
	}
}

func TestHandleFrame_InvalidBase64Audio(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	resp, reply := s.handleFrame(context.Background(), clientFrame{
		Type: frameAudio, SessionID: "s1", Audio: "not base64!!",
	})
	if !reply || resp.Type != frameError {
		t.Errorf("response = %+v, want error frame", resp)
	}
}

func TestHandleFrame_TranscriptReturnsMetrics(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	resp, reply := s.handleFrame(context.Background(), clientFrame{
		Type: frameTranscript, SessionID: "s1", Text: "you you are right", Confidence: conf(0.9),
	})
	if !reply {
		t.Fatal("expected a metrics frame")
	}
	if resp.Type != frameMetrics || resp.Metrics == nil {
		t.Fatalf("response = %+v, want metrics frame", resp)
	}
	if resp.Metrics.RepetitivePatterns < 1 {
		t.Errorf("RepetitivePatterns = %d, want >= 1", resp.Metrics.RepetitivePatterns)
	}
	if resp.Metrics.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", resp.Metrics.Confidence)
	}
}

func TestHandleFrame_OmittedConfidenceDefaultsToOne(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	// Decode from the wire form so the absent field is exercised end to end.
	var frame clientFrame
	raw := `{"type": "transcript", "session_id": "s1", "text": "a perfectly clean segment"}`
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	resp, reply := s.handleFrame(context.Background(), frame)
	if !reply || resp.Metrics == nil {
		t.Fatalf("response = %+v, want metrics frame", resp)
	}
	if resp.Metrics.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0 when the field is omitted", resp.Metrics.Confidence)
	}
	if resp.Metrics.WERScore >= 0.5 {
		t.Errorf("WERScore = %v, clean segment without confidence should not be penalized", resp.Metrics.WERScore)
	}
}

func TestHandleFrame_ExplicitZeroConfidenceHonored(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	resp, reply := s.handleFrame(context.Background(), clientFrame{
		Type: frameTranscript, SessionID: "s1", Text: "barely audible mumbling", Confidence: conf(0),
	})
	if !reply || resp.Metrics == nil {
		t.Fatalf("response = %+v, want metrics frame", resp)
	}
	if resp.Metrics.Confidence != 0 {
		t.Errorf("Confidence = %v, want explicit 0 to be kept", resp.Metrics.Confidence)
	}
}

func TestHandleFrame_ReportForUnknownSession(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	resp, reply := s.handleFrame(context.Background(), clientFrame{
		Type: frameReport, SessionID: "ghost",
	})
	if !reply || resp.Type != frameError {
		t.Errorf("response = %+v, want error frame", resp)
	}
}

func TestHandleFrame_FinalizeWithEngine(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: extractionJSON},
	}
	s := newTestServer(t, provider)
	ctx := context.Background()

	s.handleFrame(ctx, clientFrame{Type: frameTranscript, SessionID: "s1", Text: "please send the notes", Confidence: conf(0.95)})

	resp, reply := s.handleFrame(ctx, clientFrame{Type: frameFinalize, SessionID: "s1"})
	if !reply {
		t.Fatal("expected a tasks frame")
	}
	if resp.Type != frameTasks {
		t.Fatalf("response type = %q, want %q", resp.Type, frameTasks)
	}
	if resp.Report == nil || resp.Report.Summary.TotalSegments != 1 {
		t.Errorf("report = %+v, want 1 segment", resp.Report)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].Title != "Send the notes" {
		t.Errorf("tasks = %+v, want the extracted task", resp.Tasks)
	}

	// The extractor must have seen the full transcript.
	if len(provider.CompleteCalls) != 1 {
		t.Fatalf("provider called %d times, want 1", len(provider.CompleteCalls))
	}
}

func TestHandleFrame_FinalizeWithoutEngine(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	ctx := context.Background()

	s.handleFrame(ctx, clientFrame{Type: frameTranscript, SessionID: "s1", Text: "hello world again", Confidence: conf(0.8)})

	resp, _ := s.handleFrame(ctx, clientFrame{Type: frameFinalize, SessionID: "s1"})
	if resp.Type != frameTasks {
		t.Fatalf("response type = %q, want %q", resp.Type, frameTasks)
	}
	if resp.Report == nil {
		t.Error("finalize without engine should still return the report")
	}
	if len(resp.Tasks) != 0 {
		t.Errorf("tasks = %+v, want none without an engine", resp.Tasks)
	}
}

// ── WebSocket round trip ───────────────────────────────────────────────────────

func TestWebSocketRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv)+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	resp := roundTrip(t, conn, clientFrame{
		Type: frameTranscript, SessionID: "ws-1", Text: "testing the connection", Confidence: conf(0.85),
	})
	if resp.Type != frameMetrics || resp.Metrics == nil {
		t.Fatalf("response = %+v, want metrics frame", resp)
	}
	if resp.SessionID != "ws-1" {
		t.Errorf("session_id = %q, want ws-1", resp.SessionID)
	}

	report := roundTrip(t, conn, clientFrame{Type: frameReport, SessionID: "ws-1"})
	if report.Type != frameReport || report.Report == nil {
		t.Fatalf("response = %+v, want report frame", report)
	}
	if report.Report.Summary.FullTranscript != "testing the connection" {
		t.Errorf("FullTranscript = %q", report.Report.Summary.FullTranscript)
	}
}

func TestWebSocketMalformedJSON(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv)+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp serverFrame
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Type != frameError {
		t.Errorf("response = %+v, want error frame", resp)
	}
}

// ── HTTP endpoints ─────────────────────────────────────────────────────────────

func TestHTTPEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	s.handleFrame(context.Background(), clientFrame{
		Type: frameTranscript, SessionID: "h1", Text: "hello", Confidence: conf(0.9),
	})

	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)

	// Health probes.
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}

	// Session listing.
	resp, err := http.Get(srv.URL + "/sessions")
	if err != nil {
		t.Fatalf("GET /sessions: %v", err)
	}
	var sessions struct {
		Sessions []string `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	resp.Body.Close()
	if len(sessions.Sessions) != 1 || sessions.Sessions[0] != "h1" {
		t.Errorf("sessions = %v, want [h1]", sessions.Sessions)
	}
}

func TestExportEndpoint(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	s.handleFrame(context.Background(), clientFrame{
		Type: frameTranscript, SessionID: "e1", Text: "export me", Confidence: conf(0.9),
	})

	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "results.json")
	body := strings.NewReader(`{"path": "` + path + `"}`)
	resp, err := http.Post(srv.URL+"/export", "application/json", body)
	if err != nil {
		t.Fatalf("POST /export: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /export = %d, want 200", resp.StatusCode)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export file: %v", err)
	}
	if !strings.Contains(string(data), `"e1"`) {
		t.Errorf("export file missing session e1: %s", data)
	}
}

func TestExportEndpoint_MissingPath(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/export", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST /export: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("POST /export = %d, want 400", resp.StatusCode)
	}
}
