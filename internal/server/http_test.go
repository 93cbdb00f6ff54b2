package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Escorpio024/scribe-ia-aurora/internal/audio"
	"github.com/Escorpio024/scribe-ia-aurora/internal/collab"
	"github.com/Escorpio024/scribe-ia-aurora/internal/config"
	"github.com/Escorpio024/scribe-ia-aurora/internal/metrics"
	"github.com/Escorpio024/scribe-ia-aurora/internal/protocol"
	"github.com/Escorpio024/scribe-ia-aurora/internal/stream"
)

// fakeUploader records uploads and answers with a canned transcript
type fakeUploader struct {
	err     error
	uploads []string
	sizes   []int
}

func (f *fakeUploader) Upload(_ context.Context, encounterID string, wav *audio.EncodedAudio) (*collab.UploadResult, error) {
	f.uploads = append(f.uploads, encounterID)
	f.sizes = append(f.sizes, wav.Len())
	if f.err != nil {
		return nil, f.err
	}
	return &collab.UploadResult{
		EncounterID: encounterID,
		Transcript:  []collab.Turn{{Speaker: "paciente", Text: "Me duele la cabeza"}},
		StoredWAV:   "/data/" + encounterID + ".wav",
	}, nil
}

type testServer struct {
	*httptest.Server
	h        *HTTPServer
	metrics  *metrics.Metrics
	uploader *fakeUploader
}

func newTestServer(t *testing.T, mutate func(c *config.Config)) *testServer {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	sessions := stream.NewManager(logger, stream.ManagerConfig{MaxSessions: cfg.Server.MaxCaptureSessions}, m)
	t.Cleanup(sessions.Stop)

	up := &fakeUploader{}
	h := NewHTTPServer(cfg, logger, sessions, up, m, reg)
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, h: h, metrics: m, uploader: up}
}

func (s *testServer) post(t *testing.T, path, body string) (int, map[string]json.RawMessage) {
	t.Helper()
	resp, err := http.Post(s.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	var out map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response of %s: %v", path, err)
	}
	return resp.StatusCode, out
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	resp, err := http.Get(s.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(s.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "scribe_http_requests_total") {
		t.Errorf("Expected http request metric in /metrics output")
	}

	if got := testutil.ToFloat64(s.metrics.HTTPRequests.WithLabelValues("GET", "/health", "200")); got != 1 {
		t.Errorf("Expected 1 recorded /health request, got %v", got)
	}

	resp, _ = http.Get(s.URL + "/nope")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown path, got %d", resp.StatusCode)
	}
}

func TestRenderAndParseSection(t *testing.T) {
	s := newTestServer(t, nil)

	status, out := s.post(t, "/sections/review-of-systems/render",
		`{"revision_sistemas":{"cardiovascular":["Niega dolor torácico"],"respiratorio":["Tos seca"]}}`)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	var text string
	json.Unmarshal(out["text"], &text)
	if text != "Cardiovascular: Niega dolor torácico\nRespiratorio: Tos seca" {
		t.Errorf("Unexpected text %q", text)
	}

	status, out = s.post(t, "/sections/prescripciones/parse",
		`{"record":{"motivo_consulta":"Cefalea"},"text":"- Acetaminofén 500 mg c/8h\n- Ibuprofeno 400 mg"}`)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	var rec struct {
		ChiefComplaint string `json:"motivo_consulta"`
		Prescriptions  []struct {
			Detail string `json:"detalle"`
		} `json:"prescripciones"`
	}
	json.Unmarshal(out["record"], &rec)
	if rec.ChiefComplaint != "Cefalea" || len(rec.Prescriptions) != 2 || rec.Prescriptions[1].Detail != "Ibuprofeno 400 mg" {
		t.Errorf("Unexpected record %+v", rec)
	}

	status, _ = s.post(t, "/sections/nope/render", `{}`)
	if status != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown section, got %d", status)
	}
	status, _ = s.post(t, "/sections/alertas/render", `[[[`)
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed record, got %d", status)
	}
}

func TestCompactNarrative(t *testing.T) {
	s := newTestServer(t, nil)

	status, out := s.post(t, "/narrative/compact",
		`{"text":"Dolor de 3 días. Empeora con el esfuerzo. Sin fiebre.","max_length":45}`)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	var text string
	var compacted bool
	json.Unmarshal(out["text"], &text)
	json.Unmarshal(out["compacted"], &compacted)
	if text != "Dolor de 3 días. Empeora con el esfuerzo." {
		t.Errorf("Unexpected compacted text %q", text)
	}
	if !compacted {
		t.Error("Expected compacted=true")
	}

	status, out = s.post(t, "/narrative/compact", `{"text":"Sin fiebre.\n\nTos seca."}`)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	json.Unmarshal(out["text"], &text)
	json.Unmarshal(out["compacted"], &compacted)
	if text != "Sin fiebre.\n\nTos seca." || compacted {
		t.Errorf("Expected short text unchanged, got %q compacted=%v", text, compacted)
	}
}

func TestMergeAndApplySuggestions(t *testing.T) {
	s := newTestServer(t, nil)

	status, out := s.post(t, "/suggestions/merge", `{
		"built_in": [{"type":"medication","current":"Losartán 50mg","proposed":"Losartán 100mg"}],
		"external": {"suggestions":[{"text":"losartán 100mg"},{"text":"Perfil lipídico"}]}
	}`)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	var merged []struct {
		Message string   `json:"message"`
		Actions []string `json:"actions"`
	}
	json.Unmarshal(out["suggestions"], &merged)
	if len(merged) != 2 {
		t.Fatalf("Expected 2 merged suggestions, got %d", len(merged))
	}
	if len(merged[0].Actions) != 2 {
		t.Errorf("Expected add and replace on first suggestion, got %v", merged[0].Actions)
	}

	status, out = s.post(t, "/suggestions/apply", `{
		"record": {"prescripciones":[{"detalle":"Losartán 50mg"}]},
		"suggestion": {"type":"medication","current":"Losartán 50mg","proposed":"Losartán 100mg"},
		"action": "reemplazar"
	}`)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	var result struct {
		Outcome string `json:"outcome"`
	}
	json.Unmarshal(out["result"], &result)
	if result.Outcome != "replaced" {
		t.Errorf("Expected replaced, got %q", result.Outcome)
	}
	if got := testutil.ToFloat64(s.metrics.ActionsApplied.WithLabelValues("replace", "replaced")); got != 1 {
		t.Errorf("Expected action metric, got %v", got)
	}

	status, _ = s.post(t, "/suggestions/apply", `{
		"suggestion": {"type":"info","text":"Educación en signos de alarma"},
		"action": "add"
	}`)
	if status != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for inapplicable action, got %d", status)
	}

	status, _ = s.post(t, "/suggestions/apply", `{"action":"delete"}`)
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown action, got %d", status)
	}
}

func dial(t *testing.T, s *testServer) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/capture"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v interface{}) protocol.Reply {
	t.Helper()
	if err := ws.WriteJSON(v); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	var reply protocol.Reply
	if err := ws.ReadJSON(&reply); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return reply
}

func constantFrame(n int, v float32) []byte {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = v
	}
	return protocol.EncodeAudioFrame(samples)
}

func TestCaptureSocketRecordsAndUploads(t *testing.T) {
	s := newTestServer(t, nil)
	ws := dial(t, s)

	reply := send(t, ws, protocol.Control{Type: protocol.TypeStart, SampleRate: 48000, EncounterID: "enc_web_1700000000000"})
	if reply.Type != protocol.TypeState || reply.State != "recording" || reply.EncounterID != "enc_web_1700000000000" {
		t.Fatalf("Unexpected start reply %+v", reply)
	}

	frame := constantFrame(128, 0.25)
	for i := 0; i < 375; i++ {
		if err := ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			t.Fatalf("Write frame failed: %v", err)
		}
	}

	reply = send(t, ws, protocol.Control{Type: protocol.TypePause})
	if reply.State != "paused" {
		t.Errorf("Expected paused, got %+v", reply)
	}
	ws.WriteMessage(websocket.BinaryMessage, frame)
	reply = send(t, ws, protocol.Control{Type: protocol.TypeResume})
	if reply.State != "recording" {
		t.Errorf("Expected recording, got %+v", reply)
	}

	reply = send(t, ws, protocol.Control{Type: protocol.TypeStop, ReturnAudio: true})
	if reply.Type != protocol.TypeResult {
		t.Fatalf("Expected result, got %+v", reply)
	}
	if reply.Samples != 16000 || reply.Bytes != 44+2*16000 || reply.DurationMS != 1000 {
		t.Errorf("Unexpected result %+v", reply)
	}
	if err := audio.ValidateWAV(reply.Audio); err != nil {
		t.Errorf("Returned audio is not a valid container: %v", err)
	}
	if reply.StoredWAV != "/data/enc_web_1700000000000.wav" || !strings.Contains(string(reply.Transcript), "Me duele la cabeza") {
		t.Errorf("Unexpected upload fields %+v", reply)
	}
	if len(s.uploader.uploads) != 1 || s.uploader.sizes[0] != 44+2*16000 {
		t.Errorf("Unexpected uploads %v %v", s.uploader.uploads, s.uploader.sizes)
	}
	if s.h.sessions.GetActiveSessionCount() != 0 {
		t.Errorf("Expected session released after stop")
	}
}

func TestCaptureSocketUploadFailureKeepsResult(t *testing.T) {
	s := newTestServer(t, nil)
	s.uploader.err = &collab.UpstreamError{Op: collab.OpUpload, StatusCode: 503}
	ws := dial(t, s)

	send(t, ws, protocol.Control{Type: protocol.TypeStart, SampleRate: 16000})
	ws.WriteMessage(websocket.BinaryMessage, constantFrame(160, 0.1))

	reply := send(t, ws, protocol.Control{Type: protocol.TypeStop})
	if reply.Type != protocol.TypeResult || reply.Samples != 160 {
		t.Fatalf("Expected result despite upload failure, got %+v", reply)
	}
	if reply.Code != protocol.CodeUpstream || reply.Error == "" {
		t.Errorf("Expected upstream error in result, got %+v", reply)
	}
	if len(reply.Audio) != 0 {
		t.Error("Audio returned without return_audio")
	}
}

func TestCaptureSocketErrors(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Server.MaxCaptureSessions = 1 })
	ws := dial(t, s)

	if err := ws.WriteMessage(websocket.BinaryMessage, constantFrame(4, 0)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	var reply protocol.Reply
	ws.ReadJSON(&reply)
	if reply.Code != protocol.CodeInvalidState {
		t.Errorf("Expected invalid_state for frame before start, got %+v", reply)
	}

	reply = send(t, ws, map[string]string{"type": "rewind"})
	if reply.Code != protocol.CodeBadMessage {
		t.Errorf("Expected bad_message, got %+v", reply)
	}

	reply = send(t, ws, protocol.Control{Type: protocol.TypeStop})
	if reply.Code != protocol.CodeInvalidState {
		t.Errorf("Expected invalid_state for stop in idle, got %+v", reply)
	}

	reply = send(t, ws, protocol.Control{Type: protocol.TypeStart, SampleRate: 16000, EncounterID: "bogus"})
	if reply.Code != protocol.CodeBadMessage {
		t.Errorf("Expected bad_message for invalid encounter id, got %+v", reply)
	}

	reply = send(t, ws, protocol.Control{Type: protocol.TypeStart, SampleRate: 16000})
	if reply.State != "recording" || !strings.HasPrefix(reply.EncounterID, "enc_web_") {
		t.Fatalf("Unexpected start reply %+v", reply)
	}
	reply = send(t, ws, protocol.Control{Type: protocol.TypeStart, SampleRate: 16000})
	if reply.Code != protocol.CodeInvalidState {
		t.Errorf("Expected invalid_state for double start, got %+v", reply)
	}

	other := dial(t, s)
	reply = send(t, other, protocol.Control{Type: protocol.TypeStart, SampleRate: 16000})
	if reply.Code != protocol.CodeBusy {
		t.Errorf("Expected busy with one session allowed, got %+v", reply)
	}

	reply = send(t, ws, protocol.Control{Type: protocol.TypeStop})
	if reply.Code != protocol.CodeEmptyCapture {
		t.Errorf("Expected empty_capture, got %+v", reply)
	}

	reply = send(t, ws, protocol.Control{Type: protocol.TypeDiscard})
	if reply.State != "idle" {
		t.Errorf("Expected idle after discard, got %+v", reply)
	}
}

func TestCaptureSocketOrigins(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Server.AllowedOrigins = []string{"https://consultorio.example"}
	})
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/capture"

	tests := []struct {
		origin string
		ok     bool
	}{
		{"", true},
		{s.URL, true},
		{"https://consultorio.example", true},
		{"https://consultorio.example:8443", false},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			ws, resp, err := websocket.DefaultDialer.Dial(url, header)
			if tt.ok {
				if err != nil {
					t.Fatalf("Expected origin %q accepted, got %v", tt.origin, err)
				}
				ws.Close()
				return
			}
			if err == nil {
				ws.Close()
				t.Fatalf("Expected origin %q rejected", tt.origin)
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("Expected 403 for origin %q, got %v", tt.origin, resp)
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	if got := errorCode(errors.New("x")); got != protocol.CodeBadMessage {
		t.Errorf("Unexpected default code %q", got)
	}
	if got := errorCode(&collab.UpstreamError{Op: "upload"}); got != protocol.CodeUpstream {
		t.Errorf("Expected upstream code, got %q", got)
	}
}
