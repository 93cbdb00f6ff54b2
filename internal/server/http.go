package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Escorpio024/scribe-ia-aurora/internal/audio"
	"github.com/Escorpio024/scribe-ia-aurora/internal/collab"
	"github.com/Escorpio024/scribe-ia-aurora/internal/config"
	"github.com/Escorpio024/scribe-ia-aurora/internal/metrics"
	"github.com/Escorpio024/scribe-ia-aurora/internal/stream"
)

// Uploader sends a finished capture to the transcription collaborator.
// *collab.Client satisfies it.
type Uploader interface {
	Upload(ctx context.Context, encounterID string, wav *audio.EncodedAudio) (*collab.UploadResult, error)
}

// HTTPServer serves the record tooling API, the capture socket and
// monitoring endpoints.
type HTTPServer struct {
	server   *http.Server
	handler  http.Handler
	logger   *slog.Logger
	config   *config.Config
	sessions *stream.Manager
	uploader Uploader
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader

	startTime time.Time
}

// NewHTTPServer creates the HTTP server. A nil uploader disables upload on
// stop; a nil gatherer exposes the default Prometheus registry.
func NewHTTPServer(appConfig *config.Config, logger *slog.Logger, sessions *stream.Manager,
	uploader Uploader, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:   logger,
		config:   appConfig,
		sessions: sessions,
		uploader: uploader,
		metrics:  m,
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		startTime: time.Now(),
	}
	h.upgrader.CheckOrigin = h.checkOrigin

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	// No read or write timeout: capture sockets stay open for the whole
	// consultation.
	h.server = &http.Server{
		Addr:              appConfig.Server.GetAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       appConfig.Server.GetIdleTimeoutDuration(),
	}

	return h
}

// checkOrigin admits requests without an Origin header, same-origin
// requests and the configured allowed origins.
func (h *HTTPServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range h.config.Server.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), u.Scheme+"://"+u.Host) {
			return true
		}
	}
	h.logger.Warn("Capture socket origin rejected",
		slog.String("origin", origin),
		slog.String("remote_addr", r.RemoteAddr),
	)
	return false
}

// Handler returns the route multiplexer
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("GET /stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("GET /sessions", h.withMetrics("/sessions", h.handleSessions))

	mux.HandleFunc("POST /sections/{key}/render", h.withMetrics("/sections/{key}/render", h.handleRenderSection))
	mux.HandleFunc("POST /sections/{key}/parse", h.withMetrics("/sections/{key}/parse", h.handleParseSection))
	mux.HandleFunc("POST /narrative/compact", h.withMetrics("/narrative/compact", h.handleCompactNarrative))
	mux.HandleFunc("POST /suggestions/merge", h.withMetrics("/suggestions/merge", h.handleMergeSuggestions))
	mux.HandleFunc("POST /suggestions/apply", h.withMetrics("/suggestions/apply", h.handleApplySuggestion))

	mux.HandleFunc("GET /capture", h.withMetrics("/capture", h.handleCapture))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /{$}", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the capture socket take over the connection
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, brw, err := http.NewResponseController(rw.ResponseWriter).Hijack()
	if err == nil {
		rw.statusCode = http.StatusSwitchingProtocols
	}
	return conn, brw, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.logger.Info("Starting HTTP API server",
		slog.String("address", ln.Addr().String()),
	)

	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)

	upstream := map[string]interface{}{"status": "disabled"}
	if h.uploader != nil {
		upstream["status"] = "configured"
		if c, ok := h.uploader.(*collab.Client); ok {
			stats := c.GetStats()
			upstream["total_requests"] = stats.TotalRequests
			upstream["success_rate"] = stats.SuccessRate
			upstream["active_requests"] = stats.ActiveRequests
		}
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "scribe",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"capture": map[string]interface{}{
				"status":          "running",
				"active_sessions": h.sessions.GetActiveSessionCount(),
			},
			"upstream": upstream,
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"sessions": map[string]interface{}{
			"active_count": h.sessions.GetActiveSessionCount(),
			"limit":        h.config.Server.MaxCaptureSessions,
		},
	}
	if c, ok := h.uploader.(*collab.Client); ok {
		stats["upstream"] = c.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessions.GetAllSessions()
	infos := make([]stream.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, session.GetSessionInfo())
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	apiDoc := map[string]interface{}{
		"service": "scribe",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                       "API documentation",
			"GET /health":                 "Service health check",
			"GET /stats":                  "Service statistics",
			"GET /sessions":               "Active capture sessions",
			"GET /metrics":                "Prometheus metrics",
			"GET /capture":                "Capture socket (websocket)",
			"POST /sections/{key}/render": "Render a record section as editable text",
			"POST /sections/{key}/parse":  "Replace a record section from edited text",
			"POST /narrative/compact":     "Shorten a narrative to whole sentences",
			"POST /suggestions/merge":     "Merge built-in and external suggestions",
			"POST /suggestions/apply":     "Apply a suggestion action to a record",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
