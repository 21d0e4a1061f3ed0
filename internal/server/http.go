package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/washsense/washsense/internal/audio"
	"github.com/washsense/washsense/internal/config"
	"github.com/washsense/washsense/internal/fsm"
	"github.com/washsense/washsense/internal/metrics"
	"github.com/washsense/washsense/internal/provider"
	"github.com/washsense/washsense/internal/sensing"
)

// Ingest body limits.
const (
	maxFrameBytes = 8 << 20 // 8 MiB JPEG
	maxAudioBytes = 1 << 20 // 1 MiB PCM window
)

// HTTPServer provides HTTP API endpoints for monitoring the washing session
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	config    *config.Config
	engine    *fsm.Engine
	pool      *provider.Pool
	loop      *sensing.Loop
	frames    *sensing.FrameSlot
	sampler   *audio.Sampler
	sessionID string
	metrics   *metrics.Metrics

	startTime time.Time
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger, appConfig *config.Config,
	engine *fsm.Engine, pool *provider.Pool, loop *sensing.Loop,
	frames *sensing.FrameSlot, sampler *audio.Sampler, sessionID string, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		engine:    engine,
		pool:      pool,
		loop:      loop,
		frames:    frames,
		sampler:   sampler,
		sessionID: sessionID,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session monitoring endpoints
	mux.HandleFunc("/state", h.withMetrics("/state", h.handleState))
	mux.HandleFunc("/score", h.withMetrics("/score", h.handleScore))
	mux.HandleFunc("/history", h.withMetrics("/history", h.handleHistory))

	// Capture ingest endpoints
	mux.HandleFunc("/ingest/frame", h.withMetrics("/ingest/frame", h.handleIngestFrame))
	mux.HandleFunc("/ingest/audio", h.withMetrics("/ingest/audio", h.handleIngestAudio))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
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

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	poolStats := h.pool.GetStats()
	loopStats := h.loop.GetStats()

	backedOff := 0
	for _, p := range poolStats.Providers {
		if p.BackedOff {
			backedOff++
		}
	}

	health := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"uptime":     uptime.String(),
		"session_id": h.sessionID,
		"components": map[string]interface{}{
			"sensing_loop": map[string]interface{}{
				"status":            "running",
				"ticks":             loopStats.Ticks,
				"frames_dispatched": loopStats.FramesDispatched,
				"frames_dropped":    loopStats.FramesDropped,
			},
			"provider_pool": map[string]interface{}{
				"status":              "running",
				"mode":                poolStats.Mode,
				"providers":           len(poolStats.Providers),
				"providers_backed_off": backedOff,
			},
			"state_engine": map[string]interface{}{
				"status": "running",
				"state":  h.engine.CurrentState(),
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleState implements the /state endpoint
func (h *HTTPServer) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := map[string]interface{}{
		"session_id":    h.sessionID,
		"state":         h.engine.CurrentState(),
		"time_in_state": h.engine.TimeInState().Seconds(),
		"detail_level":  h.engine.DetailLevel(),
		"latest_cues":   h.engine.LatestCues(),
		"timestamp":     time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

// handleScore implements the /score endpoint
func (h *HTTPServer) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	score := h.engine.GetScore()
	if score == nil {
		http.Error(w, "Session not finished", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(score)
}

// handleHistory implements the /history endpoint
func (h *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	history := h.engine.History()
	response := map[string]interface{}{
		"session_id": h.sessionID,
		"entries":    len(history),
		"history":    history,
		"timestamp":  time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleIngestFrame implements the POST /ingest/frame endpoint. The body
// is a raw JPEG; the newest frame always wins the slot.
func (h *HTTPServer) handleIngestFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxFrameBytes))
	if err != nil {
		http.Error(w, "Failed to read frame", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "Empty frame", http.StatusBadRequest)
		return
	}

	h.frames.Put(base64.StdEncoding.EncodeToString(body))
	h.metrics.RecordFrameCaptured()
	w.WriteHeader(http.StatusAccepted)
}

// handleIngestAudio implements the POST /ingest/audio endpoint. The body
// is one window of little-endian 16-bit mono PCM.
func (h *HTTPServer) handleIngestAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.sampler == nil {
		http.Error(w, "Audio disabled", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxAudioBytes))
	if err != nil {
		http.Error(w, "Failed to read audio", http.StatusBadRequest)
		return
	}
	if err := h.sampler.FeedBytes(body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	providers := make([]map[string]interface{}, 0, len(h.config.Providers))
	for _, p := range h.config.Providers {
		providers = append(providers, map[string]interface{}{
			"name":       p.Name,
			"base_url":   p.BaseURL,
			"model_name": p.ModelName,
			"timeout":    p.Timeout,
			"backoff":    p.Backoff,
		})
	}

	sanitizedConfig := map[string]interface{}{
		"sensing": map[string]interface{}{
			"tick_interval":     h.config.Sensing.TickInterval,
			"dispatch_interval": h.config.Sensing.DispatchInterval,
			"audio_interval":    h.config.Sensing.AudioInterval,
		},
		"pool": map[string]interface{}{
			"mode": h.config.Pool.Mode,
		},
		"providers": providers,
		"audio": map[string]interface{}{
			"enabled":     h.config.Audio.Enabled,
			"sample_rate": h.config.Audio.SampleRate,
			"window_size": h.config.Audio.WindowSize,
			"smoothing":   h.config.Audio.Smoothing,
		},
		"engine": map[string]interface{}{
			"idle_timeout":    h.config.Engine.IdleTimeout,
			"cue_buffer_size": h.config.Engine.CueBufferSize,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":     uptime.String(),
		"timestamp":  time.Now().UTC(),
		"session_id": h.sessionID,
		"sensing":    h.loop.GetStats(),
		"pool":       h.pool.GetStats(),
		"engine": map[string]interface{}{
			"state":          h.engine.CurrentState(),
			"visited_states": h.engine.VisitedStates(),
			"detail_level":   h.engine.DetailLevel(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Washing Sensor Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":              "API documentation",
			"GET /health":        "Service health check",
			"GET /state":         "Current washing state",
			"GET /score":         "Final session score",
			"GET /history":       "State transition history",
			"POST /ingest/frame": "Submit a camera frame (JPEG body)",
			"POST /ingest/audio": "Submit an audio window (16-bit LE PCM body)",
			"GET /config":        "Get service configuration",
			"GET /stats":         "Get service statistics",
			"GET /metrics":       "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
