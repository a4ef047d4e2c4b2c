// Package web provides the HTTP API host of the playground.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"go.uber.org/zap"

	"github.com/flashdb/playground/internal/bucket"
	"github.com/flashdb/playground/internal/engine"
	"github.com/flashdb/playground/internal/router"
	"github.com/flashdb/playground/internal/version"
)

const apiVersionPath = "/api/v1"

// maxEvents is the number of out-of-band lines kept for polling clients.
const maxEvents = 256

// Server is the HTTP API over one router.
type Server struct {
	addr      string
	router    *router.Router
	logger    *zap.Logger
	server    *http.Server
	startTime time.Time

	mu     sync.RWMutex
	events []Event
	seq    uint64
}

// New creates a web server and attaches it to r so that pub/sub deliveries
// and expiry notices can be polled from /api/v1/events.
func New(addr string, r *router.Router, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		addr:      addr,
		router:    r,
		logger:    logger.Named("web"),
		startTime: time.Now(),
	}
	r.Attach(s)
	return s
}

// CommandRequest represents a command execution request. An empty Engine
// runs the command on the active engine.
type CommandRequest struct {
	Engine  string `json:"engine,omitempty"`
	Command string `json:"command"`
}

// CommandResponse represents a command execution response.
type CommandResponse struct {
	Success bool          `json:"success"`
	Engine  string        `json:"engine,omitempty"`
	Lines   []engine.Line `json:"lines"`
	Clear   bool          `json:"clear,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// StatsResponse represents server statistics.
type StatsResponse struct {
	Version     string       `json:"version"`
	Uptime      int64        `json:"uptime"`
	UptimeHuman string       `json:"uptime_human"`
	MemoryUsed  uint64       `json:"memory_used"`
	GoRoutines  int          `json:"goroutines"`
	CPUs        int          `json:"cpus"`
	Router      router.Stats `json:"router"`
}

// Event is an out-of-band output line.
type Event struct {
	Seq  uint64      `json:"seq"`
	Kind engine.Kind `json:"kind"`
	Text string      `json:"text"`
}

// Emit buffers an out-of-band line for polling clients.
func (s *Server) Emit(kind engine.Kind, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.events = append(s.events, Event{Seq: s.seq, Kind: kind, Text: text})
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
}

// RecordActivity is a no-op; the router meter already counts operations.
func (s *Server) RecordActivity(string) {}

// Start starts the web server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: corsMiddleware(s.routes()),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("listening", zap.String("addr", s.addr))
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc(apiVersionPath+"/execute", s.handleExecute)
	mux.HandleFunc(apiVersionPath+"/use", s.handleUse)
	mux.HandleFunc(apiVersionPath+"/stats", s.handleStats)
	mux.HandleFunc(apiVersionPath+"/events", s.handleEvents)
	mux.HandleFunc(apiVersionPath+"/log/", s.handleLog)
	mux.HandleFunc(apiVersionPath+"/export", s.handleExport)
	mux.HandleFunc(apiVersionPath+"/export/", s.handleExport)
	mux.HandleFunc(apiVersionPath+"/import", s.handleImport)
	mux.HandleFunc(apiVersionPath+"/import/", s.handleImport)

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc(apiVersionPath+"/healthz", s.handleHealth)
	mux.HandleFunc(apiVersionPath+"/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	return mux
}

// corsMiddleware adds CORS headers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleExecute runs one command line.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONWithStatus(w, http.StatusBadRequest, CommandResponse{Error: "Invalid request"})
		return
	}

	name := req.Engine
	if name == "" {
		name = s.router.Active()
	}
	res, err := s.router.ExecuteOn(name, req.Command)
	if err != nil {
		writeJSONWithStatus(w, http.StatusNotFound, CommandResponse{Error: err.Error()})
		return
	}

	resp := CommandResponse{
		Success: res.Err == nil,
		Engine:  strings.ToLower(name),
		Lines:   res.Lines,
		Clear:   res.Clear,
	}
	if resp.Lines == nil {
		resp.Lines = []engine.Line{}
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	writeJSON(w, resp)
}

// handleUse switches the active engine.
func (s *Server) handleUse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONWithStatus(w, http.StatusBadRequest, CommandResponse{Error: "Invalid request"})
		return
	}
	res, err := s.router.Switch(req.Engine)
	if err != nil {
		writeJSONWithStatus(w, http.StatusNotFound, CommandResponse{Error: err.Error()})
		return
	}
	lines := res.Lines
	if lines == nil {
		lines = []engine.Line{}
	}
	writeJSON(w, CommandResponse{Success: true, Engine: s.router.Active(), Lines: lines})
}

// handleStats returns process and engine statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptime := time.Since(s.startTime)

	writeJSON(w, StatsResponse{
		Version:     version.Version,
		Uptime:      int64(uptime.Seconds()),
		UptimeHuman: formatDuration(uptime),
		MemoryUsed:  m.Alloc,
		GoRoutines:  runtime.NumGoroutine(),
		CPUs:        runtime.NumCPU(),
		Router:      s.router.Stats(),
	})
}

// handleEvents returns buffered out-of-band lines newer than ?after=.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	after, _ := strconv.ParseUint(r.URL.Query().Get("after"), 10, 64)

	s.mu.RLock()
	out := []Event{}
	for _, e := range s.events {
		if e.Seq > after {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()
	writeJSON(w, map[string]interface{}{"events": out})
}

// handleLog returns an engine's operation log, optionally only the entries
// after ?since= (epoch millis).
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, apiVersionPath+"/log/")
	entries, err := s.router.Log(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if since, err := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64); err == nil {
		kept := entries[:0:0]
		for _, e := range entries {
			if e.T > since {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	writeJSON(w, map[string]interface{}{"engine": name, "log": entries})
}

func engineFromPath(path, prefix string) string {
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}

// handleExport returns the full archive, or one engine's bucket.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := engineFromPath(r.URL.Path, apiVersionPath+"/export")
	if name == "" {
		a, err := s.router.Export()
		if err != nil {
			s.logger.Error("export failed", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		router.WriteArchive(w, a)
		return
	}

	b, err := s.router.ExportEngine(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	data, err := bucket.Encode(b)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleImport replaces the full archive, or one engine's bucket.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := engineFromPath(r.URL.Path, apiVersionPath+"/import")
	var err error
	if name == "" {
		var a *router.Archive
		if a, err = router.ReadArchive(http.MaxBytesReader(w, r.Body, maxImportSize)); err == nil {
			err = s.router.Import(a)
		}
	} else {
		var raw []byte
		raw, err = readBody(w, r)
		if err == nil {
			var b *bucket.Bucket
			if b, err = bucket.Decode(raw); err == nil {
				err = s.router.ImportEngine(name, b)
			}
		}
	}
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, bucket.ErrInvalid) && !errors.Is(err, bucket.ErrIncompatibleFormat) {
			status = http.StatusUnprocessableEntity
		}
		s.logger.Error("import rejected", zap.String("engine", name), zap.Error(err))
		writeJSONWithStatus(w, status, map[string]interface{}{"success": false, "error": "Import failed: " + err.Error()})
		return
	}
	writeJSON(w, map[string]interface{}{"success": true})
}

// maxImportSize bounds the body of import requests.
const maxImportSize = 32 << 20

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportSize))
}

// handleMetrics exposes the operation counters and process metrics in the
// Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s.router.Meter().WritePrometheus(w)
	metrics.WriteProcessMetrics(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ready := s.router != nil
	statusCode := http.StatusOK
	status := "ready"
	if !ready {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}
	writeJSONWithStatus(w, statusCode, map[string]interface{}{
		"status": status,
		"ready":  ready,
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeJSONWithStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// formatDuration formats a duration as human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, mins, secs)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}
