// Package server provides the HTTP and websocket surface for the tlint
// daemon. Editors push document text over REST and receive decoration
// sets over the websocket.
package server

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jmylchreest/tlint/pkg/engine"
	"github.com/jmylchreest/tlint/pkg/lint"
	"github.com/jmylchreest/tlint/pkg/schedule"
	"github.com/jmylchreest/tlint/pkg/store"
)

var httpLog = log.New(os.Stderr, "[tlint:http] ", log.Ltime)

// MaxDocumentBodySize limits pushed document bodies to 8MB.
const MaxDocumentBodySize = 8 << 20

// Server wires the REST API and the decoration hub over the analysis
// pipeline.
type Server struct {
	registry  *engine.Registry
	engine    *engine.Engine
	scheduler *schedule.Scheduler
	findings  *store.FindingsStore
	hub       *Hub
	addr      string
	mux       *http.ServeMux
}

// NewServer creates a new HTTP server over the given pipeline components.
func NewServer(reg *engine.Registry, eng *engine.Engine, sched *schedule.Scheduler, fs *store.FindingsStore, hub *Hub, addr string) *Server {
	s := &Server{
		registry:  reg,
		engine:    eng,
		scheduler: sched,
		findings:  fs,
		hub:       hub,
		addr:      addr,
		mux:       http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Document lifecycle
	s.mux.HandleFunc("/api/documents", s.handleDocuments)
	s.mux.HandleFunc("/api/documents/open", s.handleOpen)
	s.mux.HandleFunc("/api/documents/close", s.handleClose)
	s.mux.HandleFunc("/api/documents/save", s.handleSave)
	s.mux.HandleFunc("/api/documents/findings", s.handleDocumentFindings)

	// Findings
	s.mux.HandleFunc("/api/findings/search", s.handleSearch)

	// Daemon state
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/cache/stats", s.handleCacheStats)
	s.mux.HandleFunc("/api/cache/clear", s.handleCacheClear)

	// Decoration stream
	s.mux.Handle("/ws/decorations", s.hub)

	// Health check
	s.mux.HandleFunc("/health", s.handleHealth)
}

// Handler returns the configured mux, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	httpLog.Printf("listening on %s", s.addr)
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv.ListenAndServe()
}

// Response helpers
func jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		httpLog.Printf("failed to encode response: %v", err)
	}
}

func errorResponse(w http.ResponseWriter, message string, status int) {
	jsonResponse(w, map[string]string{"error": message}, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// handleDocuments accepts the raw document text as the request body:
// PUT /api/documents?path=<path>. Each push supersedes the previous text
// and counts as an edit trigger.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		errorResponse(w, "query parameter 'path' required", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxDocumentBodySize)
	text, err := io.ReadAll(r.Body)
	if err != nil {
		errorResponse(w, "failed to read body or body too large", http.StatusBadRequest)
		return
	}

	s.registry.Update(path, string(text))
	s.scheduler.Trigger(path, schedule.TriggerEdit)
	jsonResponse(w, map[string]string{"path": path, "digest": lint.Digest(string(text))}, http.StatusOK)
}

type documentRequest struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

func (s *Server) decodeDocumentRequest(w http.ResponseWriter, r *http.Request) (*documentRequest, bool) {
	if r.Method != http.MethodPost {
		errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxDocumentBodySize)
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, "invalid JSON or request too large", http.StatusBadRequest)
		return nil, false
	}
	if req.Path == "" {
		errorResponse(w, "'path' required", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeDocumentRequest(w, r)
	if !ok {
		return
	}
	s.registry.Open(req.Path, req.Text)
	s.scheduler.Trigger(req.Path, schedule.TriggerOpen)
	jsonResponse(w, map[string]string{"path": req.Path}, http.StatusOK)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeDocumentRequest(w, r)
	if !ok {
		return
	}
	s.scheduler.CloseDocument(req.Path)
	s.registry.Close(req.Path)
	s.engine.ForgetDocument(req.Path)
	jsonResponse(w, map[string]string{"closed": req.Path}, http.StatusOK)
}

// handleSave treats an explicit save as high priority. Text is optional:
// when present it supersedes the registry copy first.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeDocumentRequest(w, r)
	if !ok {
		return
	}
	if req.Text != "" {
		s.registry.Update(req.Path, req.Text)
	}
	s.scheduler.Trigger(req.Path, schedule.TriggerSave)
	jsonResponse(w, map[string]string{"path": req.Path}, http.StatusOK)
}

func (s *Server) handleDocumentFindings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	opts := searchOptionsFromQuery(r)
	result, err := s.findings.ListFindings(opts)
	if err != nil {
		errorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if result == nil {
		result = []*lint.Finding{}
	}
	jsonResponse(w, result, http.StatusOK)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query().Get("q")
	results, err := s.findings.SearchFindings(query, searchOptionsFromQuery(r))
	if err != nil {
		errorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []*lint.SearchResult{}
	}
	jsonResponse(w, results, http.StatusOK)
}

func searchOptionsFromQuery(r *http.Request) lint.SearchOptions {
	q := r.URL.Query()
	opts := lint.SearchOptions{
		RuleID:       q.Get("rule"),
		Severity:     q.Get("severity"),
		DocumentPath: q.Get("path"),
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			opts.Limit = n
		}
	}
	return opts
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonResponse(w, map[string]interface{}{
		"documents":  s.registry.List(),
		"scheduler":  s.scheduler.Status(),
		"wsClients":  s.hub.ClientCount(),
		"cacheStats": s.engine.CacheStats(),
	}, http.StatusOK)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonResponse(w, s.engine.CacheStats(), http.StatusOK)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.engine.ClearCaches()
	jsonResponse(w, map[string]string{"cleared": "ok"}, http.StatusOK)
}
