package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ragdesk/internal/app"
	"ragdesk/internal/ingest"
	"ragdesk/internal/ratelimit"
	"ragdesk/internal/util"
)

const defaultMaxUploadBytes = 20 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	MaxUploadBytes int64

	// Optional Redis-backed limits on the two query endpoints.
	RedisAddr               string
	RedisPassword           string
	QueryRateLimitPerMinute int
}

// Server exposes the document question-answering HTTP API.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	maxUploadBytes int64
	queryLimiter   *ratelimit.FixedWindowLimiter
	started        time.Time
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		maxUploadBytes: cfg.MaxUploadBytes,
		started:        time.Now(),
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.RedisAddr != "" && cfg.QueryRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "ragdesk:ratelimit:query",
			cfg.QueryRateLimitPerMinute, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init query limiter: %w", err)
		}
		s.queryLimiter = limiter
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in middleware.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/health-check", s.handleHealthCheck)
	s.mux.HandleFunc("/api/ingest", s.handleIngest)
	s.mux.HandleFunc("/api/query", s.handleQuery)
	s.mux.HandleFunc("/api/query/agents", s.handleQueryAgents)
	s.mux.HandleFunc("/api/documents", s.handleDocuments)
	s.mux.HandleFunc("/api/documents/", s.handleDocumentByID)
	s.mux.HandleFunc("/api/chat/new_session", s.handleNewSession)
	s.mux.HandleFunc("/api/chat/sessions", s.handleSessions)
	s.mux.HandleFunc("/api/chat/sessions/", s.handleSessionSubtree)
	s.mux.HandleFunc("/api/chat/clear_session/", s.handleClearSession)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Document Q&A service is running"})
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()

	if _, ok := ingest.DetectType(header.Filename); !ok {
		writeError(w, http.StatusBadRequest, "unsupported file type: "+filepath.Ext(header.Filename))
		return
	}

	tmp, err := os.CreateTemp("", "upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	tmp.Close()

	chunks, err := s.app.IngestDocument(r.Context(), tmp.Name(), header.Filename)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":         "Document ingested successfully",
		"filename":        header.Filename,
		"chunks_ingested": chunks,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowQuery(w, r) {
		return
	}
	sessionID := strings.TrimSpace(r.FormValue("session_id"))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	query := strings.TrimSpace(r.FormValue("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}
	documentName := r.FormValue("document_name")

	answer, err := s.app.Answer(r.Context(), sessionID, query, documentName)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleQueryAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowQuery(w, r) {
		return
	}
	sessionID := strings.TrimSpace(r.FormValue("session_id"))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	query := strings.TrimSpace(r.FormValue("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	result, err := s.app.AnswerWithAgents(r.Context(), sessionID, query)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"answer":          result.Answer,
		"plan":            result.Plan,
		"reasoning":       result.Reasoning,
		"agent_reasoning": result.AgentReasoning,
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": s.app.ListDocuments()})
}

func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if err := s.app.DeleteDocument(r.Context(), id); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Document " + id + " deleted"})
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": s.app.NewSession()})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.app.Sessions()})
}

func (s *Server) handleSessionSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/chat/sessions/")
	if id, ok := strings.CutSuffix(rest, "/message"); ok && id != "" && !strings.Contains(id, "/") {
		s.handleAppendMessage(w, r, id)
		return
	}
	if rest == "" || strings.Contains(rest, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": rest,
		"history":    s.app.History(rest),
	})
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	role := strings.TrimSpace(r.FormValue("role"))
	message := r.FormValue("message")
	if role == "" || message == "" {
		writeError(w, http.StatusBadRequest, "role and message are required")
		return
	}
	s.app.AppendMessage(id, role, message)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Message saved to session " + id})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/chat/clear_session/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	s.app.ClearSession(id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat history for session " + id + " cleared"})
}

func (s *Server) allowQuery(w http.ResponseWriter, r *http.Request) bool {
	if s.queryLimiter == nil {
		return true
	}
	if s.queryLimiter.Allow(util.ClientIP(r)) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "too many queries, slow down")
	return false
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrEmptyQuery), errors.Is(err, app.ErrUnsupportedFileType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrDuplicateContent):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
