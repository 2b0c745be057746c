package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adu4862/banana-api/internal/config"
)

type Server struct {
	cfg     *config.Config
	manager TaskService
	logger  *slog.Logger
	mux     *http.ServeMux
	maxBody int64
	tempDir string
}

func NewServer(cfg *config.Config, mgr TaskService, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		manager: mgr,
		logger:  logger,
		mux:     http.NewServeMux(),
		maxBody: defaultMaxBodyBytes,
		tempDir: cfg.TempDir,
	}
	if cfg.MaxBodySize != "" {
		if n, err := cfg.MaxBodyBytes(); err == nil {
			s.maxBody = n
		} else {
			logger.Warn("invalid max body size, using default", "value", cfg.MaxBodySize, "error", err)
		}
	}
	if s.tempDir == "" {
		s.tempDir = os.TempDir()
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.authMiddleware(s.requestIDMiddleware(s.mux))
}

func (s *Server) routes() {
	// Generation routes (with auth)
	s.mux.HandleFunc("POST /api/lovart/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/lovart/generate_video", s.handleGenerateVideo)
	s.mux.HandleFunc("POST /api/lovart/generate_image", s.handleGenerateImage)
	s.mux.HandleFunc("POST /api/lovart/v1/images/generations", s.handleOpenAIImage)
	s.mux.HandleFunc("POST /v1/images/generations", s.handleOpenAIImage)

	// Pool administration (with auth)
	s.mux.HandleFunc("GET /api/lovart/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/lovart/tasks", s.handleListTasks)
	s.mux.HandleFunc("GET /api/lovart/tasks/{id}", s.handleGetTask)
	s.mux.HandleFunc("GET /api/lovart/accounts", s.handleListAccounts)
	s.mux.HandleFunc("DELETE /api/lovart/sessions", s.handleCloseAll)
	s.mux.HandleFunc("DELETE /api/lovart/sessions/{index}", s.handleCloseSession)

	// Health check and metrics (no auth)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// envelope is the response shape of the native routes.
type envelope struct {
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	ErrorCode string         `json:"error_code,omitempty"`
}

func writeSuccess(w http.ResponseWriter, message string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: message, Data: data})
}
