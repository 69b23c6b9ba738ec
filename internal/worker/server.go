// Package worker runs the similarity scorer as a long-lived background
// process and talks to it over a Unix domain socket.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ajitpratap0/lia/internal/metrics"
	"github.com/ajitpratap0/lia/internal/similarity"
)

const requestIDHeader = "X-Request-ID"

// Server exposes a similarity.Scorer over HTTP/JSON.
type Server struct {
	scorer   similarity.Scorer
	model    string
	metrics  *metrics.Metrics
	logger   *slog.Logger
	validate *validator.Validate
}

// NewServer creates a Server ranking with scorer. m may be nil.
func NewServer(scorer similarity.Scorer, model string, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		scorer:   scorer,
		model:    model,
		metrics:  m,
		logger:   logger,
		validate: validator.New(),
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /v1/rank", s.handleRank)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

// Serve listens on socketPath and writes the process id to pidPath. It
// blocks until ctx is cancelled, then shuts down and removes both files.
func (s *Server) Serve(ctx context.Context, socketPath, pidPath string) error {
	if err := removeStale(socketPath); err != nil {
		return err
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	defer func() { _ = os.Remove(socketPath) }()

	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("restricting socket permissions: %w", err)
	}
	if err := WritePIDFile(pidPath, os.Getpid()); err != nil {
		_ = ln.Close()
		return err
	}
	defer func() { _ = os.Remove(pidPath) }()

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("worker listening", "socket", socketPath, "model", s.model, "pid", os.Getpid())
		if serveErr := httpSrv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- fmt.Errorf("worker: HTTP server: %w", serveErr)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("worker shutting down")
	case serveErr := <-errCh:
		return serveErr
	}

	const shutdownTimeout = 5 * time.Second
	if err := Shutdown(httpSrv, shutdownTimeout); err != nil {
		return fmt.Errorf("worker: graceful shutdown: %w", err)
	}
	return <-errCh
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// --- handlers ---

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	PID    int    `json:"pid"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Model: s.model, PID: os.Getpid()})
}

// rankRequest is the body accepted by POST /v1/rank.
type rankRequest struct {
	Query      string   `json:"query" validate:"required"`
	Candidates []string `json:"candidates" validate:"required,min=1"`
	TopN       int      `json:"top_n" validate:"required,gte=1,lte=100"`
}

// rankResponse is returned by POST /v1/rank.
type rankResponse struct {
	RequestID string               `json:"request_id"`
	Rankings  []similarity.Ranking `json:"rankings"`
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, requestID)

	r.Body = http.MaxBytesReader(w, r.Body, 4<<20) // 4 MB limit
	var req rankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.ObserveRank(metrics.StatusInvalid, time.Since(start))
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.metrics.ObserveRank(metrics.StatusInvalid, time.Since(start))
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	rankings, err := s.scorer.Rank(r.Context(), req.Query, req.Candidates, req.TopN)
	if err != nil {
		s.metrics.ObserveRank(metrics.StatusError, time.Since(start))
		s.logger.Error("failed to rank candidates", "request_id", requestID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to rank candidates")
		return
	}

	s.metrics.ObserveRank(metrics.StatusOK, time.Since(start))
	s.logger.Debug("ranked candidates", "request_id", requestID, "candidates", len(req.Candidates),
		"results", len(rankings), "duration", time.Since(start))
	s.writeJSON(w, http.StatusOK, rankResponse{RequestID: requestID, Rankings: rankings})
}

// validationMessage turns validator errors into "field: tag" pairs.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", strings.ToLower(fe.Field())))
		default:
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(parts, "; ")
}

// --- helpers ---

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
