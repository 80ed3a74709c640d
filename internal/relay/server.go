// File: internal/relay/server.go
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/loom/api/schemas"
	"github.com/xkilldash9x/loom/internal/config"
)

// Server hosts the build-run endpoint.
type Server struct {
	cfg        config.ServerConfig
	runner     schemas.Runner
	log        *zap.Logger
	httpServer *http.Server
}

func NewServer(cfg config.ServerConfig, runner schemas.Runner, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		runner: runner,
		log:    logger.Named("relay"),
	}
}

// Handler assembles the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.cfg.JWTSecret, s.cfg.AllowAnonymous))
		r.Post("/api/agent", s.handleAgent)
	})

	return r
}

// agentRequest is the body of POST /api/agent.
type agentRequest struct {
	ThreadID  string   `json:"threadId"`
	ProjectID string   `json:"projectId"`
	Message   string   `json:"message"`
	Images    []string `json:"images,omitempty"`
}

// handleAgent executes one orchestrator run and streams its output. The run
// is bound to the request context, so a client disconnect cancels any
// outstanding model or tool calls.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	if req.ProjectID == "" {
		http.Error(w, "projectId is required", http.StatusBadRequest)
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	input := schemas.RunInput{
		ThreadID:  req.ThreadID,
		ProjectID: req.ProjectID,
		OwnerID:   ownerFromContext(ctx),
		Message:   req.Message,
		Images:    req.Images,
	}

	sse.Start()
	runErr := s.runner.Run(ctx, input, sse)
	if runErr != nil {
		// Already-flushed frames stay visible; the failure collapses to one
		// error frame before the stream closes.
		s.log.Warn("Run failed",
			zap.String("thread_id", input.ThreadID),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(runErr),
		)
		sse.Error(userFacingError(runErr))
	}
	sse.Done()
}

// userFacingError keeps internals out of the stream while still naming the
// failure class.
func userFacingError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "the request was cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "the request timed out"
	default:
		return err.Error()
	}
}

// Serve runs the HTTP listener until ctx is cancelled, then drains within
// the configured shutdown window.
func (s *Server) Serve(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Relay server starting", zap.String("address", s.cfg.ListenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownTimeout := s.cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.log.Info("Relay server shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// corsMiddleware allows browser clients on other origins to reach the API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
