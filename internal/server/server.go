package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/lexicite/internal/logging"
	"github.com/ppiankov/lexicite/internal/metrics"
	"github.com/ppiankov/lexicite/internal/orchestrator"
)

// Server exposes the batch API over HTTP. Each document gets its own
// orchestrator.Session; a session is addressed by the id of its latest batch.
type Server struct {
	orch     *orchestrator.Orchestrator
	defaults orchestrator.Options
	metrics  *metrics.Metrics
	logger   *logging.Logger

	// Batches outlive the request that started them
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*orchestrator.Session

	engine *gin.Engine
}

// New creates a server. defaults fill every option a request leaves out.
func New(orch *orchestrator.Orchestrator, defaults orchestrator.Options, m *metrics.Metrics, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		orch:     orch,
		defaults: defaults,
		metrics:  m,
		logger:   logger.Named("server"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*orchestrator.Session),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes(engine)
	s.engine = engine
	return s
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and cancels every running batch.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// Open event streams end once their sessions close
	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close cancels every batch and ends every session
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	for id, sess := range s.sessions {
		sess.Close()
		delete(s.sessions, id)
	}
}

func (s *Server) session(id string) (*orchestrator.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
