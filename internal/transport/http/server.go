package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/logger"
)

// StatusFunc produces the /api/status payload. It is called on every
// request, so it must be cheap and safe for concurrent use.
type StatusFunc func() any

// Server exposes liveness and a status snapshot over HTTP.
type Server struct {
	addr     string
	srv      *http.Server
	statusFn StatusFunc
}

func NewServer(addr string, statusFn StatusFunc) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{addr: addr, statusFn: statusFn}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/api/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.statusFn())
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves in the background and logs a fatal listen failure.
func (s *Server) Start() {
	go func() {
		logger.Infof("status server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("status server: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
