package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/danmuck/codetango/internal/coordinator"
)

// StatusSource is the read side of a coordinator.
type StatusSource interface {
	Status() coordinator.Status
}

// NewAdminRouter serves /health, /metrics, /barriers and /barriers/:id.
func NewAdminRouter(src StatusSource, runID string, logger zerolog.Logger) *gin.Engine {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	started := time.Now()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(AdminRequests(logger))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(started).String(),
			"component": "codetango",
			"run_id":    runID,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/barriers", func(c *gin.Context) {
		c.JSON(http.StatusOK, src.Status())
	})

	r.GET("/barriers/:id", func(c *gin.Context) {
		id := c.Param("id")
		for _, rec := range src.Status().Barriers {
			if rec.BarrierID == id {
				c.JSON(http.StatusOK, rec)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "barrier not found"})
	})
	return r
}

// AdminServer runs an admin router on a TCP listener.
type AdminServer struct {
	srv  *http.Server
	ln   net.Listener
	done chan error
}

// StartAdmin binds addr and serves handler in the background.
func StartAdmin(addr string, handler http.Handler, logger zerolog.Logger) (*AdminServer, error) {
	ln, err := net.Listen("tcp", strings.TrimSpace(addr))
	if err != nil {
		return nil, err
	}
	s := &AdminServer{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:   ln,
		done: make(chan error, 1),
	}
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("observability.StartAdmin listening")
	return s, nil
}

func (s *AdminServer) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops accepting requests and waits for the serve loop to exit.
func (s *AdminServer) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}
