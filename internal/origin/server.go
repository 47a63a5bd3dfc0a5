package origin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	srverrors "github.com/spreadshirt/s3gw-haproxy/pkg/errors"
)

// StopTimeout bounds the graceful shutdown and the join of the serving goroutine.
const StopTimeout = time.Second

var methods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
}

// Server is an HTTP origin answering from a fixed response table. It counts
// every request it receives.
type Server struct {
	table    ResponseTable
	requests atomic.Uint64
	listener net.Listener
	srv      *http.Server
	done     chan struct{}
}

// Listen binds addr and starts serving in the background. Bind errors are
// returned synchronously.
func Listen(addr string, table ResponseTable) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind origin on %s: %w", addr, err)
	}

	s := &Server{
		table:    table,
		listener: ln,
		done:     make(chan struct{}),
	}
	s.srv = &http.Server{Handler: s.engine()}

	go func() {
		defer close(s.done)
		zap.S().Infow("starting origin server", "addr", ln.Addr().String(), "objects", len(table))
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Errorw("origin server error", "error", err)
		}
	}()

	return s, nil
}

func (s *Server) engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		s.count,
		ginzap.Ginzap(zap.L(), time.RFC3339, true),
		ginzap.RecoveryWithZap(zap.L(), true),
	)
	for _, m := range methods {
		engine.Handle(m, "/*path", s.dispatch)
	}
	engine.NoRoute(s.notFound)
	return engine
}

func (s *Server) count(c *gin.Context) {
	s.requests.Add(1)
	c.Next()
}

func (s *Server) dispatch(c *gin.Context) {
	resp, ok := s.table[c.Request.URL.Path]
	if !ok {
		s.notFound(c)
		return
	}
	c.Data(resp.Status, "text/plain; charset=utf-8", []byte(resp.Body))
}

// notFound answers 404 with an empty body. Aborting marks the response as
// written, so gin does not append its default text on the NoRoute path.
func (s *Server) notFound(c *gin.Context) {
	c.AbortWithStatus(http.StatusNotFound)
}

// Requests returns how many requests the server has seen, recognized or not.
func (s *Server) Requests() uint64 {
	return s.requests.Load()
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Stop shuts the server down and joins its serving goroutine within
// StopTimeout. A server that could not be joined in time yields a
// TeardownWarning.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), StopTimeout)
	defer cancel()

	err := s.srv.Shutdown(ctx)

	select {
	case <-s.done:
	case <-ctx.Done():
		return srverrors.NewTeardownWarning("origin", errors.Join(ctx.Err(), err))
	}
	if err != nil {
		return srverrors.NewTeardownWarning("origin", err)
	}
	return nil
}
