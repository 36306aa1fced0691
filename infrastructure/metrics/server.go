package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Server exposes a registry on /metrics.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
}

// NewServer listens on listenAddr and prepares to serve gatherer.
func NewServer(listenAddr string, gatherer prometheus.Gatherer) (*Server, error) {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't listen for metrics on %s", listenAddr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &Server{
		listener: listener,
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Address returns the address the server listens on.
func (s *Server) Address() net.Addr {
	return s.listener.Addr()
}

// Start serves requests in the background.
func (s *Server) Start() {
	log.Infof("Metrics server listening on %s", s.listener.Addr())
	spawn("metrics.Server.Serve", func() {
		err := s.httpServer.Serve(s.listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server stopped: %s", err)
		}
	})
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.WithStack(s.httpServer.Shutdown(ctx))
}
