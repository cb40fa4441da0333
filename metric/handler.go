package metric

import (
	"cmp"
	"context"
	stderrors "errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/mqtt2influxdb/errors"
)

const (
	defaultPort     = 9090
	defaultPath     = "/metrics"
	shutdownTimeout = 5 * time.Second
)

var indexPage = template.Must(template.New("index").Parse(
	`<html><head><title>mqtt2influxdb</title></head><body>` +
		`<h1>mqtt2influxdb</h1><p><a href="{{.}}">Metrics</a></p><p><a href="/health">Health</a></p>` +
		`</body></html>`))

// Server exposes the registry and a health handler over HTTP
type Server struct {
	port     int
	path     string
	registry *MetricsRegistry
	health   http.Handler
}

// NewServer creates a metrics server. health serves /health; when nil, /health
// always answers 200 OK.
func NewServer(port int, path string, registry *MetricsRegistry, health http.Handler) *Server {
	return &Server{
		port:     cmp.Or(port, defaultPort),
		path:     cmp.Or(path, defaultPath),
		registry: registry,
		health:   health,
	}
}

// Handler builds the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{EnableOpenMetrics: true}))

	health := s.health
	if health == nil {
		health = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("OK"))
		})
	}
	mux.Handle("/health", health)

	mux.HandleFunc("/{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = indexPage.Execute(w, s.path)
	})
	return mux
}

// Run binds the port and serves until ctx is done, then shuts down gracefully.
// A bind failure is returned before anything is served.
func (s *Server) Run(ctx context.Context) error {
	if s.registry == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Server", "Run", "metrics registry not provided")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return errors.WrapFatal(err, "Server", "Run", fmt.Sprintf("listen on port %d", s.port))
	}

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case err := <-served:
		return errors.WrapFatal(err, "Server", "Run", "serve")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.WrapTransient(err, "Server", "Run", "shutdown")
	}
	if err := <-served; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.WrapFatal(err, "Server", "Run", "serve")
	}
	return nil
}

// Address returns the metrics URL
func (s *Server) Address() string {
	return fmt.Sprintf("http://localhost:%d%s", s.port, s.path)
}
