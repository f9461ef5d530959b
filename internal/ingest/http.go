// Package ingest runs a small HTTP server that accepts POSTed JSON records
// into a bounded queue, feeding the stage chain as control messages. It is
// an offline companion to the capture path, not part of it.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gridcap/gridcap/internal/core"
	"github.com/gridcap/gridcap/internal/stage"
)

// Config configures the ingest server.
type Config struct {
	Listen       string `mapstructure:"listen"`
	Endpoint     string `mapstructure:"endpoint"`
	MaxQueueSize int    `mapstructure:"max_queue_size"`
	QueueTimeout string `mapstructure:"queue_timeout"`
}

// Server accepts records over HTTP. Records sit in a bounded channel until
// drained via Messages; when the channel stays full past the enqueue
// timeout, the client gets 503.
type Server struct {
	endpoint     string
	queueTimeout time.Duration
	queue        chan *stage.Control
	server       *http.Server
}

// New validates the config and builds the server.
func New(cfg *Config) (*Server, error) {
	if cfg.Listen == "" {
		return nil, fmt.Errorf("%w: ingest requires listen address", core.ErrConfigInvalid)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/message"
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 1024
	}
	queueTimeout := 100 * time.Millisecond
	if cfg.QueueTimeout != "" {
		d, err := time.ParseDuration(cfg.QueueTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: queue_timeout %q: %v", core.ErrConfigInvalid, cfg.QueueTimeout, err)
		}
		queueTimeout = d
	}

	s := &Server{
		endpoint:     cfg.Endpoint,
		queueTimeout: queueTimeout,
		queue:        make(chan *stage.Control, cfg.MaxQueueSize),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Endpoint, s.handle)
	s.server = &http.Server{Addr: cfg.Listen, Handler: mux}
	return s, nil
}

// Handler exposes the HTTP handler for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Messages is the drained side of the queue.
func (s *Server) Messages() <-chan *stage.Control { return s.queue }

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		http.Error(w, "body is not a JSON object", http.StatusBadRequest)
		return
	}

	ctl := &stage.Control{Name: r.URL.Path, Fields: fields}
	select {
	case s.queue <- ctl:
		w.WriteHeader(http.StatusCreated)
	case <-time.After(s.queueTimeout):
		http.Error(w, core.ErrQueueFull.Error(), http.StatusServiceUnavailable)
	}
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	slog.Info("ingest server starting", "listen", s.server.Addr, "endpoint", s.endpoint)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ingest server: %w", err)
	}
	return nil
}

// Stop shuts the server down and closes the queue so consumers drain out.
func (s *Server) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	close(s.queue)
	return err
}
