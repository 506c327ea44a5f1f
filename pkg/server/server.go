package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Server accepts WebSocket connections and feeds decoded packets to a Handler.
//
// A Server holds no per-connection state; each accepted connection is driven
// independently and may run concurrently with the others.
type Server struct {
	// Configuration
	config *ServerConfig

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// Packet handling
	mu         sync.RWMutex
	handler    Handler
	middleware []Middleware

	// Connection ids, starting at 1
	nextID atomic.Uint64

	metrics *MetricsCollector
	logger  *slog.Logger
}

// New creates a new Server with the given configuration.
// Unset fields are filled from DefaultServerConfig.
func New(config *ServerConfig) *Server {
	if config == nil {
		config = DefaultServerConfig()
	} else {
		config.fillDefaults()
	}

	logger := slog.Default().With("component", "server")
	if err := config.Validate(); err != nil {
		logger.Error("config validation failed", "error", err)
	}

	s := &Server{
		config: config,
		upgrader: websocket.Upgrader{
			HandshakeTimeout:  config.ConnConfig.HandshakeTimeout,
			ReadBufferSize:    config.ReadBufferSize,
			WriteBufferSize:   config.WriteBufferSize,
			CheckOrigin:       config.CheckOrigin,
			EnableCompression: config.EnableCompression,
		},
		metrics: NewMetricsCollector(),
		logger:  logger,
	}
	s.handler = LogHandler(logger)
	return s
}

// SetHandler sets the packet handler. Connections accepted afterwards use it.
func (s *Server) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Use appends middleware around the packet handler.
// The first middleware added is the outermost.
func (s *Server) Use(mws ...Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middleware = append(s.middleware, mws...)
}

// chain returns the handler wrapped in the current middleware.
func (s *Server) chain() Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Chain(s.handler, s.middleware...)
}

// AcceptConnection performs the WebSocket handshake on a raw stream and then
// drives the connection until it ends. It blocks for the lifetime of the
// connection and always closes netConn before returning.
//
// A clean close by the peer returns nil. Every other ending returns a
// *ConnError, or ctx.Err() when ctx was cancelled first.
func (s *Server) AcceptConnection(ctx context.Context, netConn net.Conn) error {
	id := s.nextID.Add(1)

	stop := context.AfterFunc(ctx, func() {
		netConn.Close()
	})
	ws, err := s.handshake(netConn)
	stop()
	if err != nil {
		netConn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.metrics.RecordConnError(KindHandshakeFailed)
		return &ConnError{ConnID: id, Kind: KindHandshakeFailed, Err: err}
	}
	return s.serveConn(ctx, id, ws)
}

// ServeHTTP upgrades an HTTP request to a WebSocket connection and drives it
// until it ends. Failed upgrades are answered by the upgrader.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := s.nextID.Add(1)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.metrics.RecordConnError(KindHandshakeFailed)
		s.logConnResult(&ConnError{ConnID: id, Kind: KindHandshakeFailed, Err: err})
		return
	}
	s.logConnResult(s.serveConn(r.Context(), id, ws))
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s
}

// serveConn runs the driver on an upgraded connection.
func (s *Server) serveConn(ctx context.Context, id uint64, ws *websocket.Conn) error {
	cfg := s.config.ConnConfig
	ws.SetReadLimit(cfg.MaxMessageSize)

	logger := s.Logger().With("conn_id", id, "remote_addr", ws.RemoteAddr().String())
	c := &Conn{
		id:      id,
		remote:  ws.RemoteAddr(),
		source:  newFrameSource(ws, cfg),
		out:     ws,
		handler: s.chain(),
		config:  cfg,
		metrics: s.metrics,
		logger:  logger,
	}

	stop := context.AfterFunc(ctx, func() {
		ws.Close()
	})
	defer stop()
	defer ws.Close()

	s.metrics.RecordConnOpened()
	logger.Debug("connection opened")

	err := c.run(ctx)
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	s.metrics.RecordConnClosed(err == nil)
	return err
}

// Serve accepts raw streams from ln and runs AcceptConnection on each in its
// own goroutine. It returns nil once ctx is cancelled and every connection
// has ended, or the first accept error otherwise.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	s.Logger().Info("server listening", "address", ln.Addr().String())

	var backoff time.Duration
	for {
		netConn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isTimeout(err) {
				backoff = nextBackoff(backoff)
				s.Logger().Warn("accept error, retrying", "error", err, "backoff", backoff)
				select {
				case <-time.After(backoff):
					continue
				case <-ctx.Done():
					return nil
				}
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		backoff = 0

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logConnResult(s.AcceptConnection(ctx, netConn))
		}()
	}
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

// logConnResult logs how a connection ended.
func (s *Server) logConnResult(err error) {
	logger := s.Logger()
	var ce *ConnError
	switch {
	case err == nil:
		logger.Debug("connection closed")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Debug("connection cancelled", "error", err)
	case errors.As(err, &ce) && ce.Kind == KindHandshakeFailed:
		logger.Info("handshake failed", "conn_id", ce.ConnID, "error", err)
	default:
		logger.Warn("connection failed", "error", err)
	}
}

// Metrics returns a snapshot of server metrics.
func (s *Server) Metrics() *ServerMetrics {
	return s.metrics.Snapshot()
}

// Collector returns the live metrics collector.
func (s *Server) Collector() *MetricsCollector {
	return s.metrics
}

// Config returns the server configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}

// SetLogger sets the server logger. It is safe to call while serving;
// connections already open keep the logger they started with, and the
// default handler keeps the logger it was created with.
func (s *Server) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}
