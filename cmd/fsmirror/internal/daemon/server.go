package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/albertocavalcante/fsmirror/internal/log"
)

// shutdownTimeout bounds how long Shutdown waits for client goroutines.
const shutdownTimeout = 5 * time.Second

// Server listens on a Unix socket and serves one Handler to every client.
type Server struct {
	paths     *Paths
	listener  net.Listener
	handler   *Handler
	startTime time.Time
	version   string

	clientsMu sync.RWMutex
	clients   map[*ClientConn]struct{}

	shutdownMu  sync.Mutex
	shutdown    chan struct{}
	requested   bool
	isShutdown  bool
	shutdownErr error
	wg          sync.WaitGroup
}

// ClientConn is one connected client.
type ClientConn struct {
	conn       net.Conn
	encoder    *json.Encoder
	decoder    *json.Decoder
	encoderMu  sync.Mutex
	subscribed atomic.Bool // receives watch/event notifications
	closed     atomic.Bool
}

// ServerConfig configures the daemon server.
type ServerConfig struct {
	Paths   *Paths
	Version string
	// Handler serves requests. Without one the server only answers ping and
	// shutdown.
	Handler *Handler
}

// NewServer creates a daemon server.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		paths:     cfg.Paths,
		version:   cfg.Version,
		clients:   make(map[*ClientConn]struct{}),
		shutdown:  make(chan struct{}),
		startTime: time.Now(),
		handler:   cfg.Handler,
	}
	if s.handler == nil {
		s.handler = NewHandler(HandlerConfig{})
	}
	s.handler.server = s
	return s
}

// Start listens on the socket and serves clients until ctx is done, the
// process is interrupted or a client requests shutdown.
func (s *Server) Start(ctx context.Context) error {
	logger := log.Component("daemon")

	if _, err := CleanupStale(s.paths); err != nil {
		logger.Warnw("failed to clean up stale files", "error", err)
	}
	if err := s.paths.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create daemon directory: %w", err)
	}

	listener, err := net.Listen("unix", s.paths.Socket)
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.paths.Socket, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}
	if err := s.paths.WritePID(); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	logger.Infow("daemon started",
		"pid", os.Getpid(),
		"socket", s.paths.Socket,
		"version", s.version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	s.wg.Add(1)
	go s.acceptLoop()

	select {
	case <-ctx.Done():
		logger.Infow("context cancelled, shutting down")
	case sig := <-sigCh:
		logger.Infow("received signal, shutting down", "signal", sig)
	case <-s.shutdown:
		logger.Infow("shutdown requested via RPC")
	}

	return s.Shutdown()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	logger := log.Component("daemon")

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closing() || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warnw("accept error", "error", err)
			continue
		}

		client := &ClientConn{
			conn:    conn,
			encoder: json.NewEncoder(conn),
			decoder: json.NewDecoder(bufio.NewReader(conn)),
		}

		s.clientsMu.Lock()
		s.clients[client] = struct{}{}
		count := len(s.clients)
		s.clientsMu.Unlock()
		logger.Debugw("client connected", "client_count", count)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(client)
		}()
	}
}

func (s *Server) closing() bool {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	return s.isShutdown
}

// serve answers requests from one client until it disconnects.
func (s *Server) serve(client *ClientConn) {
	logger := log.Component("daemon")
	defer func() {
		client.Close()
		s.clientsMu.Lock()
		delete(s.clients, client)
		count := len(s.clients)
		s.clientsMu.Unlock()
		logger.Debugw("client disconnected", "client_count", count)
	}()

	for {
		var req Request
		if err := client.decoder.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || client.closed.Load() {
				return
			}
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				resp := NewErrorResponse(nil, ErrCodeInvalidRequest, "Invalid Request", typeErr.Error())
				if err := client.Send(resp); err != nil {
					return
				}
				continue
			}
			// The decoder cannot resynchronize after malformed input.
			logger.Debugw("failed to decode request", "error", err)
			_ = client.Send(NewErrorResponse(nil, ErrCodeParseError, "Parse error", nil))
			return
		}

		if req.JSONRPC != JSONRPCVersion {
			resp := NewErrorResponse(req.ID, ErrCodeInvalidRequest, "Invalid Request: unsupported JSON-RPC version", nil)
			if err := client.Send(resp); err != nil {
				return
			}
			continue
		}

		resp := s.handler.HandleRequest(client, &req)
		if resp == nil || req.ID == nil {
			// Notifications get no response.
			continue
		}
		if err := client.Send(resp); err != nil {
			logger.Debugw("failed to send response", "error", err)
			return
		}
	}
}

// Shutdown stops accepting clients, stops the watcher, closes every
// connection and removes the socket and PID files. It is idempotent.
func (s *Server) Shutdown() error {
	s.shutdownMu.Lock()
	if s.isShutdown {
		s.shutdownMu.Unlock()
		return s.shutdownErr
	}
	s.isShutdown = true
	s.shutdownMu.Unlock()

	logger := log.Component("daemon")
	logger.Infow("shutting down daemon")

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Warnw("failed to close listener", "error", err)
		}
	}

	s.notifyShutdown()
	s.handler.Stop()

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clientsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warnw("shutdown timed out waiting for clients")
	}

	if err := s.paths.Cleanup(); err != nil {
		logger.Warnw("failed to clean up daemon files", "error", err)
		s.shutdownMu.Lock()
		s.shutdownErr = err
		s.shutdownMu.Unlock()
	}

	logger.Infow("daemon stopped")
	return s.shutdownErr
}

// RequestShutdown makes Start return. Repeated calls are ignored.
func (s *Server) RequestShutdown() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	if !s.requested {
		s.requested = true
		close(s.shutdown)
	}
}

func (s *Server) notifyShutdown() {
	notif, err := NewNotification(MethodWatchEvent, WatchEventParams{
		Type:      EventShutdown,
		Message:   "daemon is shutting down",
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	s.Broadcast(notif)
}

// Broadcast sends a notification to every subscribed client.
func (s *Server) Broadcast(notif *Notification) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		if client.subscribed.Load() {
			_ = client.Send(notif)
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// GetInfo returns information about the running daemon.
func (s *Server) GetInfo() *DaemonInfo {
	status := s.handler.GetWatchStatus()
	return &DaemonInfo{
		PID:         os.Getpid(),
		SocketPath:  s.paths.Socket,
		StartTime:   s.startTime,
		Version:     s.version,
		Watching:    status.Watching,
		WatchPaths:  status.Paths,
		ClientCount: s.ClientCount(),
	}
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Send writes one message to the client. It is safe for concurrent use.
func (c *ClientConn) Send(msg any) error {
	if c.closed.Load() {
		return net.ErrClosed
	}
	c.encoderMu.Lock()
	defer c.encoderMu.Unlock()
	return c.encoder.Encode(msg)
}

// Close closes the client connection. It is idempotent.
func (c *ClientConn) Close() {
	if c.closed.CompareAndSwap(false, true) {
		_ = c.conn.Close()
	}
}

// Subscribe enables watch/event notifications for this client.
func (c *ClientConn) Subscribe() {
	c.subscribed.Store(true)
}

// Unsubscribe disables watch/event notifications for this client.
func (c *ClientConn) Unsubscribe() {
	c.subscribed.Store(false)
}
