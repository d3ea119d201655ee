package bridge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/jscyril/soundbridge/api"
	playerrors "github.com/jscyril/soundbridge/pkg/errors"
	"github.com/jscyril/soundbridge/pkg/events"
)

const writeTimeout = 5 * time.Second

// Request is one command sent by the caller
type Request struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params Params `json:"params"`
}

// Reply carries the callback arguments of request ID, or a request error
type Reply struct {
	ID    int64                   `json:"id"`
	Args  []interface{}           `json:"args,omitempty"`
	Error *playerrors.BridgeError `json:"error,omitempty"`
}

// Push is an unsolicited session event
type Push struct {
	Event api.SessionEvent `json:"event"`
}

// Server carries the module over websocket connections
type Server struct {
	module  *Module
	bus     *events.EventBus
	origins []string
	logger  *zap.SugaredLogger

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// NewServer creates a server for module. bus may be nil to disable pushes.
func NewServer(module *Module, bus *events.EventBus, origins []string, logger *zap.SugaredLogger) *Server {
	return &Server{
		module:  module,
		bus:     bus,
		origins: origins,
		logger:  logger.Named("transport"),
	}
}

// ServeHTTP upgrades the request and serves commands until the peer leaves
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "bridge is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.logger.Warnw("Failed to accept websocket", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logger := s.logger.With("remote", r.RemoteAddr)
	logger.Debug("Caller connected")

	if s.bus != nil {
		sub := s.bus.SubscribeAll()
		defer s.bus.Unsubscribe(sub)
		go s.forwardEvents(ctx, conn, sub, logger)
	}

	for {
		var req Request
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				logger.Debug("Caller disconnected")
			} else {
				logger.Debugw("Connection ended", "error", err)
			}
			return
		}

		id := req.ID
		err := s.module.Invoke(ctx, req.Method, req.Params, func(args ...interface{}) {
			s.write(ctx, conn, Reply{ID: id, Args: args}, logger)
		})
		if err != nil {
			logger.Warnw("Rejected request", "id", id, "method", req.Method, "error", err)
			s.write(ctx, conn, Reply{ID: id, Error: &playerrors.BridgeError{Code: -2, Message: err.Error()}}, logger)
		}
	}
}

// track counts a connection unless shutdown has begun
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) forwardEvents(ctx context.Context, conn *websocket.Conn, sub <-chan api.SessionEvent, logger *zap.SugaredLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			s.write(ctx, conn, Push{Event: event}, logger)
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, v interface{}, logger *zap.SugaredLogger) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, conn, v); err != nil {
		logger.Debugw("Failed to write to caller", "error", err)
	}
}

// Serve accepts callers on ln until ctx is cancelled, then tears every
// session down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/"+s.module.Name(), s)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("Bridge listening", "addr", ln.Addr().String(), "path", "/"+s.module.Name())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.wg.Wait()
	s.module.OnDestroy()

	if err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
