package wstransport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"yqhp/mandelbrot/internal/kernel"
	"yqhp/mandelbrot/internal/transport"
	"yqhp/mandelbrot/pkg/logger"
)

const (
	apiPrefix = "/api/v1"

	// WorkerPath is the websocket endpoint workers dial.
	WorkerPath = apiPrefix + "/worker-ws"
	// HealthPath answers liveness checks.
	HealthPath = apiPrefix + "/health"
	// StatusPath serves a StatusResponse.
	StatusPath = apiPrefix + "/status"

	sendBuffer      = 4
	shutdownTimeout = 2 * time.Second
)

// ErrRegistrationRejected is returned to a worker the master would not admit.
var ErrRegistrationRejected = errors.New("registration rejected")

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address is used by ListenAndServe, e.g. ":7070".
	Address string
	// Workers is the exact number of workers the run waits for.
	Workers int
	// Params is handed to every worker on registration.
	Params kernel.Params
	Logger *zap.Logger
}

// Server is the master side of the websocket transport.
type Server struct {
	cfg    ServerConfig
	app    *fiber.App
	logger *zap.Logger
	box    *transport.Mailbox

	mu    sync.RWMutex
	conns map[transport.WorkerID]*workerConn
	order []transport.WorkerID
	ready chan struct{}

	assigned  atomic.Int64
	completed atomic.Int64

	closeOnce sync.Once
}

// workerConn is one registered worker connection.
type workerConn struct {
	id         transport.WorkerID
	ws         *fiberws.Conn
	send       chan outFrame
	done       chan struct{}
	once       sync.Once
	terminated atomic.Bool
	// flushed is closed once the termination frame is on the wire.
	flushed chan struct{}
}

type outFrame struct {
	data      []byte
	terminate bool
}

func (c *workerConn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// NewServer creates a server waiting for cfg.Workers workers.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("wstransport: at least one worker is required, got %d", cfg.Workers)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.L()
	}

	app := fiber.New(fiber.Config{
		AppName:               "mandelbrot master",
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
	})

	s := &Server{
		cfg:    cfg,
		app:    app,
		logger: log,
		box:    transport.NewMailbox(cfg.Workers),
		conns:  make(map[transport.WorkerID]*workerConn, cfg.Workers),
		ready:  make(chan struct{}),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.app.Get(HealthPath, s.healthCheck)
	s.app.Get(StatusPath, s.status)

	s.app.Use(WorkerPath, func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get(WorkerPath, fiberws.New(s.handleConnection))
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// ListenAndServe serves on cfg.Address until Close.
func (s *Server) ListenAndServe() error {
	return s.app.Listen(s.cfg.Address)
}

// Serve serves on an existing listener until Close.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// WaitForWorkers blocks until every expected worker has registered.
func (s *Server) WaitForWorkers(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.box.Done():
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Workers returns the registered workers in registration order.
func (s *Server) Workers() []transport.WorkerID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]transport.WorkerID, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Server) Send(ctx context.Context, to transport.WorkerID, msg transport.Message) error {
	s.mu.RLock()
	conn, ok := s.conns[to]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("send to %s: %w", to, transport.ErrUnknownWorker)
	}

	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	// Marked before queueing: the worker may hang up as soon as the frame is
	// written.
	terminate := msg.Kind == transport.KindTerminate
	if terminate {
		conn.terminated.Store(true)
	}

	select {
	case conn.send <- outFrame{data: data, terminate: terminate}:
	case <-conn.done:
		err = fmt.Errorf("send to %s: %w", to, transport.ErrClosed)
	case <-s.box.Done():
		err = transport.ErrClosed
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		if terminate {
			conn.terminated.Store(false)
		}
		return err
	}
	if msg.Kind == transport.KindWork {
		s.assigned.Add(1)
	}
	return nil
}

func (s *Server) RecvAny(ctx context.Context) (transport.Envelope, error) {
	return s.box.Receive(ctx, nil)
}

func (s *Server) Recv(ctx context.Context, from transport.WorkerID) (transport.Message, error) {
	s.mu.RLock()
	_, ok := s.conns[from]
	s.mu.RUnlock()
	if !ok {
		return transport.Message{}, fmt.Errorf("receive from %s: %w", from, transport.ErrUnknownWorker)
	}
	env, err := s.box.Receive(ctx, func(id transport.WorkerID) bool { return id == from })
	return env.Msg, err
}

// Close disconnects every worker and stops the http server.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.box.Close()
		s.mu.RLock()
		conns := make([]*workerConn, 0, len(s.conns))
		for _, c := range s.conns {
			conns = append(conns, c)
		}
		s.mu.RUnlock()

		deadline := time.NewTimer(shutdownTimeout)
		defer deadline.Stop()
		for _, c := range conns {
			if c.terminated.Load() {
				select {
				case <-c.flushed:
				case <-c.done:
				case <-deadline.C:
				}
			}
			c.close()
		}
		err = s.app.ShutdownWithTimeout(shutdownTimeout)
	})
	return err
}

// register admits a worker or explains why it cannot.
func (s *Server) register(c *workerConn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.box.Done():
		return transport.ErrClosed
	default:
	}
	if len(s.order) >= s.cfg.Workers {
		return fmt.Errorf("all %d workers already registered", s.cfg.Workers)
	}
	if _, dup := s.conns[c.id]; dup {
		return fmt.Errorf("worker id %q already registered", c.id)
	}

	s.conns[c.id] = c
	s.order = append(s.order, c.id)
	if len(s.order) == s.cfg.Workers {
		close(s.ready)
	}
	return nil
}

func (s *Server) handleConnection(c *fiberws.Conn) {
	_, raw, err := c.ReadMessage()
	if err != nil {
		s.logger.Warn("ws: read register frame failed", zap.Error(err))
		return
	}
	f, err := decodeFrame(raw)
	if err == nil && f.Type != frameRegister {
		err = fmt.Errorf("%w: expected register, got %q", ErrMalformedFrame, f.Type)
	}
	var req registerRequest
	if err == nil {
		err = decodePayload(f, &req)
	}
	if err != nil {
		s.logger.Warn("ws: bad register frame", zap.Error(err))
		s.reject(c, err)
		return
	}

	id := transport.WorkerID(req.WorkerID)
	if id == "" {
		id = transport.WorkerID(uuid.NewString())
	}
	conn := &workerConn{
		id:      id,
		ws:      c,
		send:    make(chan outFrame, sendBuffer),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
	}
	if err := s.register(conn); err != nil {
		s.logger.Warn("ws: registration rejected", zap.String("worker", string(id)), zap.Error(err))
		s.reject(c, err)
		return
	}

	ack, err := encodeFrame(frameRegisterAck, registerAck{Accepted: true, WorkerID: string(id), Params: s.cfg.Params})
	if err == nil {
		err = c.WriteMessage(fiberws.TextMessage, ack)
	}
	if err != nil {
		s.linkFailed(conn, fmt.Errorf("send register ack: %w", err))
		conn.close()
		return
	}
	s.logger.Info("ws: worker registered", zap.String("worker", string(id)), zap.String("remote", c.RemoteAddr().String()))

	go s.writePump(conn)
	s.readPump(conn)
	conn.close()
	s.logger.Info("ws: worker disconnected", zap.String("worker", string(id)))
}

func (s *Server) reject(c *fiberws.Conn, reason error) {
	ack, err := encodeFrame(frameRegisterAck, registerAck{Accepted: false, Error: reason.Error()})
	if err != nil {
		return
	}
	_ = c.WriteMessage(fiberws.TextMessage, ack)
}

// readPump forwards results into the mailbox until the connection ends.
func (s *Server) readPump(c *workerConn) {
	ctx := context.Background()
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if !c.terminated.Load() {
				s.linkFailed(c, fmt.Errorf("worker %s disconnected: %w", c.id, err))
			}
			return
		}

		f, err := decodeFrame(raw)
		var msg transport.Message
		if err == nil {
			msg, err = decodeMessage(f)
		}
		if err == nil && msg.Kind != transport.KindResult {
			err = fmt.Errorf("%w: worker sent %s", ErrMalformedFrame, msg)
		}
		if err != nil {
			s.linkFailed(c, err)
			return
		}

		if err := s.box.Deliver(ctx, transport.Envelope{From: c.id, Msg: msg}); err != nil {
			return
		}
		s.completed.Add(1)
	}
}

func (s *Server) writePump(c *workerConn) {
	for {
		select {
		case out := <-c.send:
			if err := c.ws.WriteMessage(fiberws.TextMessage, out.data); err != nil {
				s.linkFailed(c, fmt.Errorf("write to %s: %w", c.id, err))
				c.close()
				return
			}
			if out.terminate {
				close(c.flushed)
				return
			}
		case <-c.done:
			return
		}
	}
}

// linkFailed reports a broken worker link to the master.
func (s *Server) linkFailed(c *workerConn, err error) {
	_ = s.box.Deliver(context.Background(), transport.Envelope{From: c.id, Err: err})
}

// StatusResponse is the body served at StatusPath.
type StatusResponse struct {
	WorkersExpected   int   `json:"workers_expected"`
	WorkersRegistered int   `json:"workers_registered"`
	RowsTotal         int   `json:"rows_total"`
	RowsAssigned      int64 `json:"rows_assigned"`
	RowsCompleted     int64 `json:"rows_completed"`
}

func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) status(c *fiber.Ctx) error {
	s.mu.RLock()
	registered := len(s.order)
	s.mu.RUnlock()
	return c.JSON(StatusResponse{
		WorkersExpected:   s.cfg.Workers,
		WorkersRegistered: registered,
		RowsTotal:         s.cfg.Params.Plane.Rows,
		RowsAssigned:      s.assigned.Load(),
		RowsCompleted:     s.completed.Load(),
	})
}
