package wstransport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"yqhp/mandelbrot/internal/kernel"
	"yqhp/mandelbrot/internal/transport"
	"yqhp/mandelbrot/pkg/logger"
)

const handshakeTimeout = 10 * time.Second

// Endpoint is the worker side of a websocket connection to the master.
type Endpoint struct {
	id     transport.WorkerID
	ws     *websocket.Conn
	logger *zap.Logger

	inbox chan transport.Message
	// readErr is set before inbox is closed.
	readErr error

	done      chan struct{}
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to the master at addr and registers as id. An empty id lets
// the master choose one. It returns the endpoint and the render parameters
// the master handed out.
func Dial(ctx context.Context, addr, id string, log *zap.Logger) (*Endpoint, kernel.Params, error) {
	if log == nil {
		log = logger.L()
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, toWebSocketURL(addr)+WorkerPath, nil)
	if err != nil {
		return nil, kernel.Params{}, fmt.Errorf("websocket dial failed: %w", err)
	}

	reg, err := encodeFrame(frameRegister, registerRequest{WorkerID: id})
	if err == nil {
		err = ws.WriteMessage(websocket.TextMessage, reg)
	}
	if err != nil {
		ws.Close()
		return nil, kernel.Params{}, fmt.Errorf("send register frame failed: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
	}
	_, raw, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, kernel.Params{}, fmt.Errorf("read register ack failed: %w", err)
	}
	_ = ws.SetReadDeadline(time.Time{})

	f, err := decodeFrame(raw)
	if err == nil && f.Type != frameRegisterAck {
		err = fmt.Errorf("%w: unexpected ack type %q", ErrMalformedFrame, f.Type)
	}
	var ack registerAck
	if err == nil {
		err = decodePayload(f, &ack)
	}
	if err != nil {
		ws.Close()
		return nil, kernel.Params{}, err
	}
	if !ack.Accepted {
		ws.Close()
		return nil, kernel.Params{}, fmt.Errorf("%w: %s", ErrRegistrationRejected, ack.Error)
	}

	e := &Endpoint{
		id:     transport.WorkerID(ack.WorkerID),
		ws:     ws,
		logger: log,
		inbox:  make(chan transport.Message, sendBuffer),
		done:   make(chan struct{}),
	}
	go e.readPump()
	return e, ack.Params, nil
}

func (e *Endpoint) ID() transport.WorkerID { return e.id }

func (e *Endpoint) Send(ctx context.Context, msg transport.Message) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = e.ws.SetWriteDeadline(deadline)
		defer e.ws.SetWriteDeadline(time.Time{})
	}
	if err := e.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", msg, err)
	}
	return nil
}

func (e *Endpoint) Recv(ctx context.Context) (transport.Message, error) {
	select {
	case msg, ok := <-e.inbox:
		if !ok {
			return transport.Message{}, fmt.Errorf("%w: %v", transport.ErrClosed, e.readErr)
		}
		return msg, nil
	case <-ctx.Done():
		return transport.Message{}, ctx.Err()
	}
}

// Close says goodbye to the master and drops the connection.
func (e *Endpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.done)
		e.writeMu.Lock()
		_ = e.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		e.writeMu.Unlock()
		err = e.ws.Close()
	})
	return err
}

func (e *Endpoint) readPump() {
	defer close(e.inbox)
	for {
		_, raw, err := e.ws.ReadMessage()
		if err != nil {
			e.readErr = err
			return
		}

		f, err := decodeFrame(raw)
		var msg transport.Message
		if err == nil {
			msg, err = decodeMessage(f)
		}
		if err == nil && msg.Kind == transport.KindResult {
			err = fmt.Errorf("%w: master sent %s", ErrMalformedFrame, msg)
		}
		if err != nil {
			e.logger.Error("ws: bad frame from master", zap.Error(err))
			e.readErr = err
			return
		}
		select {
		case e.inbox <- msg:
		case <-e.done:
			e.readErr = transport.ErrClosed
			return
		}
	}
}

// toWebSocketURL accepts host:port or an http(s) or ws(s) URL.
func toWebSocketURL(addr string) string {
	addr = strings.TrimRight(addr, "/")
	switch {
	case strings.HasPrefix(addr, "https://"):
		return "wss://" + strings.TrimPrefix(addr, "https://")
	case strings.HasPrefix(addr, "http://"):
		return "ws://" + strings.TrimPrefix(addr, "http://")
	case strings.HasPrefix(addr, "ws://"), strings.HasPrefix(addr, "wss://"):
		return addr
	default:
		return "ws://" + addr
	}
}
