// Package worker implements the compute side of the row protocol: receive one
// row, compute it, report it, wait for the next instruction.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"yqhp/mandelbrot/internal/kernel"
	"yqhp/mandelbrot/internal/transport"
	"yqhp/mandelbrot/pkg/logger"
)

// ErrUnexpectedMessage is returned when the master sends something a worker
// cannot act on. The run cannot recover from it.
var ErrUnexpectedMessage = errors.New("unexpected message from master")

// Stats summarises one worker's run.
type Stats struct {
	ID      transport.WorkerID
	Rows    int
	Busy    time.Duration
	Elapsed time.Duration
}

// Worker computes rows assigned by the master over an endpoint.
type Worker struct {
	endpoint transport.Endpoint
	params   kernel.Params
	logger   *zap.Logger

	// scratch is reused for every row; the transport copies it on send.
	scratch []int32
}

// New creates a worker. A nil logger falls back to the global logger.
func New(endpoint transport.Endpoint, params kernel.Params, log *zap.Logger) *Worker {
	if log == nil {
		log = logger.L()
	}
	return &Worker{
		endpoint: endpoint,
		params:   params,
		logger:   log.With(zap.String("worker", string(endpoint.ID()))),
		scratch:  make([]int32, params.Plane.Cols),
	}
}

// Run processes assignments until the master sends a termination. It returns
// an error if the link fails or the master sends something unexpected; the
// run is then lost.
func (w *Worker) Run(ctx context.Context) (Stats, error) {
	st := Stats{ID: w.endpoint.ID()}
	start := time.Now()

	for {
		msg, err := w.endpoint.Recv(ctx)
		if err != nil {
			st.Elapsed = time.Since(start)
			return st, fmt.Errorf("worker %s: receive: %w", st.ID, err)
		}

		switch msg.Kind {
		case transport.KindTerminate:
			st.Elapsed = time.Since(start)
			w.logger.Info("worker finished",
				zap.Int("rows", st.Rows),
				zap.Duration("busy", st.Busy),
				zap.Duration("elapsed", st.Elapsed))
			return st, nil

		case transport.KindWork:
			if msg.Row < 0 || msg.Row >= w.params.Plane.Rows {
				st.Elapsed = time.Since(start)
				return st, fmt.Errorf("worker %s: row %d out of range: %w", st.ID, msg.Row, ErrUnexpectedMessage)
			}

			t0 := time.Now()
			w.params.ComputeRow(msg.Row, w.scratch)
			st.Busy += time.Since(t0)

			if err := w.endpoint.Send(ctx, transport.RowResult(msg.Row, w.scratch)); err != nil {
				st.Elapsed = time.Since(start)
				return st, fmt.Errorf("worker %s: report row %d: %w", st.ID, msg.Row, err)
			}
			st.Rows++
			w.logger.Debug("row computed", zap.Int("row", msg.Row))

		default:
			st.Elapsed = time.Since(start)
			return st, fmt.Errorf("worker %s: %s: %w", st.ID, msg, ErrUnexpectedMessage)
		}
	}
}
