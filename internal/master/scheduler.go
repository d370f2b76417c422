package master

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"yqhp/mandelbrot/internal/kernel"
	"yqhp/mandelbrot/internal/picture"
	"yqhp/mandelbrot/internal/stats"
	"yqhp/mandelbrot/internal/transport"
	"yqhp/mandelbrot/pkg/logger"
)

// Options configures a Scheduler. The zero value is usable.
type Options struct {
	Logger *zap.Logger
	// Recorder receives dispatch and completion events. A fresh one is
	// created when nil.
	Recorder *stats.Recorder
}

// state is the assignment bookkeeping of one run. Both counters only grow.
type state struct {
	nextRow       int
	rowsCompleted int
}

// Scheduler distributes rows to workers on demand.
type Scheduler struct {
	params   kernel.Params
	hub      transport.Hub
	logger   *zap.Logger
	recorder *stats.Recorder

	workers []transport.WorkerID
	picture *picture.Picture
	state   state

	// outstanding maps a worker to the row it currently holds.
	outstanding map[transport.WorkerID]int
}

// NewScheduler allocates the picture for params and binds the scheduler to
// the workers of hub.
func NewScheduler(params kernel.Params, hub transport.Hub, opts Options) (*Scheduler, error) {
	workers := hub.Workers()
	if len(workers) == 0 {
		return nil, ErrNoWorkers
	}

	pic, err := picture.New(params.Plane.Rows, params.Plane.Cols, params.MaxIterations)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.L()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = stats.NewRecorder()
	}

	return &Scheduler{
		params:      params,
		hub:         hub,
		logger:      log,
		recorder:    recorder,
		workers:     workers,
		picture:     pic,
		outstanding: make(map[transport.WorkerID]int, len(workers)),
	}, nil
}

// Run seeds the workers and serves completions until every row is in. The
// returned picture is complete; on error no picture is returned.
func (s *Scheduler) Run(ctx context.Context) (*picture.Picture, error) {
	rows := s.params.Plane.Rows
	s.logger.Info("render started",
		zap.Int("rows", rows),
		zap.Int("cols", s.params.Plane.Cols),
		zap.Int("max_iterations", s.params.MaxIterations),
		zap.Int("workers", len(s.workers)))

	if err := s.seed(ctx); err != nil {
		return nil, err
	}

	for s.state.rowsCompleted < rows {
		env, err := s.hub.RecvAny(ctx)
		if err != nil {
			if env.From != "" {
				return nil, fmt.Errorf("link to %s failed after %d/%d rows: %w", env.From, s.state.rowsCompleted, rows, err)
			}
			return nil, fmt.Errorf("receive after %d/%d rows: %w", s.state.rowsCompleted, rows, err)
		}

		if err := s.accept(env); err != nil {
			return nil, err
		}
		if err := s.next(ctx, env.From); err != nil {
			return nil, err
		}
	}

	summary := s.recorder.Summary()
	s.logger.Info("render finished", summary.Fields()...)
	return s.picture, nil
}

// Stats returns what the recorder saw so far.
func (s *Scheduler) Stats() stats.Summary {
	return s.recorder.Summary()
}

// seed hands rows 0..k-1 to the first k workers, k = min(rows, workers), and
// terminates the others right away.
func (s *Scheduler) seed(ctx context.Context) error {
	k := min(s.params.Plane.Rows, len(s.workers))
	for i, id := range s.workers {
		if i < k {
			if err := s.assign(ctx, id); err != nil {
				return err
			}
			continue
		}
		if err := s.terminate(ctx, id); err != nil {
			return err
		}
	}
	s.logger.Debug("workers seeded", zap.Int("seeded", k), zap.Int("idle", len(s.workers)-k))
	return nil
}

// accept validates a result and stores it.
func (s *Scheduler) accept(env transport.Envelope) error {
	msg := env.Msg
	if msg.Kind != transport.KindResult {
		return &ProtocolError{Worker: env.From, Msg: msg, Reason: "expected a row result"}
	}
	row, ok := s.outstanding[env.From]
	if !ok {
		return &ProtocolError{Worker: env.From, Msg: msg, Reason: "no row outstanding"}
	}
	if msg.Row != row {
		return &ProtocolError{Worker: env.From, Msg: msg, Reason: fmt.Sprintf("row %d was assigned", row)}
	}
	if err := s.picture.Set(msg.Row, msg.Pixels); err != nil {
		return &ProtocolError{Worker: env.From, Msg: msg, Reason: err.Error()}
	}

	delete(s.outstanding, env.From)
	s.state.rowsCompleted++
	s.recorder.Completed(env.From, time.Now())
	s.logger.Debug("row completed",
		zap.String("worker", string(env.From)),
		zap.Int("row", msg.Row),
		zap.Int("completed", s.state.rowsCompleted))
	return nil
}

// next answers a completion from id with another row or a termination.
func (s *Scheduler) next(ctx context.Context, id transport.WorkerID) error {
	if s.state.nextRow < s.params.Plane.Rows {
		return s.assign(ctx, id)
	}
	return s.terminate(ctx, id)
}

func (s *Scheduler) assign(ctx context.Context, id transport.WorkerID) error {
	row := s.state.nextRow
	if err := s.hub.Send(ctx, id, transport.WorkItem(row)); err != nil {
		return fmt.Errorf("assign row %d to %s: %w", row, id, err)
	}
	s.state.nextRow++
	s.outstanding[id] = row
	s.recorder.Dispatched(id, time.Now())
	return nil
}

func (s *Scheduler) terminate(ctx context.Context, id transport.WorkerID) error {
	if err := s.hub.Send(ctx, id, transport.Termination()); err != nil {
		return fmt.Errorf("terminate %s: %w", id, err)
	}
	s.logger.Debug("worker terminated", zap.String("worker", string(id)))
	return nil
}
