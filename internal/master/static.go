package master

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yqhp/mandelbrot/internal/kernel"
	"yqhp/mandelbrot/internal/picture"
	"yqhp/mandelbrot/pkg/logger"
)

// block is the half-open row range [start, end) owned by one static worker.
type block struct {
	start, end int
}

// partition splits rows into n contiguous blocks of rows/n rows. The last
// block also takes the remainder.
func partition(rows, n int) []block {
	size := rows / n
	blocks := make([]block, n)
	for i := range blocks {
		blocks[i] = block{start: i * size, end: (i + 1) * size}
	}
	blocks[n-1].end = rows
	return blocks
}

// RunStatic renders params with n goroutines, each owning one fixed block of
// rows. No rows move between workers once the run has started.
func RunStatic(ctx context.Context, params kernel.Params, n int, log *zap.Logger) (*picture.Picture, error) {
	if n < 1 {
		return nil, ErrNoWorkers
	}
	if log == nil {
		log = logger.L()
	}

	pic, err := picture.New(params.Plane.Rows, params.Plane.Cols, params.MaxIterations)
	if err != nil {
		return nil, err
	}

	cols := params.Plane.Cols
	blocks := partition(params.Plane.Rows, n)
	results := make([][]int32, n)

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range blocks {
		if b.start == b.end {
			continue
		}
		g.Go(func() error {
			buf := make([]int32, (b.end-b.start)*cols)
			for row := b.start; row < b.end; row++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				off := (row - b.start) * cols
				params.ComputeRow(row, buf[off:off+cols])
			}
			results[i] = buf
			log.Debug("block computed", zap.Int("block", i), zap.Int("start", b.start), zap.Int("end", b.end))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("static render: %w", err)
	}

	for i, b := range blocks {
		for row := b.start; row < b.end; row++ {
			off := (row - b.start) * cols
			if err := pic.Set(row, results[i][off:off+cols]); err != nil {
				return nil, err
			}
		}
	}
	log.Info("static render finished", zap.Int("rows", params.Plane.Rows), zap.Int("workers", n))
	return pic, nil
}
