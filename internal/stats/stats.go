// Package stats records how rows flowed through a run: per-worker counts and
// the round-trip latency of every assignment.
package stats

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"go.uber.org/zap"

	"yqhp/mandelbrot/internal/transport"
)

const (
	minLatency = int64(1)                            // 1µs
	maxLatency = int64(time.Hour / time.Microsecond) // 1h
	sigFigs    = 3
)

// WorkerStats is the master's view of one worker.
type WorkerStats struct {
	ID   transport.WorkerID
	Rows int
	// Busy is the sum of round trips of the worker's rows.
	Busy time.Duration
}

// Recorder is owned by the master loop and is not safe for concurrent use.
type Recorder struct {
	start      time.Time
	latency    *hdrhistogram.Histogram
	workers    map[transport.WorkerID]*WorkerStats
	order      []transport.WorkerID
	dispatched map[transport.WorkerID]time.Time
	rows       int
}

// NewRecorder starts the wall clock.
func NewRecorder() *Recorder {
	return &Recorder{
		start:      time.Now(),
		latency:    hdrhistogram.New(minLatency, maxLatency, sigFigs),
		workers:    make(map[transport.WorkerID]*WorkerStats),
		dispatched: make(map[transport.WorkerID]time.Time),
	}
}

func (r *Recorder) worker(id transport.WorkerID) *WorkerStats {
	ws, ok := r.workers[id]
	if !ok {
		ws = &WorkerStats{ID: id}
		r.workers[id] = ws
		r.order = append(r.order, id)
	}
	return ws
}

// Dispatched notes that a row was handed to id at the given time.
func (r *Recorder) Dispatched(id transport.WorkerID, at time.Time) {
	r.worker(id)
	r.dispatched[id] = at
}

// Completed notes that id reported its outstanding row at the given time.
func (r *Recorder) Completed(id transport.WorkerID, at time.Time) {
	ws := r.worker(id)
	ws.Rows++
	r.rows++

	sent, ok := r.dispatched[id]
	if !ok {
		return
	}
	delete(r.dispatched, id)

	rtt := at.Sub(sent)
	ws.Busy += rtt
	us := rtt.Microseconds()
	if us < minLatency {
		us = minLatency
	}
	if us > maxLatency {
		us = maxLatency
	}
	_ = r.latency.RecordValue(us)
}

// Summary is a snapshot of a recorder.
type Summary struct {
	Rows    int
	Wall    time.Duration
	Mean    time.Duration
	P50     time.Duration
	P95     time.Duration
	P99     time.Duration
	Max     time.Duration
	Workers []WorkerStats
}

// Summary returns the statistics collected so far.
func (r *Recorder) Summary() Summary {
	s := Summary{
		Rows: r.rows,
		Wall: time.Since(r.start),
	}
	if r.latency.TotalCount() > 0 {
		us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
		s.Mean = time.Duration(r.latency.Mean() * float64(time.Microsecond))
		s.P50 = us(r.latency.ValueAtQuantile(50))
		s.P95 = us(r.latency.ValueAtQuantile(95))
		s.P99 = us(r.latency.ValueAtQuantile(99))
		s.Max = us(r.latency.Max())
	}
	for _, id := range r.order {
		s.Workers = append(s.Workers, *r.workers[id])
	}
	return s
}

// Fields flattens the summary for a structured log line.
func (s Summary) Fields() []zap.Field {
	return []zap.Field{
		zap.Int("rows", s.Rows),
		zap.Duration("wall", s.Wall),
		zap.Duration("row_rtt_mean", s.Mean),
		zap.Duration("row_rtt_p95", s.P95),
		zap.Duration("row_rtt_max", s.Max),
		zap.Int("workers", len(s.Workers)),
	}
}

// WriteTo prints a human readable table.
func (s Summary) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	tw := tabwriter.NewWriter(cw, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "rows\t%d\n", s.Rows)
	fmt.Fprintf(tw, "wall time\t%s\n", s.Wall.Round(time.Microsecond))
	fmt.Fprintf(tw, "row round trip\tmean %s  p50 %s  p95 %s  p99 %s  max %s\n",
		s.Mean.Round(time.Microsecond), s.P50, s.P95, s.P99, s.Max)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "worker\trows\tbusy\t")
	for _, ws := range s.Workers {
		fmt.Fprintf(tw, "%s\t%d\t%s\t\n", ws.ID, ws.Rows, ws.Busy.Round(time.Microsecond))
	}
	err := tw.Flush()
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
