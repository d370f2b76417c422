package wstransport

import (
	"context"
	"io"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"yqhp/mandelbrot/internal/kernel"
	"yqhp/mandelbrot/internal/master"
	"yqhp/mandelbrot/internal/transport"
	"yqhp/mandelbrot/internal/worker"
)

func testParams() kernel.Params {
	return kernel.Params{
		Plane:         kernel.Plane{StartX: -2, StartY: -1, EndX: 1, EndY: 1, Rows: 12, Cols: 5},
		MaxIterations: 30,
	}
}

// startServer serves on a random local port and returns the address.
func startServer(t *testing.T, workers int) (*Server, string) {
	t.Helper()
	srv, err := NewServer(ServerConfig{Workers: workers, Params: testParams()})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })
	return srv, ln.Addr().String()
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRenderOverWebSocket(t *testing.T) {
	const workers = 3
	srv, addr := startServer(t, workers)
	ctx := testContext(t)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			ep, params, err := Dial(gctx, addr, "", nil)
			if err != nil {
				return err
			}
			defer ep.Close()
			_, err = worker.New(ep, params, nil).Run(gctx)
			return err
		})
	}

	require.NoError(t, srv.WaitForWorkers(ctx))
	assert.Len(t, srv.Workers(), workers)

	params := testParams()
	s, err := master.NewScheduler(params, srv, master.Options{})
	require.NoError(t, err)
	pic, err := s.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, g.Wait())

	want := make([]int32, params.Plane.Cols)
	for row := 0; row < params.Plane.Rows; row++ {
		params.ComputeRow(row, want)
		assert.Equal(t, want, pic.Row(row), "row %d", row)
	}
}

func TestDialReceivesParams(t *testing.T) {
	_, addr := startServer(t, 1)

	ep, params, err := Dial(testContext(t), "http://"+addr, "worker-a", nil)
	require.NoError(t, err)
	defer ep.Close()

	assert.Equal(t, testParams(), params)
	assert.Equal(t, transport.WorkerID("worker-a"), ep.ID())
}

func TestEmptyWorkerIDIsAssigned(t *testing.T) {
	_, addr := startServer(t, 1)

	ep, _, err := Dial(testContext(t), addr, "", nil)
	require.NoError(t, err)
	defer ep.Close()

	_, err = uuid.Parse(string(ep.ID()))
	assert.NoError(t, err)
}

func TestRegistrationRejected(t *testing.T) {
	t.Run("duplicate id", func(t *testing.T) {
		_, addr := startServer(t, 2)
		ctx := testContext(t)

		ep, _, err := Dial(ctx, addr, "same", nil)
		require.NoError(t, err)
		defer ep.Close()

		_, _, err = Dial(ctx, addr, "same", nil)
		assert.ErrorIs(t, err, ErrRegistrationRejected)
	})

	t.Run("topology full", func(t *testing.T) {
		srv, addr := startServer(t, 1)
		ctx := testContext(t)

		ep, _, err := Dial(ctx, addr, "", nil)
		require.NoError(t, err)
		defer ep.Close()
		require.NoError(t, srv.WaitForWorkers(ctx))

		_, _, err = Dial(ctx, addr, "", nil)
		assert.ErrorIs(t, err, ErrRegistrationRejected)
		assert.Len(t, srv.Workers(), 1)
	})
}

func TestDisconnectBeforeTerminationFailsLink(t *testing.T) {
	srv, addr := startServer(t, 1)
	ctx := testContext(t)

	ep, _, err := Dial(ctx, addr, "flaky", nil)
	require.NoError(t, err)
	require.NoError(t, srv.WaitForWorkers(ctx))

	require.NoError(t, srv.Send(ctx, "flaky", transport.WorkItem(0)))
	msg, err := ep.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, transport.WorkItem(0), msg)

	require.NoError(t, ep.Close())

	env, err := srv.RecvAny(ctx)
	require.Error(t, err)
	assert.Equal(t, transport.WorkerID("flaky"), env.From)
}

func TestDisconnectAfterTerminationIsClean(t *testing.T) {
	srv, addr := startServer(t, 1)
	ctx := testContext(t)

	ep, _, err := Dial(ctx, addr, "w", nil)
	require.NoError(t, err)
	require.NoError(t, srv.WaitForWorkers(ctx))

	require.NoError(t, srv.Send(ctx, "w", transport.Termination()))
	msg, err := ep.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, transport.Termination(), msg)
	require.NoError(t, ep.Close())

	short, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = srv.RecvAny(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRecvFromSpecificWorker(t *testing.T) {
	srv, addr := startServer(t, 2)
	ctx := testContext(t)

	a, _, err := Dial(ctx, addr, "a", nil)
	require.NoError(t, err)
	defer a.Close()
	b, _, err := Dial(ctx, addr, "b", nil)
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, srv.WaitForWorkers(ctx))

	require.NoError(t, a.Send(ctx, transport.RowResult(0, []int32{1})))
	require.NoError(t, b.Send(ctx, transport.RowResult(1, []int32{2})))

	msg, err := srv.Recv(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, msg.Row)

	env, err := srv.RecvAny(ctx)
	require.NoError(t, err)
	assert.Equal(t, transport.WorkerID("a"), env.From)
	assert.Equal(t, []int32{1}, env.Msg.Pixels)

	_, err = srv.Recv(ctx, "nobody")
	assert.ErrorIs(t, err, transport.ErrUnknownWorker)
	assert.ErrorIs(t, srv.Send(ctx, "nobody", transport.Termination()), transport.ErrUnknownWorker)
}

func TestWaitForWorkersHonoursContext(t *testing.T) {
	srv, _ := startServer(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, srv.WaitForWorkers(ctx), context.DeadlineExceeded)
}

func TestNewServerRequiresWorkers(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestStatusEndpoints(t *testing.T) {
	srv, err := NewServer(ServerConfig{Workers: 4, Params: testParams()})
	require.NoError(t, err)

	resp, err := srv.App().Test(httptest.NewRequest("GET", HealthPath, nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = srv.App().Test(httptest.NewRequest("GET", StatusPath, nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var status StatusResponse
	require.NoError(t, sonic.Unmarshal(body, &status))
	assert.Equal(t, StatusResponse{WorkersExpected: 4, RowsTotal: 12}, status)

	resp, err = srv.App().Test(httptest.NewRequest("GET", WorkerPath, nil))
	require.NoError(t, err)
	assert.Equal(t, 426, resp.StatusCode)
}

func TestFetchStatus(t *testing.T) {
	srv, addr := startServer(t, 2)

	ep, _, err := Dial(testContext(t), addr, "w1", nil)
	require.NoError(t, err)
	defer ep.Close()

	require.Eventually(t, func() bool { return len(srv.Workers()) == 1 }, 5*time.Second, 10*time.Millisecond)

	status, err := FetchStatus(addr, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusResponse{WorkersExpected: 2, WorkersRegistered: 1, RowsTotal: 12}, status)

	_, err = FetchStatus("127.0.0.1:1", time.Second)
	assert.Error(t, err)
}

func TestToHTTPURL(t *testing.T) {
	assert.Equal(t, "http://localhost:7070", toHTTPURL("localhost:7070"))
	assert.Equal(t, "http://m:1", toHTTPURL("ws://m:1/"))
	assert.Equal(t, "https://m:1", toHTTPURL("https://m:1"))
}

func TestFailedTerminationLeavesWorkerLive(t *testing.T) {
	srv, err := NewServer(ServerConfig{Workers: 1, Params: testParams()})
	require.NoError(t, err)

	// no write pump: the queue never drains
	conn := &workerConn{
		id:      "stuck",
		send:    make(chan outFrame),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
	}
	srv.conns[conn.id] = conn

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = srv.Send(ctx, "stuck", transport.Termination())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, conn.terminated.Load(), "a later disconnect must still fail the link")

	conn.send = make(chan outFrame, 1)
	require.NoError(t, srv.Send(context.Background(), "stuck", transport.Termination()))
	assert.True(t, conn.terminated.Load())
}
