package master

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartition(t *testing.T) {
	tests := []struct {
		rows, n int
		want    []block
	}{
		{rows: 4, n: 2, want: []block{{0, 2}, {2, 4}}},
		{rows: 7, n: 3, want: []block{{0, 2}, {2, 4}, {4, 7}}},
		{rows: 2, n: 4, want: []block{{0, 0}, {0, 0}, {0, 0}, {0, 2}}},
		{rows: 0, n: 2, want: []block{{0, 0}, {0, 0}}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, partition(tt.rows, tt.n), "rows=%d n=%d", tt.rows, tt.n)
	}
}

func TestRunStatic(t *testing.T) {
	params := scenarioParams()
	params.Plane.Rows = 9

	pic, err := RunStatic(context.Background(), params, 4, nil)
	require.NoError(t, err)
	assert.True(t, pic.Complete())
	assertMatchesKernel(t, params, pic)
}

func TestRunStaticRequiresWorkers(t *testing.T) {
	_, err := RunStatic(context.Background(), scenarioParams(), 0, nil)
	assert.ErrorIs(t, err, ErrNoWorkers)
}

func TestRunStaticCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunStatic(ctx, scenarioParams(), 2, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
