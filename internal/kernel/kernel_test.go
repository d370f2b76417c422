package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeOrigin(t *testing.T) {
	// 0 is in the set, so it never escapes.
	assert.Equal(t, 50, Escape(0, 0, 50))
}

func TestEscapeFarPoint(t *testing.T) {
	// c = 2+2i: z1 = c, |z1|^2 = 8 > 4.
	assert.Equal(t, 1, Escape(2, 2, 100))
}

func TestEscapeKnownCounts(t *testing.T) {
	tests := []struct {
		name   string
		cx, cy float64
		max    int
		want   int
	}{
		{"minus two stays bounded", -2, 0, 30, 30},
		{"one escapes on third step", 1, 0, 30, 3},
		{"i is periodic", 0, 1, 40, 40},
		{"zero cap", 0, 0, 0, 0},
		{"cap reached first", 0.3, 0.6, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Escape(tt.cx, tt.cy, tt.max))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, 0, Normalize(200, 200))
	assert.Equal(t, 199, Normalize(199, 200))
	assert.Equal(t, 1, Normalize(1, 200))
}

func TestPlaneMapping(t *testing.T) {
	p := Plane{StartX: -2, StartY: -1, EndX: 2, EndY: 1, Rows: 4, Cols: 8}

	assert.Equal(t, -2.0, p.X(0))
	assert.Equal(t, 0.0, p.X(4))
	assert.Equal(t, 1.5, p.X(7))
	assert.Equal(t, -1.0, p.Y(0))
	assert.Equal(t, 0.0, p.Y(2))
	assert.Equal(t, 0.5, p.Y(3))
}

func TestComputeRowNormalizesMembers(t *testing.T) {
	params := Params{
		Plane:         Plane{StartX: -1, StartY: -1, EndX: 1, EndY: 1, Rows: 4, Cols: 2},
		MaxIterations: 10,
	}
	row := make([]int32, 2)

	// Row 2 maps to cy = 0, column 1 to cx = 0: the origin is in the set.
	params.ComputeRow(2, row)
	assert.Equal(t, int32(0), row[1])

	for c := range row {
		want := Normalize(Escape(params.Plane.X(c), params.Plane.Y(2), 10), 10)
		require.Equal(t, int32(want), row[c], "column %d", c)
	}
}

func TestComputeRowNeverReportsCap(t *testing.T) {
	params := Params{
		Plane:         Plane{StartX: -2, StartY: -2, EndX: 2, EndY: 2, Rows: 16, Cols: 16},
		MaxIterations: 25,
	}
	row := make([]int32, params.Plane.Cols)
	for r := 0; r < params.Plane.Rows; r++ {
		params.ComputeRow(r, row)
		for c, v := range row {
			assert.NotEqual(t, int32(25), v, "row %d col %d", r, c)
			assert.GreaterOrEqual(t, v, int32(0))
		}
	}
}

func BenchmarkComputeRow(b *testing.B) {
	params := Params{
		Plane:         Plane{StartX: -2, StartY: -2, EndX: 2, EndY: 2, Rows: 384, Cols: 512},
		MaxIterations: 200,
	}
	row := make([]int32, params.Plane.Cols)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		params.ComputeRow(i%params.Plane.Rows, row)
	}
}
