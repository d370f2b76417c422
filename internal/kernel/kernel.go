// Package kernel contains the escape-time iteration and the mapping from
// pixel coordinates into the complex plane.
//
// Everything in this package is pure and safe to call from any number of
// goroutines without synchronization.
package kernel

// escapeRadiusSquared is the squared magnitude past which a point is
// considered to diverge.
const escapeRadiusSquared = 4.0

// Escape iterates z <- z*z + c from z = 0 with c = cx + cy*i and returns the
// number of iterations performed before |z|^2 exceeded 4 or maxIterations was
// reached.
func Escape(cx, cy float64, maxIterations int) int {
	var zr, zi, mag float64
	n := 0
	for mag <= escapeRadiusSquared && n < maxIterations {
		zr, zi = zr*zr-zi*zi+cx, 2*zr*zi+cy
		mag = zr*zr + zi*zi
		n++
	}
	return n
}

// Normalize maps a count that hit the iteration cap to 0 so that points in
// the set are distinguishable from slow escapes near the boundary.
func Normalize(count, maxIterations int) int {
	if count == maxIterations {
		return 0
	}
	return count
}

// Plane maps a rows x cols pixel grid onto the rectangle
// [StartX, EndX) x [StartY, EndY) of the complex plane.
type Plane struct {
	StartX float64 `json:"start_x" yaml:"start_x"`
	StartY float64 `json:"start_y" yaml:"start_y"`
	EndX   float64 `json:"end_x" yaml:"end_x"`
	EndY   float64 `json:"end_y" yaml:"end_y"`
	Rows   int     `json:"rows" yaml:"rows"`
	Cols   int     `json:"cols" yaml:"cols"`
}

// X returns the real part for column col.
func (p Plane) X(col int) float64 {
	return p.StartX + (p.EndX-p.StartX)*float64(col)/float64(p.Cols)
}

// Y returns the imaginary part for row row.
func (p Plane) Y(row int) float64 {
	return p.StartY + (p.EndY-p.StartY)*float64(row)/float64(p.Rows)
}

// Params is everything a worker needs to compute any row of an image.
type Params struct {
	Plane         Plane `json:"plane" yaml:"plane"`
	MaxIterations int   `json:"max_iterations" yaml:"max_iterations"`
}

// ComputeRow fills dst with the normalized escape counts of row. dst must hold
// exactly Plane.Cols elements.
func (p Params) ComputeRow(row int, dst []int32) {
	cy := p.Plane.Y(row)
	for col := range dst {
		n := Escape(p.Plane.X(col), cy, p.MaxIterations)
		dst[col] = int32(Normalize(n, p.MaxIterations))
	}
}
