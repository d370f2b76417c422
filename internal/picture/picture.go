// Package picture holds the row-major buffer of escape counts assembled by
// the master.
package picture

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Picture is a rows x cols grid of iteration counts. Each row may be set
// exactly once.
type Picture struct {
	rows          int
	cols          int
	maxIterations int
	pixels        []int32
	filled        []bool
	remaining     int
}

// New allocates an empty picture.
func New(rows, cols, maxIterations int) (*Picture, error) {
	if err := checkSize(rows, cols); err != nil {
		return nil, err
	}
	return &Picture{
		rows:          rows,
		cols:          cols,
		maxIterations: maxIterations,
		pixels:        make([]int32, rows*cols),
		filled:        make([]bool, rows),
		remaining:     rows,
	}, nil
}

// FromPixels wraps an already complete buffer, as read back from an artifact.
func FromPixels(rows, cols, maxIterations int, pixels []int32) (*Picture, error) {
	if err := checkSize(rows, cols); err != nil {
		return nil, err
	}
	if len(pixels) != rows*cols {
		return nil, fmt.Errorf("pixel buffer of %d values does not match %dx%d", len(pixels), rows, cols)
	}
	filled := make([]bool, rows)
	for i := range filled {
		filled[i] = true
	}
	return &Picture{
		rows:          rows,
		cols:          cols,
		maxIterations: maxIterations,
		pixels:        pixels,
		filled:        filled,
	}, nil
}

// checkSize rejects negative sizes and sizes whose pixel count overflows int.
func checkSize(rows, cols int) error {
	if rows < 0 || cols < 0 {
		return fmt.Errorf("invalid picture size %dx%d", rows, cols)
	}
	if cols > 0 && rows > math.MaxInt/cols {
		return fmt.Errorf("picture size %dx%d overflows", rows, cols)
	}
	return nil
}

func (p *Picture) Rows() int          { return p.rows }
func (p *Picture) Cols() int          { return p.cols }
func (p *Picture) MaxIterations() int { return p.maxIterations }

// Set copies pixels into row. It fails if the row is out of range, the length
// does not match the width, or the row was already written.
func (p *Picture) Set(row int, pixels []int32) error {
	if row < 0 || row >= p.rows {
		return fmt.Errorf("row %d out of range [0, %d)", row, p.rows)
	}
	if len(pixels) != p.cols {
		return fmt.Errorf("row %d has %d pixels, want %d", row, len(pixels), p.cols)
	}
	if p.filled[row] {
		return fmt.Errorf("row %d written twice", row)
	}
	copy(p.pixels[row*p.cols:(row+1)*p.cols], pixels)
	p.filled[row] = true
	p.remaining--
	return nil
}

// Filled reports whether row has been written.
func (p *Picture) Filled(row int) bool {
	return row >= 0 && row < p.rows && p.filled[row]
}

// Complete reports whether every row has been written.
func (p *Picture) Complete() bool {
	return p.remaining == 0
}

// Row returns the stored row. The slice aliases the buffer.
func (p *Picture) Row(row int) []int32 {
	return p.pixels[row*p.cols : (row+1)*p.cols]
}

// Pixels returns the whole buffer in row-major order.
func (p *Picture) Pixels() []int32 {
	return p.pixels
}

// Image renders the picture with palette. Row 0 is the top line of the image.
func (p *Picture) Image(palette func(v int32) color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.cols, p.rows))
	for r := 0; r < p.rows; r++ {
		for c, v := range p.Row(r) {
			img.SetRGBA(c, r, palette(v))
		}
	}
	return img
}
