package sink

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"go.uber.org/zap"

	"yqhp/mandelbrot/internal/picture"
)

// The raw artifact is three int32 header fields (rows, cols, max iterations)
// followed by rows*cols int32 counts in row-major order. Everything is in the
// host's byte order, so artifacts are only portable between hosts of the
// same endianness.
var byteOrder = binary.NativeEndian

// maxRawPixels bounds what ReadRaw is willing to allocate.
const maxRawPixels = 1 << 28

func init() {
	Register("raw", func(p Params) (Sink, error) {
		return &rawSink{path: p.Path, logger: p.Logger}, nil
	})
}

type rawSink struct {
	path   string
	logger *zap.Logger
}

func (s *rawSink) Description() string { return "raw (" + s.path + ")" }

func (s *rawSink) Write(pic *picture.Picture) error {
	err := writeFile(s.path, func(f *os.File) error { return WriteRaw(f, pic) })
	if err != nil {
		return err
	}
	s.logger.Info("raw artifact written", zap.String("path", s.path),
		zap.Int("rows", pic.Rows()), zap.Int("cols", pic.Cols()))
	return nil
}

// WriteRaw encodes pic as a raw artifact.
func WriteRaw(w io.Writer, pic *picture.Picture) error {
	for _, f := range []struct {
		name  string
		value int
	}{{"rows", pic.Rows()}, {"cols", pic.Cols()}, {"max iterations", pic.MaxIterations()}} {
		if f.value > math.MaxInt32 {
			return fmt.Errorf("raw header field %s=%d does not fit in int32", f.name, f.value)
		}
	}

	bw := bufio.NewWriter(w)
	header := [3]int32{int32(pic.Rows()), int32(pic.Cols()), int32(pic.MaxIterations())}
	if err := binary.Write(bw, byteOrder, header); err != nil {
		return err
	}
	if err := binary.Write(bw, byteOrder, pic.Pixels()); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadRaw decodes a raw artifact.
func ReadRaw(r io.Reader) (*picture.Picture, error) {
	br := bufio.NewReader(r)
	var header [3]int32
	if err := binary.Read(br, byteOrder, &header); err != nil {
		return nil, fmt.Errorf("read raw header: %w", err)
	}
	rows, cols, its := int(header[0]), int(header[1]), int(header[2])
	if rows < 0 || cols < 0 || its < 0 {
		return nil, fmt.Errorf("raw header has negative field: rows=%d cols=%d its=%d", rows, cols, its)
	}
	if cols > 0 && rows > math.MaxInt32/cols || rows*cols > maxRawPixels {
		return nil, fmt.Errorf("raw picture %dx%d is too large", rows, cols)
	}

	pixels := make([]int32, rows*cols)
	if err := binary.Read(br, byteOrder, pixels); err != nil {
		return nil, fmt.Errorf("read raw pixels: %w", err)
	}
	return picture.FromPixels(rows, cols, its, pixels)
}

// ReadRawFile decodes the raw artifact at path.
func ReadRawFile(path string) (*picture.Picture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRaw(f)
}
