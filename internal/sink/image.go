package sink

import (
	"image"
	"image/png"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"yqhp/mandelbrot/internal/picture"
)

type encodeFunc func(w io.Writer, img image.Image) error

func init() {
	registerImage("png", png.Encode)
	registerImage("tiff", func(w io.Writer, img image.Image) error {
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	})
	registerImage("bmp", bmp.Encode)
}

func registerImage(format string, encode encodeFunc) {
	Register(format, func(p Params) (Sink, error) {
		return &imageSink{format: format, path: p.Path, encode: encode, logger: p.Logger}, nil
	})
}

// imageSink renders the picture with the Wheel palette and encodes it.
type imageSink struct {
	format string
	path   string
	encode encodeFunc
	logger *zap.Logger
}

func (s *imageSink) Description() string { return s.format + " (" + s.path + ")" }

func (s *imageSink) Write(pic *picture.Picture) error {
	img := pic.Image(Wheel)
	if err := writeFile(s.path, func(f *os.File) error { return s.encode(f, img) }); err != nil {
		return err
	}
	s.logger.Info("image written", zap.String("format", s.format), zap.String("path", s.path))
	return nil
}
