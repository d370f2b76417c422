// Package sink writes finished pictures to their destinations. Sinks are
// looked up by format name in a registry; every format registers itself from
// its own file.
package sink

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"yqhp/mandelbrot/internal/picture"
	"yqhp/mandelbrot/pkg/logger"
)

// Sink consumes a complete picture.
type Sink interface {
	// Description names the sink and its destination for logs.
	Description() string

	// Write stores pic. It is only called once the picture is complete.
	Write(pic *picture.Picture) error
}

// Params are the arguments a factory receives.
type Params struct {
	Format string
	Path   string
	Logger *zap.Logger
}

// Factory builds a sink.
type Factory func(params Params) (Sink, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a format available to Create.
func Register(format string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[format] = factory
}

// Get returns the factory registered for format.
func Get(format string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[format]
	return f, ok
}

// List returns every registered format, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds the sink for params.Format.
func Create(params Params) (Sink, error) {
	factory, ok := Get(params.Format)
	if !ok {
		return nil, &UnknownSinkError{Format: params.Format}
	}
	if params.Path == "" {
		return nil, fmt.Errorf("sink %s: empty path", params.Format)
	}
	if params.Logger == nil {
		params.Logger = logger.L()
	}
	return factory(params)
}

// UnknownSinkError is returned for a format nobody registered.
type UnknownSinkError struct {
	Format string
}

func (e *UnknownSinkError) Error() string {
	return fmt.Sprintf("unknown output format %q (available: %s)", e.Format, strings.Join(List(), ", "))
}

// ParseTarget reads an output argument of the form format=path. A bare path
// selects the raw format.
func ParseTarget(target string) (Params, error) {
	format, path, ok := strings.Cut(target, "=")
	if !ok {
		format, path = "raw", target
	}
	format = strings.ToLower(strings.TrimSpace(format))
	path = strings.TrimSpace(path)
	if format == "" || path == "" {
		return Params{}, fmt.Errorf("invalid output %q, want format=path", target)
	}
	return Params{Format: format, Path: path}, nil
}

// WriteAll writes pic to every sink, stopping at the first failure.
func WriteAll(pic *picture.Picture, sinks []Sink) error {
	if !pic.Complete() {
		return fmt.Errorf("refusing to write an incomplete picture")
	}
	for _, s := range sinks {
		if err := s.Write(pic); err != nil {
			return fmt.Errorf("%s: %w", s.Description(), err)
		}
	}
	return nil
}

// writeFile creates path and hands it to write.
func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
