package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/mandelbrot/internal/kernel"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, RenderConfig{StartX: -2, StartY: -2, EndX: 2, EndY: 2, Rows: 384, Cols: 512, MaxIterations: 200}, cfg.Render)
	assert.GreaterOrEqual(t, cfg.Workers, 1)
	assert.Equal(t, "dynamic", cfg.Master.Schedule)
	assert.Equal(t, []string{"outFile"}, cfg.Output.Targets)
	assert.NoError(t, cfg.Validate())
}

func TestLoaderPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
render:
  rows: 100
  cols: 200
  max_iterations: 50
workers: 3
master:
  address: ":9000"
output:
  targets: ["png=a.png", "a.raw"]
`), 0o644))

	t.Setenv("MB_RENDER_COLS", "300")
	t.Setenv("MB_WORKERS", "5")
	t.Setenv("MB_MASTER_WAIT_TIMEOUT", "30s")

	cfg, err := NewLoader().
		WithConfigPath(path).
		WithCmdArgs(map[string]string{"workers": "7", "render.start_x": "-1.5"}).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Render.Rows, "from file")
	assert.Equal(t, 300, cfg.Render.Cols, "env beats file")
	assert.Equal(t, 50, cfg.Render.MaxIterations)
	assert.Equal(t, 7, cfg.Workers, "flags beat env")
	assert.Equal(t, -1.5, cfg.Render.StartX)
	assert.Equal(t, 2.0, cfg.Render.EndX, "default kept")
	assert.Equal(t, ":9000", cfg.Master.Address)
	assert.Equal(t, 30*time.Second, cfg.Master.WaitTimeout)
	assert.Equal(t, []string{"png=a.png", "a.raw"}, cfg.Output.Targets)
}

func TestLoaderOverrideRunsLast(t *testing.T) {
	t.Setenv("MB_OUTPUT_TARGETS", "env.raw")
	cfg, err := NewLoader().
		WithCmdArgs(map[string]string{"output.targets": "flag.raw"}).
		WithOverride(func(c *Config) { c.Output.Targets = []string{"png=a,b.png"} }).
		Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"png=a,b.png"}, cfg.Output.Targets)
}

func TestLoadAndValidate(t *testing.T) {
	cfg, err := NewLoader().WithCmdArgs(map[string]string{"render.rows": "12"}).LoadAndValidate()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Render.Rows)

	_, err = NewLoader().
		WithOverride(func(c *Config) { c.Render.MaxIterations = 1<<32 + 5 }).
		LoadAndValidate()
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has("render.max_iterations"))

	_, err = NewLoader().WithCmdArgs(map[string]string{"render.rows": "x"}).LoadAndValidate()
	assert.Error(t, err)
}

func TestLoaderErrors(t *testing.T) {
	_, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	assert.Error(t, err, "explicit file must exist")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("render:\n  rowz: 3\n"), 0o644))
	_, err = NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err, "unknown field")

	_, err = NewLoader().WithCmdArgs(map[string]string{"render.rows": "many"}).Load()
	assert.Error(t, err, "non-numeric value")

	_, err = NewLoader().WithCmdArgs(map[string]string{"render.depth": "3"}).Load()
	assert.Error(t, err, "unknown path")

	t.Setenv("MB_RENDER_START_X", "left")
	_, err = NewLoader().Load()
	assert.Error(t, err, "bad env value")
}

func TestEmptyFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Render, cfg.Render)
}

func TestSetFieldValueSlice(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, setConfigValue(cfg, "output.targets", " png=x.png , ,y.raw"))
	assert.Equal(t, []string{"png=x.png", "y.raw"}, cfg.Output.Targets)

	require.NoError(t, setConfigValue(cfg, "output.summary", "true"))
	assert.True(t, cfg.Output.Summary)

	assert.Error(t, setConfigValue(cfg, "render.rows.deep", "1"))
}

func TestRenderParams(t *testing.T) {
	r := RenderConfig{StartX: -1, StartY: -1, EndX: 1, EndY: 1, Rows: 4, Cols: 2, MaxIterations: 10}
	assert.Equal(t, kernel.Params{
		Plane:         kernel.Plane{StartX: -1, StartY: -1, EndX: 1, EndY: 1, Rows: 4, Cols: 2},
		MaxIterations: 10,
	}, r.Params())
}

func TestLoggerConfig(t *testing.T) {
	l := LoggingConfig{Level: "debug", Format: "json", Output: "file", FilePath: "x.log", MaxSize: 1}
	lc := l.LoggerConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "x.log", lc.FilePath)
	assert.Equal(t, 1, lc.MaxSize)
}

func TestParseConfigRejectsUnknownFields(t *testing.T) {
	_, err := ParseConfig([]byte("render:\n  depth: 3\n"))
	assert.Error(t, err)

	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
