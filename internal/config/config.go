package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yqhp/mandelbrot/internal/kernel"
	"yqhp/mandelbrot/pkg/logger"
)

// Config represents the complete configuration of a render.
type Config struct {
	Render  RenderConfig  `yaml:"render"`
	Workers int           `yaml:"workers" env:"MB_WORKERS"`
	Master  MasterConfig  `yaml:"master"`
	Worker  WorkerConfig  `yaml:"worker"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
}

// RenderConfig describes the image: the rectangle of the complex plane, the
// pixel grid laid over it and the iteration cap.
type RenderConfig struct {
	StartX        float64 `yaml:"start_x" env:"MB_RENDER_START_X"`
	StartY        float64 `yaml:"start_y" env:"MB_RENDER_START_Y"`
	EndX          float64 `yaml:"end_x" env:"MB_RENDER_END_X"`
	EndY          float64 `yaml:"end_y" env:"MB_RENDER_END_Y"`
	Rows          int     `yaml:"rows" env:"MB_RENDER_ROWS"`
	Cols          int     `yaml:"cols" env:"MB_RENDER_COLS"`
	MaxIterations int     `yaml:"max_iterations" env:"MB_RENDER_MAX_ITERATIONS"`
}

// MasterConfig holds settings of the network master.
type MasterConfig struct {
	Address string `yaml:"address" env:"MB_MASTER_ADDRESS"`
	// Schedule selects the row distribution of the standalone run command:
	// dynamic or static.
	Schedule string `yaml:"schedule" env:"MB_MASTER_SCHEDULE"`
	// WaitTimeout bounds how long the master waits for workers to register.
	// Zero waits forever.
	WaitTimeout time.Duration `yaml:"wait_timeout" env:"MB_MASTER_WAIT_TIMEOUT"`
}

// WorkerConfig holds settings of a networked worker process.
type WorkerConfig struct {
	MasterAddr string `yaml:"master_addr" env:"MB_WORKER_MASTER_ADDR"`
	// ID is the address the worker asks for; empty lets the master pick one.
	ID string `yaml:"id" env:"MB_WORKER_ID"`
}

// OutputConfig lists where the finished picture goes.
type OutputConfig struct {
	// Targets are format=path pairs; a bare path is a raw artifact.
	Targets []string `yaml:"targets" env:"MB_OUTPUT_TARGETS"`
	// Summary prints the run statistics table to stdout.
	Summary bool `yaml:"summary" env:"MB_OUTPUT_SUMMARY"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"MB_LOG_LEVEL"`
	Format     string `yaml:"format" env:"MB_LOG_FORMAT"`
	Output     string `yaml:"output" env:"MB_LOG_OUTPUT"`
	FilePath   string `yaml:"file_path" env:"MB_LOG_FILE_PATH"`
	MaxSize    int    `yaml:"max_size" env:"MB_LOG_MAX_SIZE"`
	MaxBackups int    `yaml:"max_backups" env:"MB_LOG_MAX_BACKUPS"`
	MaxAge     int    `yaml:"max_age" env:"MB_LOG_MAX_AGE"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Render: RenderConfig{
			StartX:        -2,
			StartY:        -2,
			EndX:          2,
			EndY:          2,
			Rows:          384,
			Cols:          512,
			MaxIterations: 200,
		},
		Workers: runtime.NumCPU(),
		Master: MasterConfig{
			Address:  ":7070",
			Schedule: "dynamic",
		},
		Worker: WorkerConfig{
			MasterAddr: "localhost:7070",
		},
		Output: OutputConfig{
			Targets: []string{"outFile"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// Params converts the render section into kernel parameters.
func (r RenderConfig) Params() kernel.Params {
	return kernel.Params{
		Plane: kernel.Plane{
			StartX: r.StartX,
			StartY: r.StartY,
			EndX:   r.EndX,
			EndY:   r.EndY,
			Rows:   r.Rows,
			Cols:   r.Cols,
		},
		MaxIterations: r.MaxIterations,
	}
}

// LoggerConfig converts the logging section for pkg/logger.
func (l LoggingConfig) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      l.Level,
		Format:     l.Format,
		Output:     l.Output,
		FilePath:   l.FilePath,
		MaxSize:    l.MaxSize,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAge,
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	cmdArgs    map[string]string
	overrides  []func(*Config)
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		cmdArgs: make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithCmdArgs sets dot-path overrides, e.g. "render.rows" -> "100".
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// WithOverride registers a function applied after every other source, for
// values that do not fit a dot-path string such as repeated flags.
func (l *Loader) WithOverride(fn func(*Config)) *Loader {
	l.overrides = append(l.overrides, fn)
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		fileCfg, err := l.loadFromFile()
		if err != nil {
			return nil, fmt.Errorf("从文件加载配置失败: %w", err)
		}
		cfg = fileCfg
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("应用环境变量覆盖失败: %w", err)
	}

	if err := l.applyCmdOverrides(cfg); err != nil {
		return nil, fmt.Errorf("应用命令行参数覆盖失败: %w", err)
	}

	for _, fn := range l.overrides {
		fn(cfg)
	}

	return cfg, nil
}

// LoadAndValidate loads configuration from all sources and validates it.
func (l *Loader) LoadAndValidate() (*Config, error) {
	cfg, err := l.Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file. Unlike a missing
// default file, an explicitly named file must exist.
func (l *Loader) loadFromFile() (*Config, error) {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return ParseConfig(data)
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	return l.applyEnvToStruct(reflect.ValueOf(cfg).Elem())
}

// applyEnvToStruct recursively applies environment variables to struct fields.
func (l *Loader) applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := l.applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("从环境变量 %s 设置字段 %s 失败: %w", envTag, fieldType.Name, err)
		}
	}

	return nil
}

// applyCmdOverrides applies command-line argument overrides to the configuration.
func (l *Loader) applyCmdOverrides(cfg *Config) error {
	for key, value := range l.cmdArgs {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("设置配置值 %s 失败: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a configuration value by its yaml dot path.
func setConfigValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return fmt.Errorf("未知的配置路径: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}

		if field.Kind() != reflect.Struct {
			return fmt.Errorf("期望 %s 是结构体，实际是 %s", part, field.Kind())
		}
		v = field
	}

	return nil
}

func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if tag == name || strings.EqualFold(t.Field(i).Name, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("无法设置字段")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("无效的时间格式: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("无效的整数: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("无效的浮点数: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("无效的布尔值: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("不支持的切片类型: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		field.Set(reflect.ValueOf(out))

	default:
		return fmt.Errorf("不支持的字段类型: %s", field.Kind())
	}

	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses YAML on top of the defaults. Unknown fields are errors;
// empty input yields the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, nil
}
