package config

import (
	"fmt"
	"math"
	"net"
	"strings"

	"yqhp/mandelbrot/internal/sink"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Has reports whether field failed validation.
func (e ValidationErrors) Has(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate validates the entire configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateRenderConfig(&cfg.Render)
	if cfg.Workers < 1 {
		v.addError("workers", "at least one worker is required")
	}
	v.validateMasterConfig(&cfg.Master)
	v.validateWorkerConfig(&cfg.Worker)
	v.validateOutputConfig(&cfg.Output)
	v.validateLoggingConfig(&cfg.Logging)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateRenderConfig(cfg *RenderConfig) {
	v.validateInt32("render.rows", cfg.Rows)
	v.validateInt32("render.cols", cfg.Cols)
	v.validateInt32("render.max_iterations", cfg.MaxIterations)
	if cfg.StartX == cfg.EndX {
		v.addError("render.end_x", "end_x must differ from start_x")
	}
	if cfg.StartY == cfg.EndY {
		v.addError("render.end_y", "end_y must differ from start_y")
	}
}

// validateInt32 checks a dimension stored as a 4-byte int in the raw
// artifact: it must be positive and fit in int32.
func (v *Validator) validateInt32(field string, value int) {
	switch {
	case value < 1:
		v.addError(field, "must be positive")
	case value > math.MaxInt32:
		v.addError(field, fmt.Sprintf("%d exceeds the maximum of %d", value, math.MaxInt32))
	}
}

func (v *Validator) validateMasterConfig(cfg *MasterConfig) {
	if cfg.Address == "" {
		v.addError("master.address", "address is required")
	} else if !isValidAddress(cfg.Address) {
		v.addError("master.address", "invalid address format, expected host:port or :port")
	}

	switch cfg.Schedule {
	case "dynamic", "static":
	default:
		v.addError("master.schedule", fmt.Sprintf("invalid schedule '%s', must be one of: dynamic, static", cfg.Schedule))
	}

	if cfg.WaitTimeout < 0 {
		v.addError("master.wait_timeout", "wait timeout must be non-negative")
	}
}

func (v *Validator) validateWorkerConfig(cfg *WorkerConfig) {
	if cfg.MasterAddr == "" {
		v.addError("worker.master_addr", "master address is required")
		return
	}
	addr := cfg.MasterAddr
	for _, scheme := range []string{"http://", "https://", "ws://", "wss://"} {
		addr = strings.TrimPrefix(addr, scheme)
	}
	if !isValidAddress(strings.TrimRight(addr, "/")) {
		v.addError("worker.master_addr", "invalid master address format, expected host:port")
	}
}

func (v *Validator) validateOutputConfig(cfg *OutputConfig) {
	for i, target := range cfg.Targets {
		field := fmt.Sprintf("output.targets[%d]", i)
		params, err := sink.ParseTarget(target)
		if err != nil {
			v.addError(field, err.Error())
			continue
		}
		if _, ok := sink.Get(params.Format); !ok {
			v.addError(field, fmt.Sprintf("unknown format '%s', must be one of: %s", params.Format, strings.Join(sink.List(), ", ")))
		}
	}
}

func (v *Validator) validateLoggingConfig(cfg *LoggingConfig) {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if cfg.Level == "" {
		v.addError("logging.level", "log level is required")
	} else if !validLevels[strings.ToLower(cfg.Level)] {
		v.addError("logging.level", fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", cfg.Level))
	}

	switch strings.ToLower(cfg.Format) {
	case "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("invalid log format '%s', must be one of: json, console", cfg.Format))
	}

	switch strings.ToLower(cfg.Output) {
	case "", "stdout", "stderr":
	case "file", "both":
		if cfg.FilePath == "" {
			v.addError("logging.file_path", "file path is required for file output")
		}
	default:
		v.addError("logging.output", fmt.Sprintf("invalid log output '%s', must be one of: stdout, stderr, file, both", cfg.Output))
	}
}

// isValidAddress checks if the address is a valid host:port or :port.
func isValidAddress(addr string) bool {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return false
	}
	if host != "" && net.ParseIP(host) == nil && !isValidHostname(host) {
		return false
	}
	return true
}

// isValidHostname performs basic hostname validation.
func isValidHostname(hostname string) bool {
	if len(hostname) == 0 || len(hostname) > 253 {
		return false
	}

	for _, label := range strings.Split(hostname, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if !isAlphanumeric(label[0]) || !isAlphanumeric(label[len(label)-1]) {
			return false
		}
		for _, c := range label {
			if !isAlphanumeric(byte(c)) && c != '-' {
				return false
			}
		}
	}

	return true
}

func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	return NewValidator().Validate(c)
}
