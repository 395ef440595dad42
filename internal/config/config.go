// Package config loads the capture tool settings from a TOML file and checks
// them before anything touches the serial port.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"github.com/banshee-data/signature.capture/internal/capture"
	"github.com/banshee-data/signature.capture/internal/imaging"
	"github.com/banshee-data/signature.capture/internal/serialport"
)

// DefaultOutputDir is where signatures are written unless configured.
const DefaultOutputDir = "firmas"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config holds every setting of a capture run. Zero values are not defaults;
// start from Default and overlay a file or flags.
type Config struct {
	Port          string  `toml:"port" validate:"required"`
	BaudRate      int     `toml:"baud_rate" validate:"gt=0"`
	DataBits      int     `toml:"data_bits" validate:"omitempty,min=5,max=8"`
	StopBits      int     `toml:"stop_bits" validate:"omitempty,oneof=1 2"`
	Parity        string  `toml:"parity" validate:"omitempty,oneof=N E O n e o none even odd NONE EVEN ODD"`
	OutputDir     string  `toml:"output_dir" validate:"required"`
	Interactive   bool    `toml:"interactive"`
	DefaultWidth  int     `toml:"default_width" validate:"gt=0"`
	DefaultHeight int     `toml:"default_height" validate:"gt=0"`
	LineTimeout   string  `toml:"line_timeout" validate:"required,duration"`
	SettleTime    string  `toml:"settle_time" validate:"omitempty,duration"`
	BlurRadius    float64 `toml:"blur_radius" validate:"gte=0"`
	Scale         int     `toml:"scale" validate:"gte=1,lte=16"`
	DBPath        string  `toml:"db_path"`
	LogFile       string  `toml:"log_file"`
	LogLevel      string  `toml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
}

// DefaultPort is the pad's usual port on this platform.
func DefaultPort() string {
	if runtime.GOOS == "windows" {
		return "COM8"
	}
	return "/dev/ttyUSB0"
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Port:          DefaultPort(),
		BaudRate:      serialport.DefaultBaudRate,
		OutputDir:     DefaultOutputDir,
		Interactive:   true,
		DefaultWidth:  100,
		DefaultHeight: 100,
		LineTimeout:   capture.DefaultLineTimeout.String(),
		SettleTime:    capture.DefaultSettleTime.String(),
		BlurRadius:    imaging.DefaultBlurRadius,
		Scale:         imaging.DefaultScale,
		LogLevel:      "info",
	}
}

// Load reads a TOML file from fs on top of Default. Keys missing from the file
// keep their defaults; unknown keys are an error.
func Load(fs afero.Fs, path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".toml" {
		return nil, fmt.Errorf("config file must have .toml extension, got %q", ext)
	}

	info, err := fs.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	f, err := fs.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := toml.NewDecoder(f).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("unknown keys in %s:\n%s", cleanPath, strict.String())
		}
		return nil, fmt.Errorf("failed to parse config TOML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their file key
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("duration", validateDuration)
	return v
}

func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// Validate checks every field and reports all violations at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "duration":
		return fmt.Sprintf("%s must be a positive duration like \"10s\", got %q", fe.Field(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s must satisfy %s=%s, got %v", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	}
}

// LineTimeoutDuration returns the parsed line timeout, or the protocol
// default when the value does not parse.
func (c *Config) LineTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.LineTimeout)
	if err != nil || d <= 0 {
		return capture.DefaultLineTimeout
	}
	return d
}

// SettleTimeDuration returns how long the line must stay silent after a
// broken round, or the protocol default when unset or invalid.
func (c *Config) SettleTimeDuration() time.Duration {
	d, err := time.ParseDuration(c.SettleTime)
	if err != nil || d <= 0 {
		return capture.DefaultSettleTime
	}
	return d
}

// PortOptions returns the serial framing settings.
func (c *Config) PortOptions() serialport.PortOptions {
	return serialport.PortOptions{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		StopBits: c.StopBits,
		Parity:   c.Parity,
	}
}

// Pipeline returns the render settings.
func (c *Config) Pipeline() *imaging.Pipeline {
	return &imaging.Pipeline{BlurRadius: c.BlurRadius, Scale: c.Scale}
}

// CaptureOptions returns the per-round protocol settings.
func (c *Config) CaptureOptions() capture.Options {
	return capture.Options{
		DefaultWidth:  c.DefaultWidth,
		DefaultHeight: c.DefaultHeight,
		LineTimeout:   c.LineTimeoutDuration(),
		SettleTime:    c.SettleTimeDuration(),
	}
}

// Mode returns the orchestrator mode selected by Interactive.
func (c *Config) Mode() capture.Mode {
	if c.Interactive {
		return capture.ModeInteractive
	}
	return capture.ModeSingle
}
