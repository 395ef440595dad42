package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/signature.capture/internal/capture"
	"github.com/banshee-data/signature.capture/internal/serialport"
)

func writeConfig(t *testing.T, fs afero.Fs, path, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0o644))
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultPort(), cfg.Port)
	assert.Equal(t, 115200, cfg.BaudRate)
	assert.Equal(t, "firmas", cfg.OutputDir)
	assert.True(t, cfg.Interactive)
	assert.Equal(t, 100, cfg.DefaultWidth)
	assert.Equal(t, 100, cfg.DefaultHeight)
	assert.Equal(t, 10*time.Second, cfg.LineTimeoutDuration())
	assert.Equal(t, 200*time.Millisecond, cfg.SettleTimeDuration())
	assert.Equal(t, capture.ModeInteractive, cfg.Mode())

	p := cfg.Pipeline()
	assert.Equal(t, 0.5, p.BlurRadius)
	assert.Equal(t, 2, p.Scale)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "capture.toml", `
port = "/dev/ttyACM0"
baud_rate = 57600
interactive = false
line_timeout = "2500ms"
settle_time = "150ms"
default_width = 320
`)

	cfg, err := Load(fs, "capture.toml")
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.Port)
	assert.Equal(t, 57600, cfg.BaudRate)
	assert.Equal(t, capture.ModeSingle, cfg.Mode())
	assert.Equal(t, 2500*time.Millisecond, cfg.LineTimeoutDuration())
	assert.Equal(t, 320, cfg.DefaultWidth)
	// untouched keys keep their defaults
	assert.Equal(t, 100, cfg.DefaultHeight)
	assert.Equal(t, "firmas", cfg.OutputDir)

	opts := cfg.CaptureOptions()
	assert.Equal(t, capture.Options{
		DefaultWidth:  320,
		DefaultHeight: 100,
		LineTimeout:   2500 * time.Millisecond,
		SettleTime:    150 * time.Millisecond,
	}, opts)
}

func TestLoad_SerialFraming(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "capture.toml", `
data_bits = 7
stop_bits = 2
parity = "even"
`)
	cfg, err := Load(fs, "capture.toml")
	require.NoError(t, err)

	mode, err := cfg.PortOptions().SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serialport.DefaultBaudRate, mode.BaudRate)
	assert.Equal(t, 7, mode.DataBits)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		body    string
		wantErr string
	}{
		{name: "wrong extension", path: "capture.json", body: "{}", wantErr: ".toml extension"},
		{name: "unknown key", path: "capture.toml", body: "colour = \"red\"\n", wantErr: "unknown keys"},
		{name: "bad toml", path: "capture.toml", body: "port = \n", wantErr: "failed to parse"},
		{name: "bad timeout", path: "capture.toml", body: "line_timeout = \"soon\"\n", wantErr: "line_timeout must be a positive duration"},
		{name: "negative timeout", path: "capture.toml", body: "line_timeout = \"-1s\"\n", wantErr: "line_timeout"},
		{name: "bad settle time", path: "capture.toml", body: "settle_time = \"0s\"\n", wantErr: "settle_time"},
		{name: "zero width", path: "capture.toml", body: "default_width = 0\n", wantErr: "default_width"},
		{name: "empty port", path: "capture.toml", body: "port = \"\"\n", wantErr: "port is required"},
		{name: "bad level", path: "capture.toml", body: "log_level = \"loud\"\n", wantErr: "log_level must be one of"},
		{name: "bad parity", path: "capture.toml", body: "parity = \"mark\"\n", wantErr: "parity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeConfig(t, fs, tt.path, tt.body)
			_, err := Load(fs, tt.path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "missing.toml")
	assert.ErrorContains(t, err, "failed to stat")
}

func TestLoad_TooLarge(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "big.toml", "# "+strings.Repeat("x", maxFileSize))
	_, err := Load(fs, "big.toml")
	assert.ErrorContains(t, err, "too large")
}

func TestValidate_ReportsAllFields(t *testing.T) {
	cfg := Default()
	cfg.Port = ""
	cfg.Scale = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port is required")
	assert.Contains(t, err.Error(), "scale")
}

func TestLineTimeoutDuration_Fallback(t *testing.T) {
	cfg := Default()
	cfg.LineTimeout = "nonsense"
	assert.Equal(t, capture.DefaultLineTimeout, cfg.LineTimeoutDuration())
}
