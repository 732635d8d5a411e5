// Package config holds the pairing tool's settings: compiled-in defaults,
// optional YAML overrides, and logger construction.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Settings holds application configuration. Flag values override file
// values, which override the struct-tag defaults.
type Settings struct {
	// DeviceName is the case-insensitive substring target devices must
	// advertise.
	DeviceName string `yaml:"device_name" default:"AirPods"`

	// ScanSeconds is the discovery window length in seconds.
	ScanSeconds int `yaml:"scan_timeout" default:"10"`

	// BluetoothConfig is the daemon config file to patch.
	BluetoothConfig string `yaml:"bluetooth_config" default:"/etc/bluetooth/main.conf"`

	// LogFile, when set, receives all leveled log output instead of the
	// console, keeping the log sink independent of user-facing output.
	LogFile string `yaml:"log_file"`

	ScanOnly   bool `yaml:"-"`
	RemoveOnly bool `yaml:"-"`
}

// Default returns settings populated from the struct-tag defaults.
func Default() *Settings {
	s := new(Settings)
	defaults.SetDefaults(s)
	return s
}

// Load overlays YAML values from path onto s. A missing or malformed file
// is an error; the CLI treats a settings file it cannot read as fatal.
func (s *Settings) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parse settings file %s: %w", path, err)
	}
	return nil
}

// ScanWindow returns the discovery window as a duration.
func (s *Settings) ScanWindow() time.Duration {
	return time.Duration(s.ScanSeconds) * time.Second
}

// NewLogger creates a configured logger instance. With LogFile set, output
// goes to the file in append-only mode; otherwise it goes to stderr.
func (s *Settings) NewLogger(level logrus.Level) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	if s.LogFile != "" {
		f, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logger.SetOutput(f)
	}

	return logger, nil
}
