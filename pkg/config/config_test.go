package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	// GOAL: Verify the compiled-in defaults match the documented configuration surface
	//
	// TEST SCENARIO: Default() → AirPods filter, 10s scan, standard config path

	s := Default()

	assert.Equal(t, "AirPods", s.DeviceName)
	assert.Equal(t, 10, s.ScanSeconds)
	assert.Equal(t, "/etc/bluetooth/main.conf", s.BluetoothConfig)
	assert.Empty(t, s.LogFile)
	assert.Equal(t, 10*time.Second, s.ScanWindow(), "ScanWindow MUST derive from ScanSeconds")
}

func TestLoad_OverlaysFileValues(t *testing.T) {
	// GOAL: Verify YAML values override defaults while unset keys keep theirs
	//
	// TEST SCENARIO: Settings file sets name and timeout → those change, config path keeps default

	path := filepath.Join(t.TempDir(), "podpair.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device_name: Buds Live\nscan_timeout: 25\n"), 0o644))

	s := Default()
	require.NoError(t, s.Load(path), "loading a valid settings file MUST succeed")

	assert.Equal(t, "Buds Live", s.DeviceName, "file value MUST override the default")
	assert.Equal(t, 25, s.ScanSeconds, "file value MUST override the default")
	assert.Equal(t, "/etc/bluetooth/main.conf", s.BluetoothConfig, "unset keys MUST keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	// GOAL: Verify a referenced-but-missing settings file is an error
	//
	// TEST SCENARIO: Load nonexistent path → error

	s := Default()
	assert.Error(t, s.Load(filepath.Join(t.TempDir(), "nope.yaml")), "a missing settings file MUST be an error")
}

func TestLoad_MalformedFile(t *testing.T) {
	// GOAL: Verify malformed YAML is rejected
	//
	// TEST SCENARIO: Load a file with broken YAML → error

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device_name: [unclosed\n"), 0o644))

	s := Default()
	assert.Error(t, s.Load(path), "malformed YAML MUST be an error")
}

func TestNewLogger(t *testing.T) {
	// GOAL: Verify logger construction applies level and formatter
	//
	// TEST SCENARIO: Each level → logger carries it with the RFC3339 text formatter

	levels := []logrus.Level{logrus.DebugLevel, logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel}
	for _, level := range levels {
		s := Default()
		logger, err := s.NewLogger(level)
		require.NoError(t, err, "logger construction MUST succeed")

		assert.Equal(t, level, logger.GetLevel())
		formatter, ok := logger.Formatter.(*logrus.TextFormatter)
		require.True(t, ok, "formatter MUST be the text formatter")
		assert.True(t, formatter.FullTimestamp)
		assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
	}
}

func TestNewLogger_FileSink(t *testing.T) {
	// GOAL: Verify the log-file sink receives leveled output independent of the console
	//
	// TEST SCENARIO: LogFile set → logging appends to the file

	path := filepath.Join(t.TempDir(), "podpair.log")
	s := Default()
	s.LogFile = path

	logger, err := s.NewLogger(logrus.InfoLevel)
	require.NoError(t, err, "logger construction MUST succeed")

	logger.Info("pairing started")
	logger.Info("pairing finished")

	data, err := os.ReadFile(path)
	require.NoError(t, err, "the log file MUST exist")
	assert.Contains(t, string(data), "pairing started", "messages MUST reach the file sink")
	assert.Contains(t, string(data), "pairing finished", "the sink MUST append")
}

func TestNewLogger_UnwritableFileSink(t *testing.T) {
	// GOAL: Verify an unopenable log file is an error, not a silent fallback
	//
	// TEST SCENARIO: LogFile points into a missing directory → error

	s := Default()
	s.LogFile = filepath.Join(t.TempDir(), "missing", "podpair.log")

	_, err := s.NewLogger(logrus.InfoLevel)
	assert.Error(t, err, "an unopenable log file MUST be an error")
}
