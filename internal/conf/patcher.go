// Package conf patches the bluetooth daemon configuration into classic-only
// controller mode and restores the original file afterwards.
package conf

import (
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// DirectiveKey is the main.conf directive controlling the radio mode.
	DirectiveKey = "ControllerMode"

	// CompatibilityValue restricts the controller to classic BR/EDR, the
	// workaround mode certain audio accessories need during pairing.
	CompatibilityValue = "bredr"

	// DefaultPath is the usual location of the bluetooth daemon config.
	DefaultPath = "/etc/bluetooth/main.conf"

	backupSuffix = ".podpair.bak"
)

// directivePattern matches the ControllerMode line in any of its on-disk
// shapes: commented out, indented, or active.
var directivePattern = regexp.MustCompile(`^\s*#?\s*ControllerMode\s*=`)

// Patcher rewrites the ControllerMode directive with a backup-first policy.
// The presence of the backup file is the sole signal that a restore is owed.
type Patcher struct {
	path       string
	backupPath string
	logger     *logrus.Logger
}

// NewPatcher returns a Patcher for the config file at path.
func NewPatcher(path string, logger *logrus.Logger) *Patcher {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Patcher{
		path:       path,
		backupPath: path + backupSuffix,
		logger:     logger,
	}
}

// Path returns the live config file path.
func (p *Patcher) Path() string { return p.path }

// BackupPath returns the backup file path.
func (p *Patcher) BackupPath() string { return p.backupPath }

// BackupExists reports whether a backup of the original config is on disk.
func (p *Patcher) BackupExists() bool {
	_, err := os.Stat(p.backupPath)
	return err == nil
}

// Patch backs up the config file (only if no backup exists already, so an
// earlier unfinished run's original is never clobbered) and sets
// ControllerMode to the compatibility value, rewriting an existing directive
// line in place or appending one when absent.
func (p *Patcher) Patch() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read bluetooth config %s: %w", p.path, err)
	}
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(p.path); err == nil {
		mode = info.Mode().Perm()
	}

	if !p.BackupExists() {
		if err := os.WriteFile(p.backupPath, data, mode); err != nil {
			return fmt.Errorf("back up bluetooth config: %w", err)
		}
		p.logger.WithField("backup", p.backupPath).Debug("created config backup")
	} else {
		p.logger.WithField("backup", p.backupPath).Debug("backup already present, keeping it")
	}

	patched := rewriteDirective(string(data))
	if err := os.WriteFile(p.path, []byte(patched), mode); err != nil {
		return fmt.Errorf("write bluetooth config: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"path":  p.path,
		"value": CompatibilityValue,
	}).Info("set controller mode")
	return nil
}

// Restore moves the backup back over the live file, undoing Patch. Rename
// gives atomic replacement. Without a backup this is a no-op.
func (p *Patcher) Restore() error {
	if !p.BackupExists() {
		return nil
	}
	if err := os.Rename(p.backupPath, p.path); err != nil {
		return fmt.Errorf("restore bluetooth config: %w", err)
	}
	p.logger.WithField("path", p.path).Info("restored original bluetooth config")
	return nil
}

// rewriteDirective replaces the first ControllerMode line, commented or not,
// with the compatibility setting, or appends one if the file has none.
func rewriteDirective(content string) string {
	directive := DirectiveKey + " = " + CompatibilityValue

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if directivePattern.MatchString(line) {
			lines[i] = directive
			return strings.Join(lines, "\n")
		}
	}

	out := content
	if out != "" && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out + directive + "\n"
}
