// Package initsys restarts system services through whichever init system the
// host carries, probed once at startup.
package initsys

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// lookPath is swapped in tests to control strategy selection.
var lookPath = exec.LookPath

// Controller restarts a named service. The invocation strategy is fixed at
// construction: systemctl when present, the legacy service wrapper otherwise.
type Controller struct {
	service string
	command string
	args    []string
	logger  *logrus.Logger

	// run executes the restart command; replaced in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewController probes for systemctl and returns a controller for service.
func NewController(service string, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	c := &Controller{
		service: service,
		logger:  logger,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
	if _, err := lookPath("systemctl"); err == nil {
		c.command = "systemctl"
		c.args = []string{"restart", service}
	} else {
		c.command = "service"
		c.args = []string{service, "restart"}
	}
	logger.WithFields(logrus.Fields{
		"service": service,
		"command": c.command,
	}).Debug("selected service manager")
	return c
}

// Restart restarts the service. A nonzero exit is returned as an error; the
// caller decides whether that is fatal (main sequence) or logged (cleanup).
func (c *Controller) Restart(ctx context.Context) error {
	c.logger.WithField("service", c.service).Info("restarting service")
	out, err := c.run(ctx, c.command, c.args...)
	if err != nil {
		return fmt.Errorf("restart %s via %s: %w (output: %s)",
			c.service, c.command, err, strings.TrimSpace(string(out)))
	}
	return nil
}
