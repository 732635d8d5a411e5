// Package btctl drives the host's bluetoothctl-style control daemon through
// its textual command interface.
package btctl

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"
)

// Commander runs control-daemon commands. Run executes one command to
// completion and returns its combined output. Start launches a long-running
// command (the discovery task) and returns a kill function for it.
type Commander interface {
	Run(ctx context.Context, args ...string) (string, error)
	Start(ctx context.Context, args ...string) (kill func() error, err error)
}

// ExecCommander is the production Commander: it execs the bluetoothctl
// binary once per command.
type ExecCommander struct {
	// Binary overrides the control binary; empty means "bluetoothctl".
	Binary string
}

func (e *ExecCommander) bin() string {
	if e.Binary == "" {
		return "bluetoothctl"
	}
	return e.Binary
}

// Run executes a single command and returns its combined output.
func (e *ExecCommander) Run(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, e.bin(), args...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %v: %w", e.bin(), args, err)
	}
	return string(out), nil
}

// Start launches a detached command and returns a function that kills it.
// The kill function tolerates an already-exited process.
func (e *ExecCommander) Start(ctx context.Context, args ...string) (func() error, error) {
	cmd := exec.CommandContext(ctx, e.bin(), args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s %v: %w", e.bin(), args, err)
	}
	return func() error {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		_ = cmd.Wait()
		return nil
	}, nil
}

// Client exposes the daemon operations the pairing workflow needs. All calls
// block until the daemon command completes; timeouts come from the caller's
// context.
type Client struct {
	cmd    Commander
	logger *logrus.Logger
}

// NewClient wraps a Commander. A nil Commander gets the exec-based default.
func NewClient(cmd Commander, logger *logrus.Logger) *Client {
	if cmd == nil {
		cmd = &ExecCommander{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{cmd: cmd, logger: logger}
}

// PowerOn asks the daemon to power the adapter. The request may be redundant
// when the adapter is already on; callers treat failures as non-fatal.
func (c *Client) PowerOn(ctx context.Context) error {
	_, err := c.cmd.Run(ctx, "power", "on")
	return err
}

// Powered queries adapter status and reports whether it shows powered.
func (c *Client) Powered(ctx context.Context) (bool, error) {
	out, err := c.cmd.Run(ctx, "show")
	if err != nil {
		return false, err
	}
	return IsPowered(out), nil
}

// StartDiscovery opens a discovery window as a detached background task and
// returns its stop function. Stop is idempotent: it asks the daemon to end
// discovery (failure logged, not escalated) and then kills any lingering
// task, so the cleanup path may call it again defensively.
func (c *Client) StartDiscovery(ctx context.Context) (func(), error) {
	kill, err := c.cmd.Start(ctx, "scan", "on")
	if err != nil {
		return nil, fmt.Errorf("start discovery: %w", err)
	}
	c.logger.Debug("discovery started")

	var once sync.Once
	stop := func() {
		once.Do(func() {
			if _, err := c.cmd.Run(ctx, "scan", "off"); err != nil {
				c.logger.WithError(err).Warn("failed to stop discovery cleanly")
			}
			if err := kill(); err != nil {
				c.logger.WithError(err).Debug("discovery task already gone")
			}
			c.logger.Debug("discovery stopped")
		})
	}
	return stop, nil
}

// Devices returns the daemon's known-device listing, parsed.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	out, err := c.cmd.Run(ctx, "devices")
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return ParseDevices(out), nil
}

// Remove forgets a bonded device by address.
func (c *Client) Remove(ctx context.Context, address string) error {
	_, err := c.cmd.Run(ctx, "remove", address)
	return err
}

// Pair initiates pairing with the device at address.
func (c *Client) Pair(ctx context.Context, address string) error {
	_, err := c.cmd.Run(ctx, "pair", address)
	return err
}

// Trust marks the device at address as trusted.
func (c *Client) Trust(ctx context.Context, address string) error {
	_, err := c.cmd.Run(ctx, "trust", address)
	return err
}

// Connect connects to the device at address.
func (c *Client) Connect(ctx context.Context, address string) error {
	_, err := c.cmd.Run(ctx, "connect", address)
	return err
}

// ServicesResolved queries the device info dump and reports whether its
// service descriptors have been fully enumerated.
func (c *Client) ServicesResolved(ctx context.Context, address string) (bool, error) {
	out, err := c.cmd.Run(ctx, "info", address)
	if err != nil {
		return false, err
	}
	return HasServicesResolved(out), nil
}
