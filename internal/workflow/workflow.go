// Package workflow sequences the pairing run: patch the controller config,
// restart the daemon, wait for the adapter, forget stale bonds, scan, let the
// user pick a device, pair/trust/connect, and restore the original config on
// every exit path.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/podpair/internal/btctl"
	"github.com/srg/podpair/internal/retry"
)

// Fatal workflow conditions.
var (
	// ErrAdapterNotPowered means the adapter never reported powered within
	// the polling budget. Every later step is meaningless without it, so no
	// retry wrapper sits above this gate.
	ErrAdapterNotPowered = errors.New("bluetooth adapter did not reach powered state")

	// ErrNoDevicesFound means the discovery window closed with zero matching
	// candidates, the expected failure when the target is not in pairing
	// mode. Re-scanning without user intervention is unlikely to help.
	ErrNoDevicesFound = errors.New("no matching devices found")
)

// Stage identifies how far the run has progressed.
type Stage int

const (
	StageInit Stage = iota
	StageConfigPatched
	StageServiceRestarted
	StageAdapterReady
	StageCleaned
	StageScanned
	StageSelected
	StagePaired
	StageTrusted
	StageConnected
	StageRestored
)

var stageNames = map[Stage]string{
	StageInit:             "init",
	StageConfigPatched:    "config-patched",
	StageServiceRestarted: "service-restarted",
	StageAdapterReady:     "adapter-ready",
	StageCleaned:          "cleaned",
	StageScanned:          "scanned",
	StageSelected:         "selected",
	StagePaired:           "paired",
	StageTrusted:          "trusted",
	StageConnected:        "connected",
	StageRestored:         "restored",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ConfigPatcher mutates and restores the controller-mode directive.
type ConfigPatcher interface {
	Patch() error
	Restore() error
	BackupExists() bool
}

// ServiceRestarter restarts the bluetooth service.
type ServiceRestarter interface {
	Restart(ctx context.Context) error
}

// Progress renders the scan-window countdown. A nil Progress disables it.
type Progress interface {
	Start()
	Stop()
}

// Options configures a run. Zero values get sensible defaults from New.
type Options struct {
	// DeviceName is the case-insensitive substring devices must match.
	DeviceName string

	// ScanTimeout is the length of the discovery window.
	ScanTimeout time.Duration

	// ScanOnly lists matching devices and exits without pairing.
	ScanOnly bool

	// RemoveOnly forgets matching devices and exits. No config is touched
	// in this mode, so no restore is owed afterwards.
	RemoveOnly bool

	// PairAttempts bounds pair and connect retries (default 3).
	PairAttempts int

	// RetryDelay is the fixed backoff between pair/connect attempts
	// (default 2s).
	RetryDelay time.Duration

	// PollAttempts bounds the adapter and services-resolved polls
	// (default 5).
	PollAttempts int

	// PollInterval is the wait between polls (default 1s).
	PollInterval time.Duration

	// Prompt is the selection input (default os.Stdin).
	Prompt io.Reader

	// Out receives user-facing output (default os.Stdout).
	Out io.Writer

	// Display renders the candidate list; nil gets a plain listing.
	Display func(w io.Writer, devices []btctl.Device)

	// Progress renders the scan countdown; may be nil.
	Progress Progress
}

// Workflow is the pairing orchestrator. One instance per process; not safe
// for concurrent use.
type Workflow struct {
	client   *btctl.Client
	registry *btctl.Registry
	patcher  ConfigPatcher
	services ServiceRestarter
	logger   *logrus.Logger
	opts     Options

	stage       Stage
	cleanupOnce sync.Once

	// sleep is replaced in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a workflow over the given collaborators.
func New(client *btctl.Client, registry *btctl.Registry, patcher ConfigPatcher, services ServiceRestarter, logger *logrus.Logger, opts Options) *Workflow {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.PairAttempts <= 0 {
		opts.PairAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = 5
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = 10 * time.Second
	}
	if opts.Prompt == nil {
		opts.Prompt = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Workflow{
		client:   client,
		registry: registry,
		patcher:  patcher,
		services: services,
		logger:   logger,
		opts:     opts,
		stage:    StageInit,
	}
}

// Stage returns the last stage the run reached.
func (w *Workflow) Stage() Stage { return w.stage }

func (w *Workflow) setStage(s Stage) {
	w.stage = s
	w.logger.WithField("stage", s.String()).Debug("stage reached")
}

// Run executes the pairing sequence. The restore guard covers every exit
// path once the config has been patched, including cancellation.
func (w *Workflow) Run(ctx context.Context) error {
	if w.opts.RemoveOnly {
		return w.runRemoveOnly(ctx)
	}

	if err := w.patcher.Patch(); err != nil {
		return err
	}
	w.setStage(StageConfigPatched)
	defer w.Cleanup()

	if err := w.services.Restart(ctx); err != nil {
		return err
	}
	w.setStage(StageServiceRestarted)

	if err := w.awaitAdapter(ctx); err != nil {
		return err
	}
	w.setStage(StageAdapterReady)

	if _, err := w.registry.ForgetMatching(ctx, w.opts.DeviceName); err != nil {
		// Best-effort hygiene; a failed listing must not stop the run.
		w.logger.WithError(err).Warn("could not forget known devices")
	}
	w.setStage(StageCleaned)

	candidates, err := w.scan(ctx)
	if err != nil {
		return err
	}
	w.setStage(StageScanned)
	w.display(candidates)

	if w.opts.ScanOnly {
		w.logger.Info("scan-only mode, skipping selection and pairing")
		return nil
	}

	chosen, err := w.choose(candidates)
	if err != nil {
		return err
	}
	w.setStage(StageSelected)
	w.logger.WithFields(logrus.Fields{
		"address": chosen.Address,
		"name":    chosen.Name,
	}).Info("device selected")

	if err := retry.Do(ctx, w.logger, "pair", w.opts.PairAttempts, w.opts.RetryDelay, func(ctx context.Context) error {
		return w.client.Pair(ctx, chosen.Address)
	}); err != nil {
		return err
	}
	w.setStage(StagePaired)

	// Trust failures are rare and do not block the connect that follows.
	if err := w.client.Trust(ctx, chosen.Address); err != nil {
		w.logger.WithError(err).Warn("trust failed, continuing")
	}
	w.setStage(StageTrusted)

	w.awaitServicesResolved(ctx, chosen.Address)

	if err := retry.Do(ctx, w.logger, "connect", w.opts.PairAttempts, w.opts.RetryDelay, func(ctx context.Context) error {
		return w.client.Connect(ctx, chosen.Address)
	}); err != nil {
		return err
	}
	w.setStage(StageConnected)

	// Main-sequence restore: failures here are fatal, unlike in Cleanup.
	if err := w.patcher.Restore(); err != nil {
		return err
	}
	if err := w.services.Restart(ctx); err != nil {
		return err
	}
	w.setStage(StageRestored)

	fmt.Fprintf(w.opts.Out, "Paired and connected to %s (%s).\n", displayName(chosen), chosen.Address)
	return nil
}

func (w *Workflow) runRemoveOnly(ctx context.Context) error {
	removed, err := w.registry.ForgetMatching(ctx, w.opts.DeviceName)
	if err != nil {
		return err
	}
	fmt.Fprintf(w.opts.Out, "Removed %d device(s) matching %q.\n", removed, w.opts.DeviceName)
	return nil
}

// Cleanup restores the original config and restarts the service if a backup
// is still outstanding. It runs at most once, is safe from any exit path
// including signal delivery, and never escalates: cleanup failures are
// logged, not returned.
func (w *Workflow) Cleanup() {
	w.cleanupOnce.Do(func() {
		if !w.patcher.BackupExists() {
			return
		}
		w.logger.Info("restoring original configuration")
		if err := w.patcher.Restore(); err != nil {
			w.logger.WithError(err).Error("cleanup: config restore failed")
			return
		}
		// The run context may already be cancelled; the restart must still
		// be attempted.
		if err := w.services.Restart(context.Background()); err != nil {
			w.logger.WithError(err).Error("cleanup: service restart failed")
			return
		}
		w.setStage(StageRestored)
	})
}

func (w *Workflow) sleepCtx(ctx context.Context, d time.Duration) error {
	if w.sleep != nil {
		return w.sleep(ctx, d)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func displayName(d btctl.Device) string {
	if d.Name == "" {
		return "(unnamed)"
	}
	return d.Name
}
