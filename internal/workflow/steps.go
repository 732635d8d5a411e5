package workflow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/srg/podpair/internal/btctl"
)

// awaitAdapter powers the adapter on (best-effort) and polls its status
// until it reports powered. Exhausting the budget is fatal to the run.
func (w *Workflow) awaitAdapter(ctx context.Context) error {
	if err := w.client.PowerOn(ctx); err != nil {
		// The adapter may already be on; only the poll below decides.
		w.logger.WithError(err).Warn("power-on request failed")
	}

	for attempt := 1; attempt <= w.opts.PollAttempts; attempt++ {
		powered, err := w.client.Powered(ctx)
		if err != nil {
			w.logger.WithError(err).WithField("attempt", attempt).Debug("adapter status query failed")
		} else if powered {
			w.logger.WithField("attempt", attempt).Debug("adapter powered")
			return nil
		}
		if attempt < w.opts.PollAttempts {
			if err := w.sleepCtx(ctx, w.opts.PollInterval); err != nil {
				return err
			}
		}
	}
	return ErrAdapterNotPowered
}

// scan opens the discovery window for the configured duration, closes it,
// and reads back the filtered device list. Zero candidates is fatal.
func (w *Workflow) scan(ctx context.Context) ([]btctl.Device, error) {
	stop, err := w.client.StartDiscovery(ctx)
	if err != nil {
		return nil, err
	}
	// stop is idempotent; the deferred call is the defensive second cancel
	// for early error returns.
	defer stop()

	if w.opts.Progress != nil {
		w.opts.Progress.Start()
	}
	sleepErr := w.sleepCtx(ctx, w.opts.ScanTimeout)
	if w.opts.Progress != nil {
		w.opts.Progress.Stop()
	}
	stop()
	if sleepErr != nil {
		return nil, sleepErr
	}

	candidates, err := w.registry.ListMatching(ctx, w.opts.DeviceName)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w for %q: put the device in pairing mode and run again", ErrNoDevicesFound, w.opts.DeviceName)
	}
	w.logger.WithField("count", len(candidates)).Info("scan finished")
	return candidates, nil
}

// display renders the candidate list through the configured renderer.
func (w *Workflow) display(candidates []btctl.Device) {
	if w.opts.Display != nil {
		w.opts.Display(w.opts.Out, candidates)
		return
	}
	for i, d := range candidates {
		fmt.Fprintf(w.opts.Out, "[%d] %s %s\n", i+1, displayName(d), d.Address)
	}
}

// choose prompts for a 1-based index into candidates and re-prompts on
// invalid input indefinitely; this is a local, low-cost interaction with no
// attempt budget, unlike the remote operations. Input exhaustion (EOF) is
// an error so a closed stdin cannot spin forever.
func (w *Workflow) choose(candidates []btctl.Device) (btctl.Device, error) {
	if f, ok := w.opts.Prompt.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return btctl.Device{}, errors.New("device selection needs an interactive terminal (use --scan-only otherwise)")
	}

	reader := bufio.NewReader(w.opts.Prompt)
	for {
		fmt.Fprintf(w.opts.Out, "Select a device [1-%d]: ", len(candidates))
		line, readErr := reader.ReadString('\n')
		text := strings.TrimSpace(line)

		idx, convErr := strconv.Atoi(text)
		if convErr == nil && idx >= 1 && idx <= len(candidates) {
			return candidates[idx-1], nil
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return btctl.Device{}, errors.New("selection aborted: input closed")
			}
			return btctl.Device{}, fmt.Errorf("read selection: %w", readErr)
		}
		fmt.Fprintf(w.opts.Out, "Enter a number between 1 and %d.\n", len(candidates))
	}
}

// awaitServicesResolved polls the device info dump for the services-resolved
// indicator before connecting. Best-effort wait, not a gate: connect is
// attempted either way.
func (w *Workflow) awaitServicesResolved(ctx context.Context, address string) {
	for attempt := 1; attempt <= w.opts.PollAttempts; attempt++ {
		resolved, err := w.client.ServicesResolved(ctx, address)
		if err == nil && resolved {
			w.logger.WithField("address", address).Debug("services resolved")
			return
		}
		if err := w.sleepCtx(ctx, w.opts.PollInterval); err != nil {
			return
		}
	}
	w.logger.WithField("address", address).Debug("services not resolved in time, connecting anyway")
}
