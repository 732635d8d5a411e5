package btctl

import (
	"context"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
)

// Registry reads the daemon's known-device set and forgets matching entries.
// Bonded/known state lives in the daemon; the registry only ever holds an
// ordered snapshot.
type Registry struct {
	client *Client
	logger *logrus.Logger
}

// NewRegistry returns a registry backed by client.
func NewRegistry(client *Client, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{client: client, logger: logger}
}

// ListKnown returns the daemon's device listing deduplicated by address,
// preserving first-seen order.
func (r *Registry) ListKnown(ctx context.Context) ([]Device, error) {
	devices, err := r.client.Devices(ctx)
	if err != nil {
		return nil, err
	}

	seen := hashmap.New[string, Device]()
	ordered := make([]Device, 0, len(devices))
	for _, d := range devices {
		if _, existing := seen.GetOrInsert(d.Address, d); !existing {
			ordered = append(ordered, d)
		}
	}
	return ordered, nil
}

// ListMatching returns the known devices whose name matches pattern.
func (r *Registry) ListMatching(ctx context.Context, pattern string) ([]Device, error) {
	devices, err := r.ListKnown(ctx)
	if err != nil {
		return nil, err
	}
	return FilterByName(devices, pattern), nil
}

// ForgetMatching removes every known device matching pattern. Forgetting is
// best-effort hygiene, not a precondition for pairing: a failed removal is
// logged and the loop continues. Returns the number actually removed.
func (r *Registry) ForgetMatching(ctx context.Context, pattern string) (int, error) {
	matches, err := r.ListMatching(ctx, pattern)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, d := range matches {
		if err := r.client.Remove(ctx, d.Address); err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"address": d.Address,
				"name":    d.Name,
			}).Warn("failed to forget device")
			continue
		}
		removed++
		r.logger.WithFields(logrus.Fields{
			"address": d.Address,
			"name":    d.Name,
		}).Info("forgot device")
	}
	return removed, nil
}
