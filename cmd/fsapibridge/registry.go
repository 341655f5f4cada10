package main

import (
	"context"
	"time"

	fsbridge "github.com/nerrad567/gray-logic-fsapi/internal/bridges/fsapi"
	"github.com/nerrad567/gray-logic-fsapi/internal/receiver"
)

// registryAdapter exposes the receiver repository as the bridge's
// ReceiverRegistry.
type registryAdapter struct {
	repo receiver.Repository
}

func newRegistryAdapter(repo receiver.Repository) *registryAdapter {
	return &registryAdapter{repo: repo}
}

// SeedReceiver implements fsbridge.ReceiverRegistry.
func (a *registryAdapter) SeedReceiver(ctx context.Context, seed fsbridge.ReceiverSeed) error {
	rec := &receiver.Receiver{
		ID:        seed.ID,
		Name:      seed.Name,
		DeviceURL: seed.DeviceURL,
		Source:    receiver.Source(seed.Source),
	}
	if seed.USN != "" {
		usn := seed.USN
		rec.USN = &usn
	}
	_, err := a.repo.CreateIfNotExists(ctx, rec)
	return err
}

// SetReceiverState implements fsbridge.ReceiverRegistry.
func (a *registryAdapter) SetReceiverState(ctx context.Context, id string, state map[string]any) error {
	return a.repo.UpdateState(ctx, id, receiver.State(state))
}

// SetReceiverHealth implements fsbridge.ReceiverRegistry.
func (a *registryAdapter) SetReceiverHealth(ctx context.Context, id string, online bool) error {
	status := receiver.HealthOffline
	if online {
		status = receiver.HealthOnline
	}
	return a.repo.UpdateHealth(ctx, id, status, time.Now())
}

// ListReceivers implements fsbridge.ReceiverRegistry.
func (a *registryAdapter) ListReceivers(ctx context.Context) ([]fsbridge.ReceiverSeed, error) {
	recs, err := a.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	seeds := make([]fsbridge.ReceiverSeed, 0, len(recs))
	for _, rec := range recs {
		seed := fsbridge.ReceiverSeed{
			ID:        rec.ID,
			Name:      rec.Name,
			DeviceURL: rec.DeviceURL,
			Source:    string(rec.Source),
		}
		if rec.USN != nil {
			seed.USN = *rec.USN
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}
