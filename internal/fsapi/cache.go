package fsapi

import (
	"context"
	"sync"
)

// capabilityCache memoises device capabilities that do not change while the
// receiver is running. Entries live as long as the client; there is no TTL.
//
// A fetch that fails or returns an empty list is not cached, so the next
// request tries again.
type capabilityCache struct {
	mu sync.Mutex

	modes      []Item
	equalisers []Item

	volumeSteps    uint8
	hasVolumeSteps bool
}

// Modes returns the operating modes supported by the device (DAB, FM,
// Internet radio, Spotify, ...). Fetched once per client.
func (c *Client) Modes(ctx context.Context) []Item {
	c.caps.mu.Lock()
	defer c.caps.mu.Unlock()

	if len(c.caps.modes) == 0 {
		items, err := c.GetList(ctx, PathValidModes)
		if err == nil && len(items) > 0 {
			c.caps.modes = items
		}
		return items
	}
	return c.caps.modes
}

// Equalisers returns the equaliser presets supported by the device.
// Fetched once per client.
func (c *Client) Equalisers(ctx context.Context) []Item {
	c.caps.mu.Lock()
	defer c.caps.mu.Unlock()

	if len(c.caps.equalisers) == 0 {
		items, err := c.GetList(ctx, PathEqualisers)
		if err == nil && len(items) > 0 {
			c.caps.equalisers = items
		}
		return items
	}
	return c.caps.equalisers
}

// VolumeSteps returns the number of volume steps the device supports, or 0
// if it could not be read. Fetched once per client.
func (c *Client) VolumeSteps(ctx context.Context) int {
	c.caps.mu.Lock()
	defer c.caps.mu.Unlock()

	if !c.caps.hasVolumeSteps {
		steps, err := c.GetU8(ctx, PathVolumeSteps)
		if err != nil {
			return 0
		}
		c.caps.volumeSteps = steps
		c.caps.hasVolumeSteps = true
	}
	return int(c.caps.volumeSteps)
}
