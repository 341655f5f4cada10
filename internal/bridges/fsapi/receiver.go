package fsapi

import (
	"context"
	"net/url"
	"strings"
	"sync"

	fsclient "github.com/nerrad567/gray-logic-fsapi/internal/fsapi"
)

// Receiver is the subset of the FSAPI client the bridge drives.
// *fsclient.Client satisfies it; tests substitute a fake.
type Receiver interface {
	DeviceURL() string
	Close(ctx context.Context) error

	// GetU8 is used as the reachability probe: it is the only call whose
	// failure is visible to the bridge.
	GetU8(ctx context.Context, path string) (uint8, error)

	FriendlyName(ctx context.Context) string
	SetFriendlyName(ctx context.Context, name string) bool
	Power(ctx context.Context) bool
	SetPower(ctx context.Context, on bool) bool
	ModeList(ctx context.Context) []string
	Mode(ctx context.Context) string
	SetMode(ctx context.Context, label string) bool
	Volume(ctx context.Context) int
	SetVolume(ctx context.Context, level int) bool
	VolumeSteps(ctx context.Context) int
	Mute(ctx context.Context) bool
	SetMute(ctx context.Context, muted bool) bool
	Sleep(ctx context.Context) int
	SetSleep(ctx context.Context, seconds int) bool

	PlayStatus(ctx context.Context) fsclient.PlayState
	PlayName(ctx context.Context) string
	PlayText(ctx context.Context) string
	PlayArtist(ctx context.Context) string
	PlayAlbum(ctx context.Context) string
	PlayGraphic(ctx context.Context) string
	PlayDuration(ctx context.Context) int
	PlayPosition(ctx context.Context) int
	Play(ctx context.Context) bool
	Pause(ctx context.Context) bool
	Forward(ctx context.Context) bool
	Rewind(ctx context.Context) bool
}

// ReceiverFactory builds a Receiver from its configuration.
type ReceiverFactory func(cfg ReceiverConfig, logger Logger) (Receiver, error)

// NewClientReceiver is the default ReceiverFactory backed by the FSAPI client.
func NewClientReceiver(cfg ReceiverConfig, logger Logger) (Receiver, error) {
	return fsclient.New(cfg.ClientConfig(logger))
}

// receiverHandle is a managed receiver and its last published state.
type receiverHandle struct {
	cfg    ReceiverConfig
	client Receiver
	ctx    context.Context    // cancelled on removal or bridge stop
	cancel context.CancelFunc // cancels ctx

	// pollMu serialises polls of one receiver (ticker and post-command).
	pollMu sync.Mutex

	mu        sync.Mutex
	lastState map[string]any
	online    bool
	polled    bool
}

// volatileKeys change continuously and never trigger a publish on their own.
var volatileKeys = map[string]bool{
	"position": true,
}

// snapshot reads the receiver's full state.
// Returns nil if the receiver does not answer the reachability probe.
func snapshot(ctx context.Context, r Receiver) map[string]any {
	power, err := r.GetU8(ctx, fsclient.PathPower)
	if err != nil {
		return nil
	}

	return map[string]any{
		"online":       true,
		"power":        power != 0,
		"volume":       r.Volume(ctx),
		"volume_steps": r.VolumeSteps(ctx),
		"mute":         r.Mute(ctx),
		"mode":         r.Mode(ctx),
		"sleep":        r.Sleep(ctx),
		"play_status":  string(r.PlayStatus(ctx)),
		"name":         r.PlayName(ctx),
		"text":         r.PlayText(ctx),
		"artist":       r.PlayArtist(ctx),
		"album":        r.PlayAlbum(ctx),
		"graphic_uri":  r.PlayGraphic(ctx),
		"duration":     r.PlayDuration(ctx),
		"position":     r.PlayPosition(ctx),
	}
}

// offlineState is published when a receiver stops answering.
func offlineState() map[string]any {
	return map[string]any{"online": false}
}

// stateChanged reports whether next differs from prev in any non-volatile key.
func stateChanged(prev, next map[string]any) bool {
	if prev == nil {
		return true
	}
	for k, v := range next {
		if volatileKeys[k] {
			continue
		}
		if old, ok := prev[k]; !ok || old != v {
			return true
		}
	}
	for k := range prev {
		if volatileKeys[k] {
			continue
		}
		if _, ok := next[k]; !ok {
			return true
		}
	}
	return false
}

// update records a poll result and reports whether it should be published,
// and whether the online flag flipped.
func (h *receiverHandle) update(state map[string]any) (publish, transition bool) {
	online := state != nil
	if state == nil {
		state = offlineState()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	transition = !h.polled || h.online != online
	publish = transition || stateChanged(h.lastState, state)

	h.polled = true
	h.online = online
	h.lastState = state
	return publish, transition
}

// status copies the handle's last poll result.
func (h *receiverHandle) status() ReceiverStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	var state map[string]any
	if h.lastState != nil {
		state = make(map[string]any, len(h.lastState))
		for k, v := range h.lastState {
			state[k] = v
		}
	}
	return ReceiverStatus{
		ID:        h.cfg.ID,
		Name:      h.cfg.Name,
		DeviceURL: h.cfg.DeviceURL,
		Online:    h.online,
		Polled:    h.polled,
		State:     state,
	}
}

// isOnline reports the result of the last poll.
func (h *receiverHandle) isOnline() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.online
}

// DiscoveredID derives a stable receiver ID from a device URL.
// Example: "http://192.168.1.40:80/device" becomes "fsapi-192-168-1-40".
func DiscoveredID(deviceURL string) string {
	host := deviceURL
	if u, err := url.Parse(deviceURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	host = strings.NewReplacer(".", "-", ":", "-", "/", "-", " ", "-").Replace(host)
	return "fsapi-" + strings.Trim(host, "-")
}
