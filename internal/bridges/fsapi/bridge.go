package fsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-fsapi/internal/discovery"
)

// Bridge operation constants.
const (
	// commandTopicParts is the number of levels in a command topic.
	commandTopicParts = 4

	// pollTimeout bounds one full state snapshot of a receiver.
	pollTimeout = 15 * time.Second

	// nameTimeout bounds the friendly-name lookup of a discovered receiver.
	nameTimeout = 3 * time.Second

	// closeTimeout bounds session teardown on removal and shutdown.
	closeTimeout = 2 * time.Second
)

// Logger is the structured logger used by the bridge.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Bridge connects FSAPI receivers to the MQTT bus.
// It handles:
//   - Polling receivers and publishing state changes
//   - Translating MQTT commands into FSAPI calls
//   - SSDP discovery of new receivers
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg        *Config
	mqtt       MQTTClient
	health     *HealthReporter
	registry   ReceiverRegistry // Optional
	telemetry  Telemetry        // Optional
	discoverer Discoverer       // Optional
	factory    ReceiverFactory

	receivers   map[string]*receiverHandle // by receiver ID
	byURL       map[string]string          // device URL -> receiver ID
	stopped     bool
	receiversMu sync.RWMutex

	// Shutdown coordination
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	onState   func(StateMessage)
	onStateMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// ReceiverStatus is a point-in-time view of a managed receiver.
type ReceiverStatus struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	DeviceURL string         `json:"device_url"`
	Online    bool           `json:"online"`
	Polled    bool           `json:"polled"`
	State     map[string]any `json:"state,omitempty"`
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool

	// Disconnect closes the connection gracefully.
	Disconnect(quiesce uint)
}

// ReceiverRegistry persists receivers, their last state and their health.
// Satisfied by *receiver.SQLiteRepository via an adapter in main.go.
// It is optional - if nil, the bridge keeps everything in memory.
type ReceiverRegistry interface {
	// SeedReceiver records a receiver. No-op if the ID already exists.
	SeedReceiver(ctx context.Context, seed ReceiverSeed) error

	// SetReceiverState merges state into the stored state.
	SetReceiverState(ctx context.Context, id string, state map[string]any) error

	// SetReceiverHealth records a reachability transition.
	SetReceiverHealth(ctx context.Context, id string, online bool) error

	// ListReceivers returns all stored receivers.
	ListReceivers(ctx context.Context) ([]ReceiverSeed, error)
}

// ReceiverSeed is the registry view of a receiver.
type ReceiverSeed struct {
	ID        string
	Name      string
	DeviceURL string
	Source    string // "config" or "discovery"
	USN       string
}

// Receiver sources recorded in the registry.
const (
	SourceConfig    = "config"
	SourceDiscovery = "discovery"
)

// Telemetry stores numeric receiver state as time series.
// Satisfied by *influxdb.Client. Optional.
type Telemetry interface {
	WriteReceiverState(receiverID string, fields map[string]any)
}

// Discoverer finds receivers on the local network.
// Satisfied by *discovery.Scanner. Optional.
type Discoverer interface {
	Search(ctx context.Context, wait time.Duration) ([]discovery.Receiver, error)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the loaded bridge configuration.
	Config *Config

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Logger is optional structured logger.
	Logger Logger

	// Version is reported in health messages.
	Version string

	// Registry is optional receiver persistence.
	Registry ReceiverRegistry

	// Telemetry is optional time-series output.
	Telemetry Telemetry

	// Discoverer is required when discovery is enabled in Config.
	Discoverer Discoverer

	// Factory builds receiver clients. Defaults to NewClientReceiver.
	Factory ReceiverFactory
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Config.Discovery.Enabled && opts.Discoverer == nil {
		return nil, fmt.Errorf("discoverer is required when discovery is enabled")
	}

	factory := opts.Factory
	if factory == nil {
		factory = NewClientReceiver
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:        opts.Config,
		mqtt:       opts.MQTTClient,
		registry:   opts.Registry,
		telemetry:  opts.Telemetry,
		discoverer: opts.Discoverer,
		factory:    factory,
		receivers:  make(map[string]*receiverHandle),
		byURL:      make(map[string]string),
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		logger:     opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.Config.Bridge.ID,
		Version:   opts.Version,
		Interval:  opts.Config.GetHealthInterval(),
		Publisher: opts.MQTTClient,
		Counter:   b.ReceiverCounts,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Health returns the bridge's health reporter (for LWT configuration).
func (b *Bridge) Health() *HealthReporter {
	return b.health
}

// Start begins bridge operation.
// This adds configured and previously discovered receivers, subscribes to
// command topics and starts health reporting and discovery.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	for _, rc := range b.cfg.Receivers {
		if err := b.addReceiver(ctx, rc, SourceConfig, ""); err != nil {
			b.logError("failed to add receiver", err, "receiver_id", rc.ID)
		}
	}
	b.loadReceiversFromRegistry(ctx)

	commandTopic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	b.health.Start(ctx)

	if b.cfg.Discovery.Enabled {
		if b.track() {
			go b.discoveryLoop()
		}
	}

	managed, _ := b.ReceiverCounts()
	b.logInfo("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"receivers", managed,
		"discovery", b.cfg.Discovery.Enabled)

	return nil
}

// Stop gracefully shuts down the bridge.
// In-flight polls and commands are cancelled and every session is closed.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.receiversMu.Lock()
		b.stopped = true
		b.receiversMu.Unlock()

		// Cancel bridge context to abort in-flight requests
		b.ctxCancel()

		// Stop health reporting (publishes "stopping" status)
		b.health.Stop()

		b.wg.Wait()

		b.receiversMu.Lock()
		handles := make([]*receiverHandle, 0, len(b.receivers))
		for _, h := range b.receivers {
			handles = append(handles, h)
		}
		b.receiversMu.Unlock()

		for _, h := range handles {
			b.closeReceiver(h)
		}

		b.logInfo("bridge stopped")
	})
}

// track registers a background goroutine unless the bridge is stopping.
// Returns false if the goroutine must not be started.
func (b *Bridge) track() bool {
	b.receiversMu.RLock()
	defer b.receiversMu.RUnlock()

	if b.stopped {
		return false
	}
	b.wg.Add(1)
	return true
}

// AddReceiver starts managing a receiver at runtime.
//
// Parameters:
//   - ctx: Context for the registry write
//   - rc: Receiver settings; an empty PIN uses the discovery default PIN
//
// Returns:
//   - error: ErrReceiverExists, ErrStopped, or a configuration error
func (b *Bridge) AddReceiver(ctx context.Context, rc ReceiverConfig) error {
	return b.addReceiver(ctx, rc, SourceConfig, "")
}

func (b *Bridge) addReceiver(ctx context.Context, rc ReceiverConfig, source, usn string) error {
	if rc.PIN == "" {
		rc.PIN = b.cfg.Discovery.DefaultPIN
	}
	if !ValidReceiverID(rc.ID) {
		return fmt.Errorf("invalid receiver id %q", rc.ID)
	}
	if !validDeviceURL(rc.DeviceURL) {
		return fmt.Errorf("invalid device url %q", rc.DeviceURL)
	}

	client, err := b.factory(rc, b.getLogger())
	if err != nil {
		return fmt.Errorf("creating client for %s: %w", rc.ID, err)
	}

	hctx, cancel := context.WithCancel(b.ctx)
	h := &receiverHandle{cfg: rc, client: client, ctx: hctx, cancel: cancel}

	b.receiversMu.Lock()
	switch {
	case b.stopped:
		err = ErrStopped
	case b.receivers[rc.ID] != nil:
		err = fmt.Errorf("%w: id %s", ErrReceiverExists, rc.ID)
	case b.byURL[rc.DeviceURL] != "":
		err = fmt.Errorf("%w: %s", ErrReceiverExists, rc.DeviceURL)
	}
	if err != nil {
		b.receiversMu.Unlock()
		cancel()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
		defer closeCancel()
		client.Close(closeCtx) //nolint:errcheck // never held a session
		return err
	}
	b.receivers[rc.ID] = h
	b.byURL[rc.DeviceURL] = rc.ID
	b.wg.Add(1)
	b.receiversMu.Unlock()

	go b.pollLoop(h)

	b.seedRegistry(ctx, rc, source, usn)

	b.logInfo("receiver added",
		"receiver_id", rc.ID,
		"device_url", rc.DeviceURL,
		"source", source)
	return nil
}

// RemoveReceiver stops managing a receiver and closes its session.
func (b *Bridge) RemoveReceiver(id string) error {
	b.receiversMu.Lock()
	h, ok := b.receivers[id]
	if ok {
		delete(b.receivers, id)
		delete(b.byURL, h.cfg.DeviceURL)
	}
	b.receiversMu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReceiver, id)
	}

	b.closeReceiver(h)
	b.logInfo("receiver removed", "receiver_id", id)
	return nil
}

// closeReceiver cancels the receiver's poll loop and ends its session.
func (b *Bridge) closeReceiver(h *receiverHandle) {
	h.cancel()

	// Waits for an in-flight poll to observe the cancellation.
	h.pollMu.Lock()
	defer h.pollMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := h.client.Close(ctx); err != nil {
		b.logError("failed to close receiver", err, "receiver_id", h.cfg.ID)
	}
}

// lookup returns the handle of a managed receiver.
func (b *Bridge) lookup(id string) (*receiverHandle, bool) {
	b.receiversMu.RLock()
	defer b.receiversMu.RUnlock()
	h, ok := b.receivers[id]
	return h, ok
}

// ReceiverIDs returns the managed receiver IDs in sorted order.
func (b *Bridge) ReceiverIDs() []string {
	b.receiversMu.RLock()
	ids := make([]string, 0, len(b.receivers))
	for id := range b.receivers {
		ids = append(ids, id)
	}
	b.receiversMu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Receivers returns the status of every managed receiver, sorted by ID.
func (b *Bridge) Receivers() []ReceiverStatus {
	b.receiversMu.RLock()
	handles := make([]*receiverHandle, 0, len(b.receivers))
	for _, h := range b.receivers {
		handles = append(handles, h)
	}
	b.receiversMu.RUnlock()

	out := make([]ReceiverStatus, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Receiver returns the status of one managed receiver.
func (b *Bridge) Receiver(id string) (ReceiverStatus, bool) {
	h, ok := b.lookup(id)
	if !ok {
		return ReceiverStatus{}, false
	}
	return h.status(), true
}

// ReceiverCounts returns the number of managed receivers and how many of
// them answered their last poll.
func (b *Bridge) ReceiverCounts() (managed, online int) {
	b.receiversMu.RLock()
	defer b.receiversMu.RUnlock()

	for _, h := range b.receivers {
		managed++
		if h.isOnline() {
			online++
		}
	}
	return managed, online
}

// loadReceiversFromRegistry re-adds receivers found by earlier discovery runs.
func (b *Bridge) loadReceiversFromRegistry(ctx context.Context) {
	if b.registry == nil {
		return
	}

	seeds, err := b.registry.ListReceivers(ctx)
	if err != nil {
		b.logError("failed to load receivers from registry", err)
		return
	}

	loaded := 0
	for _, s := range seeds {
		if s.Source != SourceDiscovery {
			continue
		}
		rc := ReceiverConfig{ID: s.ID, Name: s.Name, DeviceURL: s.DeviceURL}
		err := b.addReceiver(ctx, rc, SourceDiscovery, s.USN)
		if errors.Is(err, ErrReceiverExists) {
			continue
		}
		if err != nil {
			b.logError("failed to add stored receiver", err, "receiver_id", s.ID)
			continue
		}
		loaded++
	}

	if loaded > 0 {
		b.logInfo("loaded receivers from registry", "count", loaded)
	}
}

// seedRegistry records a newly managed receiver.
func (b *Bridge) seedRegistry(ctx context.Context, rc ReceiverConfig, source, usn string) {
	if b.registry == nil {
		return
	}

	name := rc.Name
	if name == "" {
		name = rc.ID
	}
	seed := ReceiverSeed{
		ID:        rc.ID,
		Name:      name,
		DeviceURL: rc.DeviceURL,
		Source:    source,
		USN:       usn,
	}
	if err := b.registry.SeedReceiver(ctx, seed); err != nil {
		b.logError("failed to seed receiver", err, "receiver_id", rc.ID)
	}
}

// pollLoop polls one receiver until its context is cancelled.
func (b *Bridge) pollLoop(h *receiverHandle) {
	defer b.wg.Done()

	b.pollOnce(h)

	ticker := time.NewTicker(b.cfg.GetPollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			b.pollOnce(h)
		}
	}
}

// pollOnce takes a snapshot of a receiver and publishes it if it changed.
// It does nothing once the receiver has been removed or the bridge stopped.
func (b *Bridge) pollOnce(h *receiverHandle) {
	h.pollMu.Lock()
	defer h.pollMu.Unlock()

	ctx := h.ctx
	if ctx.Err() != nil {
		return
	}

	pctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	state := snapshot(pctx, h.client)
	if ctx.Err() != nil {
		// Removal or shutdown interrupted the poll; the result is meaningless.
		return
	}

	publish, transition := h.update(state)
	online := state != nil

	if transition {
		if online {
			b.logInfo("receiver online", "receiver_id", h.cfg.ID)
		} else {
			b.logWarn("receiver unreachable", "receiver_id", h.cfg.ID, "device_url", h.cfg.DeviceURL)
		}
		b.recordHealth(ctx, h.cfg.ID, online)
	}

	if online && b.telemetry != nil {
		b.telemetry.WriteReceiverState(h.cfg.ID, telemetryFields(state))
	}

	if !publish {
		return
	}
	if state == nil {
		state = offlineState()
	}
	b.publishState(h, state)
	if online {
		b.recordState(ctx, h.cfg.ID, state)
	}
}

// publishState publishes a retained state message for a receiver.
func (b *Bridge) publishState(h *receiverHandle, state map[string]any) {
	msg := NewStateMessage(h.cfg.ID, h.cfg.DeviceURL, state)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}

	b.onStateMu.RLock()
	listener := b.onState
	b.onStateMu.RUnlock()
	if listener != nil {
		listener(msg)
	}

	if err := b.mqtt.Publish(StateTopic(h.cfg.ID), payload, 1, true); err != nil {
		b.logError("failed to publish state", err, "receiver_id", h.cfg.ID)
		return
	}
	b.logDebug("published state", "receiver_id", h.cfg.ID, "online", state["online"])
}

// SetOnState registers a callback invoked with every state change the
// bridge publishes. The callback runs on the polling goroutine and must not
// block.
func (b *Bridge) SetOnState(fn func(StateMessage)) {
	b.onStateMu.Lock()
	b.onState = fn
	b.onStateMu.Unlock()
}

func (b *Bridge) recordState(ctx context.Context, id string, state map[string]any) {
	if b.registry == nil {
		return
	}
	persisted := make(map[string]any, len(state))
	for k, v := range state {
		if volatileKeys[k] {
			continue
		}
		persisted[k] = v
	}
	if err := b.registry.SetReceiverState(ctx, id, persisted); err != nil {
		b.logError("failed to persist receiver state", err, "receiver_id", id)
	}
}

func (b *Bridge) recordHealth(ctx context.Context, id string, online bool) {
	if b.registry == nil {
		return
	}
	if err := b.registry.SetReceiverHealth(ctx, id, online); err != nil {
		b.logError("failed to persist receiver health", err, "receiver_id", id)
	}
}

// telemetryFields selects the numeric state written to the time-series store.
func telemetryFields(state map[string]any) map[string]any {
	fields := make(map[string]any)
	for _, k := range []string{"power", "mute", "volume", "sleep", "duration", "position"} {
		switch v := state[k].(type) {
		case bool:
			if v {
				fields[k] = 1
			} else {
				fields[k] = 0
			}
		case int:
			fields[k] = v
		}
	}
	return fields
}

// discoveryLoop searches once at startup and then every discovery interval.
func (b *Bridge) discoveryLoop() {
	defer b.wg.Done()

	if _, err := b.Discover(b.ctx); err != nil && b.ctx.Err() == nil {
		b.logError("discovery failed", err)
	}

	interval := b.cfg.GetDiscoveryInterval()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.Discover(b.ctx); err != nil && b.ctx.Err() == nil {
				b.logError("discovery failed", err)
			}
		}
	}
}

// Discover runs one SSDP search, adds unknown receivers and publishes the
// result on the discovery topic.
//
// Parameters:
//   - ctx: Context for the search
//
// Returns:
//   - DiscoveryMessage: Every receiver found, with Added set for new ones
//   - error: If no discoverer is configured or the search fails
func (b *Bridge) Discover(ctx context.Context) (DiscoveryMessage, error) {
	msg := DiscoveryMessage{
		Timestamp: time.Now().UTC(),
		Bridge:    b.cfg.Bridge.ID,
		Devices:   []DiscoveredReceiver{},
	}
	if b.discoverer == nil {
		return msg, ErrDiscoveryDisabled
	}

	found, err := b.discoverer.Search(ctx, b.cfg.GetDiscoveryWait())
	if err != nil {
		return msg, err
	}

	for _, r := range found {
		entry := DiscoveredReceiver{DeviceURL: r.DeviceURL, USN: r.USN}

		b.receiversMu.RLock()
		existing := b.byURL[r.DeviceURL]
		b.receiversMu.RUnlock()

		if existing != "" {
			entry.ID = existing
		} else {
			entry.ID = DiscoveredID(r.DeviceURL)
			rc := ReceiverConfig{
				ID:        entry.ID,
				Name:      b.friendlyName(ctx, r.DeviceURL),
				DeviceURL: r.DeviceURL,
			}
			switch err := b.addReceiver(ctx, rc, SourceDiscovery, r.USN); {
			case err == nil:
				entry.Added = true
			case errors.Is(err, ErrReceiverExists):
			default:
				b.logError("failed to add discovered receiver", err, "device_url", r.DeviceURL)
				continue
			}
		}
		msg.Devices = append(msg.Devices, entry)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return msg, fmt.Errorf("marshal discovery message: %w", err)
	}
	if err := b.mqtt.Publish(DiscoveryTopic(), payload, 1, false); err != nil {
		b.logError("failed to publish discovery result", err)
	}

	b.logInfo("discovery complete", "found", len(found))
	return msg, nil
}

// friendlyName asks a discovered receiver for its name.
// Returns "" if the receiver does not answer in time.
func (b *Bridge) friendlyName(ctx context.Context, deviceURL string) string {
	client, err := b.factory(ReceiverConfig{
		DeviceURL: deviceURL,
		PIN:       b.cfg.Discovery.DefaultPIN,
	}, b.getLogger())
	if err != nil {
		return ""
	}

	nctx, cancel := context.WithTimeout(ctx, nameTimeout)
	defer cancel()
	defer client.Close(nctx) //nolint:errcheck // read-only client holds no session

	return strings.TrimSpace(client.FriendlyName(nctx))
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
