package fsapi

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-fsapi/internal/discovery"
	fsclient "github.com/nerrad567/gray-logic-fsapi/internal/fsapi"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu        sync.Mutex
	published []mockPublish
	connected bool
	handlers  map[string]func(topic string, payload []byte)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) Disconnect(uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *MockMQTTClient) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

// PublishedTo returns the messages published to topic, oldest first.
func (m *MockMQTTClient) PublishedTo(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// SimulateMessage delivers a message to the handler whose pattern matches.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	var handler func(string, []byte)
	for pattern, h := range m.handlers {
		if topicMatches(pattern, topic) {
			handler = h
			break
		}
	}
	m.mu.Unlock()
	if handler != nil {
		handler(topic, payload)
	}
}

func topicMatches(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	if len(pp) != len(tp) {
		return false
	}
	for i := range pp {
		if pp[i] != "+" && pp[i] != tp[i] {
			return false
		}
	}
	return true
}

// fakeReceiver implements Receiver in memory.
type fakeReceiver struct {
	mu        sync.Mutex
	url       string
	reachable bool
	rejectSet bool
	closed    bool
	calls     []string

	name     string
	power    bool
	powerRaw uint8 // overrides the netRemote.sys.power value when set
	volume   int
	steps    int
	mute     bool
	mode     string
	modes    []string
	sleep    int
	position int
}

func newFakeReceiver(url string) *fakeReceiver {
	return &fakeReceiver{
		url:       url,
		reachable: true,
		name:      "Kitchen Radio",
		steps:     33,
		mode:      "DAB",
		modes:     []string{"Internet radio", "DAB", "FM"},
	}
}

func (f *fakeReceiver) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeReceiver) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeReceiver) set(fn func(*fakeReceiver)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeReceiver) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeReceiver) DeviceURL() string { return f.url }

func (f *fakeReceiver) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeReceiver) GetU8(_ context.Context, path string) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.reachable {
		return 0, fsclient.ErrTransport
	}
	if path == fsclient.PathPower && f.powerRaw != 0 {
		return f.powerRaw, nil
	}
	if path == fsclient.PathPower && f.power {
		return 1, nil
	}
	return 0, nil
}

// setter applies a write unless the receiver rejects it.
func (f *fakeReceiver) setter(call string, apply func()) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(call)
	if !f.reachable || f.rejectSet {
		return false
	}
	apply()
	return true
}

func (f *fakeReceiver) read(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func (f *fakeReceiver) FriendlyName(context.Context) (s string) {
	f.read(func() { s = f.name })
	return s
}

func (f *fakeReceiver) SetFriendlyName(_ context.Context, name string) bool {
	return f.setter("name:"+name, func() { f.name = name })
}

func (f *fakeReceiver) Power(context.Context) (on bool) {
	f.read(func() { on = f.power })
	return on
}

func (f *fakeReceiver) SetPower(_ context.Context, on bool) bool {
	return f.setter(map[bool]string{true: "power:on", false: "power:off"}[on], func() { f.power = on })
}

func (f *fakeReceiver) ModeList(context.Context) (modes []string) {
	f.read(func() { modes = f.modes })
	return modes
}

func (f *fakeReceiver) Mode(context.Context) (mode string) {
	f.read(func() { mode = f.mode })
	return mode
}

func (f *fakeReceiver) SetMode(_ context.Context, label string) bool {
	return f.setter("mode:"+label, func() { f.mode = label })
}

func (f *fakeReceiver) Volume(context.Context) (v int) {
	f.read(func() { v = f.volume })
	return v
}

func (f *fakeReceiver) SetVolume(_ context.Context, level int) bool {
	return f.setter("volume", func() { f.volume = level })
}

func (f *fakeReceiver) VolumeSteps(context.Context) (n int) {
	f.read(func() { n = f.steps })
	return n
}

func (f *fakeReceiver) Mute(context.Context) (m bool) {
	f.read(func() { m = f.mute })
	return m
}

func (f *fakeReceiver) SetMute(_ context.Context, muted bool) bool {
	return f.setter("mute", func() { f.mute = muted })
}

func (f *fakeReceiver) Sleep(context.Context) (s int) {
	f.read(func() { s = f.sleep })
	return s
}

func (f *fakeReceiver) SetSleep(_ context.Context, seconds int) bool {
	return f.setter("sleep", func() { f.sleep = seconds })
}

func (f *fakeReceiver) PlayStatus(context.Context) fsclient.PlayState { return fsclient.PlayPlaying }
func (f *fakeReceiver) PlayName(context.Context) string               { return "Radio 3" }
func (f *fakeReceiver) PlayText(context.Context) string               { return "" }
func (f *fakeReceiver) PlayArtist(context.Context) string             { return "" }
func (f *fakeReceiver) PlayAlbum(context.Context) string              { return "" }
func (f *fakeReceiver) PlayGraphic(context.Context) string            { return "" }
func (f *fakeReceiver) PlayDuration(context.Context) int              { return 0 }

func (f *fakeReceiver) PlayPosition(context.Context) (p int) {
	f.read(func() { p = f.position })
	return p
}

func (f *fakeReceiver) Play(context.Context) bool    { return f.setter("play", func() {}) }
func (f *fakeReceiver) Pause(context.Context) bool   { return f.setter("pause", func() {}) }
func (f *fakeReceiver) Forward(context.Context) bool { return f.setter("next", func() {}) }
func (f *fakeReceiver) Rewind(context.Context) bool  { return f.setter("previous", func() {}) }

// fakeFleet hands out fake receivers keyed by device URL.
type fakeFleet struct {
	mu        sync.Mutex
	receivers map[string]*fakeReceiver
}

func newFakeFleet() *fakeFleet {
	return &fakeFleet{receivers: make(map[string]*fakeReceiver)}
}

func (f *fakeFleet) get(url string) *fakeReceiver {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receivers[url]
	if !ok {
		r = newFakeReceiver(url)
		f.receivers[url] = r
	}
	return r
}

func (f *fakeFleet) factory(cfg ReceiverConfig, _ Logger) (Receiver, error) {
	return f.get(cfg.DeviceURL), nil
}

// fakeRegistry implements ReceiverRegistry in memory.
type fakeRegistry struct {
	mu     sync.Mutex
	seeds  map[string]ReceiverSeed
	states map[string]map[string]any
	health map[string]bool
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		seeds:  make(map[string]ReceiverSeed),
		states: make(map[string]map[string]any),
		health: make(map[string]bool),
	}
}

func (r *fakeRegistry) SeedReceiver(_ context.Context, seed ReceiverSeed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seeds[seed.ID]; !ok {
		r.seeds[seed.ID] = seed
	}
	return nil
}

func (r *fakeRegistry) SetReceiverState(_ context.Context, id string, state map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[id] = state
	return nil
}

func (r *fakeRegistry) SetReceiverHealth(_ context.Context, id string, online bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health[id] = online
	return nil
}

func (r *fakeRegistry) ListReceivers(context.Context) ([]ReceiverSeed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ReceiverSeed, 0, len(r.seeds))
	for _, s := range r.seeds {
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeRegistry) seed(id string) (ReceiverSeed, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.seeds[id]
	return s, ok
}

func (r *fakeRegistry) healthOf(id string) (online, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	online, ok = r.health[id]
	return online, ok
}

// fakeDiscoverer returns a fixed search result.
type fakeDiscoverer struct {
	found []discovery.Receiver
	err   error
}

func (d *fakeDiscoverer) Search(context.Context, time.Duration) ([]discovery.Receiver, error) {
	return d.found, d.err
}

// recordingTelemetry captures time-series writes.
type recordingTelemetry struct {
	mu     sync.Mutex
	writes map[string][]map[string]any
}

func (t *recordingTelemetry) WriteReceiverState(id string, fields map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writes == nil {
		t.writes = make(map[string][]map[string]any)
	}
	t.writes[id] = append(t.writes[id], fields)
}

func (t *recordingTelemetry) count(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.writes[id])
}

const kitchenURL = "http://192.168.1.40:80/device"

func testConfig() *Config {
	cfg := defaultConfig()
	cfg.Bridge.PollInterval = 60
	cfg.Receivers = []ReceiverConfig{
		{ID: "kitchen", Name: "Kitchen", DeviceURL: kitchenURL, PIN: "1234"},
	}
	return cfg
}

type testBridge struct {
	*Bridge
	mqtt     *MockMQTTClient
	fleet    *fakeFleet
	registry *fakeRegistry
}

func newTestBridge(t *testing.T, mutate ...func(*BridgeOptions)) *testBridge {
	t.Helper()

	tb := &testBridge{
		mqtt:     NewMockMQTTClient(),
		fleet:    newFakeFleet(),
		registry: newFakeRegistry(),
	}
	opts := BridgeOptions{
		Config:     testConfig(),
		MQTTClient: tb.mqtt,
		Registry:   tb.registry,
		Factory:    tb.fleet.factory,
		Version:    "test",
	}
	for _, m := range mutate {
		m(&opts)
	}

	b, err := NewBridge(opts)
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	tb.Bridge = b
	t.Cleanup(b.Stop)
	return tb
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func decodeState(t *testing.T, p mockPublish) StateMessage {
	t.Helper()
	var msg StateMessage
	if err := json.Unmarshal(p.Payload, &msg); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	return msg
}

func decodeAck(t *testing.T, p mockPublish) AckMessage {
	t.Helper()
	var ack AckMessage
	if err := json.Unmarshal(p.Payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	return ack
}

func TestNewBridge_Validation(t *testing.T) {
	withDiscovery := testConfig()
	withDiscovery.Discovery.Enabled = true

	tests := []struct {
		name string
		opts BridgeOptions
	}{
		{name: "missing config", opts: BridgeOptions{MQTTClient: NewMockMQTTClient()}},
		{name: "missing mqtt", opts: BridgeOptions{Config: testConfig()}},
		{name: "discovery without discoverer", opts: BridgeOptions{Config: withDiscovery, MQTTClient: NewMockMQTTClient()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBridge(tt.opts); err == nil {
				t.Error("NewBridge() error = nil, want error")
			}
		})
	}
}

func TestStart_PublishesInitialState(t *testing.T) {
	tb := newTestBridge(t)
	kitchen := tb.fleet.get(kitchenURL)
	kitchen.set(func(f *fakeReceiver) { f.power = true; f.volume = 12 })

	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	topic := StateTopic("kitchen")
	waitFor(t, "initial state", func() bool { return len(tb.mqtt.PublishedTo(topic)) > 0 })

	p := tb.mqtt.PublishedTo(topic)[0]
	if !p.Retained || p.QoS != 1 {
		t.Errorf("state published with qos=%d retained=%t, want 1/true", p.QoS, p.Retained)
	}
	msg := decodeState(t, p)
	if msg.DeviceID != "kitchen" || msg.Address != kitchenURL || msg.Protocol != Protocol {
		t.Errorf("state envelope = %+v", msg)
	}
	if msg.State["online"] != true || msg.State["power"] != true {
		t.Errorf("state = %v, want online and powered", msg.State)
	}
	if msg.State["volume"] != float64(12) || msg.State["mode"] != "DAB" {
		t.Errorf("state = %v, want volume 12 mode DAB", msg.State)
	}

	if _, ok := tb.registry.seed("kitchen"); !ok {
		t.Error("configured receiver not seeded in registry")
	}
	waitFor(t, "health recorded", func() bool {
		online, ok := tb.registry.healthOf("kitchen")
		return ok && online
	})
}

func TestPoll_OfflineReceiver(t *testing.T) {
	tb := newTestBridge(t)
	tb.fleet.get(kitchenURL).set(func(f *fakeReceiver) { f.reachable = false })

	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	topic := StateTopic("kitchen")
	waitFor(t, "offline state", func() bool { return len(tb.mqtt.PublishedTo(topic)) > 0 })

	msg := decodeState(t, tb.mqtt.PublishedTo(topic)[0])
	if len(msg.State) != 1 || msg.State["online"] != false {
		t.Errorf("state = %v, want only online=false", msg.State)
	}

	managed, online := tb.ReceiverCounts()
	if managed != 1 || online != 0 {
		t.Errorf("ReceiverCounts() = %d, %d; want 1, 0", managed, online)
	}
	if online, ok := tb.registry.healthOf("kitchen"); !ok || online {
		t.Errorf("registry health = %t (recorded %t), want offline", online, ok)
	}
}

func TestPollOnce_ChangeDetection(t *testing.T) {
	tb := newTestBridge(t)
	tel := &recordingTelemetry{}
	tb.telemetry = tel

	fake := newFakeReceiver(kitchenURL)
	h := &receiverHandle{
		cfg:    ReceiverConfig{ID: "study", DeviceURL: kitchenURL},
		client: fake,
		ctx:    context.Background(),
		cancel: func() {},
	}
	topic := StateTopic("study")

	tb.pollOnce(h)
	if n := len(tb.mqtt.PublishedTo(topic)); n != 1 {
		t.Fatalf("first poll published %d messages, want 1", n)
	}

	// Playback position alone does not trigger a publish.
	fake.set(func(f *fakeReceiver) { f.position = 42000 })
	tb.pollOnce(h)
	if n := len(tb.mqtt.PublishedTo(topic)); n != 1 {
		t.Errorf("position change published; got %d messages, want 1", n)
	}

	fake.set(func(f *fakeReceiver) { f.volume = 20 })
	tb.pollOnce(h)
	msgs := tb.mqtt.PublishedTo(topic)
	if len(msgs) != 2 {
		t.Fatalf("volume change: got %d messages, want 2", len(msgs))
	}
	if got := decodeState(t, msgs[1]).State["volume"]; got != float64(20) {
		t.Errorf("volume = %v, want 20", got)
	}

	fake.set(func(f *fakeReceiver) { f.reachable = false })
	tb.pollOnce(h)
	fake.set(func(f *fakeReceiver) { f.reachable = true })
	tb.pollOnce(h)
	msgs = tb.mqtt.PublishedTo(topic)
	if len(msgs) != 4 {
		t.Fatalf("offline/online cycle: got %d messages, want 4", len(msgs))
	}
	if decodeState(t, msgs[2]).State["online"] != false || decodeState(t, msgs[3]).State["online"] != true {
		t.Error("expected offline then online state")
	}

	// Telemetry is written for every successful poll.
	if got := tel.count("study"); got != 4 {
		t.Errorf("telemetry writes = %d, want 4", got)
	}
	state := tb.registry.states["study"]
	if _, ok := state["position"]; ok {
		t.Error("position persisted to registry")
	}
}

func TestPollOnce_AfterRemoval(t *testing.T) {
	tb := newTestBridge(t)
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	topic := StateTopic("kitchen")
	waitFor(t, "initial state", func() bool { return len(tb.mqtt.PublishedTo(topic)) == 1 })

	h, ok := tb.lookup("kitchen")
	if !ok {
		t.Fatal("kitchen not managed")
	}
	if err := tb.RemoveReceiver("kitchen"); err != nil {
		t.Fatalf("RemoveReceiver() error = %v", err)
	}

	// A closed client fails every call; a late refresh must not report that.
	tb.fleet.get(kitchenURL).set(func(f *fakeReceiver) { f.reachable = false })
	tb.pollOnce(h)

	if n := len(tb.mqtt.PublishedTo(topic)); n != 1 {
		t.Errorf("state publishes after removal = %d, want 1", n)
	}
	if online, ok := tb.registry.healthOf("kitchen"); !ok || !online {
		t.Errorf("registry health = %t (recorded %t), want last online value kept", online, ok)
	}
}

func TestCommand_ThenRemove(t *testing.T) {
	tb := newTestBridge(t)
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	topic := StateTopic("kitchen")
	waitFor(t, "initial state", func() bool { return len(tb.mqtt.PublishedTo(topic)) == 1 })

	kitchen := tb.fleet.get(kitchenURL)
	ack := tb.Execute(CommandMessage{DeviceID: "kitchen", Command: CmdPause})
	if ack.Status != AckAccepted {
		t.Fatalf("Execute() status = %s, want accepted", ack.Status)
	}
	if err := tb.RemoveReceiver("kitchen"); err != nil {
		t.Fatalf("RemoveReceiver() error = %v", err)
	}
	kitchen.set(func(f *fakeReceiver) { f.reachable = false })

	// Stop waits for the refresh goroutine.
	tb.Stop()

	for _, p := range tb.mqtt.PublishedTo(topic) {
		if decodeState(t, p).State["online"] == false {
			t.Fatal("offline state published for a removed receiver")
		}
	}
	if online, _ := tb.registry.healthOf("kitchen"); !online {
		t.Error("offline health recorded for a removed receiver")
	}
}

func TestSnapshot_PowerNonZero(t *testing.T) {
	fake := newFakeReceiver(kitchenURL)
	fake.set(func(f *fakeReceiver) { f.powerRaw = 2 })

	state := snapshot(context.Background(), fake)
	if state["power"] != true {
		t.Errorf("power = %v for raw value 2, want true", state["power"])
	}

	fake.set(func(f *fakeReceiver) { f.powerRaw = 0; f.power = false })
	if state := snapshot(context.Background(), fake); state["power"] != false {
		t.Errorf("power = %v for raw value 0, want false", state["power"])
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		prepare  func(*fakeReceiver)
		wantCode string // "" means accepted
		wantCall string
	}{
		{name: "on", payload: `{"id":"c1","command":"on"}`, wantCall: "power:on"},
		{name: "off", payload: `{"id":"c1","command":"off"}`, wantCall: "power:off"},
		{name: "mute", payload: `{"id":"c1","command":"mute"}`, wantCall: "mute"},
		{name: "play", payload: `{"id":"c1","command":"play"}`, wantCall: "play"},
		{name: "next", payload: `{"id":"c1","command":"next"}`, wantCall: "next"},
		{name: "set volume", payload: `{"id":"c1","command":"set_volume","parameters":{"level":12}}`, wantCall: "volume"},
		{name: "set mode", payload: `{"id":"c1","command":"set_mode","parameters":{"mode":"FM"}}`, wantCall: "mode:FM"},
		{name: "set sleep", payload: `{"id":"c1","command":"set_sleep","parameters":{"seconds":900}}`, wantCall: "sleep"},
		{name: "rename", payload: `{"id":"c1","command":"set_friendly_name","parameters":{"name":"Den"}}`, wantCall: "name:Den"},
		{name: "volume above steps", payload: `{"id":"c1","command":"set_volume","parameters":{"level":33}}`, wantCode: ErrCodeInvalidParameters},
		{name: "volume fractional", payload: `{"id":"c1","command":"set_volume","parameters":{"level":1.5}}`, wantCode: ErrCodeInvalidParameters},
		{name: "volume missing", payload: `{"id":"c1","command":"set_volume"}`, wantCode: ErrCodeInvalidParameters},
		{name: "unknown mode", payload: `{"id":"c1","command":"set_mode","parameters":{"mode":"Bluetooth"}}`, wantCode: ErrCodeInvalidParameters},
		{name: "negative sleep", payload: `{"id":"c1","command":"set_sleep","parameters":{"seconds":-1}}`, wantCode: ErrCodeInvalidParameters},
		{name: "unknown command", payload: `{"id":"c1","command":"dim"}`, wantCode: ErrCodeInvalidCommand},
		{name: "malformed", payload: `{"id":`, wantCode: ErrCodeInvalidCommand},
		{name: "device mismatch", payload: `{"id":"c1","device_id":"lounge","command":"on"}`, wantCode: ErrCodeInvalidParameters},
		{
			name:     "rejected",
			payload:  `{"id":"c1","command":"on"}`,
			prepare:  func(f *fakeReceiver) { f.rejectSet = true },
			wantCode: ErrCodeRejected,
			wantCall: "power:on",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBridge(t)
			fake := tb.fleet.get(kitchenURL)
			if tt.prepare != nil {
				fake.set(tt.prepare)
			}
			if err := tb.Start(context.Background()); err != nil {
				t.Fatalf("Start() error = %v", err)
			}

			tb.mqtt.SimulateMessage(CommandTopic("kitchen"), []byte(tt.payload))

			acks := tb.mqtt.PublishedTo(AckTopic("kitchen"))
			if len(acks) != 1 {
				t.Fatalf("got %d acks, want 1", len(acks))
			}
			ack := decodeAck(t, acks[0])
			if ack.DeviceID != "kitchen" {
				t.Errorf("ack.DeviceID = %q, want kitchen", ack.DeviceID)
			}

			if tt.wantCode == "" {
				if ack.Status != AckAccepted || ack.Error != nil {
					t.Errorf("ack = %+v, want accepted", ack)
				}
				if ack.CommandID != "c1" || ack.Address != kitchenURL {
					t.Errorf("ack = %+v, want command c1 at %s", ack, kitchenURL)
				}
			} else {
				if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != tt.wantCode {
					t.Errorf("ack = %+v, want failed with %s", ack, tt.wantCode)
				}
			}

			calls := fake.Calls()
			if tt.wantCall == "" {
				if len(calls) != 0 {
					t.Errorf("receiver calls = %v, want none", calls)
				}
			} else if len(calls) != 1 || calls[0] != tt.wantCall {
				t.Errorf("receiver calls = %v, want [%s]", calls, tt.wantCall)
			}
		})
	}
}

func TestCommand_RefreshesState(t *testing.T) {
	tb := newTestBridge(t)
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	topic := StateTopic("kitchen")
	waitFor(t, "initial state", func() bool { return len(tb.mqtt.PublishedTo(topic)) == 1 })

	tb.mqtt.SimulateMessage(CommandTopic("kitchen"), []byte(`{"command":"on"}`))

	waitFor(t, "refreshed state", func() bool { return len(tb.mqtt.PublishedTo(topic)) == 2 })
	msg := decodeState(t, tb.mqtt.PublishedTo(topic)[1])
	if msg.State["power"] != true {
		t.Errorf("power = %v, want true", msg.State["power"])
	}
}

func TestCommand_GeneratesID(t *testing.T) {
	tb := newTestBridge(t)
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	tb.mqtt.SimulateMessage(CommandTopic("kitchen"), []byte(`{"command":"pause"}`))

	acks := tb.mqtt.PublishedTo(AckTopic("kitchen"))
	if len(acks) != 1 {
		t.Fatalf("got %d acks, want 1", len(acks))
	}
	if ack := decodeAck(t, acks[0]); ack.CommandID == "" {
		t.Error("ack.CommandID is empty, want generated id")
	}
}

func TestCommand_UnknownReceiver(t *testing.T) {
	tb := newTestBridge(t)
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	tb.mqtt.SimulateMessage(CommandTopic("garage"), []byte(`{"id":"c9","command":"on"}`))

	acks := tb.mqtt.PublishedTo(AckTopic("garage"))
	if len(acks) != 1 {
		t.Fatalf("got %d acks, want 1", len(acks))
	}
	if ack := decodeAck(t, acks[0]); ack.Error == nil || ack.Error.Code != ErrCodeNotConfigured {
		t.Errorf("ack = %+v, want NOT_CONFIGURED", ack)
	}
}

func TestAddReceiver(t *testing.T) {
	tb := newTestBridge(t)
	ctx := context.Background()
	if err := tb.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := tb.AddReceiver(ctx, ReceiverConfig{ID: "lounge", DeviceURL: "http://192.168.1.41/device"}); err != nil {
		t.Fatalf("AddReceiver() error = %v", err)
	}

	tests := []struct {
		name string
		rc   ReceiverConfig
	}{
		{name: "same id", rc: ReceiverConfig{ID: "lounge", DeviceURL: "http://192.168.1.99/device"}},
		{name: "same url", rc: ReceiverConfig{ID: "den", DeviceURL: kitchenURL}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tb.AddReceiver(ctx, tt.rc); !errors.Is(err, ErrReceiverExists) {
				t.Errorf("AddReceiver() error = %v, want ErrReceiverExists", err)
			}
		})
	}

	if err := tb.AddReceiver(ctx, ReceiverConfig{ID: "bad/id", DeviceURL: "http://10.0.0.9/device"}); err == nil {
		t.Error("AddReceiver(bad/id) error = nil, want error")
	}

	ids := tb.ReceiverIDs()
	if len(ids) != 2 || ids[0] != "kitchen" || ids[1] != "lounge" {
		t.Errorf("ReceiverIDs() = %v, want [kitchen lounge]", ids)
	}
}

func TestRemoveReceiver(t *testing.T) {
	tb := newTestBridge(t)
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := tb.RemoveReceiver("kitchen"); err != nil {
		t.Fatalf("RemoveReceiver() error = %v", err)
	}
	if !tb.fleet.get(kitchenURL).isClosed() {
		t.Error("removed receiver was not closed")
	}
	if err := tb.RemoveReceiver("kitchen"); !errors.Is(err, ErrUnknownReceiver) {
		t.Errorf("second RemoveReceiver() error = %v, want ErrUnknownReceiver", err)
	}
}

func TestStop_ClosesReceivers(t *testing.T) {
	tb := newTestBridge(t)
	ctx := context.Background()
	if err := tb.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	tb.Stop()
	tb.Stop()

	if !tb.fleet.get(kitchenURL).isClosed() {
		t.Error("receiver not closed on Stop")
	}
	if err := tb.AddReceiver(ctx, ReceiverConfig{ID: "late", DeviceURL: "http://10.0.0.5/device"}); !errors.Is(err, ErrStopped) {
		t.Errorf("AddReceiver() after Stop error = %v, want ErrStopped", err)
	}

	health := tb.mqtt.PublishedTo(HealthTopic())
	if len(health) == 0 {
		t.Fatal("no health messages published")
	}
	var last HealthMessage
	if err := json.Unmarshal(health[len(health)-1].Payload, &last); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if last.Status != HealthStopping {
		t.Errorf("last health status = %q, want stopping", last.Status)
	}
}

func TestDiscover(t *testing.T) {
	disc := &fakeDiscoverer{found: []discovery.Receiver{
		{USN: "uuid:a", DeviceURL: kitchenURL},
		{USN: "uuid:b", DeviceURL: "http://192.168.1.50:80/device"},
	}}
	tb := newTestBridge(t, func(o *BridgeOptions) { o.Discoverer = disc })
	tb.fleet.get("http://192.168.1.50:80/device").set(func(f *fakeReceiver) { f.name = "Study Radio" })

	ctx := context.Background()
	if err := tb.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	msg, err := tb.Discover(ctx)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(msg.Devices) != 2 {
		t.Fatalf("Discover() found %d devices, want 2", len(msg.Devices))
	}
	if msg.Devices[0].ID != "kitchen" || msg.Devices[0].Added {
		t.Errorf("known receiver = %+v, want kitchen not added", msg.Devices[0])
	}
	if msg.Devices[1].ID != "fsapi-192-168-1-50" || !msg.Devices[1].Added {
		t.Errorf("new receiver = %+v, want fsapi-192-168-1-50 added", msg.Devices[1])
	}

	seed, ok := tb.registry.seed("fsapi-192-168-1-50")
	if !ok {
		t.Fatal("discovered receiver not seeded")
	}
	if seed.Source != SourceDiscovery || seed.Name != "Study Radio" || seed.USN != "uuid:b" {
		t.Errorf("seed = %+v", seed)
	}

	if n := len(tb.mqtt.PublishedTo(DiscoveryTopic())); n != 1 {
		t.Errorf("discovery messages = %d, want 1", n)
	}

	// A second search adds nothing.
	msg, err = tb.Discover(ctx)
	if err != nil {
		t.Fatalf("second Discover() error = %v", err)
	}
	for _, d := range msg.Devices {
		if d.Added {
			t.Errorf("second search added %s", d.ID)
		}
	}
}

func TestDiscover_SearchError(t *testing.T) {
	disc := &fakeDiscoverer{err: discovery.ErrSearchFailed}
	tb := newTestBridge(t, func(o *BridgeOptions) { o.Discoverer = disc })

	if _, err := tb.Discover(context.Background()); !errors.Is(err, discovery.ErrSearchFailed) {
		t.Errorf("Discover() error = %v, want ErrSearchFailed", err)
	}
}

func TestStart_LoadsDiscoveredReceiversFromRegistry(t *testing.T) {
	tb := newTestBridge(t)
	ctx := context.Background()
	tb.registry.seeds["fsapi-10-0-0-7"] = ReceiverSeed{
		ID: "fsapi-10-0-0-7", Name: "Attic", DeviceURL: "http://10.0.0.7:80/device", Source: SourceDiscovery,
	}
	tb.registry.seeds["old-config"] = ReceiverSeed{
		ID: "old-config", Name: "Removed", DeviceURL: "http://10.0.0.8:80/device", Source: SourceConfig,
	}

	if err := tb.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ids := tb.ReceiverIDs()
	if len(ids) != 2 || ids[0] != "fsapi-10-0-0-7" || ids[1] != "kitchen" {
		t.Errorf("ReceiverIDs() = %v, want [fsapi-10-0-0-7 kitchen]", ids)
	}
}

func TestDiscoveredID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "http://192.168.1.40:80/device", want: "fsapi-192-168-1-40"},
		{url: "http://[fe80::1]:80/device", want: "fsapi-fe80--1"},
		{url: "http://radio.local/device", want: "fsapi-radio-local"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := DiscoveredID(tt.url); got != tt.want {
				t.Errorf("DiscoveredID(%q) = %q, want %q", tt.url, got, tt.want)
			}
			if !ValidReceiverID(DiscoveredID(tt.url)) {
				t.Errorf("DiscoveredID(%q) is not a valid receiver id", tt.url)
			}
		})
	}
}

func TestStateChanged(t *testing.T) {
	base := map[string]any{"online": true, "volume": 5, "position": 100}

	tests := []struct {
		name string
		prev map[string]any
		next map[string]any
		want bool
	}{
		{name: "first", prev: nil, next: base, want: true},
		{name: "same", prev: base, next: map[string]any{"online": true, "volume": 5, "position": 100}, want: false},
		{name: "position only", prev: base, next: map[string]any{"online": true, "volume": 5, "position": 900}, want: false},
		{name: "volume", prev: base, next: map[string]any{"online": true, "volume": 6, "position": 100}, want: true},
		{name: "key removed", prev: base, next: map[string]any{"online": true, "position": 100}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stateChanged(tt.prev, tt.next); got != tt.want {
				t.Errorf("stateChanged() = %t, want %t", got, tt.want)
			}
		})
	}
}

func TestExecute_ReturnsAck(t *testing.T) {
	tb := newTestBridge(t)
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ack := tb.Execute(CommandMessage{
		DeviceID:   "kitchen",
		Command:    CmdSetVolume,
		Parameters: map[string]any{"level": float64(5)},
		Source:     "api",
	})
	if ack.Status != AckAccepted || ack.CommandID == "" {
		t.Errorf("Execute() = %+v, want accepted with generated id", ack)
	}
	if acks := tb.mqtt.PublishedTo(AckTopic("kitchen")); len(acks) != 1 {
		t.Errorf("published %d acks, want 1", len(acks))
	}

	ack = tb.Execute(CommandMessage{DeviceID: "garage", Command: CmdOn})
	if ack.Error == nil || ack.Error.Code != ErrCodeNotConfigured {
		t.Errorf("Execute(unknown) = %+v, want NOT_CONFIGURED", ack)
	}
}

func TestReceivers_Status(t *testing.T) {
	tb := newTestBridge(t)
	tb.fleet.get(kitchenURL).set(func(f *fakeReceiver) { f.power = true; f.volume = 9 })

	if _, ok := tb.Receiver("kitchen"); ok {
		t.Fatal("Receiver() found kitchen before Start")
	}
	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, "first poll", func() bool {
		st, ok := tb.Receiver("kitchen")
		return ok && st.Polled
	})

	st, _ := tb.Receiver("kitchen")
	if !st.Online || st.DeviceURL != kitchenURL || st.State["volume"] != 9 {
		t.Errorf("Receiver(kitchen) = %+v", st)
	}

	// The returned state is a copy.
	st.State["volume"] = 100
	if again, _ := tb.Receiver("kitchen"); again.State["volume"] != 9 {
		t.Error("Receiver() exposed internal state map")
	}

	all := tb.Receivers()
	if len(all) != len(tb.ReceiverIDs()) || all[0].ID != tb.ReceiverIDs()[0] {
		t.Errorf("Receivers() = %+v, want one entry per managed receiver in id order", all)
	}
}

func TestSetOnState(t *testing.T) {
	tb := newTestBridge(t)

	var mu sync.Mutex
	var seen []StateMessage
	tb.SetOnState(func(msg StateMessage) {
		mu.Lock()
		seen = append(seen, msg)
		mu.Unlock()
	})

	if err := tb.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, "state callback", func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range seen {
			if m.DeviceID == "kitchen" {
				return true
			}
		}
		return false
	})
}
