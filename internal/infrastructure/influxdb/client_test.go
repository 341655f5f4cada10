package influxdb

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-fsapi/internal/infrastructure/config"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "graylogic-dev-token",
		Org:           "graylogic",
		Bucket:        "receivers",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip connects to the local InfluxDB, skipping when it is absent.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION=1 to run against a local InfluxDB")
	}
	client, err := Connect(testConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestReceiverPoint(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	point := receiverPoint("kitchen", map[string]any{"volume": 12, "power": 1}, ts)

	line := write.PointToLineProtocol(point, time.Second)

	if !strings.HasPrefix(line, "receiver_state,receiver_id=kitchen ") {
		t.Errorf("line = %q, want receiver_state measurement tagged by receiver_id", line)
	}
	if !strings.Contains(line, "power=1i") || !strings.Contains(line, "volume=12i") {
		t.Errorf("line = %q, want power and volume fields", line)
	}
	if !strings.HasSuffix(strings.TrimSpace(line), "1700000000") {
		t.Errorf("line = %q, want timestamp in seconds", line)
	}
}

func TestClient_ZeroValue(t *testing.T) {
	var c Client

	if c.IsConnected() {
		t.Error("IsConnected() = true for zero client")
	}
	// Writes on a disconnected client are dropped.
	c.WriteReceiverState("kitchen", map[string]any{"volume": 1})
	c.Flush()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestIntegration_WriteReceiverState(t *testing.T) {
	client := connectOrSkip(t)

	var writeErr error
	client.SetOnError(func(err error) { writeErr = err })

	client.WriteReceiverState("kitchen", map[string]any{"volume": 8, "mute": 0})
	client.WriteReceiverState("kitchen", nil)
	client.Flush()

	if writeErr != nil {
		t.Errorf("async write error = %v", writeErr)
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
