package fsapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// DefaultTimeout is the per-request timeout used when Config.Timeout is zero.
const DefaultTimeout = 1 * time.Second

// Logger is the optional structured logger used by the client.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the settings for a single receiver connection.
type Config struct {
	// DeviceURL is the bootstrap URL the API root is discovered from.
	// Example: "http://192.168.1.40:80/device"
	DeviceURL string

	// PIN is the device's remote-control PIN (factory default "1234").
	PIN string

	// Timeout bounds each individual HTTP request. A retried request gets a
	// fresh window. Default: DefaultTimeout.
	Timeout time.Duration

	// Intrusive makes read operations create a session as well. Devices only
	// allow one session at a time, so this takes control away from other
	// remotes (e.g. the vendor's app).
	Intrusive bool

	// HTTPClient overrides the pooled HTTP client. Optional.
	HTTPClient *http.Client

	// Logger is optional.
	Logger Logger
}

// Client talks to one FSAPI receiver.
//
// The client exclusively owns its HTTP transport, the discovered endpoint,
// the session identifier and the capability cache.
type Client struct {
	deviceURL string
	pin       string
	timeout   time.Duration
	intrusive bool

	httpClient *http.Client
	logger     Logger

	// sessMu serialises endpoint discovery and session creation/teardown.
	sessMu   sync.Mutex
	endpoint string
	sid      string
	closed   bool

	caps capabilityCache
}

// New creates a client for the receiver at cfg.DeviceURL.
// No network traffic happens until the first operation.
//
// Parameters:
//   - cfg: Connection settings; DeviceURL and PIN are required
//
// Returns:
//   - *Client: Ready-to-use client (call Close when done)
//   - error: ErrInvalidConfig if required settings are missing
func New(cfg Config) (*Client, error) {
	if cfg.DeviceURL == "" {
		return nil, fmt.Errorf("%w: device URL is required", ErrInvalidConfig)
	}
	if cfg.PIN == "" {
		return nil, fmt.Errorf("%w: PIN is required", ErrInvalidConfig)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		deviceURL: cfg.DeviceURL,
		pin:       cfg.PIN,
		timeout:   timeout,
		intrusive: cfg.Intrusive,
		logger:    cfg.Logger,
	}
	c.httpClient = cfg.HTTPClient
	if c.httpClient == nil {
		c.httpClient = cleanhttp.DefaultPooledClient()
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}

	return c, nil
}

// DeviceURL returns the bootstrap URL the client was created with.
func (c *Client) DeviceURL() string {
	return c.deviceURL
}

// SessionID returns the current session identifier, or "" if none is held.
func (c *Client) SessionID() string {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.sid
}

// Close ends the device session (best-effort) and releases the HTTP transport.
//
// A failure to delete the session is logged, never returned: the device
// expires abandoned sessions on its own. Close is safe to call more than once.
//
// Parameters:
//   - ctx: Context for the DELETE_SESSION request
//
// Returns:
//   - error: Always nil; kept for io.Closer-style call sites
func (c *Client) Close(ctx context.Context) error {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()

	if c.closed {
		return nil
	}

	c.closeSessionLocked(ctx)
	c.closed = true

	c.httpClient.CloseIdleConnections()
	return nil
}

// readsNeedSession reports whether read-only accessors should create a session.
func (c *Client) readsNeedSession() bool {
	return c.intrusive
}
