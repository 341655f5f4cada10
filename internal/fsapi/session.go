package fsapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// ResolveEndpoint returns the device's API root, discovering it from the
// bootstrap URL on first use. Once resolved, the endpoint is kept for the
// lifetime of the client; a failed discovery is retried on the next call.
//
// Returns:
//   - string: API root, e.g. "http://192.168.1.40:80/fsapi"
//   - error: ErrDiscovery if the bootstrap URL is unreachable or malformed
func (c *Client) ResolveEndpoint(ctx context.Context) (string, error) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()

	if c.closed {
		return "", ErrClosed
	}
	return c.resolveEndpointLocked(ctx)
}

// resolveEndpointLocked performs discovery. Caller must hold sessMu.
func (c *Client) resolveEndpointLocked(ctx context.Context) (string, error) {
	if c.endpoint != "" {
		return c.endpoint, nil
	}

	status, body, err := c.get(ctx, c.deviceURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	if !isSuccess(status) {
		return "", fmt.Errorf("%w: bootstrap returned HTTP %d", ErrDiscovery, status)
	}

	doc, err := decodeDocument(body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	field, ok := doc.Field("webfsapi")
	endpoint := strings.TrimSpace(field.Text())
	if !ok || endpoint == "" {
		return "", fmt.Errorf("%w: response has no webfsapi field", ErrDiscovery)
	}

	c.endpoint = strings.TrimRight(endpoint, "/")
	c.logger.Debug("fsapi endpoint resolved", "device_url", c.deviceURL, "endpoint", c.endpoint)
	return c.endpoint, nil
}

// ensureSessionLocked opens a session if none is held. Caller must hold sessMu.
func (c *Client) ensureSessionLocked(ctx context.Context) error {
	if c.sid != "" {
		return nil
	}
	sid, err := c.openSessionLocked(ctx)
	if err != nil {
		return err
	}
	c.sid = sid
	return nil
}

// openSessionLocked issues CREATE_SESSION with the PIN and returns the new
// session identifier. It does not store it. Caller must hold sessMu.
func (c *Client) openSessionLocked(ctx context.Context) (string, error) {
	endpoint, err := c.resolveEndpointLocked(ctx)
	if err != nil {
		return "", err
	}

	params := url.Values{"pin": {c.pin}}
	status, body, err := c.get(ctx, endpoint+"/"+string(VerbCreateSession), params)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if !isSuccess(status) {
		return "", fmt.Errorf("%w: CREATE_SESSION returned HTTP %d", ErrAuth, status)
	}

	doc, err := decodeDocument(body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}
	field, ok := doc.Field("sessionId")
	sid := strings.TrimSpace(field.Text())
	if !ok || sid == "" {
		return "", fmt.Errorf("%w: response has no sessionId (status %q)", ErrAuth, doc.Status())
	}

	c.logger.Debug("fsapi session created", "endpoint", endpoint)
	return sid, nil
}

// closeSessionLocked deletes the held session, if any, and always clears the
// local identifier. Errors are logged only. Caller must hold sessMu.
func (c *Client) closeSessionLocked(ctx context.Context) {
	if c.sid == "" {
		return
	}
	sid := c.sid
	c.sid = ""

	if c.endpoint == "" {
		return
	}

	params := url.Values{"pin": {c.pin}, "sid": {sid}}
	status, _, err := c.get(ctx, c.endpoint+"/"+string(VerbDeleteSession), params)
	if err != nil {
		c.logger.Warn("fsapi session delete failed", "endpoint", c.endpoint, "error", err)
		return
	}
	if !isSuccess(status) {
		c.logger.Warn("fsapi session delete rejected", "endpoint", c.endpoint, "http_status", status)
	}
}
