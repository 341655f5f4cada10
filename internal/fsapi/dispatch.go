package fsapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// maxResponseSize caps how much of a response body is read (1MB).
const maxResponseSize = 1 << 20

// Verb is an FSAPI operation, used as the first path segment of a call.
type Verb string

// FSAPI verbs.
const (
	VerbGet           Verb = "GET"
	VerbSet           Verb = "SET"
	VerbListGetNext   Verb = "LIST_GET_NEXT"
	VerbCreateSession Verb = "CREATE_SESSION"
	VerbDeleteSession Verb = "DELETE_SESSION"
)

// Result is the outcome of one logical protocol call: either a decoded
// document or the error that prevented one.
type Result struct {
	Doc *Document
	Err error
}

// OK reports whether the call produced a document.
func (r Result) OK() bool {
	return r.Err == nil && r.Doc != nil
}

// Call executes one protocol call against the device.
//
// The endpoint is discovered and, if wantsSession is set, a session is
// created first. When the device answers with a non-success HTTP status the
// current session is treated as stale: a new session is created and the
// request is re-issued exactly once. A second failure is returned as is.
//
// Call never panics on device misbehaviour; every failure is logged and
// reported through Result.Err.
//
// Parameters:
//   - ctx: Context for cancellation; each HTTP request also gets the client timeout
//   - verb: Protocol verb (GET, SET, LIST_GET_NEXT)
//   - path: Node path, e.g. "netRemote.sys.power"
//   - extra: Additional query parameters (may be nil)
//   - wantsSession: Create a session before the call if none is held
//
// Returns:
//   - Result: Decoded document, or the classified error
func (c *Client) Call(ctx context.Context, verb Verb, path string, extra url.Values, wantsSession bool) Result {
	res := c.call(ctx, verb, path, extra, wantsSession)
	if res.Err != nil {
		c.logger.Info("fsapi call failed",
			"verb", string(verb),
			"path", path,
			"error", res.Err,
		)
	}
	return res
}

func (c *Client) call(ctx context.Context, verb Verb, path string, extra url.Values, wantsSession bool) Result {
	endpoint, sid, err := c.prepare(ctx, wantsSession)
	if err != nil {
		return Result{Err: err}
	}

	reqURL := callURL(endpoint, verb, path)
	status, body, err := c.get(ctx, reqURL, c.params(sid, extra))
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}

	if !isSuccess(status) {
		c.logger.Debug("fsapi call rejected, renewing session",
			"verb", string(verb),
			"path", path,
			"http_status", status,
		)

		sid, err = c.renewSession(ctx, sid)
		if err != nil {
			return Result{Err: err}
		}

		status, body, err = c.get(ctx, reqURL, c.params(sid, extra))
		if err != nil {
			return Result{Err: fmt.Errorf("%w: %w", ErrTransport, err)}
		}
		if !isSuccess(status) {
			return Result{Err: fmt.Errorf("%w: %s %s returned HTTP %d after session renewal",
				ErrTransport, verb, path, status)}
		}
	}

	doc, err := decodeDocument(body)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Doc: doc}
}

// prepare makes sure the endpoint is known and, if requested, a session is
// held. It returns the endpoint and the session identifier to use (may be "").
func (c *Client) prepare(ctx context.Context, wantsSession bool) (string, string, error) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()

	if c.closed {
		return "", "", ErrClosed
	}

	endpoint, err := c.resolveEndpointLocked(ctx)
	if err != nil {
		return "", "", err
	}

	if wantsSession {
		if err := c.ensureSessionLocked(ctx); err != nil {
			return "", "", err
		}
	}
	return endpoint, c.sid, nil
}

// renewSession replaces the stale session with a new one. If another caller
// already replaced it, that session is reused instead of creating a third.
func (c *Client) renewSession(ctx context.Context, stale string) (string, error) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()

	if c.closed {
		return "", ErrClosed
	}
	if c.sid != "" && c.sid != stale {
		return c.sid, nil
	}

	sid, err := c.openSessionLocked(ctx)
	if err != nil {
		return "", err
	}
	c.sid = sid
	return sid, nil
}

// params builds the query parameters for a call: PIN, session (if any), extras.
func (c *Client) params(sid string, extra url.Values) url.Values {
	params := url.Values{"pin": {c.pin}}
	if sid != "" {
		params.Set("sid", sid)
	}
	for k, v := range extra {
		params[k] = v
	}
	return params
}

// callURL joins the endpoint, verb and node path.
func callURL(endpoint string, verb Verb, path string) string {
	if path == "" {
		return endpoint + "/" + string(verb)
	}
	return endpoint + "/" + string(verb) + "/" + path
}

// get performs one HTTP GET bounded by the client timeout and returns the
// status code and body.
func (c *Client) get(ctx context.Context, rawURL string, params url.Values) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func isSuccess(status int) bool {
	return status == http.StatusOK
}
