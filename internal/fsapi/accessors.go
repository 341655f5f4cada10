package fsapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// maxListItems is the page size requested from LIST_GET_NEXT. Only the first
// page is read.
const maxListItems = 100

// GetText reads a c8_array node. An empty string is a valid value.
func (c *Client) GetText(ctx context.Context, path string) (string, error) {
	res := c.Call(ctx, VerbGet, path, nil, c.readsNeedSession())
	if !res.OK() {
		return "", res.Err
	}
	return res.Doc.textValue()
}

// GetU8 reads a u8 node. A zero value is returned with a nil error; absence
// of a value is always reported as an error.
func (c *Client) GetU8(ctx context.Context, path string) (uint8, error) {
	res := c.Call(ctx, VerbGet, path, nil, c.readsNeedSession())
	if !res.OK() {
		return 0, res.Err
	}
	v, err := res.Doc.uintValue(typeU8, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}

// GetU32 reads a u32 node. See GetU8 for zero handling.
func (c *Client) GetU32(ctx context.Context, path string) (uint32, error) {
	res := c.Call(ctx, VerbGet, path, nil, c.readsNeedSession())
	if !res.OK() {
		return 0, res.Err
	}
	v, err := res.Doc.uintValue(typeU32, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// Set writes a node value. Writes always run inside a session.
//
// Returns:
//   - bool: true if the device answered FS_OK
//   - error: non-nil only if no response document was obtained
func (c *Client) Set(ctx context.Context, path string, value any) (bool, error) {
	extra := url.Values{"value": {fmt.Sprint(value)}}
	res := c.Call(ctx, VerbSet, path, extra, true)
	if !res.OK() {
		return false, res.Err
	}
	return res.Doc.Status() == StatusOK, nil
}

// GetList reads the first page (up to 100 items) of a list node.
//
// A response whose status is not FS_OK yields an empty list and a nil error:
// the device answered, it just has nothing to list.
func (c *Client) GetList(ctx context.Context, path string) ([]Item, error) {
	extra := url.Values{"maxItems": {strconv.Itoa(maxListItems)}}
	res := c.Call(ctx, VerbListGetNext, path+"/-1", extra, c.readsNeedSession())
	if !res.OK() {
		return []Item{}, res.Err
	}
	if res.Doc.Status() != StatusOK {
		return []Item{}, nil
	}
	return res.Doc.items(), nil
}
