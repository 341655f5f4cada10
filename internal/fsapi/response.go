package fsapi

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// FSAPI status codes carried in the <status> element of a response.
const (
	StatusOK               = "FS_OK"
	StatusFail             = "FS_FAIL"
	StatusPacketBad        = "FS_PACKET_BAD"
	StatusNodeBlocked      = "FS_NODE_BLOCKED"
	StatusNodeDoesNotExist = "FS_NODE_DOES_NOT_EXIST"
	StatusTimeout          = "FS_TIMEOUT"
	StatusListEnd          = "FS_LIST_END"
)

// Value type element names used inside <value> and list <field> elements.
const (
	typeText = "c8_array"
	typeU8   = "u8"
	typeU32  = "u32"
)

// Node is one element of a decoded response tree.
//
// Unknown elements are kept, so the tree can be navigated by name without
// knowing the full schema of every protocol node.
type Node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  string     `xml:",chardata"`
	Children []Node     `xml:",any"`
}

// Name returns the local element name.
func (n Node) Name() string {
	return n.XMLName.Local
}

// Text returns the element's character data.
func (n Node) Text() string {
	return n.Content
}

// Attr returns the value of the named attribute, or "" if absent.
func (n Node) Attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// Child returns the first child element with the given name.
func (n Node) Child(name string) (Node, bool) {
	for _, c := range n.Children {
		if c.Name() == name {
			return c, true
		}
	}
	return Node{}, false
}

// ChildrenNamed returns all child elements with the given name, in document order.
func (n Node) ChildrenNamed(name string) []Node {
	var out []Node
	for _, c := range n.Children {
		if c.Name() == name {
			out = append(out, c)
		}
	}
	return out
}

// Document is the decoded response to a single protocol call.
// It is consumed once by the accessor that requested it and then discarded.
type Document struct {
	root Node
}

// decodeDocument parses a response body into a Document.
func decodeDocument(body []byte) (*Document, error) {
	var root Node
	if err := xml.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return &Document{root: root}, nil
}

// Root returns the document element.
func (d *Document) Root() Node {
	return d.root
}

// Field returns the named top-level field of the response.
func (d *Document) Field(name string) (Node, bool) {
	return d.root.Child(name)
}

// Status returns the FSAPI status code, or "" when the response has none.
func (d *Document) Status() string {
	n, ok := d.root.Child("status")
	if !ok {
		return ""
	}
	return strings.TrimSpace(n.Text())
}

// Value returns the single typed child of the <value> wrapper of a GET response.
func (d *Document) Value() (Node, bool) {
	v, ok := d.root.Child("value")
	if !ok || len(v.Children) == 0 {
		return Node{}, false
	}
	return v.Children[0], true
}

// typedValue returns the text of the <value> child of the given type.
func (d *Document) typedValue(kind string) (string, error) {
	v, ok := d.root.Child("value")
	if !ok {
		return "", fmt.Errorf("%w: no value (status %q)", ErrDecode, d.Status())
	}
	n, ok := v.Child(kind)
	if !ok {
		return "", fmt.Errorf("%w: value has no %s element", ErrDecode, kind)
	}
	return n.Text(), nil
}

// textValue extracts a c8_array payload.
func (d *Document) textValue() (string, error) {
	return d.typedValue(typeText)
}

// uintValue extracts an unsigned payload of the given type and bit size.
func (d *Document) uintValue(kind string, bits int) (uint64, error) {
	raw, err := d.typedValue(kind)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %w", ErrDecode, kind, raw, err)
	}
	return v, nil
}

// Item is one entry of a LIST_GET_NEXT response.
//
// Band is the zero-based position of the item within the returned page. The
// device uses this index to identify modes and equaliser presets.
type Item struct {
	Band int

	// Key is the device-side key attribute of the <item> element.
	Key string

	// Fields maps each field name to its raw value node (c8_array, u8, ...).
	Fields map[string]Node
}

// Label returns the text of the item's "label" field, or "" if absent.
func (i Item) Label() string {
	n, ok := i.Fields["label"]
	if !ok {
		return ""
	}
	return n.Text()
}

// Text returns the text of the named field, or "" if absent.
func (i Item) Text(field string) string {
	return i.Fields[field].Text()
}

// items decodes the <item> elements of a list response in document order.
func (d *Document) items() []Item {
	elems := d.root.ChildrenNamed("item")
	out := make([]Item, 0, len(elems))
	for index, elem := range elems {
		item := Item{
			Band:   index,
			Key:    elem.Attr("key"),
			Fields: make(map[string]Node),
		}
		for _, field := range elem.ChildrenNamed("field") {
			if len(field.Children) == 0 {
				continue
			}
			item.Fields[field.Attr("name")] = field.Children[len(field.Children)-1]
		}
		out = append(out, item)
	}
	return out
}

// CollectLabels returns the labels of the given items in order, skipping
// items whose label is absent or empty.
func CollectLabels(items []Item) []string {
	labels := make([]string, 0, len(items))
	for _, item := range items {
		if label := item.Label(); label != "" {
			labels = append(labels, label)
		}
	}
	return labels
}
