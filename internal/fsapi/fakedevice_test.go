package fsapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// nodeValue is a typed node value held by the fake device.
type nodeValue struct {
	kind string // c8_array, u8, u32
	text string
}

// fakeDevice emulates the HTTP side of an FSAPI receiver.
type fakeDevice struct {
	server *httptest.Server

	mu            sync.Mutex
	pin           string
	sessions      int
	deletes       int
	validSID      string
	bootstrapDown bool
	noWebfsapi    bool
	setStatus     string
	values        map[string]nodeValue
	lists         map[string]string
	listStatus    string
	failNext      map[string]int
	requests      map[string]int
	queries       map[string][]url.Values
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()

	d := &fakeDevice{
		pin:        "1234",
		setStatus:  StatusOK,
		listStatus: StatusOK,
		values:     make(map[string]nodeValue),
		lists:      make(map[string]string),
		failNext:   make(map[string]int),
		requests:   make(map[string]int),
		queries:    make(map[string][]url.Values),
	}
	d.server = httptest.NewServer(http.HandlerFunc(d.handle))
	t.Cleanup(d.server.Close)
	return d
}

func (d *fakeDevice) deviceURL() string {
	return d.server.URL + "/device"
}

func (d *fakeDevice) newClient(t *testing.T, mutate ...func(*Config)) *Client {
	t.Helper()

	cfg := Config{
		DeviceURL:  d.deviceURL(),
		PIN:        "1234",
		HTTPClient: d.server.Client(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func (d *fakeDevice) setValue(path, kind, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[path] = nodeValue{kind: kind, text: text}
}

func (d *fakeDevice) setList(path string, items ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lists[path] = strings.Join(items, "")
}

func (d *fakeDevice) count(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[key]
}

func (d *fakeDevice) lastQuery(key string) url.Values {
	d.mu.Lock()
	defer d.mu.Unlock()
	qs := d.queries[key]
	if len(qs) == 0 {
		return nil
	}
	return qs[len(qs)-1]
}

func (d *fakeDevice) sessionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions
}

// invalidateSession simulates the device dropping the session on its side.
func (d *fakeDevice) invalidateSession() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.validSID = "expired"
}

func (d *fakeDevice) handle(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := r.URL.Path
	d.requests[key]++
	d.queries[key] = append(d.queries[key], r.URL.Query())
	q := r.URL.Query()

	if key == "/device" {
		if d.bootstrapDown {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		webfsapi := fmt.Sprintf("<webfsapi>%s/fsapi</webfsapi>", d.server.URL)
		if d.noWebfsapi {
			webfsapi = ""
		}
		fmt.Fprintf(w, "<netRemote><friendlyName>Kitchen</friendlyName><version>ir-mmi-FS2026</version>%s</netRemote>", webfsapi)
		return
	}

	if q.Get("pin") != d.pin {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	rest := strings.TrimPrefix(key, "/fsapi/")
	verb, node, _ := strings.Cut(rest, "/")

	switch Verb(verb) {
	case VerbCreateSession:
		d.sessions++
		d.validSID = fmt.Sprintf("sid-%d", d.sessions)
		fmt.Fprintf(w, "<fsapiResponse><status>FS_OK</status><sessionId>%s</sessionId></fsapiResponse>", d.validSID)
		return
	case VerbDeleteSession:
		d.deletes++
		d.validSID = ""
		fmt.Fprint(w, "<fsapiResponse><status>FS_OK</status></fsapiResponse>")
		return
	}

	if d.failNext[node] > 0 {
		d.failNext[node]--
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if sid := q.Get("sid"); sid != "" && sid != d.validSID {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch Verb(verb) {
	case VerbGet:
		v, ok := d.values[node]
		if !ok {
			fmt.Fprint(w, "<fsapiResponse><status>FS_NODE_DOES_NOT_EXIST</status></fsapiResponse>")
			return
		}
		fmt.Fprintf(w, "<fsapiResponse><status>FS_OK</status><value><%s>%s</%s></value></fsapiResponse>",
			v.kind, v.text, v.kind)
	case VerbSet:
		if q.Get("sid") == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if d.setStatus == StatusOK {
			v := d.values[node]
			if v.kind == "" {
				v.kind = typeU8
			}
			v.text = q.Get("value")
			d.values[node] = v
		}
		fmt.Fprintf(w, "<fsapiResponse><status>%s</status></fsapiResponse>", d.setStatus)
	case VerbListGetNext:
		listPath := strings.TrimSuffix(node, "/-1")
		fmt.Fprintf(w, "<fsapiResponse><status>%s</status>%s<listend/></fsapiResponse>",
			d.listStatus, d.lists[listPath])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// listItem renders an <item> with the given fields in the given order.
func listItem(key int, fields ...string) string {
	return fmt.Sprintf(`<item key="%d">%s</item>`, key, strings.Join(fields, ""))
}

func textField(name, value string) string {
	return fmt.Sprintf(`<field name="%s"><c8_array>%s</c8_array></field>`, name, value)
}

func u8Field(name string, value int) string {
	return fmt.Sprintf(`<field name="%s"><u8>%d</u8></field>`, name, value)
}
