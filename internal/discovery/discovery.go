// Package discovery finds Frontier Silicon receivers on the local network.
//
// Receivers answer SSDP M-SEARCH requests for the FSAPI service type. The
// LOCATION header of each answer points at the device description; the
// FSAPI bootstrap URL lives on port 80 of the same host at /device.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"time"

	"github.com/alexballas/go-ssdp"
)

// SearchTarget is the SSDP service type announced by FSAPI receivers.
const SearchTarget = "urn:schemas-frontier-silicon-com:undok:fsapi:1"

// DefaultWait is how long Search listens for answers when no wait is given.
const DefaultWait = 3 * time.Second

// ErrSearchFailed is returned when the M-SEARCH could not be sent.
var ErrSearchFailed = errors.New("discovery: ssdp search failed")

// Receiver is a receiver that answered the search.
type Receiver struct {
	// USN is the unique service name; stable across restarts.
	USN string

	// Location is the LOCATION header as announced.
	Location string

	// DeviceURL is the FSAPI bootstrap URL derived from Location.
	DeviceURL string

	// Server is the SERVER header (firmware identification), may be empty.
	Server string
}

// Logger is the optional logger used by the scanner.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// searchFunc matches ssdp.Search and is replaced in tests.
type searchFunc func(searchType string, waitSec int, localAddr string) ([]ssdp.Service, error)

// Scanner issues SSDP searches.
type Scanner struct {
	localAddr string
	logger    Logger
	search    searchFunc
}

// Options configures a Scanner.
type Options struct {
	// LocalAddr binds the search to one interface ("" for all).
	LocalAddr string

	// Logger is optional.
	Logger Logger
}

// NewScanner creates a scanner.
func NewScanner(opts Options) *Scanner {
	s := &Scanner{
		localAddr: opts.LocalAddr,
		logger:    opts.Logger,
		search:    ssdp.Search,
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s
}

// Search sends an M-SEARCH and collects answers for the given wait.
// Answers are de-duplicated by USN and sorted by device URL. Answers with an
// unusable LOCATION are skipped.
//
// The underlying search does not take a context; when ctx ends first, Search
// returns ctx.Err() and the search finishes in the background.
func (s *Scanner) Search(ctx context.Context, wait time.Duration) ([]Receiver, error) {
	if wait <= 0 {
		wait = DefaultWait
	}
	waitSec := int(wait.Round(time.Second) / time.Second)
	if waitSec < 1 {
		waitSec = 1
	}

	type outcome struct {
		services []ssdp.Service
		err      error
	}
	done := make(chan outcome, 1)

	go func() {
		services, err := s.search(SearchTarget, waitSec, s.localAddr)
		done <- outcome{services: services, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSearchFailed, out.err)
		}
		return s.collect(out.services), nil
	}
}

// collect filters, maps and de-duplicates raw SSDP answers.
func (s *Scanner) collect(services []ssdp.Service) []Receiver {
	seen := make(map[string]bool, len(services))
	receivers := make([]Receiver, 0, len(services))

	for _, svc := range services {
		if svc.Type != SearchTarget {
			continue
		}
		key := svc.USN
		if key == "" {
			key = svc.Location
		}
		if seen[key] {
			continue
		}

		deviceURL, err := DeviceURL(svc.Location)
		if err != nil {
			s.logger.Warn("skipping ssdp answer", "usn", svc.USN, "location", svc.Location, "error", err)
			continue
		}
		seen[key] = true

		s.logger.Debug("fsapi receiver found", "usn", svc.USN, "device_url", deviceURL)
		receivers = append(receivers, Receiver{
			USN:       svc.USN,
			Location:  svc.Location,
			DeviceURL: deviceURL,
			Server:    svc.Server,
		})
	}

	sort.Slice(receivers, func(i, j int) bool {
		if receivers[i].DeviceURL != receivers[j].DeviceURL {
			return receivers[i].DeviceURL < receivers[j].DeviceURL
		}
		return receivers[i].USN < receivers[j].USN
	})
	return receivers
}

// DeviceURL maps an SSDP LOCATION to the FSAPI bootstrap URL of the same host.
//
// Example: "http://192.168.1.40:8080/dd.xml" -> "http://192.168.1.40:80/device"
func DeviceURL(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parsing location: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported location scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("location %q has no host", location)
	}
	return "http://" + net.JoinHostPort(host, "80") + "/device", nil
}
