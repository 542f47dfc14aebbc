// Package discovery advertises the feed endpoint on the local network via
// mDNS/DNS-SD, so a client app can find the server without the user typing
// in an address. Advertisement goes through the host's avahi-daemon over
// D-Bus; if no daemon is reachable (headless servers, containers without
// D-Bus, most CI), Start returns an error the caller logs and otherwise
// ignores — discovery is an optional nicety, never a serving requirement.
package discovery

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/holoplot/go-avahi"
)

const (
	// ServiceType is the DNS-SD service type advertised for the feed endpoint.
	ServiceType = "_podible._tcp"

	// APIVersion is advertised in a TXT record so clients can gate on it.
	APIVersion = "v1"
)

// Service manages one avahi entry-group advertisement for this process's
// feed endpoint.
type Service struct {
	logger *slog.Logger

	mu     sync.Mutex
	conn   *dbus.Conn
	server *avahi.Server
	group  *avahi.EntryGroup
}

// NewService creates a Service. Advertisement does not begin until Start.
func NewService(logger *slog.Logger) *Service {
	return &Service{logger: logger}
}

// Start (re)advertises name at port on the local network. Calling Start
// again (e.g. after the HTTP listener rebinds to a new port) tears down
// any existing advertisement first.
func (s *Service) Start(name string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("connect to system dbus: %w", err)
	}

	server, err := avahi.ServerNew(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("connect to avahi daemon: %w", err)
	}

	group, err := server.EntryGroupNew()
	if err != nil {
		conn.Close()
		return fmt.Errorf("create avahi entry group: %w", err)
	}

	if name == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "podible"
		}
		name = host
	}

	txt := [][]byte{[]byte("api=" + APIVersion)}

	err = group.AddService(avahi.InterfaceUnspec, avahi.ProtoUnspec, 0, name, ServiceType, "", "", uint16(port), txt)
	if err != nil {
		conn.Close()
		return fmt.Errorf("add avahi service: %w", err)
	}

	if err := group.Commit(); err != nil {
		conn.Close()
		return fmt.Errorf("commit avahi entry group: %w", err)
	}

	s.conn = conn
	s.server = server
	s.group = group

	s.logger.Info("mdns advertisement started", "service", ServiceType, "port", port, "name", name)
	return nil
}

// Stop withdraws the advertisement. Safe to call multiple times or before
// Start.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Service) stopLocked() {
	if s.group != nil {
		_ = s.group.Reset()
		_ = s.group.Free()
		s.group = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
		s.logger.Info("mdns advertisement stopped")
	}
}
