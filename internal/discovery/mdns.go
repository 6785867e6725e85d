// ABOUTME: mDNS service discovery for pepper audio hosts
// ABOUTME: Advertises bridge hosts and browses for them from players
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is the DNS-SD type bridge hosts advertise
	ServiceType = "_pepperaudio._tcp"

	// BridgePath is the websocket path advertised in the TXT record
	BridgePath = "/pepper"

	queryTimeout = 3 * time.Second
)

var ErrNoHostFound = errors.New("no pepper audio host found")

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	ctx    context.Context
	cancel context.CancelFunc
	hosts  chan *HostInfo
	server *mdns.Server
}

// HostInfo describes a discovered bridge host
type HostInfo struct {
	Name string
	Host string
	Port int
}

// Addr returns host:port
func (h *HostInfo) Addr() string {
	return net.JoinHostPort(h.Host, fmt.Sprint(h.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config: config,
		ctx:    ctx,
		cancel: cancel,
		hosts:  make(chan *HostInfo, 10),
	}
}

// Advertise announces this bridge host via mDNS
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=" + BridgePath},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}
	m.server = server

	slog.Info("advertising mdns service", "name", m.config.ServiceName,
		"port", m.config.Port, "type", ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for bridge hosts until Stop is called
func (m *Manager) Browse() {
	go m.browseLoop()
}

// browseLoop continuously browses for hosts
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				host := entryToHost(entry)
				if host == nil {
					continue
				}

				slog.Info("discovered host", "name", host.Name, "addr", host.Addr())

				select {
				case m.hosts <- host:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Timeout = queryTimeout
		params.Entries = entries
		params.DisableIPv6 = true

		if err := mdns.Query(params); err != nil {
			slog.Warn("mdns query failed", "err", err)
		}
		close(entries)
		<-done
	}
}

func entryToHost(entry *mdns.ServiceEntry) *HostInfo {
	if entry.AddrV4 == nil {
		return nil
	}
	return &HostInfo{
		Name: entry.Name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
	}
}

// Hosts returns the channel of discovered hosts
func (m *Manager) Hosts() <-chan *HostInfo {
	return m.hosts
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// Discover browses until the first host answers or ctx ends
func Discover(ctx context.Context) (*HostInfo, error) {
	m := NewManager(Config{})
	defer m.Stop()

	m.Browse()

	select {
	case host := <-m.Hosts():
		return host, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNoHostFound, ctx.Err())
	}
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
