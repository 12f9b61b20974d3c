// ABOUTME: mDNS service discovery for codecbridge stream servers
// ABOUTME: Handles both advertisement (serve) and browsing (discover)
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ServiceType is the mDNS service advertised by stream servers
const ServiceType = "_codecbridge._tcp"

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string        // websocket path advertised in the TXT record
	Codec       string        // codec name advertised in the TXT record
	Interval    time.Duration // browse query timeout; 3s when zero
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
	log     *logrus.Entry
}

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name  string
	Host  string
	Port  int
	Path  string
	Codec string
}

// URL returns the websocket address of the server
func (s *ServerInfo) URL() string {
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(s.Host, fmt.Sprint(s.Port)), s.Path)
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	if config.Path == "" {
		config.Path = "/stream"
	}
	if config.Interval <= 0 {
		config.Interval = 3 * time.Second
	}

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
		log:     logrus.WithField("component", "discovery"),
	}
}

// txtRecords builds the TXT entries advertised for this server
func (m *Manager) txtRecords() []string {
	txt := []string{"path=" + m.config.Path}
	if m.config.Codec != "" {
		txt = append(txt, "codec="+m.config.Codec)
	}
	return txt
}

// Advertise announces this server via mDNS until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return errors.Wrap(err, "failed to get local IPs")
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		m.txtRecords(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create service")
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return errors.Wrap(err, "failed to create mdns server")
	}

	m.log.WithFields(logrus.Fields{
		"name": m.config.ServiceName,
		"port": m.config.Port,
		"type": ServiceType,
	}).Info("Advertising mDNS service")

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for servers until Stop; results arrive on Servers
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop repeats queries until the manager stops
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}
		m.query(m.ctx)
	}
}

// query runs one mDNS query and forwards what it finds
func (m *Manager) query(ctx context.Context) {
	entries := make(chan *mdns.ServiceEntry, 10)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			server := entryToServer(entry)
			if server == nil {
				continue
			}
			m.log.WithFields(logrus.Fields{"name": server.Name, "addr": server.URL()}).Debug("Discovered server")

			select {
			case m.servers <- server:
			case <-ctx.Done():
			}
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Domain = "local"
	params.Timeout = m.config.Interval
	params.Entries = entries
	params.DisableIPv6 = true

	if err := mdns.Query(params); err != nil {
		m.log.WithError(err).Debug("mDNS query failed")
	}
	close(entries)
	<-done
}

// Lookup runs a single query and returns the servers found before timeout
func Lookup(ctx context.Context, timeout time.Duration) ([]*ServerInfo, error) {
	m := NewManager(Config{Interval: timeout})
	defer m.Stop()

	collected := make(chan []*ServerInfo, 1)
	go func() {
		var found []*ServerInfo
		seen := make(map[string]bool)
		for s := range m.servers {
			if key := s.URL(); !seen[key] {
				seen[key] = true
				found = append(found, s)
			}
		}
		collected <- found
	}()

	m.query(ctx)
	close(m.servers)
	found := <-collected
	if err := ctx.Err(); err != nil {
		return found, err
	}
	return found, nil
}

// entryToServer converts an mDNS entry, nil when it has no IPv4 address
func entryToServer(entry *mdns.ServiceEntry) *ServerInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}
	s := &ServerInfo{
		Name: entry.Name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Path: "/stream",
	}
	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "path":
			s.Path = value
		case "codec":
			s.Codec = value
		}
	}
	return s
}

// Servers returns the channel of discovered servers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns local IPv4 addresses of interfaces that are up
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
