package client

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const serviceType = "_blockyspot._tcp"

// DiscoveredService represents a discovered gateway
type DiscoveredService struct {
	ServiceName string
	Address     string
	Port        int
	Path        string
	TXTRecords  []string
}

// URL returns the WebSocket URL of the discovered gateway
func (s *DiscoveredService) URL() string {
	path := s.Path
	if path == "" {
		path = defaultPath
	}
	return fmt.Sprintf("ws://%s:%d%s", s.Address, s.Port, path)
}

// DiscoverGateway returns the first gateway answering on the local network
func DiscoverGateway(timeout time.Duration) (*DiscoveredService, error) {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	entriesCh := make(chan *mdns.ServiceEntry, 4)

	go func() {
		defer close(entriesCh)
		params := mdns.DefaultParams(serviceType)
		params.Entries = entriesCh
		params.Timeout = timeout
		params.DisableIPv6 = true
		if err := mdns.Query(params); err != nil {
			slog.Debug("mDNS query failed", "error", err)
		}
	}()

	select {
	case entry := <-entriesCh:
		if entry == nil {
			return nil, fmt.Errorf("no %s service found", serviceType)
		}
		return newDiscoveredService(entry)

	case <-time.After(timeout):
		return nil, fmt.Errorf("mDNS discovery timeout for %s", serviceType)
	}
}

func newDiscoveredService(entry *mdns.ServiceEntry) (*DiscoveredService, error) {
	var address string
	if entry.AddrV4 != nil {
		address = entry.AddrV4.String()
	} else if entry.AddrV6 != nil {
		address = fmt.Sprintf("[%s]", entry.AddrV6.String())
	} else {
		return nil, fmt.Errorf("no valid address found for service")
	}

	service := &DiscoveredService{
		ServiceName: entry.Name,
		Address:     address,
		Port:        entry.Port,
		TXTRecords:  entry.InfoFields,
	}
	for _, field := range entry.InfoFields {
		if path, ok := strings.CutPrefix(field, "path="); ok {
			service.Path = path
		}
	}

	slog.Info("Discovered gateway",
		"service_name", service.ServiceName,
		"address", service.Address,
		"port", service.Port,
		"path", service.Path,
	)
	return service, nil
}
