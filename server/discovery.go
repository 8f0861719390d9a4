package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/hashicorp/mdns"
	"github.com/mbocsi/blockyspot/proto"
)

const ServiceType = "_blockyspot._tcp"

// Advertiser announces the WebSocket endpoint over mDNS.
type Advertiser struct {
	Instance string
	Port     int
	Path     string
}

func NewAdvertiser(instance string, port int, path string) *Advertiser {
	return &Advertiser{Instance: instance, Port: port, Path: path}
}

func (a *Advertiser) Name() string { return "mdns" }

func (a *Advertiser) Run(ctx context.Context) error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		a.Instance,
		ServiceType,
		"",
		"",
		a.Port,
		ips,
		a.TXT(),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	srv, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}
	slog.Info("Advertising mDNS service", "instance", a.Instance, "type", ServiceType, "port", a.Port)

	<-ctx.Done()
	return srv.Shutdown()
}

// TXT returns the records published with the service.
func (a *Advertiser) TXT() []string {
	return []string{"path=" + a.Path, "protocol_version=" + proto.ProtocolVersion}
}

func getLocalIPs() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			ips = append(ips, ip4)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no non-loopback IPv4 address found")
	}
	return ips, nil
}
