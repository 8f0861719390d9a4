package client

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDiscoveredService(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:       "blockyspot._blockyspot._tcp.local.",
		AddrV4:     net.ParseIP("192.168.1.20"),
		Port:       8080,
		InfoFields: []string{"version=0.1.1", "path=/gateway"},
	}

	service, err := newDiscoveredService(entry)

	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20", service.Address)
	assert.Equal(t, "/gateway", service.Path)
	assert.Equal(t, "ws://192.168.1.20:8080/gateway", service.URL())
}

func TestNewDiscoveredService_IPv6DefaultPath(t *testing.T) {
	entry := &mdns.ServiceEntry{AddrV6: net.ParseIP("fe80::1"), Port: 9000}

	service, err := newDiscoveredService(entry)

	require.NoError(t, err)
	assert.Equal(t, "ws://[fe80::1]:9000/ws", service.URL())
}

func TestNewDiscoveredService_NoAddress(t *testing.T) {
	_, err := newDiscoveredService(&mdns.ServiceEntry{Port: 1})
	assert.Error(t, err)
}
