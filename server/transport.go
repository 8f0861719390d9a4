package server

import (
	"time"

	"github.com/google/uuid"
	"github.com/mbocsi/blockyspot/proto"
)

// Outbox is the sending half of a connection's outbound queue. Send must not
// block and fails once the connection is gone.
type Outbox interface {
	Send(proto.Outbound) error
}

type Transport interface {
	Start() error
	OnMessage(func(Client, []byte))
	OnConnect(func(Client) error)
	OnDisconnect(func(Client))
	Shutdown() error
	Meta() TransportMetadata
	SetName(name string)
	SetDescription(description string)
}

type TransportMetadata struct {
	ID          string
	Name        string // Human-friendly name, e.g. "WebSocket Gateway"
	Protocol    string // e.g. "websocket"
	Address     string // Bind address, e.g. "0.0.0.0:8080"
	Path        string
	Description string

	Clients    int
	MaxClients int // 0 means unlimited
	Connected  bool
}

type ClientMetadata struct {
	Id          string
	RemoteAddr  string
	ConnectedAt time.Time
	Transport   Transport
}

// Client is one remote connection.
type Client interface {
	Outbox
	Meta() *ClientMetadata
	Close() error
}

func generateClientId(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
