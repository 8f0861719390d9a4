package client

import (
	"encoding/json"

	"github.com/mbocsi/blockyspot/proto"
)

type Transport interface {
	Connect(addr string) error
	Send(msg proto.CommandMessage) error
	Read() (Frame, error) // for one-at-a-time processing
	Close() error
}

// Frame is one message from the gateway: the discriminator plus the raw JSON
// for decoding into the concrete type.
type Frame struct {
	proto.Envelope
	Raw json.RawMessage
}
