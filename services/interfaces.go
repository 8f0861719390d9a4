package services

import (
	"context"
	"encoding/json"
)

// DeviceService handles device-related operations
type DeviceService interface {
	// Device management
	ListDevices() ([]DeviceInfo, error)
	GetDevice(id string) (*DeviceInfo, error)
	RemoveDevice(id string) error

	// Device status
	IsDeviceConnected(id string) (bool, error)
}

// CommandService injects commands into existing devices on behalf of an
// operator. It cannot create devices: those need a streaming connection.
type CommandService interface {
	SendCommand(ctx context.Context, deviceID, commandType string, params json.RawMessage) (*CommandResult, error)
	ListCommands() []string
}

// TransportService handles transport information
type TransportService interface {
	ListTransports() ([]TransportInfo, error)
	GetTransport(index int) (*TransportInfo, error)
	GetTransportStats() (map[string]interface{}, error)
}

// ServiceContainer holds all service implementations
type ServiceContainer struct {
	Device    DeviceService
	Command   CommandService
	Transport TransportService
}
