package services

import (
	"github.com/mbocsi/blockyspot/server"
)

// DeviceServiceImpl implements DeviceService
type DeviceServiceImpl struct {
	registry *server.DeviceRegistry
}

// NewDeviceService creates a new device service
func NewDeviceService(registry *server.DeviceRegistry) DeviceService {
	return &DeviceServiceImpl{
		registry: registry,
	}
}

// ListDevices returns all registered devices, oldest first
func (ds *DeviceServiceImpl) ListDevices() ([]DeviceInfo, error) {
	sessions := ds.registry.List()
	result := make([]DeviceInfo, 0, len(sessions))

	for _, session := range sessions {
		result = append(result, convertDeviceInfo(session.Info()))
	}

	return result, nil
}

// GetDevice returns a specific device by ID
func (ds *DeviceServiceImpl) GetDevice(id string) (*DeviceInfo, error) {
	if err := validateDeviceID(id); err != nil {
		return nil, err
	}

	session, err := ds.registry.Get(id)
	if err != nil {
		return nil, deviceNotFound(id)
	}

	info := convertDeviceInfo(session.Info())
	return &info, nil
}

// RemoveDevice tears the device down without touching its connection
func (ds *DeviceServiceImpl) RemoveDevice(id string) error {
	if err := validateDeviceID(id); err != nil {
		return err
	}

	if !ds.registry.Remove(id) {
		return deviceNotFound(id)
	}
	return nil
}

// IsDeviceConnected checks if device is connected
func (ds *DeviceServiceImpl) IsDeviceConnected(id string) (bool, error) {
	_, err := ds.registry.Get(id)
	return err == nil, nil
}
