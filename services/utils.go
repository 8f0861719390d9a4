package services

import (
	"strings"

	"github.com/mbocsi/blockyspot/server"
)

// convertDeviceInfo converts a session snapshot to DeviceInfo
func convertDeviceInfo(info server.DeviceInfo) DeviceInfo {
	return DeviceInfo{
		ID:          info.ID,
		Name:        info.Name,
		Owner:       info.Owner,
		State:       string(info.State),
		Streaming:   info.Streaming,
		CreatedAt:   info.CreatedAt,
		LastCommand: info.LastCommand,
	}
}

// convertTransportMeta converts transport metadata to TransportInfo
func convertTransportMeta(index int, transport server.Transport) TransportInfo {
	meta := transport.Meta()
	status := "disconnected"
	if meta.Connected {
		status = "connected"
	}

	return TransportInfo{
		Index:       index,
		Name:        meta.Name,
		Type:        meta.Protocol,
		Address:     meta.Address,
		Path:        meta.Path,
		Status:      status,
		Connections: meta.Clients,
		MaxClients:  meta.MaxClients,
	}
}

// validateDeviceID validates a device id
func validateDeviceID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ServiceError{
			Code:    ErrCodeInvalidInput,
			Message: "Device ID cannot be empty",
		}
	}
	return nil
}

func deviceNotFound(id string) ServiceError {
	return ServiceError{
		Code:    ErrCodeNotFound,
		Message: "Device not found: " + id,
	}
}
