package services

import (
	"github.com/mbocsi/blockyspot/server"
)

// TransportServiceImpl implements TransportService
type TransportServiceImpl struct {
	transports func() []server.Transport
}

// NewTransportService creates a new transport service. The getter is read on
// every call so transports registered later are included.
func NewTransportService(transports func() []server.Transport) TransportService {
	return &TransportServiceImpl{
		transports: transports,
	}
}

// ListTransports returns all transport information
func (ts *TransportServiceImpl) ListTransports() ([]TransportInfo, error) {
	transports := ts.transports()
	result := make([]TransportInfo, 0, len(transports))

	for i, transport := range transports {
		result = append(result, convertTransportMeta(i, transport))
	}

	return result, nil
}

// GetTransport returns a specific transport by index
func (ts *TransportServiceImpl) GetTransport(index int) (*TransportInfo, error) {
	transports := ts.transports()
	if index < 0 || index >= len(transports) {
		return nil, ServiceError{
			Code:    ErrCodeNotFound,
			Message: "Transport index out of range",
		}
	}

	info := convertTransportMeta(index, transports[index])
	return &info, nil
}

// GetTransportStats returns aggregate transport statistics
func (ts *TransportServiceImpl) GetTransportStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	transports := ts.transports()
	connectedTransports := 0
	totalConnections := 0

	for _, transport := range transports {
		meta := transport.Meta()
		if meta.Connected {
			connectedTransports++
		}
		totalConnections += meta.Clients
	}

	stats["total_transports"] = len(transports)
	stats["connected_transports"] = connectedTransports
	stats["total_connections"] = totalConnections

	return stats, nil
}
