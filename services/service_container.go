package services

import (
	"github.com/mbocsi/blockyspot/server"
)

// ServiceManagerImpl manages all services with dependency injection
type ServiceManagerImpl struct {
	registry   *server.DeviceRegistry
	dispatcher *server.Dispatcher

	services *ServiceContainer
}

// NewServiceManager creates a new service manager
func NewServiceManager(
	registry *server.DeviceRegistry,
	dispatcher *server.Dispatcher,
	transports func() []server.Transport,
) *ServiceManagerImpl {

	sm := &ServiceManagerImpl{
		registry:   registry,
		dispatcher: dispatcher,
	}

	sm.services = &ServiceContainer{
		Device:    NewDeviceService(registry),
		Command:   NewCommandService(registry, dispatcher),
		Transport: NewTransportService(transports),
	}

	return sm
}

// FromServer wires a service manager to a running gateway.
func FromServer(s *server.BlockyspotServer) *ServiceManagerImpl {
	return NewServiceManager(s.GetRegistry(), s.GetDispatcher(), s.GetTransports)
}

// GetServices returns the service container
func (sm *ServiceManagerImpl) GetServices() *ServiceContainer {
	return sm.services
}
