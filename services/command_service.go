package services

import (
	"context"
	"encoding/json"

	"github.com/mbocsi/blockyspot/proto"
	"github.com/mbocsi/blockyspot/server"
)

// CommandServiceImpl implements CommandService
type CommandServiceImpl struct {
	registry   *server.DeviceRegistry
	dispatcher *server.Dispatcher
}

// NewCommandService creates a new command service
func NewCommandService(registry *server.DeviceRegistry, dispatcher *server.Dispatcher) CommandService {
	return &CommandServiceImpl{
		registry:   registry,
		dispatcher: dispatcher,
	}
}

// SendCommand validates the command exactly as the WebSocket path does and
// dispatches it without an owning connection.
func (cs *CommandServiceImpl) SendCommand(ctx context.Context, deviceID, commandType string, params json.RawMessage) (*CommandResult, error) {
	if commandType == proto.CmdCreateDevice {
		return nil, ServiceError{
			Code:    ErrCodeInvalidInput,
			Message: "CreateDevice is only available on a streaming connection",
		}
	}
	if err := validateDeviceID(deviceID); err != nil {
		return nil, err
	}

	id, cmd, err := proto.Translate(proto.CommandMessage{
		DeviceID:    deviceID,
		CommandType: commandType,
		Params:      params,
	})
	if err != nil {
		return nil, ServiceError{
			Code:    ErrCodeInvalidInput,
			Message: "Invalid command",
			Cause:   err,
		}
	}

	if _, err := cs.registry.Get(id); err != nil {
		return nil, deviceNotFound(id)
	}

	resp := cs.dispatcher.Dispatch(ctx, server.Request{DeviceID: id, Command: cmd})
	result := &CommandResult{
		DeviceID: id,
		Success:  resp.Success,
		Message:  resp.Message,
		Data:     resp.Data,
	}
	if !resp.Success {
		code := ErrCodeInternal
		if resp.Message == "Device not found" {
			// Removed between the lookup and the dispatch.
			code = ErrCodeNotFound
		}
		return result, ServiceError{Code: code, Message: resp.Message}
	}
	return result, nil
}

// ListCommands returns the command types accepted by SendCommand
func (cs *CommandServiceImpl) ListCommands() []string {
	commands := make([]string, 0, len(proto.CommandTypes)-1)
	for _, c := range proto.CommandTypes {
		if c != proto.CmdCreateDevice {
			commands = append(commands, c)
		}
	}
	return commands
}
