package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mbocsi/blockyspot/services"
)

func (s *MCPServer) registerDeviceTools() {
	listDevicesTool := mcp.NewTool("list_devices",
		mcp.WithDescription("List all virtual playback devices registered on the gateway"),
	)
	s.Server.AddTool(listDevicesTool, s.handleListDevices)

	getDeviceTool := mcp.NewTool("get_device",
		mcp.WithDescription("Get the state of one playback device"),
		mcp.WithString("device_id",
			mcp.Required(),
			mcp.Description("Device id as returned by list_devices"),
		),
	)
	s.Server.AddTool(getDeviceTool, s.handleGetDevice)

	sendCommandTool := mcp.NewTool("send_command",
		mcp.WithDescription("Send a playback command to a device, e.g. Play, Pause or SetVolume"),
		mcp.WithString("device_id",
			mcp.Required(),
			mcp.Description("Target device id"),
		),
		mcp.WithString("command_type",
			mcp.Required(),
			mcp.Description("Command to run"),
			mcp.Enum(s.services.Command.ListCommands()...),
		),
		mcp.WithObject("params",
			mcp.Description(`Command parameters, e.g. {"volume": 32768} for SetVolume or {"state": true} for Shuffle`),
		),
	)
	s.Server.AddTool(sendCommandTool, s.handleSendCommand)

	removeDeviceTool := mcp.NewTool("remove_device",
		mcp.WithDescription("Tear a device down and release its engine"),
		mcp.WithString("device_id",
			mcp.Required(),
			mcp.Description("Device id to remove"),
		),
	)
	s.Server.AddTool(removeDeviceTool, s.handleRemoveDevice)
}

func (s *MCPServer) registerSystemTools() {
	statusTool := mcp.NewTool("get_system_status",
		mcp.WithDescription("Get device count and transport statistics"),
		mcp.WithBoolean("include_transports",
			mcp.Description("Include per-transport information"),
		),
	)
	s.Server.AddTool(statusTool, s.handleGetSystemStatus)
}

func (s *MCPServer) handleListDevices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := s.services.Device.ListDevices()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error listing devices: %v", err)), nil
	}
	return jsonResult(devices)
}

func (s *MCPServer) handleGetDevice(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("device_id")
	if err != nil {
		return mcp.NewToolResultError("device_id is required and must be a string"), nil
	}

	device, err := s.services.Device.GetDevice(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(device)
}

func (s *MCPServer) handleSendCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("device_id")
	if err != nil {
		return mcp.NewToolResultError("device_id is required and must be a string"), nil
	}
	commandType, err := request.RequireString("command_type")
	if err != nil {
		return mcp.NewToolResultError("command_type is required and must be a string"), nil
	}

	var params json.RawMessage
	if p, ok := request.GetArguments()["params"]; ok && p != nil {
		params, err = json.Marshal(p)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal params: %v", err)), nil
		}
	}

	result, err := s.services.Command.SendCommand(ctx, id, commandType, params)
	if err != nil {
		var serviceErr services.ServiceError
		if result != nil && errors.As(err, &serviceErr) {
			return mcp.NewToolResultError(result.Message), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(result.Message), nil
}

func (s *MCPServer) handleRemoveDevice(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("device_id")
	if err != nil {
		return mcp.NewToolResultError("device_id is required and must be a string"), nil
	}

	if err := s.services.Device.RemoveDevice(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Removed device " + id), nil
}

func (s *MCPServer) handleGetSystemStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := s.services.Device.ListDevices()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error listing devices: %v", err)), nil
	}
	stats, err := s.services.Transport.GetTransportStats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error reading transports: %v", err)), nil
	}

	status := map[string]any{
		"devices":    len(devices),
		"transports": stats,
	}
	if request.GetBool("include_transports", false) {
		transports, err := s.services.Transport.ListTransports()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error listing transports: %v", err)), nil
		}
		status["transport_details"] = transports
	}
	return jsonResult(status)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
