package services

import (
	"time"
)

// DeviceInfo represents device information for the service layer
type DeviceInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Owner       string     `json:"owner,omitempty"`
	State       string     `json:"state"`
	Streaming   bool       `json:"streaming"`
	CreatedAt   time.Time  `json:"created_at"`
	LastCommand *time.Time `json:"last_command,omitempty"`
}

// CommandResult mirrors the command_response a streaming client would get.
type CommandResult struct {
	DeviceID string `json:"device_id"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Data     any    `json:"data,omitempty"`
}

// TransportInfo represents transport connection information
type TransportInfo struct {
	Index       int    `json:"index"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type"`
	Address     string `json:"address"`
	Path        string `json:"path,omitempty"`
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	MaxClients  int    `json:"max_clients"`
}

// ServiceError represents structured service layer errors
type ServiceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"cause,omitempty"`
}

func (e ServiceError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e ServiceError) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeTimeout      = "TIMEOUT"
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeUnauthorized = "UNAUTHORIZED"
)
