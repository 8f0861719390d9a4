package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mbocsi/blockyspot/services"
)

const maxBodyBytes = 1 << 20

type commandRequest struct {
	CommandType string          `json:"command_type"`
	Params      json.RawMessage `json:"params,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *AdminServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	devices, err := a.services.Device.ListDevices()
	if err != nil {
		a.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"devices": len(devices),
	})
}

func (a *AdminServer) HandleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := a.services.Device.ListDevices()
	if err != nil {
		a.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (a *AdminServer) HandleDeviceDetail(w http.ResponseWriter, r *http.Request) {
	device, err := a.services.Device.GetDevice(chi.URLParam(r, "id"))
	if err != nil {
		a.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (a *AdminServer) HandleDeviceRemove(w http.ResponseWriter, r *http.Request) {
	if err := a.services.Device.RemoveDevice(chi.URLParam(r, "id")); err != nil {
		a.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSendCommand runs one command against a device, exactly as if its
// owning connection had sent it.
func (a *AdminServer) HandleSendCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.handleError(w, services.ServiceError{
			Code:    services.ErrCodeInvalidInput,
			Message: "Invalid JSON body",
			Cause:   err,
		})
		return
	}

	result, err := a.services.Command.SendCommand(r.Context(), chi.URLParam(r, "id"), req.CommandType, req.Params)
	if err != nil {
		// Engine failures still carry the command_response text.
		var serviceErr services.ServiceError
		if result != nil && errors.As(err, &serviceErr) && serviceErr.Code == services.ErrCodeInternal {
			slog.Warn("Command failed", "device_id", result.DeviceID, "command_type", req.CommandType, "message", result.Message)
			writeJSON(w, http.StatusBadGateway, result)
			return
		}
		a.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *AdminServer) HandleCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.services.Command.ListCommands())
}

func (a *AdminServer) HandleTransports(w http.ResponseWriter, r *http.Request) {
	transports, err := a.services.Transport.ListTransports()
	if err != nil {
		a.handleError(w, err)
		return
	}
	stats, err := a.services.Transport.GetTransportStats()
	if err != nil {
		a.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transports": transports,
		"stats":      stats,
	})
}

func (a *AdminServer) HandleTransportDetail(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "i"))
	if err != nil {
		a.handleError(w, services.ServiceError{
			Code:    services.ErrCodeInvalidInput,
			Message: "Transport index must be an integer",
		})
		return
	}

	transport, err := a.services.Transport.GetTransport(index)
	if err != nil {
		a.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transport)
}

// handleError handles service errors with proper HTTP status codes
func (a *AdminServer) handleError(w http.ResponseWriter, err error) {
	var serviceErr services.ServiceError
	if !errors.As(err, &serviceErr) {
		slog.Error("Service error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    services.ErrCodeInternal,
			Message: "Internal server error",
		})
		return
	}

	status := http.StatusInternalServerError
	switch serviceErr.Code {
	case services.ErrCodeNotFound:
		status = http.StatusNotFound
	case services.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case services.ErrCodeTimeout:
		status = http.StatusRequestTimeout
	case services.ErrCodeUnauthorized:
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		slog.Error("Service error", "error", err)
	} else {
		slog.Debug("Request rejected", "code", serviceErr.Code, "error", err)
	}

	writeJSON(w, status, errorResponse{Code: serviceErr.Code, Message: serviceErr.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
