package proto

import (
	"encoding/json"
)

const ProtocolVersion = "0.1.1"

// Outbound message types
const (
	TypeConnection         = "connection"
	TypeCommandResponse    = "command_response"
	TypeAudioFormat        = "audio_format"
	TypeAudioData          = "audio_data"
	TypeAudioStreamStopped = "audio_stream_stopped"
	TypeSinkEvent          = "sink_event"
	TypePlayerEvent        = "player_event"
)

// CommandMessage is the inbound envelope sent by a remote peer.
type CommandMessage struct {
	DeviceID    string          `json:"device_id,omitempty"` // required for everything except CreateDevice
	CommandType string          `json:"command_type"`        // e.g. "Play", "SetVolume"
	Params      json.RawMessage `json:"params,omitempty"`    // per-command parameter object
}

// Outbound is anything the gateway writes to a connection.
type Outbound interface {
	MessageType() string
}

type ConnectionAck struct {
	Type            string `json:"type"`
	Status          string `json:"status"`
	ProtocolVersion string `json:"protocol_version"`
}

func NewConnectionAck() ConnectionAck {
	return ConnectionAck{Type: TypeConnection, Status: "Connected to server", ProtocolVersion: ProtocolVersion}
}

func (ConnectionAck) MessageType() string { return TypeConnection }

// Response answers exactly one CommandMessage.
type Response struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id,omitempty"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Data     any    `json:"data,omitempty"`
}

func (Response) MessageType() string { return TypeCommandResponse }

func Success(message string, data any) Response {
	return Response{Type: TypeCommandResponse, Success: true, Message: message, Data: data}
}

func Failure(message string) Response {
	return Response{Type: TypeCommandResponse, Success: false, Message: message}
}

// WithDevice returns a copy of r addressed to deviceID.
func (r Response) WithDevice(deviceID string) Response {
	r.DeviceID = deviceID
	return r
}

type AudioFormatInfo struct {
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
	Format     string `json:"format"`
}

type AudioFormatMessage struct {
	Type     string          `json:"type"`
	DeviceID string          `json:"device_id"`
	Data     AudioFormatInfo `json:"data"`
}

func (AudioFormatMessage) MessageType() string { return TypeAudioFormat }

const (
	PacketSamples = "samples"
	PacketRaw     = "raw"
)

type AudioChunk struct {
	Format     string `json:"format"`
	Encoded    string `json:"encoded"` // base64, standard alphabet
	PacketType string `json:"packet_type"`
}

type AudioDataMessage struct {
	Type     string     `json:"type"`
	DeviceID string     `json:"device_id"`
	Data     AudioChunk `json:"data"`
}

func (AudioDataMessage) MessageType() string { return TypeAudioData }

type AudioStreamStopped struct {
	Type     string   `json:"type"`
	DeviceID string   `json:"device_id"`
	Data     struct{} `json:"data"`
}

func (AudioStreamStopped) MessageType() string { return TypeAudioStreamStopped }

type SinkStatusInfo struct {
	Status string `json:"status"`
}

type SinkEventMessage struct {
	Type     string         `json:"type"`
	DeviceID string         `json:"device_id"`
	Data     SinkStatusInfo `json:"data"`
}

func (SinkEventMessage) MessageType() string { return TypeSinkEvent }

// PlayerEventDetail carries the optional fields of an engine event.
// A nil pointer means the event kind does not define that field.
type PlayerEventDetail struct {
	RequestID  *uint64 `json:"request_id,omitempty"`
	TrackID    string  `json:"track_id,omitempty"`
	PositionMs *uint32 `json:"position_ms,omitempty"`
	DurationMs *uint32 `json:"duration_ms,omitempty"`
	Volume     *uint16 `json:"volume,omitempty"`
	Value      *bool   `json:"value,omitempty"`
}

type PlayerEventMessage struct {
	Type     string             `json:"type"`
	DeviceID string             `json:"device_id"`
	Event    string             `json:"event"`
	Data     *PlayerEventDetail `json:"data"`
}

func (PlayerEventMessage) MessageType() string { return TypePlayerEvent }

// Envelope is used by readers that only need the discriminator.
type Envelope struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id,omitempty"`
}
