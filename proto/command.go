package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Command type tags as they appear in CommandMessage.CommandType.
const (
	CmdCreateDevice = "CreateDevice"
	CmdPlay         = "Play"
	CmdPlayPause    = "PlayPause"
	CmdPause        = "Pause"
	CmdPrev         = "Prev"
	CmdNext         = "Next"
	CmdVolumeUp     = "VolumeUp"
	CmdVolumeDown   = "VolumeDown"
	CmdShutdown     = "Shutdown"
	CmdShuffle      = "Shuffle"
	CmdRepeat       = "Repeat"
	CmdRepeatTrack  = "RepeatTrack"
	CmdDisconnect   = "Disconnect"
	CmdSetPosition  = "SetPosition"
	CmdSetVolume    = "SetVolume"
	CmdActivate     = "Activate"
)

// CommandTypes lists every tag Translate accepts.
var CommandTypes = []string{
	CmdCreateDevice, CmdPlay, CmdPlayPause, CmdPause, CmdPrev, CmdNext,
	CmdVolumeUp, CmdVolumeDown, CmdShutdown, CmdShuffle, CmdRepeat,
	CmdRepeatTrack, CmdDisconnect, CmdSetPosition, CmdSetVolume, CmdActivate,
}

// Command is a closed union: only the types in this file implement it.
type Command interface {
	CommandType() string
	isCommand()
}

type CreateDevice struct {
	Token      string
	DeviceName *string
}

type Play struct{}
type PlayPause struct{}
type Pause struct{}
type Prev struct{}
type Next struct{}
type VolumeUp struct{}
type VolumeDown struct{}
type Shutdown struct{}
type Activate struct{}

type Shuffle struct{ State bool }
type Repeat struct{ State bool }
type RepeatTrack struct{ State bool }

type Disconnect struct{ Pause bool }

type SetPosition struct{ PositionMs uint32 }
type SetVolume struct{ Volume uint16 }

func (CreateDevice) CommandType() string { return CmdCreateDevice }
func (Play) CommandType() string         { return CmdPlay }
func (PlayPause) CommandType() string    { return CmdPlayPause }
func (Pause) CommandType() string        { return CmdPause }
func (Prev) CommandType() string         { return CmdPrev }
func (Next) CommandType() string         { return CmdNext }
func (VolumeUp) CommandType() string     { return CmdVolumeUp }
func (VolumeDown) CommandType() string   { return CmdVolumeDown }
func (Shutdown) CommandType() string     { return CmdShutdown }
func (Activate) CommandType() string     { return CmdActivate }
func (Shuffle) CommandType() string      { return CmdShuffle }
func (Repeat) CommandType() string       { return CmdRepeat }
func (RepeatTrack) CommandType() string  { return CmdRepeatTrack }
func (Disconnect) CommandType() string   { return CmdDisconnect }
func (SetPosition) CommandType() string  { return CmdSetPosition }
func (SetVolume) CommandType() string    { return CmdSetVolume }

func (CreateDevice) isCommand() {}
func (Play) isCommand()         {}
func (PlayPause) isCommand()    {}
func (Pause) isCommand()        {}
func (Prev) isCommand()         {}
func (Next) isCommand()         {}
func (VolumeUp) isCommand()     {}
func (VolumeDown) isCommand()   {}
func (Shutdown) isCommand()     {}
func (Activate) isCommand()     {}
func (Shuffle) isCommand()      {}
func (Repeat) isCommand()       {}
func (RepeatTrack) isCommand()  {}
func (Disconnect) isCommand()   {}
func (SetPosition) isCommand()  {}
func (SetVolume) isCommand()    {}

// ParseCommandMessage decodes one inbound text frame.
func ParseCommandMessage(raw []byte) (CommandMessage, error) {
	var msg CommandMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return CommandMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.CommandType == "" {
		return CommandMessage{}, fmt.Errorf("%w: command_type is required", ErrMalformed)
	}
	return msg, nil
}

// Translate validates msg and builds the typed command. The returned device
// id is empty for CreateDevice.
func Translate(msg CommandMessage) (string, Command, error) {
	if !slices.Contains(CommandTypes, msg.CommandType) {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownCommand, msg.CommandType)
	}

	p, err := decodeParams(msg.Params)
	if err != nil {
		return "", nil, err
	}

	if msg.CommandType == CmdCreateDevice {
		token, err := p.str("token")
		if err != nil {
			return "", nil, err
		}
		name, err := p.optionalStr("device_name")
		if err != nil {
			return "", nil, err
		}
		return "", CreateDevice{Token: token, DeviceName: name}, nil
	}

	cmd, err := translateDeviceCommand(msg.CommandType, p)
	if err != nil {
		return "", nil, err
	}
	if strings.TrimSpace(msg.DeviceID) == "" {
		return "", nil, fmt.Errorf("%w: %s requires a device_id", ErrMissingDeviceID, msg.CommandType)
	}
	return msg.DeviceID, cmd, nil
}

func translateDeviceCommand(commandType string, p params) (Command, error) {
	switch commandType {
	case CmdPlay:
		return Play{}, nil
	case CmdPlayPause:
		return PlayPause{}, nil
	case CmdPause:
		return Pause{}, nil
	case CmdPrev:
		return Prev{}, nil
	case CmdNext:
		return Next{}, nil
	case CmdVolumeUp:
		return VolumeUp{}, nil
	case CmdVolumeDown:
		return VolumeDown{}, nil
	case CmdShutdown:
		return Shutdown{}, nil
	case CmdActivate:
		return Activate{}, nil
	case CmdShuffle:
		state, err := p.boolean("state")
		return Shuffle{State: state}, err
	case CmdRepeat:
		state, err := p.boolean("state")
		return Repeat{State: state}, err
	case CmdRepeatTrack:
		state, err := p.boolean("state")
		return RepeatTrack{State: state}, err
	case CmdDisconnect:
		pause, err := p.optionalBool("pause")
		return Disconnect{Pause: pause}, err
	case CmdSetPosition:
		v, err := p.unsigned("position_ms", math.MaxUint32)
		return SetPosition{PositionMs: uint32(v)}, err
	case CmdSetVolume:
		v, err := p.unsigned("volume", math.MaxUint16)
		return SetVolume{Volume: uint16(v)}, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, commandType)
	}
}

// ToMessage is the inverse of Translate.
func ToMessage(deviceID string, cmd Command) CommandMessage {
	var params map[string]any
	switch c := cmd.(type) {
	case CreateDevice:
		params = map[string]any{"token": c.Token}
		if c.DeviceName != nil {
			params["device_name"] = *c.DeviceName
		}
		deviceID = ""
	case Shuffle:
		params = map[string]any{"state": c.State}
	case Repeat:
		params = map[string]any{"state": c.State}
	case RepeatTrack:
		params = map[string]any{"state": c.State}
	case Disconnect:
		params = map[string]any{"pause": c.Pause}
	case SetPosition:
		params = map[string]any{"position_ms": c.PositionMs}
	case SetVolume:
		params = map[string]any{"volume": c.Volume}
	}

	msg := CommandMessage{DeviceID: deviceID, CommandType: cmd.CommandType()}
	if params != nil {
		// Marshalling a map of scalars cannot fail.
		msg.Params, _ = json.Marshal(params)
	}
	return msg
}

type params map[string]json.RawMessage

func decodeParams(raw json.RawMessage) (params, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return params{}, nil
	}
	var p params
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("%w: params must be an object", ErrMalformed)
	}
	return p, nil
}

func (p params) present(name string) (json.RawMessage, bool) {
	v, ok := p[name]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

func (p params) str(name string) (string, error) {
	v, ok := p.present(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrMissingParameter, name)
	}
	return s, nil
}

func (p params) optionalStr(name string) (*string, error) {
	if _, ok := p.present(name); !ok {
		return nil, nil
	}
	s, err := p.str(name)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (p params) boolean(name string) (bool, error) {
	v, ok := p.present(name)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", ErrMissingParameter, name)
	}
	return b, nil
}

func (p params) optionalBool(name string) (bool, error) {
	if _, ok := p.present(name); !ok {
		return false, nil
	}
	return p.boolean(name)
}

// unsigned reads a non-negative integer no larger than max. Values that are
// numbers but do not fit are ErrOutOfRange; anything else is
// ErrMissingParameter.
func (p params) unsigned(name string, max uint64) (uint64, error) {
	v, ok := p.present(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	v = bytes.TrimSpace(v)
	var n json.Number
	if v[0] == '"' {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrMissingParameter, name)
	}
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrMissingParameter, name)
	}
	s := n.String()

	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		if u > max {
			return 0, fmt.Errorf("%w: %s %d exceeds %d", ErrOutOfRange, name, u, max)
		}
		return u, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !isRangeErr(err) {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrMissingParameter, name)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrMissingParameter, name)
	}
	if f < 0 {
		return 0, fmt.Errorf("%w: %s %s is negative", ErrOutOfRange, name, s)
	}
	if f > float64(max) {
		return 0, fmt.Errorf("%w: %s %s exceeds %d", ErrOutOfRange, name, s, max)
	}
	return uint64(f), nil
}

func isRangeErr(err error) bool {
	numErr, ok := err.(*strconv.NumError)
	return ok && numErr.Err == strconv.ErrRange
}
