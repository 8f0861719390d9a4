package proto

import "errors"

// Protocol errors. They are detected before the registry or engine is
// touched and always wrapped with detail, so match them with errors.Is.
var (
	ErrMalformed        = errors.New("malformed message")
	ErrUnknownCommand   = errors.New("unknown command type")
	ErrMissingParameter = errors.New("missing parameter")
	ErrOutOfRange       = errors.New("parameter out of range")
	ErrMissingDeviceID  = errors.New("missing device_id")
)
