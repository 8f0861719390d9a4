package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mbocsi/blockyspot/proto"
)

// simple maps CLI words to commands without parameters.
var simple = map[string]proto.Command{
	"play":      proto.Play{},
	"playpause": proto.PlayPause{},
	"pause":     proto.Pause{},
	"next":      proto.Next{},
	"prev":      proto.Prev{},
	"volup":     proto.VolumeUp{},
	"voldown":   proto.VolumeDown{},
	"activate":  proto.Activate{},
	"shutdown":  proto.Shutdown{},
}

var toggles = map[string]func(bool) proto.Command{
	"shuffle":      func(s bool) proto.Command { return proto.Shuffle{State: s} },
	"repeat":       func(s bool) proto.Command { return proto.Repeat{State: s} },
	"repeat-track": func(s bool) proto.Command { return proto.RepeatTrack{State: s} },
}

const usage = `Commands:
  create <token> [name]     create a device and select it
  use <device_id>           select a device
  devices                   list devices created in this session
  play | pause | playpause | next | prev
  volup | voldown | activate | shutdown
  volume <0-65535>          set the volume
  seek <ms>                 set the playback position
  shuffle|repeat|repeat-track on|off
  disconnect [pause]        disconnect the device, optionally pausing first
  help                      show this text
  quit                      exit`

// parseCommand turns one device command line into a protocol command.
// Lines for create, use, devices, help and quit are handled by the caller.
func parseCommand(fields []string) (proto.Command, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	word := strings.ToLower(fields[0])
	args := fields[1:]

	if cmd, ok := simple[word]; ok {
		if len(args) != 0 {
			return nil, fmt.Errorf("%s takes no arguments", word)
		}
		return cmd, nil
	}

	if build, ok := toggles[word]; ok {
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: %s on|off", word)
		}
		state, err := parseSwitch(args[0])
		if err != nil {
			return nil, err
		}
		return build(state), nil
	}

	switch word {
	case "volume":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: volume <0-65535>")
		}
		v, err := strconv.ParseUint(args[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("volume must be between 0 and 65535")
		}
		return proto.SetVolume{Volume: uint16(v)}, nil

	case "seek":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: seek <ms>")
		}
		ms, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("position must be a non-negative number of milliseconds")
		}
		return proto.SetPosition{PositionMs: uint32(ms)}, nil

	case "disconnect":
		switch {
		case len(args) == 0:
			return proto.Disconnect{}, nil
		case len(args) == 1 && strings.EqualFold(args[0], "pause"):
			return proto.Disconnect{Pause: true}, nil
		}
		return nil, fmt.Errorf("usage: disconnect [pause]")
	}

	return nil, fmt.Errorf("unknown command %q (try help)", word)
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

// describeEvent renders a player event on one line.
func describeEvent(msg proto.PlayerEventMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", msg.DeviceID, msg.Event)
	if d := msg.Data; d != nil {
		if d.TrackID != "" {
			fmt.Fprintf(&b, " track=%s", d.TrackID)
		}
		if d.PositionMs != nil {
			fmt.Fprintf(&b, " position=%dms", *d.PositionMs)
		}
		if d.DurationMs != nil {
			fmt.Fprintf(&b, " duration=%dms", *d.DurationMs)
		}
		if d.Volume != nil {
			fmt.Fprintf(&b, " volume=%d", *d.Volume)
		}
		if d.Value != nil {
			fmt.Fprintf(&b, " value=%t", *d.Value)
		}
	}
	return b.String()
}
