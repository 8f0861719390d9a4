package engine

import (
	"fmt"
	"strings"
)

// AudioFormat is the sample format the engine was configured with. The wire
// stream is always 16-bit PCM; this only shows up in the audio_format notice.
type AudioFormat int

const (
	FormatS16 AudioFormat = iota
	FormatS24
	FormatS24_3
	FormatS32
	FormatF32
	FormatF64
)

var formatNames = map[AudioFormat]string{
	FormatS16:   "S16",
	FormatS24:   "S24",
	FormatS24_3: "S24_3",
	FormatS32:   "S32",
	FormatF32:   "F32",
	FormatF64:   "F64",
}

func (f AudioFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("AudioFormat(%d)", int(f))
}

func (f AudioFormat) BitDepth() int {
	switch f {
	case FormatS16:
		return 16
	case FormatS24, FormatS24_3:
		return 24
	case FormatS32, FormatF32:
		return 32
	case FormatF64:
		return 64
	default:
		return 0
	}
}

func ParseAudioFormat(s string) (AudioFormat, error) {
	for f, name := range formatNames {
		if strings.EqualFold(name, s) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown audio format %q", s)
}

// UnmarshalText lets config files name the format directly.
func (f *AudioFormat) UnmarshalText(text []byte) error {
	parsed, err := ParseAudioFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (f AudioFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}
