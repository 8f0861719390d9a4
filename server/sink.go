package server

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mbocsi/blockyspot/engine"
	"github.com/mbocsi/blockyspot/proto"
)

var ErrSinkDisconnected = errors.New("sink disconnected: outbound channel closed")

const (
	DefaultSampleRate     = 44100
	DefaultChannels       = 2
	DefaultChunkDuration  = 100 * time.Millisecond
	DefaultPacingInterval = 100 * time.Millisecond

	FormatPCM         = "pcm_s16le"
	FormatPassthrough = "passthrough"
)

type AudioConfig struct {
	SampleRate     int
	Channels       int
	Format         engine.AudioFormat
	ChunkDuration  time.Duration
	PacingInterval time.Duration
}

func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:     DefaultSampleRate,
		Channels:       DefaultChannels,
		Format:         engine.FormatS16,
		ChunkDuration:  DefaultChunkDuration,
		PacingInterval: DefaultPacingInterval,
	}
}

// ChunkThreshold is the number of interleaved samples that triggers one
// audio_data emission.
func (c AudioConfig) ChunkThreshold() int {
	n := c.SampleRate * c.Channels * int(c.ChunkDuration/time.Millisecond) / 1000
	if n < 1 {
		return 1
	}
	return n
}

// StreamSink adapts the engine's push-based audio output into paced,
// base64-encoded audio_data messages on a connection's outbound queue.
type StreamSink struct {
	deviceID string
	out      Outbox
	cfg      AudioConfig
	onStatus func(engine.SinkStatus)

	// done is closed on session teardown and aborts a pacing wait.
	done <-chan struct{}

	writeMu sync.Mutex

	mu           sync.Mutex
	started      bool
	disconnected bool
	buffer       []float64
	lastEmit     time.Time
	generation   uint64 // bumped by Start and Stop
}

func NewStreamSink(deviceID string, out Outbox, cfg AudioConfig, onStatus func(engine.SinkStatus), done <-chan struct{}) *StreamSink {
	return &StreamSink{
		deviceID: deviceID,
		out:      out,
		cfg:      cfg,
		onStatus: onStatus,
		done:     done,
		buffer:   make([]float64, 0, cfg.ChunkThreshold()),
	}
}

func (s *StreamSink) Start() error {
	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.buffer = s.buffer[:0]
	s.lastEmit = time.Time{}
	s.started = true
	s.generation++
	err := s.sendLocked(proto.AudioFormatMessage{
		Type:     proto.TypeAudioFormat,
		DeviceID: s.deviceID,
		Data: proto.AudioFormatInfo{
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
			BitDepth:   s.cfg.Format.BitDepth(),
			Format:     s.cfg.Format.String(),
		},
	})
	s.mu.Unlock()
	if err != nil {
		return err
	}

	slog.Debug("Audio stream started", "device_id", s.deviceID)
	s.reportStatus(engine.SinkRunning)
	return nil
}

func (s *StreamSink) Stop() error {
	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	discarded := len(s.buffer)
	s.buffer = s.buffer[:0]
	s.started = false
	s.generation++
	err := s.sendLocked(proto.AudioStreamStopped{Type: proto.TypeAudioStreamStopped, DeviceID: s.deviceID})
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if discarded > 0 {
		audioSamplesDiscardedTotal.Add(float64(discarded))
	}
	slog.Debug("Audio stream stopped", "device_id", s.deviceID, "discarded_samples", discarded)
	s.reportStatus(engine.SinkTemporarilyClosed)
	return nil
}

// Write is called from the engine's playback goroutine. Sample packets are
// buffered until the chunk threshold is reached; the emission is then delayed
// until the pacing interval has passed since the previous one.
func (s *StreamSink) Write(packet engine.AudioPacket) error {
	if packet.IsRaw() {
		return s.writeRaw(packet.Raw)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.buffer = append(s.buffer, packet.Samples...)
	if len(s.buffer) < s.cfg.ChunkThreshold() {
		s.mu.Unlock()
		return nil
	}
	pcm := encodePCM(s.buffer)
	s.buffer = s.buffer[:0]
	generation := s.generation
	var wait time.Duration
	if !s.lastEmit.IsZero() {
		wait = s.cfg.PacingInterval - time.Since(s.lastEmit)
	}
	s.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.done:
			timer.Stop()
			return ErrSinkDisconnected
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	if !s.started || generation != s.generation {
		// The stream was stopped while this chunk was waiting.
		return nil
	}
	s.lastEmit = time.Now()
	if err := s.sendLocked(audioData(s.deviceID, FormatPCM, proto.PacketSamples, pcm)); err != nil {
		return err
	}
	audioChunksSentTotal.WithLabelValues(proto.PacketSamples).Inc()
	audioBytesSentTotal.Add(float64(len(pcm)))
	return nil
}

func (s *StreamSink) writeRaw(raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	if !s.started {
		return nil
	}
	if err := s.sendLocked(audioData(s.deviceID, FormatPassthrough, proto.PacketRaw, raw)); err != nil {
		return err
	}
	audioChunksSentTotal.WithLabelValues(proto.PacketRaw).Inc()
	audioBytesSentTotal.Add(float64(len(raw)))
	return nil
}

// Disconnected reports whether the outbound queue has gone away.
func (s *StreamSink) Disconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

func (s *StreamSink) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// checkLocked latches the disconnected state once the outbound queue is
// closed, even if nothing has been sent since.
func (s *StreamSink) checkLocked() error {
	if !s.disconnected {
		if c, ok := s.out.(interface{ Closed() bool }); ok && c.Closed() {
			s.disconnected = true
			s.started = false
			s.buffer = s.buffer[:0]
		}
	}
	if s.disconnected {
		return ErrSinkDisconnected
	}
	return nil
}

func (s *StreamSink) sendLocked(msg proto.Outbound) error {
	if err := s.out.Send(msg); err != nil {
		slog.Warn("Outbound queue closed, audio path disconnected", "device_id", s.deviceID, "error", err)
		s.disconnected = true
		s.started = false
		s.buffer = s.buffer[:0]
		return fmt.Errorf("%w: %v", ErrSinkDisconnected, err)
	}
	return nil
}

func (s *StreamSink) reportStatus(status engine.SinkStatus) {
	if s.onStatus != nil {
		s.onStatus(status)
	}
}

func audioData(deviceID, format, packetType string, payload []byte) proto.AudioDataMessage {
	return proto.AudioDataMessage{
		Type:     proto.TypeAudioData,
		DeviceID: deviceID,
		Data: proto.AudioChunk{
			Format:     format,
			Encoded:    base64.StdEncoding.EncodeToString(payload),
			PacketType: packetType,
		},
	}
}

// encodePCM converts float samples in [-1, 1] to signed 16-bit little endian.
func encodePCM(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toS16(sample)))
	}
	return out
}

func toS16(sample float64) int16 {
	if math.IsNaN(sample) {
		return 0
	}
	v := math.Round(sample * 32768)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
