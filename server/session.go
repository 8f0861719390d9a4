package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mbocsi/blockyspot/engine"
)

type SessionState string

const (
	SessionActive       SessionState = "active"
	SessionDisconnected SessionState = "disconnected"
)

// DeviceSession is one virtual playback device. Engine calls go through Do
// so nothing reaches the engine after the session is closed.
type DeviceSession struct {
	ID        string
	Name      string
	Owner     string // connection id, empty for none
	CreatedAt time.Time

	engine engine.Engine
	sink   *StreamSink
	cancel context.CancelFunc
	done   chan struct{} // closed when the forwarder exits

	callMu sync.Mutex // serialises engine calls

	mu          sync.Mutex
	state       SessionState
	closed      bool
	lastCommand time.Time
}

// DeviceInfo is a point-in-time view of a session.
type DeviceInfo struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Owner       string       `json:"owner,omitempty"`
	State       SessionState `json:"state"`
	Streaming   bool         `json:"streaming"`
	CreatedAt   time.Time    `json:"created_at"`
	LastCommand *time.Time   `json:"last_command,omitempty"`
}

// Do runs fn against the engine. Calls on one session never overlap, and a
// slow call does not block State or Info.
func (s *DeviceSession) Do(fn func(engine.Engine) error) error {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return engine.ErrClosed
	}
	s.lastCommand = time.Now()
	s.mu.Unlock()

	return fn(s.engine)
}

func (s *DeviceSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *DeviceSession) MarkDisconnected() {
	s.mu.Lock()
	s.state = SessionDisconnected
	s.mu.Unlock()
}

func (s *DeviceSession) Info() DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := DeviceInfo{
		ID:        s.ID,
		Name:      s.Name,
		Owner:     s.Owner,
		State:     s.state,
		CreatedAt: s.CreatedAt,
		Streaming: s.sink != nil && s.sink.Streaming(),
	}
	if !s.lastCommand.IsZero() {
		t := s.lastCommand
		info.LastCommand = &t
	}
	return info
}

// close cancels the forwarder and releases the engine. Errors are logged.
func (s *DeviceSession) close() {
	s.cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = SessionDisconnected
	s.mu.Unlock()

	s.callMu.Lock()
	err := s.engine.Close()
	s.callMu.Unlock()
	if err != nil {
		slog.Warn("Engine close failed", "device_id", s.ID, "error", err)
	}
	<-s.done
}
