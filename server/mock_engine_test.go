package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mbocsi/blockyspot/engine"
	"github.com/mbocsi/blockyspot/proto"
	"github.com/mbocsi/blockyspot/queue"
	"github.com/stretchr/testify/require"
)

// mockEngine records every call it receives.
type mockEngine struct {
	cfg    engine.Config
	events chan engine.Event

	mu     sync.Mutex
	calls  []string
	err    error
	volume uint16
	closed bool
	once   sync.Once
}

func newMockEngine(cfg engine.Config) *mockEngine {
	return &mockEngine{cfg: cfg, events: make(chan engine.Event, 16)}
}

func (m *mockEngine) record(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
	return m.err
}

func (m *mockEngine) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockEngine) failWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *mockEngine) Play() error       { return m.record("Play") }
func (m *mockEngine) PlayPause() error  { return m.record("PlayPause") }
func (m *mockEngine) Pause() error      { return m.record("Pause") }
func (m *mockEngine) Prev() error       { return m.record("Prev") }
func (m *mockEngine) Next() error       { return m.record("Next") }
func (m *mockEngine) VolumeUp() error   { return m.record("VolumeUp") }
func (m *mockEngine) VolumeDown() error { return m.record("VolumeDown") }
func (m *mockEngine) Shutdown() error   { return m.record("Shutdown") }
func (m *mockEngine) Activate() error   { return m.record("Activate") }

func (m *mockEngine) Shuffle(state bool) error {
	return m.record(fmt.Sprintf("Shuffle(%t)", state))
}

func (m *mockEngine) Repeat(state bool) error {
	return m.record(fmt.Sprintf("Repeat(%t)", state))
}

func (m *mockEngine) RepeatTrack(state bool) error {
	return m.record(fmt.Sprintf("RepeatTrack(%t)", state))
}

func (m *mockEngine) SetPositionMs(positionMs uint32) error {
	return m.record(fmt.Sprintf("SetPositionMs(%d)", positionMs))
}

func (m *mockEngine) Disconnect(pause bool) error {
	return m.record(fmt.Sprintf("Disconnect(%t)", pause))
}

func (m *mockEngine) SetVolume(v uint16) error {
	if err := m.record("SetVolume"); err != nil {
		return err
	}
	m.mu.Lock()
	m.volume = v
	m.mu.Unlock()
	return nil
}

func (m *mockEngine) Volume() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

func (m *mockEngine) Events() <-chan engine.Event { return m.events }

func (m *mockEngine) Close() error {
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.events)
	})
	return nil
}

func (m *mockEngine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var errBadToken = errors.New("authentication failed")

// mockFactory hands out mockEngines and rejects the token "bad".
type mockFactory struct {
	mu      sync.Mutex
	engines map[string]*mockEngine
}

func newMockFactory() *mockFactory {
	return &mockFactory{engines: make(map[string]*mockEngine)}
}

func (f *mockFactory) New(ctx context.Context, cfg engine.Config) (engine.Engine, error) {
	if cfg.Token == "bad" {
		return nil, errBadToken
	}
	e := newMockEngine(cfg)
	f.mu.Lock()
	f.engines[cfg.DeviceID] = e
	f.mu.Unlock()
	return e, nil
}

func (f *mockFactory) engine(id string) *mockEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[id]
}

func (f *mockFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

func newTestRegistry(t *testing.T) (*DeviceRegistry, *mockFactory) {
	t.Helper()
	factory := newMockFactory()
	registry := NewDeviceRegistry(factory, DefaultAudioConfig())
	t.Cleanup(registry.Close)
	return registry, factory
}

func newOutbox(t *testing.T) *queue.Queue[proto.Outbound] {
	t.Helper()
	q := queue.New[proto.Outbound]()
	t.Cleanup(q.Close)
	return q
}

// nextMessage waits for the next outbound message of the wanted type,
// skipping anything else.
func nextMessage[T proto.Outbound](t *testing.T, q *queue.Queue[proto.Outbound]) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-q.Out():
			require.True(t, ok, "outbound queue closed")
			if v, ok := msg.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

// expectNoMessage asserts nothing arrives on q within d.
func expectNoMessage(t *testing.T, q *queue.Queue[proto.Outbound], d time.Duration) {
	t.Helper()
	select {
	case msg := <-q.Out():
		t.Fatalf("unexpected message %#v", msg)
	case <-time.After(d):
	}
}
