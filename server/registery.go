package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mbocsi/blockyspot/engine"
)

var ErrDeviceNotFound = errors.New("device not found")

type CreateParams struct {
	Token    string
	Name     string // empty selects the default name
	Owner    string
	Outbound Outbox
}

// DeviceRegistry owns every DeviceSession. A single mutex guards the map; it
// is never held while the engine is being initialised or called.
type DeviceRegistry struct {
	mu       sync.Mutex
	store    map[string]*DeviceSession
	reserved map[string]struct{}

	factory engine.Factory
	audio   AudioConfig
	newID   func() string
}

func NewDeviceRegistry(factory engine.Factory, audio AudioConfig) *DeviceRegistry {
	return &DeviceRegistry{
		store:    make(map[string]*DeviceSession),
		reserved: make(map[string]struct{}),
		factory:  factory,
		audio:    audio,
		newID:    uuid.NewString,
	}
}

func DefaultDeviceName(id string) string {
	return "Blockyspot " + id
}

func (r *DeviceRegistry) Create(ctx context.Context, p CreateParams) (*DeviceSession, error) {
	if p.Outbound == nil {
		return nil, errors.New("no outbound channel for device")
	}

	id := r.reserve()
	name := p.Name
	if name == "" {
		name = DefaultDeviceName(id)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	forwarder := NewEventForwarder(id, p.Outbound)
	sink := NewStreamSink(id, p.Outbound, r.audio, forwarder.ReportSinkStatus, sessionCtx.Done())

	eng, err := r.factory.New(ctx, engine.Config{
		Token:        p.Token,
		DeviceName:   name,
		DeviceID:     id,
		Format:       r.audio.Format,
		Sink:         sink,
		OnSinkStatus: forwarder.ReportSinkStatus,
	})
	if err != nil {
		cancel()
		forwarder.Close()
		r.release(id)
		deviceCreateFailuresTotal.Inc()
		return nil, err
	}

	session := &DeviceSession{
		ID:        id,
		Name:      name,
		Owner:     p.Owner,
		CreatedAt: time.Now(),
		engine:    eng,
		sink:      sink,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     SessionActive,
	}

	r.mu.Lock()
	delete(r.reserved, id)
	r.store[id] = session
	count := len(r.store)
	r.mu.Unlock()

	go func() {
		defer close(session.done)
		forwarder.Run(sessionCtx, eng.Events())
	}()

	devicesActive.Set(float64(count))
	slog.Info("Registered device", "device_id", id, "name", name, "conn", p.Owner)
	return session, nil
}

// reserve picks an id that is neither in use nor being created.
func (r *DeviceRegistry) reserve() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id := r.newID()
		if _, ok := r.store[id]; ok {
			continue
		}
		if _, ok := r.reserved[id]; ok {
			continue
		}
		r.reserved[id] = struct{}{}
		return id
	}
}

func (r *DeviceRegistry) release(id string) {
	r.mu.Lock()
	delete(r.reserved, id)
	r.mu.Unlock()
}

func (r *DeviceRegistry) Get(id string) (*DeviceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.store[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return session, nil
}

// Remove tears the session down. Removing an unknown id is a no-op.
func (r *DeviceRegistry) Remove(id string) bool {
	r.mu.Lock()
	session, ok := r.store[id]
	delete(r.store, id)
	count := len(r.store)
	r.mu.Unlock()

	if !ok {
		return false
	}
	session.close()
	devicesActive.Set(float64(count))
	slog.Info("Removed device", "device_id", id)
	return true
}

// RemoveOwned removes every device created by the given connection.
func (r *DeviceRegistry) RemoveOwned(owner string) int {
	r.mu.Lock()
	var ids []string
	for id, session := range r.store {
		if session.Owner == owner {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if r.Remove(id) {
			removed++
		}
	}
	return removed
}

// List returns the sessions ordered by creation time.
func (r *DeviceRegistry) List() []*DeviceSession {
	r.mu.Lock()
	sessions := make([]*DeviceSession, 0, len(r.store))
	for _, session := range r.store {
		sessions = append(sessions, session)
	}
	r.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

func (r *DeviceRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.store)
}

// Close removes every device.
func (r *DeviceRegistry) Close() {
	for _, session := range r.List() {
		r.Remove(session.ID)
	}
}
