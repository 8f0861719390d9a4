package server

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/mbocsi/blockyspot/engine"
)

func TestNewDeviceRegistry(t *testing.T) {
	registry := NewDeviceRegistry(newMockFactory(), DefaultAudioConfig())

	if registry == nil {
		t.Fatal("Expected registry to be created")
	}
	if registry.store == nil {
		t.Error("Expected store map to be initialized")
	}
	if registry.Len() != 0 {
		t.Errorf("Expected empty registry, got %d devices", registry.Len())
	}
}

func TestDeviceRegistry_Create(t *testing.T) {
	registry, factory := newTestRegistry(t)
	out := newOutbox(t)

	session, err := registry.Create(context.Background(), CreateParams{
		Token:    "tok",
		Name:     "Kitchen",
		Owner:    "conn-1",
		Outbound: out,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if session.ID == "" {
		t.Fatal("Expected a device id")
	}
	if session.Name != "Kitchen" {
		t.Errorf("Expected name 'Kitchen', got %s", session.Name)
	}
	if session.Owner != "conn-1" {
		t.Errorf("Expected owner 'conn-1', got %s", session.Owner)
	}
	if session.State() != SessionActive {
		t.Errorf("Expected state active, got %s", session.State())
	}

	stored, err := registry.Get(session.ID)
	if err != nil {
		t.Fatalf("Expected device to be stored: %v", err)
	}
	if stored != session {
		t.Error("Expected Get to return the created session")
	}

	eng := factory.engine(session.ID)
	if eng == nil {
		t.Fatal("Expected the factory to be called with the device id")
	}
	if eng.cfg.Token != "tok" || eng.cfg.DeviceName != "Kitchen" {
		t.Errorf("Unexpected engine config %+v", eng.cfg)
	}
	if eng.cfg.Sink == nil || eng.cfg.OnSinkStatus == nil {
		t.Error("Expected the engine to receive a sink and a status callback")
	}
}

func TestDeviceRegistry_Create_DefaultName(t *testing.T) {
	registry, _ := newTestRegistry(t)

	session, err := registry.Create(context.Background(), CreateParams{Token: "tok", Outbound: newOutbox(t)})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if session.Name != DefaultDeviceName(session.ID) {
		t.Errorf("Expected default name %q, got %q", DefaultDeviceName(session.ID), session.Name)
	}
}

func TestDeviceRegistry_Create_UniqueIDs(t *testing.T) {
	registry, _ := newTestRegistry(t)
	out := newOutbox(t)

	const n = 50
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, err := registry.Create(context.Background(), CreateParams{Token: "tok", Outbound: out})
			if err != nil {
				t.Errorf("Create failed: %v", err)
				return
			}
			ids <- session.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{})
	for id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("Duplicate device id %s", id)
		}
		seen[id] = struct{}{}
	}
	if registry.Len() != n {
		t.Errorf("Expected %d devices, got %d", n, registry.Len())
	}
}

func TestDeviceRegistry_Create_SkipsCollidingIDs(t *testing.T) {
	registry, _ := newTestRegistry(t)
	seq := []string{"a", "a", "a", "b"}
	var i int
	registry.newID = func() string {
		id := seq[i]
		i++
		return id
	}

	first, err := registry.Create(context.Background(), CreateParams{Token: "tok", Outbound: newOutbox(t)})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	second, err := registry.Create(context.Background(), CreateParams{Token: "tok", Outbound: newOutbox(t)})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if first.ID != "a" || second.ID != "b" {
		t.Errorf("Expected ids a and b, got %s and %s", first.ID, second.ID)
	}
}

func TestDeviceRegistry_Create_EngineFailure(t *testing.T) {
	registry, factory := newTestRegistry(t)

	_, err := registry.Create(context.Background(), CreateParams{Token: "bad", Outbound: newOutbox(t)})
	if !errors.Is(err, errBadToken) {
		t.Fatalf("Expected engine error, got %v", err)
	}
	if registry.Len() != 0 {
		t.Errorf("Expected no device after failed create, got %d", registry.Len())
	}
	if factory.count() != 0 {
		t.Errorf("Expected no engine, got %d", factory.count())
	}
	if len(registry.reserved) != 0 {
		t.Error("Expected the reserved id to be released")
	}
}

func TestDeviceRegistry_Create_EngineFailureStopsForwarder(t *testing.T) {
	registry, _ := newTestRegistry(t)
	out := newOutbox(t)
	baseline := runtime.NumGoroutine()

	for i := 0; i < 50; i++ {
		if _, err := registry.Create(context.Background(), CreateParams{Token: "bad", Outbound: out}); err == nil {
			t.Fatal("Expected create to fail")
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > baseline+5 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected failed creates to release their goroutines, %d running (baseline %d)", runtime.NumGoroutine(), baseline)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDeviceRegistry_Create_NoOutbound(t *testing.T) {
	registry, factory := newTestRegistry(t)

	if _, err := registry.Create(context.Background(), CreateParams{Token: "tok"}); err == nil {
		t.Fatal("Expected an error without an outbound channel")
	}
	if factory.count() != 0 {
		t.Error("Expected the factory not to be called")
	}
}

func TestDeviceRegistry_Get_NotFound(t *testing.T) {
	registry, _ := newTestRegistry(t)

	_, err := registry.Get("missing")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}
}

func TestDeviceRegistry_Remove(t *testing.T) {
	registry, factory := newTestRegistry(t)

	session, err := registry.Create(context.Background(), CreateParams{Token: "tok", Outbound: newOutbox(t)})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if !registry.Remove(session.ID) {
		t.Fatal("Expected Remove to report removal")
	}
	if _, err := registry.Get(session.ID); err == nil {
		t.Error("Expected device to be removed")
	}
	if !factory.engine(session.ID).Closed() {
		t.Error("Expected the engine to be closed")
	}
	if session.State() != SessionDisconnected {
		t.Errorf("Expected state disconnected, got %s", session.State())
	}

	select {
	case <-session.done:
	case <-time.After(time.Second):
		t.Fatal("Expected the forwarder to stop")
	}

	// Second removal is a no-op.
	if registry.Remove(session.ID) {
		t.Error("Expected second Remove to be a no-op")
	}
}

func TestDeviceRegistry_Remove_RejectsLateCalls(t *testing.T) {
	registry, factory := newTestRegistry(t)

	session, _ := registry.Create(context.Background(), CreateParams{Token: "tok", Outbound: newOutbox(t)})
	registry.Remove(session.ID)

	err := session.Do(engine.Engine.Play)
	if !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Expected engine.ErrClosed, got %v", err)
	}
	if calls := factory.engine(session.ID).Calls(); len(calls) != 0 {
		t.Errorf("Expected no engine calls after removal, got %v", calls)
	}
}

func TestDeviceSession_SlowCallDoesNotBlockInfo(t *testing.T) {
	registry, _ := newTestRegistry(t)

	session, err := registry.Create(context.Background(), CreateParams{Token: "tok", Outbound: newOutbox(t)})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	callDone := make(chan error, 1)
	go func() {
		callDone <- session.Do(func(e engine.Engine) error {
			close(started)
			<-release
			return e.Play()
		})
	}()
	<-started

	infoDone := make(chan DeviceInfo, 1)
	go func() {
		_ = session.State()
		infoDone <- session.Info()
	}()

	select {
	case info := <-infoDone:
		if info.ID != session.ID {
			t.Errorf("Expected info for %s, got %s", session.ID, info.ID)
		}
		if info.LastCommand == nil {
			t.Error("Expected the in-flight command to be recorded")
		}
	case <-time.After(time.Second):
		close(release)
		t.Fatal("Info blocked behind an in-flight engine call")
	}

	// A second call waits for the first.
	second := make(chan error, 1)
	go func() { second <- session.Do(engine.Engine.Pause) }()
	select {
	case <-second:
		t.Fatal("Expected engine calls on one session not to overlap")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-callDone; err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := <-second; err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestDeviceRegistry_RemoveOwned(t *testing.T) {
	registry, _ := newTestRegistry(t)
	out := newOutbox(t)

	for i := 0; i < 3; i++ {
		if _, err := registry.Create(context.Background(), CreateParams{Token: "tok", Owner: "conn-a", Outbound: out}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	other, err := registry.Create(context.Background(), CreateParams{Token: "tok", Owner: "conn-b", Outbound: out})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if removed := registry.RemoveOwned("conn-a"); removed != 3 {
		t.Errorf("Expected 3 devices removed, got %d", removed)
	}
	if registry.Len() != 1 {
		t.Errorf("Expected 1 device left, got %d", registry.Len())
	}
	if _, err := registry.Get(other.ID); err != nil {
		t.Error("Expected the other connection's device to survive")
	}
	if removed := registry.RemoveOwned("conn-a"); removed != 0 {
		t.Errorf("Expected nothing left to remove, got %d", removed)
	}
}

func TestDeviceRegistry_List(t *testing.T) {
	registry, _ := newTestRegistry(t)
	out := newOutbox(t)

	var want []string
	for i := 0; i < 3; i++ {
		session, err := registry.Create(context.Background(), CreateParams{
			Token:    "tok",
			Name:     "device-" + strconv.Itoa(i),
			Outbound: out,
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		want = append(want, session.ID)
		time.Sleep(time.Millisecond)
	}

	list := registry.List()
	if len(list) != len(want) {
		t.Fatalf("Expected %d devices, got %d", len(want), len(list))
	}
	for i, session := range list {
		if session.ID != want[i] {
			t.Errorf("Expected device %d to be %s, got %s", i, want[i], session.ID)
		}
	}
}

func TestDeviceRegistry_Close(t *testing.T) {
	registry := NewDeviceRegistry(newMockFactory(), DefaultAudioConfig())
	out := newOutbox(t)

	for i := 0; i < 2; i++ {
		if _, err := registry.Create(context.Background(), CreateParams{Token: "tok", Outbound: out}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	registry.Close()
	if registry.Len() != 0 {
		t.Errorf("Expected empty registry after Close, got %d", registry.Len())
	}
}
