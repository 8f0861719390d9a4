package server

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mbocsi/blockyspot/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchFixture struct {
	coordinator *Coordinator
	factory     *mockFactory
	out         Outbox
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	registry, factory := newTestRegistry(t)
	return &dispatchFixture{
		coordinator: NewCoordinator(registry),
		factory:     factory,
		out:         newOutbox(t),
	}
}

func (f *dispatchFixture) frame(t *testing.T, connID, raw string) proto.Response {
	t.Helper()
	return f.coordinator.HandleFrame(context.Background(), connID, f.out, []byte(raw))
}

func (f *dispatchFixture) send(t *testing.T, connID, deviceID string, cmd proto.Command) proto.Response {
	t.Helper()
	raw, err := json.Marshal(proto.ToMessage(deviceID, cmd))
	require.NoError(t, err)
	return f.coordinator.HandleFrame(context.Background(), connID, f.out, raw)
}

func (f *dispatchFixture) create(t *testing.T, connID string) string {
	t.Helper()
	resp := f.send(t, connID, "", proto.CreateDevice{Token: "tok"})
	require.True(t, resp.Success, resp.Message)
	require.NotEmpty(t, resp.DeviceID)
	return resp.DeviceID
}

func TestDispatch_CreateDevice(t *testing.T) {
	f := newDispatchFixture(t)

	resp := f.frame(t, "conn-1", `{"command_type":"CreateDevice","params":{"token":"tok","device_name":"Den"}}`)

	require.True(t, resp.Success)
	assert.Equal(t, "Connected to Spotify", resp.Message)
	assert.Equal(t, map[string]string{"device_id": resp.DeviceID}, resp.Data)

	session, err := f.coordinator.Registry.Get(resp.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, "Den", session.Name)
	assert.Equal(t, "conn-1", session.Owner)
}

func TestDispatch_CreateDevice_EngineFailure(t *testing.T) {
	f := newDispatchFixture(t)

	resp := f.send(t, "conn-1", "", proto.CreateDevice{Token: "bad"})

	assert.False(t, resp.Success)
	assert.Equal(t, "Failed to connect: authentication failed", resp.Message)
	assert.Empty(t, resp.DeviceID)
	assert.Equal(t, 0, f.coordinator.Registry.Len())
}

func TestDispatch_CreateDevice_RequiresConnection(t *testing.T) {
	f := newDispatchFixture(t)

	resp := f.coordinator.Dispatcher.Dispatch(context.Background(), Request{Command: proto.CreateDevice{Token: "tok"}})

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "Failed to connect")
	assert.Equal(t, 0, f.factory.count())
}

func TestDispatch_EngineCommands(t *testing.T) {
	tests := []struct {
		cmd     proto.Command
		call    string
		message string
	}{
		{proto.Play{}, "Play", "Playback started"},
		{proto.PlayPause{}, "PlayPause", "Playback toggled"},
		{proto.Pause{}, "Pause", "Playback paused"},
		{proto.Prev{}, "Prev", "Previous track"},
		{proto.Next{}, "Next", "Next track"},
		{proto.VolumeUp{}, "VolumeUp", "Volume increased"},
		{proto.VolumeDown{}, "VolumeDown", "Volume decreased"},
		{proto.Activate{}, "Activate", "Device activated"},
		{proto.Shuffle{State: true}, "Shuffle(true)", "Shuffle enabled"},
		{proto.Shuffle{State: false}, "Shuffle(false)", "Shuffle disabled"},
		{proto.Repeat{State: true}, "Repeat(true)", "Repeat enabled"},
		{proto.Repeat{State: false}, "Repeat(false)", "Repeat disabled"},
		{proto.RepeatTrack{State: true}, "RepeatTrack(true)", "Track repeat enabled"},
		{proto.RepeatTrack{State: false}, "RepeatTrack(false)", "Track repeat disabled"},
		{proto.SetPosition{PositionMs: 1000}, "SetPositionMs(1000)", "Position updated"},
		{proto.SetVolume{Volume: 100}, "SetVolume", "Volume updated"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			f := newDispatchFixture(t)
			id := f.create(t, "conn-1")

			resp := f.send(t, "conn-1", id, tt.cmd)

			assert.True(t, resp.Success, resp.Message)
			assert.Equal(t, tt.message, resp.Message)
			assert.Equal(t, id, resp.DeviceID)
			assert.Equal(t, []string{tt.call}, f.factory.engine(id).Calls())
		})
	}
}

func TestDispatch_EngineError(t *testing.T) {
	tests := []struct {
		cmd     proto.Command
		message string
	}{
		{proto.Pause{}, "Failed to pause: boom"},
		{proto.Shuffle{State: true}, "Failed to set shuffle: boom"},
		{proto.Repeat{State: true}, "Failed to set repeat: boom"},
		{proto.RepeatTrack{State: true}, "Failed to set track repeat: boom"},
		{proto.SetPosition{PositionMs: 5}, "Failed to set position: boom"},
		{proto.SetVolume{Volume: 5}, "Failed to set volume: boom"},
		{proto.Disconnect{}, "Failed to disconnect: boom"},
		{proto.Shutdown{}, "Failed to shutdown: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			f := newDispatchFixture(t)
			id := f.create(t, "conn-1")
			f.factory.engine(id).failWith(errors.New("boom"))

			resp := f.send(t, "conn-1", id, tt.cmd)

			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Message)
			assert.Equal(t, id, resp.DeviceID)
			// A failed teardown keeps the device.
			_, err := f.coordinator.Registry.Get(id)
			assert.NoError(t, err)
		})
	}
}

func TestDispatch_DeviceNotFound(t *testing.T) {
	f := newDispatchFixture(t)
	id := f.create(t, "conn-1")

	resp := f.send(t, "conn-1", "nope", proto.Play{})

	assert.False(t, resp.Success)
	assert.Equal(t, "Device not found", resp.Message)
	assert.Equal(t, "nope", resp.DeviceID)
	assert.Empty(t, f.factory.engine(id).Calls())
}

func TestDispatch_OtherConnectionsDevice(t *testing.T) {
	f := newDispatchFixture(t)
	id := f.create(t, "conn-1")

	resp := f.send(t, "conn-2", id, proto.Play{})

	assert.False(t, resp.Success)
	assert.Equal(t, "Device not found", resp.Message)
	assert.Empty(t, f.factory.engine(id).Calls())

	// Administrative callers address any device.
	resp = f.coordinator.Dispatcher.Dispatch(context.Background(), Request{DeviceID: id, Command: proto.Play{}})
	assert.True(t, resp.Success)
}

func TestDispatch_PauseTwice(t *testing.T) {
	f := newDispatchFixture(t)
	id := f.create(t, "conn-1")

	first := f.send(t, "conn-1", id, proto.Pause{})
	second := f.send(t, "conn-1", id, proto.Pause{})

	assert.True(t, first.Success)
	assert.True(t, second.Success)
	assert.Equal(t, []string{"Pause", "Pause"}, f.factory.engine(id).Calls())
}

func TestDispatch_Teardown(t *testing.T) {
	tests := []struct {
		name string
		cmd  proto.Command
		call string
	}{
		{"shutdown", proto.Shutdown{}, "Shutdown"},
		{"disconnect and pause", proto.Disconnect{Pause: true}, "Disconnect(true)"},
		{"disconnect", proto.Disconnect{Pause: false}, "Disconnect(false)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatchFixture(t)
			id := f.create(t, "conn-1")
			session, err := f.coordinator.Registry.Get(id)
			require.NoError(t, err)

			resp := f.send(t, "conn-1", id, tt.cmd)
			require.True(t, resp.Success, resp.Message)
			assert.Equal(t, []string{tt.call}, f.factory.engine(id).Calls())

			_, err = f.coordinator.Registry.Get(id)
			assert.ErrorIs(t, err, ErrDeviceNotFound)
			assert.Equal(t, SessionDisconnected, session.State())
			assert.True(t, f.factory.engine(id).Closed())

			resp = f.send(t, "conn-1", id, proto.Play{})
			assert.Equal(t, "Device not found", resp.Message)
		})
	}
}

func TestDispatch_SetVolumeOutOfRange(t *testing.T) {
	f := newDispatchFixture(t)
	id := f.create(t, "conn-1")

	resp := f.frame(t, "conn-1", `{"device_id":"`+id+`","command_type":"SetVolume","params":{"volume":70000}}`)

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "Invalid command:")
	assert.Contains(t, resp.Message, "volume")
	assert.Equal(t, id, resp.DeviceID)
	assert.Empty(t, f.factory.engine(id).Calls())
	assert.Zero(t, f.factory.engine(id).Volume())
}

func TestHandleFrame_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		prefix string
	}{
		{"not json", `hello`, "Invalid JSON format: "},
		{"missing command type", `{"device_id":"x"}`, "Invalid JSON format: "},
		{"unknown command", `{"device_id":"x","command_type":"Bogus"}`, "Invalid command: "},
		{"unknown command with array params", `{"device_id":"x","command_type":"Bogus","params":[1]}`, "Invalid command: " + proto.ErrUnknownCommand.Error()},
		{"missing device id", `{"command_type":"Play"}`, "Invalid command: "},
		{"missing token", `{"command_type":"CreateDevice","params":{}}`, "Invalid command: "},
		{"bad state", `{"device_id":"x","command_type":"Shuffle","params":{"state":"yes"}}`, "Invalid command: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatchFixture(t)

			resp := f.frame(t, "conn-1", tt.raw)

			assert.False(t, resp.Success)
			assert.Equal(t, proto.TypeCommandResponse, resp.Type)
			assert.Contains(t, resp.Message, tt.prefix)
			assert.NotContains(t, resp.Message, proto.ErrMalformed.Error()+": ")
			assert.Equal(t, 0, f.factory.count())
		})
	}
}

func TestCoordinator_UnregisterClientRemovesDevices(t *testing.T) {
	f := newDispatchFixture(t)
	mine := f.create(t, "conn-1")
	theirs := f.create(t, "conn-2")

	f.coordinator.UnregisterClient(&stubClient{meta: ClientMetadata{Id: "conn-1"}})

	_, err := f.coordinator.Registry.Get(mine)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	_, err = f.coordinator.Registry.Get(theirs)
	assert.NoError(t, err)
	assert.True(t, f.factory.engine(mine).Closed())
}

func TestCoordinator_HandleSendsOneResponse(t *testing.T) {
	f := newDispatchFixture(t)
	client := &stubClient{meta: ClientMetadata{Id: "conn-1"}}

	f.coordinator.Handle(client, []byte(`{"command_type":"Bogus","device_id":"d"}`))

	require.Len(t, client.sent, 1)
	resp, ok := client.sent[0].(proto.Response)
	require.True(t, ok)
	assert.False(t, resp.Success)
}

// stubClient collects everything sent to it.
type stubClient struct {
	meta ClientMetadata
	sent []proto.Outbound
}

func (c *stubClient) Send(msg proto.Outbound) error {
	c.sent = append(c.sent, msg)
	return nil
}

func (c *stubClient) Meta() *ClientMetadata { return &c.meta }
func (c *stubClient) Close() error          { return nil }
