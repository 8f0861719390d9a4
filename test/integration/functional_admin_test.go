package integration

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/mbocsi/blockyspot/client"
	"github.com/mbocsi/blockyspot/proto"
	"github.com/mbocsi/blockyspot/services"
)

func adminDo(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

// Test that the admin API sees and controls devices owned by WebSocket clients
func TestAdminControlsClientDevice(t *testing.T) {
	g := startGateway(t)
	c := connectClient(t, g)
	ctx := testContext(t)

	volumes := make(chan uint16, 16)
	c.OnPlayerEvent(func(msg proto.PlayerEventMessage) {
		if msg.Event == "volume_changed" && msg.Data != nil && msg.Data.Volume != nil {
			volumes <- *msg.Data.Volume
		}
	})

	id, err := c.CreateDevice(ctx, "tok", "Office")
	if err != nil {
		t.Fatalf("CreateDevice failed: %v", err)
	}

	var devices []services.DeviceInfo
	if status := adminDo(t, http.MethodGet, g.adminURL("/api/devices"), "", &devices); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if len(devices) != 1 || devices[0].ID != id || devices[0].Name != "Office" || devices[0].State != "active" {
		t.Fatalf("Unexpected device list %+v", devices)
	}

	var result services.CommandResult
	status := adminDo(t, http.MethodPost, g.adminURL("/api/devices/"+id+"/commands"),
		`{"command_type":"SetVolume","params":{"volume":4242}}`, &result)
	if status != http.StatusOK || !result.Success || result.Message != "Volume updated" {
		t.Fatalf("Unexpected command result %d %+v", status, result)
	}

	eventually(t, "volume event on the owning connection", func() bool {
		select {
		case v := <-volumes:
			return v == 4242
		default:
			return false
		}
	})

	if status := adminDo(t, http.MethodDelete, g.adminURL("/api/devices/"+id), "", nil); status != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", status)
	}

	_, err = c.Do(ctx, id, proto.Play{})
	var cmdErr *client.CommandError
	if !errors.As(err, &cmdErr) || cmdErr.Message != "Device not found" {
		t.Errorf("Expected the removed device to be gone, got %v", err)
	}

	if status := adminDo(t, http.MethodGet, g.adminURL("/api/devices/"+id), "", nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 after removal, got %d", status)
	}
}

// Test health and metrics endpoints against a running gateway
func TestAdminHealthAndMetrics(t *testing.T) {
	g := startGateway(t)
	c := connectClient(t, g)
	if _, err := c.CreateDevice(testContext(t), "tok", ""); err != nil {
		t.Fatalf("CreateDevice failed: %v", err)
	}

	var health map[string]any
	if status := adminDo(t, http.MethodGet, g.adminURL("/healthz"), "", &health); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if health["status"] != "ok" || health["devices"] != float64(1) {
		t.Errorf("Unexpected health %v", health)
	}

	resp, err := http.Get(g.adminURL("/metrics"))
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read metrics: %v", err)
	}
	if !strings.Contains(string(body), "blockyspot_devices_active") {
		t.Error("Expected blockyspot_devices_active in /metrics")
	}
}
