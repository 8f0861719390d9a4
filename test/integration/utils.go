package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/mbocsi/blockyspot/client"
	"github.com/mbocsi/blockyspot/engine/tone"
	"github.com/mbocsi/blockyspot/server"
	"github.com/mbocsi/blockyspot/services"
	"github.com/mbocsi/blockyspot/web"
)

type gateway struct {
	server    *server.BlockyspotServer
	wsAddr    string
	adminAddr string
	stopped   chan struct{}
}

func getRandomPort(t *testing.T) int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to get port: %v", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

func waitForPort(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Nothing listening on %s", addr)
}

// startGateway runs a full gateway (WebSocket transport plus admin API) on
// random local ports until the test ends.
func startGateway(t *testing.T, opts ...func(*server.WSTransport)) *gateway {
	t.Helper()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	blockyspotServer := server.NewBlockyspotServer(server.BlockyspotServerOptions{
		Factory: tone.NewFactory(tone.Options{}),
		Context: ctx,
	})

	g := &gateway{
		server:    blockyspotServer,
		wsAddr:    fmt.Sprintf("127.0.0.1:%d", getRandomPort(t)),
		adminAddr: fmt.Sprintf("127.0.0.1:%d", getRandomPort(t)),
		stopped:   make(chan struct{}),
	}

	wsTransport := server.NewWSTransport(g.wsAddr)
	for _, opt := range opts {
		opt(wsTransport)
	}
	blockyspotServer.RegisterTransport(wsTransport)

	serviceManager := services.FromServer(blockyspotServer)
	blockyspotServer.AddService(web.NewAdminServer(g.adminAddr, serviceManager.GetServices()))

	go func() {
		defer close(g.stopped)
		if err := blockyspotServer.Start(); err != nil {
			t.Errorf("Server failed: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-g.stopped:
		case <-time.After(5 * time.Second):
			t.Error("Gateway did not stop")
		}
	})

	waitForPort(t, g.wsAddr)
	waitForPort(t, g.adminAddr)
	return g
}

func (g *gateway) adminURL(path string) string {
	return "http://" + g.adminAddr + path
}

func connectClient(t *testing.T, g *gateway) *client.Client {
	t.Helper()
	c := client.NewClient(client.NewWebSocketTransport())
	if err := c.Start(g.wsAddr); err != nil {
		t.Fatalf("Client failed to connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			t.Fatalf("Timed out waiting for %s", what)
		case <-ticker.C:
			if cond() {
				return
			}
		}
	}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
