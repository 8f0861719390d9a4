package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/mbocsi/blockyspot/proto"
)

const (
	DefaultPath       = "/ws"
	DefaultMaxClients = 16
	DefaultReadLimit  = 1 << 20
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins, matching the browser clients in the wild
	},
}

type WSTransport struct {
	Addr         string
	Path         string
	server       *http.Server
	onMessage    func(Client, []byte)
	onConnect    func(Client) error
	onDisconnect func(Client)

	name        string
	description string
	clients     map[string]*WSClient
	cmu         sync.RWMutex

	maxClients   int
	readLimit    int64
	writeTimeout time.Duration
	pingInterval time.Duration
	connected    bool
	shutdown     bool
}

func NewWSTransport(addr string) *WSTransport {
	return &WSTransport{
		Addr:         addr,
		Path:         DefaultPath,
		maxClients:   DefaultMaxClients,
		readLimit:    DefaultReadLimit,
		writeTimeout: DefaultWriteTimeout,
		pingInterval: DefaultPingInterval,
		clients:      make(map[string]*WSClient),
	}
}

func (t *WSTransport) Start() error {
	slog.Info("Starting WebSocket server", "addr", t.Addr, "path", t.Path)

	if t.onConnect == nil || t.onDisconnect == nil || t.onMessage == nil {
		return errors.New("the OnConnect, OnDisconnect, or OnMessage function is not defined; this transport is likely being used outside of the server coordinator")
	}

	t.cmu.Lock()
	if t.shutdown {
		t.cmu.Unlock()
		return nil
	}
	t.server = &http.Server{
		Addr:    t.Addr,
		Handler: t.Handler(),
	}
	t.connected = true
	srv := t.server
	t.cmu.Unlock()

	err := srv.ListenAndServe()
	t.cmu.Lock()
	t.connected = false
	t.cmu.Unlock()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler serves the WebSocket endpoint. It can be mounted on an existing
// server instead of calling Start.
func (t *WSTransport) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get(t.Path, t.handleWebSocket)
	return r
}

func (t *WSTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	t.cmu.RLock()
	clientCount := len(t.clients)
	t.cmu.RUnlock()

	if t.maxClients > 0 && clientCount >= t.maxClients {
		slog.Warn("Max clients reached, rejecting connection", "remote_addr", r.RemoteAddr)
		connectionsRejectedTotal.Inc()
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection", "error", err)
		return
	}

	go t.handleConnection(conn, r.RemoteAddr)
}

func (t *WSTransport) handleConnection(conn *websocket.Conn, remoteAddr string) {
	client := NewWSClient(conn, t)
	client.RemoteAddr = remoteAddr
	client.writeTimeout = t.writeTimeout
	client.pingInterval = t.pingInterval

	slog.Info("WebSocket client connected", "addr", remoteAddr, "conn", client.Id)

	conn.SetReadLimit(t.readLimit)
	pongWait := 2 * t.pingInterval
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go client.writeLoop()

	defer func() {
		t.cmu.Lock()
		delete(t.clients, client.Id)
		t.cmu.Unlock()
		connectionsActive.Dec()

		client.Close()
		t.onDisconnect(client)
		<-client.writerDone

		slog.Info("WebSocket client disconnected", "addr", remoteAddr, "conn", client.Id)
	}()

	t.cmu.Lock()
	t.clients[client.Id] = client
	t.cmu.Unlock()
	connectionsActive.Inc()

	if err := t.onConnect(client); err != nil {
		slog.Error("Failed to register WebSocket client", "addr", remoteAddr, "error", err.Error())
		return
	}

	// The ack is queued before the first frame is read.
	if err := client.Send(proto.NewConnectionAck()); err != nil {
		return
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("WebSocket connection error", "addr", remoteAddr, "error", err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.TextMessage {
			slog.Warn("Ignoring non-text WebSocket frame", "conn", client.Id, "size", len(data))
			continue
		}

		slog.Debug("WebSocket message received", "conn", client.Id, "size", len(data))
		t.onMessage(client, data)
	}
}

func (t *WSTransport) Shutdown() error {
	slog.Info("Shutting down WebSocket server", "addr", t.Addr)

	t.cmu.Lock()
	srv := t.server
	t.connected = false
	t.shutdown = true
	clients := make([]*WSClient, 0, len(t.clients))
	for _, c := range t.clients {
		clients = append(clients, c)
	}
	t.cmu.Unlock()

	// Hijacked connections are not closed by the http server.
	for _, c := range clients {
		c.Close()
	}
	if srv != nil {
		return srv.Close()
	}
	return nil
}

func (t *WSTransport) OnMessage(fn func(Client, []byte)) {
	t.onMessage = fn
}

func (t *WSTransport) OnConnect(fn func(Client) error) {
	t.onConnect = fn
}

func (t *WSTransport) OnDisconnect(fn func(Client)) {
	t.onDisconnect = fn
}

func (t *WSTransport) Meta() TransportMetadata {
	t.cmu.RLock()
	defer t.cmu.RUnlock()
	return TransportMetadata{
		ID:          "ws-" + t.Addr,
		Name:        t.name,
		Description: t.description,
		Protocol:    "websocket",
		Address:     t.Addr,
		Path:        t.Path,
		Clients:     len(t.clients),
		MaxClients:  t.maxClients,
		Connected:   t.connected,
	}
}

func (t *WSTransport) SetName(name string) {
	t.name = name
}

func (t *WSTransport) SetDescription(description string) {
	t.description = description
}

func (t *WSTransport) SetMaxClients(n int) {
	t.maxClients = n
}

func (t *WSTransport) SetReadLimit(n int64) {
	t.readLimit = n
}

func (t *WSTransport) SetWriteTimeout(d time.Duration) {
	if d > 0 {
		t.writeTimeout = d
	}
}

func (t *WSTransport) SetPingInterval(d time.Duration) {
	if d > 0 {
		t.pingInterval = d
	}
}
