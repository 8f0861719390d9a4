package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/mbocsi/blockyspot/config"
	"github.com/mbocsi/blockyspot/engine/tone"
	"github.com/mbocsi/blockyspot/mcp"
	"github.com/mbocsi/blockyspot/proto"
	"github.com/mbocsi/blockyspot/server"
	"github.com/mbocsi/blockyspot/services"
	"github.com/mbocsi/blockyspot/web"
)

func main() {
	configPath := flag.String("config", "blockyspot.yaml", "path to the YAML config file")
	addr := flag.String("addr", "", "WebSocket listen address (overrides server.addr)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides log.level)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// stdout belongs to the MCP stdio protocol when it is enabled
	logOut := os.Stdout
	if cfg.MCP.Enabled {
		logOut = os.Stderr
	}
	server.SetupLogger(logOut, cfg.LogLevel())

	audio, err := cfg.StreamAudio()
	if err != nil {
		slog.Error("Invalid audio configuration", "error", err)
		os.Exit(1)
	}

	factory := tone.NewFactory(tone.Options{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		Frequency:   cfg.Engine.ToneFrequency,
		Tracks:      cfg.Engine.Tracks,
		TrackLength: cfg.Engine.TrackLength,
	})

	blockyspotServer := server.NewBlockyspotServer(server.BlockyspotServerOptions{
		Factory: factory,
		Audio:   audio,
	})

	wsServer := server.NewWSTransport(cfg.Server.Addr)
	wsServer.Path = cfg.Server.Path
	wsServer.SetName(cfg.Server.Name)
	wsServer.SetDescription("WebSocket gateway for virtual playback devices")
	wsServer.SetMaxClients(cfg.Server.MaxConnections)
	wsServer.SetReadLimit(cfg.Server.ReadLimitBytes)
	wsServer.SetWriteTimeout(cfg.Server.WriteTimeout)
	wsServer.SetPingInterval(cfg.Server.PingInterval)
	blockyspotServer.RegisterTransport(wsServer)

	serviceManager := services.FromServer(blockyspotServer)

	if cfg.Admin.Enabled {
		blockyspotServer.AddService(web.NewAdminServer(cfg.Admin.Addr, serviceManager.GetServices()))
	}

	if cfg.MDNS.Enabled {
		port, err := cfg.Port()
		if err != nil {
			slog.Error("Cannot advertise without a port", "error", err)
			os.Exit(1)
		}
		blockyspotServer.AddService(server.NewAdvertiser(cfg.MDNS.ServiceName, port, cfg.Server.Path))
	}

	if cfg.MCP.Enabled {
		blockyspotServer.AddService(mcp.NewMCPServer(proto.ProtocolVersion, serviceManager.GetServices()))
	}

	slog.Info("Starting blockyspot gateway",
		"addr", cfg.Server.Addr,
		"path", cfg.Server.Path,
		"admin", cfg.Admin.Enabled,
		"mdns", cfg.MDNS.Enabled,
		"mcp", cfg.MCP.Enabled,
	)

	if err := blockyspotServer.Start(); err != nil {
		slog.Error("Error running blockyspot server", "error", err.Error())
		os.Exit(1)
	}
}
