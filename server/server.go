package server

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mbocsi/blockyspot/engine"
)

type BlockyspotServerOptions struct {
	Factory  engine.Factory  // Required unless Registry is set
	Audio    AudioConfig     // Optional (defaults to DefaultAudioConfig)
	Registry *DeviceRegistry // Optional (defaults to a new registry over Factory)
	Context  context.Context // Optional (defaults to context.Background())
}

type BlockyspotServer struct {
	options     BlockyspotServerOptions
	coordinator *Coordinator
}

func NewBlockyspotServer(opts BlockyspotServerOptions) *BlockyspotServer {
	if opts.Audio == (AudioConfig{}) {
		opts.Audio = DefaultAudioConfig()
	}
	if opts.Registry == nil {
		opts.Registry = NewDeviceRegistry(opts.Factory, opts.Audio)
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}

	return &BlockyspotServer{
		options:     opts,
		coordinator: NewCoordinator(opts.Registry),
	}
}

func (s *BlockyspotServer) RegisterTransport(t Transport) {
	s.coordinator.RegisterTransport(t)
}

func (s *BlockyspotServer) AddService(svc Service) {
	s.coordinator.AddService(svc)
}

func (s *BlockyspotServer) GetRegistry() *DeviceRegistry {
	return s.coordinator.Registry
}

func (s *BlockyspotServer) GetDispatcher() *Dispatcher {
	return s.coordinator.Dispatcher
}

func (s *BlockyspotServer) GetTransports() []Transport {
	return s.coordinator.Transports
}

// SetupLogger installs a JSON slog handler as the default logger.
func SetupLogger(w io.Writer, level slog.Level) {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// Start blocks until SIGINT/SIGTERM or the configured context ends.
func (s *BlockyspotServer) Start() error {
	ctx, stop := signal.NotifyContext(s.options.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.coordinator.Start(ctx)
}
