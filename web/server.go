package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mbocsi/blockyspot/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// AdminServer is the operator-facing HTTP API. It runs next to the WebSocket
// gateway as a server.Service.
type AdminServer struct {
	addr     string
	services *services.ServiceContainer
}

func NewAdminServer(addr string, serviceContainer *services.ServiceContainer) *AdminServer {
	return &AdminServer{addr: addr, services: serviceContainer}
}

func (a *AdminServer) Name() string { return "admin-http" }

// Routes returns the HTTP routes for the admin API
func (a *AdminServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.HandleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/devices", a.HandleDevices)
		r.Get("/devices/{id}", a.HandleDeviceDetail)
		r.Delete("/devices/{id}", a.HandleDeviceRemove)
		r.Post("/devices/{id}/commands", a.HandleSendCommand)
		r.Get("/commands", a.HandleCommands)
		r.Get("/transports", a.HandleTransports)
		r.Get("/transports/{i}", a.HandleTransportDetail)
	})
	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (a *AdminServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.addr,
		Handler:           a.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("Started admin HTTP server", "addr", a.addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("Shutting down admin HTTP server", "addr", a.addr)
		return srv.Shutdown(shutdownCtx)
	}
}
