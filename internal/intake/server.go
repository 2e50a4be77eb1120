// Package intake is the device's HTTP command endpoint.
//
//	GET /command?cmd=BLINK&duration=1000  -> {"status":"executed","cmd":"BLINK"}
//	GET /health                           -> {"status":"ok","device":"relaylight-001"}
//
// Commands run synchronously inside the request: the response is written
// only after the action has finished. Any other path answers 404 with a
// plain "Not Found" body.
//
// The key query parameter is accepted and ignored. It is never logged.
package intake

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/relaylight/internal/device"
	"github.com/nerrad567/relaylight/internal/executor"
	"github.com/nerrad567/relaylight/internal/infrastructure/config"
	"github.com/nerrad567/relaylight/internal/infrastructure/httpserver"
	"github.com/nerrad567/relaylight/internal/infrastructure/logging"
)

// Device is the event loop the intake hands commands to.
type Device interface {
	Execute(ctx context.Context, cmd executor.Command) (executor.Result, error)
	Health(ctx context.Context) (device.Health, error)
	DeviceID() string
}

// Deps holds the dependencies required by the intake server.
type Deps struct {
	Config  config.HTTPConfig
	Logger  *logging.Logger
	Device  Device
	Version string
}

// Server is the device's command intake.
type Server struct {
	cfg     config.HTTPConfig
	logger  *logging.Logger
	device  Device
	version string
	http    *httpserver.Server
}

// New creates an intake server. It is not listening until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Device == nil {
		return nil, errors.New("device is required")
	}

	s := &Server{
		cfg:     deps.Config,
		logger:  deps.Logger.With("component", "intake"),
		device:  deps.Device,
		version: deps.Version,
	}
	s.http = httpserver.New(s.cfg, s.Handler(), s.logger)
	return s, nil
}

// Handler returns the routed intake handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	httpserver.UseDefaults(r, s.logger, s.cfg.CORS)

	// Any method is accepted, as on the device firmware.
	r.HandleFunc("/command", s.handleCommand)
	r.HandleFunc("/health", s.handleHealth)

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleNotFound)
	return r
}

// Start begins listening for commands.
func (s *Server) Start(ctx context.Context) error {
	if err := s.http.Start(ctx); err != nil {
		return fmt.Errorf("starting intake: %w", err)
	}
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.http.Addr()
}

// HealthCheck reports an error until the intake is listening.
func (s *Server) HealthCheck(ctx context.Context) error {
	return s.http.HealthCheck(ctx)
}

// Close gracefully shuts down the intake, letting a running command finish.
func (s *Server) Close() error {
	return s.http.Close()
}
