package forwarder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/relaylight/internal/infrastructure/config"
	"github.com/nerrad567/relaylight/internal/infrastructure/httpserver"
	"github.com/nerrad567/relaylight/internal/infrastructure/logging"
)

// maxListLimit caps GET /commands.
const maxListLimit = 500

// HealthChecker is satisfied by *database.DB, *mqtt.Client and
// *influxdb.Client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// APIDeps holds the dependencies required by the record API.
type APIDeps struct {
	Config    config.HTTPConfig
	Logger    *logging.Logger
	Store     Store
	Publisher Publisher

	// DB, Broker and Metrics are optional; each one set is reported by
	// /health. A failing database or broker makes /health answer 503, a
	// failing metrics store only marks it degraded.
	DB      HealthChecker
	Broker  HealthChecker
	Metrics HealthChecker
	Version string
}

// API is the write surface for command records.
//
//	POST /api/v1/commands       create a record and announce it
//	GET  /api/v1/commands       list records (?status=&limit=)
//	GET  /api/v1/commands/{id}  fetch one record
//	GET  /api/v1/health         liveness
type API struct {
	cfg       config.HTTPConfig
	logger    *logging.Logger
	store     Store
	publisher Publisher
	db        HealthChecker
	broker    HealthChecker
	metrics   HealthChecker
	version   string
	http      *httpserver.Server
}

// NewAPI creates the record API. It is not listening until Start.
func NewAPI(deps APIDeps) (*API, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Store == nil {
		return nil, ErrStoreRequired
	}
	if deps.Publisher == nil {
		return nil, errors.New("publisher is required")
	}

	a := &API{
		cfg:       deps.Config,
		logger:    deps.Logger.With("component", "forwarder-api"),
		store:     deps.Store,
		publisher: deps.Publisher,
		db:        deps.DB,
		broker:    deps.Broker,
		metrics:   deps.Metrics,
		version:   deps.Version,
	}
	a.http = httpserver.New(a.cfg, a.Handler(), a.logger)
	return a, nil
}

// Handler returns the routed API handler.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	httpserver.UseDefaults(r, a.logger, a.cfg.CORS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Route("/commands", func(r chi.Router) {
			r.Post("/", a.handleCreate)
			r.Get("/", a.handleList)
			r.Get("/{id}", a.handleGet)
		})
	})
	return r
}

// Start begins listening.
func (a *API) Start(ctx context.Context) error {
	if err := a.http.Start(ctx); err != nil {
		return fmt.Errorf("starting forwarder api: %w", err)
	}
	return nil
}

// Addr returns the bound listen address.
func (a *API) Addr() string {
	return a.http.Addr()
}

// HealthCheck reports an error until the API is listening.
func (a *API) HealthCheck(ctx context.Context) error {
	return a.http.HealthCheck(ctx)
}

// Close gracefully shuts down the API.
func (a *API) Close() error {
	return a.http.Close()
}

// createRequest is the POST /commands body.
type createRequest struct {
	ESPHost  string `json:"espHost"`
	Action   string `json:"action"`
	Key      string `json:"key"`
	Duration *int   `json:"duration"`
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpserver.WriteBadRequest(w, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		httpserver.WriteBadRequest(w, err.Error())
		return
	}

	// Incomplete records are accepted; the forwarder marks them failed
	// without contacting a device.
	rec := &Record{
		ESPHost:  strings.TrimSpace(req.ESPHost),
		Action:   req.Action,
		Key:      req.Key,
		Duration: req.Duration,
	}
	if err := a.store.Create(r.Context(), rec); err != nil {
		a.logger.Error("creating record", "error", err)
		httpserver.WriteInternalError(w, "failed to create command")
		return
	}

	if err := a.publisher.PublishCreated(r.Context(), rec.ID); err != nil {
		a.logger.Error("announcing record", "id", rec.ID, "error", err)
		httpserver.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  http.StatusServiceUnavailable,
			"code":    httpserver.ErrCodeUnavailable,
			"message": "command stored but not dispatched",
			"id":      rec.ID,
		})
		return
	}

	a.logger.Info("command created", "id", rec.ID, "action", rec.Action, "host", rec.ESPHost)
	httpserver.WriteJSON(w, http.StatusCreated, rec)
}

func (req createRequest) validate() error {
	if req.Duration != nil && *req.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidRecord)
	}
	return nil
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	var filter ListFilter
	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = Status(s)
		if !filter.Status.Valid() {
			httpserver.WriteBadRequest(w, "status must be pending, done or failed")
			return
		}
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			httpserver.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = min(n, maxListLimit)
	}

	records, err := a.store.List(r.Context(), filter)
	if err != nil {
		a.logger.Error("listing records", "error", err)
		httpserver.WriteInternalError(w, "failed to list commands")
		return
	}
	if records == nil {
		records = []Record{}
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"commands": records, "count": len(records)})
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := a.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			httpserver.WriteNotFound(w, "command not found")
			return
		}
		a.logger.Error("getting record", "id", id, "error", err)
		httpserver.WriteInternalError(w, "failed to get command")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, rec)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "version": a.version}
	code := http.StatusOK

	checks := []struct {
		name     string
		check    HealthChecker
		required bool
	}{
		{"database", a.db, true},
		{"broker", a.broker, true},
		{"influxdb", a.metrics, false},
	}
	for _, c := range checks {
		if c.check == nil {
			continue
		}
		if err := c.check.HealthCheck(r.Context()); err != nil {
			a.logger.Warn("health check failed", "dependency", c.name, "error", err)
			resp[c.name] = "unavailable"
			resp["status"] = "degraded"
			if c.required {
				code = http.StatusServiceUnavailable
			}
			continue
		}
		resp[c.name] = "ok"
	}
	httpserver.WriteJSON(w, code, resp)
}
